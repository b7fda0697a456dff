// Package observe provides telemetry for the preview cache: structured
// logging, OpenTelemetry metrics, and optional tracing around thumbnail
// generation.
package observe
