// Package health provides health checks over the preview cache: cache
// saturation and admission-queue pressure.
package health
