// Package monitor provides a polling companion for the fetcher: it
// snapshots cache statistics on an interval, tracks preload progress
// for UI consumption, and periodically triggers the backend's own
// thumbnail-cache cleanup.
package monitor
