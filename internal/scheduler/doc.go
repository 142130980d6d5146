// Package scheduler triggers pipeline runs on a fixed interval and on demand.
//
// A scheduler can be paused and resumed without being stopped. Ticks that
// arrive while paused, or while a run is still active, are skipped rather
// than queued.
package scheduler
