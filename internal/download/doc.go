// Package download fetches source objects through the aria2 daemon. It owns
// the full transfer lifecycle: mirror URI construction, adoption of tasks
// that survived a daemon or process restart, reconciliation of partial files
// via aria2 control-file markers, stall detection with pause/unpause
// recovery, size verification, and bounded retry with exponential backoff.
package download
