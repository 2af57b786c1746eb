// Package store persists migration state in SQLite: cached planning datasets
// as named JSON documents, and the per-item status table that makes reruns
// resume instead of redoing work. A flock guard enforces the single-writer
// precondition; within one process every status mutation is written through
// immediately, so a crash never loses committed progress from earlier groups.
package store
