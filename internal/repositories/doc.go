// Package repositories implements SQLite persistence for the local task history.
//
// [TaskRepository] stores one [models.TaskRecord] per uploaded file: created when the processor accepts the upload,
// updated with the terminal snapshot once a watch ends, and flagged once the remote task is cleaned up.
// Records support soft deletes via deleted_at timestamps and are excluded from queries once deleted.
//
// Sequence numbers provide stable, human-readable ordering (e.g. task #42) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
