// Package journal records print jobs and stage changes in SQLite.
//
// SQLiteRepository owns the print_jobs and stage_transitions tables.
// Recorder sits between the bridge and the repository: it tracks the
// current job and performs writes on its own goroutine, so a slow disk never
// stalls message processing. Journal failures are logged and never stop the
// bridge.
package journal
