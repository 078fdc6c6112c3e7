// Package repositories implements SQLite persistence for the sync history.
//
// [SyncRunRepository] implements models.Repository for [models.SyncRun] and adds the rolling
// window operations used by the scheduler and the status API: [SyncRunRepository.Recent],
// [SyncRunRepository.Prune] and [SyncRunRepository.Record], which keeps the newest
// [HistoryLimit] runs.
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and timestamps.
// The [NextSequence] function atomically increments per-table counters in dedicated sequence tables.
package repositories
