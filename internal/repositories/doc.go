// Package repositories implements SQLite persistence for batches, tracks and the match cache.
//
// Key Implementations:
//   - [BatchRepository] : batch rows with derived state and aggregate counters
//   - [TrackRepository] : track rows, status queries in insertion order and stalled-track recovery
//   - [MatchCacheRepository] : fingerprint decisions with negative purging
//   - [SQLStore] : the aggregate implementing [models.Store], owning multi-table transactions
//
// Sequence numbers provide stable insertion ordering (e.g., batch #4, track #120) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
