// Package tasks runs playlist batches from submission to stored audio files.
//
// # Lifecycle
//
// Every track moves through a fixed set of statuses:
//
//	EXTRACTED -> MATCHING -> MATCHED | MATCHED_LOW_CONFIDENCE | MATCHING_MANUAL
//	          -> DISPATCHING -> QUEUED -> DOWNLOADING -> COMPLETED
//
// Any unfinished track may fail. [CanTransition] holds the table and [Transition] enforces it.
// A batch has no state of its own: [DeriveBatchState] computes it from its tracks and [Recompute] refreshes the counters after every change.
//
// # Lanes
//
// [Orchestrator.Start] launches two worker pools fed from the store.
// The match lane asks the [Matcher] for a video and either hands the track off to the download lane or parks it for the user.
// The download lane resolves a stream URL through the [StreamCache], fetches it with a [Fetcher] and writes it to a [storage.Sink].
// Failed downloads are requeued with exponential backoff until the retry limit is reached.
//
// All writes for a batch happen under a per-batch lock, and workers recheck the track before acting, so a dispatch made from a stale snapshot is dropped.
//
// # Progress Reporting
//
// When [Options.Updates] is set, every transition worth showing is sent as a [ProgressUpdate].
// Sends never block; a full channel drops the update.
//
// # Cancellation
//
// [Orchestrator.Cancel] fails every unfinished track with CANCELLED and aborts running downloads.
// The download lane also watches for batches cancelled by another process.
package tasks
