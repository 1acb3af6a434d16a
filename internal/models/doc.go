// Package models defines domain entities and the persistence contract for the beatq batch download pipeline.
//
// The package contains three groups of types:
//
// 1. Persistent Entities: database-backed records mutated by the orchestrator
//   - [Batch] : one playlist import with derived state and aggregate counters
//   - [Track] : one song within a batch moving through the track lifecycle
//   - [MatchCacheEntry] : a fingerprint-to-video decision, positive or negative
//
// 2. Lifecycle enums: [TrackStatus], [BatchState], [ErrorCode] and [SourcePlatform], all stored as text.
//
// 3. Persistence contract: [Store], implemented over SQLite in the repositories package.
//
// Every entity implements [Model], which lets repositories validate and stamp records uniformly before writing them.
package models
