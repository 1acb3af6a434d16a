package models

import (
	"context"
	"time"
)

// Model defines the base interface for all persistent records in beatq.
// Implementations include Batch, Track and MatchCacheEntry.
type Model interface {
	Key() string         // Key returns the primary key of the record
	Touch(now time.Time) // Touch stamps the record as modified at now
	Validate() error     // Validate checks if the record's data is valid and returns an error if not
}

// Store is the durable store used by the pipeline.
//
// Implementations must make CreateBatch and GetBatchWithTracks transactional so a batch and its tracks are always observed together.
type Store interface {
	CreateBatch(ctx context.Context, batch *Batch, tracks []*Track) error
	GetBatch(ctx context.Context, id string) (*Batch, error)
	UpdateBatch(ctx context.Context, batch *Batch) error
	ListBatches(ctx context.Context) ([]*Batch, error)
	DeleteBatch(ctx context.Context, id string) error

	GetTrack(ctx context.Context, id string) (*Track, error)
	UpdateTrack(ctx context.Context, track *Track) error
	ListTracksByBatch(ctx context.Context, batchID string) ([]*Track, error)
	ListTracksByStatus(ctx context.Context, statuses ...TrackStatus) ([]*Track, error)
	GetBatchWithTracks(ctx context.Context, id string) (*BatchWithTracks, error)

	GetMatchCache(ctx context.Context, key string) (*MatchCacheEntry, error)
	UpsertMatchCache(ctx context.Context, entry *MatchCacheEntry) error
	PurgeNegativeCache(ctx context.Context, olderThan time.Time) (int64, error)

	// ResetStalled returns tracks left mid-flight by a crashed process to a resumable status and reports how many moved.
	ResetStalled(ctx context.Context) (int64, error)
}
