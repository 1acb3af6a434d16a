package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/beatq/internal/models"
)

// SQLStore implements [models.Store] over a single SQLite database.
type SQLStore struct {
	db      *sql.DB
	Batches *BatchRepository
	Tracks  *TrackRepository
	Matches *MatchCacheRepository
}

// NewSQLStore wires the table repositories around db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:      db,
		Batches: NewBatchRepository(db),
		Tracks:  NewTrackRepository(db),
		Matches: NewMatchCacheRepository(db),
	}
}

// CreateBatch inserts the batch and all of its tracks in one transaction.
// Each track receives the batch id and its own sequence.
func (s *SQLStore) CreateBatch(ctx context.Context, batch *models.Batch, tracks []*models.Track) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	batch.TotalTracks = len(tracks)
	if err := s.Batches.insert(ctx, tx, batch); err != nil {
		return err
	}

	for _, track := range tracks {
		track.BatchID = batch.ID
		if err := s.Tracks.insert(ctx, tx, track); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// GetBatchWithTracks reads a batch and its tracks from one consistent snapshot.
func (s *SQLStore) GetBatchWithTracks(ctx context.Context, id string) (*models.BatchWithTracks, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	batch, err := s.Batches.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	tracks, err := s.Tracks.listByBatch(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return &models.BatchWithTracks{Batch: batch, Tracks: tracks}, nil
}

func (s *SQLStore) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	return s.Batches.Get(ctx, id)
}

func (s *SQLStore) UpdateBatch(ctx context.Context, batch *models.Batch) error {
	return s.Batches.Update(ctx, batch)
}

func (s *SQLStore) ListBatches(ctx context.Context) ([]*models.Batch, error) {
	return s.Batches.List(ctx)
}

func (s *SQLStore) DeleteBatch(ctx context.Context, id string) error {
	return s.Batches.Delete(ctx, id)
}

func (s *SQLStore) GetTrack(ctx context.Context, id string) (*models.Track, error) {
	return s.Tracks.Get(ctx, id)
}

func (s *SQLStore) UpdateTrack(ctx context.Context, track *models.Track) error {
	return s.Tracks.Update(ctx, track)
}

func (s *SQLStore) ListTracksByBatch(ctx context.Context, batchID string) ([]*models.Track, error) {
	return s.Tracks.ListByBatch(ctx, batchID)
}

func (s *SQLStore) ListTracksByStatus(ctx context.Context, statuses ...models.TrackStatus) ([]*models.Track, error) {
	return s.Tracks.ListByStatus(ctx, statuses...)
}

func (s *SQLStore) GetMatchCache(ctx context.Context, key string) (*models.MatchCacheEntry, error) {
	return s.Matches.Get(ctx, key)
}

func (s *SQLStore) UpsertMatchCache(ctx context.Context, entry *models.MatchCacheEntry) error {
	return s.Matches.Upsert(ctx, entry)
}

func (s *SQLStore) PurgeNegativeCache(ctx context.Context, olderThan time.Time) (int64, error) {
	return s.Matches.PurgeNegatives(ctx, olderThan)
}

// CountMatchCache returns the number of positive and negative match cache entries.
func (s *SQLStore) CountMatchCache(ctx context.Context) (positive, negative int, err error) {
	return s.Matches.Count(ctx)
}

func (s *SQLStore) ResetStalled(ctx context.Context) (int64, error) {
	return s.Tracks.ResetStalled(ctx)
}

var _ models.Store = (*SQLStore)(nil)
