package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/beatq/internal/models"
)

// MatchCacheRepository persists [models.MatchCacheEntry] rows.
//
// Writes are upserts keyed by cache_key, so repeating a decision is harmless.
type MatchCacheRepository struct {
	db *sql.DB
}

// NewMatchCacheRepository creates a new MatchCacheRepository with the given database connection
func NewMatchCacheRepository(db *sql.DB) *MatchCacheRepository {
	return &MatchCacheRepository{db: db}
}

// Get returns the entry for key, or nil when absent.
func (r *MatchCacheRepository) Get(ctx context.Context, key string) (*models.MatchCacheEntry, error) {
	var entry models.MatchCacheEntry
	err := r.db.QueryRowContext(ctx,
		`SELECT cache_key, video_id, created_at FROM match_cache WHERE cache_key = ?`, key,
	).Scan(&entry.CacheKey, &entry.VideoID, &entry.CreatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read match cache: %w", err)
	}
	return &entry, nil
}

// Upsert inserts or replaces the entry, refreshing its timestamp.
func (r *MatchCacheRepository) Upsert(ctx context.Context, entry *models.MatchCacheEntry) error {
	if err := prepare(entry, time.Now().UTC()); err != nil {
		return err
	}

	query := `
		INSERT INTO match_cache (cache_key, video_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET video_id = excluded.video_id, created_at = excluded.created_at
	`
	if _, err := r.db.ExecContext(ctx, query, entry.CacheKey, entry.VideoID, entry.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert match cache: %w", err)
	}
	return nil
}

// PurgeNegatives deletes NO_MATCH entries created before olderThan. Positive entries are never purged.
func (r *MatchCacheRepository) PurgeNegatives(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM match_cache WHERE video_id = ? AND created_at < ?`, models.NoMatch, olderThan.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge negative matches: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of positive and negative entries.
func (r *MatchCacheRepository) Count(ctx context.Context) (positive, negative int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN video_id != ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN video_id = ? THEN 1 ELSE 0 END), 0)
		FROM match_cache
	`, models.NoMatch, models.NoMatch).Scan(&positive, &negative)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count match cache: %w", err)
	}
	return positive, negative, nil
}
