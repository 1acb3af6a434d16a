// Package matchcache is the persistent fingerprint-to-video cache consulted before any live search.
//
// Entries are keyed by fingerprint and matcher version so a scoring change can invalidate old decisions by bumping the version.
// Positive decisions are kept indefinitely; negative ones ([models.NoMatch]) expire after a retention window.
//
// The cache is advisory: every store failure is reported as [shared.ErrCacheUnavailable] and callers fall back to live matching.
package matchcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/shared"
)

// DefaultTimeout bounds a single lookup when none is configured.
const DefaultTimeout = 3 * time.Second

// Store is the subset of [models.Store] the cache needs.
type Store interface {
	GetMatchCache(ctx context.Context, key string) (*models.MatchCacheEntry, error)
	UpsertMatchCache(ctx context.Context, entry *models.MatchCacheEntry) error
	PurgeNegativeCache(ctx context.Context, olderThan time.Time) (int64, error)
}

// Result is a cached match decision.
type Result struct {
	VideoID    string  // empty for a cached negative
	Confidence float64 // 1.0 for positives, 0 for negatives
	Cached     bool
}

// Found reports whether the decision names a video.
func (r *Result) Found() bool {
	return r != nil && r.VideoID != ""
}

// Cache wraps a [Store] with key composition, timeouts and error classification.
type Cache struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
}

// New creates a cache whose lookups are bounded by timeout (DefaultTimeout when not positive).
func New(store Store, timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Cache{store: store, timeout: timeout, now: time.Now}
}

// Lookup returns the cached decision for fingerprint under version, or nil when there is none.
func (c *Cache) Lookup(ctx context.Context, fingerprint, version string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	entry, err := c.store.GetMatchCache(ctx, models.CacheKey(fingerprint, version))
	if err != nil {
		return nil, unavailable("lookup", err)
	}
	if entry == nil {
		return nil, nil
	}

	if entry.Negative() {
		return &Result{Cached: true}, nil
	}
	return &Result{VideoID: entry.VideoID, Confidence: 1.0, Cached: true}, nil
}

// StorePositive records that fingerprint matches videoID.
func (c *Cache) StorePositive(ctx context.Context, fingerprint, version, videoID string) error {
	if videoID == "" || videoID == models.NoMatch {
		return fmt.Errorf("%w: positive entry needs a video id", shared.ErrInvalidInput)
	}
	return c.put(ctx, fingerprint, version, videoID)
}

// StoreNegative records that fingerprint has no acceptable match.
func (c *Cache) StoreNegative(ctx context.Context, fingerprint, version string) error {
	return c.put(ctx, fingerprint, version, models.NoMatch)
}

func (c *Cache) put(ctx context.Context, fingerprint, version, videoID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	entry := &models.MatchCacheEntry{CacheKey: models.CacheKey(fingerprint, version), VideoID: videoID}
	if err := c.store.UpsertMatchCache(ctx, entry); err != nil {
		return unavailable("store", err)
	}
	return nil
}

// PurgeExpiredNegatives deletes negatives older than retention and reports how many were removed.
func (c *Cache) PurgeExpiredNegatives(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := c.store.PurgeNegativeCache(ctx, c.now().Add(-retention))
	if err != nil {
		return 0, unavailable("purge", err)
	}
	return n, nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, shared.ErrCacheUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", shared.ErrCacheUnavailable, op, err)
}
