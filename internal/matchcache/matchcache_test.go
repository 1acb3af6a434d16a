package matchcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/shared"
)

// memoryStore is an in-memory Store with error injection and an optional stall.
type memoryStore struct {
	mu       sync.Mutex
	entries  map[string]*models.MatchCacheEntry
	getErr   error
	putErr   error
	stall    bool
	purgedAt time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]*models.MatchCacheEntry)}
}

func (m *memoryStore) GetMatchCache(ctx context.Context, key string) (*models.MatchCacheEntry, error) {
	if m.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.entries[key], nil
}

func (m *memoryStore) UpsertMatchCache(_ context.Context, entry *models.MatchCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	e := *entry
	e.CreatedAt = time.Now()
	m.entries[entry.CacheKey] = &e
	return nil
}

func (m *memoryStore) PurgeNegativeCache(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgedAt = olderThan
	var n int64
	for k, e := range m.entries {
		if e.Negative() && e.CreatedAt.Before(olderThan) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func TestCache(t *testing.T) {
	ctx := context.Background()

	t.Run("Miss", func(t *testing.T) {
		c := New(newMemoryStore(), time.Second)
		got, err := c.Lookup(ctx, "fp", "v1")
		if err != nil || got != nil {
			t.Fatalf("expected nil miss, got %+v, %v", got, err)
		}
	})

	t.Run("Positive", func(t *testing.T) {
		store := newMemoryStore()
		c := New(store, time.Second)
		if err := c.StorePositive(ctx, "fp", "v1", "vid"); err != nil {
			t.Fatalf("failed to store: %v", err)
		}

		if _, ok := store.entries["fp:v1"]; !ok {
			t.Error("expected key composed as fingerprint:version")
		}

		got, err := c.Lookup(ctx, "fp", "v1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Found() || got.VideoID != "vid" || got.Confidence != 1.0 || !got.Cached {
			t.Errorf("unexpected positive result: %+v", got)
		}
	})

	t.Run("Negative", func(t *testing.T) {
		c := New(newMemoryStore(), time.Second)
		if err := c.StoreNegative(ctx, "fp", "v1"); err != nil {
			t.Fatalf("failed to store: %v", err)
		}

		got, err := c.Lookup(ctx, "fp", "v1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == nil || got.Found() || got.Confidence != 0 || !got.Cached {
			t.Errorf("unexpected negative result: %+v", got)
		}
	})

	t.Run("Version Isolates Entries", func(t *testing.T) {
		c := New(newMemoryStore(), time.Second)
		if err := c.StorePositive(ctx, "fp", "v1", "vid"); err != nil {
			t.Fatalf("failed to store: %v", err)
		}
		if got, _ := c.Lookup(ctx, "fp", "v2"); got != nil {
			t.Errorf("expected miss under a new version, got %+v", got)
		}
	})

	t.Run("Positive Requires Video", func(t *testing.T) {
		c := New(newMemoryStore(), time.Second)
		for _, id := range []string{"", models.NoMatch} {
			if err := c.StorePositive(ctx, "fp", "v1", id); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput for %q, got %v", id, err)
			}
		}
	})

	t.Run("Store Errors Are Unavailable", func(t *testing.T) {
		store := newMemoryStore()
		store.getErr = errors.New("disk I/O error")
		store.putErr = errors.New("database is locked")
		c := New(store, time.Second)

		if _, err := c.Lookup(ctx, "fp", "v1"); !errors.Is(err, shared.ErrCacheUnavailable) {
			t.Errorf("expected ErrCacheUnavailable on lookup, got %v", err)
		}
		if err := c.StoreNegative(ctx, "fp", "v1"); !errors.Is(err, shared.ErrCacheUnavailable) {
			t.Errorf("expected ErrCacheUnavailable on store, got %v", err)
		}
	})

	t.Run("Lookup Times Out", func(t *testing.T) {
		store := newMemoryStore()
		store.stall = true
		c := New(store, 20*time.Millisecond)

		start := time.Now()
		_, err := c.Lookup(ctx, "fp", "v1")
		if !errors.Is(err, shared.ErrCacheUnavailable) {
			t.Errorf("expected ErrCacheUnavailable on timeout, got %v", err)
		}
		if time.Since(start) > time.Second {
			t.Error("lookup should be bounded by the configured timeout")
		}
	})

	t.Run("PurgeExpiredNegatives", func(t *testing.T) {
		store := newMemoryStore()
		c := New(store, time.Second)
		fixed := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
		c.now = func() time.Time { return fixed }

		store.entries["old:v1"] = &models.MatchCacheEntry{CacheKey: "old:v1", VideoID: models.NoMatch, CreatedAt: fixed.Add(-10 * 24 * time.Hour)}
		store.entries["new:v1"] = &models.MatchCacheEntry{CacheKey: "new:v1", VideoID: models.NoMatch, CreatedAt: fixed.Add(-time.Hour)}
		store.entries["pos:v1"] = &models.MatchCacheEntry{CacheKey: "pos:v1", VideoID: "vid", CreatedAt: fixed.Add(-30 * 24 * time.Hour)}

		n, err := c.PurgeExpiredNegatives(ctx, 7*24*time.Hour)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 purged, got %d", n)
		}
		if !store.purgedAt.Equal(fixed.Add(-7 * 24 * time.Hour)) {
			t.Errorf("expected cutoff now-retention, got %v", store.purgedAt)
		}
		if _, ok := store.entries["pos:v1"]; !ok {
			t.Error("positive entries must survive purge")
		}
	})

	t.Run("Default Timeout", func(t *testing.T) {
		if c := New(newMemoryStore(), 0); c.timeout != DefaultTimeout {
			t.Errorf("expected default timeout, got %v", c.timeout)
		}
	})
}
