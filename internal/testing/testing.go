// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/services"
	"github.com/desertthunder/beatq/internal/shared"
)

// MockStore is an in-memory [models.Store]. Records are copied in and out so callers never share state with the store.
type MockStore struct {
	mu       sync.Mutex
	batches  map[string]models.Batch
	tracks   map[string]models.Track
	cache    map[string]models.MatchCacheEntry
	sequence int

	CreateErr error // returned by CreateBatch
	UpdateErr error // returned by UpdateTrack and UpdateBatch
	CacheErr  error // returned by match cache methods
}

var _ models.Store = (*MockStore)(nil)

func NewMockStore() *MockStore {
	return &MockStore{
		batches: make(map[string]models.Batch),
		tracks:  make(map[string]models.Track),
		cache:   make(map[string]models.MatchCacheEntry),
	}
}

func (m *MockStore) CreateBatch(ctx context.Context, batch *models.Batch, tracks []*models.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}

	m.sequence++
	batch.Sequence = m.sequence
	batch.TotalTracks = len(tracks)
	m.batches[batch.ID] = *batch
	for _, t := range tracks {
		m.sequence++
		t.BatchID = batch.ID
		t.Sequence = m.sequence
		m.tracks[t.ID] = *t
	}
	return nil
}

func (m *MockStore) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, shared.ErrBatchNotFound
	}
	return &b, nil
}

func (m *MockStore) UpdateBatch(ctx context.Context, batch *models.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	if _, ok := m.batches[batch.ID]; !ok {
		return shared.ErrBatchNotFound
	}
	batch.UpdatedAt = time.Now()
	m.batches[batch.ID] = *batch
	return nil
}

func (m *MockStore) ListBatches(ctx context.Context) ([]*models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Batch, 0, len(m.batches))
	for _, b := range m.batches {
		b := b
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	return out, nil
}

func (m *MockStore) DeleteBatch(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[id]; !ok {
		return shared.ErrBatchNotFound
	}
	delete(m.batches, id)
	for tid, t := range m.tracks {
		if t.BatchID == id {
			delete(m.tracks, tid)
		}
	}
	return nil
}

func (m *MockStore) GetTrack(ctx context.Context, id string) (*models.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[id]
	if !ok {
		return nil, shared.ErrTrackNotFound
	}
	return &t, nil
}

func (m *MockStore) UpdateTrack(ctx context.Context, track *models.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	if _, ok := m.tracks[track.ID]; !ok {
		return shared.ErrTrackNotFound
	}
	track.UpdatedAt = time.Now()
	m.tracks[track.ID] = *track
	return nil
}

func (m *MockStore) ListTracksByBatch(ctx context.Context, batchID string) ([]*models.Track, error) {
	return m.listTracks(func(t models.Track) bool { return t.BatchID == batchID }), nil
}

func (m *MockStore) ListTracksByStatus(ctx context.Context, statuses ...models.TrackStatus) ([]*models.Track, error) {
	want := make(map[models.TrackStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	return m.listTracks(func(t models.Track) bool { return want[t.Status] }), nil
}

func (m *MockStore) GetBatchWithTracks(ctx context.Context, id string) (*models.BatchWithTracks, error) {
	b, err := m.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	tracks, _ := m.ListTracksByBatch(ctx, id)
	return &models.BatchWithTracks{Batch: b, Tracks: tracks}, nil
}

func (m *MockStore) GetMatchCache(ctx context.Context, key string) (*models.MatchCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CacheErr != nil {
		return nil, m.CacheErr
	}
	e, ok := m.cache[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *MockStore) UpsertMatchCache(ctx context.Context, entry *models.MatchCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CacheErr != nil {
		return m.CacheErr
	}
	m.cache[entry.CacheKey] = *entry
	return nil
}

func (m *MockStore) PurgeNegativeCache(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CacheErr != nil {
		return 0, m.CacheErr
	}
	var n int64
	for k, e := range m.cache {
		if e.Negative() && e.CreatedAt.Before(olderThan) {
			delete(m.cache, k)
			n++
		}
	}
	return n, nil
}

func (m *MockStore) CountMatchCache(ctx context.Context) (positive, negative int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CacheErr != nil {
		return 0, 0, m.CacheErr
	}
	for _, e := range m.cache {
		if e.Negative() {
			negative++
		} else {
			positive++
		}
	}
	return positive, negative, nil
}

func (m *MockStore) ResetStalled(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tracks {
		switch t.Status {
		case models.TrackMatching:
			t.Status = models.TrackExtracted
		case models.TrackMatched, models.TrackMatchedLowConfidence:
			if t.VideoID == "" {
				t.Status = models.TrackExtracted
			} else {
				t.Status = models.TrackQueued
				t.ClearProgress()
			}
		case models.TrackDispatching, models.TrackDownloading:
			t.Status = models.TrackQueued
			t.ClearProgress()
		default:
			continue
		}
		m.tracks[id] = t
		n++
	}
	return n, nil
}

// PutTrack overwrites a stored track, for arranging test state.
func (m *MockStore) PutTrack(t *models.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks[t.ID] = *t
}

// CacheEntries returns a copy of the match cache.
func (m *MockStore) CacheEntries() map[string]models.MatchCacheEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.MatchCacheEntry, len(m.cache))
	for k, v := range m.cache {
		out[k] = v
	}
	return out
}

func (m *MockStore) listTracks(keep func(models.Track) bool) []*models.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Track
	for _, t := range m.tracks {
		if keep(t) {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// MockResolver is a test double for [services.Resolver].
//
// Search returns Results keyed by exact query (nil for unknown queries). ResolveAudioURL returns "https://media.test/<id>".
type MockResolver struct {
	mu         sync.Mutex
	Results    map[string][]services.Candidate
	SearchErr  error
	ResolveErr error
	Queries    []string
	Resolved   []string
}

func (m *MockResolver) Search(ctx context.Context, query string, limit int) ([]services.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, query)
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	results := m.Results[query]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MockResolver) ResolveAudioURL(ctx context.Context, videoID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resolved = append(m.Resolved, videoID)
	if m.ResolveErr != nil {
		return "", m.ResolveErr
	}
	return "https://media.test/" + videoID, nil
}

// SearchCount returns how many searches ran.
func (m *MockResolver) SearchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Queries)
}

// MockSink is an in-memory storage sink.
type MockSink struct {
	mu      sync.Mutex
	Objects map[string][]byte
	PutErr  error
}

func NewMockSink() *MockSink {
	return &MockSink{Objects: make(map[string][]byte)}
}

func (m *MockSink) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return "", m.PutErr
	}
	m.Objects[key] = data
	return "mem://" + key, nil
}

// Keys returns the stored object keys.
func (m *MockSink) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.Objects))
	for k := range m.Objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// NewResponse builds an HTTP response with the given status and body.
func NewResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// WaitFor polls cond until it holds or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
