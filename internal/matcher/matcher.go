// Package matcher maps extracted tracks to videos on the resolver's platform.
//
// A match consults the persistent cache first. On a miss it searches (rate limited), broadens the query once when nothing comes back,
// scores every candidate and returns the best one. Confident winners are written back to the cache; empty searches are cached as negatives.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/beatq/internal/fingerprint"
	"github.com/desertthunder/beatq/internal/matchcache"
	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/services"
	"github.com/desertthunder/beatq/internal/shared"
	"golang.org/x/time/rate"
)

// Defaults applied when [Options] leaves a field zero.
const (
	DefaultVersion        = "v1"
	DefaultSearchLimit    = 10
	DefaultCacheThreshold = 0.75
	broadenTerm           = "audio"
)

// Searcher is the search half of [services.Resolver].
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]services.Candidate, error)
}

// Cache is the match cache contract used by the matcher.
type Cache interface {
	Lookup(ctx context.Context, fingerprint, version string) (*matchcache.Result, error)
	StorePositive(ctx context.Context, fingerprint, version, videoID string) error
	StoreNegative(ctx context.Context, fingerprint, version string) error
}

// Options configures a [Matcher].
type Options struct {
	Version        string
	SearchLimit    int
	CacheThreshold float64
	RateLimit      float64 // searches per second, 0 disables limiting
}

// Result is a match decision for one track.
type Result struct {
	VideoID    string  // empty when nothing matched
	Confidence float64 // 0 when nothing matched
	Cached     bool    // decision came from the cache
	Candidate  *services.Candidate
}

// Found reports whether a video was selected.
func (r Result) Found() bool {
	return r.VideoID != ""
}

// Matcher scores search candidates against tracks.
type Matcher struct {
	search  Searcher
	cache   Cache
	limiter *rate.Limiter
	opts    Options
	logger  *log.Logger
}

// New creates a matcher. cache may be nil to always search live.
func New(search Searcher, cache Cache, opts Options, logger *log.Logger) *Matcher {
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	if opts.CacheThreshold <= 0 {
		opts.CacheThreshold = DefaultCacheThreshold
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	return &Matcher{
		search:  search,
		cache:   cache,
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
		logger:  shared.WithLogger(logger, "component", "matcher"),
	}
}

// Version returns the matcher version used in cache keys.
func (m *Matcher) Version() string {
	return m.opts.Version
}

// Match finds the best video for track.
//
// A search failure is returned as an error and never recorded as a negative, since it says nothing about the track.
func (m *Matcher) Match(ctx context.Context, track *models.Track) (Result, error) {
	fp := track.Fingerprint
	if fp == "" {
		fp = fingerprint.Generate(track.Title, track.Artist, track.DurationSeconds)
	}

	if hit, ok := m.lookup(ctx, fp); ok {
		return hit, nil
	}

	query := Query{Title: track.Title, Artist: track.Artist, Duration: track.DurationSeconds}
	candidates, err := m.searchWithFallback(ctx, query)
	if err != nil {
		return Result{}, err
	}

	if len(candidates) == 0 {
		m.logger.Debug("no candidates", "track", track.Label())
		m.storeNegative(ctx, fp)
		return Result{}, nil
	}

	best := Rank(query, candidates)[0]
	result := Result{VideoID: best.Candidate.ID, Confidence: best.Score, Candidate: &best.Candidate}

	if best.Score >= m.opts.CacheThreshold {
		m.StorePositive(ctx, fp, best.Candidate.ID)
	}

	m.logger.Debug("matched", "track", track.Label(), "video", result.VideoID, "confidence", result.Confidence)
	return result, nil
}

// Candidates searches for track and returns every result ranked best first, for picking a video by hand.
// The cache is neither read nor written.
func (m *Matcher) Candidates(ctx context.Context, track *models.Track) ([]Scored, error) {
	query := Query{Title: track.Title, Artist: track.Artist, Duration: track.DurationSeconds}
	candidates, err := m.searchWithFallback(ctx, query)
	if err != nil {
		return nil, err
	}
	return Rank(query, candidates), nil
}

// lookup consults the cache, treating any cache failure as a miss.
func (m *Matcher) lookup(ctx context.Context, fp string) (Result, bool) {
	if m.cache == nil {
		return Result{}, false
	}

	hit, err := m.cache.Lookup(ctx, fp, m.opts.Version)
	if err != nil {
		m.logger.Warn("match cache unavailable, searching live", "error", err)
		return Result{}, false
	}
	if hit == nil {
		return Result{}, false
	}
	return Result{VideoID: hit.VideoID, Confidence: hit.Confidence, Cached: true}, true
}

// StorePositive records fp as matching videoID under the current version. Cache failures are logged, not returned.
func (m *Matcher) StorePositive(ctx context.Context, fp, videoID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.StorePositive(ctx, fp, m.opts.Version, videoID); err != nil {
		m.logger.Warn("match cache write failed", "video", videoID, "error", err)
	}
}

func (m *Matcher) storeNegative(ctx context.Context, fp string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.StoreNegative(ctx, fp, m.opts.Version); err != nil {
		m.logger.Warn("match cache write failed", "error", err)
	}
}

// searchWithFallback runs the primary query and, when it yields nothing, the broadened one.
// It fails only when no query produced a usable answer.
func (m *Matcher) searchWithFallback(ctx context.Context, q Query) ([]services.Candidate, error) {
	primary := q.Title + " " + q.Artist
	queries := []string{primary, primary + " " + broadenTerm}

	var errs []error
	for _, query := range queries {
		candidates, err := m.doSearch(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		if len(candidates) > 0 {
			return candidates, nil
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("search failed for %q: %w", primary, errors.Join(errs...))
	}
	return nil, nil
}

func (m *Matcher) doSearch(ctx context.Context, query string) ([]services.Candidate, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return m.search.Search(ctx, query, m.opts.SearchLimit)
}

// Scored pairs a candidate with its score.
type Scored struct {
	Candidate services.Candidate
	Score     float64
}

// Rank scores candidates and orders them best first.
//
// Ties on score prefer the smaller duration difference, then an official uploader, then more views. Remaining ties keep search order.
func Rank(q Query, candidates []services.Candidate) []Scored {
	ranked := make([]Scored, len(candidates))
	for i, c := range candidates {
		ranked[i] = Scored{Candidate: c, Score: Score(q, c)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if da, db := durationDelta(q.Duration, a.Candidate), durationDelta(q.Duration, b.Candidate); da != db {
			return da < db
		}
		if oa, ob := IsOfficial(a.Candidate), IsOfficial(b.Candidate); oa != ob {
			return oa
		}
		return a.Candidate.ViewCount > b.Candidate.ViewCount
	})
	return ranked
}

// durationDelta is the absolute duration difference, or a large sentinel when it cannot be computed.
func durationDelta(track *int, c services.Candidate) int {
	if track == nil || *track <= 0 || c.Duration <= 0 {
		return int(^uint(0) >> 1)
	}
	return absDiff(*track, c.Duration)
}
