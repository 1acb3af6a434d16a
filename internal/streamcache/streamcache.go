// Package streamcache holds resolved stream URLs in memory and prefetches them ahead of downloads.
//
// Resolved URLs expire after a TTL, the only form of eviction, and are never persisted. At most one resolution per video id runs at a time:
// concurrent callers join the in-flight one through a [singleflight.Group]. Prefetches run on a single low-priority lane,
// and a caller stuck behind a slow or failed prefetch resolves directly instead.
package streamcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/beatq/internal/shared"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL          = time.Hour
	DefaultWait         = 30 * time.Second
	DefaultFetchTimeout = 2 * time.Minute
	prefetchQueueSize   = 256
)

// Resolver turns a video id into a playable URL.
type Resolver interface {
	ResolveAudioURL(ctx context.Context, videoID string) (string, error)
}

// Options configures a [Cache].
type Options struct {
	TTL          time.Duration // lifetime of a resolved URL
	Wait         time.Duration // how long Resolve waits on an in-flight prefetch before resolving directly
	FetchTimeout time.Duration // bound on a single shared resolution
}

type entry struct {
	url        string
	resolvedAt time.Time
}

// flight is the value shared by every caller of one resolution.
type flight struct {
	url      string
	prefetch bool // started by the prefetch lane
}

// Cache is the resolved-stream cache and prefetcher.
type Cache struct {
	resolver Resolver
	opts     Options
	logger   *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	pending map[string]struct{} // queued or running prefetches
	running map[string]struct{} // prefetches that own the in-flight resolution

	group singleflight.Group
	queue chan string
}

// New creates a cache over resolver. Prefetches are only served once [Cache.Run] is running.
func New(resolver Resolver, opts Options, logger *log.Logger) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Wait <= 0 {
		opts.Wait = DefaultWait
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Cache{
		resolver: resolver,
		opts:     opts,
		logger:   shared.WithLogger(logger, "component", "streamcache"),
		now:      time.Now,
		entries:  make(map[string]entry),
		pending:  make(map[string]struct{}),
		running:  make(map[string]struct{}),
		queue:    make(chan string, prefetchQueueSize),
	}
}

// Run serves the prefetch lane until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-c.queue:
			_, err, _ := c.group.Do(id, func() (any, error) {
				c.setRunning(id, true)
				defer c.setRunning(id, false)
				url, err := c.fetch(ctx, id)
				return flight{url: url, prefetch: true}, err
			})
			if err != nil {
				c.logger.Debug("prefetch failed", "video", id, "error", err)
			}

			c.mu.Lock()
			delete(c.pending, id)
			c.mu.Unlock()
		}
	}
}

// Prefetch schedules a background resolution of videoID.
// It is a no-op when the URL is cached or a prefetch is already pending, and drops the request when the lane is full.
func (c *Cache) Prefetch(videoID string) {
	if videoID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookupLocked(videoID); ok {
		return
	}
	if _, ok := c.pending[videoID]; ok {
		return
	}

	select {
	case c.queue <- videoID:
		c.pending[videoID] = struct{}{}
	default:
		c.logger.Debug("prefetch lane full, dropping", "video", videoID)
	}
}

// IsPrefetched reports whether a valid URL for videoID is cached.
func (c *Cache) IsPrefetched(videoID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookupLocked(videoID)
	return ok
}

// Resolve returns a playable URL for videoID.
//
// A cached URL is returned immediately. Otherwise the caller joins (or starts) the shared resolution. When that resolution
// belongs to the prefetch lane, the caller waits up to the configured bound and resolves directly if the prefetch is slow or
// fails. Failures are never cached.
func (c *Cache) Resolve(ctx context.Context, videoID string) (string, error) {
	if videoID == "" {
		return "", fmt.Errorf("%w: empty video id", shared.ErrInvalidInput)
	}
	if url, ok := c.get(videoID); ok {
		return url, nil
	}

	ch := c.group.DoChan(videoID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()
		url, err := c.fetch(fctx, videoID)
		return flight{url: url}, err
	})

	timer := time.NewTimer(c.opts.Wait)
	defer timer.Stop()

	select {
	case res := <-ch:
		return c.settle(ctx, videoID, res)
	case <-timer.C:
		if c.isRunning(videoID) {
			c.logger.Warn("prefetch slow, resolving directly", "video", videoID, "waited", c.opts.Wait)
			return c.fetch(ctx, videoID)
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}

	// The in-flight resolution is a direct one, bounded by the fetch timeout.
	select {
	case res := <-ch:
		return c.settle(ctx, videoID, res)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// settle unpacks a shared result. A failed prefetch is followed by one direct resolution.
func (c *Cache) settle(ctx context.Context, videoID string, res singleflight.Result) (string, error) {
	f, _ := res.Val.(flight)
	if res.Err == nil {
		return f.url, nil
	}
	if !f.prefetch {
		return "", res.Err
	}
	c.logger.Debug("prefetch failed, resolving directly", "video", videoID, "error", res.Err)
	return c.fetch(ctx, videoID)
}

// Sweep removes expired entries and reports how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of cached entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// fetch resolves videoID unless a concurrent caller already cached it, caching the URL on success.
func (c *Cache) fetch(ctx context.Context, videoID string) (string, error) {
	if url, ok := c.get(videoID); ok {
		return url, nil
	}

	url, err := c.resolver.ResolveAudioURL(ctx, videoID)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrNoStreamURL, videoID)
	}

	c.mu.Lock()
	c.entries[videoID] = entry{url: url, resolvedAt: c.now()}
	c.mu.Unlock()
	return url, nil
}

func (c *Cache) setRunning(videoID string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.running[videoID] = struct{}{}
	} else {
		delete(c.running, videoID)
	}
}

func (c *Cache) isRunning(videoID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.running[videoID]
	return ok
}

func (c *Cache) get(videoID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(videoID)
}

// lookupLocked returns a valid cached URL, evicting it when expired. c.mu must be held.
func (c *Cache) lookupLocked(videoID string) (string, bool) {
	e, ok := c.entries[videoID]
	if !ok {
		return "", false
	}
	if c.expired(e) {
		delete(c.entries, videoID)
		return "", false
	}
	return e.url, true
}

func (c *Cache) expired(e entry) bool {
	return c.now().Sub(e.resolvedAt) >= c.opts.TTL
}
