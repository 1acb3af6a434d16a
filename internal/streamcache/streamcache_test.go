package streamcache

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/beatq/internal/shared"
)

type fakeResolver struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	// block, when set, holds the first call until closed
	block chan struct{}
}

func (f *fakeResolver) ResolveAudioURL(ctx context.Context, videoID string) (string, error) {
	n := f.calls.Add(1)
	if f.block != nil && n == 1 {
		<-f.block
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example.com/" + videoID, nil
}

func newTestCache(r Resolver, opts Options) *Cache {
	return New(r, opts, shared.NewLogger(io.Discard))
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("Caches Successful Resolution", func(t *testing.T) {
		r := &fakeResolver{}
		c := newTestCache(r, Options{})

		for range 3 {
			url, err := c.Resolve(ctx, "vid1")
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if url != "https://cdn.example.com/vid1" {
				t.Errorf("unexpected url %q", url)
			}
		}
		if got := r.calls.Load(); got != 1 {
			t.Errorf("expected 1 resolution, got %d", got)
		}
		if !c.IsPrefetched("vid1") {
			t.Error("expected vid1 to be cached")
		}
	})

	t.Run("Concurrent Callers Share One Resolution", func(t *testing.T) {
		r := &fakeResolver{delay: 50 * time.Millisecond}
		c := newTestCache(r, Options{})

		const n = 20
		var wg sync.WaitGroup
		start := make(chan struct{})
		errs := make(chan error, n)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, err := c.Resolve(ctx, "shared"); err != nil {
					errs <- err
				}
			}()
		}
		close(start)
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("Resolve failed: %v", err)
		}
		if got := r.calls.Load(); got != 1 {
			t.Errorf("expected exactly 1 underlying resolution, got %d", got)
		}
	})

	t.Run("Failures Are Not Cached", func(t *testing.T) {
		r := &fakeResolver{err: errors.New("boom")}
		c := newTestCache(r, Options{})

		if _, err := c.Resolve(ctx, "bad"); err == nil {
			t.Fatal("expected error")
		}
		if c.IsPrefetched("bad") {
			t.Error("failure should not be cached")
		}

		r.err = nil
		if _, err := c.Resolve(ctx, "bad"); err != nil {
			t.Fatalf("expected second attempt to succeed: %v", err)
		}
		if got := r.calls.Load(); got != 2 {
			t.Errorf("expected 2 resolutions, got %d", got)
		}
	})

	t.Run("Expired Entries Are Not Served", func(t *testing.T) {
		r := &fakeResolver{}
		c := newTestCache(r, Options{TTL: time.Minute})
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		c.now = func() time.Time { return now }

		if _, err := c.Resolve(ctx, "vid"); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}

		now = now.Add(59 * time.Second)
		if !c.IsPrefetched("vid") {
			t.Error("expected entry to be valid before ttl")
		}

		now = now.Add(time.Second)
		if c.IsPrefetched("vid") {
			t.Error("expected entry to expire at ttl")
		}
		if _, err := c.Resolve(ctx, "vid"); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if got := r.calls.Load(); got != 2 {
			t.Errorf("expected re-resolution after expiry, got %d calls", got)
		}
	})

	t.Run("Slow Own Resolution Is Not Duplicated", func(t *testing.T) {
		r := &fakeResolver{delay: 60 * time.Millisecond}
		c := newTestCache(r, Options{Wait: 10 * time.Millisecond})

		url, err := c.Resolve(ctx, "slow")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if url != "https://cdn.example.com/slow" {
			t.Errorf("unexpected url %q", url)
		}
		if got := r.calls.Load(); got != 1 {
			t.Errorf("expected a single resolution, got %d", got)
		}
	})

	t.Run("Empty Id", func(t *testing.T) {
		c := newTestCache(&fakeResolver{}, Options{})
		if _, err := c.Resolve(ctx, ""); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Empty URL", func(t *testing.T) {
		c := newTestCache(resolverFunc(func(context.Context, string) (string, error) { return "", nil }), Options{})
		if _, err := c.Resolve(ctx, "vid"); !errors.Is(err, shared.ErrNoStreamURL) {
			t.Errorf("expected ErrNoStreamURL, got %v", err)
		}
	})
}

type resolverFunc func(context.Context, string) (string, error)

func (f resolverFunc) ResolveAudioURL(ctx context.Context, id string) (string, error) { return f(ctx, id) }

func TestPrefetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeResolver{}
	c := newTestCache(r, Options{})
	go c.Run(ctx)

	c.Prefetch("p1")
	c.Prefetch("p1")

	deadline := time.Now().Add(2 * time.Second)
	for !c.IsPrefetched("p1") {
		if time.Now().After(deadline) {
			t.Fatal("prefetch did not complete")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.Prefetch("p1")
	if _, err := c.Resolve(ctx, "p1"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := r.calls.Load(); got != 1 {
		t.Errorf("expected a single resolution, got %d", got)
	}
}

func waitRunning(t *testing.T, c *Cache, id string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !c.isRunning(id) {
		if time.Now().After(deadline) {
			t.Fatalf("prefetch of %s never started", id)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestResolveBehindPrefetch(t *testing.T) {
	t.Run("Slow Prefetch Falls Back To Direct", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		r := &fakeResolver{block: make(chan struct{})}
		defer close(r.block)
		c := newTestCache(r, Options{Wait: 20 * time.Millisecond})
		go c.Run(ctx)

		c.Prefetch("slow")
		waitRunning(t, c, "slow")

		url, err := c.Resolve(ctx, "slow")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if url != "https://cdn.example.com/slow" {
			t.Errorf("unexpected url %q", url)
		}
		if got := r.calls.Load(); got != 2 {
			t.Errorf("expected prefetch and direct resolutions, got %d", got)
		}
	})

	t.Run("Failed Prefetch Falls Back To Direct", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		release := make(chan struct{})
		var calls atomic.Int32
		r := resolverFunc(func(_ context.Context, id string) (string, error) {
			if calls.Add(1) == 1 {
				<-release
				return "", errors.New("transient prefetch failure")
			}
			return "https://cdn.example.com/" + id, nil
		})
		c := newTestCache(r, Options{})
		go c.Run(ctx)

		c.Prefetch("v1")
		waitRunning(t, c, "v1")

		type result struct {
			url string
			err error
		}
		done := make(chan result, 1)
		go func() {
			url, err := c.Resolve(ctx, "v1")
			done <- result{url, err}
		}()

		time.Sleep(20 * time.Millisecond)
		close(release)

		select {
		case res := <-done:
			if res.err != nil {
				t.Fatalf("expected direct resolution to succeed, got %v", res.err)
			}
			if res.url != "https://cdn.example.com/v1" {
				t.Errorf("unexpected url %q", res.url)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Resolve did not return")
		}
		if got := calls.Load(); got != 2 {
			t.Errorf("expected failed prefetch then direct resolution, got %d calls", got)
		}
		if !c.IsPrefetched("v1") {
			t.Error("expected direct resolution to be cached")
		}
	})
}

func TestSweep(t *testing.T) {
	c := newTestCache(&fakeResolver{}, Options{TTL: time.Minute})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for _, id := range []string{"a", "b"} {
		if _, err := c.Resolve(context.Background(), id); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
	}
	now = now.Add(30 * time.Second)
	if _, err := c.Resolve(context.Background(), "c"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	now = now.Add(45 * time.Second)
	if n := c.Sweep(); n != 2 {
		t.Errorf("expected 2 swept, got %d", n)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 remaining, got %d", c.Len())
	}
}
