package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/beatq/internal/matcher"
	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/shared"
	"github.com/desertthunder/beatq/internal/storage"
)

type flight struct {
	batchID string
	cancel  context.CancelFunc
}

// flights is the set of tracks currently handed to a lane.
type flights struct {
	mu sync.Mutex
	m  map[string]*flight
}

func newFlights() *flights {
	return &flights{m: make(map[string]*flight)}
}

func (f *flights) claim(trackID, batchID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.m[trackID]; ok {
		return false
	}
	f.m[trackID] = &flight{batchID: batchID}
	return true
}

func (f *flights) setCancel(trackID string, cancel context.CancelFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fl, ok := f.m[trackID]; ok {
		fl.cancel = cancel
	}
}

func (f *flights) release(trackID string) {
	f.mu.Lock()
	delete(f.m, trackID)
	f.mu.Unlock()
}

func (f *flights) has(trackID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.m[trackID]
	return ok
}

func (f *flights) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.m)
}

// cancelBatch aborts every running flight of a batch and reports how many were stopped.
func (f *flights) cancelBatch(batchID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fl := range f.m {
		if fl.batchID == batchID && fl.cancel != nil {
			fl.cancel()
			n++
		}
	}
	return n
}

func (f *flights) batches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]struct{})
	var ids []string
	for _, fl := range f.m {
		if _, ok := seen[fl.batchID]; !ok {
			seen[fl.batchID] = struct{}{}
			ids = append(ids, fl.batchID)
		}
	}
	return ids
}

// runLane feeds a fixed pool of workers from dispatch, which runs on every notify and every poll tick.
func (o *Orchestrator) runLane(ctx context.Context, workers int, notifyCh <-chan struct{}, dispatch func(chan<- job), work func(job), onTick func()) {
	jobs := make(chan job)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				work(j)
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for {
		dispatch(jobs)
		select {
		case <-ctx.Done():
			return
		case <-notifyCh:
		case <-ticker.C:
			if onTick != nil {
				onTick()
			}
		}
	}
}

func (o *Orchestrator) matchLoop(ctx context.Context) {
	defer o.wg.Done()
	o.runLane(ctx, o.opts.MatchWorkers, o.matchNotify,
		func(jobs chan<- job) { o.dispatchMatches(ctx, jobs) },
		func(j job) { o.matchTrack(ctx, j) },
		nil,
	)
}

func (o *Orchestrator) downloadLoop(ctx context.Context) {
	defer o.wg.Done()
	o.runLane(ctx, o.opts.DownloadWorkers, o.downloadNotify,
		func(jobs chan<- job) { o.dispatchDownloads(ctx, jobs) },
		func(j job) { o.downloadTrack(ctx, j) },
		func() { o.reapCancelled(ctx) },
	)
}

func (o *Orchestrator) maintenanceLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.opts.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.PurgeNegatives(ctx); err != nil && ctx.Err() == nil {
				o.logger.Warn("negative cache purge failed", "error", err)
			}
		}
	}
}

// cancelledFilter reports whether a batch is cancelled (or gone), reading each batch at most once per dispatch round.
func (o *Orchestrator) cancelledFilter(ctx context.Context) func(string) bool {
	seen := make(map[string]bool)
	return func(batchID string) bool {
		if c, ok := seen[batchID]; ok {
			return c
		}
		b, err := o.store.GetBatch(ctx, batchID)
		c := err != nil || b.Cancelled()
		seen[batchID] = c
		return c
	}
}

// dispatchMatches hands EXTRACTED tracks to the match lane in insertion order.
func (o *Orchestrator) dispatchMatches(ctx context.Context, jobs chan<- job) {
	tracks, err := o.store.ListTracksByStatus(ctx, models.TrackExtracted)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("failed to list extracted tracks", "error", err)
		}
		return
	}

	cancelled := o.cancelledFilter(ctx)
	for _, t := range tracks {
		if o.matching.has(t.ID) || cancelled(t.BatchID) || !o.matching.claim(t.ID, t.BatchID) {
			continue
		}
		select {
		case jobs <- job{trackID: t.ID, batchID: t.BatchID}:
		case <-ctx.Done():
			o.matching.release(t.ID)
			return
		}
	}
}

// dispatchDownloads hands QUEUED tracks to the download lane in insertion order, skipping cancelled batches,
// tracks already in flight and tracks waiting out a retry backoff. The next few are prefetched.
func (o *Orchestrator) dispatchDownloads(ctx context.Context, jobs chan<- job) {
	tracks, err := o.store.ListTracksByStatus(ctx, models.TrackQueued)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("failed to list queued tracks", "error", err)
		}
		return
	}

	cancelled := o.cancelledFilter(ctx)
	ready := make([]*models.Track, 0, len(tracks))
	for _, t := range tracks {
		if o.downloads.has(t.ID) || o.backingOff(t.ID) || cancelled(t.BatchID) {
			continue
		}
		ready = append(ready, t)
	}

	for i, t := range ready {
		if i >= o.opts.DownloadWorkers*2 {
			break
		}
		o.streams.Prefetch(t.VideoID)
	}

	for _, t := range ready {
		if !o.downloads.claim(t.ID, t.BatchID) {
			continue
		}
		select {
		case jobs <- job{trackID: t.ID, batchID: t.BatchID}:
		case <-ctx.Done():
			o.downloads.release(t.ID)
			return
		}
	}
}

// reapCancelled aborts downloads of batches cancelled by another process.
func (o *Orchestrator) reapCancelled(ctx context.Context) {
	for _, id := range o.downloads.batches() {
		b, err := o.store.GetBatch(ctx, id)
		if err != nil || !b.Cancelled() {
			continue
		}
		if n := o.downloads.cancelBatch(id); n > 0 {
			o.logger.Info("aborted downloads of cancelled batch", "batch", id, "count", n)
		}
	}
}

func (o *Orchestrator) matchTrack(ctx context.Context, j job) {
	defer o.matching.release(j.trackID)

	var track models.Track
	_, err := o.mutate(ctx, j.batchID, func(bt *models.BatchWithTracks) ([]*models.Track, error) {
		t := bt.Find(j.trackID)
		if bt.Batch.Cancelled() || t == nil || t.Status != models.TrackExtracted {
			return nil, errStale
		}
		if err := Transition(t, models.TrackMatching); err != nil {
			return nil, err
		}
		track = *t
		return []*models.Track{t}, nil
	})
	if err != nil {
		o.logSkip(err, "match", j)
		return
	}

	res, matchErr := o.matcher.Match(ctx, &track)
	if ctx.Err() != nil {
		return
	}

	var phase Phase
	bt, err := o.mutate(ctx, j.batchID, func(bt *models.BatchWithTracks) ([]*models.Track, error) {
		t := bt.Find(j.trackID)
		if t == nil || t.Status != models.TrackMatching {
			return nil, errStale
		}
		var err error
		phase, err = o.applyMatch(ctx, t, res, matchErr)
		return []*models.Track{t}, err
	})
	if err != nil {
		o.logSkip(err, "match", j)
		return
	}

	t := bt.Find(j.trackID)
	o.logger.Debug("matched", "track", t.Label(), "status", t.Status, "video", t.VideoID, "confidence", t.Confidence(), "cached", res.Cached)
	o.send(trackUpdate(phase, bt.Batch, t))
	if t.Status == models.TrackQueued {
		notify(o.downloadNotify)
	}
}

// applyMatch turns a match outcome into the track's next status.
//
// A confident match is queued. A weaker one waits for the user when manual review is on. No match always waits for the user,
// since there is nothing to download. A search error fails the track.
func (o *Orchestrator) applyMatch(ctx context.Context, t *models.Track, res matcher.Result, matchErr error) (Phase, error) {
	if matchErr != nil {
		o.logger.Warn("match failed", "track", t.Label(), "error", matchErr)
		return Failed, Fail(t, models.ErrorResolveFailed)
	}

	if !res.Found() {
		conf := 0.0
		t.MatchConfidence = &conf
		t.ErrorCode = models.ErrorNoMatch
		if err := Transition(t, models.TrackMatchedLowConfidence); err != nil {
			return Failed, err
		}
		return AwaitingUser, Transition(t, models.TrackMatchingManual)
	}

	conf := res.Confidence
	t.VideoID = res.VideoID
	t.MatchConfidence = &conf

	if conf >= o.opts.TrustThreshold {
		if err := Transition(t, models.TrackMatched); err != nil {
			return Failed, err
		}
		return Queued, o.handOff(ctx, t)
	}

	if err := Transition(t, models.TrackMatchedLowConfidence); err != nil {
		return Failed, err
	}
	if o.opts.ManualReview {
		return AwaitingUser, Transition(t, models.TrackMatchingManual)
	}
	return Queued, o.handOff(ctx, t)
}

func (o *Orchestrator) downloadTrack(ctx context.Context, j job) {
	defer o.downloads.release(j.trackID)

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var track models.Track
	bt, err := o.mutate(ctx, j.batchID, func(bt *models.BatchWithTracks) ([]*models.Track, error) {
		t := bt.Find(j.trackID)
		if bt.Batch.Cancelled() || t == nil || t.Status != models.TrackQueued {
			return nil, errStale
		}
		if err := Transition(t, models.TrackDownloading); err != nil {
			return nil, err
		}
		now := o.now()
		t.LastAttemptAt = &now
		t.ErrorCode = models.ErrorNone
		t.ClearProgress()
		o.downloads.setCancel(j.trackID, cancel)
		track = *t
		return []*models.Track{t}, nil
	})
	if err != nil {
		o.logSkip(err, "download", j)
		return
	}
	o.send(trackUpdate(Downloading, bt.Batch, &track))

	start := time.Now()
	location, size, code, err := o.fetchAndStore(dctx, &track, bt.Batch.SourceName)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		o.failDownload(ctx, j, code, err)
		return
	}
	o.completeDownload(ctx, j, location, size, time.Since(start))
}

// fetchAndStore resolves, downloads and stores one track. The error code tells which stage failed.
func (o *Orchestrator) fetchAndStore(ctx context.Context, t *models.Track, batchName string) (string, int64, models.ErrorCode, error) {
	url, err := o.streams.Resolve(ctx, t.VideoID)
	if err != nil {
		return "", 0, models.ErrorResolveFailed, err
	}

	stream, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", 0, models.ErrorDownloadFailed, err
	}
	defer stream.Body.Close()

	pr := newProgressReader(stream.Body, stream.Size, o.opts.ProgressInterval, func(n, total int64) {
		o.recordProgress(ctx, t.BatchID, t.ID, n, total)
	})
	key := storage.Key(batchName, t.Position, t.Artist, t.Title, storage.ExtensionFor(stream.ContentType))

	location, err := o.sink.Put(ctx, key, pr, stream.Size)
	if err != nil {
		if pr.err != nil {
			return "", pr.n, models.ErrorDownloadFailed, fmt.Errorf("%w: %v", shared.ErrDownloadFailed, pr.err)
		}
		return "", pr.n, models.ErrorStorageFailed, err
	}
	return location, pr.n, models.ErrorNone, nil
}

// recordProgress persists byte counts of a running download.
func (o *Orchestrator) recordProgress(ctx context.Context, batchID, trackID string, n, total int64) {
	unlock := o.lock(batchID)
	defer unlock()

	t, err := o.store.GetTrack(ctx, trackID)
	if err != nil || t.Status != models.TrackDownloading {
		return
	}
	t.SetProgress(n, total)
	if err := o.store.UpdateTrack(ctx, t); err != nil {
		o.logger.Debug("failed to record progress", "track", trackID, "error", err)
	}
}

func (o *Orchestrator) completeDownload(ctx context.Context, j job, location string, size int64, elapsed time.Duration) {
	bt, err := o.mutate(ctx, j.batchID, func(bt *models.BatchWithTracks) ([]*models.Track, error) {
		t := bt.Find(j.trackID)
		if t == nil || t.Status != models.TrackDownloading {
			return nil, errStale
		}
		if err := Transition(t, models.TrackCompleted); err != nil {
			return nil, err
		}
		t.OutputPath = location
		t.ErrorCode = models.ErrorNone
		t.SetProgress(size, size)

		completed := 0
		for _, other := range bt.Tracks {
			if other.Status == models.TrackCompleted {
				completed++
			}
		}
		speed := float64(size) / max(elapsed.Seconds(), 0.001)
		b := bt.Batch
		b.TotalBytesDownloaded += size
		b.AverageDownloadSpeed += (speed - b.AverageDownloadSpeed) / float64(completed)
		return []*models.Track{t}, nil
	})
	if err != nil {
		o.logSkip(err, "complete", j)
		return
	}

	t := bt.Find(j.trackID)
	o.logger.Info("downloaded", "track", t.Label(), "bytes", shared.FormatBytes(size), "path", location)
	o.send(trackUpdate(Completed, bt.Batch, t))
}

// failDownload records a failed attempt. Transient failures with retries left go straight back to QUEUED and wait out a backoff.
func (o *Orchestrator) failDownload(ctx context.Context, j job, code models.ErrorCode, cause error) {
	retryable := !errors.Is(cause, shared.ErrNoStreamURL)

	var delay time.Duration
	bt, err := o.mutate(ctx, j.batchID, func(bt *models.BatchWithTracks) ([]*models.Track, error) {
		t := bt.Find(j.trackID)
		if t == nil || t.Status != models.TrackDownloading {
			return nil, errStale
		}
		if err := Fail(t, code); err != nil {
			return nil, err
		}
		if retryable && !bt.Batch.Cancelled() && t.RetryCount < o.opts.MaxRetries {
			if err := requeue(bt.Batch, t); err != nil {
				return nil, err
			}
			delay = o.setBackoff(t.ID, t.RetryCount)
		}
		return []*models.Track{t}, nil
	})
	if err != nil {
		o.logSkip(err, "fail", j)
		return
	}

	t := bt.Find(j.trackID)
	if t.Status == models.TrackQueued {
		o.logger.Warn("download failed, retrying", "track", t.Label(), "code", code, "attempt", t.RetryCount, "backoff", delay, "error", cause)
		o.send(trackUpdate(Retrying, bt.Batch, t))
		time.AfterFunc(delay, func() { notify(o.downloadNotify) })
		return
	}

	o.logger.Error("download failed", "track", t.Label(), "code", code, "error", cause)
	o.send(trackUpdate(Failed, bt.Batch, t))
}
