package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/beatq/internal/fingerprint"
	"github.com/desertthunder/beatq/internal/matcher"
	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/services"
	"github.com/desertthunder/beatq/internal/shared"
	"github.com/desertthunder/beatq/internal/storage"
)

// Defaults applied when [Options] leaves a field zero.
const (
	DefaultMatchWorkers      = 2
	DefaultDownloadWorkers   = 3
	DefaultTrustThreshold    = 0.6
	DefaultBackoff           = 2 * time.Second
	DefaultPollInterval      = 2 * time.Second
	DefaultProgressInterval  = 500 * time.Millisecond
	DefaultNegativeRetention = 7 * 24 * time.Hour
	DefaultPurgeInterval     = time.Hour
	maxBackoff               = 5 * time.Minute
)

// errStale marks a job whose track moved on before the worker got to it.
var errStale = errors.New("track no longer eligible")

// Matcher decides which video a track maps to.
type Matcher interface {
	Match(ctx context.Context, track *models.Track) (matcher.Result, error)
	StorePositive(ctx context.Context, fingerprint, videoID string)
}

// StreamCache resolves and prefetches stream URLs.
type StreamCache interface {
	Resolve(ctx context.Context, videoID string) (string, error)
	Prefetch(videoID string)
	Run(ctx context.Context)
	Sweep() int
}

// NegativePurger drops NO_MATCH cache entries older than retention.
type NegativePurger interface {
	PurgeExpiredNegatives(ctx context.Context, retention time.Duration) (int64, error)
}

// Deps are the collaborators of an [Orchestrator]. Purger is optional.
type Deps struct {
	Store   models.Store
	Matcher Matcher
	Streams StreamCache
	Fetcher Fetcher
	Sink    storage.Sink
	Purger  NegativePurger
}

// Options tunes an [Orchestrator].
type Options struct {
	MatchWorkers      int
	DownloadWorkers   int
	TrustThreshold    float64 // minimum confidence for MATCHED
	ManualReview      bool    // send low-confidence matches to the user instead of downloading them
	MaxRetries        int     // automatic retries of a failed download, 0 disables
	Backoff           time.Duration
	PollInterval      time.Duration
	ProgressInterval  time.Duration
	NegativeRetention time.Duration
	PurgeInterval     time.Duration
	Updates           chan<- ProgressUpdate // optional, never blocks the pipeline
}

// TrackRequest is one extracted track to submit.
type TrackRequest struct {
	Title        string
	Artist       string
	Album        string
	Duration     *int
	ThumbnailURL string
}

// BatchRequest is an extracted playlist to submit as a batch.
type BatchRequest struct {
	Name     string
	URL      string
	Platform models.SourcePlatform
	Tracks   []TrackRequest
}

// RequestFromPlaylist converts an extracted playlist into a [BatchRequest].
func RequestFromPlaylist(p *services.Playlist) BatchRequest {
	req := BatchRequest{Name: p.Name, URL: p.URL, Platform: p.Platform, Tracks: make([]TrackRequest, len(p.Tracks))}
	for i, t := range p.Tracks {
		req.Tracks[i] = TrackRequest{
			Title:        t.Title,
			Artist:       t.Artist,
			Album:        t.Album,
			Duration:     t.DurationPtr(),
			ThumbnailURL: t.ThumbnailURL,
		}
	}
	return req
}

type job struct {
	trackID string
	batchID string
}

// Orchestrator drives tracks from extraction to download and is the only writer of track transitions.
//
// Every transition runs under the owning batch's lock: load the batch with its tracks, apply the change, write the tracks,
// recompute the batch from the same snapshot and write it once.
type Orchestrator struct {
	store   models.Store
	matcher Matcher
	streams StreamCache
	fetcher Fetcher
	sink    storage.Sink
	purger  NegativePurger
	opts    Options
	logger  *log.Logger
	now     func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	matching  *flights
	downloads *flights

	backoffMu sync.Mutex
	notBefore map[string]time.Time

	matchNotify    chan struct{}
	downloadNotify chan struct{}

	started atomic.Bool
	wg      sync.WaitGroup
}

// New creates an orchestrator. Nothing runs until [Orchestrator.Start].
func New(deps Deps, opts Options, logger *log.Logger) *Orchestrator {
	if opts.MatchWorkers <= 0 {
		opts.MatchWorkers = DefaultMatchWorkers
	}
	if opts.DownloadWorkers <= 0 {
		opts.DownloadWorkers = DefaultDownloadWorkers
	}
	if opts.TrustThreshold <= 0 {
		opts.TrustThreshold = DefaultTrustThreshold
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.NegativeRetention <= 0 {
		opts.NegativeRetention = DefaultNegativeRetention
	}
	if opts.PurgeInterval <= 0 {
		opts.PurgeInterval = DefaultPurgeInterval
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Orchestrator{
		store:          deps.Store,
		matcher:        deps.Matcher,
		streams:        deps.Streams,
		fetcher:        deps.Fetcher,
		sink:           deps.Sink,
		purger:         deps.Purger,
		opts:           opts,
		logger:         shared.WithLogger(logger, "component", "orchestrator"),
		now:            time.Now,
		locks:          make(map[string]*sync.Mutex),
		matching:       newFlights(),
		downloads:      newFlights(),
		notBefore:      make(map[string]time.Time),
		matchNotify:    make(chan struct{}, 1),
		downloadNotify: make(chan struct{}, 1),
	}
}

// Submit stores a new batch with its tracks in one transaction. Tracks start EXTRACTED and are picked up by the match lane.
func (o *Orchestrator) Submit(ctx context.Context, req BatchRequest) (*models.Batch, error) {
	if !req.Platform.Valid() {
		return nil, fmt.Errorf("%w: unknown platform %q", shared.ErrInvalidInput, req.Platform)
	}

	batch := models.NewBatch(req.Name, req.URL)
	batch.ID = shared.GenerateID()

	tracks := make([]*models.Track, 0, len(req.Tracks))
	for i, tr := range req.Tracks {
		if strings.TrimSpace(tr.Title) == "" {
			o.logger.Warn("skipping track without title", "position", i+1)
			continue
		}
		t := models.NewTrack(i+1, tr.Title, tr.Artist, tr.Duration, req.Platform)
		t.ID = shared.GenerateID()
		t.BatchID = batch.ID
		t.Album = tr.Album
		t.ThumbnailURL = tr.ThumbnailURL
		t.Fingerprint = fingerprint.Generate(tr.Title, tr.Artist, tr.Duration)
		tracks = append(tracks, t)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: playlist %q has no tracks", shared.ErrInvalidInput, req.Name)
	}

	Recompute(batch, tracks)
	if err := o.store.CreateBatch(ctx, batch, tracks); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	o.logger.Info("batch submitted", "batch", batch.ID, "name", batch.SourceName, "tracks", batch.TotalTracks)
	o.send(submittedUpdate(batch))
	notify(o.matchNotify)
	return batch, nil
}

// Status returns a batch with all of its tracks.
func (o *Orchestrator) Status(ctx context.Context, batchID string) (*models.BatchWithTracks, error) {
	return o.store.GetBatchWithTracks(ctx, batchID)
}

// Batches lists all batches, newest first.
func (o *Orchestrator) Batches(ctx context.Context) ([]*models.Batch, error) {
	return o.store.ListBatches(ctx)
}

// Track returns a single track.
func (o *Orchestrator) Track(ctx context.Context, trackID string) (*models.Track, error) {
	return o.store.GetTrack(ctx, trackID)
}

// Cancel stops a batch: in-flight downloads are aborted, every unfinished track fails with CANCELLED and nothing more is dispatched.
// Cancelling a finished or already cancelled batch is a no-op. Match and stream caches are left alone.
func (o *Orchestrator) Cancel(ctx context.Context, batchID string) error {
	stopped := 0
	bt, err := o.mutate(ctx, batchID, func(bt *models.BatchWithTracks) ([]*models.Track, error) {
		if bt.Batch.Cancelled() || bt.Batch.State.Terminal() {
			return nil, errStale
		}
		now := o.now()
		bt.Batch.CancelledAt = &now

		var changed []*models.Track
		for _, t := range bt.Tracks {
			if t.Status.Terminal() {
				continue
			}
			if err := Fail(t, models.ErrorCancelled); err != nil {
				return nil, err
			}
			changed = append(changed, t)
		}
		stopped = len(changed)
		o.downloads.cancelBatch(batchID)
		return changed, nil
	})
	if errors.Is(err, errStale) {
		return nil
	}
	if err != nil {
		return err
	}

	o.logger.Info("batch cancelled", "batch", batchID, "stopped", stopped)
	o.send(cancelledUpdate(bt.Batch, stopped))
	return nil
}

// ResolveManual assigns videoID to a track awaiting a manual match and queues it for download.
// The choice is recorded with full confidence and written to the match cache.
func (o *Orchestrator) ResolveManual(ctx context.Context, trackID, videoID string) error {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return fmt.Errorf("%w: video id is required", shared.ErrInvalidInput)
	}

	track, err := o.store.GetTrack(ctx, trackID)
	if err != nil {
		return err
	}

	bt, err := o.mutate(ctx, track.BatchID, func(bt *models.BatchWithTracks) ([]*models.Track, error) {
		t, err := manualTrack(bt, trackID)
		if err != nil {
			return nil, err
		}
		conf := 1.0
		t.VideoID = videoID
		t.MatchConfidence = &conf
		t.ErrorCode = models.ErrorNone
		return []*models.Track{t}, o.handOff(ctx, t)
	})
	if err != nil {
		return err
	}

	o.matcher.StorePositive(ctx, track.Fingerprint, videoID)
	o.send(trackUpdate(Queued, bt.Batch, bt.Find(trackID)))
	notify(o.downloadNotify)
	return nil
}

// Skip gives up on a track awaiting a manual match.
func (o *Orchestrator) Skip(ctx context.Context, trackID string) error {
	track, err := o.store.GetTrack(ctx, trackID)
	if err != nil {
		return err
	}

	bt, err := o.mutate(ctx, track.BatchID, func(bt *models.BatchWithTracks) ([]*models.Track, error) {
		t, err := manualTrack(bt, trackID)
		if err != nil {
			return nil, err
		}
		return []*models.Track{t}, Fail(t, models.ErrorUserSkipped)
	})
	if err != nil {
		return err
	}

	o.send(trackUpdate(Failed, bt.Batch, bt.Find(trackID)))
	return nil
}

// Retry queues a failed track for another download attempt. The track must have a matched video.
func (o *Orchestrator) Retry(ctx context.Context, trackID string) error {
	track, err := o.store.GetTrack(ctx, trackID)
	if err != nil {
		return err
	}

	bt, err := o.mutate(ctx, track.BatchID, func(bt *models.BatchWithTracks) ([]*models.Track, error) {
		if bt.Batch.Cancelled() {
			return nil, fmt.Errorf("%w: %s", shared.ErrBatchCancelled, bt.Batch.ID)
		}
		t := bt.Find(trackID)
		if t == nil {
			return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, trackID)
		}
		if t.Status != models.TrackFailed {
			return nil, fmt.Errorf("%w: track %s is %s, only failed tracks can be retried", shared.ErrInvalidTransition, t.ID, t.Status)
		}
		if t.VideoID == "" {
			return nil, fmt.Errorf("%w: %s", shared.ErrNoVideo, t.Label())
		}
		return []*models.Track{t}, requeue(bt.Batch, t)
	})
	if err != nil {
		return err
	}

	o.clearBackoff(trackID)
	o.send(trackUpdate(Retrying, bt.Batch, bt.Find(trackID)))
	notify(o.downloadNotify)
	return nil
}

// Delete removes a finished batch and its tracks.
func (o *Orchestrator) Delete(ctx context.Context, batchID string) error {
	unlock := o.lock(batchID)
	defer unlock()

	batch, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if !batch.State.Terminal() {
		return fmt.Errorf("%w: batch %s is %s, cancel it first", shared.ErrInvalidInput, batchID, batch.State)
	}
	return o.store.DeleteBatch(ctx, batchID)
}

// Start resets tracks interrupted by a previous run and launches the match, download, prefetch and maintenance lanes.
// They stop when ctx is done; use [Orchestrator.Wait] to block until they have.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return fmt.Errorf("orchestrator already started")
	}

	n, err := o.store.ResetStalled(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset stalled tracks: %w", err)
	}
	if n > 0 {
		o.logger.Info("resumed interrupted tracks", "count", n)
	}
	if err := o.refreshBatches(ctx); err != nil {
		return err
	}

	o.wg.Add(4)
	go func() {
		defer o.wg.Done()
		o.streams.Run(ctx)
	}()
	go o.matchLoop(ctx)
	go o.downloadLoop(ctx)
	go o.maintenanceLoop(ctx)

	o.logger.Debug("orchestrator started", "match_workers", o.opts.MatchWorkers, "download_workers", o.opts.DownloadWorkers)
	return nil
}

// Wait blocks until every lane started by [Orchestrator.Start] has stopped.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Idle reports whether no work is running or waiting. Tracks awaiting a manual match do not count as work.
func (o *Orchestrator) Idle(ctx context.Context) bool {
	if o.matching.len() > 0 || o.downloads.len() > 0 {
		return false
	}
	pending, err := o.store.ListTracksByStatus(ctx,
		models.TrackExtracted,
		models.TrackMatching,
		models.TrackMatched,
		models.TrackMatchedLowConfidence,
		models.TrackDispatching,
		models.TrackQueued,
		models.TrackDownloading,
	)
	return err == nil && len(pending) == 0
}

// PurgeNegatives drops expired NO_MATCH cache entries and expired stream URLs.
func (o *Orchestrator) PurgeNegatives(ctx context.Context) (int64, error) {
	if swept := o.streams.Sweep(); swept > 0 {
		o.logger.Debug("swept expired stream urls", "count", swept)
	}
	if o.purger == nil {
		return 0, nil
	}

	n, err := o.purger.PurgeExpiredNegatives(ctx, o.opts.NegativeRetention)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		o.logger.Info("purged negative match cache entries", "count", n)
	}
	return n, nil
}

// mutate runs fn against a fresh snapshot of the batch under its lock, writes the returned tracks, then recomputes and writes the batch.
// Nothing is written when fn fails.
func (o *Orchestrator) mutate(ctx context.Context, batchID string, fn func(bt *models.BatchWithTracks) ([]*models.Track, error)) (*models.BatchWithTracks, error) {
	unlock := o.lock(batchID)
	defer unlock()

	bt, err := o.store.GetBatchWithTracks(ctx, batchID)
	if err != nil {
		return nil, err
	}

	changed, err := fn(bt)
	if err != nil {
		return bt, err
	}
	for _, t := range changed {
		if err := o.store.UpdateTrack(ctx, t); err != nil {
			return bt, err
		}
	}

	Recompute(bt.Batch, bt.Tracks)
	if err := o.store.UpdateBatch(ctx, bt.Batch); err != nil {
		return bt, err
	}
	return bt, nil
}

func (o *Orchestrator) lock(batchID string) func() {
	o.locksMu.Lock()
	m, ok := o.locks[batchID]
	if !ok {
		m = &sync.Mutex{}
		o.locks[batchID] = m
	}
	o.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

func (o *Orchestrator) refreshBatches(ctx context.Context) error {
	batches, err := o.store.ListBatches(ctx)
	if err != nil {
		return fmt.Errorf("failed to list batches: %w", err)
	}
	for _, b := range batches {
		if b.State.Terminal() {
			continue
		}
		if _, err := o.mutate(ctx, b.ID, func(*models.BatchWithTracks) ([]*models.Track, error) { return nil, nil }); err != nil {
			o.logger.Warn("failed to refresh batch", "batch", b.ID, "error", err)
		}
	}
	return nil
}

// handOff moves a matched track through DISPATCHING to QUEUED, starting a prefetch on the way.
// Only DISPATCHING is written here, so an interrupted hand-off resumes as QUEUED after a restart. The caller writes QUEUED.
func (o *Orchestrator) handOff(ctx context.Context, t *models.Track) error {
	if err := Transition(t, models.TrackDispatching); err != nil {
		return err
	}
	if err := o.store.UpdateTrack(ctx, t); err != nil {
		return err
	}
	o.streams.Prefetch(t.VideoID)
	return Transition(t, models.TrackQueued)
}

// requeue records a retried failure: FAILED back to QUEUED with the retry counted on the track and the batch.
func requeue(b *models.Batch, t *models.Track) error {
	if err := Transition(t, models.TrackQueued); err != nil {
		return err
	}
	t.RetryCount++
	b.TotalRetries++
	t.ErrorCode = models.ErrorNone
	t.OutputPath = ""
	t.ClearProgress()
	return nil
}

func manualTrack(bt *models.BatchWithTracks, trackID string) (*models.Track, error) {
	if bt.Batch.Cancelled() {
		return nil, fmt.Errorf("%w: %s", shared.ErrBatchCancelled, bt.Batch.ID)
	}
	t := bt.Find(trackID)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, trackID)
	}
	if t.Status != models.TrackMatchingManual {
		return nil, fmt.Errorf("%w: track %s is %s, not awaiting a manual match", shared.ErrInvalidTransition, t.ID, t.Status)
	}
	return t, nil
}

func (o *Orchestrator) setBackoff(trackID string, attempt int) time.Duration {
	delay := o.opts.Backoff << max(attempt-1, 0)
	if delay <= 0 || delay > maxBackoff {
		delay = maxBackoff
	}

	o.backoffMu.Lock()
	o.notBefore[trackID] = o.now().Add(delay)
	o.backoffMu.Unlock()
	return delay
}

func (o *Orchestrator) backingOff(trackID string) bool {
	o.backoffMu.Lock()
	defer o.backoffMu.Unlock()

	until, ok := o.notBefore[trackID]
	if !ok {
		return false
	}
	if !o.now().Before(until) {
		delete(o.notBefore, trackID)
		return false
	}
	return true
}

func (o *Orchestrator) clearBackoff(trackID string) {
	o.backoffMu.Lock()
	delete(o.notBefore, trackID)
	o.backoffMu.Unlock()
}

// send reports an update without blocking; updates are dropped when nobody keeps up.
func (o *Orchestrator) send(u ProgressUpdate) {
	if o.opts.Updates == nil {
		return
	}
	select {
	case o.opts.Updates <- u:
	default:
	}
}

func (o *Orchestrator) logSkip(err error, op string, j job) {
	if errors.Is(err, errStale) || errors.Is(err, context.Canceled) {
		o.logger.Debug("skipped", "op", op, "track", j.trackID, "reason", err)
		return
	}
	o.logger.Warn("transition failed", "op", op, "track", j.trackID, "batch", j.batchID, "error", err)
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
