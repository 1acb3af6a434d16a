package tasks

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/shared"
)

func TestCanTransition(t *testing.T) {
	tc := []struct {
		from models.TrackStatus
		to   models.TrackStatus
		want bool
	}{
		{models.TrackExtracted, models.TrackMatching, true},
		{models.TrackExtracted, models.TrackQueued, false},
		{models.TrackMatching, models.TrackMatched, true},
		{models.TrackMatching, models.TrackMatchedLowConfidence, true},
		{models.TrackMatching, models.TrackMatchingManual, true},
		{models.TrackMatching, models.TrackDispatching, false},
		{models.TrackMatched, models.TrackDispatching, true},
		{models.TrackMatched, models.TrackMatchingManual, false},
		{models.TrackMatchedLowConfidence, models.TrackMatchingManual, true},
		{models.TrackMatchedLowConfidence, models.TrackDispatching, true},
		{models.TrackMatchingManual, models.TrackDispatching, true},
		{models.TrackDispatching, models.TrackQueued, true},
		{models.TrackQueued, models.TrackDownloading, true},
		{models.TrackQueued, models.TrackCompleted, false},
		{models.TrackDownloading, models.TrackCompleted, true},
		{models.TrackDownloading, models.TrackFailed, true},
		{models.TrackFailed, models.TrackQueued, true},
		{models.TrackFailed, models.TrackFailed, false},
		{models.TrackCompleted, models.TrackFailed, false},
		{models.TrackCompleted, models.TrackQueued, false},
		{models.TrackExtracted, models.TrackFailed, true},
		{models.TrackMatchingManual, models.TrackFailed, true},
		{models.TrackQueued, models.TrackFailed, true},
	}

	for _, tt := range tc {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTransition(t *testing.T) {
	track := &models.Track{ID: "t1", Status: models.TrackQueued}

	err := Transition(track, models.TrackCompleted)
	if !errors.Is(err, shared.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if track.Status != models.TrackQueued {
		t.Errorf("status changed on rejected transition: %s", track.Status)
	}

	if err := Fail(track, models.ErrorCancelled); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if track.Status != models.TrackFailed || track.ErrorCode != models.ErrorCancelled {
		t.Errorf("unexpected track after Fail: %s %s", track.Status, track.ErrorCode)
	}
}

func TestDeriveBatchState(t *testing.T) {
	const (
		ex = models.TrackExtracted
		mg = models.TrackMatching
		md = models.TrackMatched
		lc = models.TrackMatchedLowConfidence
		mm = models.TrackMatchingManual
		dp = models.TrackDispatching
		qd = models.TrackQueued
		dl = models.TrackDownloading
		ok = models.TrackCompleted
		fl = models.TrackFailed
	)

	tc := []struct {
		name     string
		statuses []models.TrackStatus
		want     models.BatchState
	}{
		{"no tracks", nil, models.BatchExtracting},
		{"extracted wins", []models.TrackStatus{ok, dl, mm, mg, ex}, models.BatchExtracting},
		{"matching", []models.TrackStatus{ok, dl, mg, mm}, models.BatchMatching},
		{"matched counts as matching", []models.TrackStatus{md, qd}, models.BatchMatching},
		{"low confidence counts as matching", []models.TrackStatus{lc, ok}, models.BatchMatching},
		{"awaiting user", []models.TrackStatus{mm, dl, qd, ok}, models.BatchAwaitingUser},
		{"downloading", []models.TrackStatus{dl, qd, fl}, models.BatchDownloading},
		{"queued", []models.TrackStatus{qd, ok, fl}, models.BatchQueued},
		{"dispatching counts as queued", []models.TrackStatus{dp, ok}, models.BatchQueued},
		{"completed with failures", []models.TrackStatus{ok, fl, fl}, models.BatchCompleted},
		{"all failed", []models.TrackStatus{fl, fl}, models.BatchFailed},
		{"all completed", []models.TrackStatus{ok}, models.BatchCompleted},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveBatchState(tt.statuses); got != tt.want {
				t.Errorf("DeriveBatchState(%v) = %s, want %s", tt.statuses, got, tt.want)
			}
		})
	}
}

func TestDeriveBatchStateOrderIndependent(t *testing.T) {
	sets := [][]models.TrackStatus{
		{models.TrackCompleted, models.TrackFailed, models.TrackFailed, models.TrackCompleted},
		{models.TrackFailed, models.TrackFailed, models.TrackFailed},
		{models.TrackQueued, models.TrackDownloading, models.TrackMatchingManual, models.TrackCompleted},
		{models.TrackExtracted, models.TrackCompleted, models.TrackMatching},
	}

	rng := rand.New(rand.NewSource(42))
	for _, set := range sets {
		want := DeriveBatchState(set)
		for range 50 {
			shuffled := append([]models.TrackStatus(nil), set...)
			rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
			if got := DeriveBatchState(shuffled); got != want {
				t.Fatalf("order changed state: %v -> %s, %v -> %s", set, want, shuffled, got)
			}
		}
	}
}

func TestRecompute(t *testing.T) {
	track := func(status models.TrackStatus, code models.ErrorCode) *models.Track {
		return &models.Track{Status: status, ErrorCode: code}
	}

	tc := []struct {
		name          string
		cancelled     bool
		tracks        []*models.Track
		wantState     models.BatchState
		wantCode      models.ErrorCode
		wantCompleted int
		wantFailed    int
	}{
		{
			name:          "completed without failures",
			tracks:        []*models.Track{track(models.TrackCompleted, ""), track(models.TrackCompleted, "")},
			wantState:     models.BatchCompleted,
			wantCode:      models.ErrorNone,
			wantCompleted: 2,
		},
		{
			name: "most frequent failure code",
			tracks: []*models.Track{
				track(models.TrackCompleted, ""),
				track(models.TrackFailed, models.ErrorDownloadFailed),
				track(models.TrackFailed, models.ErrorNoMatch),
				track(models.TrackFailed, models.ErrorNoMatch),
			},
			wantState:     models.BatchCompleted,
			wantCode:      models.ErrorNoMatch,
			wantCompleted: 1,
			wantFailed:    3,
		},
		{
			name: "ties broken lexicographically",
			tracks: []*models.Track{
				track(models.TrackCompleted, ""),
				track(models.TrackFailed, models.ErrorUserSkipped),
				track(models.TrackFailed, models.ErrorDownloadFailed),
			},
			wantState:     models.BatchCompleted,
			wantCode:      models.ErrorDownloadFailed,
			wantCompleted: 1,
			wantFailed:    2,
		},
		{
			name:       "all failed",
			tracks:     []*models.Track{track(models.TrackFailed, models.ErrorDownloadFailed)},
			wantState:  models.BatchFailed,
			wantCode:   models.ErrorAllTracksFailed,
			wantFailed: 1,
		},
		{
			name:       "cancelled",
			cancelled:  true,
			tracks:     []*models.Track{track(models.TrackFailed, models.ErrorCancelled), track(models.TrackFailed, models.ErrorCancelled)},
			wantState:  models.BatchFailed,
			wantCode:   models.ErrorCancelled,
			wantFailed: 2,
		},
		{
			name:       "in progress",
			tracks:     []*models.Track{track(models.TrackDownloading, ""), track(models.TrackFailed, models.ErrorResolveFailed)},
			wantState:  models.BatchDownloading,
			wantCode:   models.ErrorResolveFailed,
			wantFailed: 1,
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			b := models.NewBatch("mix", "")
			if tt.cancelled {
				now := time.Now()
				b.CancelledAt = &now
			}
			Recompute(b, tt.tracks)

			if b.State != tt.wantState {
				t.Errorf("state = %s, want %s", b.State, tt.wantState)
			}
			if b.ErrorCode != tt.wantCode {
				t.Errorf("error code = %q, want %q", b.ErrorCode, tt.wantCode)
			}
			if b.CompletedCount != tt.wantCompleted || b.FailedCount != tt.wantFailed {
				t.Errorf("counts = %d/%d, want %d/%d", b.CompletedCount, b.FailedCount, tt.wantCompleted, tt.wantFailed)
			}
			if b.TotalTracks != len(tt.tracks) {
				t.Errorf("total = %d, want %d", b.TotalTracks, len(tt.tracks))
			}
		})
	}
}
