package tasks

import (
	"fmt"
	"slices"

	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/shared"
)

// transitions lists the allowed forward edges per status. Failing a non-terminal track is always allowed and handled in [CanTransition].
var transitions = map[models.TrackStatus][]models.TrackStatus{
	models.TrackExtracted:            {models.TrackMatching},
	models.TrackMatching:             {models.TrackMatched, models.TrackMatchedLowConfidence, models.TrackMatchingManual},
	models.TrackMatched:              {models.TrackDispatching},
	models.TrackMatchedLowConfidence: {models.TrackDispatching, models.TrackMatchingManual},
	models.TrackMatchingManual:       {models.TrackDispatching},
	models.TrackDispatching:          {models.TrackQueued},
	models.TrackQueued:               {models.TrackDownloading},
	models.TrackDownloading:          {models.TrackCompleted, models.TrackFailed},
	models.TrackFailed:               {models.TrackQueued},
}

// CanTransition reports whether a track may move from one status to another.
func CanTransition(from, to models.TrackStatus) bool {
	if to == models.TrackFailed && !from.Terminal() {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// Transition moves t to status, or returns [shared.ErrInvalidTransition] leaving t untouched.
func Transition(t *models.Track, to models.TrackStatus) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s (track %s)", shared.ErrInvalidTransition, t.Status, to, t.ID)
	}
	t.Status = to
	return nil
}

// Fail moves t to FAILED with code.
func Fail(t *models.Track, code models.ErrorCode) error {
	if err := Transition(t, models.TrackFailed); err != nil {
		return err
	}
	t.ErrorCode = code
	return nil
}

// DeriveBatchState computes a batch state from its tracks' statuses.
//
// The least-finished track wins: EXTRACTING > MATCHING > AWAITING_USER > DOWNLOADING > QUEUED > terminal.
// The result does not depend on the order of statuses.
func DeriveBatchState(statuses []models.TrackStatus) models.BatchState {
	if len(statuses) == 0 {
		return models.BatchExtracting
	}

	var extracting, matching, awaiting, downloading, queued, completed bool
	for _, s := range statuses {
		switch s {
		case models.TrackExtracted:
			extracting = true
		case models.TrackMatching, models.TrackMatched, models.TrackMatchedLowConfidence:
			matching = true
		case models.TrackMatchingManual:
			awaiting = true
		case models.TrackDownloading:
			downloading = true
		case models.TrackDispatching, models.TrackQueued:
			queued = true
		case models.TrackCompleted:
			completed = true
		}
	}

	switch {
	case extracting:
		return models.BatchExtracting
	case matching:
		return models.BatchMatching
	case awaiting:
		return models.BatchAwaitingUser
	case downloading:
		return models.BatchDownloading
	case queued:
		return models.BatchQueued
	case completed:
		return models.BatchCompleted
	default:
		return models.BatchFailed
	}
}

// Recompute refreshes the derived fields of batch from one snapshot of its tracks: state, counts and error code.
func Recompute(batch *models.Batch, tracks []*models.Track) {
	statuses := make([]models.TrackStatus, len(tracks))
	codes := make(map[models.ErrorCode]int)
	completed, failed := 0, 0

	for i, t := range tracks {
		statuses[i] = t.Status
		switch t.Status {
		case models.TrackCompleted:
			completed++
		case models.TrackFailed:
			failed++
			if t.ErrorCode != models.ErrorNone {
				codes[t.ErrorCode]++
			}
		}
	}

	batch.TotalTracks = len(tracks)
	batch.CompletedCount = completed
	batch.FailedCount = failed
	batch.State = DeriveBatchState(statuses)
	batch.ErrorCode = batchErrorCode(batch, codes)
}

func batchErrorCode(batch *models.Batch, codes map[models.ErrorCode]int) models.ErrorCode {
	if batch.Cancelled() {
		return models.ErrorCancelled
	}
	if batch.State == models.BatchFailed {
		return models.ErrorAllTracksFailed
	}

	var best models.ErrorCode
	bestCount := 0
	for code, n := range codes {
		if n > bestCount || (n == bestCount && code < best) {
			best, bestCount = code, n
		}
	}
	return best
}
