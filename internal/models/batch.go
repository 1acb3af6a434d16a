package models

import (
	"fmt"
	"time"
)

// Batch is one playlist import and the aggregate view of its tracks.
//
// State, CompletedCount, FailedCount and ErrorCode are derived from the tracks and recomputed by the orchestrator after every transition.
type Batch struct {
	ID                   string     `json:"id"`
	Sequence             int        `json:"sequence"`
	SourceName           string     `json:"source_name"`
	SourceURL            string     `json:"source_url"`
	TotalTracks          int        `json:"total_tracks"`
	CompletedCount       int        `json:"completed_count"`
	FailedCount          int        `json:"failed_count"`
	TotalBytesDownloaded int64      `json:"total_bytes_downloaded"`
	AverageDownloadSpeed float64    `json:"average_download_speed"` // bytes per second, mean over completed downloads
	TotalRetries         int        `json:"total_retries"`
	State                BatchState `json:"state"`
	ErrorCode            ErrorCode  `json:"error_code,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NewBatch creates a batch in the EXTRACTING state.
func NewBatch(sourceName, sourceURL string) *Batch {
	now := time.Now()
	return &Batch{
		SourceName: sourceName,
		SourceURL:  sourceURL,
		State:      BatchExtracting,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (b *Batch) Key() string         { return b.ID }
func (b *Batch) Touch(now time.Time) { b.UpdatedAt = now }
func (b *Batch) Cancelled() bool     { return b.CancelledAt != nil }
func (b *Batch) Finished() int       { return b.CompletedCount + b.FailedCount }

// Validate checks the batch counters and state.
func (b *Batch) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("batch id is required")
	}
	if b.TotalTracks < 0 || b.CompletedCount < 0 || b.FailedCount < 0 {
		return fmt.Errorf("batch counts must not be negative")
	}
	if b.CompletedCount+b.FailedCount > b.TotalTracks {
		return fmt.Errorf("batch %s finished %d of %d tracks", b.ID, b.CompletedCount+b.FailedCount, b.TotalTracks)
	}
	if b.State == "" {
		return fmt.Errorf("batch state is required")
	}
	return nil
}

// Progress returns the fraction of tracks that reached a terminal status.
func (b *Batch) Progress() float64 {
	if b.TotalTracks == 0 {
		return 0
	}
	return float64(b.Finished()) / float64(b.TotalTracks)
}

// BatchWithTracks is a batch together with its tracks in insertion order, read in one transaction.
type BatchWithTracks struct {
	Batch  *Batch   `json:"batch"`
	Tracks []*Track `json:"tracks"`
}

// Statuses returns the status of every track in order.
func (bt *BatchWithTracks) Statuses() []TrackStatus {
	statuses := make([]TrackStatus, len(bt.Tracks))
	for i, t := range bt.Tracks {
		statuses[i] = t.Status
	}
	return statuses
}

// CountByStatus tallies tracks per status.
func (bt *BatchWithTracks) CountByStatus() map[TrackStatus]int {
	counts := make(map[TrackStatus]int, len(TrackStatuses))
	for _, t := range bt.Tracks {
		counts[t.Status]++
	}
	return counts
}

// Find returns the track with id, or nil.
func (bt *BatchWithTracks) Find(id string) *Track {
	for _, t := range bt.Tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
