package models

import (
	"fmt"
	"time"
)

// Track is a single song within a batch.
//
// Optional values are pointers so an unknown duration or a missing match decision stays distinguishable from zero.
type Track struct {
	ID              string         `json:"id"`
	BatchID         string         `json:"batch_id"`
	Sequence        int            `json:"sequence"`
	Position        int            `json:"position"`
	Fingerprint     string         `json:"fingerprint"`
	Title           string         `json:"title"`
	Artist          string         `json:"artist"`
	Album           string         `json:"album,omitempty"`
	DurationSeconds *int           `json:"duration_seconds,omitempty"`
	ThumbnailURL    string         `json:"thumbnail_url,omitempty"`
	SourcePlatform  SourcePlatform `json:"source_platform"`
	VideoID         string         `json:"video_id,omitempty"`
	MatchConfidence *float64       `json:"match_confidence,omitempty"`
	Status          TrackStatus    `json:"status"`
	ErrorCode       ErrorCode      `json:"error_code,omitempty"`
	OutputPath      string         `json:"output_path,omitempty"`
	RetryCount      int            `json:"retry_count"`
	LastAttemptAt   *time.Time     `json:"last_attempt_at,omitempty"`
	BytesDownloaded *int64         `json:"bytes_downloaded,omitempty"`
	TotalBytes      *int64         `json:"total_bytes,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewTrack creates an EXTRACTED track. Fingerprint and batch assignment happen on submit.
func NewTrack(position int, title, artist string, duration *int, platform SourcePlatform) *Track {
	now := time.Now()
	return &Track{
		Position:        position,
		Title:           title,
		Artist:          artist,
		DurationSeconds: duration,
		SourcePlatform:  platform,
		Status:          TrackExtracted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (t *Track) Key() string         { return t.ID }
func (t *Track) Touch(now time.Time) { t.UpdatedAt = now }

// Validate checks required fields and value ranges.
func (t *Track) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("track id is required")
	}
	if t.BatchID == "" {
		return fmt.Errorf("track batch id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("track title is required")
	}
	if t.Fingerprint == "" {
		return fmt.Errorf("track fingerprint is required")
	}
	if !t.Status.Valid() {
		return fmt.Errorf("unknown track status %q", t.Status)
	}
	if !t.SourcePlatform.Valid() {
		return fmt.Errorf("unknown source platform %q", t.SourcePlatform)
	}
	if t.MatchConfidence != nil && (*t.MatchConfidence < 0 || *t.MatchConfidence > 1) {
		return fmt.Errorf("match confidence %v out of range", *t.MatchConfidence)
	}
	if t.RetryCount < 0 {
		return fmt.Errorf("retry count must not be negative")
	}
	return nil
}

// Duration returns the known duration in seconds or 0.
func (t *Track) Duration() int {
	if t.DurationSeconds == nil {
		return 0
	}
	return *t.DurationSeconds
}

// Confidence returns the recorded match confidence or 0.
func (t *Track) Confidence() float64 {
	if t.MatchConfidence == nil {
		return 0
	}
	return *t.MatchConfidence
}

// Progress returns the download fraction, or 0 when the total is unknown.
func (t *Track) Progress() float64 {
	if t.BytesDownloaded == nil || t.TotalBytes == nil || *t.TotalBytes <= 0 {
		return 0
	}
	p := float64(*t.BytesDownloaded) / float64(*t.TotalBytes)
	if p > 1 {
		return 1
	}
	return p
}

// SetProgress records downloaded and total bytes. A non-positive total is stored as unknown.
func (t *Track) SetProgress(downloaded, total int64) {
	t.BytesDownloaded = &downloaded
	if total > 0 {
		t.TotalBytes = &total
	} else {
		t.TotalBytes = nil
	}
}

// ClearProgress forgets any partial download.
func (t *Track) ClearProgress() {
	t.BytesDownloaded = nil
	t.TotalBytes = nil
}

// Label renders "artist - title" for logs and tables.
func (t *Track) Label() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}
