package models

import (
	"fmt"
	"time"
)

// NoMatch is the video id stored for a negative match decision.
const NoMatch = "NO_MATCH"

// MatchCacheEntry maps a fingerprint under a matcher version to a video id or [NoMatch].
type MatchCacheEntry struct {
	CacheKey  string    `json:"cache_key"`
	VideoID   string    `json:"video_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CacheKey composes the key for fingerprint under matcher version.
func CacheKey(fingerprint, version string) string {
	return fingerprint + ":" + version
}

func (e *MatchCacheEntry) Key() string         { return e.CacheKey }
func (e *MatchCacheEntry) Touch(now time.Time) { e.CreatedAt = now }
func (e *MatchCacheEntry) Negative() bool      { return e.VideoID == NoMatch }

// Validate checks the key and value are present.
func (e *MatchCacheEntry) Validate() error {
	if e.CacheKey == "" {
		return fmt.Errorf("cache key is required")
	}
	if e.VideoID == "" {
		return fmt.Errorf("cache entry video id is required")
	}
	return nil
}
