// package services defines the resolver and extractor contracts used by the pipeline
//
// yt-dlp, Spotify
package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/shared"
)

// Resolver searches for candidate videos and resolves playable audio URLs.
type Resolver interface {
	// Search returns at most limit candidates for query, best platform ranking first.
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)

	// ResolveAudioURL returns a direct URL to the best audio stream of videoID.
	ResolveAudioURL(ctx context.Context, videoID string) (string, error)
}

// Extractor reads a playlist from a source platform.
type Extractor interface {
	Extract(ctx context.Context, playlistURL string) (*Playlist, error)

	// Platform returns the platform tag stamped on extracted tracks.
	Platform() models.SourcePlatform
}

// Candidate is one search result on the video platform.
type Candidate struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Uploader   string `json:"uploader"`
	Duration   int    `json:"duration"` // seconds, 0 when unknown
	ViewCount  int64  `json:"view_count"`
	IsOfficial bool   `json:"is_official"`
	URL        string `json:"url"`
}

// Playlist is an extracted playlist with its tracks in source order.
type Playlist struct {
	ID       string
	Name     string
	URL      string
	Platform models.SourcePlatform
	Tracks   []PlaylistTrack
}

// PlaylistTrack is a track as listed by the source platform.
type PlaylistTrack struct {
	Title        string
	Artist       string
	Album        string
	Duration     int // seconds, 0 when unknown
	ThumbnailURL string
}

// DurationPtr returns the duration or nil when unknown.
func (t PlaylistTrack) DurationPtr() *int {
	if t.Duration <= 0 {
		return nil
	}
	d := t.Duration
	return &d
}

// DetectPlatform maps a playlist URL to its source platform by host.
func DetectPlatform(rawURL string) (models.SourcePlatform, error) {
	if strings.HasPrefix(strings.TrimSpace(rawURL), "spotify:") {
		return models.PlatformSpotify, nil
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not a URL", shared.ErrInvalidInput, rawURL)
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		return models.PlatformYouTube, nil
	case host == "spotify.com" || strings.HasSuffix(host, ".spotify.com"):
		return models.PlatformSpotify, nil
	case host == "music.apple.com":
		return models.PlatformAppleMusic, nil
	}
	return "", fmt.Errorf("%w: %s", shared.ErrUnsupportedSource, host)
}

// Extractors dispatches playlist URLs to the extractor for their platform.
type Extractors map[models.SourcePlatform]Extractor

// NewExtractors registers each extractor under its platform.
func NewExtractors(extractors ...Extractor) Extractors {
	reg := make(Extractors, len(extractors))
	for _, e := range extractors {
		if e != nil {
			reg[e.Platform()] = e
		}
	}
	return reg
}

// Extract detects the platform of playlistURL and runs its extractor.
func (e Extractors) Extract(ctx context.Context, playlistURL string) (*Playlist, error) {
	platform, err := DetectPlatform(playlistURL)
	if err != nil {
		return nil, err
	}

	extractor, ok := e[platform]
	if !ok {
		return nil, fmt.Errorf("%w: no extractor for %s", shared.ErrUnsupportedSource, platform)
	}
	return extractor.Extract(ctx, playlistURL)
}
