package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/shared"
	"github.com/lrstanley/go-ytdlp"
)

const (
	youtubeWatchURL    = "https://www.youtube.com/watch?v=%s"
	youtubePlaylistURL = "https://www.youtube.com/playlist?list=%s"
	defaultAudioFormat = "bestaudio/best"
)

// runner executes a configured yt-dlp command against target and returns its stdout.
type runner interface {
	run(ctx context.Context, cmd *ytdlp.Command, target string) (string, error)
}

type execRunner struct{}

func (execRunner) run(ctx context.Context, cmd *ytdlp.Command, target string) (string, error) {
	result, err := cmd.Run(ctx, target)
	if err != nil {
		if result != nil && result.Stderr != "" {
			return "", fmt.Errorf("%w: yt-dlp: %s", shared.ErrAPIRequest, strings.TrimSpace(result.Stderr))
		}
		return "", fmt.Errorf("%w: yt-dlp: %v", shared.ErrAPIRequest, err)
	}
	return result.Stdout, nil
}

// ytdlpEntry is the subset of yt-dlp's info JSON the pipeline reads.
type ytdlpEntry struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	URL               string       `json:"url"`
	WebpageURL        string       `json:"webpage_url"`
	Duration          float64      `json:"duration"`
	ViewCount         int64        `json:"view_count"`
	Uploader          string       `json:"uploader"`
	Channel           string       `json:"channel"`
	ChannelIsVerified bool         `json:"channel_is_verified"`
	Artist            string       `json:"artist"`
	Track             string       `json:"track"`
	Album             string       `json:"album"`
	Filesize          int64        `json:"filesize"`
	FilesizeApprox    int64        `json:"filesize_approx"`
	Thumbnail         string       `json:"thumbnail"`
	Thumbnails        []ytdlpThumb `json:"thumbnails"`
	Entries           []ytdlpEntry `json:"entries"`
	RequestedFormats  []ytdlpEntry `json:"requested_formats"`
}

type ytdlpThumb struct {
	URL string `json:"url"`
}

func (e ytdlpEntry) uploader() string {
	if e.Uploader != "" {
		return e.Uploader
	}
	return e.Channel
}

func (e ytdlpEntry) thumbnail() string {
	if e.Thumbnail != "" {
		return e.Thumbnail
	}
	if n := len(e.Thumbnails); n > 0 {
		return e.Thumbnails[n-1].URL
	}
	return ""
}

// YTDLPResolver implements [Resolver] with yt-dlp.
//
// Search uses the "ytsearchN:" pseudo-URL in flat mode; resolution dumps the info JSON of the selected audio format.
type YTDLPResolver struct {
	format string
	runner runner
}

// NewYTDLPResolver creates a resolver selecting streams with the yt-dlp format expression format.
func NewYTDLPResolver(format string) *YTDLPResolver {
	if format == "" {
		format = defaultAudioFormat
	}
	return &YTDLPResolver{format: format, runner: execRunner{}}
}

// Search returns up to limit candidates for query with non-music uploads filtered out.
func (r *YTDLPResolver) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	cmd := ytdlp.New().
		FlatPlaylist().
		DumpJSON().
		SkipDownload().
		NoWarnings()

	out, err := r.runner.run(ctx, cmd, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		return nil, err
	}

	entries, err := decodeLines(out)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		candidates = append(candidates, toCandidate(e))
	}
	return FilterCandidates(candidates), nil
}

// ResolveAudioURL returns the direct stream URL of the selected audio format.
func (r *YTDLPResolver) ResolveAudioURL(ctx context.Context, videoID string) (string, error) {
	if videoID == "" {
		return "", fmt.Errorf("%w: empty video id", shared.ErrInvalidInput)
	}

	cmd := ytdlp.New().
		Format(r.format).
		DumpJSON().
		SkipDownload().
		NoWarnings()

	out, err := r.runner.run(ctx, cmd, fmt.Sprintf(youtubeWatchURL, videoID))
	if err != nil {
		return "", err
	}

	entries, err := decodeLines(out)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: %s", shared.ErrNoStreamURL, videoID)
	}

	info := entries[0]
	if info.URL != "" {
		return info.URL, nil
	}
	for _, f := range info.RequestedFormats {
		if f.URL != "" {
			return f.URL, nil
		}
	}
	return "", fmt.Errorf("%w: %s", shared.ErrNoStreamURL, videoID)
}

// YouTubeExtractor implements [Extractor] for YouTube and YouTube Music playlists.
type YouTubeExtractor struct {
	runner runner
}

// NewYouTubeExtractor creates an extractor backed by yt-dlp.
func NewYouTubeExtractor() *YouTubeExtractor {
	return &YouTubeExtractor{runner: execRunner{}}
}

func (e *YouTubeExtractor) Platform() models.SourcePlatform {
	return models.PlatformYouTube
}

// Extract lists the playlist without resolving each video.
func (e *YouTubeExtractor) Extract(ctx context.Context, playlistURL string) (*Playlist, error) {
	listID := youtubePlaylistID(playlistURL)
	if listID == "" {
		return nil, fmt.Errorf("%w: no list parameter in %s", shared.ErrInvalidInput, playlistURL)
	}

	cmd := ytdlp.New().
		FlatPlaylist().
		DumpSingleJSON().
		SkipDownload().
		NoWarnings()

	out, err := e.runner.run(ctx, cmd, fmt.Sprintf(youtubePlaylistURL, listID))
	if err != nil {
		return nil, err
	}

	var info ytdlpEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &info); err != nil {
		return nil, fmt.Errorf("failed to decode playlist: %w", err)
	}
	if info.ID == "" && len(info.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, listID)
	}

	playlist := &Playlist{
		ID:       listID,
		Name:     info.Title,
		URL:      playlistURL,
		Platform: models.PlatformYouTube,
	}
	for _, entry := range info.Entries {
		if entry.ID == "" || entry.Title == "" {
			continue
		}
		title, artist := splitVideoTitle(entry)
		playlist.Tracks = append(playlist.Tracks, PlaylistTrack{
			Title:        title,
			Artist:       artist,
			Album:        entry.Album,
			Duration:     int(entry.Duration + 0.5),
			ThumbnailURL: entry.thumbnail(),
		})
	}
	return playlist, nil
}

// youtubePlaylistID extracts the list parameter from a playlist or watch URL.
func youtubePlaylistID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Query().Get("list")
}

// splitVideoTitle derives track title and artist from a playlist entry.
//
// Auto-generated "Artist - Topic" channels carry the bare title. Other uploads usually title videos "Artist - Title".
func splitVideoTitle(e ytdlpEntry) (title, artist string) {
	if e.Track != "" && e.Artist != "" {
		return e.Track, e.Artist
	}

	uploader := e.uploader()
	if name, ok := strings.CutSuffix(uploader, " - Topic"); ok {
		return e.Title, name
	}
	if a, t, ok := strings.Cut(e.Title, " - "); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t), strings.TrimSpace(a)
	}
	return e.Title, uploader
}

func toCandidate(e ytdlpEntry) Candidate {
	link := e.WebpageURL
	if link == "" {
		link = e.URL
	}
	if link == "" {
		link = fmt.Sprintf(youtubeWatchURL, e.ID)
	}
	return Candidate{
		ID:         e.ID,
		Title:      e.Title,
		Uploader:   e.uploader(),
		Duration:   int(e.Duration + 0.5),
		ViewCount:  e.ViewCount,
		IsOfficial: e.ChannelIsVerified,
		URL:        link,
	}
}

// decodeLines parses yt-dlp's one-JSON-object-per-line output.
func decodeLines(out string) ([]ytdlpEntry, error) {
	var entries []ytdlpEntry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '{' {
			continue
		}
		var e ytdlpEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("failed to decode yt-dlp output: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
