// Spotify Web API implementation of [Extractor]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/shared"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
	spotifyPageSize = 100
)

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	IsLocal    bool            `json:"is_local"`
	Type       string          `json:"type"` // "track" or "episode"
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
}

// SpotifyPlaylist represents the playlist header; tracks are paged separately.
type SpotifyPlaylist struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPaginatedPlaylistTracks represents one page of playlist items.
type SpotifyPaginatedPlaylistTracks struct {
	Items  []SpotifyPlaylistTrack `json:"items"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
	Next   *string                `json:"next"`
}

// SpotifyExtractor implements [Extractor] for public Spotify playlists.
//
// Uses the OAuth2 client-credentials flow, so no user login is involved and private playlists are unreachable.
type SpotifyExtractor struct {
	baseURL    string
	httpClient *http.Client
}

// NewSpotifyExtractor creates an extractor authenticating with the given application credentials.
func NewSpotifyExtractor(ctx context.Context, creds shared.SpotifyConfig) (*SpotifyExtractor, error) {
	return newSpotifyExtractor(ctx, creds, spotifyTokenURL, spotifyBaseURL)
}

func newSpotifyExtractor(ctx context.Context, creds shared.SpotifyConfig, tokenURL, baseURL string) (*SpotifyExtractor, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing spotify client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing spotify client_secret", shared.ErrMissingCredentials)
	}

	config := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
	}

	return &SpotifyExtractor{
		baseURL:    baseURL,
		httpClient: config.Client(ctx),
	}, nil
}

func (s *SpotifyExtractor) Platform() models.SourcePlatform {
	return models.PlatformSpotify
}

// doRequest performs an authenticated GET against the Spotify API.
func (s *SpotifyExtractor) doRequest(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return shared.ErrPlaylistNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", shared.ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: spotify status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Playlist retrieves the playlist header by ID.
func (s *SpotifyExtractor) Playlist(ctx context.Context, playlistID string) (*SpotifyPlaylist, error) {
	var playlist SpotifyPlaylist
	endpoint := fmt.Sprintf("/playlists/%s?fields=%s", url.PathEscape(playlistID), url.QueryEscape("id,name,tracks.total"))
	if err := s.doRequest(ctx, endpoint, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// PlaylistTracks retrieves one page of playlist items.
func (s *SpotifyExtractor) PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) (*SpotifyPaginatedPlaylistTracks, error) {
	if limit <= 0 || limit > spotifyPageSize {
		limit = spotifyPageSize
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", url.PathEscape(playlistID), limit, offset)

	var page SpotifyPaginatedPlaylistTracks
	if err := s.doRequest(ctx, endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Extract reads every track of the playlist at playlistURL, skipping local files, podcast episodes and removed tracks.
func (s *SpotifyExtractor) Extract(ctx context.Context, playlistURL string) (*Playlist, error) {
	playlistID, err := spotifyPlaylistID(playlistURL)
	if err != nil {
		return nil, err
	}

	header, err := s.Playlist(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist %s: %w", playlistID, err)
	}

	playlist := &Playlist{
		ID:       header.ID,
		Name:     header.Name,
		URL:      playlistURL,
		Platform: models.PlatformSpotify,
	}

	offset := 0
	for {
		page, err := s.PlaylistTracks(ctx, playlistID, spotifyPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to get playlist tracks: %w", err)
		}

		for _, item := range page.Items {
			if t, ok := toPlaylistTrack(item.Track); ok {
				playlist.Tracks = append(playlist.Tracks, t)
			}
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
	}

	return playlist, nil
}

func toPlaylistTrack(st *SpotifyTrack) (PlaylistTrack, bool) {
	if st == nil || st.IsLocal || st.Name == "" || (st.Type != "" && st.Type != "track") {
		return PlaylistTrack{}, false
	}

	names := make([]string, 0, len(st.Artists))
	for _, a := range st.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}

	t := PlaylistTrack{
		Title:    st.Name,
		Artist:   strings.Join(names, ", "),
		Album:    st.Album.Name,
		Duration: (st.DurationMS + 500) / 1000,
	}
	if len(st.Album.Images) > 0 {
		t.ThumbnailURL = st.Album.Images[0].URL
	}
	return t, true
}

// spotifyPlaylistID accepts open.spotify.com playlist links and spotify:playlist: URIs.
func spotifyPlaylistID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if id, ok := strings.CutPrefix(raw, "spotify:playlist:"); ok && id != "" {
		return id, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "playlist" && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("%w: not a spotify playlist url: %s", shared.ErrInvalidInput, raw)
}
