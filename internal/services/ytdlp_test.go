package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/desertthunder/beatq/internal/shared"
	"github.com/lrstanley/go-ytdlp"
)

// fakeRunner returns canned stdout per target and records what was requested.
type fakeRunner struct {
	outputs map[string]string
	err     error
	targets []string
}

func (f *fakeRunner) run(_ context.Context, _ *ytdlp.Command, target string) (string, error) {
	f.targets = append(f.targets, target)
	if f.err != nil {
		return "", f.err
	}
	return f.outputs[target], nil
}

func TestYTDLPResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("Search", func(t *testing.T) {
		runner := &fakeRunner{outputs: map[string]string{
			"ytsearch3:Song Artist": strings.Join([]string{
				`{"id":"a1","title":"Artist - Song (Official Video)","channel":"ArtistVEVO","duration":201.6,"view_count":1000,"url":"https://www.youtube.com/watch?v=a1"}`,
				`{"id":"s1","title":"Song #shorts","channel":"Fan","duration":30,"url":"https://www.youtube.com/shorts/s1"}`,
				`{"id":"b2","title":"Song","uploader":"Artist - Topic","duration":200,"view_count":50,"channel_is_verified":true}`,
			}, "\n"),
		}}
		r := &YTDLPResolver{format: defaultAudioFormat, runner: runner}

		candidates, err := r.Search(ctx, "Song Artist", 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(candidates) != 2 {
			t.Fatalf("expected shorts to be filtered leaving 2 candidates, got %d", len(candidates))
		}

		first := candidates[0]
		if first.ID != "a1" || first.Uploader != "ArtistVEVO" || first.Duration != 202 || first.ViewCount != 1000 {
			t.Errorf("unexpected first candidate: %+v", first)
		}
		second := candidates[1]
		if !second.IsOfficial {
			t.Error("expected verified channel to be official")
		}
		if second.URL != "https://www.youtube.com/watch?v=b2" {
			t.Errorf("expected watch url fallback, got %s", second.URL)
		}
	})

	t.Run("Search Empty Query", func(t *testing.T) {
		r := &YTDLPResolver{runner: &fakeRunner{}}
		if _, err := r.Search(ctx, "  ", 5); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Search Runner Error", func(t *testing.T) {
		r := &YTDLPResolver{runner: &fakeRunner{err: shared.ErrAPIRequest}}
		if _, err := r.Search(ctx, "x", 5); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("Search Default Limit", func(t *testing.T) {
		runner := &fakeRunner{outputs: map[string]string{}}
		r := &YTDLPResolver{runner: runner}
		if _, err := r.Search(ctx, "x", 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(runner.targets) != 1 || runner.targets[0] != "ytsearch10:x" {
			t.Errorf("expected default limit 10, got %v", runner.targets)
		}
	})

	t.Run("ResolveAudioURL", func(t *testing.T) {
		tc := []struct {
			name    string
			output  string
			want    string
			wantErr error
		}{
			{
				name:   "top level url",
				output: `{"id":"a1","url":"https://cdn/audio.webm","filesize":1234}`,
				want:   "https://cdn/audio.webm",
			},
			{
				name:   "requested formats",
				output: `{"id":"a1","requested_formats":[{"url":"https://cdn/a.m4a"},{"url":"https://cdn/v.mp4"}]}`,
				want:   "https://cdn/a.m4a",
			},
			{
				name:    "no url",
				output:  `{"id":"a1"}`,
				wantErr: shared.ErrNoStreamURL,
			},
			{
				name:    "no output",
				output:  "",
				wantErr: shared.ErrNoStreamURL,
			},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				runner := &fakeRunner{outputs: map[string]string{"https://www.youtube.com/watch?v=a1": tt.output}}
				r := &YTDLPResolver{format: defaultAudioFormat, runner: runner}

				got, err := r.ResolveAudioURL(ctx, "a1")
				if tt.wantErr != nil {
					if !errors.Is(err, tt.wantErr) {
						t.Errorf("expected %v, got %v", tt.wantErr, err)
					}
					return
				}
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("expected %s, got %s", tt.want, got)
				}
			})
		}
	})

	t.Run("ResolveAudioURL Bad JSON", func(t *testing.T) {
		runner := &fakeRunner{outputs: map[string]string{"https://www.youtube.com/watch?v=a1": "{not json"}}
		r := &YTDLPResolver{runner: runner}
		if _, err := r.ResolveAudioURL(ctx, "a1"); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("NewYTDLPResolver Default Format", func(t *testing.T) {
		if r := NewYTDLPResolver(""); r.format != defaultAudioFormat {
			t.Errorf("expected default format, got %s", r.format)
		}
	})
}

func TestYouTubeExtractor(t *testing.T) {
	ctx := context.Background()

	t.Run("Extract", func(t *testing.T) {
		runner := &fakeRunner{outputs: map[string]string{
			"https://www.youtube.com/playlist?list=PLx": `{"id":"PLx","title":"Mix","entries":[
				{"id":"v1","title":"Song One","channel":"Alpha - Topic","duration":200},
				{"id":"v2","title":"Beta - Song Two (Lyrics)","channel":"Lyrics Hub","duration":181.7},
				{"id":"v3","title":"Plain Upload","uploader":"Gamma"},
				{"id":"","title":"[Deleted video]"}
			]}`,
		}}
		e := &YouTubeExtractor{runner: runner}

		playlist, err := e.Extract(ctx, "https://music.youtube.com/playlist?list=PLx&si=1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if playlist.Name != "Mix" || playlist.ID != "PLx" {
			t.Errorf("unexpected playlist header: %+v", playlist)
		}
		if len(playlist.Tracks) != 3 {
			t.Fatalf("expected 3 tracks, got %d", len(playlist.Tracks))
		}

		want := []PlaylistTrack{
			{Title: "Song One", Artist: "Alpha", Duration: 200},
			{Title: "Song Two (Lyrics)", Artist: "Beta", Duration: 182},
			{Title: "Plain Upload", Artist: "Gamma", Duration: 0},
		}
		for i, w := range want {
			got := playlist.Tracks[i]
			if got.Title != w.Title || got.Artist != w.Artist || got.Duration != w.Duration {
				t.Errorf("track %d: expected %+v, got %+v", i, w, got)
			}
		}
		if playlist.Tracks[2].DurationPtr() != nil {
			t.Error("expected unknown duration to map to nil")
		}
	})

	t.Run("Extract Missing List", func(t *testing.T) {
		e := &YouTubeExtractor{runner: &fakeRunner{}}
		if _, err := e.Extract(ctx, "https://www.youtube.com/watch?v=abc"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Extract Empty Playlist", func(t *testing.T) {
		runner := &fakeRunner{outputs: map[string]string{"https://www.youtube.com/playlist?list=PLz": `{}`}}
		e := &YouTubeExtractor{runner: runner}
		if _, err := e.Extract(ctx, "https://www.youtube.com/playlist?list=PLz"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})
}
