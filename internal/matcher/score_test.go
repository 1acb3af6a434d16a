package matcher

import (
	"math"
	"testing"

	"github.com/desertthunder/beatq/internal/services"
)

func intPtr(v int) *int { return &v }

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScore(t *testing.T) {
	q := Query{Title: "Song A", Artist: "Artist X", Duration: intPtr(200)}

	tc := []struct {
		name      string
		query     Query
		candidate services.Candidate
		want      float64
	}{
		{
			name:      "official audio from topic channel",
			query:     q,
			candidate: services.Candidate{Title: "Song A (Official Audio)", Uploader: "Artist X - Topic", Duration: 201, IsOfficial: true},
			want:      0.9,
		},
		{
			name:      "exact title and artist within 2s",
			query:     q,
			candidate: services.Candidate{Title: "song a", Uploader: "ARTIST X", Duration: 198},
			want:      1.0,
		},
		{
			name:      "exact title official clamps to one",
			query:     q,
			candidate: services.Candidate{Title: "Song A", Uploader: "ArtistXVEVO Artist X", Duration: 200},
			want:      1.0,
		},
		{
			name:      "within 5s",
			query:     q,
			candidate: services.Candidate{Title: "Other", Uploader: "Someone", Duration: 205},
			want:      0.15,
		},
		{
			name:      "within 10s",
			query:     q,
			candidate: services.Candidate{Title: "Other", Uploader: "Someone", Duration: 190},
			want:      0.1,
		},
		{
			name:      "far duration",
			query:     q,
			candidate: services.Candidate{Title: "Other", Uploader: "Someone", Duration: 300},
			want:      0,
		},
		{
			name:      "unknown track duration is neutral",
			query:     Query{Title: "Song A", Artist: "Artist X"},
			candidate: services.Candidate{Title: "Other", Uploader: "Someone", Duration: 300},
			want:      0.1,
		},
		{
			name:      "unknown candidate duration is neutral",
			query:     q,
			candidate: services.Candidate{Title: "Other", Uploader: "Someone"},
			want:      0.1,
		},
		{
			name:      "query title inside candidate title only",
			query:     Query{Title: "Song A (Remastered 2011)", Artist: "Artist X", Duration: intPtr(200)},
			candidate: services.Candidate{Title: "Song A", Uploader: "Nobody", Duration: 400},
			want:      0.3,
		},
		{
			name:      "empty artist never overlaps",
			query:     Query{Title: "Zzz", Artist: "", Duration: intPtr(200)},
			candidate: services.Candidate{Title: "Other", Uploader: "Someone", Duration: 400},
			want:      0,
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.query, tt.candidate)
			if !approx(got, tt.want) {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreIsPure(t *testing.T) {
	q := Query{Title: "Song A", Artist: "Artist X", Duration: intPtr(200)}
	c := services.Candidate{Title: "Song A", Uploader: "Artist X", Duration: 203}

	first := Score(q, c)
	for range 10 {
		if got := Score(q, c); got != first {
			t.Fatalf("expected identical scores, got %v then %v", first, got)
		}
	}
}

func TestIsOfficial(t *testing.T) {
	tc := []struct {
		candidate services.Candidate
		want      bool
	}{
		{candidate: services.Candidate{IsOfficial: true}, want: true},
		{candidate: services.Candidate{Uploader: "TaylorSwiftVEVO"}, want: true},
		{candidate: services.Candidate{Uploader: "Band Official"}, want: true},
		{candidate: services.Candidate{Uploader: "Band - Topic"}, want: true},
		{candidate: services.Candidate{Uploader: "Lyrics Channel"}, want: false},
		{candidate: services.Candidate{}, want: false},
	}

	for _, tt := range tc {
		t.Run(tt.candidate.Uploader, func(t *testing.T) {
			if got := IsOfficial(tt.candidate); got != tt.want {
				t.Errorf("IsOfficial(%+v) = %v, want %v", tt.candidate, got, tt.want)
			}
		})
	}
}

func TestRank(t *testing.T) {
	q := Query{Title: "Song", Artist: "Artist", Duration: intPtr(200)}

	t.Run("score first", func(t *testing.T) {
		ranked := Rank(q, []services.Candidate{
			{ID: "low", Title: "Other", Uploader: "x", Duration: 200},
			{ID: "high", Title: "Song", Uploader: "Artist", Duration: 200},
		})
		if ranked[0].Candidate.ID != "high" {
			t.Errorf("expected high first, got %s", ranked[0].Candidate.ID)
		}
	})

	t.Run("tie broken by duration difference", func(t *testing.T) {
		ranked := Rank(q, []services.Candidate{
			{ID: "two", Title: "Song", Uploader: "Artist", Duration: 202},
			{ID: "one", Title: "Song", Uploader: "Artist", Duration: 201},
		})
		if ranked[0].Candidate.ID != "one" {
			t.Errorf("expected closer duration first, got %s", ranked[0].Candidate.ID)
		}
	})

	t.Run("tie broken by official then views", func(t *testing.T) {
		// Official adds score, so equal scores need official on a capped candidate.
		ranked := Rank(q, []services.Candidate{
			{ID: "plain", Title: "Song", Uploader: "Artist", Duration: 200, ViewCount: 10},
			{ID: "vevo", Title: "Song", Uploader: "ArtistVEVO", Duration: 200, ViewCount: 5},
		})
		if ranked[0].Candidate.ID != "vevo" {
			t.Errorf("expected official candidate first, got %s", ranked[0].Candidate.ID)
		}

		ranked = Rank(q, []services.Candidate{
			{ID: "few", Title: "Song", Uploader: "Artist", Duration: 200, ViewCount: 10},
			{ID: "many", Title: "Song", Uploader: "Artist", Duration: 200, ViewCount: 1000},
		})
		if ranked[0].Candidate.ID != "many" {
			t.Errorf("expected more views first, got %s", ranked[0].Candidate.ID)
		}
	})

	t.Run("stable for full ties", func(t *testing.T) {
		ranked := Rank(q, []services.Candidate{
			{ID: "a", Title: "Song", Uploader: "Artist", Duration: 200},
			{ID: "b", Title: "Song", Uploader: "Artist", Duration: 200},
		})
		if ranked[0].Candidate.ID != "a" || ranked[1].Candidate.ID != "b" {
			t.Error("expected search order preserved on full ties")
		}
	})
}
