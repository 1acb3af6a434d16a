package matcher

import (
	"strings"

	"github.com/desertthunder/beatq/internal/fingerprint"
	"github.com/desertthunder/beatq/internal/services"
)

// Scoring weights. Title, artist, duration and official signals are independent and additive.
const (
	titleContainsWeight = 0.3
	titleExactWeight    = 0.2
	artistWeight        = 0.3
	durationClose       = 0.2  // within 2s
	durationNear        = 0.15 // within 5s
	durationLoose       = 0.1  // within 10s
	durationUnknown     = 0.1
	officialWeight      = 0.1
)

// Query is the track metadata a candidate is scored against.
type Query struct {
	Title    string
	Artist   string
	Duration *int // seconds, nil when unknown
}

// Score rates how well c matches q, in [0,1]. It is pure and deterministic.
func Score(q Query, c services.Candidate) float64 {
	var score float64

	title := fingerprint.Normalize(q.Title)
	candTitle := fingerprint.Normalize(c.Title)
	if overlaps(title, candTitle) {
		score += titleContainsWeight
		if title == candTitle {
			score += titleExactWeight
		}
	}

	if overlaps(fingerprint.Normalize(q.Artist), fingerprint.Normalize(c.Uploader)) {
		score += artistWeight
	}

	score += durationScore(q.Duration, c.Duration)

	if IsOfficial(c) {
		score += officialWeight
	}

	return clamp(score)
}

// durationScore awards proximity points, or a neutral amount when either side is unknown.
func durationScore(track *int, candidate int) float64 {
	if track == nil || *track <= 0 || candidate <= 0 {
		return durationUnknown
	}
	switch diff := absDiff(*track, candidate); {
	case diff <= 2:
		return durationClose
	case diff <= 5:
		return durationNear
	case diff <= 10:
		return durationLoose
	}
	return 0
}

// IsOfficial reports whether the candidate comes from an official or verified uploader.
func IsOfficial(c services.Candidate) bool {
	if c.IsOfficial {
		return true
	}
	uploader := strings.ToLower(strings.TrimSpace(c.Uploader))
	return strings.Contains(uploader, "vevo") ||
		strings.Contains(uploader, "official") ||
		strings.HasSuffix(uploader, "- topic")
}

// overlaps reports whether either non-empty string contains the other.
func overlaps(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
