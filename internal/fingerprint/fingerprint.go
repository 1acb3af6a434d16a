// Package fingerprint derives stable identities for tracks from their metadata.
//
// Two tracks whose title and artist differ only in case, diacritics, punctuation or spacing,
// and whose durations land in the same 5-second bucket, share a fingerprint.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// BucketSeconds is the width of a duration bucket.
const BucketSeconds = 5

// Normalize folds s into the comparable form used by fingerprints and scoring.
//
// The string is NFKD-decomposed, stripped of combining marks, case-folded, and has punctuation and symbols replaced by spaces before whitespace is collapsed.
func Normalize(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	folded := cases.Fold().String(stripped)
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, folded)

	return strings.Join(strings.Fields(mapped), " ")
}

// Bucket returns the duration bucket for seconds, or "-" when unknown.
func Bucket(duration *int) string {
	if duration == nil || *duration < 0 {
		return "-"
	}
	return strconv.Itoa(int(math.Round(float64(*duration) / BucketSeconds)))
}

// Generate returns the hex SHA-256 fingerprint of a track.
func Generate(title, artist string, duration *int) string {
	payload := Normalize(title) + "|" + Normalize(artist) + "|" + Bucket(duration)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
