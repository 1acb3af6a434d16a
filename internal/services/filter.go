package services

import (
	"regexp"
	"strings"
)

// rejectPattern matches titles of uploads that are almost never the studio track.
var rejectPattern = regexp.MustCompile(`(?i)(#shorts|\bshorts\b|\breaction\b|\bgameplay\b|\btutorial\b|\bpodcast\b|\bvlog\b|\bunboxing\b|\breview\b|\btrailer\b|\bteaser\b|behind.the.scenes|\binterview\b|\bcompilation\b|\bprank\b|\bchallenge\b|\blive\s*stream\b|full\s*album|full\s*movie)`)

// Rejected reports whether c looks like non-music content.
func Rejected(c Candidate) bool {
	if strings.Contains(c.URL, "/shorts/") {
		return true
	}
	return rejectPattern.MatchString(c.Title)
}

// FilterCandidates drops rejected candidates, keeping order. When every candidate is rejected the input is returned unchanged so scoring still has something to rank.
func FilterCandidates(candidates []Candidate) []Candidate {
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !Rejected(c) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return candidates
	}
	return kept
}
