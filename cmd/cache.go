package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/beatq/internal/fingerprint"
	"github.com/desertthunder/beatq/internal/matcher"
	"github.com/desertthunder/beatq/internal/shared"
	"github.com/urfave/cli/v3"
)

type cacheCounter interface {
	CountMatchCache(ctx context.Context) (positive, negative int, err error)
}

// CacheStats prints the number of positive and negative match cache entries.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	counter, ok := r.store.(cacheCounter)
	if !ok {
		return fmt.Errorf("%w: store cannot count match cache entries", shared.ErrNotImplemented)
	}
	positive, negative, err := counter.CountMatchCache(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]int{"positive": positive, "negative": negative}, true)
	}
	r.writePlain("%s\n", renderTable(
		[]string{"Entries", "Count"},
		[][]string{
			{"positive", fmt.Sprint(positive)},
			{"negative", fmt.Sprint(negative)},
			{"total", fmt.Sprint(positive + negative)},
		},
		1,
	))
	return nil
}

// CachePurge drops negative entries older than the configured retention.
func (r *Runner) CachePurge(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	n, err := r.orch.PurgeNegatives(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge match cache: %w", err)
	}
	r.writePlain("✓ Purged %d negative entries\n", n)
	return nil
}

// CacheLookup fingerprints the given track and prints its cached decision under the configured matcher version.
func (r *Runner) CacheLookup(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	var duration *int
	if d := int(cmd.Int("duration")); d > 0 {
		duration = &d
	}
	fp := fingerprint.Generate(cmd.String("title"), cmd.String("artist"), duration)

	version := r.config.Matcher.Version
	if version == "" {
		version = matcher.DefaultVersion
	}

	res, err := r.cache.Lookup(ctx, fp, version)
	if err != nil {
		return err
	}

	decision := "miss"
	videoID := ""
	switch {
	case res.Found():
		decision, videoID = "match", res.VideoID
	case res != nil:
		decision = "no match"
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]string{
			"fingerprint": fp,
			"version":     version,
			"decision":    decision,
			"video_id":    videoID,
		}, true)
	}

	r.writePlain("Fingerprint: %s\n", fp)
	r.writePlain("Version:     %s\n", version)
	r.writePlain("Decision:    %s\n", decision)
	if videoID != "" {
		r.writePlain("Video:       %s\n", videoID)
	}
	return nil
}
