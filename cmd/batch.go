package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/desertthunder/beatq/internal/formatter"
	"github.com/desertthunder/beatq/internal/matcher"
	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/shared"
	"github.com/urfave/cli/v3"
)

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.StringArg(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", shared.ErrMissingArgument, name)
	}
	return v, nil
}

// BatchList prints every batch with its derived state and counters.
func (r *Runner) BatchList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	batches, err := r.orch.Batches(ctx)
	if err != nil {
		return fmt.Errorf("failed to list batches: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(batches, true)
	}
	if len(batches) == 0 {
		r.writePlain("No batches. Import one with 'beatq import <playlist-url>'.\n")
		return nil
	}

	rows := make([][]string, len(batches))
	for i, b := range batches {
		rows[i] = []string{
			b.ID,
			b.SourceName,
			string(b.State),
			strconv.Itoa(b.TotalTracks),
			strconv.Itoa(b.CompletedCount),
			strconv.Itoa(b.FailedCount),
			fmt.Sprintf("%.0f%%", b.Progress()*100),
			b.CreatedAt.Format("2006-01-02 15:04"),
		}
	}
	r.writePlain("%s\n", renderTable(
		[]string{"ID", "Name", "State", "Tracks", "Done", "Failed", "Progress", "Created"},
		rows, 3, 4, 5, 6,
	))
	return nil
}

// BatchStatus prints a batch summary followed by a table of its tracks.
func (r *Runner) BatchStatus(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "batch-id")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	bt, err := r.orch.Status(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(bt, true)
	}

	b := bt.Batch
	r.writePlainHeader(b.SourceName)
	state := string(b.State)
	if b.ErrorCode != models.ErrorNone {
		state = fmt.Sprintf("%s (%s)", state, b.ErrorCode)
	}
	r.writePlain("State:      %s\n", state)
	r.writePlain("Source:     %s\n", b.SourceURL)
	r.writePlain("Tracks:     %d (%d completed, %d failed)\n", b.TotalTracks, b.CompletedCount, b.FailedCount)
	r.writePlain("Downloaded: %s at %s/s\n", shared.FormatBytes(b.TotalBytesDownloaded), shared.FormatBytes(int64(b.AverageDownloadSpeed)))
	r.writePlain("Retries:    %d\n\n", b.TotalRetries)

	rows := make([][]string, len(bt.Tracks))
	for i, t := range bt.Tracks {
		progress := ""
		if t.Status == models.TrackDownloading {
			progress = fmt.Sprintf("%.0f%%", t.Progress()*100)
		}
		confidence := ""
		if t.MatchConfidence != nil {
			confidence = fmt.Sprintf("%.2f", t.Confidence())
		}
		rows[i] = []string{
			strconv.Itoa(t.Position),
			t.Label(),
			shared.FormatDuration(t.Duration()),
			string(t.Status),
			string(t.ErrorCode),
			t.VideoID,
			confidence,
			progress,
			strconv.Itoa(t.RetryCount),
			t.ID,
		}
	}
	r.writePlain("%s\n", renderTable(
		[]string{"#", "Track", "Length", "Status", "Error", "Video", "Conf", "Progress", "Retries", "Track ID"},
		rows, 0, 2, 6, 7, 8,
	))
	return nil
}

// BatchCancel cancels a batch.
func (r *Runner) BatchCancel(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "batch-id")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	if err := r.orch.Cancel(ctx, id); err != nil {
		return fmt.Errorf("failed to cancel batch: %w", err)
	}
	r.writePlain("✓ Batch %s cancelled\n", id)
	return nil
}

// BatchRetry queues a failed track for another download.
func (r *Runner) BatchRetry(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "track-id")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	if err := r.orch.Retry(ctx, id); err != nil {
		return fmt.Errorf("failed to retry track: %w", err)
	}
	r.writePlain("✓ Track %s queued for retry\n", id)
	return nil
}

// BatchResolve assigns a video to a track awaiting a manual match.
func (r *Runner) BatchResolve(ctx context.Context, cmd *cli.Command) error {
	trackID, err := requireArg(cmd, "track-id")
	if err != nil {
		return err
	}
	videoID, err := requireArg(cmd, "video-id")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	if err := r.orch.ResolveManual(ctx, trackID, videoID); err != nil {
		return fmt.Errorf("failed to resolve track: %w", err)
	}
	r.writePlain("✓ Track %s matched to %s\n", trackID, videoID)
	return nil
}

// BatchCandidates searches for a track and prints the ranked results, so one can be passed to 'batch resolve'.
func (r *Runner) BatchCandidates(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "track-id")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	track, err := r.orch.Track(ctx, id)
	if err != nil {
		return err
	}

	ranked, err := r.matcher.Candidates(ctx, track)
	if err != nil {
		return fmt.Errorf("failed to search candidates: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(ranked, true)
	}

	r.writePlainHeader(track.Label())
	if len(ranked) == 0 {
		r.writePlainln("No candidates found.")
		return nil
	}

	rows := make([][]string, len(ranked))
	for i, s := range ranked {
		c := s.Candidate
		official := ""
		if matcher.IsOfficial(c) {
			official = "✓"
		}
		rows[i] = []string{
			strconv.Itoa(i + 1),
			c.ID,
			c.Title,
			c.Uploader,
			shared.FormatDuration(c.Duration),
			strconv.FormatInt(c.ViewCount, 10),
			official,
			fmt.Sprintf("%.2f", s.Score),
		}
	}
	r.writePlain("%s\n", renderTable(
		[]string{"#", "Video", "Title", "Uploader", "Length", "Views", "Official", "Score"},
		rows, 0, 4, 5, 7,
	))
	r.writePlain("Pick one with 'beatq batch resolve %s <video-id>'\n", track.ID)
	return nil
}

// BatchSkip gives up on a track awaiting a manual match.
func (r *Runner) BatchSkip(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "track-id")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	if err := r.orch.Skip(ctx, id); err != nil {
		return fmt.Errorf("failed to skip track: %w", err)
	}
	r.writePlain("✓ Track %s skipped\n", id)
	return nil
}

// BatchExport writes a report for a batch in the requested format.
func (r *Runner) BatchExport(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "batch-id")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	bt, err := r.orch.Status(ctx, id)
	if err != nil {
		return err
	}

	coverURL := ""
	if !cmd.Bool("no-cover") {
		coverURL = formatter.CoverURL(bt)
	}

	result, err := formatter.Write(bt, cmd.String("format"), cmd.String("output"), coverURL)
	if err != nil {
		return fmt.Errorf("failed to export batch: %w", err)
	}
	for _, w := range result.Warnings {
		r.logger.Warn("export warning", "error", w)
	}

	r.writePlain("✓ Exported %s\n", bt.Batch.SourceName)
	for _, f := range result.Files {
		r.writePlain("  %s\n", f)
	}
	return nil
}

// BatchDelete removes a finished batch and its tracks.
func (r *Runner) BatchDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "batch-id")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	if err := r.orch.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	r.writePlain("✓ Batch %s deleted\n", id)
	return nil
}
