package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/desertthunder/beatq/internal/shared"
	"github.com/desertthunder/beatq/internal/tasks"
	"github.com/desertthunder/beatq/internal/ui"
	"github.com/gofrs/flock"
	"github.com/urfave/cli/v3"
)

// Import extracts the playlist at the url argument and submits it as a new batch.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	url := cmd.StringArg("url")
	if url == "" {
		return fmt.Errorf("%w: playlist url is required", shared.ErrMissingArgument)
	}

	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	r.logger.Info("extracting playlist", "url", url)
	playlist, err := r.extractors.Extract(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to extract playlist: %w", err)
	}
	r.logger.Infof("extracted playlist: %s (%d tracks)", playlist.Name, len(playlist.Tracks))

	req := tasks.RequestFromPlaylist(playlist)
	if name := cmd.String("name"); name != "" {
		req.Name = name
	}

	batch, err := r.orch.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to submit batch: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(batch, true)
	}

	r.writePlain("✓ Imported %s: %d tracks\n", batch.SourceName, batch.TotalTracks)
	r.writePlain("  Batch: %s\n", batch.ID)
	r.writePlainln("Run 'beatq run' to match and download.")
	return nil
}

// Run holds the run lock and drives the pipeline until interrupted, or until idle with --until-idle.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	interactive := cmd.Bool("tui")
	if interactive {
		if err := r.redirectLogs(); err != nil {
			return err
		}
	}

	unlock, err := r.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.orch.Start(ctx); err != nil {
		return err
	}
	r.logger.Info("pipeline started")

	if interactive {
		err = r.runTUI(ctx, ui.Options{Updates: r.updates}, r.orch, cmd.Bool("until-idle"))
	} else {
		r.follow(ctx, cmd.Bool("until-idle"))
	}

	cancel()
	r.orch.Wait()
	r.logger.Info("pipeline stopped")
	return err
}

// follow prints progress updates until ctx is done or, when untilIdle is set, the orchestrator runs out of work.
func (r *Runner) follow(ctx context.Context, untilIdle bool) {
	ticker := time.NewTicker(r.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-r.updates:
			r.writePlain("%s\n", u.Message)
		case <-ticker.C:
			if untilIdle && r.orch.Idle(ctx) {
				r.drainUpdates()
				r.writePlainln("✓ Nothing left to do")
				return
			}
		}
	}
}

func (r *Runner) drainUpdates() {
	for {
		select {
		case u := <-r.updates:
			r.writePlain("%s\n", u.Message)
		default:
			return
		}
	}
}

// watchIdle calls done once the orchestrator has no work left.
func (r *Runner) watchIdle(ctx context.Context, done func()) {
	ticker := time.NewTicker(r.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.orch.Idle(ctx) {
				done()
				return
			}
		}
	}
}

func (r *Runner) pollInterval() time.Duration {
	if d := r.config.Downloads.PollInterval; d > 0 {
		return d
	}
	return tasks.DefaultPollInterval
}

// acquireLock takes the run lock so only one process drives the pipeline against a database.
func (r *Runner) acquireLock() (func(), error) {
	path := r.config.Downloads.LockFile
	if path == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", shared.ErrLocked, path)
	}

	r.logger.Debug("run lock acquired", "path", path)
	return func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release run lock", "path", path, "error", err)
		}
	}, nil
}
