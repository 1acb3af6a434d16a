package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/beatq/internal/shared"
	"github.com/desertthunder/beatq/internal/ui"
	"github.com/urfave/cli/v3"
)

const defaultTUILog = "./tmp/beatq-tui.log"

// Watch launches the interactive batch watcher against the database.
//
// The pipeline is not started; a separate 'beatq run' picks up actions taken here on its next poll.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	if err := r.redirectLogs(); err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	defer r.close()

	var control ui.Controller
	if !cmd.Bool("read-only") {
		control = r.orch
	}

	opts := ui.Options{BatchID: cmd.StringArg("batch-id"), Interval: r.pollInterval()}
	return r.runTUI(ctx, opts, control, false)
}

// runTUI blocks until the user quits or ctx is done. With quitWhenIdle the program also exits once the pipeline runs out of work.
func (r *Runner) runTUI(ctx context.Context, opts ui.Options, control ui.Controller, quitWhenIdle bool) error {
	model := ui.NewModel(ctx, r.orch, control, opts)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if quitWhenIdle {
		go r.watchIdle(ctx, p.Quit)
	}

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// redirectLogs sends logs to a file so they do not interfere with TUI rendering.
func (r *Runner) redirectLogs() error {
	path := r.config.Logging.File
	if path == "" {
		path = defaultTUILog
	}

	fileLogger, err := shared.NewFileLogger(path, r.config.Logging)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, r.logger.GetLevel())
	r.SetLogger(fileLogger)
	return nil
}
