// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/beatq/internal/formatter"
	"github.com/urfave/cli/v3"
)

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

// importCommand extracts a playlist and submits it as a batch
func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Extract a Spotify or YouTube playlist and queue it as a batch",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "url"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Override the batch name (defaults to the playlist name)",
			},
			jsonFlag(),
		},
		Action: r.Import,
	}
}

// runCommand starts the matching and download pipeline
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Match and download queued tracks until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "until-idle",
				Usage: "Exit once no work is running or waiting",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show the interactive watcher while running",
			},
		},
		Action: r.Run,
	}
}

// batchCommand inspects and controls batches and their tracks
func batchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Inspect and control batches",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List batches, newest first",
				Flags:   []cli.Flag{jsonFlag()},
				Action:  r.BatchList,
			},
			{
				Name:      "status",
				Usage:     "Show a batch and its tracks",
				Arguments: []cli.Argument{&cli.StringArg{Name: "batch-id"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.BatchStatus,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a batch, stopping in-flight downloads",
				Arguments: []cli.Argument{&cli.StringArg{Name: "batch-id"}},
				Action:    r.BatchCancel,
			},
			{
				Name:      "retry",
				Usage:     "Queue a failed track for another download attempt",
				Arguments: []cli.Argument{&cli.StringArg{Name: "track-id"}},
				Action:    r.BatchRetry,
			},
			{
				Name:  "resolve",
				Usage: "Assign a video to a track awaiting a manual match",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "track-id"},
					&cli.StringArg{Name: "video-id"},
				},
				Action: r.BatchResolve,
			},
			{
				Name:      "candidates",
				Usage:     "Search videos for a track, best match first",
				Arguments: []cli.Argument{&cli.StringArg{Name: "track-id"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.BatchCandidates,
			},
			{
				Name:      "skip",
				Usage:     "Give up on a track awaiting a manual match",
				Arguments: []cli.Argument{&cli.StringArg{Name: "track-id"}},
				Action:    r.BatchSkip,
			},
			{
				Name:      "export",
				Usage:     "Write a batch report",
				Arguments: []cli.Argument{&cli.StringArg{Name: "batch-id"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Report format: json, csv, markdown or txt",
						Value:   formatter.FormatJSON,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory",
						Value:   ".",
					},
					&cli.BoolFlag{
						Name:  "no-cover",
						Usage: "Skip downloading the cover image for markdown reports",
					},
				},
				Action: r.BatchExport,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a finished batch and its tracks",
				Arguments: []cli.Argument{&cli.StringArg{Name: "batch-id"}},
				Action:    r.BatchDelete,
			},
		},
	}
}

// cacheCommand manages the persistent match cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the match cache",
		Commands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Count positive and negative match cache entries",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.CacheStats,
			},
			{
				Name:   "purge",
				Usage:  "Drop expired negative match cache entries",
				Action: r.CachePurge,
			},
			{
				Name:  "lookup",
				Usage: "Show the cached decision for a track",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "title",
						Usage:    "Track title",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "artist",
						Usage: "Track artist",
					},
					&cli.IntFlag{
						Name:  "duration",
						Usage: "Track duration in seconds",
					},
					jsonFlag(),
				},
				Action: r.CacheLookup,
			},
		},
	}
}

// watchCommand opens the interactive batch watcher
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Aliases:   []string{"tui"},
		Usage:     "Watch batches in an interactive terminal UI",
		Arguments: []cli.Argument{&cli.StringArg{Name: "batch-id"}},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "read-only",
				Usage: "Disable cancel, retry, skip and manual match actions",
			},
		},
		Action: r.Watch,
	}
}
