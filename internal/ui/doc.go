// Package ui implements a terminal batch watcher using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [BatchListView] : Browse batches with their derived state and counts
//  2. [BatchView] : Follow one batch track by track, with download progress
//
// The [Model] polls a [Source] on a fixed interval, so it works against a store written by another process.
// When an update channel is supplied it also shows the latest [tasks.ProgressUpdate] as it arrives.
//
// From the batch view, tracks can be retried, skipped or matched by hand through a [Controller], and the whole batch can be cancelled.
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
