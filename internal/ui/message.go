package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTick MsgKind = iota
	MsgBatchesFetched
	MsgBatchFetched
	MsgProgressUpdate
	MsgUpdatesClosed
	MsgActionDone
)

type batchesFetched struct {
	batches []*models.Batch
	err     error
}

type batchFetched struct {
	batch *models.BatchWithTracks
	err   error
}

type actionDone struct {
	action string
	err    error
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}

// batchesFetchedMsg is the constructor for [MsgBatchesFetched]
func batchesFetchedMsg(batches []*models.Batch, err error) Msg {
	return Msg{kind: MsgBatchesFetched, data: batchesFetched{batches, err}}
}

// batchFetchedMsg is the constructor for [MsgBatchFetched]
func batchFetchedMsg(bt *models.BatchWithTracks, err error) Msg {
	return Msg{kind: MsgBatchFetched, data: batchFetched{bt, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// updatesClosedMsg is the constructor for [MsgUpdatesClosed]
func updatesClosedMsg() Msg {
	return Msg{kind: MsgUpdatesClosed}
}

// actionDoneMsg is the constructor for [MsgActionDone]
func actionDoneMsg(action string, err error) Msg {
	return Msg{kind: MsgActionDone, data: actionDone{action, err}}
}
