package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/beatq/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// forTrack picks the style for a track status.
func (p *Palette) forTrack(s models.TrackStatus) lipgloss.Style {
	switch s {
	case models.TrackCompleted:
		return p.ok
	case models.TrackFailed:
		return p.err
	case models.TrackMatchingManual, models.TrackMatchedLowConfidence:
		return p.warn
	default:
		return p.help
	}
}

// forBatch picks the style for a batch state.
func (p *Palette) forBatch(s models.BatchState) lipgloss.Style {
	switch s {
	case models.BatchCompleted:
		return p.ok
	case models.BatchFailed:
		return p.err
	case models.BatchAwaitingUser:
		return p.warn
	default:
		return p.help
	}
}
