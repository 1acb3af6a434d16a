package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/shared"
)

var (
	_ list.Item = batchItem{}
	_ list.Item = trackItem{}
)

// batchItem wraps [models.Batch] to implement [list.Item].
type batchItem struct {
	batch *models.Batch
}

func (i batchItem) FilterValue() string { return i.batch.SourceName }
func (i batchItem) Title() string       { return i.batch.SourceName }
func (i batchItem) Description() string {
	desc := fmt.Sprintf("%s • %d/%d tracks", styles.forBatch(i.batch.State).Render(string(i.batch.State)), i.batch.Finished(), i.batch.TotalTracks)
	if i.batch.ErrorCode != models.ErrorNone {
		desc = fmt.Sprintf("%s • %s", desc, i.batch.ErrorCode)
	}
	return desc
}

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	track *models.Track
}

func (i trackItem) FilterValue() string { return i.track.Label() }
func (i trackItem) Title() string {
	return fmt.Sprintf("%03d %s", i.track.Position, i.track.Label())
}
func (i trackItem) Description() string {
	t := i.track
	desc := styles.forTrack(t.Status).Render(string(t.Status))
	if t.ErrorCode != models.ErrorNone {
		desc = fmt.Sprintf("%s (%s)", desc, t.ErrorCode)
	}
	if t.VideoID != "" {
		desc = fmt.Sprintf("%s • %s %.2f", desc, t.VideoID, t.Confidence())
	}
	if t.Status == models.TrackDownloading && t.BytesDownloaded != nil {
		desc = fmt.Sprintf("%s • %s", desc, shared.FormatBytes(*t.BytesDownloaded))
		if t.TotalBytes != nil {
			desc = fmt.Sprintf("%s (%.0f%%)", desc, t.Progress()*100)
		}
	}
	if t.RetryCount > 0 {
		desc = fmt.Sprintf("%s • retry %d", desc, t.RetryCount)
	}
	return desc
}
