package tasks

import (
	"fmt"

	"github.com/desertthunder/beatq/internal/models"
)

// ProgressUpdate represents a pipeline event for one track.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase         // Pipeline phase
	BatchID string        // Owning batch
	Step    int           // Finished tracks in the batch
	Total   int           // Tracks in the batch
	Message string        // Human-readable message for display
	Track   *models.Track // Snapshot of the track after the event
}

// Pipeline phase enumeration
type Phase int

const (
	Submitted Phase = iota
	AwaitingUser
	Queued
	Downloading
	Completed
	Failed
	Retrying
	Cancelled
)

func (p Phase) String() string {
	switch p {
	case Submitted:
		return "submitted"
	case AwaitingUser:
		return "awaiting_user"
	case Queued:
		return "queued"
	case Downloading:
		return "downloading"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Retrying:
		return "retrying"
	case Cancelled:
		return "cancelled"
	default:
		return ""
	}
}

func submittedUpdate(b *models.Batch) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Submitted,
		BatchID: b.ID,
		Total:   b.TotalTracks,
		Message: fmt.Sprintf("Submitted %s (%d tracks)", b.SourceName, b.TotalTracks),
	}
}

func trackUpdate(phase Phase, b *models.Batch, t *models.Track) ProgressUpdate {
	snapshot := *t
	u := ProgressUpdate{
		Phase:   phase,
		BatchID: b.ID,
		Step:    b.Finished(),
		Total:   b.TotalTracks,
		Track:   &snapshot,
	}

	label := fmt.Sprintf("[%d/%d] %s", u.Step, u.Total, t.Label())
	switch phase {
	case AwaitingUser:
		u.Message = fmt.Sprintf("%s needs a manual match (%.2f)", label, t.Confidence())
	case Queued:
		u.Message = fmt.Sprintf("%s queued %s (%.2f)", label, t.VideoID, t.Confidence())
	case Downloading:
		u.Message = fmt.Sprintf("%s downloading", label)
	case Completed:
		u.Message = fmt.Sprintf("%s ✓ %s", label, t.OutputPath)
	case Failed:
		u.Message = fmt.Sprintf("%s ✗ %s", label, t.ErrorCode)
	case Retrying:
		u.Message = fmt.Sprintf("%s retry %d", label, t.RetryCount)
	default:
		u.Message = label
	}
	return u
}

func cancelledUpdate(b *models.Batch, n int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Cancelled,
		BatchID: b.ID,
		Step:    b.Finished(),
		Total:   b.TotalTracks,
		Message: fmt.Sprintf("Cancelled %s (%d tracks stopped)", b.SourceName, n),
	}
}
