package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed = fmt.Errorf("authentication failed")

	// API and service errors
	ErrAPIRequest        = fmt.Errorf("API request failed")
	ErrPlaylistNotFound  = fmt.Errorf("playlist not found")
	ErrUnsupportedSource = fmt.Errorf("unsupported playlist source")

	// Persistence and cache errors
	ErrBatchNotFound    = fmt.Errorf("batch not found")
	ErrTrackNotFound    = fmt.Errorf("track not found")
	ErrCacheUnavailable = fmt.Errorf("match cache unavailable")

	// Pipeline errors
	ErrInvalidTransition = fmt.Errorf("invalid status transition")
	ErrBatchCancelled    = fmt.Errorf("batch cancelled")
	ErrNoStreamURL       = fmt.Errorf("no playable stream found")
	ErrDownloadFailed    = fmt.Errorf("download failed")
	ErrNoVideo           = fmt.Errorf("track has no matched video")
	ErrLocked            = fmt.Errorf("another process holds the run lock")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
