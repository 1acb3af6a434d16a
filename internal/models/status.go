package models

// TrackStatus is the lifecycle status of a single track.
type TrackStatus string

const (
	TrackExtracted            TrackStatus = "EXTRACTED"
	TrackMatching             TrackStatus = "MATCHING"
	TrackMatched              TrackStatus = "MATCHED"
	TrackMatchedLowConfidence TrackStatus = "MATCHED_LOW_CONFIDENCE"
	TrackMatchingManual       TrackStatus = "MATCHING_MANUAL"
	TrackDispatching          TrackStatus = "DISPATCHING"
	TrackQueued               TrackStatus = "QUEUED"
	TrackDownloading          TrackStatus = "DOWNLOADING"
	TrackCompleted            TrackStatus = "COMPLETED"
	TrackFailed               TrackStatus = "FAILED"
)

// TrackStatuses lists every status in lifecycle order.
var TrackStatuses = []TrackStatus{
	TrackExtracted,
	TrackMatching,
	TrackMatched,
	TrackMatchedLowConfidence,
	TrackMatchingManual,
	TrackDispatching,
	TrackQueued,
	TrackDownloading,
	TrackCompleted,
	TrackFailed,
}

// Terminal reports whether no further automatic transition leaves s.
func (s TrackStatus) Terminal() bool {
	return s == TrackCompleted || s == TrackFailed
}

// Valid reports whether s is a known status.
func (s TrackStatus) Valid() bool {
	for _, known := range TrackStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// BatchState is the derived lifecycle state of a batch.
type BatchState string

const (
	BatchExtracting   BatchState = "EXTRACTING"
	BatchMatching     BatchState = "MATCHING"
	BatchAwaitingUser BatchState = "AWAITING_USER"
	BatchDownloading  BatchState = "DOWNLOADING"
	BatchQueued       BatchState = "QUEUED"
	BatchCompleted    BatchState = "COMPLETED"
	BatchFailed       BatchState = "FAILED"
)

// Terminal reports whether every track of a batch in state s is finished.
func (s BatchState) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// ErrorCode classifies why a track or batch failed.
type ErrorCode string

const (
	ErrorNone            ErrorCode = ""
	ErrorNoMatch         ErrorCode = "NO_MATCH"
	ErrorResolveFailed   ErrorCode = "RESOLVE_FAILED"
	ErrorDownloadFailed  ErrorCode = "DOWNLOAD_FAILED"
	ErrorStorageFailed   ErrorCode = "STORAGE_FAILED"
	ErrorCancelled       ErrorCode = "CANCELLED"
	ErrorUserSkipped     ErrorCode = "USER_SKIPPED"
	ErrorAllTracksFailed ErrorCode = "ALL_TRACKS_FAILED"
)

// SourcePlatform tags where a track was extracted from.
type SourcePlatform string

const (
	PlatformYouTube    SourcePlatform = "YOUTUBE"
	PlatformSpotify    SourcePlatform = "SPOTIFY"
	PlatformAppleMusic SourcePlatform = "APPLE_MUSIC"
)

// Valid reports whether p is a known platform.
func (p SourcePlatform) Valid() bool {
	switch p {
	case PlatformYouTube, PlatformSpotify, PlatformAppleMusic:
		return true
	}
	return false
}
