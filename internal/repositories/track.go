package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/shared"
)

const trackColumns = `
	id, batch_id, sequence, position, fingerprint, title, artist, album,
	duration_seconds, thumbnail_url, source_platform, video_id, match_confidence,
	status, error_code, output_path, retry_count, last_attempt_at,
	bytes_downloaded, total_bytes, created_at, updated_at
`

// TrackRepository persists [models.Track] rows.
//
// Listing queries always order by sequence so callers observe insertion order.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// insert assigns identity and writes the track through q.
func (r *TrackRepository) insert(ctx context.Context, q querier, track *models.Track) error {
	sequence, err := nextSequenceTx(ctx, q, "tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if track.ID == "" {
		track.ID = shared.GenerateID()
	}
	track.Sequence = sequence
	if track.CreatedAt.IsZero() {
		track.CreatedAt = time.Now()
	}

	if err := prepare(track, time.Now()); err != nil {
		return err
	}

	query := `INSERT INTO tracks (` + trackColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = q.ExecContext(ctx, query,
		track.ID,
		track.BatchID,
		track.Sequence,
		track.Position,
		track.Fingerprint,
		track.Title,
		track.Artist,
		track.Album,
		nullInt(track.DurationSeconds),
		nullString(track.ThumbnailURL),
		string(track.SourcePlatform),
		nullString(track.VideoID),
		nullFloat(track.MatchConfidence),
		string(track.Status),
		nullString(string(track.ErrorCode)),
		nullString(track.OutputPath),
		track.RetryCount,
		nullTime(track.LastAttemptAt),
		nullInt64(track.BytesDownloaded),
		nullInt64(track.TotalBytes),
		track.CreatedAt,
		track.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}
	return nil
}

// Get retrieves a track by ID.
func (r *TrackRepository) Get(ctx context.Context, id string) (*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	track, err := scanTrack(r.db.QueryRowContext(ctx, query, id))
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}
	return track, err
}

// Update writes every mutable column of the track.
func (r *TrackRepository) Update(ctx context.Context, track *models.Track) error {
	if err := prepare(track, time.Now()); err != nil {
		return err
	}

	query := `
		UPDATE tracks
		SET video_id = ?, match_confidence = ?, status = ?, error_code = ?,
			output_path = ?, retry_count = ?, last_attempt_at = ?,
			bytes_downloaded = ?, total_bytes = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		nullString(track.VideoID),
		nullFloat(track.MatchConfidence),
		string(track.Status),
		nullString(string(track.ErrorCode)),
		nullString(track.OutputPath),
		track.RetryCount,
		nullTime(track.LastAttemptAt),
		nullInt64(track.BytesDownloaded),
		nullInt64(track.TotalBytes),
		track.UpdatedAt,
		track.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update track: %w", err)
	}
	return expectOne(result, shared.ErrTrackNotFound, track.ID)
}

// ListByBatch retrieves the tracks of a batch in insertion order.
func (r *TrackRepository) ListByBatch(ctx context.Context, batchID string) ([]*models.Track, error) {
	return r.listByBatch(ctx, r.db, batchID)
}

func (r *TrackRepository) listByBatch(ctx context.Context, q querier, batchID string) ([]*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE batch_id = ? ORDER BY sequence ASC`
	return r.query(ctx, q, query, batchID)
}

// ListByStatus retrieves tracks in any of the given statuses across all batches, in insertion order.
func (r *TrackRepository) ListByStatus(ctx context.Context, statuses ...models.TrackStatus) ([]*models.Track, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args[i] = string(s)
	}

	query := `SELECT ` + trackColumns + ` FROM tracks WHERE status IN (` + strings.Join(placeholders, ", ") + `) ORDER BY sequence ASC`
	return r.query(ctx, r.db, query, args...)
}

// ResetStalled moves tracks interrupted mid-flight back to a resumable status.
//
// MATCHING tracks return to EXTRACTED, as do MATCHED and MATCHED_LOW_CONFIDENCE tracks without a video. Matched tracks with a video,
// DISPATCHING and DOWNLOADING tracks return to QUEUED with their partial progress cleared.
func (r *TrackRepository) ResetStalled(ctx context.Context) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	var total int64

	result, err := tx.ExecContext(ctx,
		`UPDATE tracks SET status = ?, updated_at = ?
		 WHERE status = ? OR (status IN (?, ?) AND COALESCE(video_id, '') = '')`,
		string(models.TrackExtracted), now, string(models.TrackMatching),
		string(models.TrackMatched), string(models.TrackMatchedLowConfidence),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset matching tracks: %w", err)
	}
	n, _ := result.RowsAffected()
	total += n

	result, err = tx.ExecContext(ctx,
		`UPDATE tracks SET status = ?, bytes_downloaded = NULL, total_bytes = NULL, updated_at = ? WHERE status IN (?, ?, ?, ?)`,
		string(models.TrackQueued), now,
		string(models.TrackMatched), string(models.TrackMatchedLowConfidence),
		string(models.TrackDispatching), string(models.TrackDownloading),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset downloading tracks: %w", err)
	}
	n, _ = result.RowsAffected()
	total += n

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit stalled reset: %w", err)
	}
	return total, nil
}

func (r *TrackRepository) query(ctx context.Context, q querier, query string, args ...any) ([]*models.Track, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

// scanTrack scans one row selected with trackColumns.
func scanTrack(row rowScanner) (*models.Track, error) {
	var (
		t               models.Track
		duration        sql.NullInt64
		thumbnail       sql.NullString
		platform        string
		videoID         sql.NullString
		confidence      sql.NullFloat64
		status          string
		errorCode       sql.NullString
		outputPath      sql.NullString
		lastAttemptAt   sql.NullTime
		bytesDownloaded sql.NullInt64
		totalBytes      sql.NullInt64
	)

	err := row.Scan(
		&t.ID, &t.BatchID, &t.Sequence, &t.Position, &t.Fingerprint, &t.Title, &t.Artist, &t.Album,
		&duration, &thumbnail, &platform, &videoID, &confidence,
		&status, &errorCode, &outputPath, &t.RetryCount, &lastAttemptAt,
		&bytesDownloaded, &totalBytes, &t.CreatedAt, &t.UpdatedAt,
	)
	if isNoRows(err) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	t.SourcePlatform = models.SourcePlatform(platform)
	t.Status = models.TrackStatus(status)
	t.ErrorCode = models.ErrorCode(errorCode.String)
	t.ThumbnailURL = thumbnail.String
	t.VideoID = videoID.String
	t.OutputPath = outputPath.String

	if duration.Valid {
		d := int(duration.Int64)
		t.DurationSeconds = &d
	}
	if confidence.Valid {
		c := confidence.Float64
		t.MatchConfidence = &c
	}
	if lastAttemptAt.Valid {
		la := lastAttemptAt.Time
		t.LastAttemptAt = &la
	}
	if bytesDownloaded.Valid {
		b := bytesDownloaded.Int64
		t.BytesDownloaded = &b
	}
	if totalBytes.Valid {
		tb := totalBytes.Int64
		t.TotalBytes = &tb
	}
	return &t, nil
}
