package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/shared"
)

const batchColumns = `
	id, sequence, source_name, source_url, total_tracks, completed_count,
	failed_count, total_bytes_downloaded, average_download_speed, total_retries,
	state, error_code, cancelled_at, created_at, updated_at
`

// BatchRepository persists [models.Batch] rows.
type BatchRepository struct {
	db *sql.DB
}

// NewBatchRepository creates a new BatchRepository with the given database connection
func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a batch with a generated ID and sequence.
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.insert(ctx, tx, batch); err != nil {
		return err
	}
	return tx.Commit()
}

// insert assigns identity and writes the batch through q.
func (r *BatchRepository) insert(ctx context.Context, q querier, batch *models.Batch) error {
	sequence, err := nextSequenceTx(ctx, q, "batches")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if batch.ID == "" {
		batch.ID = shared.GenerateID()
	}
	batch.Sequence = sequence
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now()
	}

	if err := prepare(batch, time.Now()); err != nil {
		return err
	}

	query := `INSERT INTO batches (` + batchColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = q.ExecContext(ctx, query,
		batch.ID,
		batch.Sequence,
		batch.SourceName,
		batch.SourceURL,
		batch.TotalTracks,
		batch.CompletedCount,
		batch.FailedCount,
		batch.TotalBytesDownloaded,
		batch.AverageDownloadSpeed,
		batch.TotalRetries,
		string(batch.State),
		nullString(string(batch.ErrorCode)),
		nullTime(batch.CancelledAt),
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

// Get retrieves a batch by ID.
func (r *BatchRepository) Get(ctx context.Context, id string) (*models.Batch, error) {
	return r.get(ctx, r.db, id)
}

func (r *BatchRepository) get(ctx context.Context, q querier, id string) (*models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = ?`
	batch, err := scanBatch(q.QueryRowContext(ctx, query, id))
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", shared.ErrBatchNotFound, id)
	}
	return batch, err
}

// Update writes every mutable column of the batch.
func (r *BatchRepository) Update(ctx context.Context, batch *models.Batch) error {
	if err := prepare(batch, time.Now()); err != nil {
		return err
	}

	query := `
		UPDATE batches
		SET total_tracks = ?, completed_count = ?, failed_count = ?,
			total_bytes_downloaded = ?, average_download_speed = ?, total_retries = ?,
			state = ?, error_code = ?, cancelled_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		batch.TotalTracks,
		batch.CompletedCount,
		batch.FailedCount,
		batch.TotalBytesDownloaded,
		batch.AverageDownloadSpeed,
		batch.TotalRetries,
		string(batch.State),
		nullString(string(batch.ErrorCode)),
		nullTime(batch.CancelledAt),
		batch.UpdatedAt,
		batch.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	return expectOne(result, shared.ErrBatchNotFound, batch.ID)
}

// Delete removes a batch. Its tracks are removed by the foreign key cascade.
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM batches WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	return expectOne(result, shared.ErrBatchNotFound, id)
}

// List retrieves all batches, newest first.
func (r *BatchRepository) List(ctx context.Context) ([]*models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches ORDER BY sequence DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []*models.Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return batches, nil
}

// scanBatch scans one row selected with batchColumns.
func scanBatch(row rowScanner) (*models.Batch, error) {
	var (
		b           models.Batch
		state       string
		errorCode   sql.NullString
		cancelledAt sql.NullTime
	)

	err := row.Scan(
		&b.ID, &b.Sequence, &b.SourceName, &b.SourceURL, &b.TotalTracks, &b.CompletedCount,
		&b.FailedCount, &b.TotalBytesDownloaded, &b.AverageDownloadSpeed, &b.TotalRetries,
		&state, &errorCode, &cancelledAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if isNoRows(err) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan batch: %w", err)
	}

	b.State = models.BatchState(state)
	b.ErrorCode = models.ErrorCode(errorCode.String)
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	return &b, nil
}
