package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// timeFormat is fixed width so TEXT ordering matches time ordering.
	timeFormat = "2006-01-02T15:04:05.000000Z"
)

// Repository stores batches and their device outcomes.
type Repository interface {
	SaveBatch(ctx context.Context, b *Batch) error
	SaveResult(ctx context.Context, r *Result) error
	FinishBatch(ctx context.Context, id string, ok, nok int, finishedAt time.Time) error
	GetBatch(ctx context.Context, id string) (*Batch, error)
	ListBatches(ctx context.Context, limit int) ([]Batch, error)
	ListResults(ctx context.Context, batchID string) ([]Result, error)
}

// SQLiteRepository implements Repository on the batches and batch_results tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

// SaveBatch inserts a batch. CreatedAt defaults to now and Status to running.
func (r *SQLiteRepository) SaveBatch(ctx context.Context, b *Batch) error {
	if b.ID == "" {
		return fmt.Errorf("batch id is required")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.Status == "" {
		b.Status = StatusRunning
	}

	var finishedAt any
	if b.FinishedAt != nil {
		finishedAt = formatTime(*b.FinishedAt)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO batches (id, name, operation, status, total, ok, nok, created_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Operation, string(b.Status), b.Total, b.OK, b.NOK,
		formatTime(b.CreatedAt), finishedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting batch %s: %w", b.ID, err)
	}
	return nil
}

// SaveResult stores one device outcome, replacing an earlier row for the
// same batch and device.
func (r *SQLiteRepository) SaveResult(ctx context.Context, res *Result) error {
	if res.BatchID == "" || res.DeviceID == "" {
		return fmt.Errorf("batch id and device id are required")
	}

	errsJSON, err := json.Marshal(res.Errors)
	if err != nil {
		return fmt.Errorf("marshalling errors: %w", err)
	}

	ok := 0
	if res.OK {
		ok = 1
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO batch_results
		   (batch_id, device_id, ok, errors, action, action_error, started_at, finished_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (batch_id, device_id) DO UPDATE SET
		   ok = excluded.ok,
		   errors = excluded.errors,
		   action = excluded.action,
		   action_error = excluded.action_error,
		   started_at = excluded.started_at,
		   finished_at = excluded.finished_at,
		   duration_ms = excluded.duration_ms`,
		res.BatchID, res.DeviceID, ok, string(errsJSON), res.Action, res.ActionError,
		formatTime(res.StartedAt), formatTime(res.FinishedAt), res.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting result %s/%s: %w", res.BatchID, res.DeviceID, err)
	}
	return nil
}

// FinishBatch marks a batch finished with its final counts.
func (r *SQLiteRepository) FinishBatch(ctx context.Context, id string, ok, nok int, finishedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE batches SET status = ?, ok = ?, nok = ?, finished_at = ? WHERE id = ?`,
		string(StatusFinished), ok, nok, formatTime(finishedAt), id,
	)
	if err != nil {
		return fmt.Errorf("finishing batch %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing batch %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	return nil
}

const batchColumns = `id, name, operation, status, total, ok, nok, created_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*Batch, error) {
	var (
		b          Batch
		status     string
		createdAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Operation, &status, &b.Total, &b.OK, &b.NOK, &createdAt, &finishedAt); err != nil {
		return nil, err
	}
	b.Status = Status(status)

	var err error
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at of batch %s: %w", b.ID, err)
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing finished_at of batch %s: %w", b.ID, err)
		}
		b.FinishedAt = &t
	}
	return &b, nil
}

// GetBatch returns one batch or ErrBatchNotFound.
func (r *SQLiteRepository) GetBatch(ctx context.Context, id string) (*Batch, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying batch %s: %w", id, err)
	}
	return b, nil
}

// ListBatches returns the most recent batches first.
// limit defaults to 50 and is capped at 200.
func (r *SQLiteRepository) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying batches: %w", err)
	}
	defer rows.Close()

	batches := make([]Batch, 0)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning batch: %w", err)
		}
		batches = append(batches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating batches: %w", err)
	}
	return batches, nil
}

// ListResults returns the stored outcomes of one batch in completion order.
func (r *SQLiteRepository) ListResults(ctx context.Context, batchID string) ([]Result, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT batch_id, device_id, ok, errors, action, action_error, started_at, finished_at, duration_ms
		 FROM batch_results WHERE batch_id = ? ORDER BY finished_at, device_id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("querying results of %s: %w", batchID, err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var (
			res                   Result
			ok                    int
			errsJSON              string
			startedAt, finishedAt string
		)
		if err := rows.Scan(&res.BatchID, &res.DeviceID, &ok, &errsJSON, &res.Action, &res.ActionError,
			&startedAt, &finishedAt, &res.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		res.OK = ok == 1

		var errs transaction.ErrorSet
		if err := json.Unmarshal([]byte(errsJSON), &errs); err != nil {
			return nil, fmt.Errorf("decoding errors of %s/%s: %w", res.BatchID, res.DeviceID, err)
		}
		res.Errors = errs

		if res.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if res.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return results, nil
}
