package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run statuses. A run stays "running" until its session reaches a terminal
// state.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusCancelled = "cancelled"
	RunStatusFailed    = "failed"
)

// Run represents one archived operation run.
type Run struct {
	ID         int        `json:"id"`
	Operation  string     `json:"operation"`
	Body       string     `json:"body"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Status     string     `json:"status"`
	ErrorText  string     `json:"errorText,omitempty"`
	LogFile    string     `json:"logFile,omitempty"`
}

// RunRepository provides methods for archiving operation runs.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create records a newly started run and fills in its ID.
func (r *RunRepository) Create(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (operation, body, started_at, status, log_file)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		run.Operation,
		run.Body,
		run.StartedAt.UTC(),
		RunStatusRunning,
		run.LogFile,
	).Scan(&run.ID)

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	run.Status = RunStatusRunning
	return nil
}

// Finish records a run's terminal state.
func (r *RunRepository) Finish(ctx context.Context, runID int, status, errorText string) error {
	if status != RunStatusCompleted && status != RunStatusCancelled && status != RunStatusFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}

	query := `
		UPDATE runs
		SET finished_at = NOW(), status = $1, error_text = $2
		WHERE id = $3 AND finished_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, status, errorText, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %d not found or already finished", runID)
	}
	return nil
}

// GetByID returns one archived run.
func (r *RunRepository) GetByID(ctx context.Context, runID int) (*Run, error) {
	query := `
		SELECT id, operation, body, started_at, finished_at, status, error_text, log_file
		FROM runs
		WHERE id = $1
	`

	var run Run
	var finishedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, runID).Scan(
		&run.ID,
		&run.Operation,
		&run.Body,
		&run.StartedAt,
		&finishedAt,
		&run.Status,
		&run.ErrorText,
		&run.LogFile,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

// Recent returns the latest runs, newest first.
func (r *RunRepository) Recent(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, operation, body, started_at, finished_at, status, error_text, log_file
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var finishedAt sql.NullTime
		err := rows.Scan(
			&run.ID,
			&run.Operation,
			&run.Body,
			&run.StartedAt,
			&finishedAt,
			&run.Status,
			&run.ErrorText,
			&run.LogFile,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, run)
	}

	return runs, nil
}

// Active returns runs that have not reached a terminal state.
func (r *RunRepository) Active(ctx context.Context) ([]Run, error) {
	query := `
		SELECT id, operation, body, started_at, finished_at, status, error_text, log_file
		FROM runs
		WHERE finished_at IS NULL
		ORDER BY started_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var finishedAt sql.NullTime
		err := rows.Scan(
			&run.ID,
			&run.Operation,
			&run.Body,
			&run.StartedAt,
			&finishedAt,
			&run.Status,
			&run.ErrorText,
			&run.LogFile,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, nil
}
