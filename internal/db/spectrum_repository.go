package db

import (
	"context"
	"fmt"
	"time"
)

// SpectrumRecord represents one archived spectrum acquisition: the detector
// configuration it was taken with and where the serialized file lives.
type SpectrumRecord struct {
	ID              int       `json:"id"`
	RunID           int       `json:"runId"`
	AcquiredAt      time.Time `json:"acquiredAt"`
	IntegrationTime int       `json:"integrationTime"`
	Drift           int       `json:"drift"`
	SWIR1Gain       int       `json:"swir1Gain"`
	SWIR1Offset     int       `json:"swir1Offset"`
	SWIR2Gain       int       `json:"swir2Gain"`
	SWIR2Offset     int       `json:"swir2Offset"`
	FilePath        string    `json:"filePath"`
}

// SpectrumRepository provides methods for archiving spectrum acquisitions.
type SpectrumRepository struct {
	db *DB
}

// NewSpectrumRepository creates a new spectrum repository.
func NewSpectrumRepository(db *DB) *SpectrumRepository {
	return &SpectrumRepository{db: db}
}

// Create records one acquisition and fills in its ID.
func (r *SpectrumRepository) Create(ctx context.Context, record *SpectrumRecord) error {
	query := `
		INSERT INTO spectra (run_id, acquired_at, integration_time, drift,
			swir1_gain, swir1_offset, swir2_gain, swir2_offset, file_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		record.RunID,
		record.AcquiredAt.UTC(),
		record.IntegrationTime,
		record.Drift,
		record.SWIR1Gain,
		record.SWIR1Offset,
		record.SWIR2Gain,
		record.SWIR2Offset,
		record.FilePath,
	).Scan(&record.ID)

	if err != nil {
		return fmt.Errorf("failed to create spectrum record: %w", err)
	}
	return nil
}

// ForRun returns every acquisition archived for a run, oldest first.
func (r *SpectrumRepository) ForRun(ctx context.Context, runID int) ([]SpectrumRecord, error) {
	query := `
		SELECT id, run_id, acquired_at, integration_time, drift,
			swir1_gain, swir1_offset, swir2_gain, swir2_offset, file_path
		FROM spectra
		WHERE run_id = $1
		ORDER BY acquired_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query spectra: %w", err)
	}
	defer rows.Close()

	var records []SpectrumRecord
	for rows.Next() {
		var record SpectrumRecord
		err := rows.Scan(
			&record.ID,
			&record.RunID,
			&record.AcquiredAt,
			&record.IntegrationTime,
			&record.Drift,
			&record.SWIR1Gain,
			&record.SWIR1Offset,
			&record.SWIR2Gain,
			&record.SWIR2Offset,
			&record.FilePath,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan spectrum record: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}

// Count returns the number of acquisitions archived for a run.
func (r *SpectrumRepository) Count(ctx context.Context, runID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM spectra WHERE run_id = $1`,
		runID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count spectra: %w", err)
	}
	return count, nil
}
