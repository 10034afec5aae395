// Package db implements the optional run archive: completed operation runs
// and acquired spectra recorded in PostgreSQL for later analysis.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/goa-uva/solys2scope/pkg/config"
)

//go:embed schema.sql
var schemaSQL embed.FS

// DB wraps a database connection with helper methods.
type DB struct {
	*sql.DB
	config config.DatabaseConfig
}

// Connect establishes a connection to the PostgreSQL run archive.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)

	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB, config: cfg}, nil
}

// InitSchema creates or updates the database schema.
// This should be called once at application startup.
func (db *DB) InitSchema(ctx context.Context) error {
	schemaBytes, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// CleanupOldData removes archived runs older than maxAge, together with
// their spectrum records. Spectrum files on disk are kept.
func (db *DB) CleanupOldData(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().UTC().Add(-maxAge)

	_, err := db.ExecContext(ctx,
		`DELETE FROM spectra WHERE run_id IN (SELECT id FROM runs WHERE started_at < $1)`,
		cutoff,
	)
	if err != nil {
		return fmt.Errorf("failed to delete old spectra: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`DELETE FROM runs WHERE started_at < $1`,
		cutoff,
	)
	if err != nil {
		return fmt.Errorf("failed to delete old runs: %w", err)
	}

	return nil
}

// GetStats returns archive statistics for the status endpoints.
func (db *DB) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var activeRuns int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE finished_at IS NULL`,
	).Scan(&activeRuns)
	if err != nil {
		return nil, err
	}
	stats["active_runs"] = activeRuns

	var completedRuns int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE status = 'completed'`,
	).Scan(&completedRuns)
	if err != nil {
		return nil, err
	}
	stats["completed_runs"] = completedRuns

	var failedRuns int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE status = 'failed'`,
	).Scan(&failedRuns)
	if err != nil {
		return nil, err
	}
	stats["failed_runs"] = failedRuns

	var spectrumCount int64
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM spectra`,
	).Scan(&spectrumCount)
	if err != nil {
		return nil, err
	}
	stats["spectrum_records"] = spectrumCount

	return stats, nil
}
