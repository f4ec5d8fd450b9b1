package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// AuditStore persists runs and operation records in SQLite.
type AuditStore struct {
	db   *sql.DB
	path string
}

// Config holds audit store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewAuditStore creates a store instance. Open it with Init.
func NewAuditStore(cfg Config) (*AuditStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &AuditStore{path: cfg.Path}, nil
}

// Init opens the database, enables WAL mode, and runs migrations.
func (s *AuditStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return s.migrate()
}

// Close closes the database connection.
func (s *AuditStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate applies the embedded schema migrations.
func (s *AuditStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// StartRun opens a new run for a device and returns its ID.
func (s *AuditStore) StartRun(ctx context.Context, device string) (string, error) {
	now := time.Now().UTC()
	id := uuid.New().String()

	query := `
		INSERT INTO runs (id, device, status, started_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, device, RunStatusRunning, now, now, now); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// FinishRun moves a run to a terminal state.
func (s *AuditStore) FinishRun(ctx context.Context, id string, status RunStatus, errMsg *string) error {
	now := time.Now().UTC()

	query := `
		UPDATE runs
		SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, status, errMsg, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *AuditStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, device, status, started_at, completed_at, error, created_at, updated_at
		FROM runs
		WHERE id = ?
	`

	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Device,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs newest first, optionally filtered by device.
func (s *AuditStore) ListRuns(ctx context.Context, device string, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, device, status, started_at, completed_at, error, created_at, updated_at
		FROM runs
		WHERE (? = '' OR device = ?)
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, device, device, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		if err := rows.Scan(
			&run.ID,
			&run.Device,
			&run.Status,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Error,
			&run.CreatedAt,
			&run.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecordOperation appends one operation record to a run.
func (s *AuditStore) RecordOperation(ctx context.Context, rec *OperationRecord) error {
	query := `
		INSERT INTO operations (run_id, device, name, ok, detail, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		rec.RunID,
		rec.Device,
		rec.Name,
		rec.OK,
		rec.Detail,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record operation: %w", err)
	}

	rec.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get operation id: %w", err)
	}
	return nil
}

// ListOperations lists a run's operation records in execution order.
func (s *AuditStore) ListOperations(ctx context.Context, runID string) ([]*OperationRecord, error) {
	query := `
		SELECT id, run_id, device, name, ok, detail, started_at, finished_at
		FROM operations
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	records := []*OperationRecord{}
	for rows.Next() {
		rec := &OperationRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.Device,
			&rec.Name,
			&rec.OK,
			&rec.Detail,
			&rec.StartedAt,
			&rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
