// Package store keeps a history of prioritization runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("store: run not found")

const dirPerm = 0o750

// DefaultPath returns the default database path (~/.testfang/history.db).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(home, ".testfang", "history.db")
}

// Run is one recorded prioritization.
type Run struct {
	ID           string        `json:"id" yaml:"id"`
	CreatedAt    time.Time     `json:"created_at" yaml:"created_at"`
	Algorithm    string        `json:"algorithm" yaml:"algorithm"`
	CoveragePath string        `json:"coverage_path" yaml:"coverage_path"`
	Size         int           `json:"size" yaml:"size"`
	Seed         uint64        `json:"seed" yaml:"seed"`
	Selected     []string      `json:"selected" yaml:"selected"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
}

// Store is a SQLite backed run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies migrations.
// The special path ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// One connection keeps an in-memory database alive and serializes writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}

	if err = s.Migrate(ctx); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema when missing.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			algorithm TEXT NOT NULL,
			coverage_path TEXT NOT NULL,
			size INTEGER NOT NULL,
			seed INTEGER NOT NULL DEFAULT 0,
			selected_json TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

// Record inserts run, filling in its id and creation time when unset.
func (s *Store) Record(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	selected, err := json.Marshal(run.Selected)
	if err != nil {
		return fmt.Errorf("marshal selection: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, algorithm, coverage_path, size, seed, selected_json, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, run.Algorithm, run.CoveragePath, run.Size,
		int64(run.Seed), string(selected), run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	return nil
}

const runColumns = `id, created_at, algorithm, coverage_path, size, seed, selected_json, duration_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run        Run
		seed       int64
		selected   string
		durationMS int64
	)

	err := row.Scan(&run.ID, &run.CreatedAt, &run.Algorithm, &run.CoveragePath,
		&run.Size, &seed, &selected, &durationMS)
	if err != nil {
		return nil, err
	}

	if err = json.Unmarshal([]byte(selected), &run.Selected); err != nil {
		return nil, fmt.Errorf("decode selection of run %s: %w", run.ID, err)
	}

	run.Seed = uint64(seed)
	run.Duration = time.Duration(durationMS) * time.Millisecond

	return &run, nil
}

// Get returns the run with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	return run, nil
}

// List returns up to limit runs, newest first. A limit of 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id`
	args := []any{}

	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run

	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("list runs: %w", scanErr)
		}

		runs = append(runs, run)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	return runs, nil
}

// Delete removes the run with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return nil
}
