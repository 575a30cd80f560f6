// Package ledger is the local publish and status sink. It keeps run history,
// attached logs, per-object notes and published result versions in SQLite and
// writes each published bundle next to its case directory.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"cfdwind/internal/bundle"
	"cfdwind/internal/logging"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ResultFile is the name of the published bundle inside a run's export directory.
const ResultFile = "result.json"

// ErrUnknownRun is returned when looking up a run that was never recorded.
var ErrUnknownRun = errors.New("unknown run")

// Store manages the ledger database.
type Store struct {
	db         *sql.DB
	dbPath     string
	exportRoot string
	mu         sync.Mutex
	now        func() time.Time
}

// Open creates or opens the ledger at dbPath. Published bundles are written
// under exportRoot/<run id>/.
func Open(dbPath, exportRoot string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; WAL readers still work through the same handle
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: dbPath, exportRoot: exportRoot, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.LedgerDebug("Ledger opened at %s", dbPath)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		inputs_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

	CREATE TABLE IF NOT EXISTS attachments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);
	CREATE INDEX IF NOT EXISTS idx_attachments_run ON attachments(run_id);

	CREATE TABLE IF NOT EXISTS objects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		object_id TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);
	CREATE INDEX IF NOT EXISTS idx_objects_run ON objects(run_id);

	CREATE TABLE IF NOT EXISTS versions (
		version_id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		item_count INTEGER NOT NULL,
		path TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);
	CREATE INDEX IF NOT EXISTS idx_versions_run ON versions(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// ensureRun creates the run row on first contact.
func (s *Store) ensureRun(ctx context.Context, runID string) error {
	ts := s.timestamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (run_id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		runID, StatusRunning, ts, ts)
	return err
}

// StartRun records the start of a run and its inputs. Starting an existing run
// id again resets its status and drops the attachments, object notes and
// versions of the earlier attempt.
func (s *Store) StartRun(ctx context.Context, runID string, inputs any) error {
	data, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start run %s: %w", runID, err)
	}
	defer tx.Rollback()

	for _, table := range []string{"attachments", "objects", "versions"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("start run %s: clear %s: %w", runID, table, err)
		}
	}
	ts := s.timestamp()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, status, inputs_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET status = excluded.status, message = '',
			inputs_json = excluded.inputs_json, updated_at = excluded.updated_at`,
		runID, StatusRunning, string(data), ts, ts)
	if err != nil {
		return fmt.Errorf("start run %s: %w", runID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("start run %s: %w", runID, err)
	}
	logging.Ledger("Run %s started", runID)
	return nil
}

// AttachFile records a file produced by the run.
func (s *Store) AttachFile(ctx context.Context, runID, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("attach %s: %w", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureRun(ctx, runID); err != nil {
		return fmt.Errorf("attach %s: %w", path, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attachments (run_id, name, path, size, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, filepath.Base(path), path, info.Size(), s.timestamp())
	if err != nil {
		return fmt.Errorf("attach %s: %w", path, err)
	}
	logging.LedgerDebug("Attached %s to run %s", filepath.Base(path), runID)
	return nil
}

// Publish writes b as result.json under the run's export directory and
// records a new version.
func (s *Store) Publish(ctx context.Context, runID string, b bundle.Bundle) (string, error) {
	data, err := b.MarshalIndent()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.exportRoot, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	path := filepath.Join(dir, ResultFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureRun(ctx, runID); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	versionID := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO versions (version_id, run_id, item_count, path, created_at) VALUES (?, ?, ?, ?, ?)`,
		versionID, runID, b.Len(), path, s.timestamp())
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	logging.Ledger("Published version %s for run %s (%d items)", versionID, runID, b.Len())
	return versionID, nil
}

// AddObjectInfo records a note against an input object.
func (s *Store) AddObjectInfo(ctx context.Context, runID, objectID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureRun(ctx, runID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO objects (run_id, object_id, message, created_at) VALUES (?, ?, ?, ?)`,
		runID, objectID, message, s.timestamp())
	return err
}

// MarkSuccess closes the run as succeeded.
func (s *Store) MarkSuccess(ctx context.Context, runID, message string) error {
	return s.setStatus(ctx, runID, StatusSucceeded, message)
}

// MarkFailed closes the run as failed.
func (s *Store) MarkFailed(ctx context.Context, runID, message string) error {
	return s.setStatus(ctx, runID, StatusFailed, message)
}

func (s *Store) setStatus(ctx context.Context, runID, status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureRun(ctx, runID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, message = ?, updated_at = ? WHERE run_id = ?`,
		status, message, s.timestamp(), runID)
	if err != nil {
		return fmt.Errorf("set status of %s: %w", runID, err)
	}
	logging.Ledger("Run %s %s: %s", runID, status, message)
	return nil
}
