package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunRecord is one row of run history.
type RunRecord struct {
	RunID       string
	Status      string
	Message     string
	InputsJSON  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Attachments int
	Versions    int
}

// Attachment is a file recorded against a run.
type Attachment struct {
	Name string
	Path string
	Size int64
}

// ObjectNote is a message recorded against an input object.
type ObjectNote struct {
	ObjectID string
	Message  string
}

// Version is a published bundle.
type Version struct {
	VersionID string
	ItemCount int
	Path      string
	CreatedAt time.Time
}

const runColumns = `
	SELECT r.run_id, r.status, r.message, COALESCE(r.inputs_json, ''), r.created_at, r.updated_at,
		(SELECT COUNT(*) FROM attachments a WHERE a.run_id = r.run_id),
		(SELECT COUNT(*) FROM versions v WHERE v.run_id = r.run_id)
	FROM runs r`

// Runs lists the most recent runs first. A limit of zero or less returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, runColumns+` ORDER BY r.created_at DESC, r.run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Run returns one run.
func (s *Store) Run(ctx context.Context, runID string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, runColumns+` WHERE r.run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var rec RunRecord
	var created, updated string
	if err := sc.Scan(&rec.RunID, &rec.Status, &rec.Message, &rec.InputsJSON, &created, &updated,
		&rec.Attachments, &rec.Versions); err != nil {
		return RunRecord{}, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return rec, nil
}

// Attachments lists the files attached to a run in attach order.
func (s *Store) Attachments(ctx context.Context, runID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, path, size FROM attachments WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.Name, &a.Path, &a.Size); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Objects lists the object notes of a run in insertion order.
func (s *Store) Objects(ctx context.Context, runID string) ([]ObjectNote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT object_id, message FROM objects WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var out []ObjectNote
	for rows.Next() {
		var n ObjectNote
		if err := rows.Scan(&n.ObjectID, &n.Message); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Versions lists the versions published for a run, oldest first.
func (s *Store) Versions(ctx context.Context, runID string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, item_count, path, created_at FROM versions WHERE run_id = ? ORDER BY created_at, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		var created string
		if err := rows.Scan(&v.VersionID, &v.ItemCount, &v.Path, &created); err != nil {
			return nil, err
		}
		v.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, v)
	}
	return out, rows.Err()
}
