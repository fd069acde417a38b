package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS functions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	runtime TEXT NOT NULL,
	source_code TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	sample_event BLOB,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS invocations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	function_id INTEGER NOT NULL,
	status TEXT NOT NULL,
	input BLOB,
	result BLOB,
	error_message TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	invoked_at TEXT NOT NULL,
	logged_at TEXT,
	FOREIGN KEY(function_id) REFERENCES functions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_invocations_function
ON invocations(function_id, id DESC);

CREATE INDEX IF NOT EXISTS idx_invocations_age
ON invocations(invoked_at);`

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	DSN string
}

// SQLiteStore persists functions and invocation history in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed store.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("sqlite store dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite store open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListFunctions(ctx context.Context) ([]FunctionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, runtime, source_code, description, sample_event, created_at
FROM functions
ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store list functions: %w", err)
	}
	defer rows.Close()

	var records []FunctionRecord
	for rows.Next() {
		rec, err := scanFunction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store list functions rows: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) GetFunction(ctx context.Context, id int64) (FunctionRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, runtime, source_code, description, sample_event, created_at
FROM functions
WHERE id = ?`, id)
	rec, err := scanFunction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return FunctionRecord{}, false, nil
	}
	if err != nil {
		return FunctionRecord{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) CreateFunction(ctx context.Context, rec FunctionRecord) (FunctionRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO functions (name, runtime, source_code, description, sample_event, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Name, rec.Runtime, rec.SourceCode, rec.Description,
		rawOrNil(rec.SampleEvent), rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return FunctionRecord{}, fmt.Errorf("sqlite store create function: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return FunctionRecord{}, fmt.Errorf("sqlite store create function id: %w", err)
	}
	rec.ID = id
	return rec, nil
}

func (s *SQLiteStore) DeleteFunction(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM functions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite store delete function: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store delete function affected: %w", err)
	}
	if affected == 0 {
		return ErrFunctionNotFound
	}
	return nil
}

func (s *SQLiteStore) InsertInvocation(ctx context.Context, rec InvocationRecord) (InvocationRecord, error) {
	if rec.InvokedAt.IsZero() {
		rec.InvokedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO invocations (function_id, status, input, result, error_message, duration_ms, invoked_at, logged_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.FunctionID, rec.Status, rawOrNil(rec.Input), rawOrNil(rec.Result),
		rec.ErrorMessage, rec.DurationMs,
		rec.InvokedAt.UTC().Format(time.RFC3339Nano), timeOrNil(rec.LoggedAt))
	if err != nil {
		return InvocationRecord{}, fmt.Errorf("sqlite store insert invocation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return InvocationRecord{}, fmt.Errorf("sqlite store insert invocation id: %w", err)
	}
	rec.ID = id
	return rec, nil
}

func (s *SQLiteStore) UpdateInvocation(ctx context.Context, rec InvocationRecord) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE invocations
SET status = ?, result = ?, error_message = ?, duration_ms = ?, logged_at = ?
WHERE id = ?`,
		rec.Status, rawOrNil(rec.Result), rec.ErrorMessage, rec.DurationMs,
		timeOrNil(rec.LoggedAt), rec.ID)
	if err != nil {
		return fmt.Errorf("sqlite store update invocation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store update invocation affected: %w", err)
	}
	if affected == 0 {
		return ErrInvocationNotFound
	}
	return nil
}

func (s *SQLiteStore) GetInvocation(ctx context.Context, functionID, id int64) (InvocationRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, function_id, status, input, result, error_message, duration_ms, invoked_at, logged_at
FROM invocations
WHERE id = ? AND function_id = ?`, id, functionID)
	rec, err := scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return InvocationRecord{}, false, nil
	}
	if err != nil {
		return InvocationRecord{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) ListInvocations(ctx context.Context, functionID int64, limit int) ([]InvocationRecord, error) {
	query := `
SELECT id, function_id, status, input, result, error_message, duration_ms, invoked_at, logged_at
FROM invocations
WHERE function_id = ?
ORDER BY id DESC`
	args := []any{functionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store list invocations: %w", err)
	}
	defer rows.Close()

	var records []InvocationRecord
	for rows.Next() {
		rec, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store list invocations rows: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM invocations WHERE invoked_at < ?",
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("sqlite store prune invocations: %w", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite store prune invocations affected: %w", err)
	}
	return pruned, nil
}

var _ Store = (*SQLiteStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFunction(row rowScanner) (FunctionRecord, error) {
	var (
		rec         FunctionRecord
		sampleEvent []byte
		createdAt   string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Runtime, &rec.SourceCode,
		&rec.Description, &sampleEvent, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FunctionRecord{}, err
		}
		return FunctionRecord{}, fmt.Errorf("sqlite store scan function: %w", err)
	}
	if len(sampleEvent) > 0 {
		rec.SampleEvent = json.RawMessage(sampleEvent)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return FunctionRecord{}, fmt.Errorf("sqlite store parse function created_at: %w", err)
	}
	rec.CreatedAt = ts
	return rec, nil
}

func scanInvocation(row rowScanner) (InvocationRecord, error) {
	var (
		rec       InvocationRecord
		input     []byte
		result    []byte
		invokedAt string
		loggedAt  sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.FunctionID, &rec.Status, &input, &result,
		&rec.ErrorMessage, &rec.DurationMs, &invokedAt, &loggedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return InvocationRecord{}, err
		}
		return InvocationRecord{}, fmt.Errorf("sqlite store scan invocation: %w", err)
	}
	if len(input) > 0 {
		rec.Input = json.RawMessage(input)
	}
	if len(result) > 0 {
		rec.Result = json.RawMessage(result)
	}
	ts, err := time.Parse(time.RFC3339Nano, invokedAt)
	if err != nil {
		return InvocationRecord{}, fmt.Errorf("sqlite store parse invocation invoked_at: %w", err)
	}
	rec.InvokedAt = ts
	if loggedAt.Valid && loggedAt.String != "" {
		logged, err := time.Parse(time.RFC3339Nano, loggedAt.String)
		if err != nil {
			return InvocationRecord{}, fmt.Errorf("sqlite store parse invocation logged_at: %w", err)
		}
		rec.LoggedAt = &logged
	}
	return rec, nil
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
