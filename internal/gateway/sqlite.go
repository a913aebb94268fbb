package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/chaz8081/sipsmart/internal/telemetry"
)

// tsLayout is fixed width so timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is a Gateway backed by a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations. path may be ":memory:" or a "file:" URI.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// One writer keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func buildDSN(path string) (string, error) {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("store: mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveField(ctx context.Context, userID, field string, value any) error {
	return s.UpsertMerge(ctx, userID, map[string]any{field: value})
}

func (s *SQLiteStore) UpsertMerge(ctx context.Context, userID string, fields map[string]any) error {
	if userID == "" {
		return ErrNoUser
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	for name, value := range fields {
		enc, err := json.Marshal(value)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: encode field %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_fields(user_id, name, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			userID, name, string(enc), now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: upsert field %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Field decodes a stored field into out. It reports false when the field
// has never been written.
func (s *SQLiteStore) Field(ctx context.Context, userID, field string, out any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM user_fields WHERE user_id = ? AND name = ?`, userID, field).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: read field %s: %w", field, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("store: decode field %s: %w", field, err)
	}
	return true, nil
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, userID string, rec telemetry.Record) error {
	if userID == "" {
		return ErrNoUser
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records(id, user_id, ts, temperature_c, liquid_level) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, ts.UTC().Format(tsLayout), rec.Temperature, rec.LiquidFraction)
	if err != nil {
		return fmt.Errorf("store: insert record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FetchRecent(ctx context.Context, userID string, n int) ([]telemetry.Record, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, temperature_c, liquid_level FROM records
WHERE user_id = ? ORDER BY ts DESC, seq DESC LIMIT ?`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("store: query records: %w", err)
	}
	defer rows.Close()

	var out []telemetry.Record
	for rows.Next() {
		var rec telemetry.Record
		var ts string
		if err := rows.Scan(&ts, &rec.Temperature, &rec.LiquidFraction); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("store: parse timestamp %q: %w", ts, err)
		}
		rec.Timestamp = t
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ Gateway = (*SQLiteStore)(nil)
