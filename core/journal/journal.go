// Package journal archives ingested gateway events in SQLite. The archive is
// write-only from the live path and is never replayed into memory.
package journal

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/davidahmann/observer/core/canon"
	"github.com/davidahmann/observer/core/digest"
	"github.com/davidahmann/observer/core/event"
	"github.com/davidahmann/observer/core/journal/migrations"
	_ "modernc.org/sqlite"
)

// Payload encodings recorded per row. Canonical rows carry the same digest
// the trace tooling computes for the payload. Payloads holding floats fall
// back to plain JSON that keeps every number literal as received.
const (
	EncodingCanonical = "canon"
	EncodingJSON      = "json"
)

// Journal persists observed events in SQLite.
type Journal struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a SQLite journal and applies embedded migrations.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Journal{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (j *Journal) Close() error {
	if j == nil || j.sqlDB == nil {
		return nil
	}
	return j.sqlDB.Close()
}

// Record appends one row per event in a single transaction.
func (j *Journal) Record(ctx context.Context, events []event.ObservedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if j == nil || j.sqlDB == nil {
		return fmt.Errorf("journal is not configured")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := j.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO observed_events (
		   event_index,
		   kind,
		   thread_id,
		   turn_id,
		   actor,
		   stream_id,
		   payload_json,
		   payload_digest,
		   payload_encoding,
		   recorded_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare journal insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	recordedAt := j.now().UTC().UnixMilli()
	for _, observed := range events {
		payload, encoding, err := encodePayload(observed.Payload)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode payload for index %d: %w", observed.Index, err)
		}
		if _, err := stmt.ExecContext(
			ctx,
			observed.Index,
			string(observed.Kind),
			observed.ThreadID,
			observed.TurnID,
			observed.Actor,
			observed.StreamID,
			string(payload),
			digest.Label(payload),
			encoding,
			recordedAt,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert journal row for index %d: %w", observed.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal transaction: %w", err)
	}
	return nil
}

func encodePayload(payload event.Payload) ([]byte, string, error) {
	if payload == nil {
		payload = event.Payload{}
	}
	canonical, err := canon.Canonicalize(map[string]any(payload))
	if err == nil {
		return canonical, EncodingCanonical, nil
	}
	if !errors.Is(err, canon.ErrCanonicalization) {
		return nil, "", err
	}
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(map[string]any(payload)); err != nil {
		return nil, "", fmt.Errorf("marshal payload: %w", err)
	}
	return bytes.TrimSuffix(buffer.Bytes(), []byte("\n")), EncodingJSON, nil
}

// Count reports the number of archived rows.
func (j *Journal) Count(ctx context.Context) (int, error) {
	if j == nil || j.sqlDB == nil {
		return 0, fmt.Errorf("journal is not configured")
	}
	var count int
	if err := j.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM observed_events").Scan(&count); err != nil {
		return 0, fmt.Errorf("count journal rows: %w", err)
	}
	return count, nil
}

// Entry is one archived row.
type Entry struct {
	Seq             int64      `json:"seq"`
	Index           int64      `json:"index"`
	Kind            event.Kind `json:"kind"`
	ThreadID        string     `json:"thread_id"`
	PayloadJSON     string     `json:"payload_json"`
	PayloadDigest   string     `json:"payload_digest"`
	PayloadEncoding string     `json:"payload_encoding"`
	RecordedAt      time.Time  `json:"recorded_at"`
}

// Thread returns the archived rows of one thread in archive order.
func (j *Journal) Thread(ctx context.Context, threadID string) ([]Entry, error) {
	if j == nil || j.sqlDB == nil {
		return nil, fmt.Errorf("journal is not configured")
	}
	rows, err := j.sqlDB.QueryContext(
		ctx,
		`SELECT seq, event_index, kind, thread_id, payload_json, payload_digest, payload_encoding, recorded_at
		 FROM observed_events WHERE thread_id = ? ORDER BY seq`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("query journal thread: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []Entry{}
	for rows.Next() {
		var (
			entry      Entry
			kind       string
			recordedAt int64
		)
		if err := rows.Scan(&entry.Seq, &entry.Index, &kind, &entry.ThreadID, &entry.PayloadJSON, &entry.PayloadDigest, &entry.PayloadEncoding, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		entry.Kind = event.Kind(kind)
		entry.RecordedAt = time.UnixMilli(recordedAt).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return entries, nil
}
