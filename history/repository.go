package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Record statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// timeLayout matches SQLite's CURRENT_TIMESTAMP text format.
const timeLayout = "2006-01-02 15:04:05"

// Record is one row of generation_history.
type Record struct {
	ID           int64     `json:"id"`
	RequestID    string    `json:"request_id"`
	Endpoint     string    `json:"endpoint"`
	Prompt       string    `json:"prompt,omitempty"`
	Seed         int64     `json:"seed"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Mode         int       `json:"mode"`
	Model        string    `json:"model,omitempty"`
	Outputs      []string  `json:"outputs"`
	Info         string    `json:"info,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository reads and writes generation_history. When an AsyncWriter is
// attached and running, Record queues writes instead of blocking.
type Repository struct {
	db     *Database
	writer *AsyncWriter
}

// NewRepository creates a Repository that writes synchronously until
// AttachWriter is called.
func NewRepository(db *Database) *Repository {
	return &Repository{db: db}
}

// AttachWriter routes Record through w.
func (r *Repository) AttachWriter(w *AsyncWriter) {
	r.writer = w
}

// Record stores rec, asynchronously when possible. A full queue falls back
// to a synchronous insert.
func (r *Repository) Record(ctx context.Context, rec Record) error {
	if r.writer != nil && r.writer.IsStarted() && r.writer.Write(rec) {
		return nil
	}
	_, err := r.Insert(ctx, rec)
	return err
}

// Insert stores rec and returns its ID.
func (r *Repository) Insert(ctx context.Context, rec Record) (int64, error) {
	db, err := r.db.conn()
	if err != nil {
		return 0, err
	}

	outputs := rec.Outputs
	if outputs == nil {
		outputs = []string{}
	}
	encoded, err := json.Marshal(outputs)
	if err != nil {
		return 0, fmt.Errorf("failed to encode outputs: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO generation_history (
			request_id, endpoint, prompt, seed, width, height, mode, model,
			outputs, info, status, error_message, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID,
		rec.Endpoint,
		nullString(rec.Prompt),
		rec.Seed,
		rec.Width,
		rec.Height,
		rec.Mode,
		nullString(rec.Model),
		string(encoded),
		nullString(rec.Info),
		rec.Status,
		nullString(rec.ErrorMessage),
		rec.DurationMS,
		createdAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert generation history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit records, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Record, error) {
	db, err := r.db.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, request_id, endpoint, COALESCE(prompt, ''), seed, width, height,
		       mode, COALESCE(model, ''), outputs, COALESCE(info, ''), status,
		       COALESCE(error_message, ''), duration_ms, created_at
		FROM generation_history
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation history: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var outputs, createdAt string
		if err := rows.Scan(
			&rec.ID,
			&rec.RequestID,
			&rec.Endpoint,
			&rec.Prompt,
			&rec.Seed,
			&rec.Width,
			&rec.Height,
			&rec.Mode,
			&rec.Model,
			&outputs,
			&rec.Info,
			&rec.Status,
			&rec.ErrorMessage,
			&rec.DurationMS,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan generation history row: %w", err)
		}
		if err := json.Unmarshal([]byte(outputs), &rec.Outputs); err != nil {
			return nil, fmt.Errorf("failed to decode outputs of record %d: %w", rec.ID, err)
		}
		rec.CreatedAt = parseTime(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generation history rows: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	db, err := r.db.conn()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM generation_history").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count generation history: %w", err)
	}
	return n, nil
}

// WriteHandler returns the handler an AsyncWriter uses to persist queued
// records.
func (r *Repository) WriteHandler() WriteHandler {
	return func(rec Record) error {
		_, err := r.Insert(context.Background(), rec)
		return err
	}
}

// nullString stores empty strings as NULL.
func nullString(s string) interface{} {
	if s == "" {
		return sql.NullString{}
	}
	return s
}

// parseTime accepts the layout this package writes as well as the RFC 3339
// form the driver may return for DATETIME columns.
func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
