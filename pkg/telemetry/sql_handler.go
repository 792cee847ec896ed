package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/go-sql-driver/mysql" // Ensure mysql driver is available for Dolt
)

// DefaultTableName is the table SQLHandler writes to.
const DefaultTableName = "telemetry_logs"

// SQLHandler is a slog.Handler that writes error logs to a SQL database
type SQLHandler struct {
	next      slog.Handler
	db        *sql.DB
	tableName string
	attrs     []slog.Attr
	minLevel  slog.Level
}

// OpenSQL opens a MySQL-compatible database from dsn and verifies it.
func OpenSQL(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach telemetry database: %w", err)
	}
	return db, nil
}

// NewSQLHandler creates a new SQLHandler using an existing DB connection
func NewSQLHandler(next slog.Handler, db *sql.DB) (*SQLHandler, error) {
	h := &SQLHandler{
		next:      next,
		db:        db,
		tableName: DefaultTableName,
		minLevel:  slog.LevelError,
	}

	if err := h.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure telemetry table: %w", err)
	}

	return h, nil
}

func (h *SQLHandler) ensureTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			timestamp TIMESTAMP,
			level VARCHAR(10),
			message TEXT,
			episode_id VARCHAR(255),
			ingestion_source VARCHAR(255),
			user_id VARCHAR(255),
			session_id VARCHAR(255),
			request_source VARCHAR(255),
			source_file VARCHAR(255),
			line_number INT,
			attributes JSON
		)
	`, h.tableName)

	_, err := h.db.Exec(query)
	return err
}

// Enabled implements slog.Handler
func (h *SQLHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level) || level >= h.minLevel
}

// Handle implements slog.Handler
func (h *SQLHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.next.Enabled(ctx, r.Level) {
		if err := h.next.Handle(ctx, r); err != nil {
			return err
		}
	}
	if r.Level < h.minLevel {
		return nil
	}

	rec := newLogRecord(ctx, r, h.attrs)
	query := fmt.Sprintf(`
		INSERT INTO %s (id, timestamp, level, message, episode_id, ingestion_source, user_id, session_id, request_source, source_file, line_number, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.tableName)

	// The insert must not fail because the request that logged was cancelled.
	_, err := h.db.ExecContext(context.WithoutCancel(ctx), query,
		rec.ID,
		rec.Timestamp,
		rec.Level,
		rec.Message,
		rec.EpisodeID,
		rec.IngestionSource,
		rec.UserID,
		rec.SessionID,
		rec.RequestSource,
		rec.SourceFile,
		rec.LineNumber,
		rec.Attributes,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write log to SQL: %v\n", err)
	}

	return nil // Don't block logging chain on database error
}

// WithAttrs implements slog.Handler
func (h *SQLHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup implements slog.Handler
func (h *SQLHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}
