package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
)

// DefaultBatchSize is how many records ParquetHandler buffers per file.
const DefaultBatchSize = 100

// parquetSink is shared by a handler and every handler derived from it.
type parquetSink struct {
	mu        sync.Mutex
	outputDir string
	batchSize int
	buffer    []LogRecord
}

// ParquetHandler is a slog.Handler that writes error logs to Parquet files
type ParquetHandler struct {
	next     slog.Handler
	sink     *parquetSink
	attrs    []slog.Attr
	minLevel slog.Level
}

// NewParquetHandler creates a new ParquetHandler storing records at Error
// and above under outputDir.
func NewParquetHandler(next slog.Handler, outputDir string) (*ParquetHandler, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	return &ParquetHandler{
		next: next,
		sink: &parquetSink{
			outputDir: outputDir,
			batchSize: DefaultBatchSize,
			buffer:    make([]LogRecord, 0, DefaultBatchSize),
		},
		minLevel: slog.LevelError,
	}, nil
}

// SetBatchSize changes how many records are written per file.
func (h *ParquetHandler) SetBatchSize(n int) {
	if n <= 0 {
		n = DefaultBatchSize
	}
	h.sink.mu.Lock()
	h.sink.batchSize = n
	h.sink.mu.Unlock()
}

// SetMinLevel changes the lowest level that is stored.
func (h *ParquetHandler) SetMinLevel(level slog.Level) {
	h.minLevel = level
}

// Enabled implements slog.Handler
func (h *ParquetHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level) || level >= h.minLevel
}

// Handle implements slog.Handler
func (h *ParquetHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.next.Enabled(ctx, r.Level) {
		if err := h.next.Handle(ctx, r); err != nil {
			return err
		}
	}
	if r.Level < h.minLevel {
		return nil
	}

	record := newLogRecord(ctx, r, h.attrs)

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	h.sink.buffer = append(h.sink.buffer, record)
	if len(h.sink.buffer) >= h.sink.batchSize {
		return h.sink.flush()
	}
	return nil
}

// Flush writes any buffered records.
func (h *ParquetHandler) Flush() error {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return h.sink.flush()
}

// Close flushes the buffer. Derived handlers share it, so closing any of
// them is enough.
func (h *ParquetHandler) Close() error {
	return h.Flush()
}

// flush writes the current buffer to a new Parquet file.
// Caller must hold the lock.
func (s *parquetSink) flush() error {
	if len(s.buffer) == 0 {
		return nil
	}

	now := time.Now()
	filename := fmt.Sprintf("execution_errors_%s_%d.parquet", now.Format("20060102_150405"), now.UnixNano())
	if err := parquet.WriteFile(filepath.Join(s.outputDir, filename), s.buffer); err != nil {
		// The records stay buffered for the next attempt.
		fmt.Fprintf(os.Stderr, "Failed to write telemetry parquet file: %v\n", err)
		return err
	}

	s.buffer = s.buffer[:0]
	return nil
}

// WithAttrs implements slog.Handler
func (h *ParquetHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup implements slog.Handler
func (h *ParquetHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}
