// Package telemetry keeps error logs of the ingestion pipeline for later
// analysis. The handlers wrap another slog.Handler, pass every record on,
// and additionally store records at or above a minimum level.
package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/episodic/pkg/types"
)

// LogRecord represents a single stored log entry
type LogRecord struct {
	ID              string    `parquet:"id"`
	Timestamp       time.Time `parquet:"timestamp"`
	Level           string    `parquet:"level"`
	Message         string    `parquet:"message"`
	EpisodeID       string    `parquet:"episode_id"`
	IngestionSource string    `parquet:"ingestion_source"`
	UserID          string    `parquet:"user_id"`
	SessionID       string    `parquet:"session_id"`
	RequestSource   string    `parquet:"request_source"`
	SourceFile      string    `parquet:"source_file"`
	LineNumber      int       `parquet:"line_number"`
	Attributes      string    `parquet:"attributes"` // JSON string
}

// newLogRecord captures r with its handler attributes and the request
// values carried on ctx. An episode_id attribute fills EpisodeID when the
// context has none.
func newLogRecord(ctx context.Context, r slog.Record, handlerAttrs []slog.Attr) LogRecord {
	attrs := make(map[string]interface{})
	for _, a := range handlerAttrs {
		attrs[a.Key] = attrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = attrValue(a.Value)
		return true
	})
	attrsJSON, _ := json.Marshal(attrs)

	rec := LogRecord{
		ID:              uuid.New().String(),
		Timestamp:       r.Time.UTC(),
		Level:           r.Level.String(),
		Message:         r.Message,
		EpisodeID:       contextString(ctx, types.ContextKeyEpisodeID),
		IngestionSource: contextString(ctx, types.ContextKeyIngestionSource),
		UserID:          contextString(ctx, types.ContextKeyUserID),
		SessionID:       contextString(ctx, types.ContextKeySessionID),
		RequestSource:   contextString(ctx, types.ContextKeyRequestSource),
		Attributes:      string(attrsJSON),
	}
	if rec.EpisodeID == "" {
		if id, ok := attrs["episode_id"].(string); ok {
			rec.EpisodeID = id
		}
	}

	if r.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := fs.Next()
		rec.SourceFile = f.File
		rec.LineNumber = f.Line
	}
	return rec
}

func attrValue(v slog.Value) interface{} {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		group := make(map[string]interface{}, len(v.Group()))
		for _, a := range v.Group() {
			group[a.Key] = attrValue(a.Value)
		}
		return group
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

func contextString(ctx context.Context, key interface{}) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}
