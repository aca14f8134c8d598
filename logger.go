package vecpipe

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vecpipe-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithRun adds a run id field to the logger (useful for tagging one batch
// ingest end to end).
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("run_id", runID),
	}
}

// LogIngest logs a batch ingest run.
func (l *Logger) LogIngest(ctx context.Context, records, entries, skipped int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "ingest failed",
			"records", records,
			"error", err,
		)
		return
	}
	if skipped > 0 {
		l.WarnContext(ctx, "ingest completed with skips",
			"records", records,
			"entries", entries,
			"skipped", skipped,
		)
		return
	}
	l.InfoContext(ctx, "ingest completed",
		"records", records,
		"entries", entries,
	)
}

// LogPartWritten logs one part file landing in the blob store.
func (l *Logger) LogPartWritten(ctx context.Context, name string, entries, bytes int) {
	l.DebugContext(ctx, "part written",
		"blob", name,
		"entries", entries,
		"bytes", bytes,
	)
}

// LogUpsert logs a streaming upsert.
func (l *Logger) LogUpsert(ctx context.Context, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "upsert failed",
			"count", count,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "upsert completed",
			"count", count,
		)
	}
}

// LogDelete logs a streaming delete.
func (l *Logger) LogDelete(ctx context.Context, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"count", count,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"count", count,
		)
	}
}

// LogBatchUpdate logs a batch update from stored part files.
func (l *Logger) LogBatchUpdate(ctx context.Context, blobs, entries, skipped int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "batch update failed",
			"blobs", blobs,
			"error", err,
		)
		return
	}
	if skipped > 0 {
		l.WarnContext(ctx, "batch update completed with skips",
			"blobs", blobs,
			"entries", entries,
			"skipped", skipped,
		)
		return
	}
	l.InfoContext(ctx, "batch update completed",
		"blobs", blobs,
		"entries", entries,
	)
}

// LogSearch logs a search.
func (l *Logger) LogSearch(ctx context.Context, k, results int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", results,
		)
	}
}

// LogBackfill logs a metadata backfill pass.
func (l *Logger) LogBackfill(ctx context.Context, missing, filled, skipped int) {
	l.DebugContext(ctx, "metadata backfill completed",
		"missing", missing,
		"filled", filled,
		"skipped", skipped,
	)
}
