// Package observability provides structured logging, metrics, and tracing
// for threadlocal registries.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds registry context to a logger.
// Returns a new logger with registry_id and registry_name fields.
func EnrichLogger(logger *slog.Logger, registryID, registryName string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("registry_id", registryID),
		slog.String("registry_name", registryName),
	)
}

// LogStored logs a value store at debug level.
func LogStored(logger *slog.Logger, registry string, gid int64) {
	if logger == nil {
		return
	}
	logger.Debug("value stored",
		slog.String("registry", registry),
		slog.Int64("goroutine_id", gid),
	)
}

// LogGenerated logs a lazy value generation.
func LogGenerated(logger *slog.Logger, registry string, gid int64, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("value generated",
		slog.String("registry", registry),
		slog.Int64("goroutine_id", gid),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogClosed logs registry close completion.
func LogClosed(logger *slog.Logger, registry string, released int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("registry closed",
		slog.String("registry", registry),
		slog.Int("values_released", released),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogDetach logs the removal of one goroutine's entry at detach time.
func LogDetach(logger *slog.Logger, registry string, gid int64) {
	if logger == nil {
		return
	}
	logger.Debug("goroutine detached",
		slog.String("registry", registry),
		slog.Int64("goroutine_id", gid),
	)
}

// LogPruned logs a prune sweep of a goroutine's bookkeeping.
func LogPruned(logger *slog.Logger, gid int64, removed int) {
	if logger == nil {
		return
	}
	logger.Debug("bookkeeping pruned",
		slog.Int64("goroutine_id", gid),
		slog.Int("links_removed", removed),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
