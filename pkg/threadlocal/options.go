package threadlocal

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/threadlocal/pkg/threadlocal/config"
	"github.com/randalmurphal/threadlocal/pkg/threadlocal/observability"
)

// GeneratorFunc lazily produces a goroutine's initial value. It is invoked
// synchronously on the calling goroutine, at most once per (registry,
// goroutine) pair, and its error propagates unchanged to the Get caller.
type GeneratorFunc[T any] func(ctx context.Context) (T, error)

// Option configures a Registry.
type Option[T any] func(*Registry[T])

// WithGenerator sets the lazy value generator invoked by the first Get on
// each goroutine.
func WithGenerator[T any](fn GeneratorFunc[T]) Option[T] {
	return func(r *Registry[T]) {
		r.generator = fn
	}
}

// WithReleaseFunc sets the hook run on each stored value when it leaves the
// registry (at Close drain or goroutine detach). Without it, values
// implementing io.Closer are closed; other values are dropped silently.
func WithReleaseFunc[T any](fn func(T) error) Option[T] {
	return func(r *Registry[T]) {
		r.release = fn
	}
}

// WithName sets a human-readable name used in logs, metrics attributes, and
// spans. Defaults to the registry's generated id.
func WithName[T any](name string) Option[T] {
	return func(r *Registry[T]) {
		r.name = name
	}
}

// WithLogger sets the structured logger. Nil (the default) disables logging.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(r *Registry[T]) {
		r.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics for this registry.
// Uses the global OTel meter provider.
func WithMetrics[T any](enabled bool) Option[T] {
	return func(r *Registry[T]) {
		if enabled {
			r.metrics = observability.NewMetricsRecorder()
		} else {
			r.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry spans for generator invocations and
// close drains. Uses the global OTel tracer provider.
func WithTracing[T any](enabled bool) Option[T] {
	return func(r *Registry[T]) {
		if enabled {
			r.spans = observability.NewSpanManager()
		} else {
			r.spans = observability.NoopSpanManager{}
		}
	}
}

// WithPruneThreshold sets how many pending close signals a goroutine's
// bookkeeping accumulates before registration runs a prune sweep.
// Default 1: any pending signal triggers a sweep. Values below 1 are
// ignored.
func WithPruneThreshold[T any](n int) Option[T] {
	return func(r *Registry[T]) {
		if n >= 1 {
			r.pruneThreshold = int64(n)
		}
	}
}

// WithConfig applies the registry-scoped fields of a config.Config:
// prune threshold, metrics, and tracing. The vacuum threshold is process
// wide; apply it with SetVacuumThreshold.
func WithConfig[T any](cfg config.Config) Option[T] {
	return func(r *Registry[T]) {
		WithPruneThreshold[T](cfg.PruneThreshold)(r)
		WithMetrics[T](cfg.Metrics)(r)
		WithTracing[T](cfg.Tracing)(r)
	}
}
