package observability

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records registry metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordStore records an explicit value store.
	RecordStore(ctx context.Context, registry string)

	// RecordGeneration records a lazy generator invocation with its duration
	// and error status.
	RecordGeneration(ctx context.Context, registry string, duration time.Duration, err error)

	// RecordClose records a registry close drain.
	RecordClose(ctx context.Context, registry string, released int, duration time.Duration)

	// RecordPrune records a prune sweep of a goroutine's bookkeeping.
	RecordPrune(ctx context.Context, removed int)

	// RecordVacuum records a dead-goroutine vacuum sweep.
	RecordVacuum(ctx context.Context, reclaimed int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	stores            metric.Int64Counter
	generations       metric.Int64Counter
	generationLatency metric.Float64Histogram
	generationErrors  metric.Int64Counter
	closeReleased     metric.Int64Histogram
	closeLatency      metric.Float64Histogram
	pruneRemoved      metric.Int64Counter
	vacuumReclaimed   metric.Int64Counter
}

var (
	defaultMetrics     atomic.Pointer[otelMetrics]
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// slotCountFn reports the process-wide slot-table size for the observable
// gauge. Registered once during parent-package initialization, before any
// recorder is built.
var slotCountFn func() int64

// RegisterSlotCount installs the callback backing the slot-table size gauge.
func RegisterSlotCount(fn func() int64) {
	slotCountFn = fn
}

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		m, err := newOtelMetrics()
		defaultMetricsErr = err
		if err == nil {
			defaultMetrics.Store(m)
		}
	})
	return defaultMetrics.Load(), defaultMetricsErr
}

// RecordVacuum records a vacuum sweep on the default recorder. Sweeps are
// process-wide rather than per registry, so they are recorded once any
// registry has enabled metrics.
func RecordVacuum(ctx context.Context, reclaimed int) {
	if m := defaultMetrics.Load(); m != nil {
		m.RecordVacuum(ctx, reclaimed)
	}
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("threadlocal")

	stores, err := meter.Int64Counter("threadlocal.store.count",
		metric.WithDescription("Number of explicit value stores"),
	)
	if err != nil {
		return nil, err
	}

	generations, err := meter.Int64Counter("threadlocal.generation.count",
		metric.WithDescription("Number of lazy generator invocations"),
	)
	if err != nil {
		return nil, err
	}

	generationLatency, err := meter.Float64Histogram("threadlocal.generation.latency_ms",
		metric.WithDescription("Generator latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	generationErrors, err := meter.Int64Counter("threadlocal.generation.errors",
		metric.WithDescription("Number of generator failures"),
	)
	if err != nil {
		return nil, err
	}

	closeReleased, err := meter.Int64Histogram("threadlocal.close.released",
		metric.WithDescription("Values released per close drain"),
	)
	if err != nil {
		return nil, err
	}

	closeLatency, err := meter.Float64Histogram("threadlocal.close.latency_ms",
		metric.WithDescription("Close drain latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	pruneRemoved, err := meter.Int64Counter("threadlocal.prune.removed",
		metric.WithDescription("Dead weak links removed by prune sweeps"),
	)
	if err != nil {
		return nil, err
	}

	vacuumReclaimed, err := meter.Int64Counter("threadlocal.vacuum.reclaimed",
		metric.WithDescription("Goroutine slots reclaimed by vacuum sweeps"),
	)
	if err != nil {
		return nil, err
	}

	if slotCountFn != nil {
		if _, err := meter.Int64ObservableGauge("threadlocal.slots.size",
			metric.WithDescription("Goroutine slots currently tracked"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(slotCountFn())
				return nil
			}),
		); err != nil {
			return nil, err
		}
	}

	return &otelMetrics{
		stores:            stores,
		generations:       generations,
		generationLatency: generationLatency,
		generationErrors:  generationErrors,
		closeReleased:     closeReleased,
		closeLatency:      closeLatency,
		pruneRemoved:      pruneRemoved,
		vacuumReclaimed:   vacuumReclaimed,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordStore records an explicit value store.
func (m *otelMetrics) RecordStore(ctx context.Context, registry string) {
	m.stores.Add(ctx, 1, metric.WithAttributes(
		attribute.String("registry", registry),
	))
}

// RecordGeneration records a lazy generator invocation.
func (m *otelMetrics) RecordGeneration(ctx context.Context, registry string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("registry", registry),
	}

	m.generations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.generationLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.generationErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordClose records a close drain.
func (m *otelMetrics) RecordClose(ctx context.Context, registry string, released int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("registry", registry),
	}
	m.closeReleased.Record(ctx, int64(released), metric.WithAttributes(attrs...))
	m.closeLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordPrune records a prune sweep.
func (m *otelMetrics) RecordPrune(ctx context.Context, removed int) {
	m.pruneRemoved.Add(ctx, int64(removed))
}

// RecordVacuum records a vacuum sweep.
func (m *otelMetrics) RecordVacuum(ctx context.Context, reclaimed int) {
	m.vacuumReclaimed.Add(ctx, int64(reclaimed))
}
