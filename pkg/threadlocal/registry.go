package threadlocal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/llxisdsh/pb"

	"github.com/randalmurphal/threadlocal/pkg/threadlocal/observability"
)

// Registry binds each goroutine to at most one value of type T. Many
// registries can coexist without consuming any per-registry thread-local
// facility: all of them share the single process-wide slot table.
//
// A value leaves its registry exactly once, by whichever of these wins the
// atomic removal: the Close drain, the owning goroutine's Detach, or a
// vacuum sweep after the goroutine exits. The registry holds its entries
// strongly, which is what lets Close enumerate and release every value it
// owns, including values set by goroutines that have since exited.
// The reverse direction is weak only: a goroutine's bookkeeping never keeps
// a registry alive.
//
// All methods are safe for concurrent use by any goroutine.
type Registry[T any] struct {
	// values is the live map, keyed by per-goroutine state. A nil pointer is
	// the closed sentinel; the swap to nil is the single synchronization
	// point of Close.
	values atomic.Pointer[pb.MapOf[*threadState, T]]

	// touched tracks every goroutine state that has registered with this
	// registry, so Close can fan out prune signals. Entries are removed
	// again when a goroutine detaches.
	touched *pb.MapOf[*threadState, struct{}]

	// core is the non-generic identity the bookkeeping side links to weakly.
	core *registryCore

	generator      GeneratorFunc[T]
	release        func(T) error
	name           string
	pruneThreshold int64

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// New creates a registry. Without options it stores values set explicitly
// via Set and returns T's zero value from Get on goroutines that have not
// stored one.
func New[T any](opts ...Option[T]) *Registry[T] {
	r := &Registry[T]{
		touched:        pb.NewMapOf[*threadState, struct{}](),
		pruneThreshold: 1,
		metrics:        observability.NoopMetrics{},
		spans:          observability.NoopSpanManager{},
	}
	r.values.Store(pb.NewMapOf[*threadState, T]())

	id := uuid.NewString()
	r.core = &registryCore{id: id, name: id}

	for _, opt := range opts {
		opt(r)
	}
	if r.name == "" {
		r.name = id
	}
	r.core.name = r.name
	if r.logger != nil {
		r.logger = observability.EnrichLogger(r.logger, id, r.name)
	}

	// detach removes one goroutine's entry from the live map and releases
	// it. Runs from Detach or Vacuum, possibly racing Close; the atomic
	// LoadAndDelete arbitrates so only one path releases a given value.
	r.core.detach = func(ts *threadState) error {
		r.touched.Delete(ts)
		m := r.values.Load()
		if m == nil {
			// Close already detached the map and drains everything in it.
			return nil
		}
		v, ok := m.LoadAndDelete(ts)
		if !ok {
			return nil
		}
		observability.LogDetach(r.logger, r.name, ts.gid)
		if err := r.releaseValue(v); err != nil {
			return &ReleaseError{Registry: r.name, Gid: ts.gid, Err: err}
		}
		return nil
	}

	return r
}

// ID returns the registry's unique identifier.
func (r *Registry[T]) ID() string {
	return r.core.id
}

// Name returns the configured name, or the id when unnamed.
func (r *Registry[T]) Name() string {
	return r.name
}

// Get returns the calling goroutine's value. If the goroutine has no entry
// and a generator is configured, the generator runs synchronously on this
// goroutine, its result is stored and returned; generator errors propagate
// unchanged and leave the slot absent, so a later Get retries. Without a
// generator, Get returns T's zero value and stores nothing.
//
// Returns ErrClosed after Close.
func (r *Registry[T]) Get(ctx context.Context) (T, error) {
	var zero T

	m := r.values.Load()
	if m == nil {
		return zero, ErrClosed
	}

	ts := currentThreadState()
	r.register(ts)

	if v, ok := m.Load(ts); ok {
		return v, nil
	}
	if r.generator == nil {
		return zero, nil
	}

	// Only the owning goroutine writes this key, so miss-generate-store has
	// no per-key race to guard against.
	genCtx, span := r.spans.StartGenerateSpan(ctx, r.name)
	start := time.Now()
	v, err := r.generator(genCtx)
	r.metrics.RecordGeneration(ctx, r.name, time.Since(start), err)
	r.spans.EndSpanWithError(span, err)
	if err != nil {
		return zero, err
	}
	observability.LogGenerated(r.logger, r.name, ts.gid, float64(time.Since(start).Milliseconds()))

	m.Store(ts, v)
	if r.values.Load() != m {
		// Close swapped the map while we were writing. The entry is either
		// drained by Close or backed out here, never both.
		if prev, ok := m.LoadAndDelete(ts); ok {
			_ = r.releaseValue(prev)
		}
		return zero, ErrClosed
	}
	return v, nil
}

// Set stores value for the calling goroutine, overwriting any existing
// entry. An overwritten value is not released; overwrite semantics belong
// to the caller.
//
// Returns ErrClosed after Close. A Set racing Close either lands before the
// swap (and is drained and released by Close) or detects the swap, backs
// its own write out, releases it, and returns ErrClosed.
func (r *Registry[T]) Set(value T) error {
	m := r.values.Load()
	if m == nil {
		return ErrClosed
	}

	ts := currentThreadState()
	r.register(ts)

	m.Store(ts, value)
	if r.values.Load() != m {
		if prev, ok := m.LoadAndDelete(ts); ok {
			_ = r.releaseValue(prev)
		}
		return ErrClosed
	}

	r.metrics.RecordStore(context.Background(), r.name)
	observability.LogStored(r.logger, r.name, ts.gid)
	return nil
}

// Values returns a point-in-time snapshot of every goroutine's value. It
// does not block concurrent mutation; entries added or removed while the
// snapshot is taken may or may not appear. Order is unspecified.
//
// Returns ErrClosed after Close.
func (r *Registry[T]) Values() ([]T, error) {
	m := r.values.Load()
	if m == nil {
		return nil, ErrClosed
	}

	out := make([]T, 0, m.Size())
	m.RangeValues(func(v T) bool {
		out = append(out, v)
		return true
	})
	return out, nil
}

// IsValueCreated reports whether the calling goroutine currently has an
// entry. It never creates bookkeeping state.
//
// Returns ErrClosed after Close.
func (r *Registry[T]) IsValueCreated() (bool, error) {
	m := r.values.Load()
	if m == nil {
		return false, ErrClosed
	}
	ts, ok := lookupThreadState()
	if !ok {
		return false, nil
	}
	return m.HasKey(ts), nil
}

// Close detaches the live map and releases every stored value. It is
// idempotent and safe to call concurrently with itself and with every other
// operation: exactly one caller wins the pointer swap and performs the
// drain, later calls return nil immediately.
//
// The winner signals every goroutine that ever registered, so their
// bookkeeping lazily drops the now-dead link, then drains the detached map
// in repeated passes until an empty pass, so that a write racing the swap
// into the old map is drained rather than leaked. Release-hook failures
// are collected and joined, never retried.
func (r *Registry[T]) Close() error {
	old := r.values.Swap(nil)
	if old == nil {
		return nil
	}

	ctx := context.Background()
	_, span := r.spans.StartCloseSpan(ctx, r.name)
	start := time.Now()

	r.core.closed.Store(true)

	r.touched.Range(func(ts *threadState, _ struct{}) bool {
		ts.pendingPrune.Add(1)
		return true
	})

	var errs []error
	released := 0
	for old.Size() != 0 {
		old.RangeKeys(func(ts *threadState) bool {
			v, ok := old.LoadAndDelete(ts)
			if !ok {
				return true
			}
			released++
			if err := r.releaseValue(v); err != nil {
				errs = append(errs, &ReleaseError{Registry: r.name, Gid: ts.gid, Err: err})
			}
			return true
		})
	}

	err := errors.Join(errs...)
	r.metrics.RecordClose(ctx, r.name, released, time.Since(start))
	r.spans.EndSpanWithError(span, err)
	observability.LogClosed(r.logger, r.name, released, float64(time.Since(start).Milliseconds()))
	return err
}

// register links the calling goroutine's state with this registry, running
// a pending prune sweep first. Idempotent per (registry, goroutine).
func (r *Registry[T]) register(ts *threadState) {
	if removed := ts.maybePrune(r.pruneThreshold); removed > 0 {
		r.metrics.RecordPrune(context.Background(), removed)
		observability.LogPruned(r.logger, ts.gid, removed)
	}
	ts.addParent(r.core)
	r.touched.LoadOrStore(ts, struct{}{})
}

// releaseValue runs the configured release hook, falling back to io.Closer.
func (r *Registry[T]) releaseValue(v T) error {
	if r.release != nil {
		return r.release(v)
	}
	if c, ok := any(v).(io.Closer); ok {
		return c.Close()
	}
	return nil
}
