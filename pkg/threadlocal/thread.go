package threadlocal

import (
	"context"
	"errors"
	"sync/atomic"
	"weak"

	"github.com/llxisdsh/pb"

	"github.com/randalmurphal/threadlocal/pkg/threadlocal/observability"
)

// slots is the process-wide table mapping goroutine id to its bookkeeping
// state. There is exactly one slot per goroutine, shared by every registry
// of every value type; registries never consume a per-instance slot.
var slots = pb.NewMapOf[int64, *threadState]()

// vacuumLimit is the slot-table size beyond which registering a new
// goroutine triggers a background vacuum sweep.
var vacuumLimit atomic.Int64

// vacuumRunning gates the background sweep so at most one runs at a time.
var vacuumRunning atomic.Bool

// DefaultVacuumThreshold is the initial dead-goroutine vacuum trigger.
const DefaultVacuumThreshold = 128

func init() {
	vacuumLimit.Store(DefaultVacuumThreshold)
	observability.RegisterSlotCount(func() int64 {
		return int64(slots.Size())
	})
}

// registryCore is the non-generic identity of a registry. Per-goroutine
// bookkeeping references cores weakly, so a goroutine never extends the
// lifetime of a registry it merely touched. The core in turn reaches back
// into the generic registry through the detach func, which removes and
// releases one goroutine's entry from the live map.
type registryCore struct {
	id     string
	name   string
	closed atomic.Bool
	detach func(ts *threadState) error
}

// threadState is one goroutine's bookkeeping: weak links to every registry
// the goroutine has touched, plus a counter of close signals not yet
// consumed by a prune sweep.
//
// parents is confined to the owning goroutine for as long as the state is
// published in the slot table; once unpublished (by Detach or by a vacuum
// sweep, which only claims states whose goroutine has exited) the claimant
// has exclusive access. pendingPrune is the only field touched by other
// goroutines, and only atomically.
type threadState struct {
	gid          int64
	parents      map[weak.Pointer[registryCore]]struct{}
	pendingPrune atomic.Int64
}

func newThreadState(gid int64) *threadState {
	return &threadState{
		gid:     gid,
		parents: make(map[weak.Pointer[registryCore]]struct{}),
	}
}

// addParent records a weak link to core, deduplicated by registry identity.
// weak.Make returns equal pointers for the same object, and a pointer whose
// referent has been collected never compares equal to a live one.
func (ts *threadState) addParent(core *registryCore) {
	wp := weak.Make(core)
	if _, ok := ts.parents[wp]; !ok {
		ts.parents[wp] = struct{}{}
	}
}

// maybePrune runs a prune sweep if at least threshold close signals are
// pending. The sweep drops links whose registry has been collected or
// closed, which is what bounds parents for a long-lived goroutine touching
// many short-lived registries. Returns the number of links removed.
//
// Signals arriving during the sweep are preserved: only the observed amount
// is consumed from the counter.
func (ts *threadState) maybePrune(threshold int64) int {
	pending := ts.pendingPrune.Load()
	if pending == 0 || pending < threshold {
		return 0
	}
	ts.pendingPrune.Add(-pending)

	removed := 0
	for wp := range ts.parents {
		core := wp.Value()
		if core == nil || core.closed.Load() {
			delete(ts.parents, wp)
			removed++
		}
	}
	return removed
}

// detachAll removes this goroutine's entry from every registry still alive
// and releases the removed values. It tolerates registries closed
// concurrently: a closed registry's map has already been detached and
// drained, so there is nothing left to do there.
func (ts *threadState) detachAll() error {
	var errs []error
	for wp := range ts.parents {
		delete(ts.parents, wp)
		core := wp.Value()
		if core == nil || core.closed.Load() {
			continue
		}
		if err := core.detach(ts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// currentThreadState returns the calling goroutine's state, creating and
// publishing it on first touch.
func currentThreadState() *threadState {
	gid := goroutineID()
	if ts, ok := slots.Load(gid); ok {
		return ts
	}
	ts, loaded := slots.LoadOrStoreFn(gid, func() *threadState {
		return newThreadState(gid)
	})
	if !loaded {
		maybeVacuum()
	}
	return ts
}

// lookupThreadState returns the calling goroutine's state without creating
// one.
func lookupThreadState() (*threadState, bool) {
	return slots.Load(goroutineID())
}

// Detach deterministically releases everything the calling goroutine holds
// through registries: it unpublishes the goroutine's slot, removes its entry
// from every registry it touched, and runs release hooks on the removed
// values. Goroutines that use registries and outlive them need not call it;
// worker goroutines that touch long-lived registries should defer it so
// their values are released at exit rather than at registry close:
//
//	go func() {
//		defer threadlocal.Detach()
//		// ... use registries ...
//	}()
//
// Detach is a no-op for goroutines that never touched a registry. It returns
// the joined errors of any failing release hooks.
func Detach() error {
	ts, ok := slots.LoadAndDelete(goroutineID())
	if !ok {
		return nil
	}
	return ts.detachAll()
}

// Go runs fn on a new goroutine and detaches it on exit, release errors
// ignored. It is the guard-style spelling of Detach for fire-and-forget
// workers.
func Go(fn func()) {
	go func() {
		defer Detach()
		fn()
	}()
}

// SetVacuumThreshold adjusts the slot-table size that triggers a background
// vacuum sweep. Values below 1 disable the automatic trigger; Vacuum can
// still be called directly.
func SetVacuumThreshold(n int) {
	if n < 1 {
		n = int(^uint(0) >> 1)
	}
	vacuumLimit.Store(int64(n))
}

// maybeVacuum kicks off a background sweep when the slot table has grown
// past the configured threshold. The sweep runs off the caller's goroutine
// so registration never blocks on a full-process stack dump.
func maybeVacuum() {
	if int64(slots.Size()) < vacuumLimit.Load() {
		return
	}
	if !vacuumRunning.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer vacuumRunning.Store(false)
		Vacuum()
	}()
}

// Vacuum sweeps the slot table once, reclaiming the bookkeeping of
// goroutines that exited without calling Detach: their registry entries are
// removed and released exactly as Detach would have. Returns the number of
// states reclaimed.
//
// The slot-table scan must complete before the liveness snapshot is taken.
// A slot registered after the scan is simply missed this pass; a scanned
// gid absent from the later snapshot is genuinely dead, since the runtime
// never reuses goroutine ids. Snapshotting first would misclassify a
// goroutine that registers in between as dead and release its live value.
func Vacuum() int {
	var candidates []int64
	slots.RangeKeys(func(gid int64) bool {
		candidates = append(candidates, gid)
		return true
	})

	reclaimed := reclaimDead(candidates, liveGoroutineIDs())
	if reclaimed > 0 {
		observability.RecordVacuum(context.Background(), reclaimed)
	}
	return reclaimed
}

// reclaimDead removes and detaches every candidate slot whose goroutine is
// absent from the liveness set. The caller guarantees every candidate was
// in the slot table before the liveness set was captured.
func reclaimDead(candidates []int64, live map[int64]struct{}) int {
	reclaimed := 0
	for _, gid := range candidates {
		if _, ok := live[gid]; ok {
			continue
		}
		ts, ok := slots.LoadAndDelete(gid)
		if !ok {
			continue
		}
		_ = ts.detachAll()
		reclaimed++
	}
	return reclaimed
}
