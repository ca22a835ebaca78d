/*
Package threadlocal provides goroutine-scoped value registries: containers
where many independent Registry instances each hold at most one value per
goroutine, without consuming a per-instance thread-local facility.

# Overview

A process that opens many resources over its lifetime (one registry per
opened index segment, connection pool, or codec is the motivating shape)
cannot afford one native thread-local slot per registry. threadlocal keeps a
single process-wide table mapping goroutine id to a small bookkeeping
object; every registry of every value type shares it. Each registry owns a
concurrent map from that bookkeeping object to its value of type T.

Values are released exactly once, through whichever path wins:

  - Registry Close (deterministic): the live map is atomically detached and
    drained synchronously, releasing every stored value, including values
    from goroutines that have since exited.
  - Goroutine Detach (deterministic): a worker that defers Detach releases
    its values in every still-open registry at exit.
  - Vacuum (eventual): when the slot table grows past a threshold, a sweep
    reclaims bookkeeping left behind by goroutines that exited without
    detaching.

The reference graph is asymmetric: a registry holds its
entries (and their bookkeeping keys) strongly so that Close can always
drain them, while a goroutine's bookkeeping holds only weak links back to
the registries it touched, so it never extends a registry's lifetime. A
long-lived goroutine touching many short-lived registries stays bounded:
closing a registry signals each touched goroutine, whose next registration
prunes dead links.

# Basic Usage

Store and retrieve a per-goroutine value:

	reg := threadlocal.New[int]()
	defer reg.Close()

	if err := reg.Set(42); err != nil {
		log.Fatal(err)
	}
	v, err := reg.Get(context.Background()) // 42, this goroutine only

# Lazy Generation

Configure a generator to create each goroutine's value on first Get. The
generator runs synchronously on the calling goroutine, at most once per
(registry, goroutine) pair; its error propagates to the caller and nothing
is stored, so the next Get retries:

	reg := threadlocal.New(
		threadlocal.WithGenerator(func(ctx context.Context) (*bytes.Buffer, error) {
			return bytes.NewBuffer(make([]byte, 0, 1<<16)), nil
		}),
	)
	defer reg.Close()

	buf, err := reg.Get(ctx) // same buffer on every Get from this goroutine

# Release Hooks

Values that hold resources get a release hook, run exactly once when the
value leaves the registry. io.Closer values are closed by default:

	reg := threadlocal.New(
		threadlocal.WithGenerator(openConn),
		threadlocal.WithReleaseFunc(func(c *Conn) error { return c.Shutdown() }),
	)

# Worker Goroutines

Workers that touch long-lived registries should detach at exit so their
values are released then, rather than when the registry finally closes:

	go func() {
		defer threadlocal.Detach()
		// ... use registries ...
	}()

or equivalently:

	threadlocal.Go(func() {
		// ... use registries ...
	})

# Errors

Every operation on a closed registry fails with ErrClosed. Close itself is
idempotent; it returns the joined release-hook failures from its drain, and
nil on repeat calls.
*/
package threadlocal
