package benchmarks

import (
	"context"
	"testing"

	"github.com/randalmurphal/threadlocal/pkg/threadlocal"
)

// BenchmarkGet_Hit measures repeated reads after the first generation.
func BenchmarkGet_Hit(b *testing.B) {
	r := threadlocal.New(
		threadlocal.WithGenerator(func(ctx context.Context) (int, error) {
			return 42, nil
		}),
	)
	defer r.Close()
	ctx := context.Background()
	_, _ = r.Get(ctx)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.Get(ctx)
	}
}

// BenchmarkGet_HitParallel measures hit-path reads across goroutines.
func BenchmarkGet_HitParallel(b *testing.B) {
	r := threadlocal.New(
		threadlocal.WithGenerator(func(ctx context.Context) (int, error) {
			return 42, nil
		}),
	)
	defer r.Close()
	ctx := context.Background()
	b.RunParallel(func(pb *testing.PB) {
		defer threadlocal.Detach()
		for pb.Next() {
			_, _ = r.Get(ctx)
		}
	})
}

// BenchmarkSet measures overwriting the calling goroutine's value.
func BenchmarkSet(b *testing.B) {
	r := threadlocal.New[int]()
	defer r.Close()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Set(i)
	}
}

// BenchmarkSetParallel measures concurrent Set calls from many goroutines.
func BenchmarkSetParallel(b *testing.B) {
	r := threadlocal.New[int]()
	defer r.Close()
	b.RunParallel(func(pb *testing.PB) {
		defer threadlocal.Detach()
		for pb.Next() {
			_ = r.Set(1)
		}
	})
}

// BenchmarkRegistryLifecycle measures creating, touching, and closing a
// registry. This is the churn path the prune threshold exists for.
func BenchmarkRegistryLifecycle(b *testing.B) {
	for i := 0; i < b.N; i++ {
		r := threadlocal.New[int]()
		_ = r.Set(i)
		_ = r.Close()
	}
}

// BenchmarkValues measures snapshotting values across goroutines.
func BenchmarkValues(b *testing.B) {
	r := threadlocal.New[int]()
	defer r.Close()
	done := make(chan struct{})
	ready := make(chan struct{}, 8)
	for w := 0; w < 8; w++ {
		go func(w int) {
			defer threadlocal.Detach()
			_ = r.Set(w)
			ready <- struct{}{}
			<-done
		}(w)
	}
	for w := 0; w < 8; w++ {
		<-ready
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.Values()
	}
	b.StopTimer()
	close(done)
}
