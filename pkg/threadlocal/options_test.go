package threadlocal

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/threadlocal/pkg/threadlocal/config"
)

func TestWithConfig(t *testing.T) {
	cfg := config.Config{
		PruneThreshold: 5,
		Metrics:        false,
		Tracing:        false,
	}

	r := New(WithConfig[int](cfg))
	defer r.Close()

	assert.Equal(t, int64(5), r.pruneThreshold)
}

func TestWithPruneThresholdIgnoresInvalid(t *testing.T) {
	r := New(WithPruneThreshold[int](0))
	defer r.Close()
	assert.Equal(t, int64(1), r.pruneThreshold)

	r2 := New(WithPruneThreshold[int](-3))
	defer r2.Close()
	assert.Equal(t, int64(1), r2.pruneThreshold)
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	r := New(
		WithName[int]("logged"),
		WithLogger[int](logger),
	)
	defer Detach()

	require.NoError(t, r.Set(1))
	require.NoError(t, r.Close())

	out := buf.String()
	assert.Contains(t, out, "value stored")
	assert.Contains(t, out, "registry closed")
	assert.Contains(t, out, "logged")
}

func TestWithMetricsAndTracingDisabled(t *testing.T) {
	// Explicitly disabled observability keeps the no-op implementations.
	r := New(
		WithMetrics[int](false),
		WithTracing[int](false),
	)
	defer r.Close()
	defer Detach()

	require.NoError(t, r.Set(1))

	v, err := r.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestGeneratorReceivesContext(t *testing.T) {
	type ctxKey struct{}

	r := New(WithGenerator(func(ctx context.Context) (string, error) {
		v, _ := ctx.Value(ctxKey{}).(string)
		return strings.ToUpper(v), nil
	}))
	defer r.Close()
	defer Detach()

	ctx := context.WithValue(context.Background(), ctxKey{}, "hello")
	v, err := r.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", v)
}
