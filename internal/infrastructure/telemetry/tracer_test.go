package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func disabledTracerProvider(t *testing.T) *TracerProvider {
	t.Helper()
	tp, err := NewTracerProvider(context.Background(), Config{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		SamplingRatio:     1.0,
		ServiceName:       "billflow-backend",
	}, zap.NewNop())
	require.NoError(t, err)
	return tp
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	tp := disabledTracerProvider(t)

	assert.False(t, tp.IsEnabled())
	assert.Equal(t, "billflow-backend", tp.GetConfig().ServiceName)

	// Lifecycle calls are safe no-ops without a backing provider
	assert.NoError(t, tp.ForceFlush(ctx))
	assert.NoError(t, tp.Shutdown(ctx))

	// A cancelled context cannot break a no-op shutdown either
	cancelledCtx, cancel := context.WithCancel(ctx)
	cancel()
	assert.NoError(t, tp.Shutdown(cancelledCtx))
}

// The OTLP gRPC exporter dials lazily, so an enabled provider comes up
// without a reachable collector.
func TestNewTracerProvider_EnabledWithoutCollector(t *testing.T) {
	ctx := context.Background()

	tp, err := NewTracerProvider(ctx, Config{
		Enabled:           true,
		CollectorEndpoint: "localhost:19999",
		SamplingRatio:     0.5,
		ServiceName:       "billflow-backend",
	}, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, tp.IsEnabled())

	tracer := tp.Tracer("billing")
	_, span := tracer.Start(ctx, "generate-invoice")
	span.End()

	assert.NoError(t, tp.Shutdown(ctx))
}

func TestTracerProvider_TracerWhenDisabled(t *testing.T) {
	tp := disabledTracerProvider(t)

	tracer := tp.Tracer("billing")
	require.NotNil(t, tracer)

	// No-op spans still behave
	_, span := tracer.Start(context.Background(), "record-usage")
	span.End()
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name     string
		ratio    float64
		expected sdktrace.Sampler
	}{
		{"always", 1.0, sdktrace.AlwaysSample()},
		{"never", 0.0, sdktrace.NeverSample()},
		{"ratio", 0.25, sdktrace.TraceIDRatioBased(0.25)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected.Description(), newSampler(tt.ratio).Description())
		})
	}
}

func TestServiceResource(t *testing.T) {
	res, err := serviceResource("billflow-backend")
	require.NoError(t, err)

	var found bool
	for _, attr := range res.Attributes() {
		if string(attr.Key) == "service.name" {
			found = true
			assert.Equal(t, "billflow-backend", attr.Value.AsString())
		}
	}
	assert.True(t, found, "service.name attribute should be set")
}

func TestTracerProvider_SpanProfiles(t *testing.T) {
	t.Run("no-op when tracing disabled", func(t *testing.T) {
		tp := disabledTracerProvider(t)

		assert.NoError(t, tp.EnableSpanProfiles())
		assert.False(t, tp.IsSpanProfilesEnabled())
	})

	t.Run("enabled provider gets wrapped once", func(t *testing.T) {
		ctx := context.Background()
		tp, err := NewTracerProvider(ctx, Config{
			Enabled:           true,
			CollectorEndpoint: "localhost:19999",
			SamplingRatio:     1.0,
			ServiceName:       "billflow-backend",
		}, zap.NewNop())
		require.NoError(t, err)
		defer func() { _ = tp.Shutdown(ctx) }()

		assert.False(t, tp.IsSpanProfilesEnabled())

		require.NoError(t, tp.EnableSpanProfiles())
		assert.True(t, tp.IsSpanProfilesEnabled())

		// Second call is idempotent
		require.NoError(t, tp.EnableSpanProfiles())
		assert.True(t, tp.IsSpanProfilesEnabled())
	})

	t.Run("concurrent enable is safe", func(t *testing.T) {
		tp := disabledTracerProvider(t)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = tp.EnableSpanProfiles()
				_ = tp.IsSpanProfilesEnabled()
			}()
		}
		wg.Wait()

		assert.False(t, tp.IsSpanProfilesEnabled())
	})
}
