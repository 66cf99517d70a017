package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerConfig controls the process-wide trace provider installed at
// startup. There is no exporter wired here: the authentication core emits
// spans (around the shared Redis store's operations in internal/storage;
// discovery and key fetches are not traced) for a
// collector running as an otel-collector sidecar to pick up via the SDK's
// own periodic export hooks once one is configured; this core only needs
// the sampler and resource attribution to be correct.
type TracerConfig struct {
	ServiceName  string
	SamplingRate float64
	Enabled      bool
}

// Tracer owns the process-wide TracerProvider's lifecycle.
type Tracer struct {
	provider *sdktrace.TracerProvider
}

// NewTracer installs cfg's sampler as the global TracerProvider. When
// disabled, every span created by otel.Tracer(...) is a no-op.
func NewTracer(cfg TracerConfig) *Tracer {
	if !cfg.Enabled {
		return &Tracer{}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(samplerFor(cfg.SamplingRate)),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{provider: provider}
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes and stops the provider, if one was installed.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// SpanFromContext returns the active span in ctx, a no-op span if none.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}
