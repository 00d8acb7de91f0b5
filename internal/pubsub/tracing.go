package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/nfrund/roomchat/internal/pubsub"

// TracingConfig selects where bus spans go. The server builds it from
// config.Provider.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	ZipkinURL   string
}

// NewTracer returns the tracer for the bus middlewares and a shutdown func
// that flushes spans still batched. A disabled config gets a no-op tracer.
func NewTracer(ctx context.Context, cfg TracingConfig) (trace.Tracer, func(), error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider().Tracer(tracerName), func() {}, nil
	}
	if cfg.ZipkinURL == "" {
		return nil, nil, errors.New("tracing enabled without a zipkin url")
	}

	exporter, err := zipkin.New(cfg.ZipkinURL)
	if err != nil {
		return nil, nil, fmt.Errorf("zipkin exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Warn("Failed to flush bus traces", "event", "otel_shutdown_failure", "error", err)
		}
	}
	return tp.Tracer(tracerName), shutdown, nil
}
