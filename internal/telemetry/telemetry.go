// Package telemetry configures OpenTelemetry tracing for a run.
//
// The executor opens one span per task through the global tracer provider.
// Without Init that provider is the no-op default, so tracing costs nothing
// unless a run asks for it.
package telemetry

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/specialistvlad/hydroshard/internal/ctxlog"
)

// Config selects where spans go.
type Config struct {
	ServiceName string
	Version     string
	RunID       string
	// Writer receives the exported spans as JSON. Defaults to stderr.
	Writer io.Writer
}

// Init installs a tracer provider that exports every span to cfg.Writer and
// returns its shutdown function, which flushes pending spans.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	logger := ctxlog.FromContext(ctx)

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "hydroshard"
	}
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(strings.TrimSpace(cfg.Version)),
			attribute.String("run.id", cfg.RunID),
		),
	)
	if err != nil {
		logger.Warn("otel resource init failed (continuing)", "error", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	logger.Info("🔭 Tracing initialized.", "service", serviceName)
	return tp.Shutdown, nil
}
