// Package telemetry wires up structured logging and local tracing for the
// engine process. There is no remote exporter: spans stay in-process and
// are only useful for local debugging, so the OTLP exporter the control
// plane used has no home here.
package telemetry

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/nadimtuhin/loopwork/internal/config"
)

// SetupLogging installs a console zerolog writer at the configured level.
func SetupLogging(cfg config.TelemetryConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// Init sets up an in-process OpenTelemetry tracer provider. With no remote
// collector configured, spans are recorded and discarded; Init still
// returns a real tracer so the scheduler and health checker can annotate
// runs without special-casing telemetry being off.
func Init(cfg config.TelemetryConfig) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.Enabled {
		log.Info().Msg("telemetry disabled")
		return otel.Tracer(cfg.ServiceName), func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	log.Info().Str("service", cfg.ServiceName).Msg("local tracing initialized")
	return tp.Tracer(cfg.ServiceName), tp.Shutdown, nil
}
