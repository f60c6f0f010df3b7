// Package observability wires OpenTelemetry tracing for the ingestion
// pipeline. Spans cover batch fetch, decode and encode; the exporter writes
// to stdout, which is where collectors pick traces up in this deployment.
package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratumdb/stratum/pkg/errors"
	stringpool "github.com/stratumdb/stratum/pkg/strings"
)

// Config controls the tracer provider.
type Config struct {
	Enabled        bool    `yaml:"enabled"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	Environment    string  `yaml:"environment"`
	SamplingRate   float64 `yaml:"sampling_rate"`
}

var (
	initOnce sync.Once
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
)

// Init installs the global tracer provider. Safe to call more than once;
// only the first call takes effect. With Enabled false, spans become no-ops.
func Init(config Config) error {
	var initErr error

	initOnce.Do(func() {
		if !config.Enabled {
			tracer = otel.Tracer("stratum")
			return
		}
		if config.ServiceName == "" {
			config.ServiceName = "stratum"
		}

		res, err := resource.New(context.Background(),
			resource.WithAttributes(
				semconv.ServiceNameKey.String(config.ServiceName),
				semconv.ServiceVersionKey.String(config.ServiceVersion),
				semconv.DeploymentEnvironmentKey.String(config.Environment),
			),
		)
		if err != nil {
			initErr = errors.Wrap(err, errors.ErrorTypeInternal, "failed to create trace resource")
			return
		}

		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			initErr = errors.Wrap(err, errors.ErrorTypeInternal, "failed to create stdout trace exporter")
			return
		}

		var sampler sdktrace.Sampler
		switch {
		case config.SamplingRate <= 0:
			sampler = sdktrace.NeverSample()
		case config.SamplingRate >= 1.0:
			sampler = sdktrace.AlwaysSample()
		default:
			sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
		}

		provider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
			sdktrace.WithBatcher(exporter),
		)

		otel.SetTracerProvider(provider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

		tracer = provider.Tracer(config.ServiceName)
	})

	return initErr
}

// Shutdown flushes buffered spans. Give it a deadline via ctx.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// Tracer returns the global tracer, initializing a no-op one when Init has
// not run.
func Tracer() trace.Tracer {
	if tracer == nil {
		return otel.Tracer("stratum")
	}
	return tracer
}

// Span batches attributes until End so hot paths touch the SDK once.
type Span struct {
	span       trace.Span
	attributes []attribute.KeyValue
}

// StartSpan opens a span under the global tracer.
func StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, operation)
	return ctx, &Span{span: span}
}

// SetAttribute queues an attribute for End.
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int32:
		attr = attribute.Int64(key, int64(v))
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	case time.Duration:
		attr = attribute.Int64(key, v.Nanoseconds())
	default:
		attr = attribute.String(key, stringpool.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// RecordError marks the span failed and records err.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// End flushes queued attributes and closes the span.
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	s.span.End()
}

// TraceBatch wraps one batch-processing step in a span carrying the batch
// size and failure status.
func TraceBatch(ctx context.Context, operation string, size int, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, operation)
	defer span.End()

	span.SetAttribute("batch.size", size)

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
