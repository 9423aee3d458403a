package infra

import (
	"context"
	"encoding/binary"
	"math"
	"strings"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	gcppropagator "github.com/GoogleCloudPlatform/opentelemetry-operations-go/propagator"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/detectors/gcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/api/option"
)

type TelemetryRessources struct {
	TracerProvider    trace.TracerProvider
	Tracer            trace.Tracer
	TextMapPropagator propagation.TextMapPropagator
}

func NoopTelemetry() TelemetryRessources {
	tp := noop.NewTracerProvider()
	return TelemetryRessources{
		TracerProvider: tp,
		Tracer:         tp.Tracer(""),
	}
}

func InitTelemetry(configuration TelemetryConfiguration, version string) (TelemetryRessources, error) {
	if !configuration.Enabled {
		return NoopTelemetry(), nil
	}

	var exporter sdktrace.SpanExporter
	switch configuration.Exporter {
	case "gcp":
		projectId := configuration.ProjectID
		if projectId == "" {
			var err error
			if projectId, err = GetProjectId(); err != nil {
				return TelemetryRessources{}, err
			}
		}
		gcpExporter, err := texporter.New(
			texporter.WithProjectID(projectId),
			texporter.WithTraceClientOptions([]option.ClientOption{option.WithTelemetryDisabled()}),
		)
		if err != nil {
			return TelemetryRessources{}, errors.Wrap(err, "texporter.New error")
		}
		exporter = gcpExporter
	default:
		otlpExporter, err := otlptracegrpc.New(context.Background())
		if err != nil {
			return TelemetryRessources{}, errors.Wrap(err, "otlptracegrpc.New error")
		}
		exporter = otlpExporter
	}

	res, err := resource.New(context.Background(),
		resource.WithDetectors(gcp.NewDetector()),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(configuration.ApplicationName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return TelemetryRessources{}, errors.Wrap(err, "resource.New error")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(JobSampler{SpanNames: configuration.SamplingMap}),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	propagators := propagation.NewCompositeTextMapPropagator(
		gcppropagator.CloudTraceFormatPropagator{},
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(propagators)
	otel.SetTracerProvider(tp)

	return TelemetryRessources{
		TracerProvider:    tp,
		Tracer:            tp.Tracer(configuration.ApplicationName),
		TextMapPropagator: propagators,
	}, nil
}

// Root spans are started by the job tracing middleware with the job kind as name
var defaultSpanNamesSampling = map[string]float64{
	"failed_upload_sweep": 1.0,
	"upload_cleanup":      0.5,
	"dispatch_study_file": 0.5,
	"ingest_study_file":   0.5,
	"push_study_file":     0.2,
	"pool.acquire":        0.0,
}

// JobSampler samples root spans by name and lets child spans follow their parent. Database spans are
// never sampled on their own.
type JobSampler struct {
	SpanNames map[string]float64
}

func (s JobSampler) Description() string {
	return "JobSampler"
}

func (s JobSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	psc := trace.SpanContextFromContext(p.ParentContext)
	result := sdktrace.SamplingResult{
		Decision:   sdktrace.Drop,
		Attributes: p.Attributes,
		Tracestate: psc.TraceState(),
	}

	if psc.HasTraceID() {
		if psc.IsSampled() && !strings.HasPrefix(p.Name, "prepare ") {
			result.Decision = sdktrace.RecordAndSample
		}
		return result
	}

	for _, attr := range p.Attributes {
		if attr.Key == semconv.DBQueryTextKey {
			return result
		}
	}

	prob := 1.0
	if ratio, ok := s.SpanNames[p.Name]; ok {
		prob = ratio
	} else if ratio, ok := defaultSpanNamesSampling[p.Name]; ok {
		prob = ratio
	}

	traceId := binary.BigEndian.Uint64(p.TraceID[:8])
	if prob >= 1.0 || traceId < uint64(prob*float64(math.MaxUint64)) {
		result.Decision = sdktrace.RecordAndSample
	}
	return result
}
