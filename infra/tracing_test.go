package infra

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

func rootParams(name string, attrs ...attribute.KeyValue) sdktrace.SamplingParameters {
	return sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		Name:          name,
		Attributes:    attrs,
	}
}

func TestJobSampler_RootSpans(t *testing.T) {
	sampler := JobSampler{SpanNames: map[string]float64{"upload_cleanup": 0.0}}

	assert.Equal(t, sdktrace.RecordAndSample, sampler.ShouldSample(rootParams("failed_upload_sweep")).Decision)
	assert.Equal(t, sdktrace.Drop, sampler.ShouldSample(rootParams("upload_cleanup")).Decision,
		"configured ratio overrides the default")
	assert.Equal(t, sdktrace.Drop, sampler.ShouldSample(rootParams("pool.acquire")).Decision)
	assert.Equal(t, sdktrace.Drop,
		sampler.ShouldSample(rootParams("query", semconv.DBQueryTextKey.String("SELECT 1"))).Decision)
}

func TestJobSampler_ChildSpansFollowParent(t *testing.T) {
	sampler := JobSampler{}
	sampled := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
	})
	notSampled := trace.NewSpanContext(trace.SpanContextConfig{TraceID: trace.TraceID{1}, SpanID: trace.SpanID{1}})

	params := rootParams("query")
	params.ParentContext = trace.ContextWithSpanContext(context.Background(), sampled)
	assert.Equal(t, sdktrace.RecordAndSample, sampler.ShouldSample(params).Decision)

	params.Name = "prepare stmt"
	assert.Equal(t, sdktrace.Drop, sampler.ShouldSample(params).Decision)

	params.Name = "query"
	params.ParentContext = trace.ContextWithSpanContext(context.Background(), notSampled)
	assert.Equal(t, sdktrace.Drop, sampler.ShouldSample(params).Decision)
}
