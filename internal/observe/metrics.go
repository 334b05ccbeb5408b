// Package observe provides the OpenTelemetry metrics, tracing helpers and
// HTTP middleware of the soundboard server.
//
// Metrics are exported via the Prometheus bridge set up by [InitProvider] and
// scraped from /metrics. Tests should create their own instance with
// [NewMetrics] and a manual reader instead of using [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/mgoltzsche/sobub"

// Metrics holds the metric instruments of the application.
type Metrics struct {
	// STTDuration tracks speech-to-text latency. Attribute: status.
	STTDuration metric.Float64Histogram

	// PipelineDuration tracks the processing time of one audio chunk.
	PipelineDuration metric.Float64Histogram

	// PipelineResults counts pipeline results. Attribute: kind.
	PipelineResults metric.Int64Counter

	// TriggerDecisions counts trigger engine decisions. Attribute: outcome.
	TriggerDecisions metric.Int64Counter

	// ActiveSessions tracks the number of connected websocket clients.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request latency. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets in seconds, sized for whisper latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates all instruments using the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("sobub.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("sobub.pipeline.duration",
		metric.WithDescription("Processing time of an audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineResults, err = m.Int64Counter("sobub.pipeline.results",
		metric.WithDescription("Pipeline results by kind."),
	); err != nil {
		return nil, err
	}
	if met.TriggerDecisions, err = m.Int64Counter("sobub.trigger.decisions",
		metric.WithDescription("Trigger decisions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("sobub.active_sessions",
		metric.WithDescription("Number of connected websocket clients."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("sobub.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance backed by the
// global meter provider. Panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordSTT records the duration of a transcription call.
func (m *Metrics) RecordSTT(ctx context.Context, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.STTDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordPipelineResult records the duration and kind of a pipeline run.
func (m *Metrics) RecordPipelineResult(ctx context.Context, kind string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.PipelineDuration.Record(ctx, d.Seconds(), attrs)
	m.PipelineResults.Add(ctx, 1, attrs)
}

// RecordTriggerDecision counts a trigger engine decision.
func (m *Metrics) RecordTriggerDecision(ctx context.Context, outcome string) {
	m.TriggerDecisions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
