package reporter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/obsidianstack/vitals/internal/reporter"

// OTelSink records tracked events as OpenTelemetry instruments.
type OTelSink struct {
	values  metric.Int64Histogram
	reports metric.Int64Counter
}

// NewOTelSink creates the sink's instruments on mp.
func NewOTelSink(mp metric.MeterProvider) (*OTelSink, error) {
	m := mp.Meter(meterName)

	values, err := m.Int64Histogram("webvitals.value",
		metric.WithDescription("Reported Web Vitals values (milliseconds; CLS x1000)."),
		metric.WithExplicitBucketBoundaries(valueBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("reporter: otel histogram: %w", err)
	}

	reports, err := m.Int64Counter("webvitals.reports",
		metric.WithDescription("Metric reports by metric and rating."),
	)
	if err != nil {
		return nil, fmt.Errorf("reporter: otel counter: %w", err)
	}

	return &OTelSink{values: values, reports: reports}, nil
}

// Track implements Analytics.
func (s *OTelSink) Track(e Event) {
	ctx := context.Background()
	s.values.Record(ctx, e.Value,
		metric.WithAttributes(attribute.String("metric", string(e.Name))))
	s.reports.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("metric", string(e.Name)),
			attribute.String("rating", string(e.Rating)),
		))
}
