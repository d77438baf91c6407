package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/obsidianstack/vitals/internal/config"
	"github.com/obsidianstack/vitals/internal/reporter"
)

// sinkSet holds the analytics sinks the reporters fan out to. The Prometheus
// sink always exists because /metrics and the health totals read from it.
type sinkSet struct {
	prom      *reporter.PromSink
	analytics reporter.Analytics
	mp        *sdkmetric.MeterProvider
}

func newSinks(ctx context.Context, c config.CollectorConfig) (*sinkSet, error) {
	s := &sinkSet{prom: reporter.NewPromSink()}
	multi := reporter.Multi{}

	for _, name := range c.Analytics {
		switch name {
		case "prometheus":
			multi = append(multi, s.prom)
		case "otel":
			sink, err := s.newOTel(ctx, c.OTLPEndpoint)
			if err != nil {
				return nil, err
			}
			multi = append(multi, sink)
			slog.Info("otel analytics enabled", "endpoint", c.OTLPEndpoint)
		default:
			return nil, fmt.Errorf("collector.analytics: unknown sink %q", name)
		}
	}
	if len(multi) > 0 {
		s.analytics = multi
	}
	return s, nil
}

func (s *sinkSet) newOTel(ctx context.Context, endpoint string) (*reporter.OTelSink, error) {
	opts := []otlpmetrichttp.Option{}
	if endpoint != "" {
		opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}

	s.mp = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", "vitals-collector"))),
	)
	return reporter.NewOTelSink(s.mp)
}

func (s *sinkSet) shutdown(ctx context.Context) error {
	if s.mp == nil {
		return nil
	}
	if err := s.mp.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
