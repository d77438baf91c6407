package reporter

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const reportsTotalName = "webvitals_reports_total"

// valueBuckets cover the millisecond thresholds and the x1000 CLS scale.
var valueBuckets = []float64{50, 100, 200, 300, 500, 800, 1000, 1800, 2500, 3000, 4000, 6000, 10000}

// PromSink exposes tracked events as Prometheus metrics on its own registry.
type PromSink struct {
	reg     *prometheus.Registry
	values  *prometheus.HistogramVec
	reports *prometheus.CounterVec
}

// NewPromSink returns a sink with a fresh registry.
func NewPromSink() *PromSink {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &PromSink{
		reg: reg,
		values: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webvitals_metric_value",
			Help:    "Reported Web Vitals values (milliseconds; CLS x1000).",
			Buckets: valueBuckets,
		}, []string{"metric"}),
		reports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: reportsTotalName,
			Help: "Metric reports by metric and rating.",
		}, []string{"metric", "rating"}),
	}
}

// Track implements Analytics.
func (s *PromSink) Track(e Event) {
	s.values.WithLabelValues(string(e.Name)).Observe(float64(e.Value))
	s.reports.WithLabelValues(string(e.Name), string(e.Rating)).Inc()
}

// Handler serves the sink's registry in the Prometheus exposition format.
func (s *PromSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (s *PromSink) Registry() *prometheus.Registry {
	return s.reg
}

// Totals returns the report count per metric, summed over ratings.
func (s *PromSink) Totals() (map[string]float64, error) {
	mfs, err := s.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("reporter: gather: %w", err)
	}
	out := make(map[string]float64)
	for _, mf := range mfs {
		if mf.GetName() != reportsTotalName {
			continue
		}
		for _, m := range mf.GetMetric() {
			out[labelValue(m, "metric")] += m.GetCounter().GetValue()
		}
	}
	return out, nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
