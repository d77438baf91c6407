package compute

import (
	"testing"

	"github.com/obsidianstack/vitals/internal/vitals"
)

func metricsOf(values map[vitals.Name]float64) map[vitals.Name]vitals.Metric {
	out := make(map[vitals.Name]vitals.Metric, len(values))
	for n, v := range values {
		out[n] = vitals.Metric{Name: n, Value: v, Rating: vitals.Rate(n, v)}
	}
	return out
}

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		metrics map[vitals.Name]float64
		want    int
	}{
		{"empty", nil, 0},
		{"one good", map[vitals.Name]float64{vitals.LCP: 1200}, 100},
		{"good and poor", map[vitals.Name]float64{vitals.LCP: 1200, vitals.CLS: 0.4}, 50},
		{"one needs-improvement", map[vitals.Name]float64{vitals.FID: 200}, 50},
		{"two good one ni", map[vitals.Name]float64{vitals.LCP: 100, vitals.FCP: 100, vitals.TTFB: 1000}, 83},
		{"good ni poor", map[vitals.Name]float64{vitals.LCP: 100, vitals.FCP: 2000, vitals.TTFB: 5000}, 50},
		{"one good two ni", map[vitals.Name]float64{vitals.LCP: 100, vitals.FCP: 2000, vitals.TTFB: 1000}, 67},
		{"all poor", map[vitals.Name]float64{vitals.INP: 900, vitals.CLS: 1}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(metricsOf(tc.metrics))
			if got.Overall != tc.want {
				t.Errorf("Overall = %d, want %d", got.Overall, tc.want)
			}
			if len(got.PerMetric) != len(tc.metrics) {
				t.Errorf("PerMetric has %d entries, want %d", len(got.PerMetric), len(tc.metrics))
			}
		})
	}
}

func TestScore_MissingMetricsNotPoor(t *testing.T) {
	got := Score(metricsOf(map[vitals.Name]float64{vitals.TTFB: 100}))
	if _, ok := got.PerMetric[vitals.LCP]; ok {
		t.Error("unmeasured LCP appears in PerMetric")
	}
	if got.Overall != 100 {
		t.Errorf("Overall = %d, want 100", got.Overall)
	}
}

func TestScore_SkipsUnknownRating(t *testing.T) {
	m := metricsOf(map[vitals.Name]float64{vitals.LCP: 100})
	m["TBT"] = vitals.Metric{Name: "TBT", Value: 9999, Rating: vitals.RatingUnknown}
	if got := Score(m); got.Overall != 100 || len(got.PerMetric) != 1 {
		t.Errorf("Score = %+v, want only LCP counted", got)
	}
}

func TestRecommendations(t *testing.T) {
	m := metricsOf(map[vitals.Name]float64{
		vitals.TTFB: 4000, // poor
		vitals.CLS:  0.5,  // poor
		vitals.LCP:  3000, // needs-improvement
		vitals.FCP:  100,  // good
	})

	got := Recommendations(m)
	want := []string{recommendations[vitals.CLS], recommendations[vitals.TTFB]}
	if len(got) != len(want) {
		t.Fatalf("Recommendations = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Same input, same output.
	again := Recommendations(m)
	for i := range got {
		if again[i] != got[i] {
			t.Fatal("Recommendations not deterministic")
		}
	}
}

func TestRecommendations_NonePoor(t *testing.T) {
	got := Recommendations(metricsOf(map[vitals.Name]float64{vitals.LCP: 3000}))
	if got == nil || len(got) != 0 {
		t.Errorf("Recommendations = %#v, want empty non-nil slice", got)
	}
}

func TestRecommendations_EveryMetricCovered(t *testing.T) {
	for _, n := range vitals.Names {
		if recommendations[n] == "" {
			t.Errorf("no recommendation for %s", n)
		}
	}
}
