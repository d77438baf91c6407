package compute

import (
	"math"

	"github.com/obsidianstack/vitals/internal/vitals"
)

// Points awarded per rating when averaging the overall score.
const (
	pointsGood             = 100
	pointsNeedsImprovement = 50
	pointsPoor             = 0
)

// PerformanceScore is the on-demand summary of every measured metric.
type PerformanceScore struct {
	// PerMetric holds the rating of each metric measured so far. Metrics not
	// yet measured are absent.
	PerMetric map[vitals.Name]vitals.Rating `json:"per_metric"`

	// Overall is the rounded mean of the per-metric points, 0 to 100.
	// 0 when nothing has been measured.
	Overall int `json:"overall"`
}

// recommendations is the fixed advice shown for each poor metric.
var recommendations = map[vitals.Name]string{
	vitals.LCP:  "Optimize Largest Contentful Paint: preload the hero image and critical fonts, and cut render-blocking CSS and JavaScript.",
	vitals.FID:  "Reduce First Input Delay: break up long main-thread tasks and defer non-critical JavaScript.",
	vitals.INP:  "Improve Interaction to Next Paint: yield to the main thread inside event handlers and keep handler work short.",
	vitals.CLS:  "Reduce Cumulative Layout Shift: set explicit width/height or aspect-ratio on media and reserve space for late-loading content.",
	vitals.FCP:  "Speed up First Contentful Paint: inline critical CSS, defer non-critical stylesheets and reduce server response time.",
	vitals.TTFB: "Lower Time to First Byte: cache responses at the edge and reduce server processing time.",
}

// Score rates every metric in metrics and averages their points.
//
// Metrics that have not been measured are excluded from the mean; they are
// never counted as poor.
func Score(metrics map[vitals.Name]vitals.Metric) PerformanceScore {
	out := PerformanceScore{PerMetric: make(map[vitals.Name]vitals.Rating, len(metrics))}

	var sum, n int
	for name, m := range metrics {
		p, ok := points(m.Rating)
		if !ok {
			continue
		}
		out.PerMetric[name] = m.Rating
		sum += p
		n++
	}
	if n > 0 {
		out.Overall = int(math.Round(float64(sum) / float64(n)))
	}
	return out
}

// Recommendations returns the fixed advice for every poor metric, in
// vitals.Names order. Metrics rated good or needs-improvement yield nothing.
func Recommendations(metrics map[vitals.Name]vitals.Metric) []string {
	out := []string{}
	for _, name := range vitals.Names {
		m, ok := metrics[name]
		if !ok || m.Rating != vitals.RatingPoor {
			continue
		}
		out = append(out, recommendations[name])
	}
	return out
}

// points maps a rating to its score contribution.
func points(r vitals.Rating) (int, bool) {
	switch r {
	case vitals.RatingGood:
		return pointsGood, true
	case vitals.RatingNeedsImprovement:
		return pointsNeedsImprovement, true
	case vitals.RatingPoor:
		return pointsPoor, true
	default:
		return 0, false
	}
}
