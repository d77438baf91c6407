package api

import (
	"fmt"
	"strings"

	"github.com/obsidianstack/vitals/internal/compute"
	"github.com/obsidianstack/vitals/internal/vitals"
)

// DiagnosticHint is one human-readable insight about a page view.
// The UI displays these as chips on the page card; clicking one shows Detail.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is the measurement the hint is about, if any.
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives hints from one engine snapshot.
func computeDiagnostics(snap compute.Snapshot) []DiagnosticHint {
	if len(snap.Metrics) == 0 {
		return []DiagnosticHint{{
			Key:   "warming_up",
			Level: "info",
			Title: "Waiting for entries",
			Detail: "No metric has been measured for this page view yet. " +
				"Paint and navigation entries usually arrive with the first beacon; " +
				"input metrics appear only after the visitor interacts.",
		}}
	}

	var hints []DiagnosticHint
	for _, name := range vitals.Names {
		m, ok := snap.Metrics[name]
		if !ok {
			continue
		}
		if h, ok := metricHint(m); ok {
			hints = append(hints, h)
		}
	}

	if cls, ok := snap.Metrics[vitals.CLS]; ok && cls.Rating != vitals.RatingGood && cls.Aux != nil && len(cls.Aux.Sources) > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "cls_sources",
			Level: "info",
			Title: "Shifting elements",
			Detail: fmt.Sprintf("The largest layout-shift session moved: %s. "+
				"Give these elements explicit dimensions or reserve their space.",
				strings.Join(cls.Aux.Sources, ", ")),
		})
	}

	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:    "all_good",
			Level:  "ok",
			Title:  "All metrics good",
			Detail: "Every measured metric is within its good threshold.",
		})
	}
	sortHints(hints)
	return hints
}

// metricHint returns a warning or critical hint for a metric outside its
// good band, stating how far past the threshold it is.
func metricHint(m vitals.Metric) (DiagnosticHint, bool) {
	good, ni, ok := vitals.Bounds(m.Name)
	if !ok {
		return DiagnosticHint{}, false
	}

	var level, limit string
	switch m.Rating {
	case vitals.RatingNeedsImprovement:
		level = "warning"
		limit = formatValue(m.Name, good)
	case vitals.RatingPoor:
		level = "critical"
		limit = formatValue(m.Name, ni)
	default:
		return DiagnosticHint{}, false
	}

	v := m.Value
	detail := fmt.Sprintf("%s is %s, %s over the good threshold of %s (rated %s above %s).",
		m.Name, formatValue(m.Name, v), formatValue(m.Name, v-good),
		formatValue(m.Name, good), m.Rating, limit)
	if m.Aux != nil && m.Aux.Element != "" {
		detail += fmt.Sprintf(" Largest element: %s.", m.Aux.Element)
	}
	if m.Aux != nil && m.Aux.EventType != "" {
		detail += fmt.Sprintf(" Slowest interaction: %s.", m.Aux.EventType)
	}

	return DiagnosticHint{
		Key:    strings.ToLower(string(m.Name)) + "_" + string(m.Rating),
		Level:  level,
		Title:  fmt.Sprintf("%s %s", m.Name, formatValue(m.Name, v)),
		Detail: detail,
		Value:  &v,
	}, true
}

// formatValue renders timings in ms (or s above one second) and CLS as a
// unitless score.
func formatValue(name vitals.Name, v float64) string {
	if name.Unit() == "" {
		return fmt.Sprintf("%.3f", v)
	}
	if v >= 1000 {
		return fmt.Sprintf("%.2f s", v/1000)
	}
	return fmt.Sprintf("%.0f ms", v)
}
