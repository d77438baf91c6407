package vitals

import "time"

// Name identifies one Core Web Vitals metric.
type Name string

const (
	LCP  Name = "LCP"
	FID  Name = "FID"
	INP  Name = "INP"
	CLS  Name = "CLS"
	FCP  Name = "FCP"
	TTFB Name = "TTFB"
)

// Names is the fixed metric order used wherever output must be deterministic.
var Names = []Name{LCP, FID, INP, CLS, FCP, TTFB}

// Rating is the quality band a measurement falls into.
type Rating string

const (
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs-improvement"
	RatingPoor             Rating = "poor"

	// RatingUnknown is returned for names outside the metric set.
	RatingUnknown Rating = ""
)

// Auxiliary carries optional per-metric context captured with the measurement.
type Auxiliary struct {
	// Element describes the LCP element (tag name, plus #id when present).
	Element string `json:"element,omitempty"`

	// EventType is the input event type that produced an FID or INP value.
	EventType string `json:"event_type,omitempty"`

	// Sources lists the nodes that moved in the layout-shift session that
	// produced the current CLS value.
	Sources []string `json:"sources,omitempty"`
}

// Metric is one recorded measurement. A Metric value is never modified after
// it is built; newer measurements replace it as a whole.
type Metric struct {
	Name       Name       `json:"name"`
	Value      float64    `json:"value"`
	Rating     Rating     `json:"rating"`
	CapturedAt time.Time  `json:"captured_at"`
	Aux        *Auxiliary `json:"aux,omitempty"`
}

// Valid reports whether n is one of the six known metric names.
func (n Name) Valid() bool {
	_, ok := thresholds[n]
	return ok
}

// Unit returns the measurement unit of n: "ms" for timings, "" for CLS.
func (n Name) Unit() string {
	if n == CLS {
		return ""
	}
	return "ms"
}
