package vitals

// threshold holds the upper bounds of the good and needs-improvement bands.
// A value equal to a bound belongs to the better band.
type threshold struct {
	good             float64
	needsImprovement float64
}

// thresholds maps each metric to its published Web Vitals bands.
var thresholds = map[Name]threshold{
	LCP:  {good: 2500, needsImprovement: 4000},
	FID:  {good: 100, needsImprovement: 300},
	INP:  {good: 200, needsImprovement: 500},
	CLS:  {good: 0.1, needsImprovement: 0.25},
	FCP:  {good: 1800, needsImprovement: 3000},
	TTFB: {good: 800, needsImprovement: 1800},
}

// Rate classifies value for the given metric.
// Names outside the metric set return RatingUnknown.
func Rate(name Name, value float64) Rating {
	t, ok := thresholds[name]
	if !ok {
		return RatingUnknown
	}
	switch {
	case value <= t.good:
		return RatingGood
	case value <= t.needsImprovement:
		return RatingNeedsImprovement
	default:
		return RatingPoor
	}
}

// Bounds returns the good and needs-improvement upper bounds for name.
func Bounds(name Name) (good, needsImprovement float64, ok bool) {
	t, ok := thresholds[name]
	return t.good, t.needsImprovement, ok
}
