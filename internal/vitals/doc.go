// Package vitals defines the Core Web Vitals metric model and the classifier
// that maps a raw measurement onto its quality band.
//
// Rate(name, value) is pure and uses fixed threshold pairs:
//
//	LCP  ≤2500ms good, ≤4000ms needs-improvement, else poor
//	FID  ≤100ms,  ≤300ms
//	INP  ≤200ms,  ≤500ms
//	CLS  ≤0.10,   ≤0.25
//	FCP  ≤1800ms, ≤3000ms
//	TTFB ≤800ms,  ≤1800ms
//
// A value exactly on a threshold gets the better rating.
package vitals
