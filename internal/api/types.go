package api

import (
	"github.com/obsidianstack/vitals/internal/compute"
	"github.com/obsidianstack/vitals/internal/vitals"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	OverallScore          float64            `json:"overall_score"`
	State                 string             `json:"state"`
	PageCount             int                `json:"page_count"`
	GoodCount             int                `json:"good_count"`
	NeedsImprovementCount int                `json:"needs_improvement_count"`
	PoorCount             int                `json:"poor_count"`
	UnknownCount          int                `json:"unknown_count"`
	Reports               map[string]float64 `json:"reports,omitempty"`
}

// PageResponse is one page view in GET /api/v1/pages or
// GET /api/v1/pages/{id}.
type PageResponse struct {
	PageID          string                        `json:"page_id"`
	URL             string                        `json:"url"`
	State           string                        `json:"state"`
	Overall         int                           `json:"overall"`
	PerMetric       map[vitals.Name]vitals.Rating `json:"per_metric"`
	Metrics         []MetricResponse              `json:"metrics"`
	Recommendations []string                      `json:"recommendations"`
	Diagnostics     []DiagnosticHint              `json:"diagnostics"`
	CreatedAt       string                        `json:"created_at"` // RFC3339
	LastSeen        string                        `json:"last_seen"`  // RFC3339
}

// MetricResponse is one measured metric within a page.
type MetricResponse struct {
	Name       vitals.Name   `json:"name"`
	Value      float64       `json:"value"`
	Unit       string        `json:"unit,omitempty"`
	Rating     vitals.Rating `json:"rating"`
	Element    string        `json:"element,omitempty"`
	EventType  string        `json:"event_type,omitempty"`
	Sources    []string      `json:"sources,omitempty"`
	CapturedAt string        `json:"captured_at"` // RFC3339
}

// ScoreResponse is the payload for GET /api/v1/pages/{id}/score.
type ScoreResponse struct {
	PageID string `json:"page_id"`
	compute.PerformanceScore
}

// RecommendationsResponse is the payload for
// GET /api/v1/pages/{id}/recommendations.
type RecommendationsResponse struct {
	PageID          string   `json:"page_id"`
	Recommendations []string `json:"recommendations"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot.
type SnapshotResponse struct {
	Pages       []PageResponse `json:"pages"`
	GeneratedAt string         `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
