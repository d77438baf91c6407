package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/obsidianstack/vitals/internal/compute"
	"github.com/obsidianstack/vitals/internal/store"
	"github.com/obsidianstack/vitals/internal/vitals"
)

// Totals reports how many measurements have been dispatched per metric.
// reporter.PromSink satisfies it.
type Totals interface {
	Totals() (map[string]float64, error)
}

// Handler is the HTTP handler for the read-side /api/v1/* endpoints.
// It reads page views from the store and returns JSON responses.
type Handler struct {
	store  *store.Store
	totals Totals
	now    func() time.Time
	mux    *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithTotals adds dispatched report counts to the health response.
func WithTotals(t Totals) Option {
	return func(h *Handler) { h.totals = t }
}

// WithClock sets the clock used for staleness checks and generated_at.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// New creates a Handler wired to the given page store and registers all routes.
func New(st *store.Store, opts ...Option) http.Handler {
	h := &Handler{store: st, now: time.Now, mux: http.NewServeMux()}
	for _, o := range opts {
		o(h)
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/pages", h.listPages)
	h.mux.HandleFunc("/api/v1/pages/", h.page) // subtree: {id}, {id}/score, {id}/recommendations
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: mean overall score and per-state counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pages := h.store.List()
	resp := HealthResponse{PageCount: len(pages), State: stateUnknown}

	if h.totals != nil {
		totals, err := h.totals.Totals()
		if err != nil {
			slog.Warn("api: report totals unavailable", "err", err)
		} else if len(totals) > 0 {
			resp.Reports = totals
		}
	}

	var sum float64
	var scored int
	for _, p := range pages {
		score := p.Engine.PerformanceScore()
		switch stateOf(score) {
		case string(vitals.RatingGood):
			resp.GoodCount++
		case string(vitals.RatingNeedsImprovement):
			resp.NeedsImprovementCount++
		case string(vitals.RatingPoor):
			resp.PoorCount++
		default:
			resp.UnknownCount++
			continue
		}
		sum += float64(score.Overall)
		scored++
	}

	if scored > 0 {
		resp.OverallScore = sum / float64(scored)
		resp.State = stateFromScore(resp.OverallScore)
	}
	jsonResp(w, http.StatusOK, resp)
}

// listPages returns GET /api/v1/pages: all live page views.
func (h *Handler) listPages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, toPageResponses(h.store.List()))
}

// page dispatches /api/v1/pages/{id}[/score|/recommendations].
func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/pages/"), "/")
	if rest == "" {
		h.listPages(w, r)
		return
	}

	id, sub, _ := strings.Cut(rest, "/")
	switch sub {
	case "":
	case "score", "recommendations":
		if r.Method != http.MethodGet {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
	default:
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}

	if r.Method == http.MethodDelete {
		if !h.store.Delete(id) {
			jsonErr(w, http.StatusNotFound, "page not found")
			return
		}
		slog.Debug("api: page deleted", "page_id", id)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	p, ok := h.store.Get(id)
	// Stale pages are treated as not found.
	if !ok || h.now().Sub(p.UpdatedAt) > h.store.TTL() {
		jsonErr(w, http.StatusNotFound, "page not found")
		return
	}

	switch sub {
	case "score":
		jsonResp(w, http.StatusOK, ScoreResponse{PageID: p.ID, PerformanceScore: p.Engine.PerformanceScore()})
	case "recommendations":
		jsonResp(w, http.StatusOK, RecommendationsResponse{PageID: p.ID, Recommendations: p.Engine.Recommendations()})
	default:
		jsonResp(w, http.StatusOK, toPageResponse(p))
	}
}

// snapshot returns GET /api/v1/snapshot: full JSON dump of all live pages.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, buildSnapshot(h.store, h.now()))
}

// BuildSnapshot returns every live page with its score, metrics and
// diagnostics. The websocket hub broadcasts the same payload.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	return buildSnapshot(st, time.Now())
}

func buildSnapshot(st *store.Store, now time.Time) SnapshotResponse {
	return SnapshotResponse{
		Pages:       toPageResponses(st.List()),
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

const stateUnknown = "unknown"

// stateFromScore converts a 0-100 score to a page state. The cut-offs follow
// the per-metric points: all good is 100, all needs-improvement is 50.
func stateFromScore(score float64) string {
	switch {
	case score >= 90:
		return string(vitals.RatingGood)
	case score >= 50:
		return string(vitals.RatingNeedsImprovement)
	default:
		return string(vitals.RatingPoor)
	}
}

// stateOf is "unknown" until at least one metric has been rated.
func stateOf(s compute.PerformanceScore) string {
	if len(s.PerMetric) == 0 {
		return stateUnknown
	}
	return stateFromScore(float64(s.Overall))
}

func toPageResponses(pages []store.Page) []PageResponse {
	out := make([]PageResponse, 0, len(pages))
	for _, p := range pages {
		out = append(out, toPageResponse(p))
	}
	return out
}

// toPageResponse maps a store.Page to its JSON representation. Engine data
// comes from one Snapshot so score and metrics agree.
func toPageResponse(p store.Page) PageResponse {
	snap := p.Engine.Snapshot()

	metrics := make([]MetricResponse, 0, len(snap.Metrics))
	for _, name := range vitals.Names {
		m, ok := snap.Metrics[name]
		if !ok {
			continue
		}
		mr := MetricResponse{
			Name:       m.Name,
			Value:      m.Value,
			Unit:       m.Name.Unit(),
			Rating:     m.Rating,
			CapturedAt: m.CapturedAt.UTC().Format(time.RFC3339),
		}
		if m.Aux != nil {
			mr.Element = m.Aux.Element
			mr.EventType = m.Aux.EventType
			mr.Sources = m.Aux.Sources
		}
		metrics = append(metrics, mr)
	}

	return PageResponse{
		PageID:          p.ID,
		URL:             p.URL,
		State:           stateOf(snap.Score),
		Overall:         snap.Score.Overall,
		PerMetric:       snap.Score.PerMetric,
		Metrics:         metrics,
		Recommendations: snap.Recommendations,
		Diagnostics:     computeDiagnostics(snap),
		CreatedAt:       p.CreatedAt.UTC().Format(time.RFC3339),
		LastSeen:        p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// levelRank orders diagnostics: critical first, then warnings, then info.
var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

func sortHints(hints []DiagnosticHint) {
	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
}
