package receiver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/obsidianstack/vitals/internal/compute"
	"github.com/obsidianstack/vitals/internal/observer"
	"github.com/obsidianstack/vitals/internal/store"
)

// maxBodyBytes caps a single beacon body.
const maxBodyBytes = 1 << 20

// Beacon is one batch of performance entries posted by a page.
type Beacon struct {
	// PageID identifies the page view. Empty on the first beacon; the
	// response carries the id to use from then on.
	PageID string `json:"page_id"`

	// URL is the page URL, used in reporting payloads.
	URL string `json:"url"`

	// EntryType is the PerformanceObserver type of every entry in Entries.
	EntryType string `json:"entry_type"`

	Entries []observer.Entry `json:"entries"`

	// Navigation is read once, when the page view is created.
	Navigation *observer.NavigationTiming `json:"navigation,omitempty"`

	// SupportedEntryTypes mirrors PerformanceObserver.supportedEntryTypes.
	// Empty means every type is supported.
	SupportedEntryTypes []string `json:"supported_entry_types,omitempty"`

	// NoObserver is set by pages without any PerformanceObserver API.
	NoObserver bool `json:"no_observer,omitempty"`
}

// Response is returned for every accepted beacon.
type Response struct {
	PageID   string `json:"page_id"`
	Accepted int    `json:"accepted"`
	Created  bool   `json:"created"`
}

// EngineFactory builds the engine for a new page view on feed.
type EngineFactory func(feed *observer.Feed, pageID, pageURL string) (*compute.Engine, error)

// Receiver is the HTTP handler for POST /api/v1/entries. It creates one
// engine per page view on the first beacon and delivers every batch to that
// page's feed.
type Receiver struct {
	store     *store.Store
	newEngine EngineFactory
	maxBatch  atomic.Int64
}

// New creates a Receiver that keeps pages in st and builds engines with f.
func New(st *store.Store, f EngineFactory, maxBatch int) *Receiver {
	r := &Receiver{store: st, newEngine: f}
	r.SetMaxBatch(maxBatch)
	return r
}

// SetMaxBatch changes the per-beacon entry limit.
func (r *Receiver) SetMaxBatch(n int) {
	r.maxBatch.Store(int64(n))
}

func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var b Beacon
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(&b); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid beacon: "+err.Error())
		return
	}

	if err := r.validate(&b); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBatchTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		jsonErr(w, status, err.Error())
		return
	}

	if b.PageID == "" {
		b.PageID = uuid.NewString()
	}

	page, created, err := r.store.GetOrCreate(b.PageID, func() (*store.Page, error) {
		return r.createPage(&b)
	})
	if errors.Is(err, compute.ErrUnsupported) {
		jsonErr(w, http.StatusUnprocessableEntity, "performance observer unavailable on this page")
		return
	}
	if err != nil {
		slog.Error("receiver: create page failed", "page_id", b.PageID, "err", err)
		jsonErr(w, http.StatusInternalServerError, "could not create page")
		return
	}
	if !created && b.Navigation != nil {
		slog.Debug("receiver: navigation ignored for existing page", "page_id", page.ID)
	}

	accepted := 0
	if len(b.Entries) > 0 && page.Feed.Deliver(b.EntryType, b.Entries) > 0 {
		accepted = len(b.Entries)
	}

	slog.Debug("receiver: beacon delivered",
		"page_id", page.ID,
		"entry_type", b.EntryType,
		"entries", len(b.Entries),
		"accepted", accepted,
		"created", created,
	)

	jsonResp(w, http.StatusAccepted, Response{PageID: page.ID, Accepted: accepted, Created: created})
}

var errBatchTooLarge = errors.New("batch too large")

func (r *Receiver) validate(b *Beacon) error {
	if limit := r.maxBatch.Load(); limit > 0 && int64(len(b.Entries)) > limit {
		return fmt.Errorf("%w: %d entries, limit %d", errBatchTooLarge, len(b.Entries), limit)
	}
	if len(b.Entries) > 0 && !knownType(b.EntryType) {
		return fmt.Errorf("unknown entry_type %q", b.EntryType)
	}
	for _, t := range b.SupportedEntryTypes {
		if !knownType(t) && t != observer.TypeNavigation {
			slog.Debug("receiver: ignoring unknown supported type", "type", t)
		}
	}
	return nil
}

// createPage builds the feed and engine for a new page view. Navigation is
// set before the engine starts so TTFB is read.
func (r *Receiver) createPage(b *Beacon) (*store.Page, error) {
	var feed *observer.Feed
	if b.NoObserver {
		feed = observer.Unsupported()
	} else {
		feed = observer.NewFeed(b.SupportedEntryTypes...)
	}
	if b.Navigation != nil {
		feed.SetNavigation(*b.Navigation)
	}

	e, err := r.newEngine(feed, b.PageID, b.URL)
	if err != nil {
		return nil, err
	}
	return &store.Page{URL: b.URL, Engine: e, Feed: feed}, nil
}

func knownType(t string) bool {
	for _, k := range observer.EntryTypes {
		if k == t {
			return true
		}
	}
	return false
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, map[string]string{"error": msg})
}
