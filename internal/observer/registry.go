package observer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/obsidianstack/vitals/internal/cls"
	"github.com/obsidianstack/vitals/internal/vitals"
)

// firstContentfulPaint is the paint entry name FCP is read from.
const firstContentfulPaint = "first-contentful-paint"

// subscription binds one metric to the entry type that feeds it.
type subscription struct {
	metric    vitals.Name
	entryType string
	handle    func(*Registry, []Entry)
}

// subscriptions is ordered so startup logs are deterministic.
var subscriptions = []subscription{
	{vitals.LCP, TypeLargestContentfulPaint, (*Registry).onLCP},
	{vitals.FID, TypeFirstInput, (*Registry).onFirstInput},
	{vitals.INP, TypeEvent, (*Registry).onEvent},
	{vitals.CLS, TypeLayoutShift, (*Registry).onLayoutShift},
	{vitals.FCP, TypePaint, (*Registry).onPaint},
}

// Registry subscribes to a Source once per metric and forwards normalized
// observations to a Handler. A failing subscription is logged and skipped; the
// remaining metrics keep working.
//
// Registry is safe for concurrent use.
type Registry struct {
	src Source
	h   Handler

	mu      sync.Mutex
	unsubs  []Unsubscribe
	fidSeen bool
	fcpSeen bool
	started bool
	closed  bool
}

// NewRegistry returns a Registry that reads from src and writes to h.
func NewRegistry(src Source, h Handler) *Registry {
	return &Registry{src: src, h: h}
}

// Start subscribes every metric and performs the one-time TTFB read. It
// returns the metrics whose subscriptions failed; that list is informational
// and never stops the others. Calling Start twice returns an error.
func (r *Registry) Start() ([]vitals.Name, error) {
	r.mu.Lock()
	if r.started || r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("observer: registry already started")
	}
	r.started = true
	r.mu.Unlock()

	var failed []vitals.Name
	for _, s := range subscriptions {
		s := s
		unsub, err := r.src.Observe(s.entryType, func(batch []Entry) { s.handle(r, batch) })
		if err != nil {
			slog.Warn("observer: subscription failed",
				"metric", s.metric, "entry_type", s.entryType, "err", err)
			failed = append(failed, s.metric)
			continue
		}
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			unsub()
			return failed, nil
		}
		r.unsubs = append(r.unsubs, unsub)
		r.mu.Unlock()
	}

	r.readTTFB()
	return failed, nil
}

// Close releases every subscription. Safe to call more than once.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	unsubs := r.unsubs
	r.unsubs = nil
	r.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// active reports whether callbacks should still be forwarded.
func (r *Registry) active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// readTTFB derives TTFB from the navigation entry, if the source has one.
func (r *Registry) readTTFB() {
	nav, ok := r.src.Navigation()
	if !ok {
		slog.Debug("observer: no navigation entry, TTFB unavailable")
		return
	}
	v := nav.ResponseStart - nav.RequestStart
	if v < 0 {
		slog.Warn("observer: navigation timing out of order, TTFB skipped",
			"request_start", nav.RequestStart, "response_start", nav.ResponseStart)
		return
	}
	r.h.Observe(Observation{Name: vitals.TTFB, Value: v})
}

// onLCP keeps only the last candidate of the batch; earlier ones are superseded.
func (r *Registry) onLCP(batch []Entry) {
	if len(batch) == 0 || !r.active() {
		return
	}
	last := batch[len(batch)-1]
	var aux *vitals.Auxiliary
	if last.Element != "" {
		aux = &vitals.Auxiliary{Element: last.Element}
	}
	r.h.Observe(Observation{Name: vitals.LCP, Value: last.StartTime, Aux: aux})
}

// onFirstInput records FID from the first entry ever delivered.
func (r *Registry) onFirstInput(batch []Entry) {
	if len(batch) == 0 {
		return
	}
	r.mu.Lock()
	if r.fidSeen || r.closed {
		r.mu.Unlock()
		return
	}
	r.fidSeen = true
	r.mu.Unlock()

	e := batch[0]
	r.h.Observe(Observation{
		Name:  vitals.FID,
		Value: e.ProcessingStart - e.StartTime,
		Aux:   &vitals.Auxiliary{EventType: e.Name},
	})
}

// onEvent forwards every interaction's processing span; the handler decides
// which one counts.
func (r *Registry) onEvent(batch []Entry) {
	if !r.active() {
		return
	}
	for _, e := range batch {
		if e.InteractionID == 0 {
			continue
		}
		r.h.Observe(Observation{
			Name:  vitals.INP,
			Value: e.ProcessingEnd - e.StartTime,
			Aux:   &vitals.Auxiliary{EventType: e.Name},
		})
	}
}

func (r *Registry) onLayoutShift(batch []Entry) {
	if !r.active() {
		return
	}
	for _, e := range batch {
		r.h.Shift(cls.ShiftEntry{
			StartTime:      e.StartTime,
			Value:          e.Value,
			HadRecentInput: e.HadRecentInput,
			AffectedNodes:  e.Sources,
		})
	}
}

// onPaint records FCP from the first first-contentful-paint entry.
func (r *Registry) onPaint(batch []Entry) {
	for _, e := range batch {
		if e.Name != firstContentfulPaint {
			continue
		}
		r.mu.Lock()
		if r.fcpSeen || r.closed {
			r.mu.Unlock()
			return
		}
		r.fcpSeen = true
		r.mu.Unlock()

		r.h.Observe(Observation{Name: vitals.FCP, Value: e.StartTime})
		return
	}
}
