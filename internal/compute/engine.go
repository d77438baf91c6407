package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/vitals/internal/cls"
	"github.com/obsidianstack/vitals/internal/config"
	"github.com/obsidianstack/vitals/internal/observer"
	"github.com/obsidianstack/vitals/internal/vitals"
)

// ErrUnsupported is returned by New when the source has no observer API.
var ErrUnsupported = errors.New("compute: performance observer API unavailable")

// Reporter receives every metric update after it is recorded.
type Reporter interface {
	Report(name vitals.Name, value float64)
}

// Snapshot is a consistent read of one engine, taken under a single lock.
type Snapshot struct {
	ID              string                        `json:"id"`
	Metrics         map[vitals.Name]vitals.Metric `json:"metrics"`
	Score           PerformanceScore              `json:"score"`
	Recommendations []string                      `json:"recommendations"`
	TakenAt         time.Time                     `json:"taken_at"`
}

// Engine measures one page view. It owns the metrics map and the CLS session
// state, subscribes to its Source through an observer.Registry, and forwards
// each update to its Reporter.
//
// All exported methods are safe for concurrent use. Reads never wait on I/O.
type Engine struct {
	id  string
	cfg config.EngineConfig
	now func() time.Time
	rep Reporter
	reg *observer.Registry

	mu      sync.Mutex
	metrics map[vitals.Name]vitals.Metric
	shifts  *cls.Aggregator
	closed  bool
	done    chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for Metric.CapturedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithReporter sets where metric updates are dispatched.
func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.rep = r }
}

// WithID sets the engine id. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(e *Engine) { e.id = id }
}

// WithAggregator replaces the CLS session aggregator.
func WithAggregator(a *cls.Aggregator) Option {
	return func(e *Engine) { e.shifts = a }
}

// New builds an Engine on src and starts observing. It returns ErrUnsupported
// when src is nil or reports no observer support at all. Individual metric
// streams that fail to subscribe are logged and skipped.
func New(src observer.Source, cfg config.EngineConfig, opts ...Option) (*Engine, error) {
	if src == nil || !src.Supported() {
		return nil, ErrUnsupported
	}

	e := &Engine{
		cfg:     cfg,
		now:     time.Now,
		metrics: make(map[vitals.Name]vitals.Metric),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	if e.id == "" {
		e.id = uuid.NewString()
	}
	if e.shifts == nil {
		e.shifts = cls.New()
	}

	e.reg = observer.NewRegistry(src, (*recorder)(e))
	failed, err := e.reg.Start()
	if err != nil {
		return nil, fmt.Errorf("compute: start observers: %w", err)
	}
	if len(failed) > 0 {
		slog.Warn("compute: engine running with partial metric coverage",
			"engine", e.id, "unavailable", failed)
	}
	return e, nil
}

// ID returns the engine id.
func (e *Engine) ID() string {
	return e.id
}

// Metrics returns a copy of the current metrics. Metric values are never
// mutated after they are recorded, so the copy is safe to keep.
func (e *Engine) Metrics() map[vitals.Name]vitals.Metric {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyMetrics(e.metrics)
}

// PerformanceScore recomputes the score from the current metrics.
func (e *Engine) PerformanceScore() PerformanceScore {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Score(e.metrics)
}

// Recommendations returns the fixed advice for every metric rated poor.
func (e *Engine) Recommendations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Recommendations(e.metrics)
}

// CLSSession returns the open layout-shift session, if any.
func (e *Engine) CLSSession() (cls.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shifts.Current()
}

// Snapshot returns metrics, score and recommendations from one consistent read.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		ID:              e.id,
		Metrics:         copyMetrics(e.metrics),
		Score:           Score(e.metrics),
		Recommendations: Recommendations(e.metrics),
		TakenAt:         e.now(),
	}
}

// Done is closed when the engine is closed.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Close disconnects every observer and stops every Poll loop. Metrics remain
// readable. Safe to call more than once.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.done)
	e.mu.Unlock()

	e.reg.Close()
}

// Poll calls fn with a fresh Snapshot immediately and then every interval,
// until ctx is cancelled or the engine is closed. interval <= 0 uses the
// engine's configured poll interval.
func Poll(ctx context.Context, e *Engine, interval time.Duration, fn func(Snapshot)) {
	if interval <= 0 {
		interval = e.cfg.PollInterval
	}
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(e.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			fn(e.Snapshot())
		}
	}
}

// record stores an observation and reports it. INP keeps the slowest
// interaction seen so far.
func (e *Engine) record(o observer.Observation) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if prev, ok := e.metrics[o.Name]; ok && o.Name == vitals.INP && o.Value <= prev.Value {
		e.mu.Unlock()
		return
	}
	e.metrics[o.Name] = vitals.Metric{
		Name:       o.Name,
		Value:      o.Value,
		Rating:     vitals.Rate(o.Name, o.Value),
		CapturedAt: e.now(),
		Aux:        o.Aux,
	}
	e.mu.Unlock()

	e.report(o.Name, o.Value)
}

// shift feeds one layout shift into the session aggregator and publishes CLS
// when the running maximum grows.
func (e *Engine) shift(s cls.ShiftEntry) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	v, changed := e.shifts.Add(s)
	if !changed {
		e.mu.Unlock()
		return
	}
	var aux *vitals.Auxiliary
	if nodes := e.shifts.Nodes(); len(nodes) > 0 {
		aux = &vitals.Auxiliary{Sources: nodes}
	}
	e.metrics[vitals.CLS] = vitals.Metric{
		Name:       vitals.CLS,
		Value:      v,
		Rating:     vitals.Rate(vitals.CLS, v),
		CapturedAt: e.now(),
		Aux:        aux,
	}
	e.mu.Unlock()

	e.report(vitals.CLS, v)
}

func (e *Engine) report(name vitals.Name, v float64) {
	if e.rep != nil {
		e.rep.Report(name, v)
	}
}

// recorder adapts Engine to observer.Handler without exporting the methods.
type recorder Engine

func (r *recorder) Observe(o observer.Observation) { (*Engine)(r).record(o) }
func (r *recorder) Shift(s cls.ShiftEntry)         { (*Engine)(r).shift(s) }

func copyMetrics(m map[vitals.Name]vitals.Metric) map[vitals.Name]vitals.Metric {
	out := make(map[vitals.Name]vitals.Metric, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
