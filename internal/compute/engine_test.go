package compute

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/obsidianstack/vitals/internal/config"
	"github.com/obsidianstack/vitals/internal/observer"
	"github.com/obsidianstack/vitals/internal/vitals"
)

// baseTime is a fixed reference point so all test timings are deterministic.
var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type report struct {
	name  vitals.Name
	value float64
}

// fakeReporter records every Report call.
type fakeReporter struct {
	mu      sync.Mutex
	reports []report
}

func (f *fakeReporter) Report(name vitals.Name, value float64) {
	f.mu.Lock()
	f.reports = append(f.reports, report{name, value})
	f.mu.Unlock()
}

func (f *fakeReporter) count(name vitals.Name) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.reports {
		if r.name == name {
			n++
		}
	}
	return n
}

func newEngine(t *testing.T, feed *observer.Feed) (*Engine, *fakeReporter) {
	t.Helper()
	rep := &fakeReporter{}
	e, err := New(feed, config.EngineConfig{PollInterval: time.Second},
		WithReporter(rep),
		WithClock(func() time.Time { return baseTime }),
		WithID("page-1"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e, rep
}

func TestNew_Unsupported(t *testing.T) {
	if _, err := New(nil, config.EngineConfig{}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("New(nil) err = %v, want ErrUnsupported", err)
	}
	if _, err := New(observer.Unsupported(), config.EngineConfig{}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("New(unsupported) err = %v, want ErrUnsupported", err)
	}
}

func TestNew_DefaultID(t *testing.T) {
	e, err := New(observer.NewFeed(), config.EngineConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if len(e.ID()) != 36 {
		t.Errorf("ID = %q, want a UUID", e.ID())
	}
}

func TestEngine_LCPMostRecentBatchWins(t *testing.T) {
	feed := observer.NewFeed()
	e, rep := newEngine(t, feed)

	for _, v := range []float64{1200, 2600, 1900} {
		feed.Deliver(observer.TypeLargestContentfulPaint, []observer.Entry{{StartTime: v}})
	}

	m := e.Metrics()[vitals.LCP]
	if m.Value != 1900 {
		t.Errorf("LCP = %v, want 1900", m.Value)
	}
	if m.Rating != vitals.RatingGood {
		t.Errorf("LCP rating = %q, want good", m.Rating)
	}
	if m.CapturedAt != baseTime {
		t.Errorf("CapturedAt = %v, want injected clock", m.CapturedAt)
	}
	if rep.count(vitals.LCP) != 3 {
		t.Errorf("LCP reports = %d, want 3", rep.count(vitals.LCP))
	}
}

func TestEngine_CLSSessionWindowing(t *testing.T) {
	feed := observer.NewFeed()
	e, rep := newEngine(t, feed)

	feed.Deliver(observer.TypeLayoutShift, []observer.Entry{
		{StartTime: 0, Value: 0.05, Sources: []string{"DIV#banner"}},
		{StartTime: 500, Value: 0.05},
	})
	feed.Deliver(observer.TypeLayoutShift, []observer.Entry{
		{StartTime: 2000, Value: 0.2, Sources: []string{"IMG"}},
	})

	m := e.Metrics()[vitals.CLS]
	if math.Abs(m.Value-0.2) > 1e-9 {
		t.Errorf("CLS = %v, want 0.2", m.Value)
	}
	if m.Rating != vitals.RatingNeedsImprovement {
		t.Errorf("CLS rating = %q", m.Rating)
	}
	if m.Aux == nil || len(m.Aux.Sources) != 1 || m.Aux.Sources[0] != "IMG" {
		t.Errorf("CLS sources = %+v, want [IMG]", m.Aux)
	}
	// Published at 0.05, 0.10 and 0.2.
	if rep.count(vitals.CLS) != 3 {
		t.Errorf("CLS reports = %d, want 3", rep.count(vitals.CLS))
	}

	sess, ok := e.CLSSession()
	if !ok || sess.FirstEntryTime != 2000 {
		t.Errorf("current session = %+v", sess)
	}
}

func TestEngine_CLSRecentInputIgnored(t *testing.T) {
	feed := observer.NewFeed()
	e, rep := newEngine(t, feed)

	feed.Deliver(observer.TypeLayoutShift, []observer.Entry{{StartTime: 0, Value: 0.02}})
	feed.Deliver(observer.TypeLayoutShift, []observer.Entry{{StartTime: 100, Value: 0.9, HadRecentInput: true}})

	if got := e.Metrics()[vitals.CLS].Value; got != 0.02 {
		t.Errorf("CLS = %v, want 0.02", got)
	}
	if rep.count(vitals.CLS) != 1 {
		t.Errorf("CLS reports = %d, want 1", rep.count(vitals.CLS))
	}
}

func TestEngine_INPKeepsWorst(t *testing.T) {
	feed := observer.NewFeed()
	e, _ := newEngine(t, feed)

	feed.Deliver(observer.TypeEvent, []observer.Entry{
		{Name: "click", StartTime: 0, ProcessingEnd: 120, InteractionID: 1},
		{Name: "keydown", StartTime: 1000, ProcessingEnd: 1350, InteractionID: 2},
		{Name: "click", StartTime: 2000, ProcessingEnd: 2080, InteractionID: 3},
	})

	m := e.Metrics()[vitals.INP]
	if m.Value != 350 || m.Aux.EventType != "keydown" {
		t.Errorf("INP = %+v, want 350 from keydown", m)
	}
}

func TestEngine_TTFBAtStart(t *testing.T) {
	feed := observer.NewFeed()
	feed.SetNavigation(observer.NavigationTiming{RequestStart: 5, ResponseStart: 905})
	e, _ := newEngine(t, feed)

	m, ok := e.Metrics()[vitals.TTFB]
	if !ok || m.Value != 900 || m.Rating != vitals.RatingNeedsImprovement {
		t.Errorf("TTFB = %+v, want 900 needs-improvement", m)
	}
}

func TestEngine_MetricsSnapshotsStable(t *testing.T) {
	feed := observer.NewFeed()
	e, _ := newEngine(t, feed)
	feed.Deliver(observer.TypePaint, []observer.Entry{{Name: "first-contentful-paint", StartTime: 700}})
	feed.Deliver(observer.TypeFirstInput, []observer.Entry{{Name: "click", StartTime: 10, ProcessingStart: 30}})

	a := e.Metrics()
	b := e.Metrics()
	if !reflect.DeepEqual(a, b) {
		t.Errorf("snapshots differ:\n%+v\n%+v", a, b)
	}

	// Mutating the copy does not leak back.
	delete(a, vitals.FCP)
	if _, ok := e.Metrics()[vitals.FCP]; !ok {
		t.Error("Metrics() returned the live map")
	}
}

func TestEngine_ScoreAndRecommendations(t *testing.T) {
	feed := observer.NewFeed()
	e, _ := newEngine(t, feed)

	if s := e.PerformanceScore(); s.Overall != 0 || len(s.PerMetric) != 0 {
		t.Errorf("empty score = %+v", s)
	}

	feed.Deliver(observer.TypeLargestContentfulPaint, []observer.Entry{{StartTime: 1000}})
	if s := e.PerformanceScore(); s.Overall != 100 {
		t.Errorf("one good metric: Overall = %d, want 100", s.Overall)
	}

	feed.Deliver(observer.TypeLayoutShift, []observer.Entry{{StartTime: 0, Value: 0.6}})
	if s := e.PerformanceScore(); s.Overall != 50 {
		t.Errorf("good + poor: Overall = %d, want 50", s.Overall)
	}

	recs := e.Recommendations()
	if len(recs) != 1 || recs[0] != recommendations[vitals.CLS] {
		t.Errorf("Recommendations = %v", recs)
	}
}

func TestEngine_PartialSupport(t *testing.T) {
	feed := observer.NewFeed(observer.TypeLargestContentfulPaint, observer.TypePaint)
	e, _ := newEngine(t, feed)

	feed.Deliver(observer.TypeLargestContentfulPaint, []observer.Entry{{StartTime: 3000}})
	if got := e.Metrics()[vitals.LCP].Value; got != 3000 {
		t.Errorf("LCP = %v, want 3000", got)
	}
}

func TestEngine_CloseDisconnects(t *testing.T) {
	feed := observer.NewFeed()
	e, rep := newEngine(t, feed)

	e.Close()
	e.Close()

	if n := feed.Subscribers(); n != 0 {
		t.Errorf("subscribers after Close = %d", n)
	}
	feed.Deliver(observer.TypeLargestContentfulPaint, []observer.Entry{{StartTime: 1000}})
	if _, ok := e.Metrics()[vitals.LCP]; ok {
		t.Error("metric recorded after Close")
	}
	if rep.count(vitals.LCP) != 0 {
		t.Error("report sent after Close")
	}
	select {
	case <-e.Done():
	default:
		t.Error("Done not closed")
	}
}

func TestEngine_ConcurrentReadsAndWrites(t *testing.T) {
	feed := observer.NewFeed()
	e, _ := newEngine(t, feed)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				feed.Deliver(observer.TypeLayoutShift, []observer.Entry{{StartTime: float64(i*100000 + j*2000), Value: 0.01}})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = e.Snapshot()
			}
		}()
	}
	wg.Wait()

	if got := e.Metrics()[vitals.CLS].Value; got <= 0 {
		t.Errorf("CLS = %v after concurrent shifts", got)
	}
}

func TestPoll_StopsOnClose(t *testing.T) {
	feed := observer.NewFeed()
	e, _ := newEngine(t, feed)

	snaps := make(chan Snapshot, 16)
	done := make(chan struct{})
	go func() {
		Poll(context.Background(), e, 10*time.Millisecond, func(s Snapshot) {
			select {
			case snaps <- s:
			default:
			}
		})
		close(done)
	}()

	select {
	case s := <-snaps:
		if s.ID != "page-1" {
			t.Errorf("snapshot id = %q", s.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	e.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Poll did not stop after Close")
	}
}

func TestPoll_StopsOnCancel(t *testing.T) {
	e, _ := newEngine(t, observer.NewFeed())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var calls int
	go func() {
		Poll(ctx, e, time.Hour, func(Snapshot) { calls++ })
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Poll did not stop after cancel")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want the immediate snapshot only", calls)
	}
}
