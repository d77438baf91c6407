package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/obsidianstack/vitals/internal/compute"
	"github.com/obsidianstack/vitals/internal/config"
	"github.com/obsidianstack/vitals/internal/observer"
)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func newPage(t *testing.T) func() (*Page, error) {
	return func() (*Page, error) {
		feed := observer.NewFeed()
		e, err := compute.New(feed, config.EngineConfig{})
		if err != nil {
			t.Fatalf("compute.New: %v", err)
		}
		return &Page{URL: "https://example.com/", Engine: e, Feed: feed}, nil
	}
}

func isClosed(e *compute.Engine) bool {
	select {
	case <-e.Done():
		return true
	default:
		return false
	}
}

func TestGetOrCreate(t *testing.T) {
	st := New(5 * time.Minute)
	defer st.CloseAll()

	p, created, err := st.GetOrCreate("p1", newPage(t))
	if err != nil || !created {
		t.Fatalf("first GetOrCreate: created=%v err=%v", created, err)
	}
	if p.ID != "p1" || p.Engine == nil {
		t.Errorf("page = %+v", p)
	}

	again, created, _ := st.GetOrCreate("p1", func() (*Page, error) {
		t.Fatal("create called for existing page")
		return nil, nil
	})
	if created || again.Engine != p.Engine {
		t.Error("second GetOrCreate built a new page")
	}
}

func TestGetOrCreate_Error(t *testing.T) {
	st := New(time.Minute)
	boom := errors.New("boom")
	if _, _, err := st.GetOrCreate("p1", func() (*Page, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if st.Count() != 0 {
		t.Error("failed create stored a page")
	}
}

func TestGetOrCreate_ConcurrentSingleEngine(t *testing.T) {
	st := New(time.Minute)
	defer st.CloseAll()

	var mu sync.Mutex
	calls := 0
	create := newPage(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.GetOrCreate("same", func() (*Page, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				return create()
			})
		}()
	}
	wg.Wait()
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
}

func TestGet_Missing(t *testing.T) {
	st := New(5 * time.Minute)
	if _, ok := st.Get("unknown"); ok {
		t.Fatal("Get on empty store: expected false, got true")
	}
}

func TestList_ExcludesStale(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)
	defer st.CloseAll()

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.GetOrCreate("old", newPage(t))

	st.now = fixedClock(base)
	st.GetOrCreate("new", newPage(t))
	st.GetOrCreate("another", newPage(t))

	pages := st.List()
	if len(pages) != 2 {
		t.Fatalf("List: got %d pages, want 2", len(pages))
	}
	if pages[0].ID != "another" || pages[1].ID != "new" {
		t.Errorf("List order: got %s, %s", pages[0].ID, pages[1].ID)
	}
	if st.Count() != 3 {
		t.Errorf("Count: got %d, want 3 (stale included)", st.Count())
	}
}

func TestEvict_ClosesEngines(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)
	defer st.CloseAll()

	st.now = fixedClock(base.Add(-10 * time.Minute))
	old, _, _ := st.GetOrCreate("old", newPage(t))
	st.now = fixedClock(base)
	live, _, _ := st.GetOrCreate("live", newPage(t))

	if n := st.Evict(base); n != 1 {
		t.Fatalf("Evict: removed %d, want 1", n)
	}
	if !isClosed(old.Engine) {
		t.Error("evicted page engine not closed")
	}
	if old.Feed.Subscribers() != 0 {
		t.Error("evicted page still has observer subscriptions")
	}
	if isClosed(live.Engine) {
		t.Error("live page engine closed")
	}
}

func TestGetOrCreate_TouchKeepsAlive(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)
	defer st.CloseAll()

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.GetOrCreate("p", newPage(t))
	st.now = fixedClock(base)
	st.GetOrCreate("p", newPage(t))

	if n := st.Evict(base); n != 0 {
		t.Errorf("recently touched page evicted")
	}
}

func TestDelete(t *testing.T) {
	st := New(time.Minute)
	p, _, _ := st.GetOrCreate("p", newPage(t))

	if !st.Delete("p") {
		t.Fatal("Delete: page not found")
	}
	if !isClosed(p.Engine) {
		t.Error("deleted page engine not closed")
	}
	if st.Delete("p") {
		t.Error("second Delete reported success")
	}
}

func TestRun_ClosesOnCancel(t *testing.T) {
	st := New(time.Hour)
	p, _, _ := st.GetOrCreate("p", newPage(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		st.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !isClosed(p.Engine) || st.Count() != 0 {
		t.Error("Run did not close remaining pages")
	}
}

func TestSetTTL(t *testing.T) {
	base := time.Now()
	st := New(time.Hour)
	defer st.CloseAll()

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.GetOrCreate("p", newPage(t))

	st.SetTTL(5 * time.Minute)
	if st.TTL() != 5*time.Minute {
		t.Errorf("TTL: got %v, want 5m", st.TTL())
	}
	if n := st.Evict(base); n != 1 {
		t.Errorf("Evict after shorter TTL: removed %d, want 1", n)
	}
}
