package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/vitals/internal/compute"
	"github.com/obsidianstack/vitals/internal/observer"
)

// Page is one live page view: its engine, the feed beacons are delivered to,
// and when it was last heard from.
type Page struct {
	ID        string
	URL       string
	Engine    *compute.Engine
	Feed      *observer.Feed
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory page store, keyed by page id.
// A background goroutine (Run) periodically evicts pages that have not
// received a beacon within the configured TTL. Every page leaving the store
// has its engine closed, so no observer registration outlives its page.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Page
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Page),
		ttl:  ttl,
		now:  time.Now,
	}
}

// SetTTL changes the TTL used by later List and Evict calls.
func (s *Store) SetTTL(ttl time.Duration) {
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
}

// TTL returns the current idle timeout.
func (s *Store) TTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttl
}

// GetOrCreate returns the page for id, calling create to build it when it
// does not exist yet. create runs under the store lock, so concurrent beacons
// for a new page build exactly one engine. The page's UpdatedAt is refreshed
// either way.
func (s *Store) GetOrCreate(id string, create func() (*Page, error)) (Page, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if p, ok := s.data[id]; ok {
		p.UpdatedAt = now
		return *p, false, nil
	}

	p, err := create()
	if err != nil {
		return Page{}, false, err
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	s.data[id] = p
	return *p, true, nil
}

// Get returns a copy of the page with the given id. The page may be stale if
// the TTL has elapsed but Evict has not yet run.
func (s *Store) Get(id string) (Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data[id]
	if !ok {
		return Page{}, false
	}
	return *p, true
}

// List returns copies of every page updated within the TTL, ordered by id.
func (s *Store) List() []Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Page, 0, len(s.data))
	for _, p := range s.data {
		if p.UpdatedAt.After(cutoff) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the total number of pages currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Delete removes the page and closes its engine. It reports whether the page
// existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	p, ok := s.data[id]
	delete(s.data, id)
	s.mu.Unlock()

	if ok {
		closePage(p)
	}
	return ok
}

// Evict removes pages whose UpdatedAt is older than now minus TTL and closes
// their engines. It returns the number of pages removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	cutoff := now.Add(-s.ttl)
	var stale []*Page
	for id, p := range s.data {
		if !p.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			stale = append(stale, p)
		}
	}
	s.mu.Unlock()

	for _, p := range stale {
		closePage(p)
	}
	return len(stale)
}

// CloseAll removes every page and closes its engine.
func (s *Store) CloseAll() {
	s.mu.Lock()
	pages := s.data
	s.data = make(map[string]*Page)
	s.mu.Unlock()

	for _, p := range pages {
		closePage(p)
	}
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second). Run blocks until ctx is cancelled, then closes every
// remaining page.
func (s *Store) Run(ctx context.Context) {
	s.mu.RLock()
	interval := s.ttl / 2
	s.mu.RUnlock()
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.CloseAll()
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted idle pages", "count", n)
			}
		}
	}
}

func closePage(p *Page) {
	if p.Engine != nil {
		p.Engine.Close()
	}
}
