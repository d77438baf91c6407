package observer

import (
	"sync"
)

// Feed is an in-process Source. Entries pushed with Deliver reach every
// current subscriber of that type synchronously, on the caller's goroutine.
// The collector feeds one Feed per page view from HTTP beacons.
//
// Feed is safe for concurrent use. Callbacks run outside Feed's lock.
type Feed struct {
	mu      sync.Mutex
	types   map[string]bool
	subs    map[string]map[int]func([]Entry)
	nextID  int
	nav     NavigationTiming
	hasNav  bool
	disable bool
}

// NewFeed returns a Feed that supports the given entry types. With no types
// it supports every entry type in EntryTypes.
func NewFeed(types ...string) *Feed {
	if len(types) == 0 {
		types = EntryTypes
	}
	f := &Feed{
		types: make(map[string]bool, len(types)),
		subs:  make(map[string]map[int]func([]Entry)),
	}
	for _, t := range types {
		f.types[t] = true
	}
	return f
}

// Unsupported returns a Feed whose Supported reports false, standing in for
// an environment without any observer API.
func Unsupported() *Feed {
	f := NewFeed()
	f.disable = true
	return f
}

// Supported implements Source.
func (f *Feed) Supported() bool {
	return !f.disable
}

// Observe implements Source.
func (f *Feed) Observe(entryType string, fn func([]Entry)) (Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.types[entryType] {
		return nil, ErrUnsupportedEntryType
	}
	if f.subs[entryType] == nil {
		f.subs[entryType] = make(map[int]func([]Entry))
	}
	id := f.nextID
	f.nextID++
	f.subs[entryType][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs[entryType], id)
			f.mu.Unlock()
		})
	}, nil
}

// Navigation implements Source.
func (f *Feed) Navigation() (NavigationTiming, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nav, f.hasNav
}

// SetNavigation records the navigation entry. It must be called before the
// registry starts for TTFB to be read.
func (f *Feed) SetNavigation(nav NavigationTiming) {
	f.mu.Lock()
	f.nav = nav
	f.hasNav = true
	f.mu.Unlock()
}

// Supports reports whether entryType is deliverable.
func (f *Feed) Supports(entryType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.types[entryType]
}

// Deliver hands batch to every subscriber of entryType and returns how many
// received it. Empty batches are dropped.
func (f *Feed) Deliver(entryType string, batch []Entry) int {
	if len(batch) == 0 {
		return 0
	}

	f.mu.Lock()
	fns := make([]func([]Entry), 0, len(f.subs[entryType]))
	for _, fn := range f.subs[entryType] {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(batch)
	}
	return len(fns)
}

// Subscribers returns the number of live subscriptions across all types.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.subs {
		n += len(m)
	}
	return n
}
