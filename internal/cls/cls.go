package cls

// Session window limits in milliseconds, matching DOMHighResTimeStamp units.
const (
	// MaxGapMs is the largest gap between consecutive shifts in one session.
	MaxGapMs = 1000.0

	// MaxWindowMs is the largest span from a session's first shift.
	MaxWindowMs = 5000.0
)

// ShiftEntry is one layout-shift observation.
type ShiftEntry struct {
	StartTime      float64
	Value          float64
	HadRecentInput bool
	AffectedNodes  []string
}

// Session is a burst of layout shifts close enough in time to count together.
type Session struct {
	FirstEntryTime  float64
	LastEntryTime   float64
	CumulativeValue float64
	Entries         []ShiftEntry
}

// Aggregator turns a stream of layout shifts into the CLS value: the largest
// session total seen so far. The value never decreases.
//
// Aggregator is not safe for concurrent use; the owning engine serializes calls.
type Aggregator struct {
	current *Session
	largest *Session
	max     float64
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Add folds e into the current session and reports the published CLS value
// together with whether this entry raised it.
//
// Entries with HadRecentInput are discarded without touching any state.
func (a *Aggregator) Add(e ShiftEntry) (float64, bool) {
	if e.HadRecentInput {
		return a.max, false
	}

	if a.extends(e) {
		a.current.CumulativeValue += e.Value
		a.current.LastEntryTime = e.StartTime
		a.current.Entries = append(a.current.Entries, e)
	} else {
		a.current = &Session{
			FirstEntryTime:  e.StartTime,
			LastEntryTime:   e.StartTime,
			CumulativeValue: e.Value,
			Entries:         []ShiftEntry{e},
		}
	}

	if a.current.CumulativeValue > a.max {
		a.max = a.current.CumulativeValue
		a.largest = a.current
		return a.max, true
	}
	return a.max, false
}

// extends reports whether e belongs to the current session.
func (a *Aggregator) extends(e ShiftEntry) bool {
	if a.current == nil {
		return false
	}
	return e.StartTime-a.current.LastEntryTime < MaxGapMs &&
		e.StartTime-a.current.FirstEntryTime < MaxWindowMs
}

// Value returns the published CLS value.
func (a *Aggregator) Value() float64 {
	return a.max
}

// Current returns a copy of the open session, if any.
func (a *Aggregator) Current() (Session, bool) {
	if a.current == nil {
		return Session{}, false
	}
	return copySession(a.current), true
}

// Largest returns a copy of the session that produced Value, if any.
func (a *Aggregator) Largest() (Session, bool) {
	if a.largest == nil {
		return Session{}, false
	}
	return copySession(a.largest), true
}

// Nodes returns the distinct affected nodes of the largest session, in
// first-seen order.
func (a *Aggregator) Nodes() []string {
	if a.largest == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, e := range a.largest.Entries {
		for _, n := range e.AffectedNodes {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

func copySession(s *Session) Session {
	cp := *s
	cp.Entries = append([]ShiftEntry(nil), s.Entries...)
	return cp
}
