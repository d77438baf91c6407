package observer

import (
	"errors"

	"github.com/obsidianstack/vitals/internal/cls"
	"github.com/obsidianstack/vitals/internal/vitals"
)

// Performance entry types, as named by the browser's PerformanceObserver.
const (
	TypeLargestContentfulPaint = "largest-contentful-paint"
	TypeFirstInput             = "first-input"
	TypeEvent                  = "event"
	TypeLayoutShift            = "layout-shift"
	TypePaint                  = "paint"
	TypeNavigation             = "navigation"
)

// EntryTypes lists every observable entry type the registry subscribes to.
var EntryTypes = []string{
	TypeLargestContentfulPaint,
	TypeFirstInput,
	TypeEvent,
	TypeLayoutShift,
	TypePaint,
}

// ErrUnsupportedEntryType is returned by Source.Observe when the source
// cannot deliver the requested entry type.
var ErrUnsupportedEntryType = errors.New("observer: unsupported entry type")

// Entry is the union of the performance entry fields the registry reads.
// JSON names follow the browser's PerformanceEntry.toJSON() output so beacon
// payloads can be decoded directly.
type Entry struct {
	Name      string  `json:"name"`
	EntryType string  `json:"entryType"`
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`

	// first-input and event entries.
	ProcessingStart float64 `json:"processingStart"`
	ProcessingEnd   float64 `json:"processingEnd"`
	InteractionID   uint64  `json:"interactionId"`

	// layout-shift entries.
	Value          float64  `json:"value"`
	HadRecentInput bool     `json:"hadRecentInput"`
	Sources        []string `json:"sources,omitempty"`

	// largest-contentful-paint entries: tag name of the element, with #id
	// when the element has one.
	Element string `json:"element,omitempty"`
}

// NavigationTiming holds the two navigation-entry fields TTFB needs.
type NavigationTiming struct {
	RequestStart  float64 `json:"requestStart"`
	ResponseStart float64 `json:"responseStart"`
}

// Unsubscribe stops one subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Source delivers performance entries. It is the seam between the engine and
// whatever produces entries: a browser PerformanceObserver, an HTTP beacon
// feed, or a test.
type Source interface {
	// Supported reports whether the source can observe anything at all.
	Supported() bool

	// Observe subscribes fn to batches of entries of the given type. Batches
	// are delivered in order. It returns ErrUnsupportedEntryType when the type
	// cannot be observed.
	Observe(entryType string, fn func([]Entry)) (Unsubscribe, error)

	// Navigation returns the navigation timing entry if one is available.
	Navigation() (NavigationTiming, bool)
}

// Observation is one normalized measurement produced by the registry.
type Observation struct {
	Name  vitals.Name
	Value float64
	Aux   *vitals.Auxiliary
}

// Handler receives normalized output from the registry. Layout shifts are
// passed through raw so the handler's session aggregator can window them.
type Handler interface {
	Observe(Observation)
	Shift(cls.ShiftEntry)
}
