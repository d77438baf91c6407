package reporter

import (
	"math"

	"github.com/obsidianstack/vitals/internal/vitals"
)

// Event is one analytics dispatch.
type Event struct {
	Name vitals.Name

	// Value is the rounded measurement. CLS is scaled by 1000 first so the
	// integer keeps three decimals of precision.
	Value int64

	Rating vitals.Rating
}

// Analytics is the sink a Reporter tracks events on.
type Analytics interface {
	Track(Event)
}

// Multi fans every event out to each sink in order.
type Multi []Analytics

// Track implements Analytics.
func (m Multi) Track(e Event) {
	for _, a := range m {
		a.Track(e)
	}
}

// Round converts a measurement into the integer value analytics events carry.
func Round(name vitals.Name, value float64) int64 {
	if name == vitals.CLS {
		value *= 1000
	}
	return int64(math.Round(value))
}
