package plan

import "time"

// Limits applied by Normalize.
const (
	DefaultMaxItems   = 30
	HardMaxItems      = 60
	MaxTitleLen       = 120
	MaxLocationLen    = 300
	MaxBodyLen        = 8000
	MaxMemoLen        = 800
	MaxReasoningLen   = 800
	MaxAssistantMemo  = 1200
	DefaultConfidence = 0.6
	untitled          = "Untitled item"
)

// Options configures normalization.
type Options struct {
	// MaxItems caps the item list; values outside [1, HardMaxItems] are
	// clamped.
	MaxItems int

	// Location interprets instants that carry no zone.
	Location *time.Location

	// DeadlineHour and DeadlineMinute place date-only deadlines.
	DeadlineHour   int
	DeadlineMinute int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxItems:       DefaultMaxItems,
		Location:       time.Local,
		DeadlineHour:   17,
		DeadlineMinute: 0,
	}
}

func (o Options) maxItems() int {
	switch {
	case o.MaxItems <= 0:
		return DefaultMaxItems
	case o.MaxItems > HardMaxItems:
		return HardMaxItems
	}
	return o.MaxItems
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}
