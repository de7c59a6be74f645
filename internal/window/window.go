package window

import (
	"errors"
	"fmt"
	"time"
)

// MillisPerDay is the length of one day in epoch milliseconds
const MillisPerDay int64 = 86_400_000

// DefaultDaysBack is used when no look-back is configured
const DefaultDaysBack = 7

var (
	ErrInvalidDaysBack = errors.New("window: days back must be positive")
)

// Window is a half-open interval [Start, End) of epoch milliseconds
type Window struct {
	Start int64
	End   int64
}

// Select computes the window ending at now and reaching daysBack days into the past.
// It must be called once per reconciliation pass; the result is not persisted.
func Select(now time.Time, daysBack int) (Window, error) {
	if daysBack <= 0 {
		return Window{}, fmt.Errorf("%w: got %d", ErrInvalidDaysBack, daysBack)
	}

	end := now.UnixMilli()
	return Window{
		Start: end - int64(daysBack)*MillisPerDay,
		End:   end,
	}, nil
}

// Contains reports whether ts falls inside the window.
// Start is inclusive, End is exclusive.
func (w Window) Contains(ts int64) bool {
	return ts >= w.Start && ts < w.End
}

// IsZero reports whether the window was never set
func (w Window) IsZero() bool {
	return w.Start == 0 && w.End == 0
}

// StartTime returns Start as a UTC time
func (w Window) StartTime() time.Time {
	return time.UnixMilli(w.Start).UTC()
}

// EndTime returns End as a UTC time
func (w Window) EndTime() time.Time {
	return time.UnixMilli(w.End).UTC()
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)",
		w.StartTime().Format(time.RFC3339),
		w.EndTime().Format(time.RFC3339))
}
