package ingest

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInterval is returned by NewWindow for a non-positive interval.
var ErrInvalidInterval = errors.New("poll interval must be positive")

// Window is the [Start, End) range a cycle covers. End is the evaluation time.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the window ending at now and spanning interval.
func NewWindow(now time.Time, interval time.Duration) (Window, error) {
	if interval <= 0 {
		return Window{}, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	now = now.UTC()
	return Window{Start: now.Add(-interval), End: now}, nil
}

// Admits reports whether a video published at t passes the boundary filter.
// Only the lower bound is enforced; upstream is only ever told the start.
func (w Window) Admits(t time.Time) bool {
	return !t.Before(w.Start)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}
