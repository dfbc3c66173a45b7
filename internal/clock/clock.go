package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so rotation windows and achievement rules can be tested.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// New returns the process clock in UTC.
func New() Clock {
	return systemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(New),
)

// StartOfDay truncates t to 00:00 UTC of the same day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextBoundary returns the first 00:00 UTC strictly after t.
func NextBoundary(t time.Time) time.Time {
	return StartOfDay(t).Add(24 * time.Hour)
}
