package clock

import "time"

// Clock is the time source injected into services so tests can pin the
// current instant. Today returns the calendar date in the given location,
// which is what slot validation and reminder windows operate on.
type Clock interface {
	Now() time.Time
	Today(loc *time.Location) time.Time
}

type systemClock struct{}

func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Today(loc *time.Location) time.Time {
	y, m, d := time.Now().In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Fixed is a settable clock for tests.
type Fixed struct {
	Instant time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{Instant: t}
}

func (f *Fixed) Now() time.Time {
	return f.Instant
}

func (f *Fixed) Today(loc *time.Location) time.Time {
	y, m, d := f.Instant.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func (f *Fixed) Advance(d time.Duration) {
	f.Instant = f.Instant.Add(d)
}
