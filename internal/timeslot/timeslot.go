package timeslot

import (
	"errors"
	"fmt"
	"time"
)

const labelLayout = "15:04"

// Generator produces the bookable slot labels of a clinic day.
// The window is end-exclusive: 09:00-17:00 at 30m yields 09:00 ... 16:30.
type Generator struct {
	Open     string
	Close    string
	Interval time.Duration
	Location *time.Location

	open  time.Duration
	close time.Duration
}

// New validates the window and returns a ready generator.
func New(open, close string, interval time.Duration, loc *time.Location) (Generator, error) {
	if interval <= 0 {
		return Generator{}, errors.New("timeslot: interval must be positive")
	}
	o, err := offset(open)
	if err != nil {
		return Generator{}, fmt.Errorf("timeslot: open: %w", err)
	}
	c, err := offset(close)
	if err != nil {
		return Generator{}, fmt.Errorf("timeslot: close: %w", err)
	}
	if c <= o {
		return Generator{}, fmt.Errorf("timeslot: close %s must be after open %s", close, open)
	}
	if loc == nil {
		loc = time.UTC
	}
	return Generator{
		Open:     open,
		Close:    close,
		Interval: interval,
		Location: loc,
		open:     o,
		close:    c,
	}, nil
}

// Default is the 09:00-17:00 clinic day in 30 minute slots, UTC.
func Default() Generator {
	g, err := New("09:00", "17:00", 30*time.Minute, time.UTC)
	if err != nil {
		panic(err)
	}
	return g
}

// Slots returns the ordered slot labels. The slice is freshly allocated.
func (g Generator) Slots() []string {
	var out []string
	for at := g.open; at+g.Interval <= g.close; at += g.Interval {
		out = append(out, label(at))
	}
	return out
}

// Contains reports whether label is one of the generated slots.
func (g Generator) Contains(l string) bool {
	at, err := offset(l)
	if err != nil || label(at) != l {
		return false
	}
	if at < g.open || at+g.Interval > g.close {
		return false
	}
	return (at-g.open)%g.Interval == 0
}

// StartOf is the instant the slot begins on the given civil date, in the
// generator's location.
func (g Generator) StartOf(date time.Time, l string) (time.Time, error) {
	if !g.Contains(l) {
		return time.Time{}, fmt.Errorf("timeslot: %q is not a bookable slot", l)
	}
	at, _ := offset(l)
	y, m, d := date.Date()
	return time.Date(y, m, d, int(at/time.Hour), int(at%time.Hour/time.Minute), 0, 0, g.Location), nil
}

// Date normalizes t to its civil date at midnight UTC, the form dates are
// stored and compared in.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func offset(l string) (time.Duration, error) {
	t, err := time.Parse(labelLayout, l)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func label(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
