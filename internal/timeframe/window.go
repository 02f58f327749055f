package timeframe

import (
	"fmt"
	"time"
)

// Kind identifies the calendar field a Window constrains.
type Kind int

const (
	KindHour Kind = iota
	KindWeekday
	KindDate
	KindMonth
)

const minutesPerDay = 24 * 60

func (k Kind) String() string {
	switch k {
	case KindHour:
		return "hour"
	case KindWeekday:
		return "weekday"
	case KindDate:
		return "date"
	case KindMonth:
		return "month"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// bounds returns the inclusive ordinal domain of the kind.
func (k Kind) bounds() (lo, hi int) {
	switch k {
	case KindHour:
		return 0, minutesPerDay - 1
	case KindWeekday:
		return 1, 7
	case KindDate:
		return 1, 31
	case KindMonth:
		return 1, 12
	default:
		return 0, -1
	}
}

// Window is one cyclic range over a calendar field.
//
// Ordinals:
//   - hour: minute of day (hour*60+minute)
//   - weekday: 1..7, Sunday=1
//   - date: 1..31
//   - month: 1..12
//
// Start > End wraps the modulus. Both ends are inclusive; for the hour kind
// the end minute is included in full, so "until 06:00" covers 06:00:59.
// A disabled window contains every instant.
type Window struct {
	kind    Kind
	enabled bool
	start   int
	end     int
}

// HourRange bounds the minute of day. An out-of-range hour or minute yields
// a window that fails Validate.
func HourRange(startHour, startMinute, endHour, endMinute int) Window {
	return Window{kind: KindHour, enabled: true, start: clockMinute(startHour, startMinute), end: clockMinute(endHour, endMinute)}
}

// clockMinute returns -1 for anything that is not a wall-clock time.
func clockMinute(h, m int) int {
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return -1
	}
	return h*60 + m
}

func WeekdayRange(from, to time.Weekday) Window {
	return Window{kind: KindWeekday, enabled: true, start: weekdayOrdinal(from), end: weekdayOrdinal(to)}
}

func DateRange(from, to int) Window {
	return Window{kind: KindDate, enabled: true, start: from, end: to}
}

func MonthRange(from, to time.Month) Window {
	return Window{kind: KindMonth, enabled: true, start: int(from), end: int(to)}
}

// Disabled returns a window of the given kind that constrains nothing.
func Disabled(kind Kind) Window { return Window{kind: kind} }

func (w Window) Kind() Kind    { return w.kind }
func (w Window) Enabled() bool { return w.enabled }
func (w Window) Start() int    { return w.start }
func (w Window) End() int      { return w.end }
func (w Window) Wraps() bool   { return w.enabled && w.start > w.end }

// Full reports whether an enabled window contains its whole domain, such as
// months 1..12 or a wrapped hour range 06:00..05:59.
func (w Window) Full() bool {
	if !w.enabled {
		return false
	}
	lo, hi := w.kind.bounds()
	if w.start <= w.end {
		return w.start == lo && w.end == hi
	}
	return w.end+1 >= w.start
}

func (w Window) Validate() error {
	if !w.enabled {
		return nil
	}
	lo, hi := w.kind.bounds()
	if hi < lo {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidWindow, int(w.kind))
	}
	if w.kind == KindHour && (w.start < 0 || w.end < 0) {
		return fmt.Errorf("%w: hour outside 0..23 or minute outside 0..59", ErrInvalidWindow)
	}
	if w.start < lo || w.start > hi || w.end < lo || w.end > hi {
		return fmt.Errorf("%w: %s range %d..%d outside %d..%d", ErrInvalidWindow, w.kind, w.start, w.end, lo, hi)
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.enabled {
		return true
	}
	return w.containsOrdinal(w.project(t))
}

func (w Window) containsOrdinal(x int) bool {
	if w.start <= w.end {
		return w.start <= x && x <= w.end
	}
	return x >= w.start || x <= w.end
}

func (w Window) project(t time.Time) int {
	switch w.kind {
	case KindHour:
		return t.Hour()*60 + t.Minute()
	case KindWeekday:
		return weekdayOrdinal(t.Weekday())
	case KindDate:
		return t.Day()
	case KindMonth:
		return int(t.Month())
	default:
		return -1
	}
}

// NextBoundaryAfter returns the next instant after now at which Contains
// flips to wantInside, considering this window alone. ok is false when the
// window never flips (disabled, or covering its whole domain).
func (w Window) NextBoundaryAfter(now time.Time, wantInside bool) (time.Time, bool) {
	var c Composite
	c.set(w)
	if wantInside {
		return c.NextActivation(now)
	}
	return c.NextDeactivation(now)
}

func (w Window) String() string {
	if !w.enabled {
		return w.kind.String() + "(off)"
	}
	if w.kind == KindHour {
		return fmt.Sprintf("hour(%02d:%02d..%02d:%02d)", w.start/60, w.start%60, w.end/60, w.end%60)
	}
	return fmt.Sprintf("%s(%d..%d)", w.kind, w.start, w.end)
}

func weekdayOrdinal(d time.Weekday) int { return int(d) + 1 }
