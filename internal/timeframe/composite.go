package timeframe

import (
	"fmt"
	"strings"
	"time"
)

// Composite is the AND of at most one Window per Kind.
// The zero value has no enabled window and is always active.
type Composite struct {
	hour    Window
	weekday Window
	date    Window
	month   Window
}

// NewComposite builds and validates a composite frame.
// Passing two enabled windows of the same kind is an error.
func NewComposite(windows ...Window) (Composite, error) {
	var c Composite
	seen := map[Kind]bool{}
	for _, w := range windows {
		if !w.enabled {
			continue
		}
		if seen[w.kind] {
			return Composite{}, fmt.Errorf("%w: %s", ErrDuplicateKind, w.kind)
		}
		seen[w.kind] = true
		if err := w.Validate(); err != nil {
			return Composite{}, err
		}
		c.set(w)
	}
	if err := c.Validate(); err != nil {
		return Composite{}, err
	}
	return c, nil
}

func (c *Composite) set(w Window) {
	switch w.kind {
	case KindHour:
		c.hour = w
	case KindWeekday:
		c.weekday = w
	case KindDate:
		c.date = w
	case KindMonth:
		c.month = w
	}
}

func (c Composite) Hour() Window    { return c.hour }
func (c Composite) Weekday() Window { return c.weekday }
func (c Composite) Date() Window    { return c.date }
func (c Composite) Month() Window   { return c.month }

// Windows returns the enabled windows, coarsest first.
func (c Composite) Windows() []Window {
	out := make([]Window, 0, 4)
	for _, w := range []Window{c.month, c.date, c.weekday, c.hour} {
		if w.enabled {
			out = append(out, w)
		}
	}
	return out
}

// AlwaysActive reports whether the composite can never be inactive: it is
// empty, or every enabled window covers its whole domain. Such a frame has
// no transitions to schedule.
func (c Composite) AlwaysActive() bool {
	for _, w := range c.Windows() {
		if !w.Full() {
			return false
		}
	}
	return true
}

// Validate rejects out-of-range ordinals and date/month combinations that
// can never occur (e.g. the 30th..31st of February).
func (c Composite) Validate() error {
	for _, w := range []Window{c.hour, c.weekday, c.date, c.month} {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	if c.date.enabled && c.month.enabled && !c.dateFitsMonth() {
		return fmt.Errorf("%w: %s never falls inside %s", ErrContradictory, c.date, c.month)
	}
	return nil
}

func (c Composite) dateFitsMonth() bool {
	for m := 1; m <= 12; m++ {
		if !c.month.containsOrdinal(m) {
			continue
		}
		for d := 1; d <= maxDaysIn(time.Month(m)); d++ {
			if c.date.containsOrdinal(d) {
				return true
			}
		}
	}
	return false
}

// IsActive reports whether every enabled window contains t.
func (c Composite) IsActive(t time.Time) bool {
	return c.dayMatches(t) && c.hour.Contains(t)
}

func (c Composite) dayMatches(t time.Time) bool {
	return c.month.Contains(t) && c.date.Contains(t) && c.weekday.Contains(t)
}

func (c Composite) String() string {
	ws := c.Windows()
	if len(ws) == 0 {
		return "always"
	}
	parts := make([]string, 0, len(ws))
	for _, w := range ws {
		parts = append(parts, w.String())
	}
	return strings.Join(parts, " & ")
}

// maxDaysIn counts Feb as 29 days: the combination is possible in leap years.
func maxDaysIn(m time.Month) int {
	switch m {
	case time.February:
		return 29
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}
