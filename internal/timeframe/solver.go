package timeframe

import "time"

// searchDays bounds every boundary search: one full year of the coarsest
// field plus enough slack for a weekday to line up after the year wraps.
const searchDays = 366 + 31

// NextActivation returns the first instant strictly after now at which the
// composite becomes active. When called while active, the current period is
// skipped and the start of the following one is returned.
//
// ok is false for a composite that is always active and when no activation exists within
// the search bound (rare weekday/date/month combinations); callers retry on a
// later evaluation.
func (c Composite) NextActivation(now time.Time) (time.Time, bool) {
	if c.AlwaysActive() {
		return time.Time{}, false
	}
	from := nextMinute(now)
	if c.IsActive(now) {
		off, ok := c.scan(from, false)
		if !ok {
			return time.Time{}, false
		}
		from = off
	}
	return c.scan(from, true)
}

// NextDeactivation returns the first excluded instant after the current
// active period: the minute right after the last included minute. When
// called while inactive, the next active period is used.
func (c Composite) NextDeactivation(now time.Time) (time.Time, bool) {
	if c.AlwaysActive() {
		return time.Time{}, false
	}
	from := nextMinute(now)
	if !c.IsActive(now) {
		on, ok := c.scan(from, true)
		if !ok {
			return time.Time{}, false
		}
		from = on
	}
	return c.scan(from, false)
}

// scan walks forward day by day from the minute-aligned instant from and
// returns the first minute whose activity equals want. Date-level windows
// (month, date, weekday) are resolved per day; the hour window is solved in
// closed form within a day.
func (c Composite) scan(from time.Time, want bool) (time.Time, bool) {
	loc := from.Location()
	y, m, d := from.Date()
	startMin := from.Hour()*60 + from.Minute()

	for i := 0; i < searchDays; i++ {
		day := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		dayOK := c.dayMatches(day)
		if !want && !dayOK {
			return atMinute(day, startMin), true
		}
		if dayOK {
			if t, ok := c.scanDay(day, startMin, want); ok {
				return t, true
			}
		}
		startMin = 0
	}
	return time.Time{}, false
}

// scanDay finds the first instant on day at or after minute from whose
// activity equals want. Wall-clock minutes skipped by a DST jump do not
// exist and are passed over.
func (c Composite) scanDay(day time.Time, from int, want bool) (time.Time, bool) {
	for from < minutesPerDay {
		minute, ok := c.firstHourMinute(from, want)
		if !ok {
			return time.Time{}, false
		}
		t := atMinute(day, minute)
		if t.Hour()*60+t.Minute() == minute && c.IsActive(t) == want {
			return t, true
		}
		from = minute + 1
	}
	return time.Time{}, false
}

// firstHourMinute returns the first minute of day >= from whose hour-window
// membership equals want.
func (c Composite) firstHourMinute(from int, want bool) (int, bool) {
	if from >= minutesPerDay {
		return 0, false
	}
	w := c.hour
	if !w.enabled {
		if want {
			return from, true
		}
		return 0, false
	}
	s, e := w.start, w.end
	if want {
		if s <= e {
			if from > e {
				return 0, false
			}
			return max(from, s), true
		}
		// wrapped: active on [0,e] and [s,1439]
		if from <= e {
			return from, true
		}
		return max(from, s), true
	}
	if s <= e {
		switch {
		case from < s:
			return from, true
		case from <= e:
			if e+1 < minutesPerDay {
				return e + 1, true
			}
			return 0, false
		default:
			return from, true
		}
	}
	// wrapped: inactive on [e+1, s-1], which is empty when the window covers the day
	if e+1 >= s {
		return 0, false
	}
	switch {
	case from <= e:
		return e + 1, true
	case from < s:
		return from, true
	default:
		return 0, false
	}
}

func nextMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute).Add(time.Minute)
}

func atMinute(day time.Time, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, minute/60, minute%60, 0, 0, day.Location())
}
