package timeframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowContainsOrdinal(t *testing.T) {
	for _, kind := range []Kind{KindWeekday, KindDate, KindMonth, KindHour} {
		lo, hi := kind.bounds()
		step := 1
		if kind == KindHour {
			step = 37
		}
		for s := lo; s <= hi; s += step {
			for e := lo; e <= hi; e += step {
				w := Window{kind: kind, enabled: true, start: s, end: e}
				for x := lo; x <= hi; x += step {
					want := s <= x && x <= e
					if s > e {
						want = x >= s || x <= e
					}
					require.Equalf(t, want, w.containsOrdinal(x), "%s start=%d end=%d x=%d", kind, s, e, x)
				}
			}
		}
	}
}

func TestWindowContains(t *testing.T) {
	at := func(s string) time.Time {
		tm, err := time.Parse("2006-01-02 15:04:05", s)
		require.NoError(t, err)
		return tm
	}
	tests := []struct {
		name string
		w    Window
		t    string
		want bool
	}{
		{"hour start inclusive", HourRange(9, 0, 17, 0), "2024-03-04 09:00:00", true},
		{"hour end minute inclusive", HourRange(9, 0, 17, 0), "2024-03-04 17:00:59", true},
		{"hour after end", HourRange(9, 0, 17, 0), "2024-03-04 17:01:00", false},
		{"hour before start", HourRange(9, 0, 17, 0), "2024-03-04 08:59:59", false},
		{"hour wrapped late", HourRange(22, 0, 6, 0), "2024-03-04 23:30:00", true},
		{"hour wrapped early", HourRange(22, 0, 6, 0), "2024-03-04 06:00:30", true},
		{"hour wrapped gap", HourRange(22, 0, 6, 0), "2024-03-04 12:00:00", false},
		{"weekday wrapped saturday", WeekdayRange(time.Friday, time.Monday), "2024-03-02 12:00:00", true},
		{"weekday wrapped wednesday", WeekdayRange(time.Friday, time.Monday), "2024-03-06 12:00:00", false},
		{"month wrapped january", MonthRange(time.November, time.February), "2024-01-15 00:00:00", true},
		{"month wrapped march", MonthRange(time.November, time.February), "2024-03-15 00:00:00", false},
		{"date range", DateRange(10, 20), "2024-03-20 23:59:00", true},
		{"disabled", Disabled(KindMonth), "2024-03-20 23:59:00", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.w.Contains(at(tt.t)))
		})
	}
}

func TestWindowValidate(t *testing.T) {
	assert.NoError(t, HourRange(0, 0, 23, 59).Validate())
	assert.ErrorIs(t, HourRange(24, 0, 1, 0).Validate(), ErrInvalidWindow)
	assert.ErrorIs(t, HourRange(9, 75, 17, 0).Validate(), ErrInvalidWindow)
	assert.ErrorIs(t, HourRange(9, 0, 17, -1).Validate(), ErrInvalidWindow)
	assert.ErrorIs(t, HourRange(-1, 30, 17, 0).Validate(), ErrInvalidWindow)
	assert.ErrorIs(t, DateRange(0, 5).Validate(), ErrInvalidWindow)
	assert.ErrorIs(t, Window{kind: KindMonth, enabled: true, start: 1, end: 13}.Validate(), ErrInvalidWindow)
	assert.NoError(t, Window{kind: KindMonth, start: 99, end: -1}.Validate(), "disabled windows are not checked")
}

func TestWindowNextBoundaryAfter(t *testing.T) {
	w := HourRange(9, 0, 17, 0)
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	on, ok := w.NextBoundaryAfter(now, true)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), on)

	off, ok := w.NextBoundaryAfter(now, false)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 4, 17, 1, 0, 0, time.UTC), off)

	_, ok = Disabled(KindHour).NextBoundaryAfter(now, false)
	assert.False(t, ok)

	_, ok = MonthRange(time.January, time.December).NextBoundaryAfter(now, false)
	assert.False(t, ok, "a window over its whole domain never closes")
}
