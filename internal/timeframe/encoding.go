package timeframe

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// windowJSON is the persisted form of a Window. Hour bounds are "HH:MM"
// strings, every other kind uses plain ordinals.
type windowJSON struct {
	Enabled bool            `json:"enabled"`
	Start   json.RawMessage `json:"start"`
	End     json.RawMessage `json:"end"`
}

type compositeJSON struct {
	Hour    *windowJSON `json:"hour,omitempty"`
	Weekday *windowJSON `json:"weekday,omitempty"`
	Date    *windowJSON `json:"date,omitempty"`
	Month   *windowJSON `json:"month,omitempty"`
}

func (c Composite) MarshalJSON() ([]byte, error) {
	var out compositeJSON
	for _, w := range []Window{c.hour, c.weekday, c.date, c.month} {
		if !w.enabled {
			continue
		}
		wj, err := encodeWindow(w)
		if err != nil {
			return nil, err
		}
		switch w.kind {
		case KindHour:
			out.Hour = wj
		case KindWeekday:
			out.Weekday = wj
		case KindDate:
			out.Date = wj
		case KindMonth:
			out.Month = wj
		}
	}
	return json.Marshal(out)
}

func (c *Composite) UnmarshalJSON(b []byte) error {
	var in compositeJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	var windows []Window
	for kind, wj := range map[Kind]*windowJSON{
		KindHour:    in.Hour,
		KindWeekday: in.Weekday,
		KindDate:    in.Date,
		KindMonth:   in.Month,
	} {
		if wj == nil || !wj.Enabled {
			continue
		}
		w, err := decodeWindow(kind, wj)
		if err != nil {
			return err
		}
		windows = append(windows, w)
	}
	parsed, err := NewComposite(windows...)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func encodeWindow(w Window) (*windowJSON, error) {
	var s, e []byte
	var err error
	if w.kind == KindHour {
		if s, err = json.Marshal(FormatClock(w.start)); err != nil {
			return nil, err
		}
		if e, err = json.Marshal(FormatClock(w.end)); err != nil {
			return nil, err
		}
	} else {
		s = []byte(strconv.Itoa(w.start))
		e = []byte(strconv.Itoa(w.end))
	}
	return &windowJSON{Enabled: true, Start: s, End: e}, nil
}

func decodeWindow(kind Kind, wj *windowJSON) (Window, error) {
	start, err := decodeOrdinal(kind, wj.Start)
	if err != nil {
		return Window{}, fmt.Errorf("%s.start: %w", kind, err)
	}
	end, err := decodeOrdinal(kind, wj.End)
	if err != nil {
		return Window{}, fmt.Errorf("%s.end: %w", kind, err)
	}
	w := Window{kind: kind, enabled: true, start: start, end: end}
	return w, w.Validate()
}

func decodeOrdinal(kind Kind, raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: bound required", ErrInvalidWindow)
	}
	if kind == KindHour {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: expected \"HH:MM\"", ErrInvalidWindow)
		}
		return ParseClock(s)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%w: expected integer", ErrInvalidWindow)
	}
	return n, nil
}

// ParseClock parses "HH:MM" into a minute of day.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: invalid time %q, expected HH:MM", ErrInvalidWindow, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: invalid hour in %q", ErrInvalidWindow, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: invalid minute in %q", ErrInvalidWindow, s)
	}
	return h*60 + m, nil
}

func FormatClock(minuteOfDay int) string {
	return fmt.Sprintf("%02d:%02d", minuteOfDay/60, minuteOfDay%60)
}
