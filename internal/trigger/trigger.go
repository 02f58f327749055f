// Package trigger defines the visibility rule attached to a widget and
// evaluates it at an instant.
package trigger

import (
	"errors"
	"fmt"
	"time"

	"widgetd/internal/timeframe"
	"widgetd/internal/weather"
)

var ErrInvalid = errors.New("trigger: invalid")

// Kind tags the populated variant of a Trigger.
type Kind int

const (
	KindAlways Kind = iota
	KindAlwaysBetween
	KindComposite
	KindWeather
	KindOneShot
)

func (k Kind) String() string {
	switch k {
	case KindAlways:
		return "always"
	case KindAlwaysBetween:
		return "always_between"
	case KindComposite:
		return "composite"
	case KindWeather:
		return "weather"
	case KindOneShot:
		return "one_shot"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func parseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindAlways, KindAlwaysBetween, KindComposite, KindWeather, KindOneShot} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalid, s)
}

// Range is an absolute, non-repeating interval. The end minute is included
// in full: the first excluded instant is Until().
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) Until() time.Time { return r.End.Truncate(time.Minute).Add(time.Minute) }

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.Until())
}

func (r Range) validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: range needs start and end", ErrInvalid)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: range end %s before start %s", ErrInvalid, r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return nil
}

// Trigger is a closed sum over the visibility rules. Exactly one payload is
// populated per Kind; construct values with the functions below.
type Trigger struct {
	kind    Kind
	rng     Range
	frame   timeframe.Composite
	weather weather.Kind
}

func Always() Trigger { return Trigger{kind: KindAlways} }

func AlwaysBetween(start, end time.Time) (Trigger, error) {
	t := Trigger{kind: KindAlwaysBetween, rng: Range{Start: start, End: end}}
	return t, t.Validate()
}

func FromComposite(c timeframe.Composite) (Trigger, error) {
	t := Trigger{kind: KindComposite, frame: c}
	return t, t.Validate()
}

func OnWeather(k weather.Kind) (Trigger, error) {
	t := Trigger{kind: KindWeather, weather: k}
	return t, t.Validate()
}

func OneShot(start, end time.Time) (Trigger, error) {
	t := Trigger{kind: KindOneShot, rng: Range{Start: start, End: end}}
	return t, t.Validate()
}

func (t Trigger) Kind() Kind                 { return t.kind }
func (t Trigger) Range() Range               { return t.rng }
func (t Trigger) Frame() timeframe.Composite { return t.frame }
func (t Trigger) Weather() weather.Kind      { return t.weather }

// NeedsWeather reports whether evaluation depends on weather and location.
func (t Trigger) NeedsWeather() bool { return t.kind == KindWeather }

func (t Trigger) Validate() error {
	switch t.kind {
	case KindAlways:
		return nil
	case KindAlwaysBetween, KindOneShot:
		return t.rng.validate()
	case KindComposite:
		if err := t.frame.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return nil
	case KindWeather:
		if !t.weather.Known() {
			return fmt.Errorf("%w: unknown weather rule %q", ErrInvalid, t.weather)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalid, int(t.kind))
	}
}

func (t Trigger) String() string {
	switch t.kind {
	case KindAlwaysBetween, KindOneShot:
		return fmt.Sprintf("%s(%s..%s)", t.kind, t.rng.Start.Format(time.RFC3339), t.rng.End.Format(time.RFC3339))
	case KindComposite:
		return fmt.Sprintf("%s(%s)", t.kind, t.frame)
	case KindWeather:
		return fmt.Sprintf("%s(%s)", t.kind, t.weather)
	default:
		return t.kind.String()
	}
}
