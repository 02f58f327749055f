package trigger

import (
	"time"

	"widgetd/internal/weather"
)

// DefaultHorizon is the furthest ahead a wake-up is scheduled.
const DefaultHorizon = 5 * 24 * time.Hour

// Env is the external state a trigger is evaluated against.
type Env struct {
	// Conditions is the latest weather snapshot; nil until the first successful poll.
	Conditions    *weather.Conditions
	LocationKnown bool
	// Horizon clips NextWake; zero means DefaultHorizon.
	Horizon time.Duration
}

// Result is the outcome of evaluating a trigger at an instant.
type Result struct {
	Visible bool
	// NextWake is when the decision may change next; zero when nothing
	// needs to be armed.
	NextWake time.Time
	// Deferred is set when a transition exists but lies beyond the horizon
	// (or beyond the boundary search); a later sweep must re-evaluate.
	Deferred bool
	// Expired is set for a one-shot trigger whose end has passed. The
	// widget must be deleted instead of scheduled.
	Expired bool
}

// Evaluate decides visibility for t at now and the next instant worth
// waking up for.
func Evaluate(t Trigger, now time.Time, env Env) Result {
	var res Result
	var wake time.Time
	var pending bool

	switch t.kind {
	case KindAlways:
		res.Visible = true

	case KindAlwaysBetween:
		res.Visible, wake = rangeStep(t.rng, now)
		pending = !wake.IsZero()

	case KindComposite:
		if t.frame.AlwaysActive() {
			res.Visible = true
			break
		}
		res.Visible = t.frame.IsActive(now)
		var ok bool
		if res.Visible {
			wake, ok = t.frame.NextDeactivation(now)
		} else {
			wake, ok = t.frame.NextActivation(now)
		}
		pending = true
		if !ok {
			wake = time.Time{}
		}

	case KindWeather:
		if env.LocationKnown && env.Conditions != nil {
			res.Visible = weather.ShouldBeOn(*env.Conditions, t.weather)
		}

	case KindOneShot:
		if !now.Before(t.rng.Until()) {
			res.Expired = true
			return res
		}
		res.Visible, wake = rangeStep(t.rng, now)
		pending = !wake.IsZero()
	}

	if !pending {
		return res
	}
	horizon := env.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if wake.IsZero() || wake.Sub(now) > horizon {
		res.Deferred = true
		return res
	}
	res.NextWake = wake
	return res
}

// rangeStep returns visibility within r and the next boundary, if any.
func rangeStep(r Range, now time.Time) (bool, time.Time) {
	switch {
	case now.Before(r.Start):
		return false, r.Start
	case r.Contains(now):
		return true, r.Until()
	default:
		return false, time.Time{}
	}
}
