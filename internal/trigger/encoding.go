package trigger

import (
	"encoding/json"
	"fmt"
	"time"

	"widgetd/internal/timeframe"
	"widgetd/internal/weather"
)

type triggerJSON struct {
	Kind    string               `json:"kind"`
	Start   *time.Time           `json:"start,omitempty"`
	End     *time.Time           `json:"end,omitempty"`
	Frame   *timeframe.Composite `json:"frame,omitempty"`
	Weather string               `json:"weather,omitempty"`
}

func (t Trigger) MarshalJSON() ([]byte, error) {
	out := triggerJSON{Kind: t.kind.String()}
	switch t.kind {
	case KindAlwaysBetween, KindOneShot:
		start, end := t.rng.Start, t.rng.End
		out.Start, out.End = &start, &end
	case KindComposite:
		f := t.frame
		out.Frame = &f
	case KindWeather:
		out.Weather = string(t.weather)
	}
	return json.Marshal(out)
}

func (t *Trigger) UnmarshalJSON(b []byte) error {
	var in triggerJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	kind, err := parseKind(in.Kind)
	if err != nil {
		return err
	}
	parsed := Trigger{kind: kind}
	switch kind {
	case KindAlwaysBetween, KindOneShot:
		if in.Start == nil || in.End == nil {
			return fmt.Errorf("%w: %s needs start and end", ErrInvalid, kind)
		}
		parsed.rng = Range{Start: *in.Start, End: *in.End}
	case KindComposite:
		if in.Frame != nil {
			parsed.frame = *in.Frame
		}
	case KindWeather:
		wk, err := weather.ParseKind(in.Weather)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		parsed.weather = wk
	}
	if err := parsed.Validate(); err != nil {
		return err
	}
	*t = parsed
	return nil
}
