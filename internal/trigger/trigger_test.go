package trigger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"widgetd/internal/timeframe"
	"widgetd/internal/weather"
)

func day(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestEvaluateAlways(t *testing.T) {
	res := Evaluate(Always(), time.Now(), Env{})
	assert.Equal(t, Result{Visible: true}, res)
}

func TestEvaluateAlwaysBetween(t *testing.T) {
	tr, err := AlwaysBetween(day(2024, 3, 4, 9, 0), day(2024, 3, 6, 18, 0))
	require.NoError(t, err)

	before := Evaluate(tr, day(2024, 3, 3, 12, 0), Env{})
	assert.False(t, before.Visible)
	assert.Equal(t, day(2024, 3, 4, 9, 0), before.NextWake)

	inside := Evaluate(tr, day(2024, 3, 6, 18, 0), Env{})
	assert.True(t, inside.Visible, "end minute is included")
	assert.Equal(t, day(2024, 3, 6, 18, 1), inside.NextWake)

	after := Evaluate(tr, day(2024, 3, 6, 18, 1), Env{})
	assert.Equal(t, Result{}, after, "past the range: hidden, nothing to arm, not expired")

	far := Evaluate(tr, day(2024, 2, 1, 0, 0), Env{})
	assert.False(t, far.Visible)
	assert.True(t, far.NextWake.IsZero())
	assert.True(t, far.Deferred)
}

func TestEvaluateComposite(t *testing.T) {
	c, err := timeframe.NewComposite(timeframe.HourRange(9, 0, 17, 0))
	require.NoError(t, err)
	tr, err := FromComposite(c)
	require.NoError(t, err)

	res := Evaluate(tr, day(2024, 3, 4, 8, 59), Env{})
	assert.False(t, res.Visible)
	assert.Equal(t, day(2024, 3, 4, 9, 0), res.NextWake)

	res = Evaluate(tr, res.NextWake, Env{})
	assert.True(t, res.Visible)
	assert.Equal(t, day(2024, 3, 4, 17, 1), res.NextWake)

	res = Evaluate(tr, res.NextWake, Env{})
	assert.False(t, res.Visible)
	assert.Equal(t, day(2024, 3, 5, 9, 0), res.NextWake)
}

func TestEvaluateCompositeBeyondHorizon(t *testing.T) {
	c, err := timeframe.NewComposite(timeframe.MonthRange(time.November, time.February))
	require.NoError(t, err)
	tr, err := FromComposite(c)
	require.NoError(t, err)

	res := Evaluate(tr, day(2024, 3, 10, 12, 0), Env{})
	assert.False(t, res.Visible)
	assert.True(t, res.NextWake.IsZero())
	assert.True(t, res.Deferred)

	res = Evaluate(tr, day(2024, 10, 28, 12, 0), Env{})
	assert.Equal(t, day(2024, 11, 1, 0, 0), res.NextWake)
	assert.False(t, res.Deferred)

	res = Evaluate(tr, day(2024, 3, 10, 12, 0), Env{Horizon: 365 * 24 * time.Hour})
	assert.Equal(t, day(2024, 11, 1, 0, 0), res.NextWake)
}

func TestEvaluateEmptyCompositeIsStatic(t *testing.T) {
	tr, err := FromComposite(timeframe.Composite{})
	require.NoError(t, err)
	assert.Equal(t, Result{Visible: true}, Evaluate(tr, time.Now(), Env{}))
}

func TestEvaluateFullCoverageCompositeIsStatic(t *testing.T) {
	for _, ws := range [][]timeframe.Window{
		{timeframe.MonthRange(time.January, time.December)},
		{timeframe.HourRange(0, 0, 23, 59), timeframe.DateRange(1, 31)},
	} {
		c, err := timeframe.NewComposite(ws...)
		require.NoError(t, err)
		tr, err := FromComposite(c)
		require.NoError(t, err)
		assert.Equal(t, Result{Visible: true}, Evaluate(tr, day(2024, 3, 4, 12, 0), Env{}), c.String())
	}
}

func TestEvaluateWeather(t *testing.T) {
	tr, err := OnWeather(weather.Sunny)
	require.NoError(t, err)
	now := day(2024, 6, 1, 12, 0)

	bright := &weather.Conditions{SolarRadiation: 700}
	dim := &weather.Conditions{SolarRadiation: 500}

	assert.Equal(t, Result{Visible: true}, Evaluate(tr, now, Env{Conditions: bright, LocationKnown: true}))
	assert.Equal(t, Result{}, Evaluate(tr, now, Env{Conditions: dim, LocationKnown: true}))
	assert.Equal(t, Result{}, Evaluate(tr, now, Env{LocationKnown: true}), "no snapshot yet fails closed")
	assert.Equal(t, Result{}, Evaluate(tr, now, Env{Conditions: bright}), "no location fails closed")
}

func TestEvaluateOneShot(t *testing.T) {
	tr, err := OneShot(day(2024, 1, 1, 0, 0), day(2024, 1, 5, 0, 0))
	require.NoError(t, err)

	expired := Evaluate(tr, day(2024, 1, 10, 0, 0), Env{})
	assert.True(t, expired.Expired)
	assert.False(t, expired.Visible)
	assert.True(t, expired.NextWake.IsZero())

	inside := Evaluate(tr, day(2024, 1, 3, 0, 0), Env{})
	assert.True(t, inside.Visible)
	assert.Equal(t, day(2024, 1, 5, 0, 1), inside.NextWake)

	atUntil := Evaluate(tr, day(2024, 1, 5, 0, 1), Env{})
	assert.True(t, atUntil.Expired)

	before := Evaluate(tr, day(2023, 12, 30, 0, 0), Env{})
	assert.False(t, before.Visible)
	assert.Equal(t, day(2024, 1, 1, 0, 0), before.NextWake)
}

func TestConstructorsValidate(t *testing.T) {
	_, err := OneShot(day(2024, 1, 5, 0, 0), day(2024, 1, 1, 0, 0))
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = AlwaysBetween(time.Time{}, day(2024, 1, 1, 0, 0))
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = OnWeather(weather.Kind("foggy"))
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, Trigger{kind: Kind(42)}.Validate(), ErrInvalid)
}

func TestTriggerJSON(t *testing.T) {
	c, err := timeframe.NewComposite(timeframe.WeekdayRange(time.Friday, time.Monday))
	require.NoError(t, err)
	comp, err := FromComposite(c)
	require.NoError(t, err)
	shot, err := OneShot(day(2024, 1, 1, 0, 0), day(2024, 1, 5, 0, 0))
	require.NoError(t, err)
	rain, err := OnWeather(weather.Raining)
	require.NoError(t, err)

	for _, tr := range []Trigger{Always(), comp, shot, rain} {
		b, err := json.Marshal(tr)
		require.NoError(t, err)
		var back Trigger
		require.NoError(t, json.Unmarshal(b, &back), string(b))
		assert.Equal(t, tr.Kind(), back.Kind())
		assert.Equal(t, tr.String(), back.String())
	}

	var bad Trigger
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"kind":"weather","weather":"foggy"}`), &bad), ErrInvalid)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"kind":"one_shot"}`), &bad), ErrInvalid)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"kind":"sometimes"}`), &bad), ErrInvalid)
}
