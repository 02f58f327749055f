package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"widgetd/internal/display"
	"widgetd/internal/eventbus"
	"widgetd/internal/timeframe"
	"widgetd/internal/trigger"
	"widgetd/internal/weather"
	"widgetd/internal/widget"
)

func TestHourWindowShowHideCycle(t *testing.T) {
	h := newHarness(t, at(2024, 3, 4, 8, 0))
	c, err := timeframe.NewComposite(timeframe.HourRange(9, 0, 17, 0))
	require.NoError(t, err)
	tr, err := trigger.FromComposite(c)
	require.NoError(t, err)

	rec, err := h.svc.AddWidget(h.ctx, "office", tr, json.RawMessage(`{"type":"text"}`))
	require.NoError(t, err)
	assert.True(t, h.store.has(rec.ID))

	e, _ := h.entry(rec.ID)
	assert.False(t, e.Visible)
	assert.Equal(t, at(2024, 3, 4, 9, 0), e.Deadline)
	assert.Equal(t, 1, h.clk.Pending())

	h.step(time.Hour)
	e, _ = h.entry(rec.ID)
	assert.True(t, e.Visible)
	assert.True(t, h.disp.Visible(rec.ID))
	assert.Equal(t, at(2024, 3, 4, 17, 1), e.Deadline)
	assert.Equal(t, 1, h.clk.Pending())

	h.step(8*time.Hour + time.Minute)
	e, _ = h.entry(rec.ID)
	assert.False(t, e.Visible)
	assert.Equal(t, at(2024, 3, 5, 9, 0), e.Deadline)
	assert.Equal(t, 1, h.clk.Pending())

	assert.Equal(t, []display.Call{{Show: true, ID: rec.ID}, {ID: rec.ID}}, h.disp.Calls())
}

func TestReconcileIsIdempotent(t *testing.T) {
	now := at(2024, 3, 4, 12, 0)
	h := newHarness(t, now)
	tr, err := trigger.AlwaysBetween(now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)

	rec, err := h.svc.AddWidget(h.ctx, "", tr, nil)
	require.NoError(t, err)
	require.NoError(t, h.svc.ReconcileAll(h.ctx))
	require.NoError(t, h.svc.ReconcileAll(h.ctx))

	assert.Equal(t, []display.Call{{Show: true, ID: rec.ID}}, h.disp.Calls())
	assert.Equal(t, 1, h.clk.Pending(), "re-arming replaces the timer")
}

func TestStaleTimerCallbackIgnored(t *testing.T) {
	now := at(2024, 3, 4, 12, 0)
	h := newHarness(t, now)
	tr, err := trigger.AlwaysBetween(now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)
	rec, err := h.svc.AddWidget(h.ctx, "", tr, nil)
	require.NoError(t, err)

	var gen uint64
	require.NoError(t, h.svc.do(h.ctx, func() { gen = h.svc.entries[rec.ID].gen }))
	require.NoError(t, h.svc.ReconcileAll(h.ctx))

	// Pretend the first timer fired late, after being replaced.
	h.step(90 * time.Minute)
	require.True(t, h.disp.Visible(rec.ID))
	calls := len(h.disp.Calls())
	require.NoError(t, h.svc.do(h.ctx, func() { h.svc.onTimerFire(rec.ID, gen) }))
	assert.Len(t, h.disp.Calls(), calls)
}

func TestOneShotExpiresAndIsDeleted(t *testing.T) {
	now := at(2024, 1, 4, 23, 0)
	h := newHarness(t, now)
	events, unsub := h.bus.Subscribe(16)
	defer unsub()

	tr, err := trigger.OneShot(at(2024, 1, 1, 0, 0), at(2024, 1, 5, 0, 0))
	require.NoError(t, err)
	rec, err := h.svc.AddWidget(h.ctx, "promo", tr, nil)
	require.NoError(t, err)

	e, _ := h.entry(rec.ID)
	require.True(t, e.Visible)
	assert.Equal(t, at(2024, 1, 5, 0, 1), e.Deadline)

	h.step(61 * time.Minute)
	require.Eventually(t, func() bool {
		_, ok := h.entry(rec.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.False(t, h.store.has(rec.ID))
	assert.False(t, h.disp.Visible(rec.ID))
	assert.Equal(t, 0, h.clk.Pending())

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []string{eventbus.TypeWidgetShown, eventbus.TypeWidgetHidden, eventbus.TypeWidgetExpired}, types)
}

func TestExpiredOneShotDeleteFailureIsSurfaced(t *testing.T) {
	h := newHarness(t, at(2024, 1, 10, 0, 0))
	tr, err := trigger.OneShot(at(2024, 1, 1, 0, 0), at(2024, 1, 5, 0, 0))
	require.NoError(t, err)
	rec, err := widget.New("late", tr, nil, at(2023, 12, 1, 0, 0))
	require.NoError(t, err)
	require.NoError(t, h.store.SaveWidgets(h.ctx, []widget.Record{rec}))
	h.store.setDeleteErr(errDiskFull)

	require.NoError(t, h.svc.Load(h.ctx))

	select {
	case err := <-h.svc.Errors():
		assert.ErrorIs(t, err, errDiskFull)
	case <-time.After(time.Second):
		t.Fatal("deletion failure not surfaced")
	}
	require.Eventually(t, func() bool {
		e, ok := h.entry(rec.ID)
		return ok && e.Expired && e.LastErr != ""
	}, time.Second, 5*time.Millisecond)
	assert.True(t, h.store.has(rec.ID))
	assert.Empty(t, h.disp.Calls(), "never shown")

	h.store.setDeleteErr(nil)
	n, err := h.svc.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Eventually(t, func() bool {
		_, ok := h.entry(rec.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.False(t, h.store.has(rec.ID))
}

func TestDeferredEntryPickedUpBySweep(t *testing.T) {
	h := newHarness(t, at(2024, 3, 10, 12, 0))
	c, err := timeframe.NewComposite(timeframe.MonthRange(time.November, time.February))
	require.NoError(t, err)
	tr, err := trigger.FromComposite(c)
	require.NoError(t, err)
	rec, err := h.svc.AddWidget(h.ctx, "winter", tr, nil)
	require.NoError(t, err)

	e, _ := h.entry(rec.ID)
	assert.False(t, e.Visible)
	assert.False(t, e.Armed)
	assert.True(t, e.Deferred)
	assert.Equal(t, 0, h.clk.Pending())

	h.clk.Set(at(2024, 10, 28, 0, 0))
	n, err := h.svc.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, _ = h.entry(rec.ID)
	assert.True(t, e.Armed)
	assert.False(t, e.Deferred)
	assert.Equal(t, at(2024, 11, 1, 0, 0), e.Deadline)

	h.step(4 * 24 * time.Hour)
	assert.True(t, h.disp.Visible(rec.ID))
}

func TestSweepSkipsArmedEntries(t *testing.T) {
	now := at(2024, 3, 4, 12, 0)
	h := newHarness(t, now)
	tr, err := trigger.AlwaysBetween(now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)
	_, err = h.svc.AddWidget(h.ctx, "", tr, nil)
	require.NoError(t, err)
	_, err = h.svc.AddWidget(h.ctx, "", trigger.Always(), nil)
	require.NoError(t, err)

	n, err := h.svc.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWeatherWidgetFollowsPollsAndLocation(t *testing.T) {
	h := newHarness(t, at(2024, 6, 1, 12, 0))
	tr, err := trigger.OnWeather(weather.Sunny)
	require.NoError(t, err)
	rec, err := h.svc.AddWidget(h.ctx, "sun", tr, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, h.svc.WeatherPollTick(h.ctx), weather.ErrNoLocation)
	assert.Equal(t, 0, h.wx.calls)

	h.wx.set(weather.Conditions{SolarRadiation: 700}, nil)
	h.loc.Set(weatherTestCoord)
	require.NoError(t, h.svc.LocationAvailable(h.ctx))
	assert.True(t, h.disp.Visible(rec.ID))

	e, _ := h.entry(rec.ID)
	assert.False(t, e.Armed, "weather widgets wait for the next poll")

	h.wx.set(weather.Conditions{}, weather.ErrUnavailable)
	assert.ErrorIs(t, h.svc.WeatherPollTick(h.ctx), weather.ErrUnavailable)
	assert.True(t, h.disp.Visible(rec.ID), "failed poll keeps the previous snapshot")
	snap := h.snapshot()
	require.NotNil(t, snap.Conditions)
	assert.Equal(t, 700.0, snap.Conditions.SolarRadiation)
	assert.NotEmpty(t, snap.LastPollErr)

	h.wx.set(weather.Conditions{SolarRadiation: 500}, nil)
	require.NoError(t, h.svc.WeatherPollTick(h.ctx))
	assert.False(t, h.disp.Visible(rec.ID))
	assert.Empty(t, h.snapshot().LastPollErr)

	h.loc.Clear()
	h.wx.set(weather.Conditions{SolarRadiation: 900}, nil)
	require.NoError(t, h.svc.LocationAvailable(h.ctx))
	assert.False(t, h.disp.Visible(rec.ID), "no location fails closed")
}

func TestLoadFailureKeepsNoState(t *testing.T) {
	h := newHarness(t, at(2024, 1, 1, 0, 0))
	h.store.loadErr = errDiskFull

	err := h.svc.Load(h.ctx)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Empty(t, h.snapshot().Entries)
	assert.Empty(t, h.disp.Calls())
}

func TestLoadReconcilesStoredWidgets(t *testing.T) {
	h := newHarness(t, at(2024, 3, 2, 10, 0)) // Saturday
	c, err := timeframe.NewComposite(timeframe.WeekdayRange(time.Friday, time.Monday))
	require.NoError(t, err)
	weekend, err := trigger.FromComposite(c)
	require.NoError(t, err)
	a, err := widget.New("weekend", weekend, nil, at(2024, 1, 1, 0, 0))
	require.NoError(t, err)
	b, err := widget.New("static", trigger.Always(), nil, at(2024, 1, 2, 0, 0))
	require.NoError(t, err)
	require.NoError(t, h.store.SaveWidgets(h.ctx, []widget.Record{a, b}))

	require.NoError(t, h.svc.Load(h.ctx))

	snap := h.snapshot()
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, a.ID, snap.Entries[0].ID)
	assert.True(t, snap.Entries[0].Visible)
	assert.Equal(t, at(2024, 3, 5, 0, 0), snap.Entries[0].Deadline)
	assert.True(t, snap.Entries[1].Visible)
	assert.False(t, snap.Entries[1].Armed)
}

func TestRemoveWidget(t *testing.T) {
	now := at(2024, 3, 4, 12, 0)
	h := newHarness(t, now)
	tr, err := trigger.AlwaysBetween(now, now.Add(time.Hour))
	require.NoError(t, err)
	rec, err := h.svc.AddWidget(h.ctx, "", tr, nil)
	require.NoError(t, err)
	require.True(t, h.disp.Visible(rec.ID))

	h.store.setDeleteErr(errDiskFull)
	assert.ErrorIs(t, h.svc.RemoveWidget(h.ctx, rec.ID), errDiskFull)
	_, ok := h.entry(rec.ID)
	assert.True(t, ok, "failed delete keeps the widget scheduled")

	h.store.setDeleteErr(nil)
	require.NoError(t, h.svc.RemoveWidget(h.ctx, rec.ID))
	assert.False(t, h.disp.Visible(rec.ID))
	assert.False(t, h.store.has(rec.ID))
	assert.Equal(t, 0, h.clk.Pending())

	assert.ErrorIs(t, h.svc.RemoveWidget(h.ctx, rec.ID), ErrNotFound)
}

func TestAddWidgetRejectsInvalidTrigger(t *testing.T) {
	h := newHarness(t, at(2024, 1, 1, 0, 0))
	bad, err := trigger.OneShot(at(2024, 1, 5, 0, 0), at(2024, 1, 1, 0, 0))
	require.Error(t, err)

	_, err = h.svc.AddWidget(h.ctx, "", bad, nil)
	assert.ErrorIs(t, err, trigger.ErrInvalid)
	assert.Empty(t, h.snapshot().Entries)
}

func TestStopCancelsTimers(t *testing.T) {
	now := at(2024, 3, 4, 12, 0)
	h := newHarness(t, now)
	tr, err := trigger.AlwaysBetween(now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)
	_, err = h.svc.AddWidget(h.ctx, "", tr, nil)
	require.NoError(t, err)
	require.Equal(t, 1, h.clk.Pending())

	require.NoError(t, h.svc.Stop(context.Background()))
	assert.Equal(t, 0, h.clk.Pending())

	_, err = h.svc.AddWidget(h.ctx, "", trigger.Always(), nil)
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, h.svc.ReconcileAll(h.ctx), ErrStopped)
	assert.ErrorIs(t, h.svc.Start(h.ctx), ErrStopped)
}

func TestApplyRejectsBadSchedule(t *testing.T) {
	h := newHarness(t, at(2024, 1, 1, 0, 0))
	err := h.svc.Apply(h.ctx, Config{Sweep: "whenever"})
	assert.Error(t, err)
	require.NoError(t, h.svc.Apply(h.ctx, Config{Sweep: "@hourly", WeatherPoll: "30m", Horizon: 48 * time.Hour}))
	assert.Equal(t, 48*time.Hour, h.svc.config().Horizon)
}
