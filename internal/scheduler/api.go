package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"widgetd/internal/eventbus"
	"widgetd/internal/storage"
	"widgetd/internal/trigger"
	"widgetd/internal/weather"
	"widgetd/internal/widget"
	logx "widgetd/pkg/logx"
)

// Load reads every stored widget and reconciles it. A storage failure is
// returned as is and leaves the scheduler untouched.
func (s *Service) Load(ctx context.Context) error {
	recs, err := s.deps.Store.LoadWidgets(ctx)
	if err != nil {
		return fmt.Errorf("load widgets: %w", err)
	}
	return s.do(ctx, func() {
		now := s.clk.Now()
		for _, r := range recs {
			s.reconcile(s.upsert(r), now)
		}
		s.log.Info("widgets loaded", logx.Int("count", len(recs)))
	})
}

// AddWidget validates and persists a new widget, then schedules it.
func (s *Service) AddWidget(ctx context.Context, name string, t trigger.Trigger, payload json.RawMessage) (widget.Record, error) {
	rec, err := widget.New(name, t, payload, s.clk.Now())
	if err != nil {
		return widget.Record{}, err
	}
	if s.state.Load() != 1 {
		return widget.Record{}, ErrStopped
	}
	if err := s.deps.Store.SaveWidgets(ctx, []widget.Record{rec}); err != nil {
		return widget.Record{}, fmt.Errorf("save widget: %w", err)
	}
	err = s.do(ctx, func() {
		s.reconcile(s.upsert(rec), s.clk.Now())
		s.log.Info("widget added", logx.String("widget", rec.Label()), logx.String("id", rec.ID), logx.String("trigger", rec.Trigger.String()))
	})
	return rec, err
}

// RemoveWidget deletes a widget from storage and hides it. If the deletion
// fails the widget keeps its schedule.
func (s *Service) RemoveWidget(ctx context.Context, id string) error {
	var found bool
	if err := s.do(ctx, func() { _, found = s.entries[id] }); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.deps.Store.DeleteWidget(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete widget %s: %w", id, err)
	}
	return s.do(ctx, func() { s.drop(id) })
}

// ReconcileAll re-evaluates every entry now.
func (s *Service) ReconcileAll(ctx context.Context) error {
	return s.do(ctx, func() {
		s.reconcileWhere(s.clk.Now(), nil)
	})
}

// Sweep reconciles every entry without an armed timer: entries deferred past
// the horizon, static ones, and expired one-shots whose deletion failed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	var n int
	err := s.do(ctx, func() {
		n = s.reconcileWhere(s.clk.Now(), func(e *entry) bool {
			return e.timer == nil && !e.deleting
		})
	})
	return n, err
}

// LocationAvailable re-evaluates location-dependent widgets after the
// location changed and, when a weather source is configured, polls at once
// instead of waiting for the next tick.
func (s *Service) LocationAvailable(ctx context.Context) error {
	if err := s.do(ctx, func() {
		s.reconcileWhere(s.clk.Now(), needsWeather)
	}); err != nil {
		return err
	}
	if _, ok := s.deps.Location.LastKnown(); !ok || s.deps.Weather == nil {
		return nil
	}
	return s.WeatherPollTick(ctx)
}

// WeatherPollTick fetches fresh conditions off the loop, then reconciles
// every weather widget. A failed fetch keeps the previous snapshot and
// changes nothing. Overlapping ticks are skipped.
func (s *Service) WeatherPollTick(ctx context.Context) error {
	if s.deps.Weather == nil {
		return weather.ErrUnavailable
	}
	loc, ok := s.deps.Location.LastKnown()
	if !ok {
		s.log.Debug("weather poll skipped: no location")
		return weather.ErrNoLocation
	}
	if !s.polling.CompareAndSwap(false, true) {
		return nil
	}
	defer s.polling.Store(false)

	fctx, cancel := context.WithTimeout(ctx, s.config().FetchTimeout)
	cond, fetchErr := s.deps.Weather.Fetch(fctx, loc)
	cancel()

	if err := s.do(ctx, func() { s.onPollResult(cond, fetchErr) }); err != nil {
		return err
	}
	return fetchErr
}

func (s *Service) onPollResult(c weather.Conditions, err error) {
	if err != nil {
		s.lastPollErr = err
		if s.pollWarn.Allow() {
			s.log.Warn("weather poll failed; keeping previous conditions", logx.Err(err))
		} else {
			s.log.Debug("weather poll failed", logx.Err(err))
		}
		s.publish(eventbus.TypeWeatherPolled, eventbus.WeatherEvent{Error: err.Error()})
		return
	}
	if c.ObservedAt.IsZero() {
		c.ObservedAt = s.clk.Now()
	}
	s.conditions = &c
	s.lastPollAt = s.clk.Now()
	s.lastPollErr = nil
	n := s.reconcileWhere(s.lastPollAt, needsWeather)
	s.publish(eventbus.TypeWeatherPolled, eventbus.WeatherEvent{OK: true, ObservedAt: c.ObservedAt})
	s.log.Debug("weather polled", logx.Int("reconciled", n), logx.Time("observed_at", c.ObservedAt))
}

// Snapshot returns the scheduling state of every entry, ordered by creation.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() {
		snap.Now = s.clk.Now()
		_, snap.LocationKnown = s.deps.Location.LastKnown()
		if s.conditions != nil {
			c := *s.conditions
			snap.Conditions = &c
		}
		snap.LastPollAt = s.lastPollAt
		if s.lastPollErr != nil {
			snap.LastPollErr = s.lastPollErr.Error()
		}
		recs := make([]*entry, 0, len(s.entries))
		for _, e := range s.entries {
			recs = append(recs, e)
		}
		sort.Slice(recs, func(i, j int) bool {
			a, b := recs[i].rec, recs[j].rec
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		})
		snap.Entries = make([]EntryInfo, 0, len(recs))
		for _, e := range recs {
			info := EntryInfo{
				ID:       e.rec.ID,
				Name:     e.rec.Name,
				Trigger:  e.rec.Trigger.String(),
				Visible:  e.visible,
				Armed:    e.timer != nil,
				Deferred: e.deferred,
				Expired:  e.expired,
			}
			if e.timer != nil {
				info.Deadline = e.timer.Deadline()
			}
			if e.lastErr != nil {
				info.LastErr = e.lastErr.Error()
			}
			snap.Entries = append(snap.Entries, info)
		}
	})
	return snap, err
}
