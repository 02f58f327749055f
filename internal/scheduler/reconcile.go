package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"widgetd/internal/eventbus"
	"widgetd/internal/storage"
	"widgetd/internal/trigger"
	"widgetd/internal/widget"
	logx "widgetd/pkg/logx"
)

// The functions in this file run on the loop only.

func (s *Service) env() trigger.Env {
	_, known := s.deps.Location.LastKnown()
	return trigger.Env{
		Conditions:    s.conditions,
		LocationKnown: known,
		Horizon:       s.config().Horizon,
	}
}

// upsert installs rec, keeping the runtime state of an existing entry with
// the same id.
func (s *Service) upsert(rec widget.Record) *entry {
	if e, ok := s.entries[rec.ID]; ok {
		e.rec = rec
		return e
	}
	e := &entry{rec: rec}
	s.entries[rec.ID] = e
	return e
}

// reconcile evaluates e at now, tells the display about a visibility change
// and arms the timer for the next transition.
func (s *Service) reconcile(e *entry, now time.Time) {
	res := trigger.Evaluate(e.rec.Trigger, now, s.env())
	if res.Expired {
		s.expire(e)
		return
	}

	if res.Visible != e.visible {
		e.visible = res.Visible
		ev := eventbus.WidgetEvent{ID: e.rec.ID, Name: e.rec.Name, NextWake: res.NextWake}
		if res.Visible {
			s.deps.Display.Show(e.rec.ID, e.rec.Payload)
			s.publish(eventbus.TypeWidgetShown, ev)
			s.log.Info("widget shown", logx.String("widget", e.rec.Label()), logx.String("id", e.rec.ID))
		} else {
			s.deps.Display.Hide(e.rec.ID)
			s.publish(eventbus.TypeWidgetHidden, ev)
			s.log.Info("widget hidden", logx.String("widget", e.rec.Label()), logx.String("id", e.rec.ID))
		}
	}

	e.deferred = res.Deferred
	if res.Deferred {
		s.log.Debug("transition beyond horizon, left to sweep", logx.String("id", e.rec.ID))
	}
	s.arm(e, res.NextWake, now)
}

// arm replaces the entry's timer. A zero wake leaves it disarmed.
func (s *Service) arm(e *entry, wake, now time.Time) {
	s.disarm(e)
	if wake.IsZero() {
		return
	}
	id, gen := e.rec.ID, e.gen
	e.timer = s.clk.AfterFunc(wake.Sub(now), func() {
		s.post(func() { s.onTimerFire(id, gen) })
	})
	s.log.Debug("timer armed", logx.String("id", id), logx.Time("at", wake))
}

// disarm cancels any armed timer; callbacks already in flight become stale.
func (s *Service) disarm(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}

func (s *Service) onTimerFire(id string, gen uint64) {
	e, ok := s.entries[id]
	if !ok || e.gen != gen {
		return
	}
	e.timer = nil
	s.reconcile(e, s.clk.Now())
}

// expire hides a one-shot widget whose range has passed and deletes it from
// storage off the loop. The entry stays, flagged expired, until the deletion
// succeeds.
func (s *Service) expire(e *entry) {
	s.disarm(e)
	e.deferred = false
	if e.visible {
		e.visible = false
		s.deps.Display.Hide(e.rec.ID)
		s.publish(eventbus.TypeWidgetHidden, eventbus.WidgetEvent{ID: e.rec.ID, Name: e.rec.Name})
	}
	e.expired = true
	if e.deleting {
		return
	}
	e.deleting = true

	id := e.rec.ID
	st := s.deps.Store
	s.sup.Go("scheduler.expire", func(ctx context.Context) error {
		dctx, cancel := context.WithTimeout(ctx, storeTimeout)
		err := st.DeleteWidget(dctx, id)
		cancel()
		s.post(func() { s.onExpiredDeleted(id, err) })
		return nil
	})
}

func (s *Service) onExpiredDeleted(id string, err error) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.deleting = false
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		e.lastErr = err
		s.log.Error("delete expired widget failed", logx.String("id", id), logx.Err(err))
		s.report(fmt.Errorf("delete expired widget %s: %w", id, err))
		return
	}
	delete(s.entries, id)
	s.publish(eventbus.TypeWidgetExpired, eventbus.WidgetEvent{ID: id, Name: e.rec.Name})
	s.log.Info("one-shot widget expired", logx.String("widget", e.rec.Label()), logx.String("id", id))
}

// drop forgets an entry after an explicit removal.
func (s *Service) drop(id string) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	s.disarm(e)
	if e.visible {
		s.deps.Display.Hide(id)
	}
	delete(s.entries, id)
	s.publish(eventbus.TypeWidgetRemoved, eventbus.WidgetEvent{ID: id, Name: e.rec.Name})
	s.log.Info("widget removed", logx.String("widget", e.rec.Label()), logx.String("id", id))
}

func (s *Service) reconcileWhere(now time.Time, keep func(*entry) bool) int {
	n := 0
	for _, e := range s.entries {
		if keep == nil || keep(e) {
			s.reconcile(e, now)
			n++
		}
	}
	return n
}

func needsWeather(e *entry) bool { return e.rec.Trigger.NeedsWeather() }
