package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"widgetd/internal/clock"
	"widgetd/internal/display"
	"widgetd/internal/eventbus"
	"widgetd/internal/location"
	"widgetd/internal/storage"
	"widgetd/internal/weather"
	"widgetd/internal/widget"
)

type fakeStore struct {
	mu        sync.Mutex
	recs      map[string]widget.Record
	loadErr   error
	deleteErr error
	deletes   int
}

func newFakeStore() *fakeStore { return &fakeStore{recs: map[string]widget.Record{}} }

func (f *fakeStore) LoadWidgets(ctx context.Context) ([]widget.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make([]widget.Record, 0, len(f.recs))
	for _, r := range f.recs {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) SaveWidgets(ctx context.Context, recs []widget.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range recs {
		f.recs[r.ID] = r
	}
	return nil
}

func (f *fakeStore) DeleteWidget(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.recs[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.recs, id)
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.recs[id]
	return ok
}

func (f *fakeStore) setDeleteErr(err error) {
	f.mu.Lock()
	f.deleteErr = err
	f.mu.Unlock()
}

type fakeWeather struct {
	mu    sync.Mutex
	cond  weather.Conditions
	err   error
	calls int
}

func (f *fakeWeather) Fetch(ctx context.Context, loc location.Coordinate) (weather.Conditions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.cond, f.err
}

func (f *fakeWeather) set(c weather.Conditions, err error) {
	f.mu.Lock()
	f.cond, f.err = c, err
	f.mu.Unlock()
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	svc   *Service
	clk   *clock.Fake
	disp  *display.Recorder
	store *fakeStore
	wx    *fakeWeather
	loc   *location.Static
	bus   eventbus.Bus
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		clk:   clock.NewFake(now),
		disp:  display.NewRecorder(),
		store: newFakeStore(),
		wx:    &fakeWeather{},
		loc:   location.NewStatic(nil),
		bus:   eventbus.New(),
	}
	h.svc = New(Config{WeatherPoll: "15m"}, Deps{
		Store:    h.store,
		Display:  h.disp,
		Weather:  h.wx,
		Location: h.loc,
		Clock:    h.clk,
		Bus:      h.bus,
	})
	require.NoError(t, h.svc.Start(h.ctx))
	t.Cleanup(func() { _ = h.svc.Stop(context.Background()) })
	return h
}

// step advances the fake clock and waits until the loop has handled every
// timer that fired.
func (h *harness) step(d time.Duration) {
	h.t.Helper()
	h.clk.Advance(d)
	h.snapshot()
}

func (h *harness) snapshot() Snapshot {
	h.t.Helper()
	snap, err := h.svc.Snapshot(h.ctx)
	require.NoError(h.t, err)
	return snap
}

func (h *harness) entry(id string) (EntryInfo, bool) {
	h.t.Helper()
	for _, e := range h.snapshot().Entries {
		if e.ID == id {
			return e, true
		}
	}
	return EntryInfo{}, false
}

var errDiskFull = errors.New("disk full")

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

var weatherTestCoord = location.Coordinate{Latitude: 52.52, Longitude: 13.41}
