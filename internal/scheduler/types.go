package scheduler

import (
	"errors"
	"fmt"
	"time"

	"widgetd/internal/clock"
	"widgetd/internal/display"
	"widgetd/internal/eventbus"
	"widgetd/internal/location"
	"widgetd/internal/storage"
	"widgetd/internal/trigger"
	"widgetd/internal/weather"
	"widgetd/internal/widget"
	logx "widgetd/pkg/logx"
)

var (
	ErrNotFound = errors.New("scheduler: widget not found")
	ErrStopped  = errors.New("scheduler: not running")
)

const (
	defaultSweep        = "@daily"
	defaultFetchTimeout = 20 * time.Second
	storeTimeout        = 10 * time.Second
	errBuffer           = 16
)

// Config controls the scheduler.
type Config struct {
	// Horizon is the furthest ahead a timer is armed. Zero means trigger.DefaultHorizon.
	Horizon time.Duration
	// Sweep is the schedule of the full reconciliation pass that picks up
	// entries without an armed timer. Accepts the forms of ParseSchedule.
	Sweep string
	// WeatherPoll is the weather refresh schedule. Empty disables polling.
	WeatherPoll  string
	FetchTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Horizon <= 0 {
		c.Horizon = trigger.DefaultHorizon
	}
	if c.Sweep == "" {
		c.Sweep = defaultSweep
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	return c
}

// Validate checks the schedule strings. Empty fields take their defaults.
func (c Config) Validate() error {
	c = c.withDefaults()
	if _, err := ParseSchedule(c.Sweep); err != nil {
		return fmt.Errorf("sweep schedule: %w", err)
	}
	if c.WeatherPoll != "" {
		if _, err := ParseSchedule(c.WeatherPoll); err != nil {
			return fmt.Errorf("weather poll schedule: %w", err)
		}
	}
	return nil
}

// Deps are the collaborators of a Service. Store and Display are required;
// without Weather or Location, weather widgets stay hidden.
type Deps struct {
	Store    storage.Store
	Display  display.Display
	Weather  weather.Source
	Location location.Source
	Clock    clock.Clock
	Bus      eventbus.Bus
	Log      logx.Logger
}

// entry is loop-owned.
type entry struct {
	rec     widget.Record
	visible bool
	timer   clock.Timer
	// gen is bumped on every (re)arm; callbacks carrying an older gen are stale.
	gen      uint64
	deferred bool
	expired  bool
	deleting bool
	lastErr  error
}

// EntryInfo describes one widget in a Snapshot.
type EntryInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	Trigger  string    `json:"trigger"`
	Visible  bool      `json:"visible"`
	Armed    bool      `json:"armed"`
	Deadline time.Time `json:"deadline,omitempty"`
	Deferred bool      `json:"deferred,omitempty"`
	Expired  bool      `json:"expired,omitempty"`
	LastErr  string    `json:"last_err,omitempty"`
}

type Snapshot struct {
	Now           time.Time           `json:"now"`
	LocationKnown bool                `json:"location_known"`
	Conditions    *weather.Conditions `json:"conditions,omitempty"`
	LastPollAt    time.Time           `json:"last_poll_at,omitempty"`
	LastPollErr   string              `json:"last_poll_err,omitempty"`
	Entries       []EntryInfo         `json:"entries"`
}
