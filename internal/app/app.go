package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"widgetd/internal/config"
	"widgetd/internal/display"
	"widgetd/internal/eventbus"
	"widgetd/internal/location"
	"widgetd/internal/observability/status"
	"widgetd/internal/runtime/supervisor"
	"widgetd/internal/scheduler"
	"widgetd/internal/storage"
	"widgetd/internal/weather"
	logx "widgetd/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	loc     *location.Static
	weather *weather.HTTPSource
	sched   *scheduler.Service
	status  *status.Service
}

// statusReport is served at /status.
type statusReport struct {
	Scheduler     scheduler.Snapshot  `json:"scheduler"`
	Tasks         supervisor.Counters `json:"tasks"`
	EventsDropped uint64              `json:"events_dropped"`
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	store, err := OpenStore(cfg, log.With(logx.String("comp", "storage")), true)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	loc := location.NewStatic(mapLocation(cfg))

	deps := scheduler.Deps{
		Store: store,
		Display: display.Multi{
			display.NewLog(log),
			display.NewBus(bus),
		},
		Location: loc,
		Bus:      bus,
		Log:      log,
	}

	var ws *weather.HTTPSource
	if cfg.Weather.Enabled {
		wc, err := mapWeatherConfig(cfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		ws = weather.NewHTTPSource(wc, log.With(logx.String("comp", "weather")))
		deps.Weather = ws
	}

	sc, err := mapSchedulerConfig(cfg, ws != nil)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	stc, err := mapStatusConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		loc:     loc,
		weather: ws,
		sched:   scheduler.New(sc, deps),
	}
	a.status = status.New(stc, a.report, log)
	return a, nil
}

func (a *App) report(ctx context.Context) (any, error) {
	snap, err := a.sched.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return statusReport{Scheduler: snap, Tasks: a.sup.Counters(), EventsDropped: a.bus.Dropped()}, nil
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.sched.Load(ctx); err != nil {
		return err
	}
	if _, ok := a.loc.LastKnown(); ok {
		if err := a.sched.LocationAvailable(ctx); err != nil {
			// Widgets stay hidden until the next successful poll.
			a.log.Warn("initial weather poll failed", logx.Err(err))
		}
	}

	if a.status.Enabled() {
		a.status.Start(a.sup.Context())
	}

	a.sup.Go0("scheduler.errors", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case err := <-a.sched.Errors():
				a.log.Error("scheduler error", logx.Err(err))
			}
		}
	})

	events, unsub := a.bus.Subscribe(128,
		eventbus.TypeWidgetShown,
		eventbus.TypeWidgetHidden,
		eventbus.TypeWidgetExpired,
		eventbus.TypeWidgetRemoved,
		eventbus.TypeWeatherPolled,
	)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(mapLogConfig(newCfg))

	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if oldCfg != nil && oldCfg.Weather.Enabled != newCfg.Weather.Enabled {
		a.log.Warn("weather.enabled changed; restart required for changes to take effect")
	}

	if sc, err := mapSchedulerConfig(newCfg, a.weather != nil); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else if err := a.sched.Apply(ctx, sc); err != nil {
		a.log.Warn("scheduler config not applied", logx.Err(err))
	}

	if stc, err := mapStatusConfig(newCfg); err != nil {
		a.log.Warn("invalid status config; keeping previous", logx.Err(err))
	} else {
		a.status.Reconfigure(a.sup.Context(), stc)
	}

	if config.LocationChanged(oldCfg, newCfg) {
		if c := mapLocation(newCfg); c != nil {
			if a.loc.Set(*c) {
				a.log.Info("location updated", logx.String("coord", c.String()))
				if err := a.sched.LocationAvailable(ctx); err != nil && !errors.Is(err, weather.ErrUnavailable) {
					a.log.Warn("weather poll after location change failed", logx.Err(err))
				}
			}
		} else {
			a.loc.Clear()
			a.log.Info("location cleared")
			if err := a.sched.ReconcileAll(ctx); err != nil {
				a.log.Warn("reconcile after location clear failed", logx.Err(err))
			}
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); !ok || time.Until(dl) > max {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("status", time.Second, func(c context.Context) error { a.status.Stop(c); return nil })
	step("scheduler", 2*time.Second, a.sched.Stop)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
