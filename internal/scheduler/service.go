package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"widgetd/internal/clock"
	"widgetd/internal/eventbus"
	"widgetd/internal/location"
	rtsup "widgetd/internal/runtime/supervisor"
	"widgetd/internal/weather"
	logx "widgetd/pkg/logx"
)

type Service struct {
	mu  sync.Mutex
	cfg Config

	log   logx.Logger
	clk   clock.Clock
	deps  Deps
	bus   eventbus.Bus
	errs  chan error
	ops   chan func()
	done  chan struct{}
	state atomic.Int32 // 0 new, 1 running, 2 stopped

	sup    *rtsup.Supervisor
	c      *cron.Cron
	pollE  cron.EntryID
	sweepE cron.EntryID

	polling  atomic.Bool
	pollWarn *rate.Limiter

	// Loop-owned.
	entries     map[string]*entry
	conditions  *weather.Conditions
	lastPollAt  time.Time
	lastPollErr error
}

func New(cfg Config, d Deps) *Service {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Location == nil {
		d.Location = location.NewStatic(nil)
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		log:      log.With(logx.String("comp", "scheduler")),
		clk:      d.Clock,
		deps:     d,
		bus:      d.Bus,
		errs:     make(chan error, errBuffer),
		ops:      make(chan func(), 64),
		done:     make(chan struct{}),
		pollWarn: rate.NewLimiter(rate.Every(10*time.Minute), 1),
		entries:  map[string]*entry{},
	}
}

// Errors surfaces failures that have no synchronous caller, such as a failed
// deletion of an expired one-shot widget. Sends never block; if nobody reads,
// older errors are kept and newer ones dropped.
func (s *Service) Errors() <-chan error { return s.errs }

// Start launches the event loop and the cron-driven weather poll and sweep.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CompareAndSwap(0, 1) {
		return ErrStopped
	}
	cfg := s.cfg
	if err := cfg.Validate(); err != nil {
		s.state.Store(0)
		return err
	}

	s.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log))
	s.sup.GoRestart("scheduler.loop", s.run, rtsup.WithPublishFirstError(true))

	s.c = cron.New(cron.WithParser(cronParser), cron.WithLocation(time.Local))
	if err := s.registerCronLocked(cfg); err != nil {
		s.state.Store(2)
		close(s.done)
		_ = s.sup.Stop(context.Background())
		return err
	}
	s.c.Start()
	s.log.Info("service started",
		logx.Duration("horizon", cfg.Horizon),
		logx.String("sweep", cfg.Sweep),
		logx.String("weather_poll", cfg.WeatherPoll),
	)
	return nil
}

// Stop halts the loop and the cron triggers and cancels every armed timer.
// Visibility is left as is.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	if !s.state.CompareAndSwap(1, 2) {
		s.mu.Unlock()
		return nil
	}
	close(s.done)
	c, sup := s.c, s.sup
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	err := sup.Stop(ctx)
	if err == nil {
		// The loop has exited; entry state is ours now.
		for _, e := range s.entries {
			s.disarm(e)
		}
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	return err
}

// Apply swaps the runtime config. Schedules are re-registered and every
// entry is reconciled when the horizon changed. An invalid config is
// rejected and the old one stays.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	var err error
	if s.c != nil && (old.Sweep != cfg.Sweep || old.WeatherPoll != cfg.WeatherPoll) {
		s.c.Remove(s.pollE)
		s.c.Remove(s.sweepE)
		err = s.registerCronLocked(cfg)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if old.Horizon != cfg.Horizon {
		return s.ReconcileAll(ctx)
	}
	return nil
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) registerCronLocked(cfg Config) error {
	sweep, err := ParseSchedule(cfg.Sweep)
	if err != nil {
		return fmt.Errorf("sweep schedule: %w", err)
	}
	if s.sweepE, err = s.c.AddFunc(sweep.CronSpec(), s.cronSweep); err != nil {
		return fmt.Errorf("sweep schedule: %w", err)
	}
	s.pollE = 0
	if cfg.WeatherPoll == "" || s.deps.Weather == nil {
		return nil
	}
	poll, err := ParseSchedule(cfg.WeatherPoll)
	if err != nil {
		return fmt.Errorf("weather poll schedule: %w", err)
	}
	if s.pollE, err = s.c.AddFunc(poll.CronSpec(), s.cronPoll); err != nil {
		return fmt.Errorf("weather poll schedule: %w", err)
	}
	return nil
}

func (s *Service) cronSweep() {
	if n, err := s.Sweep(s.sup.Context()); err != nil {
		s.log.Debug("sweep skipped", logx.Err(err))
	} else {
		s.log.Debug("sweep done", logx.Int("reconciled", n))
	}
}

func (s *Service) cronPoll() {
	_ = s.WeatherPollTick(s.sup.Context())
}

// run is the event loop. Every closure posted to ops runs here, one at a time.
func (s *Service) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case op := <-s.ops:
			op()
		}
	}
}

// post hands op to the loop without waiting for it to run. It reports false
// once the service is stopped.
func (s *Service) post(op func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ops <- op:
		return true
	case <-s.done:
		return false
	}
}

// do runs fn on the loop and waits for it to finish.
func (s *Service) do(ctx context.Context, fn func()) error {
	if s.state.Load() != 1 {
		return ErrStopped
	}
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.ops <- op:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) report(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clk.Now(), Data: data})
}
