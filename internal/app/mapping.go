package app

import (
	"fmt"
	"strings"
	"time"

	"widgetd/internal/config"
	"widgetd/internal/location"
	"widgetd/internal/observability/status"
	"widgetd/internal/scheduler"
	"widgetd/internal/storage"
	"widgetd/internal/weather"
	logx "widgetd/pkg/logx"
)

const (
	defaultStorePath   = "./data/widgets.json"
	defaultPoll        = "15m"
	defaultMinInterval = time.Minute
	defaultBusyTimeout = time.Second
	defaultStatusRead  = 5 * time.Second
	defaultStatusWrite = 30 * time.Second
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Format:  cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorageConfig returns enabled=false for driver "" or "none".
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = defaultStorePath
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "memory":
		return storage.Config{Driver: "memory", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, defaultBusyTimeout)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// OpenStore opens the configured store. A disabled store falls back to the
// in-memory driver when allowMemory is set, otherwise storage.ErrDisabled
// is returned.
func OpenStore(cfg *config.Config, log logx.Logger, allowMemory bool) (storage.Store, error) {
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		if !allowMemory {
			return nil, storage.ErrDisabled
		}
		log.Warn("storage disabled; widgets are kept in memory only")
		sc = storage.Config{Driver: "memory"}
	}
	st, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	log.Info("storage enabled", logx.String("driver", sc.Driver))
	return st, nil
}

func mapSchedulerConfig(cfg *config.Config, weatherOn bool) (scheduler.Config, error) {
	horizon, err := config.ParseDurationField("scheduler.horizon", cfg.Scheduler.Horizon)
	if err != nil {
		return scheduler.Config{}, err
	}
	fetch, err := config.ParseDurationField("scheduler.fetch_timeout", cfg.Scheduler.FetchTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	sc := scheduler.Config{
		Horizon:      horizon,
		Sweep:        strings.TrimSpace(cfg.Scheduler.Sweep),
		FetchTimeout: fetch,
	}
	if weatherOn {
		sc.WeatherPoll = strings.TrimSpace(cfg.Weather.PollInterval)
		if sc.WeatherPoll == "" {
			sc.WeatherPoll = defaultPoll
		}
	}
	return sc, nil
}

func mapWeatherConfig(cfg *config.Config) (weather.HTTPConfig, error) {
	minInterval, err := config.ParseDurationOrDefault("weather.min_interval", cfg.Weather.MinInterval, defaultMinInterval)
	if err != nil {
		return weather.HTTPConfig{}, err
	}
	timeout, err := config.ParseDurationField("scheduler.fetch_timeout", cfg.Scheduler.FetchTimeout)
	if err != nil {
		return weather.HTTPConfig{}, err
	}
	return weather.HTTPConfig{
		Endpoint:      strings.TrimSpace(cfg.Weather.Endpoint),
		RetryMax:      cfg.Weather.RetryMax,
		Timeout:       timeout,
		WindSpeedUnit: strings.ToLower(strings.TrimSpace(cfg.Weather.WindSpeedUnit)),
		MinInterval:   minInterval,
	}, nil
}

func mapStatusConfig(cfg *config.Config) (status.Config, error) {
	sc := cfg.Status
	read, err := config.ParseDurationOrDefault("status.read_timeout", sc.ReadTimeout, defaultStatusRead)
	if err != nil {
		return status.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("status.write_timeout", sc.WriteTimeout, defaultStatusWrite)
	if err != nil {
		return status.Config{}, err
	}
	return status.Config{
		Enabled:       sc.Enabled,
		Addr:          strings.TrimSpace(sc.Addr),
		Token:         strings.TrimSpace(sc.Token),
		AllowInsecure: sc.AllowInsecure,
		Pprof:         sc.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
	}, nil
}

func mapLocation(cfg *config.Config) *location.Coordinate {
	if cfg.Location == nil {
		return nil
	}
	return &location.Coordinate{Latitude: cfg.Location.Latitude, Longitude: cfg.Location.Longitude}
}

// validate runs the checks a reload must pass before it is committed.
func validate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapWeatherConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStatusConfig(cfg); err != nil {
		return err
	}
	sc, err := mapSchedulerConfig(cfg, cfg.Weather.Enabled)
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}
