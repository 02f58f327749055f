package config

import (
	"sort"
	"strings"

	logx "widgetd/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and compact
// structured attrs describing their new values, for logging.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.Format != newCfg.Logging.Format ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.horizon", newCfg.Scheduler.Horizon),
			logx.String("scheduler.sweep", newCfg.Scheduler.Sweep),
			logx.String("scheduler.fetch_timeout", newCfg.Scheduler.FetchTimeout),
		)
	}

	if oldCfg.Weather != newCfg.Weather {
		changed = append(changed, "weather")
		attrs = append(attrs,
			logx.Bool("weather.enabled", newCfg.Weather.Enabled),
			logx.String("weather.poll_interval", newCfg.Weather.PollInterval),
			logx.Bool("weather.endpoint_set", strings.TrimSpace(newCfg.Weather.Endpoint) != ""),
		)
	}

	// Never log coordinates; only whether one is set.
	if LocationChanged(oldCfg, newCfg) {
		changed = append(changed, "location")
		attrs = append(attrs, logx.Bool("location.set", newCfg.Location != nil))
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	// Never log the token.
	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.Bool("status.enabled", newCfg.Status.Enabled),
			logx.String("status.addr", newCfg.Status.Addr),
			logx.Bool("status.pprof", newCfg.Status.Pprof),
			logx.Bool("status.token_set", strings.TrimSpace(newCfg.Status.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// LocationChanged reports whether the configured coordinate was added,
// removed or moved.
func LocationChanged(oldCfg, newCfg *Config) bool {
	o, n := oldCfg.Location, newCfg.Location
	if (o == nil) != (n == nil) {
		return true
	}
	return o != nil && *o != *n
}
