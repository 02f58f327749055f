package config

import (
	"fmt"
	"net/url"
	"strings"

	logx "widgetd/pkg/logx"
)

var windUnits = map[string]bool{"": true, "kmh": true, "ms": true, "mph": true, "kn": true}

// Validate checks field formats that do not depend on other packages.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := ParseDurationField("scheduler.horizon", c.Scheduler.Horizon); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.fetch_timeout", c.Scheduler.FetchTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("weather.min_interval", c.Weather.MinInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("status.read_timeout", c.Status.ReadTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("status.write_timeout", c.Status.WriteTimeout); err != nil {
		return err
	}
	if !logx.ValidFormat(c.Logging.Format) {
		return fmt.Errorf("logging.format: unsupported %q", c.Logging.Format)
	}
	if c.Weather.RetryMax < 0 {
		return fmt.Errorf("weather.retry_max must be >= 0")
	}
	if !windUnits[strings.ToLower(strings.TrimSpace(c.Weather.WindSpeedUnit))] {
		return fmt.Errorf("weather.wind_speed_unit: unsupported %q", c.Weather.WindSpeedUnit)
	}
	if ep := strings.TrimSpace(c.Weather.Endpoint); ep != "" {
		u, err := url.Parse(ep)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("weather.endpoint: invalid url %q", ep)
		}
	}
	if l := c.Location; l != nil {
		if l.Latitude < -90 || l.Latitude > 90 {
			return fmt.Errorf("location.latitude %v out of range", l.Latitude)
		}
		if l.Longitude < -180 || l.Longitude > 180 {
			return fmt.Errorf("location.longitude %v out of range", l.Longitude)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "none", "memory", "file":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
	default:
		return fmt.Errorf("unknown storage.driver: %s", c.Storage.Driver)
	}
	return nil
}
