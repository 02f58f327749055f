package config

// Config is the on-disk daemon configuration (JSON or YAML).
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Weather   WeatherConfig   `json:"weather"`
	// Location is optional. Weather widgets stay hidden until it is set;
	// adding it on reload starts weather polling right away.
	Location *LocationConfig `json:"location,omitempty"`
	Storage  StorageConfig   `json:"storage"`
	Status   StatusConfig    `json:"status"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty"` // console | json
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls widget scheduling.
//
// Defaults (when fields are omitted/empty):
//   - horizon: "120h" (timers further out are left to the sweep)
//   - sweep: "@daily"
//   - fetch_timeout: "20s"
type SchedulerConfig struct {
	Horizon      string `json:"horizon,omitempty"`
	Sweep        string `json:"sweep,omitempty"`
	FetchTimeout string `json:"fetch_timeout,omitempty"`
}

// WeatherConfig controls the Open-Meteo source.
//
// Defaults:
//   - endpoint: https://api.open-meteo.com/v1/forecast
//   - poll_interval: "15m" (cron, HH:MM or Go duration)
//   - retry_max: 3
//   - wind_speed_unit: "mph"
//   - min_interval: "1m" between two upstream requests
type WeatherConfig struct {
	Enabled       bool   `json:"enabled"`
	Endpoint      string `json:"endpoint,omitempty"`
	PollInterval  string `json:"poll_interval,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	WindSpeedUnit string `json:"wind_speed_unit,omitempty"`
	MinInterval   string `json:"min_interval,omitempty"`
}

type LocationConfig struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// StorageConfig controls widget persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/widgets.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// StatusConfig controls the optional HTTP status endpoint (/healthz, /status,
// and /debug/pprof/ when pprof is set).
//
// Defaults:
//   - addr: "127.0.0.1:7070"
//   - read_timeout: "5s", write_timeout: "30s" (pprof profiles need time)
type StatusConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
}
