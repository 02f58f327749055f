package weather

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"widgetd/internal/location"
	logx "widgetd/pkg/logx"
)

const (
	DefaultEndpoint      = "https://api.open-meteo.com/v1/forecast"
	defaultRetryMax      = 3
	defaultTimeout       = 20 * time.Second
	defaultWindSpeedUnit = "mph"
	maxBodyBytes         = 1 << 20
)

var currentFields = []string{
	"precipitation_probability",
	"rain",
	"showers",
	"snowfall",
	"cloud_cover",
	"wind_speed_10m",
	"shortwave_radiation",
	"weather_code",
}

// HTTPConfig configures the Open-Meteo backed Source.
type HTTPConfig struct {
	Endpoint      string
	RetryMax      int
	Timeout       time.Duration // per fetch, including retries
	WindSpeedUnit string        // "mph" | "kmh" | "ms" | "kn"
	MinInterval   time.Duration // minimum spacing between upstream calls; 0 disables
}

// HTTPSource fetches current conditions over HTTP with retries.
type HTTPSource struct {
	cfg    HTTPConfig
	client *retryablehttp.Client
	lim    *rate.Limiter
	log    logx.Logger

	mu       sync.Mutex
	last     Conditions
	lastLoc  location.Coordinate
	haveLast bool
}

func NewHTTPSource(cfg HTTPConfig, log logx.Logger) *HTTPSource {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = defaultRetryMax
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.WindSpeedUnit) == "" {
		cfg.WindSpeedUnit = defaultWindSpeedUnit
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = leveledLogger{log: log}

	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinInterval > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	return &HTTPSource{cfg: cfg, client: client, lim: lim, log: log}
}

// Fetch returns the current conditions at loc. Calls closer together than
// MinInterval for the same coordinate reuse the previous snapshot.
func (s *HTTPSource) Fetch(ctx context.Context, loc location.Coordinate) (Conditions, error) {
	if !s.lim.Allow() {
		s.mu.Lock()
		last, lastLoc, ok := s.last, s.lastLoc, s.haveLast
		s.mu.Unlock()
		if ok && lastLoc == loc {
			return last, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	u, err := s.requestURL(loc)
	if err != nil {
		return Conditions{}, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Conditions{}, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return Conditions{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Conditions{}, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := gjson.GetBytes(body, "reason").String()
		return Conditions{}, fmt.Errorf("%w: status %d %s", ErrUnavailable, resp.StatusCode, reason)
	}

	c, err := parseCurrent(body)
	if err != nil {
		return Conditions{}, err
	}
	s.log.Debug("weather fetched",
		logx.String("loc", loc.String()),
		logx.Duration("took", time.Since(start)),
		logx.Float64("cloud_cover", c.CloudCover),
		logx.Float64("solar_radiation", c.SolarRadiation),
	)

	s.mu.Lock()
	s.last, s.lastLoc, s.haveLast = c, loc, true
	s.mu.Unlock()
	return c, nil
}

func (s *HTTPSource) requestURL(loc location.Coordinate) (string, error) {
	u, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("weather endpoint: %w", err)
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', 4, 64))
	q.Set("current", strings.Join(currentFields, ","))
	q.Set("wind_speed_unit", s.cfg.WindSpeedUnit)
	q.Set("timezone", "GMT")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseCurrent(body []byte) (Conditions, error) {
	if !gjson.ValidBytes(body) {
		return Conditions{}, fmt.Errorf("%w: invalid json", ErrUnavailable)
	}
	cur := gjson.GetBytes(body, "current")
	if !cur.Exists() {
		return Conditions{}, fmt.Errorf("%w: response has no current block", ErrUnavailable)
	}

	c := Conditions{
		PrecipProbability: cur.Get("precipitation_probability").Float() / 100,
		CloudCover:        cur.Get("cloud_cover").Float() / 100,
		WindSpeed:         cur.Get("wind_speed_10m").Float(),
		SolarRadiation:    cur.Get("shortwave_radiation").Float(),
	}
	code := int(cur.Get("weather_code").Int())
	if cur.Get("snowfall").Float() > 0 || isSnowCode(code) {
		c.PrecipTypes = append(c.PrecipTypes, PrecipSnow)
	}
	if cur.Get("rain").Float() > 0 || cur.Get("showers").Float() > 0 || isRainCode(code) {
		c.PrecipTypes = append(c.PrecipTypes, PrecipRain)
	}
	if ts, err := time.Parse("2006-01-02T15:04", cur.Get("time").String()); err == nil {
		c.ObservedAt = ts
	} else {
		c.ObservedAt = time.Now().UTC()
	}
	return c, nil
}

// WMO weather interpretation codes.
func isSnowCode(code int) bool {
	switch code {
	case 71, 73, 75, 77, 85, 86:
		return true
	}
	return false
}

func isRainCode(code int) bool {
	switch {
	case code >= 51 && code <= 67:
		return true
	case code >= 80 && code <= 82:
		return true
	case code >= 95 && code <= 99:
		return true
	}
	return false
}

// leveledLogger routes retryablehttp's retry chatter into logx at debug level
// and keeps its errors as warnings.
type leveledLogger struct{ log logx.Logger }

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Warn(msg, kvFields(kv)...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Debug(msg, kvFields(kv)...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Trace(msg, kvFields(kv)...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Debug(msg, kvFields(kv)...) }

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
