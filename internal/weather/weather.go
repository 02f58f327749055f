// Package weather classifies current conditions against a widget's weather
// rule and fetches condition snapshots for a coordinate.
package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"widgetd/internal/location"
)

var (
	ErrNoLocation  = errors.New("weather: location unavailable")
	ErrUnavailable = errors.New("weather: conditions unavailable")
	ErrUnknownKind = errors.New("weather: unknown rule")
)

// Kind is a weather rule a widget can react to.
type Kind string

const (
	Snowing Kind = "snowing"
	Raining Kind = "raining"
	Cloudy  Kind = "cloudy"
	Windy   Kind = "windy"
	Sunny   Kind = "sunny"
)

// Classifier thresholds. Probabilities and cover are fractions (0..1),
// wind speed is in the source's configured unit, radiation in W/m².
const (
	PrecipProbabilityThreshold = 0.2
	CloudCoverThreshold        = 0.4
	WindSpeedThreshold         = 20
	SolarRadiationThreshold    = 600
)

// Precipitation types reported in Conditions.PrecipTypes.
const (
	PrecipRain = "rain"
	PrecipSnow = "snow"
)

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

func (k Kind) Known() bool {
	switch k {
	case Snowing, Raining, Cloudy, Windy, Sunny:
		return true
	default:
		return false
	}
}

// Conditions is a point-in-time snapshot of the weather at a location.
type Conditions struct {
	PrecipProbability float64   `json:"precip_probability"`
	PrecipTypes       []string  `json:"precip_types,omitempty"`
	CloudCover        float64   `json:"cloud_cover"`
	WindSpeed         float64   `json:"wind_speed"`
	SolarRadiation    float64   `json:"solar_radiation"`
	ObservedAt        time.Time `json:"observed_at"`
}

func (c Conditions) hasPrecip(kind string) bool {
	for _, p := range c.PrecipTypes {
		if strings.EqualFold(p, kind) {
			return true
		}
	}
	return false
}

// ShouldBeOn reports whether a widget with the given rule is visible under c.
// Unknown rules are never visible.
func ShouldBeOn(c Conditions, rule Kind) bool {
	switch rule {
	case Snowing:
		return c.PrecipProbability > PrecipProbabilityThreshold && c.hasPrecip(PrecipSnow)
	case Raining:
		return c.PrecipProbability > PrecipProbabilityThreshold && c.hasPrecip(PrecipRain)
	case Cloudy:
		return c.CloudCover > CloudCoverThreshold
	case Windy:
		return c.WindSpeed > WindSpeedThreshold
	case Sunny:
		return c.SolarRadiation > SolarRadiationThreshold
	default:
		return false
	}
}

// Source fetches current conditions for a coordinate.
type Source interface {
	Fetch(ctx context.Context, loc location.Coordinate) (Conditions, error)
}
