package eventbus

import "time"

// Event types published by the scheduler.
const (
	TypeWidgetShown   = "widget.shown"
	TypeWidgetHidden  = "widget.hidden"
	TypeWidgetExpired = "widget.expired"
	TypeWidgetRemoved = "widget.removed"
	TypeWeatherPolled = "weather.polled"
)

// WidgetEvent is the Data of every widget.* event.
type WidgetEvent struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// NextWake is the armed deadline after the transition, zero if none.
	NextWake time.Time `json:"next_wake,omitempty"`
}

// WeatherEvent is the Data of weather.polled.
type WeatherEvent struct {
	OK         bool      `json:"ok"`
	ObservedAt time.Time `json:"observed_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}
