// Package location holds the host's last known coordinate.
package location

import (
	"fmt"
	"sync"
)

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinate) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", c.Longitude)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}

// Source reports the last known coordinate, if any.
type Source interface {
	LastKnown() (Coordinate, bool)
}

// Static is a Source fed from configuration. It starts empty unless given
// an initial coordinate and can be updated on config reload.
type Static struct {
	mu    sync.RWMutex
	coord Coordinate
	known bool
}

func NewStatic(initial *Coordinate) *Static {
	s := &Static{}
	if initial != nil {
		s.coord = *initial
		s.known = true
	}
	return s
}

func (s *Static) LastKnown() (Coordinate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coord, s.known
}

// Set stores c and reports whether it changed the known coordinate.
func (s *Static) Set(c Coordinate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := !s.known || s.coord != c
	s.coord = c
	s.known = true
	return changed
}

// Clear forgets the coordinate.
func (s *Static) Clear() {
	s.mu.Lock()
	s.known = false
	s.coord = Coordinate{}
	s.mu.Unlock()
}
