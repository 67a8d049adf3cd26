// Package geolocation tracks the device position reported by the rendering
// layer and answers proximity questions about it.
package geolocation

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gocomet/ride-realtime/pkg/clock"
	"github.com/gocomet/ride-realtime/pkg/errors"
)

const earthRadiusMeters = 6371000.0

// Position is one reported fix
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	At        time.Time `json:"at"`
}

// Source produces the current position on demand
type Source interface {
	Current(ctx context.Context) (Position, error)
}

// Distance returns the haversine distance between two points in meters
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// Within reports whether p lies within radius meters of (lat, lon)
func Within(p Position, lat, lon, radius float64) bool {
	return Distance(p.Latitude, p.Longitude, lat, lon) <= radius
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Tracker keeps the latest fix and fans it out to watchers
type Tracker struct {
	clock  clock.Clock
	maxAge time.Duration

	mu       sync.RWMutex
	last     *Position
	watchers map[int]func(Position)
	nextID   int
}

// NewTracker creates a tracker. Fixes older than maxAge are treated as
// unavailable; zero disables the check.
func NewTracker(c clock.Clock, maxAge time.Duration) *Tracker {
	return &Tracker{
		clock:    c,
		maxAge:   maxAge,
		watchers: make(map[int]func(Position)),
	}
}

// Update records a fix. A zero At is stamped with the current time.
func (t *Tracker) Update(p Position) {
	if p.At.IsZero() {
		p.At = t.clock.Now()
	}
	t.mu.Lock()
	t.last = &p
	watchers := make([]func(Position), 0, len(t.watchers))
	for _, w := range t.watchers {
		watchers = append(watchers, w)
	}
	t.mu.Unlock()

	for _, w := range watchers {
		w(p)
	}
}

// Current implements Source
func (t *Tracker) Current(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return Position{}, errors.ErrLocationUnavailable
	}
	if t.maxAge > 0 && t.clock.Now().Sub(t.last.At) > t.maxAge {
		return Position{}, errors.ErrLocationUnavailable
	}
	return *t.last, nil
}

// Watch registers fn for every future fix and returns a function removing it
func (t *Tracker) Watch(fn func(Position)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.watchers[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.watchers, id)
	}
}
