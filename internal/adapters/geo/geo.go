// Package geo abstracts the device geolocation surface: one-shot position
// reads, continuous watches, and forward geocoding. The sim implementation
// backs development and tests; a real provider integration satisfies the
// same interface in the field.
package geo

import (
	"context"
	"time"
)

// Position is a single location fix.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Heading   float64   `json:"heading"`
	Speed     float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

// WatchOptions tune a continuous position watch.
type WatchOptions struct {
	Interval     time.Duration
	MinDistanceM float64
}

// Subscription is a running watch. Positions closes after Stop returns.
type Subscription interface {
	Positions() <-chan Position
	Stop()
}

// Adapter is the geolocation protocol consumed by the location tracker.
type Adapter interface {
	RequestPermission(ctx context.Context) (bool, error)
	Current(ctx context.Context) (Position, error)
	Watch(ctx context.Context, opts WatchOptions) (Subscription, error)
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
}
