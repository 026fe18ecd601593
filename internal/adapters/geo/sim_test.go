package geo

import (
	"context"
	"testing"
	"time"

	"github.com/swiftdrop/swiftdrop-backend/pkg/config"
)

func simConfig() config.GeoConfig {
	return config.GeoConfig{SimSeedLatitude: 40.7128, SimSeedLongitude: -74.0060}
}

func TestGeocodeIsDeterministic(t *testing.T) {
	sim := NewSim(simConfig())
	ctx := context.Background()

	lat1, lng1, err := sim.Geocode(ctx, "1 Main St")
	if err != nil {
		t.Fatalf("unexpected geocode error: %v", err)
	}
	lat2, lng2, err := sim.Geocode(ctx, "1 Main St")
	if err != nil {
		t.Fatalf("unexpected geocode error: %v", err)
	}
	if lat1 != lat2 || lng1 != lng2 {
		t.Fatal("same address must geocode to the same point")
	}

	other, _, err := sim.Geocode(ctx, "9 Elm Ave")
	if err != nil {
		t.Fatalf("unexpected geocode error: %v", err)
	}
	if other == lat1 {
		t.Fatal("distinct addresses should land on distinct points")
	}

	if _, _, err := sim.Geocode(ctx, ""); err == nil {
		t.Fatal("empty address must fail")
	}
}

func TestWatchDeliversAndStops(t *testing.T) {
	sim := NewSim(simConfig())
	ctx := context.Background()

	sub, err := sim.Watch(ctx, WatchOptions{Interval: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected watch error: %v", err)
	}

	select {
	case fix, ok := <-sub.Positions():
		if !ok {
			t.Fatal("positions closed before any fix")
		}
		if fix.Latitude == 0 || fix.Timestamp.IsZero() {
			t.Fatalf("implausible fix: %+v", fix)
		}
	case <-time.After(time.Second):
		t.Fatal("no position within a second")
	}

	sub.Stop()
	sub.Stop() // idempotent

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.Positions():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("positions channel must close after Stop")
		}
	}
}

func TestWatchHonorsContextCancel(t *testing.T) {
	sim := NewSim(simConfig())
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := sim.Watch(ctx, WatchOptions{Interval: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected watch error: %v", err)
	}
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.Positions():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("positions channel must close after context cancel")
		}
	}
}
