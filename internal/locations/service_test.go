package locations

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/swiftdrop/swiftdrop-backend/internal/adapters/geo"
	"github.com/swiftdrop/swiftdrop-backend/pkg/config"
	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
)

func newService(t *testing.T) (*Service, *docstore.Store) {
	t.Helper()
	store := docstore.New()
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc, store
}

func TestRecordKeepsSingleRowPerCourier(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	first, err := svc.Record(ctx, "courier-1", geo.Position{Latitude: 40.1, Longitude: -74.1})
	if err != nil {
		t.Fatalf("unexpected record error: %v", err)
	}
	second, err := svc.Record(ctx, "courier-1", geo.Position{Latitude: 40.2, Longitude: -74.2, Speed: 9})
	if err != nil {
		t.Fatalf("unexpected record error: %v", err)
	}
	if first.CourierID != second.CourierID {
		t.Fatal("both fixes belong to the same courier row")
	}

	rows, err := store.Table(TableName).Eq("courier_id", "courier-1").All(ctx)
	if err != nil {
		t.Fatalf("unexpected query error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("continuous fixes must overwrite one row, got %d", len(rows))
	}

	latest, err := svc.Latest(ctx, "courier-1")
	if err != nil {
		t.Fatalf("unexpected latest error: %v", err)
	}
	if latest.Latitude != 40.2 || latest.Speed != 9 {
		t.Fatalf("latest must reflect the newest fix: %+v", latest)
	}
}

func TestLatestForUnknownCourierIsNotFound(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Latest(context.Background(), "never-reported")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not-found code, got %v", err)
	}
}

func TestTrackerWritesAndStopsCleanly(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	log := logger.New(logger.Options{Output: io.Discard})
	sim := geo.NewSim(config.GeoConfig{SimSeedLatitude: 40.7, SimSeedLongitude: -74.0})

	tracker, err := StartTracker(ctx, "courier-1", svc, sim, log, config.GeoConfig{
		WatchInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected tracker error: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		if _, err := svc.Latest(ctx, "courier-1"); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("tracker never recorded a fix")
		case <-time.After(time.Millisecond):
		}
	}

	tracker.Stop()
	select {
	case <-tracker.Done():
	default:
		t.Fatal("Stop must not return before the pump goroutine exits")
	}

	// No writes after Stop.
	before, err := svc.Latest(ctx, "courier-1")
	if err != nil {
		t.Fatalf("unexpected latest error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	after, err := svc.Latest(ctx, "courier-1")
	if err != nil {
		t.Fatalf("unexpected latest error: %v", err)
	}
	if before.UpdatedAt != after.UpdatedAt {
		t.Fatal("tracker kept writing after Stop")
	}
}

func TestTrackerStopsWithParentContext(t *testing.T) {
	svc, _ := newService(t)
	log := logger.New(logger.Options{Output: io.Discard})
	sim := geo.NewSim(config.GeoConfig{SimSeedLatitude: 40.7, SimSeedLongitude: -74.0})

	ctx, cancel := context.WithCancel(context.Background())
	tracker, err := StartTracker(ctx, "courier-1", svc, sim, log, config.GeoConfig{
		WatchInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected tracker error: %v", err)
	}

	cancel()
	select {
	case <-tracker.Done():
	case <-time.After(time.Second):
		t.Fatal("tracker must wind down when the parent context ends")
	}
}
