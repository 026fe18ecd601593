package locations

import (
	"context"
	"fmt"
	"sync"

	"github.com/swiftdrop/swiftdrop-backend/internal/adapters/geo"
	"github.com/swiftdrop/swiftdrop-backend/pkg/config"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
)

// Tracker pipes a courier's watch subscription into the location table. One
// tracker per signed-in courier; Stop tears the watch down deterministically
// on sign-out.
type Tracker struct {
	courierID string
	svc       *Service
	adapter   geo.Adapter
	log       *logger.Logger
	cfg       config.GeoConfig

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartTracker requests permission and begins streaming the courier's
// position until Stop is called or the parent context ends.
func StartTracker(ctx context.Context, courierID string, svc *Service, adapter geo.Adapter, log *logger.Logger, cfg config.GeoConfig) (*Tracker, error) {
	if svc == nil || adapter == nil || log == nil {
		return nil, fmt.Errorf("service, adapter and logger are required")
	}
	granted, err := adapter.RequestPermission(ctx)
	if err != nil {
		return nil, fmt.Errorf("requesting location permission: %w", err)
	}
	if !granted {
		return nil, fmt.Errorf("location permission denied")
	}

	trackCtx, cancel := context.WithCancel(ctx)
	sub, err := adapter.Watch(trackCtx, geo.WatchOptions{
		Interval:     cfg.WatchInterval,
		MinDistanceM: cfg.MinDistanceM,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("starting location watch: %w", err)
	}

	t := &Tracker{
		courierID: courierID,
		svc:       svc,
		adapter:   adapter,
		log:       log,
		cfg:       cfg,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go t.run(trackCtx, sub)
	return t, nil
}

// Stop cancels the watch and waits for the pump goroutine to exit, so no
// write can land after Stop returns.
func (t *Tracker) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}

// Done closes when the tracker has fully wound down.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

func (t *Tracker) run(ctx context.Context, sub geo.Subscription) {
	defer close(t.done)
	defer sub.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-sub.Positions():
			if !ok {
				return
			}
			if _, err := t.svc.Record(ctx, t.courierID, fix); err != nil {
				if ctx.Err() != nil {
					return
				}
				t.log.Error(t.log.WithUserID(ctx, t.courierID), "recording location fix", err)
			}
		}
	}
}
