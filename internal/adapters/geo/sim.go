package geo

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/swiftdrop/swiftdrop-backend/pkg/config"
)

// Sim is a deterministic geolocation source that drifts around a seed
// coordinate. Geocoding hashes the address so the same input always lands on
// the same point near the seed.
type Sim struct {
	mu    sync.Mutex
	seed  Position
	step  int
	clock func() time.Time
}

// NewSim builds a simulator centered on the configured seed coordinate.
func NewSim(cfg config.GeoConfig) *Sim {
	return &Sim{
		seed: Position{
			Latitude:  cfg.SimSeedLatitude,
			Longitude: cfg.SimSeedLongitude,
		},
		clock: time.Now,
	}
}

// RequestPermission always grants in simulation.
func (s *Sim) RequestPermission(context.Context) (bool, error) {
	return true, nil
}

// Current returns the next point on the drift path.
func (s *Sim) Current(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(), nil
}

// Watch emits a fix per interval until the context ends or Stop is called.
func (s *Sim) Watch(ctx context.Context, opts WatchOptions) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}

	watchCtx, cancel := context.WithCancel(ctx)
	sub := &simSubscription{
		positions: make(chan Position),
		cancel:    cancel,
	}
	go func() {
		defer close(sub.positions)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				fix := s.advanceLocked()
				s.mu.Unlock()
				select {
				case sub.positions <- fix:
				case <-watchCtx.Done():
					return
				}
			}
		}
	}()
	return sub, nil
}

// Geocode maps the address onto a stable point near the seed coordinate.
func (s *Sim) Geocode(ctx context.Context, address string) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if address == "" {
		return 0, 0, fmt.Errorf("address is empty")
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(address))
	sum := h.Sum64()
	// Spread addresses across roughly a city-sized box.
	latOffset := (float64(sum%1000)/1000 - 0.5) * 0.1
	lngOffset := (float64((sum/1000)%1000)/1000 - 0.5) * 0.1
	return s.seed.Latitude + latOffset, s.seed.Longitude + lngOffset, nil
}

func (s *Sim) advanceLocked() Position {
	s.step++
	angle := float64(s.step) * math.Pi / 32
	return Position{
		Latitude:  s.seed.Latitude + 0.001*math.Sin(angle),
		Longitude: s.seed.Longitude + 0.001*math.Cos(angle),
		Heading:   math.Mod(angle*180/math.Pi, 360),
		Speed:     8.5,
		Timestamp: s.clock(),
	}
}

type simSubscription struct {
	positions chan Position
	cancel    context.CancelFunc
	once      sync.Once
}

func (s *simSubscription) Positions() <-chan Position {
	return s.positions
}

// Stop cancels the watch. Idempotent; the positions channel closes shortly
// after.
func (s *simSubscription) Stop() {
	s.once.Do(s.cancel)
}
