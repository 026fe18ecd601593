// Package seed loads demo data in development so a fresh sign-in has
// something to look at: two demo senders and a handful of open deliveries.
package seed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/swiftdrop/swiftdrop-backend/internal/deliveries"
	"github.com/swiftdrop/swiftdrop-backend/internal/users"
	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	"github.com/swiftdrop/swiftdrop-backend/pkg/enums"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
)

// Seeder inserts the demo dataset once per process.
type Seeder struct {
	store *docstore.Store
	log   *logger.Logger
	once  sync.Once
	err   error
}

// New builds a seeder over the document store.
func New(store *docstore.Store, log *logger.Logger) (*Seeder, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Seeder{store: store, log: log}, nil
}

// Ensure inserts the demo rows if they are not there yet. Called from the
// auth flow on sign-up and auto-provision, so repeated calls must be cheap
// and idempotent.
func (s *Seeder) Ensure(ctx context.Context) error {
	s.once.Do(func() { s.err = s.load(ctx) })
	return s.err
}

type demoDelivery struct {
	senderID    string
	pickup      string
	dropoff     string
	description string
	size        enums.PackageSize
	price       float64
	fee         float64
	payout      float64
	age         time.Duration
}

func (s *Seeder) load(ctx context.Context) error {
	demoSenders := []docstore.Document{
		{
			"id":               "demo-sender-1",
			"email":            "alice@example.com",
			"full_name":        "Alice Johnson",
			"phone":            "+1 555-0101",
			"role":             enums.UserRoleSender.String(),
			"courier_verified": false,
		},
		{
			"id":               "demo-sender-2",
			"email":            "bob@example.com",
			"full_name":        "Bob Smith",
			"phone":            "+1 555-0102",
			"role":             enums.UserRoleSender.String(),
			"courier_verified": false,
		},
	}
	for _, sender := range demoSenders {
		if _, err := s.store.Table(users.TableName).Upsert(ctx, sender, "id"); err != nil {
			return fmt.Errorf("seeding demo sender: %w", err)
		}
	}

	demo := []demoDelivery{
		{
			senderID: "demo-sender-1",
			pickup:   "555 Broadway, Theater District", dropoff: "888 Park Ave, Upper East",
			description: "Documents - envelope", size: enums.PackageSizeSmall,
			price: 10.00, fee: 2.50, payout: 7.50, age: 30 * time.Minute,
		},
		{
			senderID: "demo-sender-1",
			pickup:   "123 Main Street, Downtown", dropoff: "456 Oak Avenue, Uptown",
			description: "Small electronics package", size: enums.PackageSizeSmall,
			price: 15.00, fee: 3.75, payout: 11.25, age: time.Hour,
		},
		{
			senderID: "demo-sender-2",
			pickup:   "789 Pine Road, Midtown", dropoff: "321 Elm Street, Westside",
			description: "Birthday gift - fragile", size: enums.PackageSizeMedium,
			price: 22.50, fee: 5.63, payout: 16.87, age: 2 * time.Hour,
		},
		{
			senderID: "demo-sender-2",
			pickup:   "100 Market Street, Financial District", dropoff: "200 Mission Street, SoMa",
			description: "Clothing order", size: enums.PackageSizeLarge,
			price: 30.00, fee: 7.50, payout: 22.50, age: 15 * time.Minute,
		},
	}
	now := time.Now().UTC()
	for _, d := range demo {
		_, err := s.store.Table(deliveries.TableName).Insert(ctx, docstore.Document{
			"sender_id":           d.senderID,
			"courier_id":          nil,
			"pickup_address":      d.pickup,
			"dropoff_address":     d.dropoff,
			"package_description": d.description,
			"package_size":        d.size.String(),
			"offered_price":       d.price,
			"platform_fee":        d.fee,
			"courier_payout":      d.payout,
			"status":              enums.DeliveryStatusPending.String(),
			"proof_photo_url":     nil,
			"delivered_at":        nil,
			"created_at":          now.Add(-d.age).Format(time.RFC3339Nano),
		})
		if err != nil {
			return fmt.Errorf("seeding demo delivery: %w", err)
		}
	}

	s.log.Info(ctx, "demo data seeded")
	return nil
}
