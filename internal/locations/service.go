package locations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/swiftdrop/swiftdrop-backend/internal/adapters/geo"
	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
)

// TableName is the live courier position table. One row per courier,
// overwritten in place; history is not retained.
const TableName = "courier_locations"

// CourierLocation is the latest known position of a courier.
type CourierLocation struct {
	CourierID string  `json:"courier_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Heading   float64 `json:"heading"`
	Speed     float64 `json:"speed"`
	UpdatedAt string  `json:"updated_at"`
}

// Service records courier positions and serves tracking reads.
type Service struct {
	store *docstore.Store
}

// NewService builds the location service over the document store.
func NewService(store *docstore.Store) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	return &Service{store: store}, nil
}

// Record upserts the courier's row. The conflict key is courier_id, so
// concurrent fixes for one courier can never fork into two rows.
func (s *Service) Record(ctx context.Context, courierID string, fix geo.Position) (*CourierLocation, error) {
	if strings.TrimSpace(courierID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "courier id is required")
	}
	doc, err := s.store.Table(TableName).Upsert(ctx, docstore.Document{
		"courier_id": courierID,
		"latitude":   fix.Latitude,
		"longitude":  fix.Longitude,
		"heading":    fix.Heading,
		"speed":      fix.Speed,
	}, "courier_id")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record location")
	}
	return fromDocument(doc), nil
}

// Latest returns the courier's current position; CodeNotFound when the
// courier has never reported one.
func (s *Service) Latest(ctx context.Context, courierID string) (*CourierLocation, error) {
	doc, err := s.store.Table(TableName).Eq("courier_id", courierID).One(ctx)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "no location reported")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fetch location")
	}
	return fromDocument(doc), nil
}

func fromDocument(doc docstore.Document) *CourierLocation {
	if doc == nil {
		return nil
	}
	return &CourierLocation{
		CourierID: doc.GetString("courier_id"),
		Latitude:  doc.GetFloat("latitude"),
		Longitude: doc.GetFloat("longitude"),
		Heading:   doc.GetFloat("heading"),
		Speed:     doc.GetFloat("speed"),
		UpdatedAt: doc.GetString("updated_at"),
	}
}
