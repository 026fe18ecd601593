package deliveries

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/swiftdrop/swiftdrop-backend/internal/users"
	"github.com/swiftdrop/swiftdrop-backend/pkg/config"
	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	"github.com/swiftdrop/swiftdrop-backend/pkg/enums"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
	"github.com/swiftdrop/swiftdrop-backend/pkg/storage"
)

// Service defines the behavior needed by the deliveries controller.
type Service interface {
	Create(ctx context.Context, senderID string, req CreateRequest) (*Delivery, error)
	Get(ctx context.Context, id string) (*Delivery, error)
	Available(ctx context.Context) ([]*Delivery, error)
	ForCourier(ctx context.Context, courierID string, partition Partition) ([]*Delivery, error)
	ForSender(ctx context.Context, senderID string, partition Partition) ([]*Delivery, error)
	Accept(ctx context.Context, deliveryID, courierID string) (*Delivery, error)
	MarkPickedUp(ctx context.Context, deliveryID, courierID string) (*Delivery, error)
	StartTransit(ctx context.Context, deliveryID, courierID string) (*Delivery, error)
	Complete(ctx context.Context, deliveryID, courierID string, photo ProofPhoto) (*Delivery, error)
	Cancel(ctx context.Context, deliveryID, senderID string) (*Delivery, error)
	Dispute(ctx context.Context, deliveryID, actorID string) (*Delivery, error)
	Earnings(ctx context.Context, courierID string) (*EarningsSummary, error)
	Stats(ctx context.Context) (*PlatformStats, error)
	WatchAvailable(ctx context.Context) (*AvailableFeed, error)
}

type service struct {
	repo     deliveryRepository
	profiles profileReader
	bucket   storage.Bucket
	geocode  geocoder
	log      *logger.Logger
	rate     decimal.Decimal
}

type deliveryRepository interface {
	Create(ctx context.Context, d *Delivery) (*Delivery, error)
	Get(ctx context.Context, id string) (*Delivery, error)
	Available(ctx context.Context) ([]*Delivery, error)
	All(ctx context.Context) ([]*Delivery, error)
	ForCourier(ctx context.Context, courierID string, statuses ...enums.DeliveryStatus) ([]*Delivery, error)
	ForSender(ctx context.Context, senderID string, statuses ...enums.DeliveryStatus) ([]*Delivery, error)
	Claim(ctx context.Context, deliveryID, courierID string) (*Delivery, error)
	Advance(ctx context.Context, deliveryID, courierID string, from, to enums.DeliveryStatus, extra docstore.Document) (*Delivery, error)
	CancelBySender(ctx context.Context, deliveryID, senderID string) (*Delivery, error)
	MarkDisputed(ctx context.Context, deliveryID string) (*Delivery, error)
	Store() *docstore.Store
}

type profileReader interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
}

// geocoder resolves a street address to coordinates. Geocoding is best
// effort: a failure never blocks delivery creation.
type geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
}

// ServiceParams bundles the dependencies required to build the service.
type ServiceParams struct {
	Repo     deliveryRepository
	Profiles profileReader
	Bucket   storage.Bucket
	Geocoder geocoder
	Logger   *logger.Logger
	Payments config.PaymentsConfig
}

// NewService constructs the delivery lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile reader is required")
	}
	if params.Bucket == nil {
		return nil, fmt.Errorf("storage bucket is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	rate := decimal.NewFromFloat(params.Payments.CommissionRate)
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("commission rate must be in [0, 1), got %s", rate)
	}
	return &service{
		repo:     params.Repo,
		profiles: params.Profiles,
		bucket:   params.Bucket,
		geocode:  params.Geocoder,
		log:      params.Logger,
		rate:     rate,
	}, nil
}

// Create validates the posting, freezes the money split, and inserts the
// delivery as pending with no courier.
func (s *service) Create(ctx context.Context, senderID string, req CreateRequest) (*Delivery, error) {
	if strings.TrimSpace(senderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no active session")
	}
	if strings.TrimSpace(req.PickupAddress) == "" || strings.TrimSpace(req.DropoffAddress) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup and dropoff addresses are required")
	}
	size, err := enums.ParsePackageSize(req.PackageSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid package size")
	}
	price := req.OfferedPrice.Round(2)
	if !price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offered price must be positive")
	}

	// Frozen at creation; nothing downstream recomputes the split.
	fee := price.Mul(s.rate).Round(2)
	payout := price.Sub(fee)

	d := &Delivery{
		SenderID:           senderID,
		PickupAddress:      strings.TrimSpace(req.PickupAddress),
		DropoffAddress:     strings.TrimSpace(req.DropoffAddress),
		PackageDescription: strings.TrimSpace(req.PackageDescription),
		PackageSize:        size,
		OfferedPrice:       price,
		PlatformFee:        fee,
		CourierPayout:      payout,
	}
	s.resolveCoordinates(ctx, d)

	created, err := s.repo.Create(ctx, d)
	if err != nil {
		return nil, err
	}
	s.log.Info(s.log.WithDeliveryID(ctx, created.ID), "delivery created")
	return created, nil
}

func (s *service) Get(ctx context.Context, id string) (*Delivery, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) Available(ctx context.Context) ([]*Delivery, error) {
	return s.repo.Available(ctx)
}

func (s *service) ForCourier(ctx context.Context, courierID string, partition Partition) ([]*Delivery, error) {
	switch partition {
	case PartitionActive:
		return s.repo.ForCourier(ctx, courierID,
			enums.DeliveryStatusAccepted, enums.DeliveryStatusPickedUp, enums.DeliveryStatusInTransit)
	case PartitionCompleted:
		return s.repo.ForCourier(ctx, courierID, enums.DeliveryStatusDelivered)
	case PartitionAll, "":
		return s.repo.ForCourier(ctx, courierID)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown partition %q", partition))
	}
}

func (s *service) ForSender(ctx context.Context, senderID string, partition Partition) ([]*Delivery, error) {
	switch partition {
	case PartitionActive:
		return s.repo.ForSender(ctx, senderID,
			enums.DeliveryStatusPending, enums.DeliveryStatusAccepted,
			enums.DeliveryStatusPickedUp, enums.DeliveryStatusInTransit)
	case PartitionCompleted:
		return s.repo.ForSender(ctx, senderID, enums.DeliveryStatusDelivered)
	case PartitionCancelled:
		return s.repo.ForSender(ctx, senderID, enums.DeliveryStatusCancelled)
	case PartitionAll, "":
		return s.repo.ForSender(ctx, senderID)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown partition %q", partition))
	}
}

// Accept claims a pending delivery for the courier. Losing the race comes
// back as CodeConflict so clients can say "delivery already taken" instead
// of retrying.
func (s *service) Accept(ctx context.Context, deliveryID, courierID string) (*Delivery, error) {
	if err := s.requireVerifiedCourier(ctx, courierID); err != nil {
		return nil, err
	}
	claimed, err := s.repo.Claim(ctx, deliveryID, courierID)
	if err != nil {
		return nil, err
	}
	s.log.Info(s.log.WithDeliveryID(s.log.WithUserID(ctx, courierID), deliveryID), "delivery accepted")
	return claimed, nil
}

func (s *service) MarkPickedUp(ctx context.Context, deliveryID, courierID string) (*Delivery, error) {
	return s.repo.Advance(ctx, deliveryID, courierID,
		enums.DeliveryStatusAccepted, enums.DeliveryStatusPickedUp, nil)
}

func (s *service) StartTransit(ctx context.Context, deliveryID, courierID string) (*Delivery, error) {
	return s.repo.Advance(ctx, deliveryID, courierID,
		enums.DeliveryStatusPickedUp, enums.DeliveryStatusInTransit, nil)
}

// Complete uploads the proof photo and then flips the status. The upload
// happens first so a storage failure leaves the delivery in_transit instead
// of delivered-without-proof.
func (s *service) Complete(ctx context.Context, deliveryID, courierID string, photo ProofPhoto) (*Delivery, error) {
	if len(photo.Data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proof photo is required")
	}
	contentType := photo.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}

	path := fmt.Sprintf("proofs/%s/%d.jpg", deliveryID, time.Now().UTC().UnixNano())
	stored, err := s.bucket.Upload(ctx, path, photo.Data, contentType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload proof photo")
	}

	delivered, err := s.repo.Advance(ctx, deliveryID, courierID,
		enums.DeliveryStatusInTransit, enums.DeliveryStatusDelivered, docstore.Document{
			"proof_photo_url": s.bucket.PublicURL(stored),
			"delivered_at":    time.Now().UTC().Format(time.RFC3339Nano),
		})
	if err != nil {
		return nil, err
	}
	s.log.Info(s.log.WithDeliveryID(ctx, deliveryID), "delivery completed")
	return delivered, nil
}

func (s *service) Cancel(ctx context.Context, deliveryID, senderID string) (*Delivery, error) {
	return s.repo.CancelBySender(ctx, deliveryID, senderID)
}

// Dispute flips the delivery into the absorbing disputed state. Either party
// may raise it; resolution is a moderation concern outside this flow.
func (s *service) Dispute(ctx context.Context, deliveryID, actorID string) (*Delivery, error) {
	current, err := s.repo.Get(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	isSender := current.SenderID == actorID
	isCourier := current.CourierID != nil && *current.CourierID == actorID
	if !isSender && !isCourier {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the sender or assigned courier may dispute")
	}
	disputed, err := s.repo.MarkDisputed(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	s.log.Warn(s.log.WithDeliveryID(s.log.WithUserID(ctx, actorID), deliveryID), "delivery disputed")
	return disputed, nil
}

func (s *service) requireVerifiedCourier(ctx context.Context, courierID string) error {
	profile, err := s.profiles.FindByID(ctx, courierID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "complete your courier profile first")
		}
		return err
	}
	if !profile.Role.CanCourier() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "courier role required")
	}
	if !profile.CourierVerified {
		return pkgerrors.New(pkgerrors.CodeForbidden, "courier verification required")
	}
	return nil
}

func (s *service) resolveCoordinates(ctx context.Context, d *Delivery) {
	if s.geocode == nil {
		return
	}
	if lat, lng, err := s.geocode.Geocode(ctx, d.PickupAddress); err == nil {
		d.PickupLat, d.PickupLng = &lat, &lng
	} else {
		s.log.Warn(ctx, "pickup geocoding failed")
	}
	if lat, lng, err := s.geocode.Geocode(ctx, d.DropoffAddress); err == nil {
		d.DropoffLat, d.DropoffLng = &lat, &lng
	} else {
		s.log.Warn(ctx, "dropoff geocoding failed")
	}
}
