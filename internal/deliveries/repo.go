package deliveries

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/swiftdrop/swiftdrop-backend/internal/users"
	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	"github.com/swiftdrop/swiftdrop-backend/pkg/enums"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
)

// TableName is the delivery table in the document store.
const TableName = "deliveries"

// Delivery is the central entity: a package a sender wants moved and the
// courier lifecycle attached to it. Money fields are frozen at creation.
type Delivery struct {
	ID                 string               `json:"id"`
	SenderID           string               `json:"sender_id"`
	CourierID          *string              `json:"courier_id"`
	PickupAddress      string               `json:"pickup_address"`
	DropoffAddress     string               `json:"dropoff_address"`
	PickupLat          *float64             `json:"pickup_lat"`
	PickupLng          *float64             `json:"pickup_lng"`
	DropoffLat         *float64             `json:"dropoff_lat"`
	DropoffLng         *float64             `json:"dropoff_lng"`
	PackageDescription string               `json:"package_description"`
	PackageSize        enums.PackageSize    `json:"package_size"`
	OfferedPrice       decimal.Decimal      `json:"offered_price"`
	PlatformFee        decimal.Decimal      `json:"platform_fee"`
	CourierPayout      decimal.Decimal      `json:"courier_payout"`
	Status             enums.DeliveryStatus `json:"status"`
	ProofPhotoURL      *string              `json:"proof_photo_url"`
	DeliveredAt        *string              `json:"delivered_at"`
	CreatedAt          string               `json:"created_at"`
	UpdatedAt          string               `json:"updated_at"`

	// populated on demand via expansion
	Courier *users.User `json:"courier,omitempty"`
	Sender  *users.User `json:"sender,omitempty"`
}

// Repository persists deliveries and expresses every status transition as a
// guarded conditional update, so the store's single mutation lock is the
// serialization point for racing writers.
type Repository struct {
	store *docstore.Store
}

// NewRepository builds the repository over the document store.
func NewRepository(store *docstore.Store) *Repository {
	return &Repository{store: store}
}

// Store exposes the underlying document store for bus subscriptions.
func (r *Repository) Store() *docstore.Store {
	return r.store
}

// Create inserts a pending delivery with no courier assigned.
func (r *Repository) Create(ctx context.Context, d *Delivery) (*Delivery, error) {
	doc := docstore.Document{
		"sender_id":           d.SenderID,
		"courier_id":          nil,
		"pickup_address":      d.PickupAddress,
		"dropoff_address":     d.DropoffAddress,
		"pickup_lat":          floatOrNil(d.PickupLat),
		"pickup_lng":          floatOrNil(d.PickupLng),
		"dropoff_lat":         floatOrNil(d.DropoffLat),
		"dropoff_lng":         floatOrNil(d.DropoffLng),
		"package_description": d.PackageDescription,
		"package_size":        d.PackageSize.String(),
		"offered_price":       d.OfferedPrice.InexactFloat64(),
		"platform_fee":        d.PlatformFee.InexactFloat64(),
		"courier_payout":      d.CourierPayout.InexactFloat64(),
		"status":              enums.DeliveryStatusPending.String(),
		"proof_photo_url":     nil,
		"delivered_at":        nil,
	}
	stored, err := r.store.Table(TableName).Insert(ctx, doc)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create delivery")
	}
	return fromDocument(stored), nil
}

// Get resolves a delivery with its courier and sender rows embedded.
func (r *Repository) Get(ctx context.Context, id string) (*Delivery, error) {
	doc, err := r.store.Table(TableName).
		Eq("id", id).
		Expand("courier", users.TableName, "courier_id").
		Expand("sender", users.TableName, "sender_id").
		One(ctx)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "delivery not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fetch delivery")
	}
	return fromDocument(doc), nil
}

// Available lists pending deliveries with no courier, newest first.
func (r *Repository) Available(ctx context.Context) ([]*Delivery, error) {
	docs, err := r.store.Table(TableName).
		Eq("status", enums.DeliveryStatusPending.String()).
		IsNull("courier_id").
		OrderBy("created_at", false).
		All(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list available deliveries")
	}
	return fromDocuments(docs), nil
}

// All lists every delivery, newest first. Admin rollups read this.
func (r *Repository) All(ctx context.Context) ([]*Delivery, error) {
	docs, err := r.store.Table(TableName).OrderBy("created_at", false).All(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list deliveries")
	}
	return fromDocuments(docs), nil
}

// ForCourier lists deliveries assigned to the courier, newest first,
// optionally narrowed to a status subset.
func (r *Repository) ForCourier(ctx context.Context, courierID string, statuses ...enums.DeliveryStatus) ([]*Delivery, error) {
	q := r.store.Table(TableName).Eq("courier_id", courierID)
	if len(statuses) > 0 {
		q = q.In("status", statusValues(statuses)...)
	}
	docs, err := q.OrderBy("created_at", false).All(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list courier deliveries")
	}
	return fromDocuments(docs), nil
}

// ForSender lists deliveries created by the sender, newest first, optionally
// narrowed to a status subset.
func (r *Repository) ForSender(ctx context.Context, senderID string, statuses ...enums.DeliveryStatus) ([]*Delivery, error) {
	q := r.store.Table(TableName).Eq("sender_id", senderID)
	if len(statuses) > 0 {
		q = q.In("status", statusValues(statuses)...)
	}
	docs, err := q.OrderBy("created_at", false).
		Expand("courier", users.TableName, "courier_id").
		All(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list sender deliveries")
	}
	return fromDocuments(docs), nil
}

// Claim assigns the courier to a pending, unclaimed delivery. The courier_id
// null check runs inside the same mutation as the write, which is what keeps
// two racing couriers from both winning.
func (r *Repository) Claim(ctx context.Context, deliveryID, courierID string) (*Delivery, error) {
	doc, err := r.store.Table(TableName).
		Eq("id", deliveryID).
		Eq("status", enums.DeliveryStatusPending.String()).
		IsNull("courier_id").
		UpdateOne(ctx, docstore.Document{
			"courier_id": courierID,
			"status":     enums.DeliveryStatusAccepted.String(),
		})
	if err != nil {
		if errors.Is(err, docstore.ErrNoMatch) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "delivery already taken")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "accept delivery")
	}
	return fromDocument(doc), nil
}

// Advance moves the delivery from the expected status to the next one,
// guarded on the assigned courier. Extra fields are merged into the same
// mutation so proof data lands atomically with the status flip.
func (r *Repository) Advance(ctx context.Context, deliveryID, courierID string, from, to enums.DeliveryStatus, extra docstore.Document) (*Delivery, error) {
	partial := docstore.Document{"status": to.String()}
	for k, v := range extra {
		partial[k] = v
	}
	doc, err := r.store.Table(TableName).
		Eq("id", deliveryID).
		Eq("courier_id", courierID).
		Eq("status", from.String()).
		UpdateOne(ctx, partial)
	if err != nil {
		if errors.Is(err, docstore.ErrNoMatch) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err,
				fmt.Sprintf("delivery is not %s by this courier", from))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advance delivery")
	}
	return fromDocument(doc), nil
}

// CancelBySender marks a pending delivery cancelled, guarded on ownership.
func (r *Repository) CancelBySender(ctx context.Context, deliveryID, senderID string) (*Delivery, error) {
	doc, err := r.store.Table(TableName).
		Eq("id", deliveryID).
		Eq("sender_id", senderID).
		Eq("status", enums.DeliveryStatusPending.String()).
		UpdateOne(ctx, docstore.Document{"status": enums.DeliveryStatusCancelled.String()})
	if err != nil {
		if errors.Is(err, docstore.ErrNoMatch) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "delivery can no longer be cancelled")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel delivery")
	}
	return fromDocument(doc), nil
}

// MarkDisputed flips any non-terminal delivery into the disputed state.
func (r *Repository) MarkDisputed(ctx context.Context, deliveryID string) (*Delivery, error) {
	doc, err := r.store.Table(TableName).
		Eq("id", deliveryID).
		In("status", statusValues([]enums.DeliveryStatus{
			enums.DeliveryStatusPending,
			enums.DeliveryStatusAccepted,
			enums.DeliveryStatusPickedUp,
			enums.DeliveryStatusInTransit,
		})...).
		UpdateOne(ctx, docstore.Document{"status": enums.DeliveryStatusDisputed.String()})
	if err != nil {
		if errors.Is(err, docstore.ErrNoMatch) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "delivery is already settled")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "dispute delivery")
	}
	return fromDocument(doc), nil
}

// SetStripeTransferReference records the provider transfer id after payout.
func (r *Repository) SetStripeTransferReference(ctx context.Context, deliveryID, transferID string) error {
	_, err := r.store.Table(TableName).Eq("id", deliveryID).
		UpdateOne(ctx, docstore.Document{"stripe_transfer_id": transferID})
	if err != nil {
		if errors.Is(err, docstore.ErrNoMatch) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "delivery not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record transfer")
	}
	return nil
}

// MarkPaid records a successful payment intent against the delivery.
func (r *Repository) MarkPaid(ctx context.Context, deliveryID, paymentIntentID string) error {
	_, err := r.store.Table(TableName).Eq("id", deliveryID).
		UpdateOne(ctx, docstore.Document{
			"payment_status":           "paid",
			"stripe_payment_intent_id": paymentIntentID,
		})
	if err != nil {
		if errors.Is(err, docstore.ErrNoMatch) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "delivery not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment")
	}
	return nil
}

func statusValues(statuses []enums.DeliveryStatus) []any {
	values := make([]any, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, s.String())
	}
	return values
}

func floatOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func fromDocuments(docs []docstore.Document) []*Delivery {
	out := make([]*Delivery, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDocument(doc))
	}
	return out
}

func fromDocument(doc docstore.Document) *Delivery {
	if doc == nil {
		return nil
	}
	d := &Delivery{
		ID:                 doc.ID(),
		SenderID:           doc.GetString("sender_id"),
		PickupAddress:      doc.GetString("pickup_address"),
		DropoffAddress:     doc.GetString("dropoff_address"),
		PackageDescription: doc.GetString("package_description"),
		PackageSize:        enums.PackageSize(doc.GetString("package_size")),
		OfferedPrice:       decimal.NewFromFloat(doc.GetFloat("offered_price")),
		PlatformFee:        decimal.NewFromFloat(doc.GetFloat("platform_fee")),
		CourierPayout:      decimal.NewFromFloat(doc.GetFloat("courier_payout")),
		Status:             enums.DeliveryStatus(doc.GetString("status")),
		CreatedAt:          doc.GetString("created_at"),
		UpdatedAt:          doc.GetString("updated_at"),
	}
	if !doc.IsNull("courier_id") {
		id := doc.GetString("courier_id")
		d.CourierID = &id
	}
	if !doc.IsNull("proof_photo_url") {
		url := doc.GetString("proof_photo_url")
		d.ProofPhotoURL = &url
	}
	if !doc.IsNull("delivered_at") {
		at := doc.GetString("delivered_at")
		d.DeliveredAt = &at
	}
	d.PickupLat = optionalFloat(doc, "pickup_lat")
	d.PickupLng = optionalFloat(doc, "pickup_lng")
	d.DropoffLat = optionalFloat(doc, "dropoff_lat")
	d.DropoffLng = optionalFloat(doc, "dropoff_lng")
	if embedded, ok := doc["courier"].(docstore.Document); ok {
		d.Courier = users.FromDocument(embedded)
	}
	if embedded, ok := doc["sender"].(docstore.Document); ok {
		d.Sender = users.FromDocument(embedded)
	}
	return d
}

func optionalFloat(doc docstore.Document, field string) *float64 {
	if doc.IsNull(field) {
		return nil
	}
	f := doc.GetFloat(field)
	return &f
}
