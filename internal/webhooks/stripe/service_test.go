package stripewebhook

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stripe/stripe-go/v82"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
)

type fakeDeliveries struct {
	paid      map[string]string
	transfers map[string]string
	missing   bool
}

func (f *fakeDeliveries) MarkPaid(_ context.Context, deliveryID, intentID string) error {
	if f.missing {
		return pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
	}
	f.paid[deliveryID] = intentID
	return nil
}

func (f *fakeDeliveries) SetStripeTransferReference(_ context.Context, deliveryID, transferID string) error {
	if f.missing {
		return pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
	}
	f.transfers[deliveryID] = transferID
	return nil
}

type fakeUsers struct {
	confirmed []string
}

func (f *fakeUsers) ConfirmStripeAccount(_ context.Context, accountID string) error {
	f.confirmed = append(f.confirmed, accountID)
	return nil
}

func newTestService(t *testing.T, deliveries *fakeDeliveries, users *fakeUsers) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Deliveries: deliveries,
		Users:      users,
		Logger:     logger.New(logger.Options{Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func event(t *testing.T, eventType stripe.EventType, object any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	return &stripe.Event{Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func TestPaymentIntentSucceededMarksDeliveryPaid(t *testing.T) {
	deliveries := &fakeDeliveries{paid: map[string]string{}, transfers: map[string]string{}}
	svc := newTestService(t, deliveries, &fakeUsers{})

	err := svc.HandleEvent(context.Background(), event(t, stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id":       "pi_123",
		"metadata": map[string]string{"delivery_id": "d-1"},
	}))
	if err != nil {
		t.Fatalf("unexpected handle error: %v", err)
	}
	if deliveries.paid["d-1"] != "pi_123" {
		t.Fatalf("payment not recorded: %+v", deliveries.paid)
	}
}

func TestPaymentIntentWithoutCorrelationIsAcked(t *testing.T) {
	deliveries := &fakeDeliveries{paid: map[string]string{}, transfers: map[string]string{}}
	svc := newTestService(t, deliveries, &fakeUsers{})

	err := svc.HandleEvent(context.Background(), event(t, stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id": "pi_123",
	}))
	if err != nil {
		t.Fatalf("uncorrelated events are acknowledged, got %v", err)
	}
	if len(deliveries.paid) != 0 {
		t.Fatal("nothing should be recorded without a delivery id")
	}
}

func TestPaymentIntentForUnknownDeliveryIsAcked(t *testing.T) {
	deliveries := &fakeDeliveries{missing: true}
	svc := newTestService(t, deliveries, &fakeUsers{})

	err := svc.HandleEvent(context.Background(), event(t, stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id":       "pi_123",
		"metadata": map[string]string{"delivery_id": "gone"},
	}))
	if err != nil {
		t.Fatalf("replays for purged rows are acknowledged, got %v", err)
	}
}

func TestAccountUpdatedConfirmsOnlyWhenFullyEnabled(t *testing.T) {
	users := &fakeUsers{}
	svc := newTestService(t, &fakeDeliveries{}, users)
	ctx := context.Background()

	err := svc.HandleEvent(ctx, event(t, stripe.EventTypeAccountUpdated, map[string]any{
		"id":              "acct_1",
		"charges_enabled": true,
		"payouts_enabled": false,
	}))
	if err != nil {
		t.Fatalf("unexpected handle error: %v", err)
	}
	if len(users.confirmed) != 0 {
		t.Fatal("half-enabled accounts must not be confirmed")
	}

	err = svc.HandleEvent(ctx, event(t, stripe.EventTypeAccountUpdated, map[string]any{
		"id":              "acct_1",
		"charges_enabled": true,
		"payouts_enabled": true,
	}))
	if err != nil {
		t.Fatalf("unexpected handle error: %v", err)
	}
	if len(users.confirmed) != 1 || users.confirmed[0] != "acct_1" {
		t.Fatalf("account not confirmed: %+v", users.confirmed)
	}
}

func TestTransferCreatedRecordsReference(t *testing.T) {
	deliveries := &fakeDeliveries{paid: map[string]string{}, transfers: map[string]string{}}
	svc := newTestService(t, deliveries, &fakeUsers{})

	err := svc.HandleEvent(context.Background(), event(t, stripe.EventTypeTransferCreated, map[string]any{
		"id":       "tr_9",
		"metadata": map[string]string{"delivery_id": "d-2"},
	}))
	if err != nil {
		t.Fatalf("unexpected handle error: %v", err)
	}
	if deliveries.transfers["d-2"] != "tr_9" {
		t.Fatalf("transfer not recorded: %+v", deliveries.transfers)
	}
}

func TestUnhandledEventTypesAreIgnored(t *testing.T) {
	deliveries := &fakeDeliveries{paid: map[string]string{}, transfers: map[string]string{}}
	svc := newTestService(t, deliveries, &fakeUsers{})

	err := svc.HandleEvent(context.Background(), event(t, "charge.refunded", map[string]any{"id": "ch_1"}))
	if err != nil {
		t.Fatalf("unhandled types are acknowledged, got %v", err)
	}

	if err := svc.HandleEvent(context.Background(), nil); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("nil events must fail validation, got %v", err)
	}
}
