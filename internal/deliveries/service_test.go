package deliveries

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/swiftdrop/swiftdrop-backend/internal/users"
	"github.com/swiftdrop/swiftdrop-backend/pkg/config"
	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	"github.com/swiftdrop/swiftdrop-backend/pkg/enums"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
	"github.com/swiftdrop/swiftdrop-backend/pkg/storage/memory"
)

type fixedGeocoder struct{}

func (fixedGeocoder) Geocode(context.Context, string) (float64, float64, error) {
	return 40.7128, -74.0060, nil
}

type failingBucket struct{}

func (failingBucket) Upload(context.Context, string, []byte, string) (string, error) {
	return "", errors.New("bucket unavailable")
}
func (failingBucket) PublicURL(path string) string { return path }

type harness struct {
	svc      Service
	store    *docstore.Store
	profiles *users.Repository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := docstore.New()
	profiles := users.NewRepository(store)
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(store),
		Profiles: profiles,
		Bucket:   memory.NewBucket("swiftdrop-proofs"),
		Geocoder: fixedGeocoder{},
		Logger:   logger.New(logger.Options{Output: io.Discard}),
		Payments: config.PaymentsConfig{CommissionRate: 0.25},
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return &harness{svc: svc, store: store, profiles: profiles}
}

func (h *harness) courier(t *testing.T, id string) string {
	t.Helper()
	ctx := context.Background()
	if _, err := h.profiles.Create(ctx, id, id+"@example.com"); err != nil {
		t.Fatalf("unexpected profile create error: %v", err)
	}
	if _, err := h.profiles.UpsertProfile(ctx, id, docstore.Document{"role": enums.UserRoleCourier.String()}); err != nil {
		t.Fatalf("unexpected profile upsert error: %v", err)
	}
	if err := h.profiles.SetCourierVerified(ctx, id, true); err != nil {
		t.Fatalf("unexpected verify error: %v", err)
	}
	return id
}

func (h *harness) pending(t *testing.T, senderID string, price string) *Delivery {
	t.Helper()
	amount, err := decimal.NewFromString(price)
	if err != nil {
		t.Fatalf("bad price literal: %v", err)
	}
	d, err := h.svc.Create(context.Background(), senderID, CreateRequest{
		PickupAddress:      "1 Main St",
		DropoffAddress:     "9 Elm Ave",
		PackageDescription: "books",
		PackageSize:        "Medium",
		OfferedPrice:       amount,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return d
}

func TestCreateFreezesPayoutSplit(t *testing.T) {
	h := newHarness(t)

	d := h.pending(t, "sender-1", "20.00")
	if !d.PlatformFee.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("platform fee: want 5.00, got %s", d.PlatformFee)
	}
	if !d.CourierPayout.Equal(decimal.RequireFromString("15.00")) {
		t.Fatalf("courier payout: want 15.00, got %s", d.CourierPayout)
	}
	if d.Status != enums.DeliveryStatusPending || d.CourierID != nil {
		t.Fatalf("new deliveries start pending and unclaimed: %+v", d)
	}
	if !d.PlatformFee.Add(d.CourierPayout).Equal(d.OfferedPrice) {
		t.Fatal("fee and payout must sum to the offered price")
	}
	if d.PickupLat == nil || d.DropoffLng == nil {
		t.Fatal("geocoded coordinates should be attached when the geocoder succeeds")
	}
}

func TestCreateSplitSumsForAwkwardPrices(t *testing.T) {
	h := newHarness(t)

	for _, price := range []string{"0.01", "9.99", "13.37", "100.10"} {
		d := h.pending(t, "sender-1", price)
		if !d.PlatformFee.Add(d.CourierPayout).Equal(d.OfferedPrice) {
			t.Fatalf("price %s: fee %s + payout %s != %s", price, d.PlatformFee, d.CourierPayout, d.OfferedPrice)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, "sender-1", CreateRequest{
		PickupAddress:      "1 Main St",
		DropoffAddress:     "9 Elm Ave",
		PackageDescription: "books",
		PackageSize:        "Medium",
		OfferedPrice:       decimal.Zero,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("zero price must fail validation, got %v", err)
	}

	_, err = h.svc.Create(ctx, "sender-1", CreateRequest{
		PickupAddress:      "  ",
		DropoffAddress:     "9 Elm Ave",
		PackageDescription: "books",
		PackageSize:        "Medium",
		OfferedPrice:       decimal.RequireFromString("5"),
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("blank address must fail validation, got %v", err)
	}

	_, err = h.svc.Create(ctx, "sender-1", CreateRequest{
		PickupAddress:      "1 Main St",
		DropoffAddress:     "9 Elm Ave",
		PackageDescription: "books",
		PackageSize:        "Gigantic",
		OfferedPrice:       decimal.RequireFromString("5"),
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("unknown size must fail validation, got %v", err)
	}
}

func TestAcceptIsFirstComeFirstServed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	courierA := h.courier(t, "courier-a")
	courierB := h.courier(t, "courier-b")
	d := h.pending(t, "sender-1", "20.00")

	won, err := h.svc.Accept(ctx, d.ID, courierA)
	if err != nil {
		t.Fatalf("first accept must succeed: %v", err)
	}
	if won.Status != enums.DeliveryStatusAccepted || won.CourierID == nil || *won.CourierID != courierA {
		t.Fatalf("accept must assign the courier: %+v", won)
	}

	_, err = h.svc.Accept(ctx, d.ID, courierB)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("second accept must conflict, got %v", err)
	}

	unchanged, err := h.svc.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if *unchanged.CourierID != courierA {
		t.Fatal("losing accept must not disturb the winning assignment")
	}
}

func TestAcceptRaceHasExactlyOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const contenders = 16
	ids := make([]string, contenders)
	for i := range ids {
		ids[i] = h.courier(t, "courier-"+string(rune('a'+i)))
	}
	d := h.pending(t, "sender-1", "20.00")

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners, conflicts := 0, 0
	for _, courierID := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := h.svc.Accept(ctx, d.ID, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
				conflicts++
			default:
				t.Errorf("unexpected accept error: %v", err)
			}
		}(courierID)
	}
	wg.Wait()

	if winners != 1 || conflicts != contenders-1 {
		t.Fatalf("want exactly one winner, got %d winners and %d conflicts", winners, conflicts)
	}
}

func TestAcceptRequiresVerifiedCourier(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	d := h.pending(t, "sender-1", "20.00")

	if _, err := h.svc.Accept(ctx, d.ID, "ghost"); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("no profile must be forbidden, got %v", err)
	}

	if _, err := h.profiles.Create(ctx, "unverified", "u@example.com"); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := h.profiles.UpsertProfile(ctx, "unverified", docstore.Document{"role": enums.UserRoleCourier.String()}); err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	if _, err := h.svc.Accept(ctx, d.ID, "unverified"); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("unverified courier must be forbidden, got %v", err)
	}
}

func TestHappyPathProgression(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	courierID := h.courier(t, "courier-a")
	d := h.pending(t, "sender-1", "12.50")

	if _, err := h.svc.Accept(ctx, d.ID, courierID); err != nil {
		t.Fatalf("unexpected accept error: %v", err)
	}
	if _, err := h.svc.MarkPickedUp(ctx, d.ID, courierID); err != nil {
		t.Fatalf("unexpected pickup error: %v", err)
	}
	if _, err := h.svc.StartTransit(ctx, d.ID, courierID); err != nil {
		t.Fatalf("unexpected transit error: %v", err)
	}
	done, err := h.svc.Complete(ctx, d.ID, courierID, ProofPhoto{Data: []byte("jpeg-bytes")})
	if err != nil {
		t.Fatalf("unexpected complete error: %v", err)
	}
	if done.Status != enums.DeliveryStatusDelivered {
		t.Fatalf("want delivered, got %s", done.Status)
	}
	if done.ProofPhotoURL == nil || !strings.Contains(*done.ProofPhotoURL, d.ID) {
		t.Fatalf("proof photo url missing: %v", done.ProofPhotoURL)
	}
	if done.DeliveredAt == nil {
		t.Fatal("delivered_at must be stamped")
	}
}

func TestNoSkippingSteps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	courierID := h.courier(t, "courier-a")
	d := h.pending(t, "sender-1", "12.50")

	if _, err := h.svc.MarkPickedUp(ctx, d.ID, courierID); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("pickup before accept must conflict, got %v", err)
	}
	if _, err := h.svc.Accept(ctx, d.ID, courierID); err != nil {
		t.Fatalf("unexpected accept error: %v", err)
	}
	if _, err := h.svc.Complete(ctx, d.ID, courierID, ProofPhoto{Data: []byte("x")}); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("complete from accepted must conflict, got %v", err)
	}

	// Only the assigned courier may progress.
	other := h.courier(t, "courier-b")
	if _, err := h.svc.MarkPickedUp(ctx, d.ID, other); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("foreign courier must conflict, got %v", err)
	}
}

func TestCompleteWithoutPhotoFailsValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	courierID := h.courier(t, "courier-a")
	d := h.pending(t, "sender-1", "12.50")
	if _, err := h.svc.Accept(ctx, d.ID, courierID); err != nil {
		t.Fatalf("unexpected accept error: %v", err)
	}
	if _, err := h.svc.MarkPickedUp(ctx, d.ID, courierID); err != nil {
		t.Fatalf("unexpected pickup error: %v", err)
	}
	if _, err := h.svc.StartTransit(ctx, d.ID, courierID); err != nil {
		t.Fatalf("unexpected transit error: %v", err)
	}

	if _, err := h.svc.Complete(ctx, d.ID, courierID, ProofPhoto{}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("missing photo must fail validation, got %v", err)
	}
	current, err := h.svc.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if current.Status != enums.DeliveryStatusInTransit {
		t.Fatalf("failed completion must leave status in_transit, got %s", current.Status)
	}
}

func TestUploadFailureBlocksDeliveredTransition(t *testing.T) {
	store := docstore.New()
	profiles := users.NewRepository(store)
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(store),
		Profiles: profiles,
		Bucket:   failingBucket{},
		Logger:   logger.New(logger.Options{Output: io.Discard}),
		Payments: config.PaymentsConfig{CommissionRate: 0.25},
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	h := &harness{svc: svc, store: store, profiles: profiles}
	ctx := context.Background()

	courierID := h.courier(t, "courier-a")
	d := h.pending(t, "sender-1", "12.50")
	for _, step := range []func() (*Delivery, error){
		func() (*Delivery, error) { return svc.Accept(ctx, d.ID, courierID) },
		func() (*Delivery, error) { return svc.MarkPickedUp(ctx, d.ID, courierID) },
		func() (*Delivery, error) { return svc.StartTransit(ctx, d.ID, courierID) },
	} {
		if _, err := step(); err != nil {
			t.Fatalf("unexpected progression error: %v", err)
		}
	}

	if _, err := svc.Complete(ctx, d.ID, courierID, ProofPhoto{Data: []byte("x")}); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("upload failure must surface as dependency error, got %v", err)
	}
	current, err := svc.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if current.Status != enums.DeliveryStatusInTransit {
		t.Fatal("upload failure must block the delivered transition")
	}
}

func TestCancelOnlyWhilePending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	d := h.pending(t, "sender-1", "8.00")
	if _, err := h.svc.Cancel(ctx, d.ID, "someone-else"); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("non-owner cancel must fail, got %v", err)
	}
	cancelled, err := h.svc.Cancel(ctx, d.ID, "sender-1")
	if err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}
	if cancelled.Status != enums.DeliveryStatusCancelled {
		t.Fatalf("want cancelled, got %s", cancelled.Status)
	}

	courierID := h.courier(t, "courier-a")
	taken := h.pending(t, "sender-1", "8.00")
	if _, err := h.svc.Accept(ctx, taken.ID, courierID); err != nil {
		t.Fatalf("unexpected accept error: %v", err)
	}
	if _, err := h.svc.Cancel(ctx, taken.ID, "sender-1"); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("cancel after accept must conflict, got %v", err)
	}
}

func TestDisputeRestrictedToParties(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	courierID := h.courier(t, "courier-a")
	d := h.pending(t, "sender-1", "8.00")
	if _, err := h.svc.Accept(ctx, d.ID, courierID); err != nil {
		t.Fatalf("unexpected accept error: %v", err)
	}

	if _, err := h.svc.Dispute(ctx, d.ID, "bystander"); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("bystander dispute must be forbidden, got %v", err)
	}
	disputed, err := h.svc.Dispute(ctx, d.ID, courierID)
	if err != nil {
		t.Fatalf("unexpected dispute error: %v", err)
	}
	if disputed.Status != enums.DeliveryStatusDisputed {
		t.Fatalf("want disputed, got %s", disputed.Status)
	}
	// Disputed is absorbing.
	if _, err := h.svc.Dispute(ctx, d.ID, "sender-1"); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("disputing a settled delivery must conflict, got %v", err)
	}
}

func TestPartitionedViews(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	courierID := h.courier(t, "courier-a")
	active := h.pending(t, "sender-1", "10.00")
	done := h.pending(t, "sender-1", "10.00")
	open := h.pending(t, "sender-1", "10.00")

	for _, id := range []string{active.ID, done.ID} {
		if _, err := h.svc.Accept(ctx, id, courierID); err != nil {
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	for _, step := range []func() (*Delivery, error){
		func() (*Delivery, error) { return h.svc.MarkPickedUp(ctx, done.ID, courierID) },
		func() (*Delivery, error) { return h.svc.StartTransit(ctx, done.ID, courierID) },
		func() (*Delivery, error) {
			return h.svc.Complete(ctx, done.ID, courierID, ProofPhoto{Data: []byte("x")})
		},
	} {
		if _, err := step(); err != nil {
			t.Fatalf("unexpected progression error: %v", err)
		}
	}

	available, err := h.svc.Available(ctx)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(available) != 1 || available[0].ID != open.ID {
		t.Fatalf("available must hold only the unclaimed delivery: %+v", available)
	}

	courierActive, err := h.svc.ForCourier(ctx, courierID, PartitionActive)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(courierActive) != 1 || courierActive[0].ID != active.ID {
		t.Fatalf("courier active partition wrong: %+v", courierActive)
	}
	courierDone, err := h.svc.ForCourier(ctx, courierID, PartitionCompleted)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(courierDone) != 1 || courierDone[0].ID != done.ID {
		t.Fatalf("courier completed partition wrong: %+v", courierDone)
	}

	senderAll, err := h.svc.ForSender(ctx, "sender-1", PartitionAll)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(senderAll) != 3 {
		t.Fatalf("sender sees all three deliveries, got %d", len(senderAll))
	}

	if _, err := h.svc.ForSender(ctx, "sender-1", Partition("bogus")); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("unknown partition must fail validation, got %v", err)
	}
}

func TestGetExpandsCourier(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	courierID := h.courier(t, "courier-a")
	d := h.pending(t, "sender-1", "10.00")
	if _, err := h.svc.Accept(ctx, d.ID, courierID); err != nil {
		t.Fatalf("unexpected accept error: %v", err)
	}

	got, err := h.svc.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if got.Courier == nil || got.Courier.ID != courierID {
		t.Fatalf("courier row must be embedded: %+v", got.Courier)
	}
}

func TestWatchAvailableTracksClaims(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	courierID := h.courier(t, "courier-a")
	first := h.pending(t, "sender-1", "10.00")

	feed, err := h.svc.WatchAvailable(ctx)
	if err != nil {
		t.Fatalf("unexpected watch error: %v", err)
	}
	defer feed.Close()

	if snap := feed.Snapshot(); len(snap) != 1 || snap[0].ID != first.ID {
		t.Fatalf("initial snapshot wrong: %+v", snap)
	}

	second := h.pending(t, "sender-1", "11.00")
	snap := feed.Snapshot()
	if len(snap) != 2 || snap[0].ID != second.ID {
		t.Fatalf("insert must prepend the new delivery: %+v", snap)
	}

	if _, err := h.svc.Accept(ctx, second.ID, courierID); err != nil {
		t.Fatalf("unexpected accept error: %v", err)
	}
	snap = feed.Snapshot()
	if len(snap) != 1 || snap[0].ID != first.ID {
		t.Fatalf("claimed delivery must leave the feed: %+v", snap)
	}

	if _, err := h.svc.Cancel(ctx, first.ID, "sender-1"); err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}
	if snap := feed.Snapshot(); len(snap) != 0 {
		t.Fatalf("cancelled delivery must leave the feed: %+v", snap)
	}

	// Refresh reconciles against the store even with no events pending.
	if err := feed.Refresh(ctx); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if snap := feed.Snapshot(); len(snap) != 0 {
		t.Fatalf("refresh must agree with the store: %+v", snap)
	}

	feed.Close()
	orphan := h.pending(t, "sender-1", "12.00")
	if snap := feed.Snapshot(); len(snap) != 0 {
		t.Fatalf("closed feeds must stop tracking; saw %+v after %s", snap, orphan.ID)
	}
}
