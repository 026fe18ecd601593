// Package stripewebhook relays signed provider events into single-column
// updates on deliveries and users. Event types outside the handled set are
// acknowledged and dropped.
package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v82"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
)

type deliveryUpdater interface {
	MarkPaid(ctx context.Context, deliveryID, paymentIntentID string) error
	SetStripeTransferReference(ctx context.Context, deliveryID, transferID string) error
}

type accountConfirmer interface {
	ConfirmStripeAccount(ctx context.Context, accountID string) error
}

// ServiceParams bundles the dependencies required to build the relay.
type ServiceParams struct {
	Deliveries deliveryUpdater
	Users      accountConfirmer
	Logger     *logger.Logger
}

// Service applies verified webhook events to the store.
type Service struct {
	deliveries deliveryUpdater
	users      accountConfirmer
	log        *logger.Logger
}

// NewService constructs the webhook relay.
func NewService(params ServiceParams) (*Service, error) {
	if params.Deliveries == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "delivery updater required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "account confirmer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		deliveries: params.Deliveries,
		users:      params.Users,
		log:        params.Logger,
	}, nil
}

// HandleEvent is called only after signature verification succeeds.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		return s.recordPayment(ctx, &intent)
	case stripe.EventTypeAccountUpdated:
		var account stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &account); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode account event")
		}
		return s.confirmAccount(ctx, &account)
	case stripe.EventTypeTransferCreated:
		var transfer stripe.Transfer
		if err := json.Unmarshal(event.Data.Raw, &transfer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode transfer event")
		}
		return s.recordTransfer(ctx, &transfer)
	default:
		s.log.Debug(s.log.WithField(ctx, "event_type", string(event.Type)), "ignoring unhandled stripe event")
		return nil
	}
}

func (s *Service) recordPayment(ctx context.Context, intent *stripe.PaymentIntent) error {
	deliveryID := intent.Metadata["delivery_id"]
	if deliveryID == "" {
		s.log.Warn(s.log.WithField(ctx, "payment_intent", intent.ID), "payment intent without delivery correlation")
		return nil
	}
	err := s.deliveries.MarkPaid(ctx, deliveryID, intent.ID)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		// Likely a replay for a purged row; ack so the provider stops retrying.
		s.log.Warn(s.log.WithDeliveryID(ctx, deliveryID), "payment event for unknown delivery")
		return nil
	}
	return err
}

func (s *Service) confirmAccount(ctx context.Context, account *stripe.Account) error {
	if !account.ChargesEnabled || !account.PayoutsEnabled {
		return nil
	}
	err := s.users.ConfirmStripeAccount(ctx, account.ID)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		s.log.Warn(s.log.WithField(ctx, "stripe_account", account.ID), "account event for unknown user")
		return nil
	}
	return err
}

func (s *Service) recordTransfer(ctx context.Context, transfer *stripe.Transfer) error {
	deliveryID := transfer.Metadata["delivery_id"]
	if deliveryID == "" {
		s.log.Warn(s.log.WithField(ctx, "transfer", transfer.ID), "transfer without delivery correlation")
		return nil
	}
	err := s.deliveries.SetStripeTransferReference(ctx, deliveryID, transfer.ID)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		s.log.Warn(s.log.WithDeliveryID(ctx, deliveryID), "transfer event for unknown delivery")
		return nil
	}
	return err
}
