// Package notify watches delivery changes on the store bus and pushes a
// notification to the other party of the delivery.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/swiftdrop/swiftdrop-backend/internal/adapters/push"
	"github.com/swiftdrop/swiftdrop-backend/internal/deliveries"
	"github.com/swiftdrop/swiftdrop-backend/internal/users"
	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	"github.com/swiftdrop/swiftdrop-backend/pkg/enums"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
)

type profileReader interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
}

// Consumer subscribes to delivery updates and notifies the counterparty of
// each status change. Change events do not carry prior row state, so the
// consumer tracks the last status it saw per delivery to avoid re-notifying
// on unrelated column updates.
type Consumer struct {
	profiles profileReader
	adapter  push.Adapter
	log      *logger.Logger
	sub      *docstore.Subscription

	mu       sync.Mutex
	lastSeen map[string]string
	once     sync.Once
}

// Start wires the consumer to the store bus.
func Start(store *docstore.Store, profiles profileReader, adapter push.Adapter, log *logger.Logger) (*Consumer, error) {
	if store == nil || profiles == nil || adapter == nil || log == nil {
		return nil, fmt.Errorf("store, profiles, adapter and logger are required")
	}
	c := &Consumer{
		profiles: profiles,
		adapter:  adapter,
		log:      log,
		lastSeen: make(map[string]string),
	}
	c.sub = store.Bus().
		Channel("delivery-notifications").
		On(docstore.EventUpdate, deliveries.TableName, "", c.handle).
		Subscribe()
	return c, nil
}

// Close detaches the consumer from the bus. Safe to call more than once.
func (c *Consumer) Close() {
	c.once.Do(c.sub.Unsubscribe)
}

func (c *Consumer) handle(event docstore.Event) {
	status := event.New.GetString("status")
	deliveryID := event.New.ID()

	c.mu.Lock()
	if c.lastSeen[deliveryID] == status {
		c.mu.Unlock()
		return
	}
	c.lastSeen[deliveryID] = status
	c.mu.Unlock()

	recipientID, title, body := c.messageFor(event.New, enums.DeliveryStatus(status))
	if recipientID == "" {
		return
	}

	ctx := context.Background()
	profile, err := c.profiles.FindByID(ctx, recipientID)
	if err != nil || profile.PushToken == nil {
		// Recipient has no profile or never registered for push.
		return
	}
	notification := push.Notification{
		Token: *profile.PushToken,
		Title: title,
		Body:  body,
		Data:  map[string]any{"delivery_id": deliveryID, "status": status},
	}
	if err := c.adapter.Send(ctx, notification); err != nil {
		c.log.Warn(c.log.WithDeliveryID(ctx, deliveryID), "push notification failed")
	}
}

// messageFor picks the counterparty to tell about the change: the sender
// hears about courier progress, the courier hears about sender actions.
func (c *Consumer) messageFor(doc docstore.Document, status enums.DeliveryStatus) (recipientID, title, body string) {
	senderID := doc.GetString("sender_id")
	courierID := ""
	if !doc.IsNull("courier_id") {
		courierID = doc.GetString("courier_id")
	}

	switch status {
	case enums.DeliveryStatusAccepted:
		return senderID, "Courier found", "A courier accepted your delivery."
	case enums.DeliveryStatusPickedUp:
		return senderID, "Package picked up", "Your package is with the courier."
	case enums.DeliveryStatusInTransit:
		return senderID, "On the way", "Your package is in transit."
	case enums.DeliveryStatusDelivered:
		return senderID, "Delivered", "Your package has been delivered."
	case enums.DeliveryStatusCancelled:
		return courierID, "Delivery cancelled", "The sender cancelled this delivery."
	case enums.DeliveryStatusDisputed:
		return senderID, "Delivery disputed", "A dispute was opened on your delivery."
	default:
		return "", "", ""
	}
}
