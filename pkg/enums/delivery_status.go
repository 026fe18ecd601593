package enums

import "fmt"

// DeliveryStatus tracks a delivery through its lifecycle. The happy path is
// strictly linear; cancelled and disputed are absorbing side states.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusAccepted  DeliveryStatus = "accepted"
	DeliveryStatusPickedUp  DeliveryStatus = "picked_up"
	DeliveryStatusInTransit DeliveryStatus = "in_transit"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
	DeliveryStatusDisputed  DeliveryStatus = "disputed"
)

var validDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusAccepted,
	DeliveryStatusPickedUp,
	DeliveryStatusInTransit,
	DeliveryStatusDelivered,
	DeliveryStatusCancelled,
	DeliveryStatusDisputed,
}

// happyPathNext maps each in-progress status to its sole successor.
var happyPathNext = map[DeliveryStatus]DeliveryStatus{
	DeliveryStatusPending:   DeliveryStatusAccepted,
	DeliveryStatusAccepted:  DeliveryStatusPickedUp,
	DeliveryStatusPickedUp:  DeliveryStatusInTransit,
	DeliveryStatusInTransit: DeliveryStatusDelivered,
}

// String implements fmt.Stringer.
func (s DeliveryStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known DeliveryStatus.
func (s DeliveryStatus) IsValid() bool {
	for _, candidate := range validDeliveryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case DeliveryStatusDelivered, DeliveryStatusCancelled, DeliveryStatusDisputed:
		return true
	}
	return false
}

// IsActive reports whether a courier currently holds the delivery.
func (s DeliveryStatus) IsActive() bool {
	switch s {
	case DeliveryStatusAccepted, DeliveryStatusPickedUp, DeliveryStatusInTransit:
		return true
	}
	return false
}

// Next returns the happy-path successor status, false when none exists.
func (s DeliveryStatus) Next() (DeliveryStatus, bool) {
	next, ok := happyPathNext[s]
	return next, ok
}

// CanTransitionTo reports whether the lifecycle permits moving from s to
// target. Cancellation and disputes are reachable from any non-terminal
// state; everything else must follow the linear happy path.
func (s DeliveryStatus) CanTransitionTo(target DeliveryStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch target {
	case DeliveryStatusCancelled, DeliveryStatusDisputed:
		return true
	}
	next, ok := happyPathNext[s]
	return ok && next == target
}

// ParseDeliveryStatus converts raw input into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	for _, candidate := range validDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery status %q", value)
}
