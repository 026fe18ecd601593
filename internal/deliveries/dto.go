package deliveries

import "github.com/shopspring/decimal"

// CreateRequest is the sender's posting for a new delivery.
type CreateRequest struct {
	PickupAddress      string          `json:"pickup_address" validate:"required,min=3"`
	DropoffAddress     string          `json:"dropoff_address" validate:"required,min=3"`
	PackageDescription string          `json:"package_description" validate:"required,min=3"`
	PackageSize        string          `json:"package_size" validate:"required"`
	OfferedPrice       decimal.Decimal `json:"offered_price" validate:"required"`
}

// Partition selects a slice of a user's delivery history.
type Partition string

const (
	PartitionAll       Partition = "all"
	PartitionActive    Partition = "active"
	PartitionCompleted Partition = "completed"
	PartitionCancelled Partition = "cancelled"
)

// IsValid reports whether the partition is a known value.
func (p Partition) IsValid() bool {
	switch p {
	case PartitionAll, PartitionActive, PartitionCompleted, PartitionCancelled:
		return true
	}
	return false
}

// ProofPhoto is the delivery confirmation image captured by the courier.
type ProofPhoto struct {
	Data        []byte
	ContentType string
}
