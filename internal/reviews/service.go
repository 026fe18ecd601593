package reviews

import (
	"context"
	"fmt"
	"strings"

	"github.com/swiftdrop/swiftdrop-backend/internal/deliveries"
	"github.com/swiftdrop/swiftdrop-backend/internal/users"
	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	"github.com/swiftdrop/swiftdrop-backend/pkg/enums"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
)

// TableName is the review table in the document store.
const TableName = "reviews"

// Review is a post-delivery rating left by one party about the other.
type Review struct {
	ID         string  `json:"id"`
	DeliveryID string  `json:"delivery_id"`
	ReviewerID string  `json:"reviewer_id"`
	RevieweeID string  `json:"reviewee_id"`
	Rating     int     `json:"rating"`
	Comment    *string `json:"comment"`
	CreatedAt  string  `json:"created_at"`

	// populated on demand via expansion
	Reviewer *users.User `json:"reviewer,omitempty"`
}

// CreateRequest is the payload for leaving a review.
type CreateRequest struct {
	DeliveryID string  `json:"delivery_id" validate:"required"`
	Rating     int     `json:"rating" validate:"required,min=1,max=5"`
	Comment    *string `json:"comment" validate:"omitempty,max=1000"`
}

// UserSummary aggregates a user's received reviews.
type UserSummary struct {
	Reviews       []*Review `json:"reviews"`
	AverageRating float64   `json:"average_rating"`
}

// Service guards review creation and serves per-user listings.
type Service struct {
	store      *docstore.Store
	deliveries deliveryReader
}

type deliveryReader interface {
	Get(ctx context.Context, id string) (*deliveries.Delivery, error)
}

// NewService builds the review service.
func NewService(store *docstore.Store, deliveryReader deliveryReader) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if deliveryReader == nil {
		return nil, fmt.Errorf("delivery reader is required")
	}
	return &Service{store: store, deliveries: deliveryReader}, nil
}

// Create records a review. The delivery must be delivered, the reviewer must
// be one of its parties, and each reviewer gets exactly one review per
// delivery; the counterparty is always the reviewee.
func (s *Service) Create(ctx context.Context, reviewerID string, req CreateRequest) (*Review, error) {
	if strings.TrimSpace(reviewerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no active session")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}

	delivery, err := s.deliveries.Get(ctx, req.DeliveryID)
	if err != nil {
		return nil, err
	}
	if delivery.Status != enums.DeliveryStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only delivered deliveries can be reviewed")
	}

	revieweeID, err := counterparty(delivery, reviewerID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.Table(TableName).
		Eq("delivery_id", req.DeliveryID).
		Eq("reviewer_id", reviewerID).
		All(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check existing review")
	}
	if len(existing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "you already reviewed this delivery")
	}

	doc, err := s.store.Table(TableName).Insert(ctx, docstore.Document{
		"delivery_id": req.DeliveryID,
		"reviewer_id": reviewerID,
		"reviewee_id": revieweeID,
		"rating":      req.Rating,
		"comment":     commentOrNil(req.Comment),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create review")
	}
	return fromDocument(doc), nil
}

// ForUser lists the reviews received by a user, newest first, with the
// reviewer row embedded and the average rating computed.
func (s *Service) ForUser(ctx context.Context, userID string) (*UserSummary, error) {
	docs, err := s.store.Table(TableName).
		Eq("reviewee_id", userID).
		OrderBy("created_at", false).
		Expand("reviewer", users.TableName, "reviewer_id").
		All(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list reviews")
	}

	summary := &UserSummary{Reviews: make([]*Review, 0, len(docs))}
	total := 0
	for _, doc := range docs {
		review := fromDocument(doc)
		summary.Reviews = append(summary.Reviews, review)
		total += review.Rating
	}
	if len(summary.Reviews) > 0 {
		summary.AverageRating = float64(total) / float64(len(summary.Reviews))
	}
	return summary, nil
}

func counterparty(d *deliveries.Delivery, reviewerID string) (string, error) {
	courierID := ""
	if d.CourierID != nil {
		courierID = *d.CourierID
	}
	switch reviewerID {
	case d.SenderID:
		if courierID == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "delivery has no courier to review")
		}
		return courierID, nil
	case courierID:
		return d.SenderID, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "only the sender or courier may review this delivery")
	}
}

func commentOrNil(comment *string) any {
	if comment == nil || strings.TrimSpace(*comment) == "" {
		return nil
	}
	return strings.TrimSpace(*comment)
}

func fromDocument(doc docstore.Document) *Review {
	if doc == nil {
		return nil
	}
	review := &Review{
		ID:         doc.ID(),
		DeliveryID: doc.GetString("delivery_id"),
		ReviewerID: doc.GetString("reviewer_id"),
		RevieweeID: doc.GetString("reviewee_id"),
		Rating:     int(doc.GetFloat("rating")),
		CreatedAt:  doc.GetString("created_at"),
	}
	if !doc.IsNull("comment") {
		comment := doc.GetString("comment")
		review.Comment = &comment
	}
	if embedded, ok := doc["reviewer"].(docstore.Document); ok {
		review.Reviewer = users.FromDocument(embedded)
	}
	return review
}
