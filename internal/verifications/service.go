package verifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/swiftdrop/swiftdrop-backend/internal/users"
	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	"github.com/swiftdrop/swiftdrop-backend/pkg/enums"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
)

// TableName is the identity verification table in the document store.
const TableName = "identity_verifications"

// Verification is a courier applicant's identity review. One row per user;
// resubmission after a rejection replaces the previous application.
type Verification struct {
	ID              string                   `json:"id"`
	UserID          string                   `json:"user_id"`
	IDFrontURL      string                   `json:"id_front_url"`
	IDBackURL       string                   `json:"id_back_url"`
	SelfieURL       string                   `json:"selfie_url"`
	Status          enums.VerificationStatus `json:"status"`
	RejectionReason *string                  `json:"rejection_reason"`
	ReviewedAt      *string                  `json:"reviewed_at"`
	CreatedAt       string                   `json:"created_at"`
	UpdatedAt       string                   `json:"updated_at"`
}

// SubmitRequest carries the three document references.
type SubmitRequest struct {
	IDFrontURL string `json:"id_front_url" validate:"required,min=1"`
	IDBackURL  string `json:"id_back_url" validate:"required,min=1"`
	SelfieURL  string `json:"selfie_url" validate:"required,min=1"`
}

// Service owns the verification workflow: applicants submit, admins review.
type Service struct {
	store    *docstore.Store
	profiles profileReader
}

type profileReader interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
}

// NewService builds the verification service.
func NewService(store *docstore.Store, profiles profileReader) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("profile reader is required")
	}
	return &Service{store: store, profiles: profiles}, nil
}

// Submit files (or refiles) the user's application. Upsert on user_id keeps
// one application per user; a rejected one is replaced and reset to pending.
func (s *Service) Submit(ctx context.Context, userID string, req SubmitRequest) (*Verification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no active session")
	}
	if strings.TrimSpace(req.IDFrontURL) == "" || strings.TrimSpace(req.IDBackURL) == "" || strings.TrimSpace(req.SelfieURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "all three documents are required")
	}

	existing, err := s.find(ctx, userID)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status == enums.VerificationStatusApproved {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "already verified")
	}

	doc, err := s.store.Table(TableName).Upsert(ctx, docstore.Document{
		"user_id":          userID,
		"id_front_url":     req.IDFrontURL,
		"id_back_url":      req.IDBackURL,
		"selfie_url":       req.SelfieURL,
		"status":           enums.VerificationStatusPending.String(),
		"rejection_reason": nil,
		"reviewed_at":      nil,
	}, "user_id")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "submit verification")
	}
	return fromDocument(doc), nil
}

// ForUser returns the user's application, CodeNotFound when none exists.
func (s *Service) ForUser(ctx context.Context, userID string) (*Verification, error) {
	return s.find(ctx, userID)
}

// Pending lists applications awaiting review, oldest first.
func (s *Service) Pending(ctx context.Context, adminID string) ([]*Verification, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	docs, err := s.store.Table(TableName).
		Eq("status", enums.VerificationStatusPending.String()).
		OrderBy("created_at", true).
		All(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending verifications")
	}
	out := make([]*Verification, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDocument(doc))
	}
	return out, nil
}

// Approve marks the pending application approved and flips the applicant's
// courier_verified flag in the same batch, so no reader can observe one
// without the other.
func (s *Service) Approve(ctx context.Context, adminID, applicantID string) (*Verification, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	results, err := s.store.BatchUpdate(ctx,
		docstore.BatchStep{
			Table: TableName,
			Match: docstore.Document{"user_id": applicantID, "status": enums.VerificationStatusPending.String()},
			Set: docstore.Document{
				"status":      enums.VerificationStatusApproved.String(),
				"reviewed_at": now,
			},
		},
		docstore.BatchStep{
			Table: users.TableName,
			Match: docstore.Document{"id": applicantID},
			Set:   docstore.Document{"courier_verified": true},
		},
	)
	if err != nil {
		if errors.Is(err, docstore.ErrNoMatch) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "no pending application for this user")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "approve verification")
	}
	return fromDocument(results[0]), nil
}

// Reject records the reason and review time on the pending application.
func (s *Service) Reject(ctx context.Context, adminID, applicantID, reason string) (*Verification, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}

	doc, err := s.store.Table(TableName).
		Eq("user_id", applicantID).
		Eq("status", enums.VerificationStatusPending.String()).
		UpdateOne(ctx, docstore.Document{
			"status":           enums.VerificationStatusRejected.String(),
			"rejection_reason": strings.TrimSpace(reason),
			"reviewed_at":      time.Now().UTC().Format(time.RFC3339Nano),
		})
	if err != nil {
		if errors.Is(err, docstore.ErrNoMatch) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "no pending application for this user")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reject verification")
	}
	return fromDocument(doc), nil
}

func (s *Service) find(ctx context.Context, userID string) (*Verification, error) {
	doc, err := s.store.Table(TableName).Eq("user_id", userID).One(ctx)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "no verification on file")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fetch verification")
	}
	return fromDocument(doc), nil
}

func (s *Service) requireAdmin(ctx context.Context, adminID string) error {
	profile, err := s.profiles.FindByID(ctx, adminID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
		}
		return err
	}
	if profile.Role != enums.UserRoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	return nil
}

func fromDocument(doc docstore.Document) *Verification {
	if doc == nil {
		return nil
	}
	v := &Verification{
		ID:         doc.ID(),
		UserID:     doc.GetString("user_id"),
		IDFrontURL: doc.GetString("id_front_url"),
		IDBackURL:  doc.GetString("id_back_url"),
		SelfieURL:  doc.GetString("selfie_url"),
		Status:     enums.VerificationStatus(doc.GetString("status")),
		CreatedAt:  doc.GetString("created_at"),
		UpdatedAt:  doc.GetString("updated_at"),
	}
	if !doc.IsNull("rejection_reason") {
		reason := doc.GetString("rejection_reason")
		v.RejectionReason = &reason
	}
	if !doc.IsNull("reviewed_at") {
		at := doc.GetString("reviewed_at")
		v.ReviewedAt = &at
	}
	return v
}
