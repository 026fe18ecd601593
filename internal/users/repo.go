package users

import (
	"context"
	"errors"

	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	"github.com/swiftdrop/swiftdrop-backend/pkg/enums"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
)

// TableName is the users table in the document store.
const TableName = "users"

// User is the typed view of a users row.
type User struct {
	ID              string         `json:"id"`
	Email           string         `json:"email"`
	FullName        *string        `json:"full_name"`
	Phone           *string        `json:"phone"`
	Role            enums.UserRole `json:"role"`
	CourierVerified bool           `json:"courier_verified"`
	PushToken       *string        `json:"push_token,omitempty"`
	StripeAccountID *string        `json:"stripe_account_id,omitempty"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
}

// Repository persists users in the document store.
type Repository struct {
	store *docstore.Store
}

// NewRepository constructs a users repository.
func NewRepository(store *docstore.Store) *Repository {
	return &Repository{store: store}
}

// Create provisions a fresh profile row keyed by the account id. Role starts
// unset; onboarding assigns it later through UpsertProfile.
func (r *Repository) Create(ctx context.Context, id, email string) (*User, error) {
	doc, err := r.store.Table(TableName).Insert(ctx, docstore.Document{
		"id":                id,
		"email":             email,
		"full_name":         nil,
		"phone":             nil,
		"role":              nil,
		"courier_verified":  false,
		"push_token":        nil,
		"stripe_account_id": nil,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}
	return fromDocument(doc), nil
}

// FindByID resolves a user, returning CodeNotFound when absent.
func (r *Repository) FindByID(ctx context.Context, id string) (*User, error) {
	doc, err := r.store.Table(TableName).Eq("id", id).One(ctx)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fetch user")
	}
	return fromDocument(doc), nil
}

// FindByEmail resolves a user by email, returning CodeNotFound when absent.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	doc, err := r.store.Table(TableName).Eq("email", email).One(ctx)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fetch user")
	}
	return fromDocument(doc), nil
}

// UpsertProfile merges profile fields onto the row keyed by id, creating it
// when missing.
func (r *Repository) UpsertProfile(ctx context.Context, id string, fields docstore.Document) (*User, error) {
	payload := docstore.Document{"id": id}
	for k, v := range fields {
		payload[k] = v
	}
	doc, err := r.store.Table(TableName).Upsert(ctx, payload, "id")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert profile")
	}
	return fromDocument(doc), nil
}

// SetPhone attaches a verified phone number to the user.
func (r *Repository) SetPhone(ctx context.Context, id, phone string) (*User, error) {
	doc, err := r.store.Table(TableName).Eq("id", id).UpdateOne(ctx, docstore.Document{"phone": phone})
	if err != nil {
		if errors.Is(err, docstore.ErrNoMatch) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set phone")
	}
	return fromDocument(doc), nil
}

// SetPushToken records the device push token for the user.
func (r *Repository) SetPushToken(ctx context.Context, id, token string) error {
	_, err := r.store.Table(TableName).Eq("id", id).UpdateOne(ctx, docstore.Document{"push_token": token})
	if err != nil {
		if errors.Is(err, docstore.ErrNoMatch) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set push token")
	}
	return nil
}

// ConfirmStripeAccount marks the connected account as payable once the
// provider reports charges and payouts enabled.
func (r *Repository) ConfirmStripeAccount(ctx context.Context, accountID string) error {
	_, err := r.store.Table(TableName).Eq("stripe_account_id", accountID).
		UpdateOne(ctx, docstore.Document{"stripe_payouts_enabled": true})
	if err != nil {
		if errors.Is(err, docstore.ErrNoMatch) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "no user for stripe account")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirm stripe account")
	}
	return nil
}

// SetCourierVerified flips the verification flag, used by the admin review
// flow.
func (r *Repository) SetCourierVerified(ctx context.Context, id string, verified bool) error {
	_, err := r.store.Table(TableName).Eq("id", id).UpdateOne(ctx, docstore.Document{"courier_verified": verified})
	if err != nil {
		if errors.Is(err, docstore.ErrNoMatch) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set courier verified")
	}
	return nil
}

func fromDocument(doc docstore.Document) *User {
	if doc == nil {
		return nil
	}
	user := &User{
		ID:              doc.ID(),
		Email:           doc.GetString("email"),
		Role:            enums.UserRole(doc.GetString("role")),
		CourierVerified: doc.GetBool("courier_verified"),
		CreatedAt:       doc.GetString("created_at"),
		UpdatedAt:       doc.GetString("updated_at"),
	}
	user.FullName = optionalString(doc, "full_name")
	user.Phone = optionalString(doc, "phone")
	user.PushToken = optionalString(doc, "push_token")
	user.StripeAccountID = optionalString(doc, "stripe_account_id")
	return user
}

// FromDocument exposes the row mapping to sibling packages that expand users
// into their results.
func FromDocument(doc docstore.Document) *User {
	return fromDocument(doc)
}

func optionalString(doc docstore.Document, field string) *string {
	if doc.IsNull(field) {
		return nil
	}
	val := doc.GetString(field)
	if val == "" {
		return nil
	}
	return &val
}
