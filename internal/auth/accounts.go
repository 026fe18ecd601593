package auth

import (
	"context"
	"errors"

	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	pkgerrors "github.com/swiftdrop/swiftdrop-backend/pkg/errors"
)

// AccountsTableName is the credential table. It is deliberately separate from
// the users profile table: an account exists from the first sign-in, while
// the profile row only appears once onboarding writes it.
const AccountsTableName = "accounts"

// Account is an authentication identity. Profile data lives on the users row
// that shares this id.
type Account struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	Phone         *string `json:"phone"`
	PhoneVerified bool    `json:"phone_verified"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`

	// never serialized
	PasswordHash string `json:"-"`
}

// AccountsRepository persists authentication identities.
type AccountsRepository struct {
	store *docstore.Store
}

// NewAccountsRepository builds the repository over the document store.
func NewAccountsRepository(store *docstore.Store) *AccountsRepository {
	return &AccountsRepository{store: store}
}

// Create registers a new identity for the email.
func (r *AccountsRepository) Create(ctx context.Context, email, passwordHash string) (*Account, error) {
	doc, err := r.store.Table(AccountsTableName).Insert(ctx, docstore.Document{
		"email":          email,
		"password_hash":  passwordHash,
		"phone":          nil,
		"phone_verified": false,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create account")
	}
	return accountFromDocument(doc), nil
}

// FindByEmail resolves an account, returning CodeNotFound when absent.
func (r *AccountsRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	doc, err := r.store.Table(AccountsTableName).Eq("email", email).One(ctx)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fetch account")
	}
	return accountFromDocument(doc), nil
}

// FindByID resolves an account, returning CodeNotFound when absent.
func (r *AccountsRepository) FindByID(ctx context.Context, id string) (*Account, error) {
	doc, err := r.store.Table(AccountsTableName).Eq("id", id).One(ctx)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fetch account")
	}
	return accountFromDocument(doc), nil
}

// AttachPhone marks the phone as verified for the account.
func (r *AccountsRepository) AttachPhone(ctx context.Context, id, phone string) error {
	_, err := r.store.Table(AccountsTableName).Eq("id", id).UpdateOne(ctx, docstore.Document{
		"phone":          phone,
		"phone_verified": true,
	})
	if err != nil {
		if errors.Is(err, docstore.ErrNoMatch) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "account not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach phone")
	}
	return nil
}

func accountFromDocument(doc docstore.Document) *Account {
	if doc == nil {
		return nil
	}
	acct := &Account{
		ID:            doc.ID(),
		Email:         doc.GetString("email"),
		PhoneVerified: doc.GetBool("phone_verified"),
		CreatedAt:     doc.GetString("created_at"),
		UpdatedAt:     doc.GetString("updated_at"),
		PasswordHash:  doc.GetString("password_hash"),
	}
	if !doc.IsNull("phone") {
		phone := doc.GetString("phone")
		acct.Phone = &phone
	}
	return acct
}
