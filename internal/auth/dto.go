package auth

import "github.com/swiftdrop/swiftdrop-backend/internal/users"

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest authenticates an existing account.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SendOTPRequest asks for a phone verification code.
type SendOTPRequest struct {
	Phone string `json:"phone" validate:"required,min=7"`
}

// VerifyOTPRequest confirms a phone verification code.
type VerifyOTPRequest struct {
	Phone string `json:"phone" validate:"required,min=7"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// UpdateProfileRequest merges profile fields onto the current user. All
// fields are optional; absent fields are left untouched.
type UpdateProfileRequest struct {
	FullName        *string `json:"full_name" validate:"omitempty,min=1"`
	Role            *string `json:"role" validate:"omitempty,oneof=sender courier both"`
	Phone           *string `json:"phone" validate:"omitempty,min=7"`
	StripeAccountID *string `json:"stripe_account_id"`
	PushToken       *string `json:"push_token"`
}

// Session is the authenticated result handed back to the client. Profile is
// the user row; a role-less profile drives the client's role-selection flow.
type Session struct {
	AccessToken string      `json:"access_token"`
	Profile     *users.User `json:"profile"`
}
