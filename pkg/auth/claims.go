package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/swiftdrop/swiftdrop-backend/pkg/enums"
)

// AccessTokenPayload carries the identity facts minted into an access token.
type AccessTokenPayload struct {
	UserID          uuid.UUID
	Role            enums.UserRole
	CourierVerified bool
	JTI             string
}

// AccessTokenClaims is the JWT claim set for SwiftDrop access tokens. Role
// may be empty for accounts that have not picked a role yet.
type AccessTokenClaims struct {
	UserID          uuid.UUID      `json:"uid"`
	Role            enums.UserRole `json:"role,omitempty"`
	CourierVerified bool           `json:"courier_verified,omitempty"`
	jwt.RegisteredClaims
}
