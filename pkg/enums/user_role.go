package enums

import "fmt"

// UserRole describes how a user participates in the marketplace. New accounts
// start unset until the onboarding role selection completes.
type UserRole string

const (
	UserRoleUnset   UserRole = ""
	UserRoleSender  UserRole = "sender"
	UserRoleCourier UserRole = "courier"
	UserRoleBoth    UserRole = "both"
	UserRoleAdmin   UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleSender,
	UserRoleCourier,
	UserRoleBoth,
	UserRoleAdmin,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known assigned role. The unset role
// is deliberately excluded: it is a pre-onboarding placeholder, not a role a
// user may select.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanSend reports whether the role may create deliveries.
func (r UserRole) CanSend() bool {
	return r == UserRoleSender || r == UserRoleBoth || r == UserRoleAdmin
}

// CanCourier reports whether the role may accept deliveries.
func (r UserRole) CanCourier() bool {
	return r == UserRoleCourier || r == UserRoleBoth || r == UserRoleAdmin
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
