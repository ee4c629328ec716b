package domain

import (
	"fmt"
	"strings"
)

// Role is the platform role carried in JWT claims. A single enum with
// exhaustive matching replaces scattered per-role boolean checks.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleLandlord Role = "landlord"
	RoleTenant   Role = "tenant"
	RoleVendor   Role = "vendor"
)

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleLandlord:
		return RoleLandlord, nil
	case RoleTenant:
		return RoleTenant, nil
	case RoleVendor:
		return RoleVendor, nil
	default:
		return "", fmt.Errorf("unknown role: %q", raw)
	}
}

// CanManageRules reports whether the role may create or update escrow rules.
func (r Role) CanManageRules() bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleLandlord, RoleTenant, RoleVendor:
		return false
	}
	return false
}

// CanCreateCharges reports whether the role may create recurring service charges.
func (r Role) CanCreateCharges() bool {
	switch r {
	case RoleAdmin, RoleLandlord:
		return true
	case RoleTenant, RoleVendor:
		return false
	}
	return false
}

// BypassesOwnership reports whether the role may act on accounts it does not own.
func (r Role) BypassesOwnership() bool {
	return r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}
