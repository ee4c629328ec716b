package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for raw, want := range map[string]Role{
		"admin":    RoleAdmin,
		"LANDLORD": RoleLandlord,
		" tenant ": RoleTenant,
		"Vendor":   RoleVendor,
	} {
		got, err := ParseRole(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	_, err := ParseRole("superuser")
	assert.Error(t, err)
	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestRolePermissions(t *testing.T) {
	assert.True(t, RoleAdmin.CanManageRules())
	assert.False(t, RoleLandlord.CanManageRules())
	assert.False(t, RoleTenant.CanManageRules())

	assert.True(t, RoleAdmin.CanCreateCharges())
	assert.True(t, RoleLandlord.CanCreateCharges())
	assert.False(t, RoleTenant.CanCreateCharges())
	assert.False(t, RoleVendor.CanCreateCharges())

	assert.True(t, RoleAdmin.BypassesOwnership())
	assert.False(t, RoleLandlord.BypassesOwnership())
}
