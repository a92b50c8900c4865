// internal/domain/auth/entity_test.go
package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleRanking(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleOperator))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))
	assert.True(t, RoleOperator.AtLeast(RoleViewer))
	assert.False(t, RoleViewer.AtLeast(RoleOperator))
	assert.False(t, RoleOperator.AtLeast(RoleAdmin))

	// An unknown role ranks below every known role.
	assert.False(t, Role("ghost").AtLeast(RoleViewer))
	assert.False(t, Role("ghost").Valid())
	assert.True(t, RoleViewer.Valid())
}
