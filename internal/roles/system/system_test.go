package system

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idrealm/pkg/domain-errors"
)

func TestAddRoleAndMembership(t *testing.T) {
	m := New()
	require.NoError(t, m.AddRole(context.Background(), "system_admin", []string{"PRIMARY/admin"}))

	err := m.AddRole(context.Background(), "SYSTEM_ADMIN", nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))

	ok, err := m.IsUserInRole(context.Background(), "primary/ADMIN", "system_admin")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.IsUserInRole(context.Background(), "PRIMARY/bob", "system_admin")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrantCreatesRoleOnDemand(t *testing.T) {
	m := New()
	require.NoError(t, m.Grant(context.Background(), "PRIMARY/admin", "bootstrap"))

	exists, err := m.IsExistingRole(context.Background(), "bootstrap")
	require.NoError(t, err)
	assert.True(t, exists)

	ok, err := m.IsUserInRole(context.Background(), "PRIMARY/admin", "bootstrap")
	require.NoError(t, err)
	assert.True(t, ok)

	// A second grant is idempotent.
	require.NoError(t, m.Grant(context.Background(), "PRIMARY/admin", "bootstrap"))
}

func TestRoleListOfUser(t *testing.T) {
	m := New()
	require.NoError(t, m.Grant(context.Background(), "PRIMARY/admin", "system_admin"))
	require.NoError(t, m.Grant(context.Background(), "PRIMARY/admin", "bootstrap"))
	require.NoError(t, m.Grant(context.Background(), "PRIMARY/bob", "bootstrap"))

	roles, err := m.RoleListOfUser(context.Background(), "PRIMARY/admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"bootstrap", "system_admin"}, roles)

	roles, err = m.RoleListOfUser(context.Background(), "PRIMARY/carol")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestDeleteRole(t *testing.T) {
	m := New()
	require.NoError(t, m.AddRole(context.Background(), "system_admin", nil))
	require.NoError(t, m.DeleteRole(context.Background(), "system_admin"))

	err := m.DeleteRole(context.Background(), "system_admin")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
