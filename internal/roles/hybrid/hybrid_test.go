package hybrid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idrealm/pkg/domain-errors"
)

func TestAddAndDeleteRole(t *testing.T) {
	m := New()
	require.NoError(t, m.AddRole(context.Background(), "Internal/ops", nil))

	err := m.AddRole(context.Background(), "internal/OPS", nil)
	require.Error(t, err, "role keys fold case")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))

	require.NoError(t, m.DeleteRole(context.Background(), "Internal/ops"))
	err = m.DeleteRole(context.Background(), "Internal/ops")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestMembershipCaseFolding(t *testing.T) {
	m := New()
	require.NoError(t, m.AddRole(context.Background(), "Internal/ops", []string{"PRIMARY/Alice"}))

	ok, err := m.IsUserInRole(context.Background(), "primary/alice", "internal/ops")
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := m.UserListOfRole(context.Background(), "Internal/ops")
	require.NoError(t, err)
	assert.Equal(t, []string{"PRIMARY/Alice"}, members, "display names keep their original casing")
}

func TestUpdateRoleListOfUserRequiresExistingRoles(t *testing.T) {
	m := New()
	require.NoError(t, m.AddRole(context.Background(), "Internal/ops", nil))

	err := m.UpdateRoleListOfUser(context.Background(), "PRIMARY/bob", nil, []string{"Internal/missing"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	require.NoError(t, m.UpdateRoleListOfUser(context.Background(), "PRIMARY/bob", nil, []string{"Internal/ops"}))
	roles, err := m.RoleListOfUser(context.Background(), "PRIMARY/bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"Internal/ops"}, roles)

	require.NoError(t, m.UpdateRoleListOfUser(context.Background(), "PRIMARY/bob", []string{"Internal/ops"}, nil))
	roles, err = m.RoleListOfUser(context.Background(), "PRIMARY/bob")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestUpdateUserListOfRole(t *testing.T) {
	m := New()
	require.NoError(t, m.AddRole(context.Background(), "Application/store", []string{"PRIMARY/carol"}))

	require.NoError(t, m.UpdateUserListOfRole(context.Background(), "Application/store",
		[]string{"PRIMARY/carol"}, []string{"PRIMARY/dave"}))

	members, err := m.UserListOfRole(context.Background(), "Application/store")
	require.NoError(t, err)
	assert.Equal(t, []string{"PRIMARY/dave"}, members)

	err = m.UpdateUserListOfRole(context.Background(), "Application/missing", nil, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestUpdateRoleNameKeepsMembership(t *testing.T) {
	m := New()
	require.NoError(t, m.AddRole(context.Background(), "Internal/ops", []string{"PRIMARY/erin"}))

	require.NoError(t, m.UpdateRoleName(context.Background(), "Internal/ops", "Internal/operations"))

	ok, err := m.IsUserInRole(context.Background(), "PRIMARY/erin", "Internal/operations")
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := m.IsExistingRole(context.Background(), "Internal/ops")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRolesFilter(t *testing.T) {
	m := New()
	for _, role := range []string{"Internal/ops", "Internal/admins", "Application/store", "Workflow/approval"} {
		require.NoError(t, m.AddRole(context.Background(), role, nil))
	}

	roles, err := m.Roles(context.Background(), "Internal/*")
	require.NoError(t, err)
	assert.Equal(t, []string{"Internal/admins", "Internal/ops"}, roles)

	roles, err = m.Roles(context.Background(), "*")
	require.NoError(t, err)
	assert.Len(t, roles, 4)

	roles, err = m.Roles(context.Background(), "workflow/approval")
	require.NoError(t, err)
	assert.Equal(t, []string{"Workflow/approval"}, roles, "exact filters fold case")
}
