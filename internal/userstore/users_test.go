package userstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idrealm/internal/platform/config"
	"idrealm/internal/userstore"
	dErrors "idrealm/pkg/domain-errors"
)

func TestAddUserHappyPath(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	require.NoError(t, f.hybrid.AddRole(context.Background(), "Internal/ops", nil))
	require.NoError(t, f.ops.DoAddRole(context.Background(), "engineers", nil))

	err := f.manager.AddUser(context.Background(), "grace",
		[]byte("grace-pw1"), []string{"Internal/ops", "engineers"},
		map[string]string{"display_name": "Grace"}, "")
	require.NoError(t, err)

	exists, err := f.manager.IsExistingUser(context.Background(), "grace")
	require.NoError(t, err)
	assert.True(t, exists)

	inRole, err := f.hybrid.IsUserInRole(context.Background(), "PRIMARY/grace", "Internal/ops")
	require.NoError(t, err)
	assert.True(t, inRole, "hybrid roles are assigned after the primary write")

	members, err := f.ops.DoGetUserListOfRole(context.Background(), "engineers")
	require.NoError(t, err)
	assert.Contains(t, members, "grace")
}

func TestAddUserReadOnlyStore(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{ReadOnly: true})

	err := f.manager.AddUser(context.Background(), "grace", []byte("grace-pw1"), nil, nil, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeReadOnly))
	assert.Equal(t, 0, f.ops.addUserCalls)
}

func TestAddUserAlreadyExists(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	seedUser(t, f.ops, "grace", "grace-pw1")

	err := f.manager.AddUser(context.Background(), "grace", []byte("grace-pw1"), nil, nil, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
}

func TestAddUserMissingRoleLeavesNothingBehind(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})

	err := f.manager.AddUser(context.Background(), "grace",
		[]byte("grace-pw1"), []string{"Internal/missing"}, nil, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	assert.Equal(t, 0, f.ops.addUserCalls, "role precondition runs before the primary write")

	exists, err := f.manager.IsExistingUser(context.Background(), "grace")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAddUserVetoIsSilentNoOp(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	veto := &vetoListener{vetoAddUser: true}
	f.manager.Listeners().RegisterOperationListener(veto)

	err := f.manager.AddUser(context.Background(), "grace", []byte("grace-pw1"), nil, nil, "")
	require.NoError(t, err, "a veto reports success to the caller")
	assert.Equal(t, 1, veto.preAddCalls)
	assert.Equal(t, 0, f.ops.addUserCalls, "the primitive never runs after a veto")

	exists, err := f.manager.IsExistingUser(context.Background(), "grace")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAddUserValidatesUsernameAndPassword(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})

	err := f.manager.AddUser(context.Background(), "x", []byte("grace-pw1"), nil, nil, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	err = f.manager.AddUser(context.Background(), "grace", []byte("x"), nil, nil, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestAddUserRoutesToSecondaryDomain(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	ldap := f.addSecondary(t, nil, config.StoreConfig{DomainName: "LDAP1"})

	require.NoError(t, f.manager.AddUser(context.Background(), "LDAP1/heidi", []byte("heidi-pw1"), nil, nil, ""))
	assert.Equal(t, 1, ldap.addUserCalls)
	assert.Equal(t, 0, f.ops.addUserCalls)
}

func TestDeleteUserProtectsAdminAndAnonymous(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	seedUser(t, f.ops, "admin", "admin-pw1")

	err := f.manager.DeleteUser(context.Background(), "admin")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePolicyViolation))

	err = f.manager.DeleteUser(context.Background(), "anonymous")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePolicyViolation))
	assert.Equal(t, 0, f.ops.deleteCalls)
}

func TestDeleteUserRemovesHybridMemberships(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	seedUser(t, f.ops, "ivan", "ivan-pw12")
	require.NoError(t, f.hybrid.AddRole(context.Background(), "Internal/ops", []string{"PRIMARY/ivan"}))

	require.NoError(t, f.manager.DeleteUser(context.Background(), "ivan"))

	inRole, err := f.hybrid.IsUserInRole(context.Background(), "PRIMARY/ivan", "Internal/ops")
	require.NoError(t, err)
	assert.False(t, inRole)
	assert.Contains(t, f.cache.invalidations, "PRIMARY/ivan")
}

func TestDeleteUserNotFound(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})

	err := f.manager.DeleteUser(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestUpdateCredentialVerifiesOldCredential(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	seedUser(t, f.ops, "judy", "old-pw123")

	err := f.manager.UpdateCredential(context.Background(), "judy", []byte("new-pw123"), []byte("wrong-old"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthentication))

	require.NoError(t, f.manager.UpdateCredential(context.Background(), "judy", []byte("new-pw123"), []byte("old-pw123")))

	ok, err := f.manager.Authenticate(context.Background(), "judy", []byte("new-pw123"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateCredentialByAdminSkipsOldCheck(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	seedUser(t, f.ops, "judy", "old-pw123")

	require.NoError(t, f.manager.UpdateCredentialByAdmin(context.Background(), "judy", []byte("reset-pw1")))

	ok, err := f.manager.Authenticate(context.Background(), "judy", []byte("reset-pw1"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateCredentialReadOnly(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{ReadOnly: true})

	err := f.manager.UpdateCredential(context.Background(), "judy", []byte("new-pw123"), []byte("old-pw123"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeReadOnly))
}

func TestIsExistingUserRejectsRoleDomains(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})

	_, err := f.manager.IsExistingUser(context.Background(), "Internal/ops")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = f.manager.IsExistingUser(context.Background(), "SYSTEM/bootstrap")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestCredentialUpdatesRejectRoleDomains(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})

	err := f.manager.UpdateCredential(context.Background(), "Internal/ops", []byte("new-pw123"), []byte("old-pw123"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	err = f.manager.UpdateCredentialByAdmin(context.Background(), "SYSTEM/bootstrap", []byte("new-pw123"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestRejectedSecondaryKeepsItsOwnRegistry(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})

	dup, err := userstore.New(config.StoreConfig{DomainName: "PRIMARY"}, testRealmConfig(), newCountingStore())
	require.NoError(t, err)

	err = f.manager.AddSecondaryUserStoreManager(dup)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))
	assert.NotSame(t, f.manager.Listeners(), dup.Listeners(),
		"a rejected secondary must not adopt the chain's listener registry")
}

var _ userstore.ErrorListener = (*recordingErrorListener)(nil)
