package userstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idrealm/internal/platform/config"
	"idrealm/internal/userstore"
	dErrors "idrealm/pkg/domain-errors"
)

func TestListUsersUnionsAcrossChain(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	ldap := f.addSecondary(t, nil, config.StoreConfig{DomainName: "LDAP1"})
	seedUser(t, f.ops, "alice", "alice-pw1")
	seedUser(t, ldap, "bert", "bert-pw12")

	users, err := f.manager.ListUsers(context.Background(), "*", 0)
	require.NoError(t, err)
	assert.Contains(t, users, "PRIMARY/alice")
	assert.Contains(t, users, "LDAP1/bert")
}

func TestListUsersToleratesFailingStore(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	seedUser(t, f.ops, "alice", "alice-pw1")

	broken := f.addSecondary(t, nil, config.StoreConfig{DomainName: "LDAP1"})
	broken.listErr = errors.New("directory unreachable")

	ldap2 := f.addSecondary(t, nil, config.StoreConfig{DomainName: "LDAP2"})
	seedUser(t, ldap2, "cora", "cora-pw12")

	errorListener := &recordingErrorListener{}
	f.manager.Listeners().RegisterErrorListener(errorListener)

	users, err := f.manager.ListUsers(context.Background(), "*", 0)
	require.NoError(t, err, "one store's failure never fails the union")
	assert.Contains(t, users, "PRIMARY/alice")
	assert.Contains(t, users, "LDAP2/cora")
	assert.NotEmpty(t, errorListener.failures)
	assert.Equal(t, "LDAP1", errorListener.failures[0].Domain)
}

func TestListUsersDomainFilterNarrowsToOneStore(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	ldap := f.addSecondary(t, nil, config.StoreConfig{DomainName: "LDAP1"})
	seedUser(t, f.ops, "dina", "dina-pw12")
	seedUser(t, ldap, "dina", "dina-pw12")

	users, err := f.manager.ListUsers(context.Background(), "LDAP1/dina", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"LDAP1/dina"}, users)
	assert.Equal(t, 0, f.ops.listCalls, "a domain filter skips the other stores")

	_, err = f.manager.ListUsers(context.Background(), "NOPE/dina", 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidDomain))
}

func TestGetUserListUsernameClaimUsesNameListing(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	seedUser(t, f.ops, "edgar", "edgar-pw1")

	users, err := f.manager.GetUserList(context.Background(), userstore.ClaimUsername, "ed*", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"PRIMARY/edgar"}, users)
	assert.Equal(t, 1, f.ops.listCalls, "the username claim is a name listing, not an attribute search")
}

func TestGetUserListSearchesByAttribute(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	seedUser(t, f.ops, "fern", "fern-pw12")
	require.NoError(t, f.manager.SetUserClaimValue(context.Background(), "fern",
		userstore.ClaimDisplayName, "Fern F", ""))

	users, err := f.manager.GetUserList(context.Background(), userstore.ClaimDisplayName, "Fern*", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"PRIMARY/fern"}, users)
}

func TestGetUserListDomainEmbeddedValueTargetsOneStore(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	ldap := f.addSecondary(t, nil, config.StoreConfig{DomainName: "LDAP1"})
	seedUser(t, f.ops, "gale", "gale-pw12")
	seedUser(t, ldap, "gwen", "gwen-pw12")
	require.NoError(t, f.manager.SetUserClaimValue(context.Background(), "gale",
		userstore.ClaimDisplayName, "Zed", ""))
	require.NoError(t, f.manager.SetUserClaimValue(context.Background(), "LDAP1/gwen",
		userstore.ClaimDisplayName, "Zed", ""))

	users, err := f.manager.GetUserList(context.Background(), userstore.ClaimDisplayName, "LDAP1/Zed", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"LDAP1/gwen"}, users)
}

func TestGetUserListPostFanOutIsAuditOnly(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	seedUser(t, f.ops, "hana", "hana-pw12")

	business := &vetoListener{name: "businessListener"}
	audit := &vetoListener{name: "TestAuditLogger"}
	f.manager.Listeners().RegisterOperationListener(business)
	f.manager.Listeners().RegisterOperationListener(audit)

	_, err := f.manager.GetUserList(context.Background(), userstore.ClaimUsername, "hana", "")
	require.NoError(t, err)
	assert.Equal(t, 0, business.postListCalls, "merged results go to audit listeners only")
	assert.Equal(t, 1, audit.postListCalls)
}

func TestGetUserListRejectsEmptyInput(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})

	_, err := f.manager.GetUserList(context.Background(), "", "value", "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = f.manager.GetUserList(context.Background(), userstore.ClaimDisplayName, "", "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestListPaginatedUsersConsumesOffsetAcrossStores(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	ldap := f.addSecondary(t, nil, config.StoreConfig{DomainName: "LDAP1"})
	for _, name := range []string{"pa", "pbb", "pcc"} {
		seedUser(t, f.ops, name, name+"-pw123")
	}
	for _, name := range []string{"qaa", "qbb"} {
		seedUser(t, ldap, name, name+"-pw123")
	}

	// Offset 2 lands inside the primary; the remainder of the page comes
	// from the next store with its offset fully consumed.
	page, err := f.manager.ListPaginatedUsers(context.Background(), "*", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"PRIMARY/pcc", "LDAP1/qaa", "LDAP1/qbb"}, page.Names)
	assert.Equal(t, 2, page.SkippedCount)
}

func TestListPaginatedUsersOffsetBeyondFirstStore(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	ldap := f.addSecondary(t, nil, config.StoreConfig{DomainName: "LDAP1"})
	seedUser(t, f.ops, "ray", "ray-pw123")
	for _, name := range []string{"saa", "sbb"} {
		seedUser(t, ldap, name, name+"-pw123")
	}

	page, err := f.manager.ListPaginatedUsers(context.Background(), "*", 10, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"LDAP1/sbb"}, page.Names)
	assert.Equal(t, 2, page.SkippedCount)
}

func TestListPaginatedUsersDomainFilter(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	ldap := f.addSecondary(t, nil, config.StoreConfig{DomainName: "LDAP1"})
	for _, name := range []string{"taa", "tbb", "tcc"} {
		seedUser(t, ldap, name, name+"-pw123")
	}

	page, err := f.manager.ListPaginatedUsers(context.Background(), "LDAP1/*", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"LDAP1/tbb", "LDAP1/tcc"}, page.Names)
	assert.Equal(t, 1, page.SkippedCount)
}

func TestGetPaginatedUserListByAttribute(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	for _, name := range []string{"uaa", "ubb", "ucc"} {
		seedUser(t, f.ops, name, name+"-pw123")
		require.NoError(t, f.manager.SetUserClaimValue(context.Background(), name,
			userstore.ClaimDisplayName, "Shared", ""))
	}

	page, err := f.manager.GetPaginatedUserList(context.Background(),
		userstore.ClaimDisplayName, "Shared", "", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"PRIMARY/ubb", "PRIMARY/ucc"}, page.Names)
	assert.Equal(t, 1, page.SkippedCount)
}

func TestGetPaginatedUserListUsernameClaimDelegates(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	for _, name := range []string{"vaa", "vbb"} {
		seedUser(t, f.ops, name, name+"-pw123")
	}

	page, err := f.manager.GetPaginatedUserList(context.Background(),
		userstore.ClaimUsername, "v*", "", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"PRIMARY/vbb"}, page.Names)
	assert.Equal(t, 1, page.SkippedCount)
}
