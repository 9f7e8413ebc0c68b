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

func TestAuthenticateLocalSuccess(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	seedUser(t, f.ops, "bob", "hunter22")

	ok, err := f.manager.Authenticate(context.Background(), "bob", []byte("hunter22"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.manager.Authenticate(context.Background(), "bob", []byte("wrong-pass"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthenticateBareNameFallsThroughChain(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	ldap := f.addSecondary(t, nil, config.StoreConfig{DomainName: "LDAP1"})
	seedUser(t, ldap, "carol", "secret-pw")

	ok, err := f.manager.Authenticate(context.Background(), "carol", []byte("secret-pw"))
	require.NoError(t, err)
	assert.True(t, ok, "bare names walk the chain until a store matches")
	assert.Equal(t, 1, f.ops.authCalls)
	assert.Equal(t, 1, ldap.authCalls)
}

func TestAuthenticateExplicitDomainNeverFallsBack(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	ldap := f.addSecondary(t, nil, config.StoreConfig{DomainName: "LDAP1"})
	seedUser(t, f.ops, "dave", "primary-pw")

	// dave exists only in PRIMARY; the qualified name pins LDAP1.
	ok, err := f.manager.Authenticate(context.Background(), "LDAP1/dave", []byte("primary-pw"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, ldap.authCalls)
	assert.Equal(t, 0, f.ops.authCalls, "an explicit domain must not try other stores")
}

func TestAuthenticateStoreErrorIsNonMatch(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	f.ops.authErr = errors.New("directory unreachable")
	ldap := f.addSecondary(t, nil, config.StoreConfig{DomainName: "LDAP1"})
	seedUser(t, ldap, "erin", "fallback-pw")

	errorListener := &recordingErrorListener{}
	f.manager.Listeners().RegisterErrorListener(errorListener)

	ok, err := f.manager.Authenticate(context.Background(), "erin", []byte("fallback-pw"))
	require.NoError(t, err, "one store's failure never fails the operation")
	assert.True(t, ok, "the healthy store still answers")
	assert.NotEmpty(t, errorListener.failures)
}

func TestAuthenticatePreListenerVetoIsDenialWithoutError(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})
	seedUser(t, f.ops, "bob", "hunter22")

	veto := &vetoListener{vetoAuth: true}
	f.manager.Listeners().RegisterOperationListener(veto)

	ok, err := f.manager.Authenticate(context.Background(), "bob", []byte("hunter22"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, f.ops.authCalls, "a veto skips the concrete primitive")
}

func TestAuthenticatePreferenceOrder(t *testing.T) {
	realmCfg := testRealmConfig()
	realmCfg.PreferenceOrder = []string{"LDAP1", "PRIMARY"}

	f := newFixture(t, realmCfg, config.StoreConfig{})
	ldap := f.addSecondary(t, realmCfg, config.StoreConfig{DomainName: "LDAP1"})

	// frank exists in both stores; LDAP1 is preferred and must win.
	seedUser(t, f.ops, "frank", "primary-pw")
	seedUser(t, ldap, "frank", "ldap-pw")

	ok, err := f.manager.Authenticate(context.Background(), "frank", []byte("ldap-pw"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.manager.Authenticate(context.Background(), "frank", []byte("primary-pw"))
	require.NoError(t, err)
	assert.True(t, ok, "later preference entries still run when earlier ones miss")
}

func TestAuthenticateDeactivatedRealm(t *testing.T) {
	inactive := false
	realmCfg := testRealmConfig()
	realmCfg.Active = &inactive

	f := newFixture(t, realmCfg, config.StoreConfig{})
	seedUser(t, f.ops, "bob", "hunter22")

	_, err := f.manager.Authenticate(context.Background(), "bob", []byte("hunter22"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTenantDeactived))
}

func TestAuthenticateRejectsRoleDomains(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})

	_, err := f.manager.Authenticate(context.Background(), "Internal/ops", []byte("pw-12345"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestAuthenticateEmptyInput(t *testing.T) {
	f := newFixture(t, nil, config.StoreConfig{})

	_, err := f.manager.Authenticate(context.Background(), "", []byte("pw-12345"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = f.manager.Authenticate(context.Background(), "bob", nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

var _ userstore.OperationListener = (*vetoListener)(nil)
