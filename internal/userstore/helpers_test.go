package userstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"idrealm/internal/platform/config"
	"idrealm/internal/roles/hybrid"
	"idrealm/internal/roles/system"
	"idrealm/internal/userstore"
	"idrealm/internal/userstore/store/memory"
	"idrealm/pkg/secrets"
)

// countingStore wraps the memory store, counting primitive invocations and
// optionally failing selected primitives.
type countingStore struct {
	*memory.Store

	authCalls    int
	addUserCalls int
	deleteCalls  int
	listCalls    int

	authErr error
	listErr error
}

func newCountingStore(opts ...memory.Option) *countingStore {
	return &countingStore{Store: memory.New(opts...)}
}

func (s *countingStore) DoAuthenticate(ctx context.Context, username string, credential *secrets.Secret) (bool, error) {
	s.authCalls++
	if s.authErr != nil {
		return false, s.authErr
	}
	return s.Store.DoAuthenticate(ctx, username, credential)
}

func (s *countingStore) DoAddUser(ctx context.Context, username string, credential *secrets.Secret, roles []string, claims map[string]string, profile string) error {
	s.addUserCalls++
	return s.Store.DoAddUser(ctx, username, credential, roles, claims, profile)
}

func (s *countingStore) DoDeleteUser(ctx context.Context, username string) error {
	s.deleteCalls++
	return s.Store.DoDeleteUser(ctx, username)
}

func (s *countingStore) DoListUsers(ctx context.Context, filter string, limit int) ([]string, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.DoListUsers(ctx, filter, limit)
}

func (s *countingStore) DoGetUserList(ctx context.Context, attribute, value, profile string, limit int) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.DoGetUserList(ctx, attribute, value, profile, limit)
}

// recordingCache records role-cache traffic.
type recordingCache struct {
	entries       map[string][]string
	invalidations []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[string][]string)}
}

func (c *recordingCache) Get(_ context.Context, tenant, username string) ([]string, bool) {
	roles, ok := c.entries[tenant+"|"+username]
	return roles, ok
}

func (c *recordingCache) Put(_ context.Context, tenant, username string, roles []string) {
	c.entries[tenant+"|"+username] = roles
}

func (c *recordingCache) Invalidate(_ context.Context, tenant, username string) {
	c.invalidations = append(c.invalidations, username)
	delete(c.entries, tenant+"|"+username)
}

// vetoListener vetoes the configured operations and counts pre invocations.
type vetoListener struct {
	userstore.BaseOperationListener
	name          string
	vetoAuth      bool
	vetoAddUser   bool
	preAuthCalls  int
	preAddCalls   int
	postAuthSeen  []bool
	postAddCalls  int
	postListCalls int
}

func (l *vetoListener) Name() string {
	if l.name != "" {
		return l.name
	}
	return "vetoListener"
}

func (l *vetoListener) PreAuthenticate(context.Context, string, *secrets.Secret) (bool, error) {
	l.preAuthCalls++
	return !l.vetoAuth, nil
}

func (l *vetoListener) PostAuthenticate(_ context.Context, _ string, authenticated bool) (bool, error) {
	l.postAuthSeen = append(l.postAuthSeen, authenticated)
	return true, nil
}

func (l *vetoListener) PreAddUser(context.Context, string, *secrets.Secret, []string, map[string]string, string) (bool, error) {
	l.preAddCalls++
	return !l.vetoAddUser, nil
}

func (l *vetoListener) PostAddUser(context.Context, string, []string, map[string]string, string) (bool, error) {
	l.postAddCalls++
	return true, nil
}

func (l *vetoListener) PostGetUserList(context.Context, string, string, string, []string) (bool, error) {
	l.postListCalls++
	return true, nil
}

// recordingErrorListener captures failure fan-outs.
type recordingErrorListener struct {
	failures []userstore.Failure
	stop     bool
}

func (l *recordingErrorListener) OnFailure(_ context.Context, failure userstore.Failure) bool {
	l.failures = append(l.failures, failure)
	return !l.stop
}

func testRealmConfig() *config.RealmConfig {
	return &config.RealmConfig{
		TenantDomain:  "carbon.super",
		AdminUser:     "admin",
		AdminRole:     "admin",
		EveryoneRole:  "everyone",
		AnonymousUser: "anonymous",
		AnonymousRole: "anonymous",
	}
}

type fixture struct {
	manager *userstore.Manager
	ops     *countingStore
	hybrid  *hybrid.Manager
	system  *system.Manager
	cache   *recordingCache
}

// newFixture builds a primary manager over a counting memory store with real
// hybrid and system role managers.
func newFixture(t *testing.T, realmCfg *config.RealmConfig, storeCfg config.StoreConfig, opts ...userstore.Option) *fixture {
	t.Helper()
	if realmCfg == nil {
		realmCfg = testRealmConfig()
	}
	if storeCfg.DomainName == "" {
		storeCfg.DomainName = userstore.PrimaryDomain
	}

	f := &fixture{
		ops:    newCountingStore(),
		hybrid: hybrid.New(),
		system: system.New(),
		cache:  newRecordingCache(),
	}
	base := []userstore.Option{
		userstore.WithHybridRoles(f.hybrid),
		userstore.WithSystemRoles(f.system),
		userstore.WithRolesCache(f.cache),
	}
	manager, err := userstore.New(storeCfg, realmCfg, f.ops, append(base, opts...)...)
	require.NoError(t, err)
	f.manager = manager
	return f
}

// addSecondary attaches a secondary store over its own counting memory
// backend and returns that backend.
func (f *fixture) addSecondary(t *testing.T, realmCfg *config.RealmConfig, storeCfg config.StoreConfig) *countingStore {
	t.Helper()
	if realmCfg == nil {
		realmCfg = testRealmConfig()
	}
	ops := newCountingStore()
	secondary, err := userstore.New(storeCfg, realmCfg, ops)
	require.NoError(t, err)
	require.NoError(t, f.manager.AddSecondaryUserStoreManager(secondary))
	return ops
}

// seedUser creates a user through the raw primitives.
func seedUser(t *testing.T, ops userstore.StoreOps, username, password string) {
	t.Helper()
	secret := secrets.FromString(password)
	defer secret.Clear()
	require.NoError(t, ops.DoAddUser(context.Background(), username, secret, nil, nil, userstore.DefaultProfile))
}
