//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idrealm/internal/userstore"
	dErrors "idrealm/pkg/domain-errors"
	"idrealm/pkg/secrets"
	"idrealm/pkg/testutil/containers"
)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	dsn := containers.StartPostgres(t)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(context.Background()))

	store := New(db, opts...)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func addUser(t *testing.T, store *Store, username, password string) {
	t.Helper()
	credential := secrets.FromString(password)
	defer credential.Clear()
	require.NoError(t, store.DoAddUser(context.Background(), username, credential, nil, nil, "default"))
}

func TestPostgresStore(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	t.Run("user round trip", func(t *testing.T) {
		addUser(t, store, "alice", "alice-pw")

		exists, err := store.DoCheckExistingUser(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, exists)

		good := secrets.FromString("alice-pw")
		ok, err := store.DoAuthenticate(ctx, "alice", good)
		require.NoError(t, err)
		assert.True(t, ok)

		bad := secrets.FromString("wrong")
		ok, err = store.DoAuthenticate(ctx, "alice", bad)
		require.NoError(t, err)
		assert.False(t, ok, "credential mismatch is a non-match, not an error")

		ok, err = store.DoAuthenticate(ctx, "nobody", good)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("duplicate user conflicts", func(t *testing.T) {
		addUser(t, store, "bob", "bob-pw")

		credential := secrets.FromString("bob-pw")
		err := store.DoAddUser(ctx, "bob", credential, nil, nil, "default")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	t.Run("credential update checks the old secret", func(t *testing.T) {
		addUser(t, store, "carol", "carol-pw")

		err := store.DoUpdateCredential(ctx, "carol",
			secrets.FromString("new-pw"), secrets.FromString("wrong"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthentication))

		require.NoError(t, store.DoUpdateCredential(ctx, "carol",
			secrets.FromString("new-pw"), secrets.FromString("carol-pw")))

		ok, err := store.DoAuthenticate(ctx, "carol", secrets.FromString("new-pw"))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("admin credential update requires the user", func(t *testing.T) {
		err := store.DoUpdateCredentialByAdmin(ctx, "ghost", secrets.FromString("x-pw"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("roles and membership", func(t *testing.T) {
		addUser(t, store, "dave", "dave-pw")
		addUser(t, store, "erin", "erin-pw")

		require.NoError(t, store.DoAddRole(ctx, "engineers", []string{"dave"}))

		err := store.DoAddRole(ctx, "engineers", nil)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))

		exists, err := store.DoCheckExistingRole(ctx, "ENGINEERS")
		require.NoError(t, err)
		assert.True(t, exists, "role lookup folds case")

		require.NoError(t, store.DoUpdateUserListOfRole(ctx, "engineers", nil, []string{"erin"}))

		members, err := store.DoGetUserListOfRole(ctx, "Engineers")
		require.NoError(t, err)
		assert.Equal(t, []string{"dave", "erin"}, members)

		inRole, err := store.DoCheckIsUserInRole(ctx, "dave", "ENGINEERS")
		require.NoError(t, err)
		assert.True(t, inRole)

		require.NoError(t, store.DoUpdateRoleListOfUser(ctx, "dave", []string{"engineers"}, nil))
		inRole, err = store.DoCheckIsUserInRole(ctx, "dave", "engineers")
		require.NoError(t, err)
		assert.False(t, inRole)

		roles, err := store.DoGetExternalRoleListOfUser(ctx, "erin")
		require.NoError(t, err)
		assert.Equal(t, []string{"engineers"}, roles)
	})

	t.Run("role rename keeps members", func(t *testing.T) {
		addUser(t, store, "fred", "fred-pw")
		require.NoError(t, store.DoAddRole(ctx, "support", []string{"fred"}))

		require.NoError(t, store.DoUpdateRoleName(ctx, "support", "helpdesk"))

		exists, err := store.DoCheckExistingRole(ctx, "support")
		require.NoError(t, err)
		assert.False(t, exists)

		members, err := store.DoGetUserListOfRole(ctx, "helpdesk")
		require.NoError(t, err)
		assert.Equal(t, []string{"fred"}, members)
	})

	t.Run("deleting missing identities is not found", func(t *testing.T) {
		err := store.DoDeleteUser(ctx, "ghost")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

		err = store.DoDeleteRole(ctx, "ghost-role")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("deleting a user detaches memberships", func(t *testing.T) {
		addUser(t, store, "gina", "gina-pw")
		require.NoError(t, store.DoAddRole(ctx, "ops", []string{"gina"}))

		require.NoError(t, store.DoDeleteUser(ctx, "gina"))

		members, err := store.DoGetUserListOfRole(ctx, "ops")
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	t.Run("attributes", func(t *testing.T) {
		addUser(t, store, "hank", "hank-pw")

		require.NoError(t, store.DoSetUserClaimValues(ctx, "hank", map[string]string{
			"display_name": "Hank H",
			"department":   "platform",
		}, "default"))
		require.NoError(t, store.DoSetUserClaimValue(ctx, "hank", "display_name", "Hank Hill", "default"))

		values, err := store.GetUserPropertyValues(ctx, "hank",
			[]string{"display_name", "department", "missing"}, "default")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"display_name": "Hank Hill",
			"department":   "platform",
		}, values, "upsert overwrites and absent attributes are omitted")

		require.NoError(t, store.DoDeleteUserClaimValues(ctx, "hank", []string{"department"}, "default"))
		values, err = store.GetUserPropertyValues(ctx, "hank", []string{"department"}, "default")
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("attribute search", func(t *testing.T) {
		addUser(t, store, "iris", "iris-pw")
		addUser(t, store, "ivan", "ivan-pw")
		require.NoError(t, store.DoSetUserClaimValue(ctx, "iris", "city", "Dublin", "default"))
		require.NoError(t, store.DoSetUserClaimValue(ctx, "ivan", "city", "Dresden", "default"))

		names, err := store.DoGetUserList(ctx, "city", "d*", "default", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"iris", "ivan"}, names, "value match is case insensitive")

		names, err = store.DoGetUserList(ctx, "city", "Dub*", "default", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"iris"}, names)

		page, err := store.DoGetPaginatedUserList(ctx, "city", "d*", "default", 1, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"ivan"}, page.Names)
		assert.Equal(t, 1, page.SkippedCount)
	})

	t.Run("listing and pagination", func(t *testing.T) {
		for _, name := range []string{"qaa", "qbb", "qcc", "qdd"} {
			addUser(t, store, name, name+"-pw")
		}

		names, err := store.DoListUsers(ctx, "q*", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"qaa", "qbb"}, names)

		page, err := store.DoListPaginatedUsers(ctx, "q*", 2, 1)
		require.NoError(t, err)
		assert.Equal(t, userstore.PaginatedResult{
			Names:        []string{"qbb", "qcc"},
			SkippedCount: 1,
		}, page)

		page, err = store.DoListPaginatedUsers(ctx, "q*", 10, 9)
		require.NoError(t, err)
		assert.Empty(t, page.Names)
		assert.Equal(t, 9, page.SkippedCount)
	})

	t.Run("like metacharacters stay literal", func(t *testing.T) {
		addUser(t, store, "we_ird", "we-pw")
		addUser(t, store, "weXird", "we-pw")

		names, err := store.DoListUsers(ctx, "we_ird", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"we_ird"}, names, "underscore must not act as a single-char wildcard")
	})

	t.Run("role name filter", func(t *testing.T) {
		require.NoError(t, store.DoAddRole(ctx, "audit-read", nil))
		require.NoError(t, store.DoAddRole(ctx, "audit-write", nil))

		names, err := store.DoGetRoleNames(ctx, "audit-*", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"audit-read", "audit-write"}, names)
	})
}

func TestPostgresStoreCaseInsensitive(t *testing.T) {
	store := newStore(t, WithCaseInsensitiveUsernames())
	ctx := context.Background()

	addUser(t, store, "Nina", "nina-pw")

	exists, err := store.DoCheckExistingUser(ctx, "NINA")
	require.NoError(t, err)
	assert.True(t, exists)

	ok, err := store.DoAuthenticate(ctx, "nina", secrets.FromString("nina-pw"))
	require.NoError(t, err)
	assert.True(t, ok)
}
