package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idrealm/pkg/domain-errors"
)

type stubResolver struct {
	roles map[string][]string
	calls int
	err   error
}

func (r *stubResolver) GetRoleListOfUser(_ context.Context, username string) ([]string, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.roles[username], nil
}

func TestIsUserAuthorized(t *testing.T) {
	resolver := &stubResolver{roles: map[string][]string{
		"alice": {"Internal/everyone", "PRIMARY/ops"},
		"bob":   {"Internal/everyone"},
	}}
	m := New(resolver)
	m.Authorize("PRIMARY/ops", "users", "write")

	ok, err := m.IsUserAuthorized(context.Background(), "alice", "users", "write")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.IsUserAuthorized(context.Background(), "bob", "users", "write")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.IsUserAuthorized(context.Background(), "alice", "users", "delete")
	require.NoError(t, err)
	assert.False(t, ok, "grants are per action")
}

func TestRoleKeyFoldsCase(t *testing.T) {
	resolver := &stubResolver{roles: map[string][]string{
		"alice": {"primary/OPS"},
	}}
	m := New(resolver)
	m.Authorize("PRIMARY/ops", "users", "write")

	ok, err := m.IsUserAuthorized(context.Background(), "alice", "users", "write")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDecisionsAreMemoized(t *testing.T) {
	resolver := &stubResolver{roles: map[string][]string{"alice": {"PRIMARY/ops"}}}
	m := New(resolver)
	m.Authorize("PRIMARY/ops", "users", "write")

	_, err := m.IsUserAuthorized(context.Background(), "alice", "users", "write")
	require.NoError(t, err)
	_, err = m.IsUserAuthorized(context.Background(), "alice", "users", "write")
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls, "the second decision comes from the cache")

	// Any grant mutation clears the whole decision cache.
	m.Revoke("PRIMARY/ops", "users", "write")
	ok, err := m.IsUserAuthorized(context.Background(), "alice", "users", "write")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, resolver.calls)
}

func TestClearRoleDropsAllGrants(t *testing.T) {
	resolver := &stubResolver{roles: map[string][]string{"alice": {"PRIMARY/ops"}}}
	m := New(resolver)
	m.Authorize("PRIMARY/ops", "users", "write")
	m.Authorize("PRIMARY/ops", "roles", "write")
	m.ClearRole("PRIMARY/ops")

	ok, err := m.IsUserAuthorized(context.Background(), "alice", "users", "write")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = m.IsUserAuthorized(context.Background(), "alice", "roles", "write")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolverFailureIsDownstream(t *testing.T) {
	resolver := &stubResolver{err: errors.New("store down")}
	m := New(resolver)

	_, err := m.IsUserAuthorized(context.Background(), "alice", "users", "write")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDownstream))
}

func TestEmptyInputsRejected(t *testing.T) {
	m := New(&stubResolver{})

	_, err := m.IsUserAuthorized(context.Background(), "", "users", "write")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
