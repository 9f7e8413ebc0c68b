package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idrealm/pkg/domain-errors"
)

func TestIssueParseRoundTrip(t *testing.T) {
	issuer, err := New("test-key", "idrealm", time.Hour)
	require.NoError(t, err)

	token, err := issuer.Issue("PRIMARY/alice", []string{"Internal/everyone", "PRIMARY/ops"}, time.Now())
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "PRIMARY/alice", claims.Subject)
	assert.Equal(t, "idrealm", claims.Issuer)
	assert.Equal(t, []string{"Internal/everyone", "PRIMARY/ops"}, claims.Roles)
	assert.NotEmpty(t, claims.ID)
}

func TestParseRejectsWrongKey(t *testing.T) {
	a, err := New("key-a", "idrealm", time.Hour)
	require.NoError(t, err)
	b, err := New("key-b", "idrealm", time.Hour)
	require.NoError(t, err)

	token, err := a.Issue("PRIMARY/alice", nil, time.Now())
	require.NoError(t, err)

	_, err = b.Parse(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthentication))
}

func TestParseRejectsExpiredToken(t *testing.T) {
	issuer, err := New("test-key", "idrealm", time.Minute)
	require.NoError(t, err)

	token, err := issuer.Issue("PRIMARY/alice", nil, time.Now().Add(-2*time.Minute))
	require.NoError(t, err)

	_, err = issuer.Parse(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthentication))
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	a, err := New("test-key", "idrealm", time.Hour)
	require.NoError(t, err)
	b, err := New("test-key", "someone-else", time.Hour)
	require.NoError(t, err)

	token, err := b.Issue("PRIMARY/alice", nil, time.Now())
	require.NoError(t, err)

	_, err = a.Parse(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthentication))
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New("", "idrealm", time.Hour)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))
}

func TestParseRejectsGarbage(t *testing.T) {
	issuer, err := New("test-key", "idrealm", time.Hour)
	require.NoError(t, err)

	_, err = issuer.Parse("not-a-token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthentication))
}
