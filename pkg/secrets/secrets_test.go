package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idrealm/pkg/domain-errors"
)

func TestClearZeroesBuffer(t *testing.T) {
	s := FromString("pw1")
	buf := s.Bytes()
	s.Clear()

	for _, b := range buf {
		assert.Zero(t, b)
	}
	assert.NotPanics(t, s.Clear, "second clear must be a no-op")
	assert.Panics(t, func() { s.Bytes() })
}

func TestEqualConstantTime(t *testing.T) {
	a := FromString("pw1")
	b := FromString("pw1")
	c := FromString("pw2")
	defer a.Clear()
	defer b.Clear()
	defer c.Clear()

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))

	b.Clear()
	assert.False(t, a.Equal(b), "cleared secrets never compare equal")
}

func TestHashVerifyRoundTrip(t *testing.T) {
	s := FromString("correct horse")
	defer s.Clear()

	hash, err := Hash(s)
	require.NoError(t, err)
	require.NoError(t, Verify(s, hash))

	wrong := FromString("wrong")
	defer wrong.Clear()
	err = Verify(wrong, hash)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthentication))
}

func TestHashRejectsEmpty(t *testing.T) {
	_, err := Hash(NewSecret(nil))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestGenerate(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
