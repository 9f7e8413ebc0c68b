package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesCodeAndID(t *testing.T) {
	err := New(CodeReadOnly, "user store %s is read only", "LDAP1")
	assert.Equal(t, CodeReadOnly, CodeOf(err))
	assert.Contains(t, err.Error(), "30002")
	assert.Contains(t, err.Error(), "LDAP1")
}

func TestWrapNilIsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestHasCodeWalksChain(t *testing.T) {
	cause := New(CodeNotFound, "user bob does not exist")
	wrapped := Wrap(cause, CodeDownstream, "store lookup failed")
	wrapped = fmt.Errorf("outer: %w", wrapped)

	assert.True(t, HasCode(wrapped, CodeDownstream))
	assert.True(t, HasCode(wrapped, CodeNotFound))
	assert.False(t, HasCode(wrapped, CodeReadOnly))
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeDownstream, "store unreachable")
	require.ErrorIs(t, err, cause)
}
