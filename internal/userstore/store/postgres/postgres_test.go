package postgres

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestLikePattern(t *testing.T) {
	tests := []struct {
		filter string
		want   string
	}{
		{"", "%"},
		{"*", "%"},
		{"alice", "alice"},
		{"al*", "al%"},
		{"*ce", "%ce"},
		{"a*i*e", "a%i%e"},
		{"we_ird", `we\_ird`},
		{"50%", `50\%`},
		{`back\slash`, `back\\slash`},
		{"we_*", `we\_%`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, likePattern(tt.filter), "filter %q", tt.filter)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(assert.AnError))
}
