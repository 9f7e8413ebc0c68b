package userstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"idrealm/internal/userstore"
)

func TestSplitDomain(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantDomain string
		wantRest   string
	}{
		{"bare name", "bob", "", "bob"},
		{"qualified", "LDAP1/bob", "LDAP1", "bob"},
		{"nested separator stays in rest", "LDAP1/ou/bob", "LDAP1", "ou/bob"},
		{"empty domain", "/bob", "", "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			domain, rest := userstore.SplitDomain(tt.in)
			assert.Equal(t, tt.wantDomain, domain)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestQualifyName(t *testing.T) {
	assert.Equal(t, "PRIMARY/bob", userstore.QualifyName("PRIMARY", "bob"))
	assert.Equal(t, "LDAP1/bob", userstore.QualifyName("PRIMARY", "LDAP1/bob"))
	assert.Equal(t, "bob", userstore.QualifyName("", "bob"))
}

func TestClassifyRole(t *testing.T) {
	assert.Equal(t, userstore.RoleInternal, userstore.ClassifyRole("Internal/ops"))
	assert.Equal(t, userstore.RoleInternal, userstore.ClassifyRole("internal/ops"))
	assert.Equal(t, userstore.RoleApplication, userstore.ClassifyRole("Application/portal"))
	assert.Equal(t, userstore.RoleWorkflow, userstore.ClassifyRole("Workflow/approvals"))
	assert.Equal(t, userstore.RoleSystem, userstore.ClassifyRole("SYSTEM/bootstrap"))
	assert.Equal(t, userstore.RoleExternal, userstore.ClassifyRole("LDAP1/engineers"))
	assert.Equal(t, userstore.RoleExternal, userstore.ClassifyRole("engineers"))

	assert.True(t, userstore.RoleInternal.Hybrid())
	assert.True(t, userstore.RoleApplication.Hybrid())
	assert.False(t, userstore.RoleSystem.Hybrid())
	assert.False(t, userstore.RoleExternal.Hybrid())
}

func TestPartitionRoles(t *testing.T) {
	hybrid, external := userstore.PartitionRoles([]string{
		"Internal/ops", "engineers", "Application/portal", "LDAP1/sales",
	})
	assert.Equal(t, []string{"Internal/ops", "Application/portal"}, hybrid)
	assert.Equal(t, []string{"engineers", "LDAP1/sales"}, external)
}

func TestDedupeMerge(t *testing.T) {
	merged := userstore.DedupeMerge(
		[]string{"a", "b"},
		[]string{"b", "c"},
		nil,
		[]string{"a", "d"},
	)
	assert.Equal(t, []string{"a", "b", "c", "d"}, merged)
}
