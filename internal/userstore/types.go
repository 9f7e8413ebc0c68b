// Package userstore implements the federated user store chain: resolution
// of domain-qualified names, the pre/post listener pipeline, and the
// orchestrator that routes every identity operation to the store owning the
// target's domain.
package userstore

import "strings"

// Domain constants. A domain names the store that owns an identity and is
// encoded as a prefix: DOMAIN/name.
const (
	DomainSeparator = "/"

	// PrimaryDomain is the default domain of the chain head.
	PrimaryDomain = "PRIMARY"

	// Hybrid role domains. Roles under these domains are persisted by the
	// hybrid role manager, never by a concrete store.
	InternalDomain    = "Internal"
	ApplicationDomain = "Application"
	WorkflowDomain    = "Workflow"

	// SystemDomain marks infrastructure identities held by the system
	// role manager.
	SystemDomain = "SYSTEM"
)

// Well-known claim URIs. The role claims are synthetic: they are computed
// from the role listings on demand, never read from a stored attribute.
const (
	ClaimUsername             = "http://schemas.idrealm.io/claims/username"
	ClaimDisplayName          = "http://schemas.idrealm.io/claims/displayName"
	ClaimProfileConfiguration = "http://schemas.idrealm.io/claims/profileConfiguration"
	ClaimRole                 = "http://schemas.idrealm.io/claims/role"
	ClaimRoleInternal         = "http://schemas.idrealm.io/claims/role/internal"
	ClaimRoleExternal         = "http://schemas.idrealm.io/claims/role/external"
)

// DefaultProfile is the profile name used when the caller passes none.
const DefaultProfile = "default"

// RoleKind partitions a role name by its domain prefix. The partition is
// re-derived from the prefix on every call and never cached on the role.
type RoleKind int

const (
	RoleExternal RoleKind = iota
	RoleInternal
	RoleApplication
	RoleWorkflow
	RoleSystem
)

// String returns the kind's name for logs.
func (k RoleKind) String() string {
	switch k {
	case RoleInternal:
		return "internal"
	case RoleApplication:
		return "application"
	case RoleWorkflow:
		return "workflow"
	case RoleSystem:
		return "system"
	default:
		return "external"
	}
}

// Hybrid reports whether the role lives in the hybrid role manager.
func (k RoleKind) Hybrid() bool {
	return k == RoleInternal || k == RoleApplication || k == RoleWorkflow
}

// ClassifyRole derives the kind of a possibly domain-qualified role name.
func ClassifyRole(role string) RoleKind {
	domain, _ := SplitDomain(role)
	switch {
	case strings.EqualFold(domain, InternalDomain):
		return RoleInternal
	case strings.EqualFold(domain, ApplicationDomain):
		return RoleApplication
	case strings.EqualFold(domain, WorkflowDomain):
		return RoleWorkflow
	case strings.EqualFold(domain, SystemDomain):
		return RoleSystem
	default:
		return RoleExternal
	}
}

// SplitDomain splits a name on the first domain separator. The domain is
// empty when the name carries no prefix.
func SplitDomain(name string) (domain, rest string) {
	idx := strings.Index(name, DomainSeparator)
	if idx < 0 {
		return "", name
	}
	return name[:idx], name[idx+len(DomainSeparator):]
}

// QualifyName prefixes a domain onto a bare name. Names that already carry
// a prefix are returned unchanged.
func QualifyName(domain, name string) string {
	if domain == "" || strings.Contains(name, DomainSeparator) {
		return name
	}
	return domain + DomainSeparator + name
}

// StripDomain removes any domain prefix.
func StripDomain(name string) string {
	_, rest := SplitDomain(name)
	return rest
}

// PartitionRoles splits a role list into hybrid and external sets, keeping
// input order within each set.
func PartitionRoles(roles []string) (hybrid, external []string) {
	for _, role := range roles {
		if ClassifyRole(role).Hybrid() {
			hybrid = append(hybrid, role)
		} else {
			external = append(external, role)
		}
	}
	return hybrid, external
}

// PaginatedResult carries one store's page of matches plus the number of
// candidates the store had to skip client-side, so offset accounting stays
// correct when the store's native filtering can only approximate the
// requested predicate.
type PaginatedResult struct {
	Names        []string
	SkippedCount int
}

// DedupeMerge unions string slices preserving first-seen order.
func DedupeMerge(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
