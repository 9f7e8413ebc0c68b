package userstore

import (
	"context"

	"idrealm/pkg/secrets"
)

// StoreOps is the set of primitives a concrete backing store must provide.
// The orchestrator owns all policy, validation and listener dispatch; a
// store implements only raw access. All names arriving here are domain-free.
type StoreOps interface {
	DoAuthenticate(ctx context.Context, username string, credential *secrets.Secret) (bool, error)

	DoCheckExistingUser(ctx context.Context, username string) (bool, error)
	DoCheckExistingRole(ctx context.Context, role string) (bool, error)

	DoAddUser(ctx context.Context, username string, credential *secrets.Secret, roles []string, claims map[string]string, profile string) error
	DoUpdateCredential(ctx context.Context, username string, newCredential, oldCredential *secrets.Secret) error
	DoUpdateCredentialByAdmin(ctx context.Context, username string, newCredential *secrets.Secret) error
	DoDeleteUser(ctx context.Context, username string) error

	DoSetUserClaimValue(ctx context.Context, username, attribute, value, profile string) error
	DoSetUserClaimValues(ctx context.Context, username string, attributes map[string]string, profile string) error
	DoDeleteUserClaimValue(ctx context.Context, username, attribute, profile string) error
	DoDeleteUserClaimValues(ctx context.Context, username string, attributes []string, profile string) error
	GetUserPropertyValues(ctx context.Context, username string, attributes []string, profile string) (map[string]string, error)

	DoAddRole(ctx context.Context, role string, members []string) error
	DoDeleteRole(ctx context.Context, role string) error
	DoUpdateRoleName(ctx context.Context, oldName, newName string) error
	DoGetRoleNames(ctx context.Context, filter string, limit int) ([]string, error)
	DoCheckIsUserInRole(ctx context.Context, username, role string) (bool, error)
	DoGetUserListOfRole(ctx context.Context, role string) ([]string, error)
	DoGetExternalRoleListOfUser(ctx context.Context, username string) ([]string, error)
	DoGetSharedRoleListOfUser(ctx context.Context, username, tenantDomain, filter string) ([]string, error)
	DoUpdateUserListOfRole(ctx context.Context, role string, deleted, added []string) error
	DoUpdateRoleListOfUser(ctx context.Context, username string, deleted, added []string) error

	DoListUsers(ctx context.Context, filter string, limit int) ([]string, error)
	DoGetUserList(ctx context.Context, attribute, value, profile string, limit int) ([]string, error)
	DoGetPaginatedUserList(ctx context.Context, attribute, value, profile string, limit, offset int) (PaginatedResult, error)
	DoListPaginatedUsers(ctx context.Context, filter string, limit, offset int) (PaginatedResult, error)
}

// HybridRoles persists roles in the Internal/Application/Workflow domains.
// These roles are never written to a concrete store, so read-only and
// write-groups policy does not apply to them.
type HybridRoles interface {
	AddRole(ctx context.Context, role string, members []string) error
	DeleteRole(ctx context.Context, role string) error
	UpdateRoleName(ctx context.Context, oldName, newName string) error
	IsExistingRole(ctx context.Context, role string) (bool, error)
	Roles(ctx context.Context, filter string) ([]string, error)
	RoleListOfUser(ctx context.Context, username string) ([]string, error)
	UserListOfRole(ctx context.Context, role string) ([]string, error)
	UpdateRoleListOfUser(ctx context.Context, username string, deleted, added []string) error
	UpdateUserListOfRole(ctx context.Context, role string, deleted, added []string) error
	IsUserInRole(ctx context.Context, username, role string) (bool, error)
}

// SystemRoles manages SYSTEM-domain identities used for infrastructure
// bookkeeping. They are excluded from normal listings.
type SystemRoles interface {
	AddRole(ctx context.Context, role string, members []string) error
	DeleteRole(ctx context.Context, role string) error
	IsExistingRole(ctx context.Context, role string) (bool, error)
	IsUserInRole(ctx context.Context, username, role string) (bool, error)
	RoleListOfUser(ctx context.Context, username string) ([]string, error)
}

// ClaimMapper resolves a claim URI to the physical attribute name of a
// store, honoring the domain-specific → generic → synthetic fallback chain.
type ClaimMapper interface {
	AttributeName(domain, claimURI string) (string, error)
}

// RolesCache memoizes a user's full role list keyed by (server, tenant,
// case-normalized user). Writers invalidate, never patch.
type RolesCache interface {
	Get(ctx context.Context, tenant, username string) ([]string, bool)
	Put(ctx context.Context, tenant, username string, roles []string)
	Invalidate(ctx context.Context, tenant, username string)
}
