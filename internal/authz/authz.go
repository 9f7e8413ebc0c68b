// Package authz answers permission questions by joining role-to-permission
// grants against the user store's role resolution.
package authz

import (
	"context"
	"fmt"
	"strings"
	"sync"

	dErrors "idrealm/pkg/domain-errors"
)

// RoleResolver yields a user's full, domain-qualified role list.
type RoleResolver interface {
	GetRoleListOfUser(ctx context.Context, username string) ([]string, error)
}

// Manager evaluates (user, resource, action) against role grants. Grants are
// keyed by role; decisions are memoized until a grant mutation clears the
// decision cache wholesale.
type Manager struct {
	roles RoleResolver

	mu     sync.RWMutex
	grants map[string]map[string]struct{} // role key -> resource:action
	cache  map[string]bool                // user|resource:action -> allowed
}

// New builds a Manager over a role resolver.
func New(roles RoleResolver) *Manager {
	return &Manager{
		roles:  roles,
		grants: make(map[string]map[string]struct{}),
		cache:  make(map[string]bool),
	}
}

func roleKey(role string) string {
	return strings.ToLower(role)
}

func permission(resource, action string) string {
	return resource + ":" + action
}

// Authorize grants a role a permission. Clears the decision cache.
func (m *Manager) Authorize(role, resource, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rk := roleKey(role)
	if m.grants[rk] == nil {
		m.grants[rk] = make(map[string]struct{})
	}
	m.grants[rk][permission(resource, action)] = struct{}{}
	m.cache = make(map[string]bool)
}

// Revoke removes a role's permission. Clears the decision cache.
func (m *Manager) Revoke(role, resource, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants[roleKey(role)], permission(resource, action))
	m.cache = make(map[string]bool)
}

// ClearRole drops every grant a role holds, for role deletion and rename.
func (m *Manager) ClearRole(role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, roleKey(role))
	m.cache = make(map[string]bool)
}

// IsUserAuthorized reports whether any of the user's roles carries the
// permission.
func (m *Manager) IsUserAuthorized(ctx context.Context, username, resource, action string) (bool, error) {
	if username == "" || resource == "" || action == "" {
		return false, dErrors.New(dErrors.CodeInvalidInput, "username, resource and action are required")
	}

	decisionKey := fmt.Sprintf("%s|%s", strings.ToLower(username), permission(resource, action))
	m.mu.RLock()
	if allowed, ok := m.cache[decisionKey]; ok {
		m.mu.RUnlock()
		return allowed, nil
	}
	m.mu.RUnlock()

	roles, err := m.roles.GetRoleListOfUser(ctx, username)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeDownstream, "role resolution failed")
	}

	perm := permission(resource, action)
	allowed := false
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range roles {
		if grants, ok := m.grants[roleKey(role)]; ok {
			if _, ok := grants[perm]; ok {
				allowed = true
				break
			}
		}
	}
	m.cache[decisionKey] = allowed
	return allowed, nil
}
