// Package system manages SYSTEM-domain roles. They carry infrastructure
// grants, are excluded from normal role listings and are never exposed
// through the public role surface.
package system

import (
	"context"
	"sort"
	"strings"
	"sync"

	dErrors "idrealm/pkg/domain-errors"
)

// Manager is an in-process system role manager.
type Manager struct {
	mu    sync.RWMutex
	roles map[string]map[string]struct{} // role key -> member keys
	names map[string]string              // role key -> display name
}

// New returns an empty manager.
func New() *Manager {
	return &Manager{
		roles: make(map[string]map[string]struct{}),
		names: make(map[string]string),
	}
}

func key(name string) string {
	return strings.ToLower(name)
}

// AddRole creates a system role with optional members.
func (m *Manager) AddRole(_ context.Context, role string, members []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rk := key(role)
	if _, exists := m.roles[rk]; exists {
		return dErrors.New(dErrors.CodeAlreadyExists, "system role %s already exists", role)
	}
	set := make(map[string]struct{}, len(members))
	for _, member := range members {
		set[key(member)] = struct{}{}
	}
	m.roles[rk] = set
	m.names[rk] = role
	return nil
}

// DeleteRole removes a system role.
func (m *Manager) DeleteRole(_ context.Context, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rk := key(role)
	if _, exists := m.roles[rk]; !exists {
		return dErrors.New(dErrors.CodeNotFound, "system role %s does not exist", role)
	}
	delete(m.roles, rk)
	delete(m.names, rk)
	return nil
}

// IsExistingRole reports whether a system role exists.
func (m *Manager) IsExistingRole(_ context.Context, role string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.roles[key(role)]
	return ok, nil
}

// IsUserInRole reports system role membership.
func (m *Manager) IsUserInRole(_ context.Context, username, role string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members, ok := m.roles[key(role)]
	if !ok {
		return false, nil
	}
	_, member := members[key(username)]
	return member, nil
}

// RoleListOfUser lists the system roles a user holds.
func (m *Manager) RoleListOfUser(_ context.Context, username string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uk := key(username)
	var out []string
	for rk, members := range m.roles {
		if _, member := members[uk]; member {
			out = append(out, m.names[rk])
		}
	}
	sort.Strings(out)
	return out, nil
}

// Grant adds a user to a system role, creating the role if needed. Used by
// realm bootstrap for infrastructure grants.
func (m *Manager) Grant(_ context.Context, username, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rk := key(role)
	if _, ok := m.roles[rk]; !ok {
		m.roles[rk] = make(map[string]struct{})
		m.names[rk] = role
	}
	m.roles[rk][key(username)] = struct{}{}
	return nil
}
