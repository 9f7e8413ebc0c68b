// Package hybrid manages roles in the Internal, Application and Workflow
// domains. These roles live beside the user stores, never inside them, so a
// read-only store can still carry hybrid role assignments.
package hybrid

import (
	"context"
	"sort"
	"strings"
	"sync"

	dErrors "idrealm/pkg/domain-errors"
)

type roleRecord struct {
	name    string
	members map[string]struct{} // normalized user keys
}

// Manager is an in-process hybrid role manager. Role names arrive and leave
// domain-qualified; lookups fold case on both roles and users.
type Manager struct {
	mu    sync.RWMutex
	roles map[string]*roleRecord
	users map[string]string // normalized key -> display name
}

// New returns an empty manager.
func New() *Manager {
	return &Manager{
		roles: make(map[string]*roleRecord),
		users: make(map[string]string),
	}
}

func key(name string) string {
	return strings.ToLower(name)
}

// AddRole creates a hybrid role with optional initial members.
func (m *Manager) AddRole(_ context.Context, role string, members []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rk := key(role)
	if _, exists := m.roles[rk]; exists {
		return dErrors.New(dErrors.CodeAlreadyExists, "role %s already exists", role)
	}
	r := &roleRecord{name: role, members: map[string]struct{}{}}
	for _, member := range members {
		uk := key(member)
		r.members[uk] = struct{}{}
		m.users[uk] = member
	}
	m.roles[rk] = r
	return nil
}

// DeleteRole removes a hybrid role and all its memberships.
func (m *Manager) DeleteRole(_ context.Context, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rk := key(role)
	if _, exists := m.roles[rk]; !exists {
		return dErrors.New(dErrors.CodeNotFound, "role %s does not exist", role)
	}
	delete(m.roles, rk)
	return nil
}

// UpdateRoleName renames a hybrid role, keeping its membership.
func (m *Manager) UpdateRoleName(_ context.Context, oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldKey, newKey := key(oldName), key(newName)
	r, ok := m.roles[oldKey]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "role %s does not exist", oldName)
	}
	if _, exists := m.roles[newKey]; exists && oldKey != newKey {
		return dErrors.New(dErrors.CodeAlreadyExists, "role %s already exists", newName)
	}
	delete(m.roles, oldKey)
	r.name = newName
	m.roles[newKey] = r
	return nil
}

// IsExistingRole reports whether a hybrid role exists.
func (m *Manager) IsExistingRole(_ context.Context, role string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.roles[key(role)]
	return ok, nil
}

// Roles lists hybrid role names matching a '*' wildcard filter.
func (m *Manager) Roles(_ context.Context, filter string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, r := range m.roles {
		if matchFilter(r.name, filter) {
			out = append(out, r.name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// RoleListOfUser lists a user's hybrid roles.
func (m *Manager) RoleListOfUser(_ context.Context, username string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uk := key(username)
	var out []string
	for _, r := range m.roles {
		if _, member := r.members[uk]; member {
			out = append(out, r.name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// UserListOfRole lists a hybrid role's members.
func (m *Manager) UserListOfRole(_ context.Context, role string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[key(role)]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "role %s does not exist", role)
	}
	out := make([]string, 0, len(r.members))
	for uk := range r.members {
		out = append(out, m.users[uk])
	}
	sort.Strings(out)
	return out, nil
}

// UpdateRoleListOfUser adds and removes a user's hybrid memberships. Every
// added role must already exist.
func (m *Manager) UpdateRoleListOfUser(_ context.Context, username string, deleted, added []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	uk := key(username)
	for _, role := range added {
		if _, ok := m.roles[key(role)]; !ok {
			return dErrors.New(dErrors.CodeNotFound, "role %s does not exist", role)
		}
	}
	for _, role := range deleted {
		if r, ok := m.roles[key(role)]; ok {
			delete(r.members, uk)
		}
	}
	for _, role := range added {
		m.roles[key(role)].members[uk] = struct{}{}
		m.users[uk] = username
	}
	return nil
}

// UpdateUserListOfRole adds and removes members of one hybrid role.
func (m *Manager) UpdateUserListOfRole(_ context.Context, role string, deleted, added []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[key(role)]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "role %s does not exist", role)
	}
	for _, member := range deleted {
		delete(r.members, key(member))
	}
	for _, member := range added {
		uk := key(member)
		r.members[uk] = struct{}{}
		m.users[uk] = member
	}
	return nil
}

// IsUserInRole reports hybrid membership.
func (m *Manager) IsUserInRole(_ context.Context, username, role string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[key(role)]
	if !ok {
		return false, nil
	}
	_, member := r.members[key(username)]
	return member, nil
}

func matchFilter(value, filter string) bool {
	if filter == "" || filter == "*" {
		return true
	}
	value = strings.ToLower(value)
	filter = strings.ToLower(filter)
	parts := strings.Split(filter, "*")
	if len(parts) == 1 {
		return value == filter
	}
	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(value, part)
		if idx < 0 {
			return false
		}
		value = value[idx+len(part):]
	}
	return strings.HasSuffix(value, parts[len(parts)-1])
}
