package userstore

import (
	"context"
	"strings"

	dErrors "idrealm/pkg/domain-errors"
	"idrealm/pkg/requestcontext"
)

const (
	opAddRole              = "add_role"
	opDeleteRole           = "delete_role"
	opUpdateRoleName       = "update_role_name"
	opUpdateUserListOfRole = "update_user_list_of_role"
	opUpdateRoleListOfUser = "update_role_list_of_user"
	opGetRoleListOfUser    = "get_role_list_of_user"
)

// IsExistingRole reports whether a role exists, routing hybrid and system
// domains to their dedicated managers.
func (m *Manager) IsExistingRole(ctx context.Context, role string) (bool, error) {
	resolved, err := m.resolve(role)
	if err != nil {
		return false, err
	}
	switch {
	case resolved.Recursive:
		return resolved.Manager.IsExistingRole(ctx, resolved.DomainFreeName)
	case resolved.HybridRole:
		return m.hybrid.IsExistingRole(ctx, resolved.DomainAwareName)
	case resolved.SystemStore:
		return m.system.IsExistingRole(ctx, resolved.DomainFreeName)
	default:
		return m.ops.DoCheckExistingRole(ctx, resolved.DomainFreeName)
	}
}

// AddRole creates a role and optionally assigns initial members.
//
// Hybrid-domain roles are persisted by the hybrid role manager and bypass
// the store's read-only and write-groups policy entirely; external roles are
// subject to both.
func (m *Manager) AddRole(ctx context.Context, role string, members []string) error {
	ctx, span := m.tracer.Start(ctx, "userstore.AddRole")
	defer span.End()

	resolved, err := m.resolve(role)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opAddRole, Role: role})
	}
	if resolved.Recursive {
		return resolved.Manager.AddRole(ctx, resolved.DomainFreeName, members)
	}
	if resolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput, "system roles are managed internally and cannot be added here")
		return m.fail(ctx, err, Failure{Operation: opAddRole, Role: role})
	}

	if resolved.HybridRole {
		return m.addHybridRole(ctx, resolved, members)
	}

	if m.ReadOnly() {
		err := dErrors.New(dErrors.CodeReadOnly, "user store %s is read only", m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opAddRole, Role: resolved.DomainAwareName})
	}
	if !m.cfg.WriteGroups() {
		err := dErrors.New(dErrors.CodePolicyViolation, "group writes are disabled for user store %s", m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opAddRole, Role: resolved.DomainAwareName})
	}

	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())
	name := resolved.DomainFreeName

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreAddRole(ctx, name, members)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre add role listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opAddRole, Role: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opAddRole)
			return nil
		}
	}

	if err := m.validateRoleName(name); err != nil {
		return m.fail(ctx, err, Failure{Operation: opAddRole, Role: resolved.DomainAwareName})
	}

	exists, err := m.ops.DoCheckExistingRole(ctx, name)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "role existence check failed")
		return m.fail(ctx, wrapped, Failure{Operation: opAddRole, Role: resolved.DomainAwareName})
	}
	if exists {
		err := dErrors.New(dErrors.CodeAlreadyExists, "role %s already exists in domain %s", name, m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opAddRole, Role: resolved.DomainAwareName})
	}

	memberFree := make([]string, 0, len(members))
	for _, member := range members {
		free := StripDomain(member)
		ok, err := m.ops.DoCheckExistingUser(ctx, free)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "member existence check failed")
			return m.fail(ctx, wrapped, Failure{Operation: opAddRole, Role: resolved.DomainAwareName, Username: member})
		}
		if !ok {
			err := dErrors.New(dErrors.CodeNotFound, "user %s does not exist in domain %s", free, m.DomainName())
			return m.fail(ctx, err, Failure{Operation: opAddRole, Role: resolved.DomainAwareName, Username: member})
		}
		memberFree = append(memberFree, free)
	}

	if err := m.ops.DoAddRole(ctx, name, memberFree); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "store rejected add role")
		return m.fail(ctx, wrapped, Failure{Operation: opAddRole, Role: resolved.DomainAwareName})
	}

	for _, member := range memberFree {
		m.invalidateRoles(ctx, member)
	}

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostAddRole(ctx, name, members)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post add role listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opAddRole, Role: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opAddRole)
			break
		}
	}

	m.metrics.IncOperation(opAddRole, "success")
	return nil
}

// addHybridRole runs the internal-role listener specialization and delegates
// persistence to the hybrid role manager. Read-only policy never applies:
// hybrid roles are not written to the concrete store.
func (m *Manager) addHybridRole(ctx context.Context, resolved *ResolvedStore, members []string) error {
	ctx = requestcontext.WithResolvedDomain(ctx, resolved.DomainName)
	aware := resolved.DomainAwareName

	for _, ol := range m.listeners.Operation() {
		irl, is := ol.(InternalRoleListener)
		if !is {
			continue
		}
		ok, err := irl.PreAddInternalRole(ctx, aware, members)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre add internal role listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opAddRole, Role: aware, Domain: resolved.DomainName})
		}
		if !ok {
			m.veto(ctx, opAddRole)
			return nil
		}
	}

	if err := m.validateRoleName(resolved.DomainFreeName); err != nil {
		return m.fail(ctx, err, Failure{Operation: opAddRole, Role: aware, Domain: resolved.DomainName})
	}

	exists, err := m.hybrid.IsExistingRole(ctx, aware)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "internal role existence check failed")
		return m.fail(ctx, wrapped, Failure{Operation: opAddRole, Role: aware, Domain: resolved.DomainName})
	}
	if exists {
		err := dErrors.New(dErrors.CodeAlreadyExists, "role %s already exists", aware)
		return m.fail(ctx, err, Failure{Operation: opAddRole, Role: aware, Domain: resolved.DomainName})
	}

	if err := m.hybrid.AddRole(ctx, aware, members); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "hybrid role manager rejected add role")
		return m.fail(ctx, wrapped, Failure{Operation: opAddRole, Role: aware, Domain: resolved.DomainName})
	}

	for _, member := range members {
		m.invalidateRoles(ctx, member)
	}

	for _, ol := range m.listeners.Operation() {
		irl, is := ol.(InternalRoleListener)
		if !is {
			continue
		}
		ok, err := irl.PostAddInternalRole(ctx, aware, members)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post add internal role listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opAddRole, Role: aware, Domain: resolved.DomainName})
		}
		if !ok {
			m.veto(ctx, opAddRole)
			break
		}
	}

	m.metrics.IncOperation(opAddRole, "success")
	return nil
}

// DeleteRole removes a role. The realm admin role and the everyone role are
// protected and can never be deleted.
func (m *Manager) DeleteRole(ctx context.Context, role string) error {
	ctx, span := m.tracer.Start(ctx, "userstore.DeleteRole")
	defer span.End()

	resolved, err := m.resolve(role)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opDeleteRole, Role: role})
	}
	if resolved.Recursive {
		return resolved.Manager.DeleteRole(ctx, resolved.DomainFreeName)
	}
	if resolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput, "system roles are managed internally and cannot be deleted here")
		return m.fail(ctx, err, Failure{Operation: opDeleteRole, Role: role})
	}

	if m.isAdminRole(resolved.DomainAwareName) {
		err := dErrors.New(dErrors.CodePolicyViolation, "cannot delete the admin role")
		return m.fail(ctx, err, Failure{Operation: opDeleteRole, Role: resolved.DomainAwareName})
	}
	if m.isEveryoneRole(resolved.DomainAwareName) {
		err := dErrors.New(dErrors.CodePolicyViolation, "cannot delete the everyone role")
		return m.fail(ctx, err, Failure{Operation: opDeleteRole, Role: resolved.DomainAwareName})
	}

	if resolved.HybridRole {
		return m.deleteHybridRole(ctx, resolved)
	}

	if m.ReadOnly() {
		err := dErrors.New(dErrors.CodeReadOnly, "user store %s is read only", m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opDeleteRole, Role: resolved.DomainAwareName})
	}
	if !m.cfg.WriteGroups() {
		err := dErrors.New(dErrors.CodePolicyViolation, "group writes are disabled for user store %s", m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opDeleteRole, Role: resolved.DomainAwareName})
	}

	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())
	name := resolved.DomainFreeName

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreDeleteRole(ctx, name)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre delete role listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opDeleteRole, Role: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opDeleteRole)
			return nil
		}
	}

	exists, err := m.ops.DoCheckExistingRole(ctx, name)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "role existence check failed")
		return m.fail(ctx, wrapped, Failure{Operation: opDeleteRole, Role: resolved.DomainAwareName})
	}
	if !exists {
		err := dErrors.New(dErrors.CodeNotFound, "role %s does not exist in domain %s", name, m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opDeleteRole, Role: resolved.DomainAwareName})
	}

	members, err := m.ops.DoGetUserListOfRole(ctx, name)
	if err != nil {
		members = nil
	}

	if err := m.ops.DoDeleteRole(ctx, name); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "store rejected delete role")
		return m.fail(ctx, wrapped, Failure{Operation: opDeleteRole, Role: resolved.DomainAwareName})
	}

	for _, member := range members {
		m.invalidateRoles(ctx, member)
	}

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostDeleteRole(ctx, name)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post delete role listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opDeleteRole, Role: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opDeleteRole)
			break
		}
	}

	m.metrics.IncOperation(opDeleteRole, "success")
	return nil
}

func (m *Manager) deleteHybridRole(ctx context.Context, resolved *ResolvedStore) error {
	ctx = requestcontext.WithResolvedDomain(ctx, resolved.DomainName)
	aware := resolved.DomainAwareName

	for _, ol := range m.listeners.Operation() {
		irl, is := ol.(InternalRoleListener)
		if !is {
			continue
		}
		ok, err := irl.PreDeleteInternalRole(ctx, aware)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre delete internal role listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opDeleteRole, Role: aware, Domain: resolved.DomainName})
		}
		if !ok {
			m.veto(ctx, opDeleteRole)
			return nil
		}
	}

	exists, err := m.hybrid.IsExistingRole(ctx, aware)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "internal role existence check failed")
		return m.fail(ctx, wrapped, Failure{Operation: opDeleteRole, Role: aware, Domain: resolved.DomainName})
	}
	if !exists {
		err := dErrors.New(dErrors.CodeNotFound, "role %s does not exist", aware)
		return m.fail(ctx, err, Failure{Operation: opDeleteRole, Role: aware, Domain: resolved.DomainName})
	}

	members, err := m.hybrid.UserListOfRole(ctx, aware)
	if err != nil {
		members = nil
	}

	if err := m.hybrid.DeleteRole(ctx, aware); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "hybrid role manager rejected delete role")
		return m.fail(ctx, wrapped, Failure{Operation: opDeleteRole, Role: aware, Domain: resolved.DomainName})
	}

	for _, member := range members {
		m.invalidateRoles(ctx, member)
	}

	for _, ol := range m.listeners.Operation() {
		irl, is := ol.(InternalRoleListener)
		if !is {
			continue
		}
		ok, err := irl.PostDeleteInternalRole(ctx, aware)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post delete internal role listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opDeleteRole, Role: aware, Domain: resolved.DomainName})
		}
		if !ok {
			m.veto(ctx, opDeleteRole)
			break
		}
	}

	m.metrics.IncOperation(opDeleteRole, "success")
	return nil
}

// UpdateRoleName renames a role within its domain. Cross-domain renames are
// rejected before any listener runs.
func (m *Manager) UpdateRoleName(ctx context.Context, oldName, newName string) error {
	ctx, span := m.tracer.Start(ctx, "userstore.UpdateRoleName")
	defer span.End()

	oldResolved, err := m.resolve(oldName)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opUpdateRoleName, Role: oldName})
	}
	newResolved, err := m.resolve(newName)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opUpdateRoleName, Role: newName})
	}
	if !strings.EqualFold(oldResolved.DomainName, newResolved.DomainName) {
		err := dErrors.New(dErrors.CodeInvalidInput,
			"cannot move role from domain %s to domain %s", oldResolved.DomainName, newResolved.DomainName)
		return m.fail(ctx, err, Failure{Operation: opUpdateRoleName, Role: oldResolved.DomainAwareName})
	}
	if oldResolved.Recursive {
		return oldResolved.Manager.UpdateRoleName(ctx, oldResolved.DomainFreeName, newResolved.DomainFreeName)
	}
	if oldResolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput, "system roles cannot be renamed")
		return m.fail(ctx, err, Failure{Operation: opUpdateRoleName, Role: oldName})
	}
	if m.isAdminRole(oldResolved.DomainAwareName) || m.isEveryoneRole(oldResolved.DomainAwareName) {
		err := dErrors.New(dErrors.CodePolicyViolation, "cannot rename a protected realm role")
		return m.fail(ctx, err, Failure{Operation: opUpdateRoleName, Role: oldResolved.DomainAwareName})
	}

	hybrid := oldResolved.HybridRole
	if !hybrid {
		if m.ReadOnly() {
			err := dErrors.New(dErrors.CodeReadOnly, "user store %s is read only", m.DomainName())
			return m.fail(ctx, err, Failure{Operation: opUpdateRoleName, Role: oldResolved.DomainAwareName})
		}
		if !m.cfg.WriteGroups() {
			err := dErrors.New(dErrors.CodePolicyViolation, "group writes are disabled for user store %s", m.DomainName())
			return m.fail(ctx, err, Failure{Operation: opUpdateRoleName, Role: oldResolved.DomainAwareName})
		}
	}

	ctx = requestcontext.WithResolvedDomain(ctx, oldResolved.DomainName)
	oldFree, newFree := oldResolved.DomainFreeName, newResolved.DomainFreeName

	for _, sl := range m.listeners.Store() {
		ok, err := sl.PreUpdateRoleName(ctx, oldFree, newFree)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre update role name listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateRoleName, Role: oldResolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opUpdateRoleName)
			return nil
		}
	}
	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreUpdateRoleName(ctx, oldFree, newFree)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre update role name listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateRoleName, Role: oldResolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opUpdateRoleName)
			return nil
		}
	}

	if err := m.validateRoleName(newFree); err != nil {
		return m.fail(ctx, err, Failure{Operation: opUpdateRoleName, Role: newResolved.DomainAwareName})
	}

	newExists, err := m.IsExistingRole(ctx, newResolved.DomainAwareName)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "role existence check failed")
		return m.fail(ctx, wrapped, Failure{Operation: opUpdateRoleName, Role: newResolved.DomainAwareName})
	}
	if newExists {
		err := dErrors.New(dErrors.CodeAlreadyExists, "role %s already exists", newResolved.DomainAwareName)
		return m.fail(ctx, err, Failure{Operation: opUpdateRoleName, Role: newResolved.DomainAwareName})
	}

	if hybrid {
		if err := m.hybrid.UpdateRoleName(ctx, oldResolved.DomainAwareName, newResolved.DomainAwareName); err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "hybrid role manager rejected rename")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateRoleName, Role: oldResolved.DomainAwareName})
		}
	} else {
		if err := m.ops.DoUpdateRoleName(ctx, oldFree, newFree); err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "store rejected rename")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateRoleName, Role: oldResolved.DomainAwareName})
		}
	}

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostUpdateRoleName(ctx, oldFree, newFree)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post update role name listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateRoleName, Role: oldResolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opUpdateRoleName)
			break
		}
	}

	m.metrics.IncOperation(opUpdateRoleName, "success")
	return nil
}

// IsUserInRole answers membership with the realm's shortcut semantics: every
// existing user holds the everyone role, the anonymous user holds exactly
// its built-in role, the admin user always holds the admin role, and hybrid
// membership is consulted before the concrete store.
func (m *Manager) IsUserInRole(ctx context.Context, username, role string) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "userstore.IsUserInRole")
	defer span.End()

	if username == "" || role == "" {
		return false, dErrors.New(dErrors.CodeInvalidInput, "username and role are required")
	}

	userResolved, err := m.resolve(username)
	if err != nil {
		return false, err
	}
	if userResolved.Recursive {
		return userResolved.Manager.IsUserInRole(ctx, userResolved.DomainFreeName, role)
	}

	if m.isEveryoneRole(role) {
		if m.isAnonymousUser(userResolved.DomainFreeName) {
			return false, nil
		}
		return m.ops.DoCheckExistingUser(ctx, userResolved.DomainFreeName)
	}
	if m.isAnonymousUser(userResolved.DomainFreeName) {
		return m.isAnonymousRole(role), nil
	}
	if m.isAdminUser(userResolved.DomainFreeName) && m.isAdminRole(role) {
		return true, nil
	}

	roleResolved, err := m.resolve(role)
	if err != nil {
		return false, err
	}
	if m.domainRestricted(roleResolved.DomainName) {
		return false, nil
	}

	switch {
	case roleResolved.HybridRole:
		ok, err := m.hybrid.IsUserInRole(ctx, userResolved.DomainAwareName, roleResolved.DomainAwareName)
		if err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeDownstream, "hybrid membership check failed")
		}
		return ok, nil
	case roleResolved.SystemStore:
		ok, err := m.system.IsUserInRole(ctx, userResolved.DomainAwareName, roleResolved.DomainFreeName)
		if err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeDownstream, "system membership check failed")
		}
		return ok, nil
	case roleResolved.Recursive:
		// Membership of a foreign domain's role is answered by its owner.
		return roleResolved.Manager.ops.DoCheckIsUserInRole(ctx, StripDomain(username), roleResolved.DomainFreeName)
	default:
		return m.ops.DoCheckIsUserInRole(ctx, userResolved.DomainFreeName, roleResolved.DomainFreeName)
	}
}

// GetRoleListOfUser assembles a user's full role list: hybrid roles, the
// owning store's external roles, shared roles when the store participates in
// sharing, and the realm's everyone role. The merged list is memoized in the
// roles cache until a mutation invalidates it.
func (m *Manager) GetRoleListOfUser(ctx context.Context, username string) ([]string, error) {
	ctx, span := m.tracer.Start(ctx, "userstore.GetRoleListOfUser")
	defer span.End()

	resolved, err := m.resolve(username)
	if err != nil {
		return nil, m.fail(ctx, err, Failure{Operation: opGetRoleListOfUser, Username: username})
	}
	if resolved.Recursive {
		return resolved.Manager.GetRoleListOfUser(ctx, resolved.DomainFreeName)
	}

	cacheKey := m.normalizeUser(resolved.DomainAwareName)
	if m.rolesCache != nil && m.realm.RolesCacheEnabled() {
		if roles, ok := m.rolesCache.Get(ctx, m.realm.TenantDomain, cacheKey); ok {
			m.metrics.IncCacheHit("user_roles")
			return roles, nil
		}
		m.metrics.IncCacheMiss("user_roles")
	}

	if m.isAnonymousUser(resolved.DomainFreeName) {
		return []string{QualifyName(InternalDomain, m.realm.AnonymousRole)}, nil
	}

	hybridRoles, err := m.hybrid.RoleListOfUser(ctx, resolved.DomainAwareName)
	if err != nil {
		return nil, m.fail(ctx, dErrors.Wrap(err, dErrors.CodeDownstream, "internal role listing failed"),
			Failure{Operation: opGetRoleListOfUser, Username: resolved.DomainAwareName})
	}

	externalRoles, err := m.externalRoleListOfUser(ctx, resolved.DomainFreeName)
	if err != nil {
		return nil, m.fail(ctx, err, Failure{Operation: opGetRoleListOfUser, Username: resolved.DomainAwareName})
	}

	var sharedRoles []string
	if m.cfg.SharedGroupsEnabled {
		sharedRoles, err = m.ops.DoGetSharedRoleListOfUser(ctx, resolved.DomainFreeName, m.realm.TenantDomain, "*")
		if err != nil {
			// Shared role lookup is auxiliary: log and continue with the
			// stores that answered.
			m.logger.WarnContext(ctx, "shared role listing failed",
				"user", resolved.DomainAwareName, "error", err.Error())
			m.metrics.IncFanoutStoreError()
			sharedRoles = nil
		}
	}

	everyone := QualifyName(InternalDomain, m.realm.EveryoneRole)
	roles := DedupeMerge(hybridRoles, externalRoles, sharedRoles, []string{everyone})

	if m.rolesCache != nil && m.realm.RolesCacheEnabled() {
		m.rolesCache.Put(ctx, m.realm.TenantDomain, cacheKey, roles)
	}
	m.metrics.IncOperation(opGetRoleListOfUser, "success")
	return roles, nil
}

// externalRoleListOfUser reads the concrete store's role memberships,
// qualifies them with this store's domain and drops restricted domains.
func (m *Manager) externalRoleListOfUser(ctx context.Context, name string) ([]string, error) {
	raw, err := m.ops.DoGetExternalRoleListOfUser(ctx, name)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDownstream, "external role listing failed")
	}
	if m.domainRestricted(m.DomainName()) {
		return nil, nil
	}
	out := make([]string, 0, len(raw))
	for _, role := range raw {
		out = append(out, QualifyName(m.DomainName(), role))
	}
	return out, nil
}

// GetRoleNames lists role names across the whole realm: every chain member's
// external roles plus the hybrid roles, excluding restricted domains. A
// negative limit means unbounded.
func (m *Manager) GetRoleNames(ctx context.Context, filter string, limit int) ([]string, error) {
	ctx, span := m.tracer.Start(ctx, "userstore.GetRoleNames")
	defer span.End()

	if filter == "" {
		filter = "*"
	}
	if limit == 0 {
		limit = m.cfg.ListLimit()
	}

	var lists [][]string

	hybridRoles, err := m.hybrid.Roles(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDownstream, "hybrid role listing failed")
	}
	lists = append(lists, hybridRoles)

	for _, member := range m.chain.members() {
		if m.domainRestricted(member.DomainName()) {
			continue
		}
		names, err := member.ops.DoGetRoleNames(ctx, filter, limit)
		if err != nil {
			// Partial failure tolerance mirrors the user listing fan-out.
			m.listeners.Fail(ctx, Failure{
				Operation: "get_role_names",
				Code:      dErrors.CodeOf(err),
				Message:   err.Error(),
				Domain:    member.DomainName(),
			})
			m.metrics.IncFanoutStoreError()
			continue
		}
		qualified := make([]string, 0, len(names))
		for _, n := range names {
			qualified = append(qualified, QualifyName(member.DomainName(), n))
		}
		lists = append(lists, qualified)
	}

	merged := DedupeMerge(lists...)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// GetUserListOfRole lists a role's members, domain-qualified.
func (m *Manager) GetUserListOfRole(ctx context.Context, role string) ([]string, error) {
	ctx, span := m.tracer.Start(ctx, "userstore.GetUserListOfRole")
	defer span.End()

	resolved, err := m.resolve(role)
	if err != nil {
		return nil, err
	}
	switch {
	case resolved.Recursive:
		return resolved.Manager.GetUserListOfRole(ctx, resolved.DomainFreeName)
	case resolved.HybridRole:
		users, err := m.hybrid.UserListOfRole(ctx, resolved.DomainAwareName)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeDownstream, "hybrid member listing failed")
		}
		return users, nil
	case resolved.SystemStore:
		return nil, dErrors.New(dErrors.CodeUnsupported, "system role membership is not listable")
	default:
		users, err := m.ops.DoGetUserListOfRole(ctx, resolved.DomainFreeName)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeDownstream, "member listing failed")
		}
		out := make([]string, 0, len(users))
		for _, u := range users {
			out = append(out, QualifyName(m.DomainName(), u))
		}
		return out, nil
	}
}

// UpdateUserListOfRole adds and removes members of one role.
func (m *Manager) UpdateUserListOfRole(ctx context.Context, role string, deleted, added []string) error {
	ctx, span := m.tracer.Start(ctx, "userstore.UpdateUserListOfRole")
	defer span.End()

	resolved, err := m.resolve(role)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opUpdateUserListOfRole, Role: role})
	}
	if resolved.Recursive {
		return resolved.Manager.UpdateUserListOfRole(ctx, resolved.DomainFreeName, deleted, added)
	}
	if resolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput, "system role membership is managed internally")
		return m.fail(ctx, err, Failure{Operation: opUpdateUserListOfRole, Role: role})
	}

	if !resolved.HybridRole {
		if m.ReadOnly() {
			err := dErrors.New(dErrors.CodeReadOnly, "user store %s is read only", m.DomainName())
			return m.fail(ctx, err, Failure{Operation: opUpdateUserListOfRole, Role: resolved.DomainAwareName})
		}
		if !m.cfg.WriteGroups() {
			err := dErrors.New(dErrors.CodePolicyViolation, "group writes are disabled for user store %s", m.DomainName())
			return m.fail(ctx, err, Failure{Operation: opUpdateUserListOfRole, Role: resolved.DomainAwareName})
		}
	}

	for _, user := range deleted {
		if m.isAdminUser(user) && m.isAdminRole(resolved.DomainAwareName) {
			err := dErrors.New(dErrors.CodePolicyViolation, "cannot remove the admin user from the admin role")
			return m.fail(ctx, err, Failure{Operation: opUpdateUserListOfRole, Role: resolved.DomainAwareName, Username: user})
		}
	}

	ctx = requestcontext.WithResolvedDomain(ctx, resolved.DomainName)

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreUpdateUserListOfRole(ctx, resolved.DomainAwareName, deleted, added)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre update user list listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateUserListOfRole, Role: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opUpdateUserListOfRole)
			return nil
		}
	}

	exists, err := m.IsExistingRole(ctx, resolved.DomainAwareName)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "role existence check failed")
		return m.fail(ctx, wrapped, Failure{Operation: opUpdateUserListOfRole, Role: resolved.DomainAwareName})
	}
	if !exists {
		err := dErrors.New(dErrors.CodeNotFound, "role %s does not exist", resolved.DomainAwareName)
		return m.fail(ctx, err, Failure{Operation: opUpdateUserListOfRole, Role: resolved.DomainAwareName})
	}

	if resolved.HybridRole {
		if err := m.hybrid.UpdateUserListOfRole(ctx, resolved.DomainAwareName, deleted, added); err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "hybrid role manager rejected membership update")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateUserListOfRole, Role: resolved.DomainAwareName})
		}
	} else {
		deletedFree := stripAll(deleted)
		addedFree := stripAll(added)
		for _, user := range addedFree {
			ok, err := m.ops.DoCheckExistingUser(ctx, user)
			if err != nil {
				wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "member existence check failed")
				return m.fail(ctx, wrapped, Failure{Operation: opUpdateUserListOfRole, Role: resolved.DomainAwareName, Username: user})
			}
			if !ok {
				err := dErrors.New(dErrors.CodeNotFound, "user %s does not exist in domain %s", user, m.DomainName())
				return m.fail(ctx, err, Failure{Operation: opUpdateUserListOfRole, Role: resolved.DomainAwareName, Username: user})
			}
		}
		if err := m.ops.DoUpdateUserListOfRole(ctx, resolved.DomainFreeName, deletedFree, addedFree); err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "store rejected membership update")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateUserListOfRole, Role: resolved.DomainAwareName})
		}
	}

	for _, user := range append(stripAll(deleted), stripAll(added)...) {
		m.invalidateRoles(ctx, user)
	}

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostUpdateUserListOfRole(ctx, resolved.DomainAwareName, deleted, added)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post update user list listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateUserListOfRole, Role: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opUpdateUserListOfRole)
			break
		}
	}

	m.metrics.IncOperation(opUpdateUserListOfRole, "success")
	return nil
}

// UpdateRoleListOfUser adds and removes one user's role memberships. The
// hybrid and external partitions are routed independently; read-only policy
// applies only to the external partition.
func (m *Manager) UpdateRoleListOfUser(ctx context.Context, username string, deleted, added []string) error {
	ctx, span := m.tracer.Start(ctx, "userstore.UpdateRoleListOfUser")
	defer span.End()

	resolved, err := m.resolve(username)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opUpdateRoleListOfUser, Username: username})
	}
	if resolved.Recursive {
		return resolved.Manager.UpdateRoleListOfUser(ctx, resolved.DomainFreeName, deleted, added)
	}

	for _, role := range deleted {
		if m.isEveryoneRole(role) {
			err := dErrors.New(dErrors.CodePolicyViolation, "cannot remove the everyone role from a user")
			return m.fail(ctx, err, Failure{Operation: opUpdateRoleListOfUser, Username: resolved.DomainAwareName, Role: role})
		}
		if m.isAdminRole(role) && m.isAdminUser(resolved.DomainFreeName) {
			err := dErrors.New(dErrors.CodePolicyViolation, "cannot remove the admin role from the admin user")
			return m.fail(ctx, err, Failure{Operation: opUpdateRoleListOfUser, Username: resolved.DomainAwareName, Role: role})
		}
	}

	deletedHybrid, deletedExternal := PartitionRoles(deleted)
	addedHybrid, addedExternal := PartitionRoles(added)

	if (len(deletedExternal) > 0 || len(addedExternal) > 0) && m.ReadOnly() {
		err := dErrors.New(dErrors.CodeReadOnly, "user store %s is read only", m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opUpdateRoleListOfUser, Username: resolved.DomainAwareName})
	}

	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())
	name := resolved.DomainFreeName

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreUpdateRoleListOfUser(ctx, name, deleted, added)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre update role list listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateRoleListOfUser, Username: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opUpdateRoleListOfUser)
			return nil
		}
	}

	exists, err := m.ops.DoCheckExistingUser(ctx, name)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "existence check failed")
		return m.fail(ctx, wrapped, Failure{Operation: opUpdateRoleListOfUser, Username: resolved.DomainAwareName})
	}
	if !exists {
		err := dErrors.New(dErrors.CodeNotFound, "user %s does not exist in domain %s", name, m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opUpdateRoleListOfUser, Username: resolved.DomainAwareName})
	}

	for _, role := range addedHybrid {
		ok, err := m.hybrid.IsExistingRole(ctx, role)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "internal role existence check failed")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateRoleListOfUser, Username: resolved.DomainAwareName, Role: role})
		}
		if !ok {
			err := dErrors.New(dErrors.CodeNotFound, "internal role %s does not exist", role)
			return m.fail(ctx, err, Failure{Operation: opUpdateRoleListOfUser, Username: resolved.DomainAwareName, Role: role})
		}
	}
	for _, role := range addedExternal {
		ok, err := m.isExistingExternalRole(ctx, role)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "role existence check failed")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateRoleListOfUser, Username: resolved.DomainAwareName, Role: role})
		}
		if !ok {
			err := dErrors.New(dErrors.CodeNotFound, "role %s does not exist", role)
			return m.fail(ctx, err, Failure{Operation: opUpdateRoleListOfUser, Username: resolved.DomainAwareName, Role: role})
		}
	}

	if len(deletedExternal) > 0 || len(addedExternal) > 0 {
		if err := m.ops.DoUpdateRoleListOfUser(ctx, name, stripAll(deletedExternal), stripAll(addedExternal)); err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "store rejected role list update")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateRoleListOfUser, Username: resolved.DomainAwareName})
		}
	}
	if len(deletedHybrid) > 0 || len(addedHybrid) > 0 {
		if err := m.hybrid.UpdateRoleListOfUser(ctx, resolved.DomainAwareName, deletedHybrid, addedHybrid); err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "hybrid role manager rejected role list update")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateRoleListOfUser, Username: resolved.DomainAwareName})
		}
	}

	m.invalidateRoles(ctx, name)

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostUpdateRoleListOfUser(ctx, name, deleted, added)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post update role list listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateRoleListOfUser, Username: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opUpdateRoleListOfUser)
			break
		}
	}

	m.metrics.IncOperation(opUpdateRoleListOfUser, "success")
	return nil
}

// domainRestricted reports whether a domain is excluded from role
// resolution. A non-empty restricted-role-domains list names the only
// domains that are consulted; an empty list restricts nothing.
func (m *Manager) domainRestricted(domain string) bool {
	if len(m.realm.RestrictedRoleDomains) == 0 {
		return false
	}
	for _, d := range m.realm.RestrictedRoleDomains {
		if strings.EqualFold(d, domain) {
			return false
		}
	}
	return true
}

func stripAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, StripDomain(n))
	}
	return out
}
