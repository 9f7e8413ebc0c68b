package userstore

import (
	"context"

	dErrors "idrealm/pkg/domain-errors"
	"idrealm/pkg/requestcontext"
	"idrealm/pkg/secrets"
)

const (
	opAddUser                 = "add_user"
	opDeleteUser              = "delete_user"
	opUpdateCredential        = "update_credential"
	opUpdateCredentialByAdmin = "update_credential_by_admin"
)

// IsExistingUser reports whether the user exists in the store owning the
// name's domain.
func (m *Manager) IsExistingUser(ctx context.Context, username string) (bool, error) {
	resolved, err := m.resolve(username)
	if err != nil {
		return false, err
	}
	if resolved.Recursive {
		return resolved.Manager.IsExistingUser(ctx, resolved.DomainFreeName)
	}
	if resolved.HybridRole || resolved.SystemStore {
		return false, dErrors.New(dErrors.CodeInvalidInput,
			"the %s domain does not hold user accounts", resolved.DomainName)
	}
	return m.ops.DoCheckExistingUser(ctx, resolved.DomainFreeName)
}

// AddUser creates a user with an optional role list and claim set.
//
// Referenced roles must already exist in their owning store before anything
// is persisted. Internal-role assignment happens after the primary write
// through the hybrid role manager and is not transactional with it: a
// failure there is reported and logged, not rolled back.
func (m *Manager) AddUser(ctx context.Context, username string, credential []byte, roles []string, claims map[string]string, profile string) error {
	ctx, span := m.tracer.Start(ctx, "userstore.AddUser")
	defer span.End()

	if username == "" {
		err := dErrors.New(dErrors.CodeInvalidInput, "username cannot be empty")
		return m.fail(ctx, err, Failure{Operation: opAddUser, Username: username})
	}
	if profile == "" {
		profile = DefaultProfile
	}

	resolved, err := m.resolve(username)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opAddUser, Username: username})
	}
	if resolved.Recursive {
		return resolved.Manager.AddUser(ctx, resolved.DomainFreeName, credential, roles, claims, profile)
	}
	if resolved.HybridRole || resolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput,
			"cannot add users to the %s domain", resolved.DomainName)
		return m.fail(ctx, err, Failure{Operation: opAddUser, Username: username})
	}
	if m.ReadOnly() {
		err := dErrors.New(dErrors.CodeReadOnly, "user store %s is read only", m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opAddUser, Username: resolved.DomainAwareName})
	}

	secret := secrets.NewSecret(credential)
	defer secret.Clear()
	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())
	name := resolved.DomainFreeName

	for _, sl := range m.listeners.Store() {
		ok, err := sl.PreAddUser(ctx, name, secret, roles, claims, profile)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre add user listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opAddUser, Username: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opAddUser)
			return nil
		}
	}
	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreAddUser(ctx, name, secret, roles, claims, profile)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre add user listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opAddUser, Username: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opAddUser)
			return nil
		}
	}

	if err := m.validateUsername(name); err != nil {
		return m.fail(ctx, err, Failure{Operation: opAddUser, Username: resolved.DomainAwareName})
	}
	if err := m.validatePassword(secret.Bytes()); err != nil {
		return m.fail(ctx, err, Failure{Operation: opAddUser, Username: resolved.DomainAwareName})
	}

	exists, err := m.ops.DoCheckExistingUser(ctx, name)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "existence check failed")
		return m.fail(ctx, wrapped, Failure{Operation: opAddUser, Username: resolved.DomainAwareName})
	}
	if exists {
		err := dErrors.New(dErrors.CodeAlreadyExists, "username %s already exists in domain %s", name, m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opAddUser, Username: resolved.DomainAwareName})
	}

	// Atomicity of precondition: every referenced role must exist before
	// anything is persisted.
	internalRoles, externalRoles := PartitionRoles(roles)
	for _, role := range externalRoles {
		ok, err := m.isExistingExternalRole(ctx, role)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "role existence check failed")
			return m.fail(ctx, wrapped, Failure{Operation: opAddUser, Username: resolved.DomainAwareName, Role: role})
		}
		if !ok {
			err := dErrors.New(dErrors.CodeNotFound, "role %s does not exist", role)
			return m.fail(ctx, err, Failure{Operation: opAddUser, Username: resolved.DomainAwareName, Role: role})
		}
	}
	for _, role := range internalRoles {
		ok, err := m.hybrid.IsExistingRole(ctx, role)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "internal role existence check failed")
			return m.fail(ctx, wrapped, Failure{Operation: opAddUser, Username: resolved.DomainAwareName, Role: role})
		}
		if !ok {
			err := dErrors.New(dErrors.CodeNotFound, "internal role %s does not exist", role)
			return m.fail(ctx, err, Failure{Operation: opAddUser, Username: resolved.DomainAwareName, Role: role})
		}
	}

	externalFree := make([]string, 0, len(externalRoles))
	for _, role := range externalRoles {
		externalFree = append(externalFree, StripDomain(role))
	}
	if err := m.ops.DoAddUser(ctx, name, secret, externalFree, claims, profile); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "store rejected add user")
		return m.fail(ctx, wrapped, Failure{Operation: opAddUser, Username: resolved.DomainAwareName})
	}

	// Secondary write, not transactional with the primary. Surfaced as a
	// warning and an error-listener event, never rolled back.
	if len(internalRoles) > 0 {
		if err := m.hybrid.UpdateRoleListOfUser(ctx, resolved.DomainAwareName, nil, internalRoles); err != nil {
			m.logger.WarnContext(ctx, "internal role assignment failed after user add",
				"user", resolved.DomainAwareName, "error", err.Error())
			m.listeners.Fail(ctx, Failure{
				Operation: opAddUser,
				Code:      dErrors.CodeOf(err),
				Message:   err.Error(),
				Username:  resolved.DomainAwareName,
				Domain:    m.DomainName(),
			})
		}
	}

	m.invalidateRoles(ctx, name)

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostAddUser(ctx, name, roles, claims, profile)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post add user listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opAddUser, Username: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opAddUser)
			break
		}
	}

	m.metrics.IncOperation(opAddUser, "success")
	return nil
}

// DeleteUser removes a user. The realm admin and the anonymous user are
// protected and can never be deleted.
func (m *Manager) DeleteUser(ctx context.Context, username string) error {
	ctx, span := m.tracer.Start(ctx, "userstore.DeleteUser")
	defer span.End()

	resolved, err := m.resolve(username)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opDeleteUser, Username: username})
	}
	if resolved.Recursive {
		return resolved.Manager.DeleteUser(ctx, resolved.DomainFreeName)
	}
	if resolved.HybridRole || resolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput,
			"the %s domain does not hold user accounts", resolved.DomainName)
		return m.fail(ctx, err, Failure{Operation: opDeleteUser, Username: username})
	}

	name := resolved.DomainFreeName
	if m.isAdminUser(name) {
		err := dErrors.New(dErrors.CodePolicyViolation, "cannot delete the admin user")
		return m.fail(ctx, err, Failure{Operation: opDeleteUser, Username: resolved.DomainAwareName})
	}
	if m.isAnonymousUser(name) {
		err := dErrors.New(dErrors.CodePolicyViolation, "cannot delete the anonymous user")
		return m.fail(ctx, err, Failure{Operation: opDeleteUser, Username: resolved.DomainAwareName})
	}
	if m.ReadOnly() {
		err := dErrors.New(dErrors.CodeReadOnly, "user store %s is read only", m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opDeleteUser, Username: resolved.DomainAwareName})
	}

	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())

	for _, sl := range m.listeners.Store() {
		ok, err := sl.PreDeleteUser(ctx, name)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre delete user listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opDeleteUser, Username: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opDeleteUser)
			return nil
		}
	}
	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreDeleteUser(ctx, name)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre delete user listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opDeleteUser, Username: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opDeleteUser)
			return nil
		}
	}

	exists, err := m.ops.DoCheckExistingUser(ctx, name)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "existence check failed")
		return m.fail(ctx, wrapped, Failure{Operation: opDeleteUser, Username: resolved.DomainAwareName})
	}
	if !exists {
		err := dErrors.New(dErrors.CodeNotFound, "user %s does not exist in domain %s", name, m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opDeleteUser, Username: resolved.DomainAwareName})
	}

	if err := m.ops.DoDeleteUser(ctx, name); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "store rejected delete user")
		return m.fail(ctx, wrapped, Failure{Operation: opDeleteUser, Username: resolved.DomainAwareName})
	}

	// Best-effort cleanup of hybrid memberships; the user is already gone
	// from the concrete store.
	if hybridRoles, err := m.hybrid.RoleListOfUser(ctx, resolved.DomainAwareName); err == nil && len(hybridRoles) > 0 {
		if err := m.hybrid.UpdateRoleListOfUser(ctx, resolved.DomainAwareName, hybridRoles, nil); err != nil {
			m.logger.WarnContext(ctx, "hybrid role cleanup failed after user delete",
				"user", resolved.DomainAwareName, "error", err.Error())
		}
	}

	m.invalidateRoles(ctx, name)

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostDeleteUser(ctx, name)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post delete user listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opDeleteUser, Username: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opDeleteUser)
			break
		}
	}

	m.metrics.IncOperation(opDeleteUser, "success")
	return nil
}

// UpdateCredential changes a user's own credential after verifying the old
// one against the owning store.
func (m *Manager) UpdateCredential(ctx context.Context, username string, newCredential, oldCredential []byte) error {
	ctx, span := m.tracer.Start(ctx, "userstore.UpdateCredential")
	defer span.End()

	resolved, err := m.resolve(username)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opUpdateCredential, Username: username})
	}
	if resolved.Recursive {
		return resolved.Manager.UpdateCredential(ctx, resolved.DomainFreeName, newCredential, oldCredential)
	}
	if resolved.HybridRole || resolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput,
			"the %s domain does not hold user accounts", resolved.DomainName)
		return m.fail(ctx, err, Failure{Operation: opUpdateCredential, Username: username})
	}
	if m.ReadOnly() {
		err := dErrors.New(dErrors.CodeReadOnly, "user store %s is read only", m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opUpdateCredential, Username: resolved.DomainAwareName})
	}

	newSecret := secrets.NewSecret(newCredential)
	oldSecret := secrets.NewSecret(oldCredential)
	defer newSecret.Clear()
	defer oldSecret.Clear()

	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())
	name := resolved.DomainFreeName

	for _, sl := range m.listeners.Store() {
		ok, err := sl.PreUpdateCredential(ctx, name, newSecret, oldSecret)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre update credential listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateCredential, Username: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opUpdateCredential)
			return nil
		}
	}
	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreUpdateCredential(ctx, name, newSecret, oldSecret)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre update credential listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateCredential, Username: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opUpdateCredential)
			return nil
		}
	}

	if err := m.validatePassword(newSecret.Bytes()); err != nil {
		return m.fail(ctx, err, Failure{Operation: opUpdateCredential, Username: resolved.DomainAwareName})
	}

	ok, err := m.ops.DoAuthenticate(ctx, name, oldSecret)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "old credential verification failed")
		return m.fail(ctx, wrapped, Failure{Operation: opUpdateCredential, Username: resolved.DomainAwareName})
	}
	if !ok {
		err := dErrors.New(dErrors.CodeAuthentication, "old credential does not match the existing credential")
		return m.fail(ctx, err, Failure{Operation: opUpdateCredential, Username: resolved.DomainAwareName})
	}

	if err := m.ops.DoUpdateCredential(ctx, name, newSecret, oldSecret); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "store rejected credential update")
		return m.fail(ctx, wrapped, Failure{Operation: opUpdateCredential, Username: resolved.DomainAwareName})
	}

	m.invalidateRoles(ctx, name)

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostUpdateCredential(ctx, name)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post update credential listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateCredential, Username: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opUpdateCredential)
			break
		}
	}

	m.metrics.IncOperation(opUpdateCredential, "success")
	return nil
}

// UpdateCredentialByAdmin resets a user's credential without knowing the
// old one.
func (m *Manager) UpdateCredentialByAdmin(ctx context.Context, username string, newCredential []byte) error {
	ctx, span := m.tracer.Start(ctx, "userstore.UpdateCredentialByAdmin")
	defer span.End()

	resolved, err := m.resolve(username)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opUpdateCredentialByAdmin, Username: username})
	}
	if resolved.Recursive {
		return resolved.Manager.UpdateCredentialByAdmin(ctx, resolved.DomainFreeName, newCredential)
	}
	if resolved.HybridRole || resolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput,
			"the %s domain does not hold user accounts", resolved.DomainName)
		return m.fail(ctx, err, Failure{Operation: opUpdateCredentialByAdmin, Username: username})
	}
	if m.ReadOnly() {
		err := dErrors.New(dErrors.CodeReadOnly, "user store %s is read only", m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opUpdateCredentialByAdmin, Username: resolved.DomainAwareName})
	}

	secret := secrets.NewSecret(newCredential)
	defer secret.Clear()

	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())
	name := resolved.DomainFreeName

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreUpdateCredentialByAdmin(ctx, name, secret)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre update credential by admin listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateCredentialByAdmin, Username: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opUpdateCredentialByAdmin)
			return nil
		}
	}

	if err := m.validatePassword(secret.Bytes()); err != nil {
		return m.fail(ctx, err, Failure{Operation: opUpdateCredentialByAdmin, Username: resolved.DomainAwareName})
	}

	exists, err := m.ops.DoCheckExistingUser(ctx, name)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "existence check failed")
		return m.fail(ctx, wrapped, Failure{Operation: opUpdateCredentialByAdmin, Username: resolved.DomainAwareName})
	}
	if !exists {
		err := dErrors.New(dErrors.CodeNotFound, "user %s does not exist in domain %s", name, m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opUpdateCredentialByAdmin, Username: resolved.DomainAwareName})
	}

	if err := m.ops.DoUpdateCredentialByAdmin(ctx, name, secret); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "store rejected credential reset")
		return m.fail(ctx, wrapped, Failure{Operation: opUpdateCredentialByAdmin, Username: resolved.DomainAwareName})
	}

	m.invalidateRoles(ctx, name)

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostUpdateCredentialByAdmin(ctx, name)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post update credential by admin listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opUpdateCredentialByAdmin, Username: resolved.DomainAwareName})
		}
		if !ok {
			m.veto(ctx, opUpdateCredentialByAdmin)
			break
		}
	}

	m.metrics.IncOperation(opUpdateCredentialByAdmin, "success")
	return nil
}

// isExistingExternalRole resolves a possibly domain-qualified external role
// against its owning store.
func (m *Manager) isExistingExternalRole(ctx context.Context, role string) (bool, error) {
	resolved, err := m.resolve(role)
	if err != nil {
		return false, err
	}
	if resolved.Recursive {
		return resolved.Manager.ops.DoCheckExistingRole(ctx, resolved.DomainFreeName)
	}
	if resolved.SystemStore {
		return m.system.IsExistingRole(ctx, resolved.DomainFreeName)
	}
	return m.ops.DoCheckExistingRole(ctx, resolved.DomainFreeName)
}
