package userstore

import (
	"context"

	dErrors "idrealm/pkg/domain-errors"
	"idrealm/pkg/requestcontext"
	"idrealm/pkg/secrets"
)

const opAuthenticate = "authenticate"

// Authenticate verifies a credential for a possibly domain-qualified name.
//
// An unqualified name is tried against every configured store in chain
// order until one succeeds or the chain is exhausted; a qualified name is
// tried only against the store owning that domain. When an authentication
// preference order is configured, unqualified names are instead tried
// against the listed domains in declared order, first match wins.
//
// A store error during the attempt is reported to the error listeners and
// treated as a non-match: one store's failure never fails the others.
func (m *Manager) Authenticate(ctx context.Context, username string, credential []byte) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "userstore.Authenticate")
	defer span.End()

	if username == "" || len(credential) == 0 {
		err := dErrors.New(dErrors.CodeInvalidInput, "username and credential are required")
		return false, m.fail(ctx, err, Failure{Operation: opAuthenticate, Username: username})
	}
	if !m.realm.IsActive() {
		err := dErrors.New(dErrors.CodeTenantDeactived, "realm %s has been deactivated", m.realm.TenantDomain)
		return false, m.fail(ctx, err, Failure{Operation: opAuthenticate, Username: username})
	}

	domain, _ := SplitDomain(username)
	explicit := domain != ""

	if len(m.realm.PreferenceOrder) > 0 && !explicit {
		return m.authenticateWithPreference(ctx, username, credential)
	}

	resolved, err := m.resolve(username)
	if err != nil {
		return false, m.fail(ctx, err, Failure{Operation: opAuthenticate, Username: username})
	}
	if resolved.HybridRole || resolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput, "cannot authenticate against the %s domain", resolved.DomainName)
		return false, m.fail(ctx, err, Failure{Operation: opAuthenticate, Username: username})
	}

	return resolved.Manager.authenticateLocal(ctx, resolved.DomainFreeName, credential, explicit)
}

// authenticateWithPreference tries the configured domains in declared
// order. The first affirmative match wins and authentication stops.
func (m *Manager) authenticateWithPreference(ctx context.Context, username string, credential []byte) (bool, error) {
	for _, domain := range m.realm.PreferenceOrder {
		target := m.chain.lookup(domain)
		if target == nil {
			m.logger.WarnContext(ctx, "preference order names an unregistered domain", "domain", domain)
			continue
		}
		ok, err := target.authenticateLocal(ctx, username, credential, true)
		if err != nil {
			// Per-store failure isolation: the next candidate still runs.
			m.metrics.IncFanoutStoreError()
			continue
		}
		if ok {
			return true, nil
		}
	}
	m.metrics.IncAuthFailure()
	return false, nil
}

// authenticateLocal runs the listener pipeline and the concrete primitive
// against this manager's own store. When explicit is false and the attempt
// fails, the next chain member is tried with the same bare name.
func (m *Manager) authenticateLocal(ctx context.Context, name string, credential []byte, explicit bool) (bool, error) {
	secret := secrets.NewSecret(credential)
	defer secret.Clear()

	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())
	aware := QualifyName(m.DomainName(), name)

	for _, sl := range m.listeners.Store() {
		ok, err := sl.PreAuthenticate(ctx, name, secret)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeAuthentication, "pre authenticate listener failed")
			return false, m.fail(ctx, wrapped, Failure{Operation: opAuthenticate, Username: aware})
		}
		if !ok {
			return m.authenticateVetoed(ctx, aware), nil
		}
	}
	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreAuthenticate(ctx, name, secret)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeAuthentication, "pre authenticate listener failed")
			return false, m.fail(ctx, wrapped, Failure{Operation: opAuthenticate, Username: aware})
		}
		if !ok {
			return m.authenticateVetoed(ctx, aware), nil
		}
	}

	authenticated, err := m.ops.DoAuthenticate(ctx, name, secret)
	if err != nil {
		// One store's error must not fail the others: report it and let
		// the fallback chain keep going.
		m.listeners.Fail(ctx, Failure{
			Operation: opAuthenticate,
			Code:      dErrors.CodeOf(err),
			Message:   err.Error(),
			Username:  aware,
			Domain:    m.DomainName(),
		})
		m.metrics.IncFanoutStoreError()
		m.logger.WarnContext(ctx, "store authentication errored, treating as non-match",
			"domain", m.DomainName(), "error", err.Error())
		authenticated = false
	}

	if !authenticated && !explicit {
		if next := m.chain.next(m); next != nil {
			return next.authenticateLocal(ctx, name, credential, false)
		}
	}

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostAuthenticate(ctx, name, authenticated)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeAuthentication, "post authenticate listener failed")
			return false, m.fail(ctx, wrapped, Failure{Operation: opAuthenticate, Username: aware})
		}
		if !ok {
			// Post listeners can veto a success but never grant one.
			if authenticated {
				m.veto(ctx, opAuthenticate)
			}
			authenticated = false
			break
		}
	}

	if authenticated {
		m.metrics.IncAuthSuccess()
		m.metrics.IncOperation(opAuthenticate, "success")
	} else {
		m.metrics.IncAuthFailure()
		m.metrics.IncOperation(opAuthenticate, "denied")
	}
	return authenticated, nil
}

// authenticateVetoed records the veto and mirrors it to the error
// listeners so the audit trail captures suppressed attempts.
func (m *Manager) authenticateVetoed(ctx context.Context, aware string) bool {
	m.veto(ctx, opAuthenticate)
	m.listeners.Fail(ctx, Failure{
		Operation: opAuthenticate,
		Code:      dErrors.CodePolicyViolation,
		Message:   "authentication vetoed by listener",
		Username:  aware,
		Domain:    m.DomainName(),
	})
	m.metrics.IncAuthFailure()
	return false
}
