package userstore

import (
	"context"
	"strings"

	dErrors "idrealm/pkg/domain-errors"
	"idrealm/pkg/requestcontext"
)

const (
	opGetUserClaimValue     = "get_user_claim_value"
	opSetUserClaimValue     = "set_user_claim_value"
	opSetUserClaimValues    = "set_user_claim_values"
	opDeleteUserClaimValue  = "delete_user_claim_value"
	opDeleteUserClaimValues = "delete_user_claim_values"
)

// GetUserClaimValue reads one claim for a user. The role claims are
// synthetic: they are computed from the live role listings and joined with
// the realm's multi-attribute separator, never read from a stored attribute.
func (m *Manager) GetUserClaimValue(ctx context.Context, username, claimURI, profile string) (string, error) {
	ctx, span := m.tracer.Start(ctx, "userstore.GetUserClaimValue")
	defer span.End()

	if profile == "" {
		profile = DefaultProfile
	}

	resolved, err := m.resolve(username)
	if err != nil {
		return "", m.fail(ctx, err, Failure{Operation: opGetUserClaimValue, Username: username, Claims: []string{claimURI}})
	}
	if resolved.Recursive {
		return resolved.Manager.GetUserClaimValue(ctx, resolved.DomainFreeName, claimURI, profile)
	}
	if resolved.HybridRole || resolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput,
			"the %s domain does not hold user accounts", resolved.DomainName)
		return "", m.fail(ctx, err, Failure{Operation: opGetUserClaimValue, Username: username, Claims: []string{claimURI}})
	}

	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())
	name := resolved.DomainFreeName

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreGetUserClaimValue(ctx, name, claimURI, profile)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre get user claim listener failed")
			return "", m.fail(ctx, wrapped, Failure{Operation: opGetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
		}
		if !ok {
			m.veto(ctx, opGetUserClaimValue)
			return "", nil
		}
	}

	exists, err := m.ops.DoCheckExistingUser(ctx, name)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "existence check failed")
		return "", m.fail(ctx, wrapped, Failure{Operation: opGetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}
	if !exists {
		err := dErrors.New(dErrors.CodeNotFound, "user %s does not exist in domain %s", name, m.DomainName())
		return "", m.fail(ctx, err, Failure{Operation: opGetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}

	value, err := m.claimValue(ctx, resolved, claimURI, profile)
	if err != nil {
		return "", m.fail(ctx, err, Failure{Operation: opGetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostGetUserClaimValue(ctx, name, claimURI, profile, []string{value})
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post get user claim listener failed")
			return "", m.fail(ctx, wrapped, Failure{Operation: opGetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
		}
		if !ok {
			m.veto(ctx, opGetUserClaimValue)
			return "", nil
		}
	}

	m.metrics.IncOperation(opGetUserClaimValue, "success")
	return value, nil
}

// GetUserClaimValues reads a set of claims for a user in one pass. Synthetic
// role claims are computed alongside the stored attributes; a claim with no
// value is absent from the result rather than mapped to an empty string.
func (m *Manager) GetUserClaimValues(ctx context.Context, username string, claimURIs []string, profile string) (map[string]string, error) {
	ctx, span := m.tracer.Start(ctx, "userstore.GetUserClaimValues")
	defer span.End()

	if profile == "" {
		profile = DefaultProfile
	}

	resolved, err := m.resolve(username)
	if err != nil {
		return nil, m.fail(ctx, err, Failure{Operation: opGetUserClaimValue, Username: username, Claims: claimURIs})
	}
	if resolved.Recursive {
		return resolved.Manager.GetUserClaimValues(ctx, resolved.DomainFreeName, claimURIs, profile)
	}
	if resolved.HybridRole || resolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput,
			"the %s domain does not hold user accounts", resolved.DomainName)
		return nil, m.fail(ctx, err, Failure{Operation: opGetUserClaimValue, Username: username, Claims: claimURIs})
	}

	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())
	name := resolved.DomainFreeName

	exists, err := m.ops.DoCheckExistingUser(ctx, name)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "existence check failed")
		return nil, m.fail(ctx, wrapped, Failure{Operation: opGetUserClaimValue, Username: resolved.DomainAwareName, Claims: claimURIs})
	}
	if !exists {
		err := dErrors.New(dErrors.CodeNotFound, "user %s does not exist in domain %s", name, m.DomainName())
		return nil, m.fail(ctx, err, Failure{Operation: opGetUserClaimValue, Username: resolved.DomainAwareName, Claims: claimURIs})
	}

	var synthetic, stored []string
	for _, uri := range claimURIs {
		if isRoleClaim(uri) {
			synthetic = append(synthetic, uri)
		} else {
			stored = append(stored, uri)
		}
	}

	out := make(map[string]string, len(claimURIs))

	if len(stored) > 0 {
		attrs := make([]string, 0, len(stored))
		attrByURI := make(map[string]string, len(stored))
		for _, uri := range stored {
			attr, err := m.attributeFor(uri)
			if err != nil {
				return nil, m.fail(ctx, err, Failure{Operation: opGetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{uri}})
			}
			attrs = append(attrs, attr)
			attrByURI[uri] = attr
		}
		props, err := m.ops.GetUserPropertyValues(ctx, name, attrs, profile)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "attribute read failed")
			return nil, m.fail(ctx, wrapped, Failure{Operation: opGetUserClaimValue, Username: resolved.DomainAwareName, Claims: stored})
		}
		for _, uri := range stored {
			if v, ok := props[attrByURI[uri]]; ok && v != "" {
				out[uri] = v
			}
		}
	}

	for _, uri := range synthetic {
		value, err := m.claimValue(ctx, resolved, uri, profile)
		if err != nil {
			return nil, m.fail(ctx, err, Failure{Operation: opGetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{uri}})
		}
		if value != "" {
			out[uri] = value
		}
	}

	m.metrics.IncOperation(opGetUserClaimValue, "success")
	return out, nil
}

// SetUserClaimValue writes one claim. Role claims are synthetic and cannot
// be written through the claim surface.
func (m *Manager) SetUserClaimValue(ctx context.Context, username, claimURI, value, profile string) error {
	ctx, span := m.tracer.Start(ctx, "userstore.SetUserClaimValue")
	defer span.End()

	if profile == "" {
		profile = DefaultProfile
	}

	resolved, err := m.resolve(username)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opSetUserClaimValue, Username: username, Claims: []string{claimURI}})
	}
	if resolved.Recursive {
		return resolved.Manager.SetUserClaimValue(ctx, resolved.DomainFreeName, claimURI, value, profile)
	}
	if resolved.HybridRole || resolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput,
			"the %s domain does not hold user accounts", resolved.DomainName)
		return m.fail(ctx, err, Failure{Operation: opSetUserClaimValue, Username: username, Claims: []string{claimURI}})
	}
	if m.ReadOnly() {
		err := dErrors.New(dErrors.CodeReadOnly, "user store %s is read only", m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opSetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}
	if isRoleClaim(claimURI) {
		err := dErrors.New(dErrors.CodeUnsupported, "claim %s is computed and cannot be written", claimURI)
		return m.fail(ctx, err, Failure{Operation: opSetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}

	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())
	name := resolved.DomainFreeName

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreSetUserClaimValue(ctx, name, claimURI, value, profile)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre set user claim listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opSetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
		}
		if !ok {
			m.veto(ctx, opSetUserClaimValue)
			return nil
		}
	}

	exists, err := m.ops.DoCheckExistingUser(ctx, name)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "existence check failed")
		return m.fail(ctx, wrapped, Failure{Operation: opSetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}
	if !exists {
		err := dErrors.New(dErrors.CodeNotFound, "user %s does not exist in domain %s", name, m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opSetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}

	attr, err := m.attributeFor(claimURI)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opSetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}
	if err := m.ops.DoSetUserClaimValue(ctx, name, attr, value, profile); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "store rejected claim write")
		return m.fail(ctx, wrapped, Failure{Operation: opSetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostSetUserClaimValue(ctx, name)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post set user claim listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opSetUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
		}
		if !ok {
			m.veto(ctx, opSetUserClaimValue)
			break
		}
	}

	m.metrics.IncOperation(opSetUserClaimValue, "success")
	return nil
}

// SetUserClaimValues writes a claim set in one store round trip.
func (m *Manager) SetUserClaimValues(ctx context.Context, username string, claims map[string]string, profile string) error {
	ctx, span := m.tracer.Start(ctx, "userstore.SetUserClaimValues")
	defer span.End()

	if profile == "" {
		profile = DefaultProfile
	}

	resolved, err := m.resolve(username)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opSetUserClaimValues, Username: username, Claims: claimKeys(claims)})
	}
	if resolved.Recursive {
		return resolved.Manager.SetUserClaimValues(ctx, resolved.DomainFreeName, claims, profile)
	}
	if resolved.HybridRole || resolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput,
			"the %s domain does not hold user accounts", resolved.DomainName)
		return m.fail(ctx, err, Failure{Operation: opSetUserClaimValues, Username: username, Claims: claimKeys(claims)})
	}
	if m.ReadOnly() {
		err := dErrors.New(dErrors.CodeReadOnly, "user store %s is read only", m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opSetUserClaimValues, Username: resolved.DomainAwareName, Claims: claimKeys(claims)})
	}
	for uri := range claims {
		if isRoleClaim(uri) {
			err := dErrors.New(dErrors.CodeUnsupported, "claim %s is computed and cannot be written", uri)
			return m.fail(ctx, err, Failure{Operation: opSetUserClaimValues, Username: resolved.DomainAwareName, Claims: []string{uri}})
		}
	}

	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())
	name := resolved.DomainFreeName

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreSetUserClaimValues(ctx, name, claims, profile)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre set user claims listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opSetUserClaimValues, Username: resolved.DomainAwareName, Claims: claimKeys(claims)})
		}
		if !ok {
			m.veto(ctx, opSetUserClaimValues)
			return nil
		}
	}

	exists, err := m.ops.DoCheckExistingUser(ctx, name)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "existence check failed")
		return m.fail(ctx, wrapped, Failure{Operation: opSetUserClaimValues, Username: resolved.DomainAwareName, Claims: claimKeys(claims)})
	}
	if !exists {
		err := dErrors.New(dErrors.CodeNotFound, "user %s does not exist in domain %s", name, m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opSetUserClaimValues, Username: resolved.DomainAwareName, Claims: claimKeys(claims)})
	}

	attrs := make(map[string]string, len(claims))
	for uri, value := range claims {
		attr, err := m.attributeFor(uri)
		if err != nil {
			return m.fail(ctx, err, Failure{Operation: opSetUserClaimValues, Username: resolved.DomainAwareName, Claims: []string{uri}})
		}
		attrs[attr] = value
	}
	if err := m.ops.DoSetUserClaimValues(ctx, name, attrs, profile); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "store rejected claim writes")
		return m.fail(ctx, wrapped, Failure{Operation: opSetUserClaimValues, Username: resolved.DomainAwareName, Claims: claimKeys(claims)})
	}

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostSetUserClaimValues(ctx, name)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post set user claims listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opSetUserClaimValues, Username: resolved.DomainAwareName, Claims: claimKeys(claims)})
		}
		if !ok {
			m.veto(ctx, opSetUserClaimValues)
			break
		}
	}

	m.metrics.IncOperation(opSetUserClaimValues, "success")
	return nil
}

// DeleteUserClaimValue removes one stored claim.
func (m *Manager) DeleteUserClaimValue(ctx context.Context, username, claimURI, profile string) error {
	ctx, span := m.tracer.Start(ctx, "userstore.DeleteUserClaimValue")
	defer span.End()

	if profile == "" {
		profile = DefaultProfile
	}

	resolved, err := m.resolve(username)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opDeleteUserClaimValue, Username: username, Claims: []string{claimURI}})
	}
	if resolved.Recursive {
		return resolved.Manager.DeleteUserClaimValue(ctx, resolved.DomainFreeName, claimURI, profile)
	}
	if resolved.HybridRole || resolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput,
			"the %s domain does not hold user accounts", resolved.DomainName)
		return m.fail(ctx, err, Failure{Operation: opDeleteUserClaimValue, Username: username, Claims: []string{claimURI}})
	}
	if m.ReadOnly() {
		err := dErrors.New(dErrors.CodeReadOnly, "user store %s is read only", m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opDeleteUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}
	if isRoleClaim(claimURI) {
		err := dErrors.New(dErrors.CodeUnsupported, "claim %s is computed and cannot be deleted", claimURI)
		return m.fail(ctx, err, Failure{Operation: opDeleteUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}

	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())
	name := resolved.DomainFreeName

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreDeleteUserClaimValue(ctx, name, claimURI, profile)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre delete user claim listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opDeleteUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
		}
		if !ok {
			m.veto(ctx, opDeleteUserClaimValue)
			return nil
		}
	}

	exists, err := m.ops.DoCheckExistingUser(ctx, name)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "existence check failed")
		return m.fail(ctx, wrapped, Failure{Operation: opDeleteUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}
	if !exists {
		err := dErrors.New(dErrors.CodeNotFound, "user %s does not exist in domain %s", name, m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opDeleteUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}

	attr, err := m.attributeFor(claimURI)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opDeleteUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}
	if err := m.ops.DoDeleteUserClaimValue(ctx, name, attr, profile); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "store rejected claim delete")
		return m.fail(ctx, wrapped, Failure{Operation: opDeleteUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
	}

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostDeleteUserClaimValue(ctx, name)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post delete user claim listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opDeleteUserClaimValue, Username: resolved.DomainAwareName, Claims: []string{claimURI}})
		}
		if !ok {
			m.veto(ctx, opDeleteUserClaimValue)
			break
		}
	}

	m.metrics.IncOperation(opDeleteUserClaimValue, "success")
	return nil
}

// DeleteUserClaimValues removes a set of stored claims.
func (m *Manager) DeleteUserClaimValues(ctx context.Context, username string, claimURIs []string, profile string) error {
	ctx, span := m.tracer.Start(ctx, "userstore.DeleteUserClaimValues")
	defer span.End()

	if profile == "" {
		profile = DefaultProfile
	}

	resolved, err := m.resolve(username)
	if err != nil {
		return m.fail(ctx, err, Failure{Operation: opDeleteUserClaimValues, Username: username, Claims: claimURIs})
	}
	if resolved.Recursive {
		return resolved.Manager.DeleteUserClaimValues(ctx, resolved.DomainFreeName, claimURIs, profile)
	}
	if resolved.HybridRole || resolved.SystemStore {
		err := dErrors.New(dErrors.CodeInvalidInput,
			"the %s domain does not hold user accounts", resolved.DomainName)
		return m.fail(ctx, err, Failure{Operation: opDeleteUserClaimValues, Username: username, Claims: claimURIs})
	}
	if m.ReadOnly() {
		err := dErrors.New(dErrors.CodeReadOnly, "user store %s is read only", m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opDeleteUserClaimValues, Username: resolved.DomainAwareName, Claims: claimURIs})
	}
	for _, uri := range claimURIs {
		if isRoleClaim(uri) {
			err := dErrors.New(dErrors.CodeUnsupported, "claim %s is computed and cannot be deleted", uri)
			return m.fail(ctx, err, Failure{Operation: opDeleteUserClaimValues, Username: resolved.DomainAwareName, Claims: []string{uri}})
		}
	}

	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())
	name := resolved.DomainFreeName

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreDeleteUserClaimValues(ctx, name, claimURIs, profile)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre delete user claims listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opDeleteUserClaimValues, Username: resolved.DomainAwareName, Claims: claimURIs})
		}
		if !ok {
			m.veto(ctx, opDeleteUserClaimValues)
			return nil
		}
	}

	exists, err := m.ops.DoCheckExistingUser(ctx, name)
	if err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "existence check failed")
		return m.fail(ctx, wrapped, Failure{Operation: opDeleteUserClaimValues, Username: resolved.DomainAwareName, Claims: claimURIs})
	}
	if !exists {
		err := dErrors.New(dErrors.CodeNotFound, "user %s does not exist in domain %s", name, m.DomainName())
		return m.fail(ctx, err, Failure{Operation: opDeleteUserClaimValues, Username: resolved.DomainAwareName, Claims: claimURIs})
	}

	attrs := make([]string, 0, len(claimURIs))
	for _, uri := range claimURIs {
		attr, err := m.attributeFor(uri)
		if err != nil {
			return m.fail(ctx, err, Failure{Operation: opDeleteUserClaimValues, Username: resolved.DomainAwareName, Claims: []string{uri}})
		}
		attrs = append(attrs, attr)
	}
	if err := m.ops.DoDeleteUserClaimValues(ctx, name, attrs, profile); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "store rejected claim deletes")
		return m.fail(ctx, wrapped, Failure{Operation: opDeleteUserClaimValues, Username: resolved.DomainAwareName, Claims: claimURIs})
	}

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PostDeleteUserClaimValues(ctx, name)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post delete user claims listener failed")
			return m.fail(ctx, wrapped, Failure{Operation: opDeleteUserClaimValues, Username: resolved.DomainAwareName, Claims: claimURIs})
		}
		if !ok {
			m.veto(ctx, opDeleteUserClaimValues)
			break
		}
	}

	m.metrics.IncOperation(opDeleteUserClaimValues, "success")
	return nil
}

// claimValue computes a single claim's value: synthetic role claims from the
// role listings, everything else from the mapped attribute.
func (m *Manager) claimValue(ctx context.Context, resolved *ResolvedStore, claimURI, profile string) (string, error) {
	sep := m.realm.Separator()
	switch claimURI {
	case ClaimRole:
		roles, err := m.GetRoleListOfUser(ctx, resolved.DomainAwareName)
		if err != nil {
			return "", err
		}
		return strings.Join(roles, sep), nil
	case ClaimRoleInternal:
		roles, err := m.hybrid.RoleListOfUser(ctx, resolved.DomainAwareName)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeDownstream, "internal role listing failed")
		}
		return strings.Join(DedupeMerge(roles), sep), nil
	case ClaimRoleExternal:
		roles, err := m.externalRoleListOfUser(ctx, resolved.DomainFreeName)
		if err != nil {
			return "", err
		}
		return strings.Join(roles, sep), nil
	}

	attr, err := m.attributeFor(claimURI)
	if err != nil {
		return "", err
	}
	props, err := m.ops.GetUserPropertyValues(ctx, resolved.DomainFreeName, []string{attr}, profile)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeDownstream, "attribute read failed")
	}
	return props[attr], nil
}

// attributeFor maps a claim URI onto this store's attribute name. Without a
// configured mapper the URI itself is the attribute, which suits schemaless
// stores.
func (m *Manager) attributeFor(claimURI string) (string, error) {
	if claimURI == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "claim URI cannot be empty")
	}
	if m.claims == nil {
		return claimURI, nil
	}
	attr, err := m.claims.AttributeName(m.DomainName(), claimURI)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeDownstream, "claim mapping for %s failed", claimURI)
	}
	if attr == "" {
		return "", dErrors.New(dErrors.CodeNotFound, "no attribute mapping for claim %s", claimURI)
	}
	return attr, nil
}

func isRoleClaim(claimURI string) bool {
	return claimURI == ClaimRole || claimURI == ClaimRoleInternal || claimURI == ClaimRoleExternal
}

func claimKeys(claims map[string]string) []string {
	out := make([]string, 0, len(claims))
	for uri := range claims {
		out = append(out, uri)
	}
	return out
}
