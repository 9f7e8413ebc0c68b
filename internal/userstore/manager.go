package userstore

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"idrealm/internal/platform/config"
	"idrealm/internal/platform/metrics"
	dErrors "idrealm/pkg/domain-errors"
)

// Manager orchestrates identity operations for one member of the user
// store chain. It resolves targets, runs the listener pipeline, enforces
// cross-cutting policy and delegates raw access to its StoreOps.
type Manager struct {
	cfg   config.StoreConfig
	realm *config.RealmConfig
	ops   StoreOps

	hybrid     HybridRoles
	system     SystemRoles
	claims     ClaimMapper
	rolesCache RolesCache
	listeners  *Listeners
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer

	chain *chainIndex

	usernameRe *regexp.Regexp
	roleRe     *regexp.Regexp
	passwordRe *regexp.Regexp
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithListeners sets the listener registry. Chain members share one
// registry so interceptors see every operation regardless of which store
// answers it.
func WithListeners(l *Listeners) Option {
	return func(m *Manager) { m.listeners = l }
}

// WithHybridRoles sets the internal role manager.
func WithHybridRoles(h HybridRoles) Option {
	return func(m *Manager) { m.hybrid = h }
}

// WithSystemRoles sets the system role manager.
func WithSystemRoles(s SystemRoles) Option {
	return func(m *Manager) { m.system = s }
}

// WithClaimMapper sets the claim URI resolver.
func WithClaimMapper(c ClaimMapper) Option {
	return func(m *Manager) { m.claims = c }
}

// WithRolesCache sets the user-roles cache.
func WithRolesCache(rc RolesCache) Option {
	return func(m *Manager) { m.rolesCache = rc }
}

// New builds the chain-head manager. Secondary stores attach through
// AddSecondaryUserStoreManager.
func New(cfg config.StoreConfig, realm *config.RealmConfig, ops StoreOps, opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:       cfg,
		realm:     realm,
		ops:       ops,
		listeners: NewListeners(),
		logger:    slog.Default(),
		tracer:    otel.Tracer("idrealm/userstore"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.compileValidators(); err != nil {
		return nil, err
	}
	m.chain = newChainIndex(m)
	return m, nil
}

func (m *Manager) compileValidators() error {
	var err error
	m.usernameRe, err = compilePattern(m.cfg.UsernameRegex, config.DefaultUsernameRegex)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeConfiguration, "username regex for domain %s", m.cfg.DomainName)
	}
	m.roleRe, err = compilePattern(m.cfg.RoleNameRegex, config.DefaultRoleNameRegex)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeConfiguration, "role name regex for domain %s", m.cfg.DomainName)
	}
	m.passwordRe, err = compilePattern(m.cfg.PasswordRegex, config.DefaultPasswordRegex)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeConfiguration, "password regex for domain %s", m.cfg.DomainName)
	}
	return nil
}

func compilePattern(expr, fallback string) (*regexp.Regexp, error) {
	if expr == "" {
		expr = fallback
	}
	return regexp.Compile(expr)
}

// Listeners returns the chain's shared listener registry, for wiring
// interceptors after construction.
func (m *Manager) Listeners() *Listeners {
	return m.listeners
}

// DomainName returns this manager's configured domain.
func (m *Manager) DomainName() string {
	return m.cfg.DomainName
}

// ReadOnly reports whether the store rejects all mutation.
func (m *Manager) ReadOnly() bool {
	return m.cfg.ReadOnly
}

// chainIndex holds the singly-linked manager chain and the domain lookup
// map that bypasses the chain walk. The map and chain are mutated only by
// rare administrative deploy operations; the RWMutex serializes those
// against the resolver reads on every call path.
type chainIndex struct {
	mu       sync.RWMutex
	head     *Manager
	byDomain map[string]*Manager
	order    []string
}

func newChainIndex(head *Manager) *chainIndex {
	return &chainIndex{
		head:     head,
		byDomain: map[string]*Manager{strings.ToUpper(head.DomainName()): head},
		order:    []string{strings.ToUpper(head.DomainName())},
	}
}

func (c *chainIndex) lookup(domain string) *Manager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byDomain[strings.ToUpper(domain)]
}

// next returns the manager after m in chain order, or nil at the tail.
func (c *chainIndex) next(m *Manager) *Manager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key := strings.ToUpper(m.DomainName())
	for i, domain := range c.order {
		if domain == key && i+1 < len(c.order) {
			return c.byDomain[c.order[i+1]]
		}
	}
	return nil
}

// members returns a snapshot of the chain in declared order.
func (c *chainIndex) members() []*Manager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Manager, 0, len(c.order))
	for _, domain := range c.order {
		out = append(out, c.byDomain[domain])
	}
	return out
}

func (c *chainIndex) add(m *Manager) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToUpper(m.DomainName())
	if key == "" {
		return dErrors.New(dErrors.CodeConfiguration, "secondary user store requires a domain name")
	}
	if _, exists := c.byDomain[key]; exists {
		return dErrors.New(dErrors.CodeConfiguration, "user store domain %s already registered", m.DomainName())
	}
	c.byDomain[key] = m
	c.order = append(c.order, key)
	return nil
}

func (c *chainIndex) remove(domain string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToUpper(domain)
	if key == strings.ToUpper(c.head.DomainName()) {
		return dErrors.New(dErrors.CodePolicyViolation, "cannot remove the primary user store")
	}
	if _, exists := c.byDomain[key]; !exists {
		return dErrors.New(dErrors.CodeNotFound, "no user store registered under domain %s", domain)
	}
	delete(c.byDomain, key)
	for i, d := range c.order {
		if d == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// AddSecondaryUserStoreManager attaches a secondary store to this chain.
// The secondary inherits the chain's listener registry and collaborators
// unless it was built with its own.
func (m *Manager) AddSecondaryUserStoreManager(sm *Manager) error {
	if err := m.chain.add(sm); err != nil {
		return err
	}
	sm.chain = m.chain
	if sm.listeners == nil || len(sm.listeners.operation)+len(sm.listeners.store)+len(sm.listeners.errors) == 0 {
		sm.listeners = m.listeners
	}
	if sm.hybrid == nil {
		sm.hybrid = m.hybrid
	}
	if sm.system == nil {
		sm.system = m.system
	}
	if sm.claims == nil {
		sm.claims = m.claims
	}
	if sm.rolesCache == nil {
		sm.rolesCache = m.rolesCache
	}
	return nil
}

// RemoveSecondaryUserStoreManager detaches the store registered under the
// given domain. The primary cannot be removed.
func (m *Manager) RemoveSecondaryUserStoreManager(domain string) error {
	return m.chain.remove(domain)
}

// GetSecondaryUserStoreManager returns the chain member registered under
// the domain, or nil.
func (m *Manager) GetSecondaryUserStoreManager(domain string) *Manager {
	return m.chain.lookup(domain)
}

// validateUsername checks a domain-free username against the configured
// expression.
func (m *Manager) validateUsername(name string) error {
	if name == "" || !m.usernameRe.MatchString(name) {
		return dErrors.New(dErrors.CodeValidation,
			"username %s is not valid; it must match %s", name, m.usernameRe.String())
	}
	return nil
}

// validateRoleName checks a domain-free role name.
func (m *Manager) validateRoleName(role string) error {
	if role == "" || !m.roleRe.MatchString(role) {
		return dErrors.New(dErrors.CodeValidation,
			"role name %s is not valid; it must match %s", role, m.roleRe.String())
	}
	return nil
}

// validatePassword checks a credential against the configured expression.
func (m *Manager) validatePassword(credential []byte) error {
	if len(credential) == 0 || !m.passwordRe.Match(credential) {
		return dErrors.New(dErrors.CodeValidation,
			"credential does not satisfy the configured password policy")
	}
	return nil
}

// normalizeUser folds the username case when the store is configured for
// case-insensitive matching, so cache keys and comparisons agree.
func (m *Manager) normalizeUser(name string) string {
	if m.cfg.CaseInsensitiveUsername {
		return strings.ToLower(name)
	}
	return name
}

// equalUser compares usernames under the store's collation.
func (m *Manager) equalUser(a, b string) bool {
	if m.cfg.CaseInsensitiveUsername {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// isAdminUser reports whether the domain-free name is the realm admin.
func (m *Manager) isAdminUser(name string) bool {
	return m.equalUser(StripDomain(name), StripDomain(m.realm.AdminUser))
}

// isAnonymousUser reports whether the name is the built-in anonymous user.
func (m *Manager) isAnonymousUser(name string) bool {
	return m.equalUser(StripDomain(name), m.realm.AnonymousUser)
}

// isAdminRole / isEveryoneRole compare domain-free role names.
func (m *Manager) isAdminRole(role string) bool {
	return strings.EqualFold(StripDomain(role), StripDomain(m.realm.AdminRole))
}

func (m *Manager) isEveryoneRole(role string) bool {
	return strings.EqualFold(StripDomain(role), m.realm.EveryoneRole)
}

func (m *Manager) isAnonymousRole(role string) bool {
	return strings.EqualFold(StripDomain(role), m.realm.AnonymousRole)
}

// fail routes an error through the failure-listener fan-out, records the
// outcome and returns the error unchanged. Every failure path funnels
// through here before reaching the caller.
func (m *Manager) fail(ctx context.Context, err error, failure Failure) error {
	failure.Code = dErrors.CodeOf(err)
	failure.Message = err.Error()
	if failure.Domain == "" {
		failure.Domain = m.DomainName()
	}
	m.listeners.Fail(ctx, failure)
	m.metrics.IncOperation(failure.Operation, "error")
	m.logger.WarnContext(ctx, "user store operation failed",
		"operation", failure.Operation,
		"domain", failure.Domain,
		"code", string(failure.Code),
		"error", err.Error(),
	)
	return err
}

// veto records a listener veto. The caller-visible effect is a silent
// no-op, distinct from a thrown error.
func (m *Manager) veto(ctx context.Context, operation string) {
	m.metrics.IncVeto(operation)
	m.logger.DebugContext(ctx, "operation vetoed by listener", "operation", operation, "domain", m.DomainName())
}

// invalidateRoles drops the cached role list for a user after a mutation
// that changes its backing truth. Cache keys are domain-aware, so bare
// names are qualified with this store's domain before eviction.
func (m *Manager) invalidateRoles(ctx context.Context, username string) {
	if m.rolesCache == nil {
		return
	}
	domain, free := SplitDomain(username)
	if domain == "" {
		domain = m.DomainName()
	}
	m.rolesCache.Invalidate(ctx, m.realm.TenantDomain, m.normalizeUser(QualifyName(domain, free)))
}
