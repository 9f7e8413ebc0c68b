package userstore

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	dErrors "idrealm/pkg/domain-errors"
	"idrealm/pkg/requestcontext"
)

const (
	opListUsers   = "list_users"
	opGetUserList = "get_user_list"
)

// ListUsers lists usernames matching a filter across every chain member.
// Each store's failure is reported and tolerated: the union carries the
// stores that answered. Names come back domain-qualified.
func (m *Manager) ListUsers(ctx context.Context, filter string, limit int) ([]string, error) {
	ctx, span := m.tracer.Start(ctx, "userstore.ListUsers")
	defer span.End()

	if filter == "" {
		filter = "*"
	}
	if limit == 0 {
		limit = m.cfg.ListLimit()
	}

	// An embedded domain narrows the listing to one store.
	if domain, rest := SplitDomain(filter); domain != "" {
		target := m.chain.lookup(domain)
		if target == nil {
			return nil, dErrors.New(dErrors.CodeInvalidDomain, "invalid domain name %s", domain)
		}
		names, err := target.ops.DoListUsers(ctx, rest, limit)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeDownstream, "user listing in domain %s failed", domain)
		}
		return qualifyAll(target.DomainName(), names), nil
	}

	members := m.chain.members()
	results := make([][]string, len(members))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, member := range members {
		g.Go(func() error {
			names, err := member.ops.DoListUsers(gctx, filter, limit)
			if err != nil {
				// Partial failure tolerance: report, count, move on.
				m.listeners.Fail(gctx, Failure{
					Operation: opListUsers,
					Code:      dErrors.CodeOf(err),
					Message:   err.Error(),
					Domain:    member.DomainName(),
				})
				m.metrics.IncFanoutStoreError()
				m.logger.WarnContext(gctx, "user listing failed for one store",
					"domain", member.DomainName(), "error", err.Error())
				return nil
			}
			mu.Lock()
			results[i] = qualifyAll(member.DomainName(), names)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := DedupeMerge(results...)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	m.metrics.IncOperation(opListUsers, "success")
	return merged, nil
}

// GetUserList finds users whose claim carries a given value.
//
// The username claim is answered by the name listing itself rather than an
// attribute search. A domain prefix embedded in the value narrows the search
// to that store; otherwise every chain member is queried and the union is
// returned, tolerating per-store failures. The merged result is offered only
// to audit listeners: business listeners already saw each store's rows.
func (m *Manager) GetUserList(ctx context.Context, claimURI, value, profile string) ([]string, error) {
	ctx, span := m.tracer.Start(ctx, "userstore.GetUserList")
	defer span.End()

	if claimURI == "" || value == "" {
		err := dErrors.New(dErrors.CodeInvalidInput, "claim URI and value are required")
		return nil, m.fail(ctx, err, Failure{Operation: opGetUserList, Claims: []string{claimURI}})
	}
	if profile == "" {
		profile = DefaultProfile
	}

	for _, ol := range m.listeners.Operation() {
		ok, err := ol.PreGetUserList(ctx, claimURI, value, profile)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "pre get user list listener failed")
			return nil, m.fail(ctx, wrapped, Failure{Operation: opGetUserList, Claims: []string{claimURI}})
		}
		if !ok {
			m.veto(ctx, opGetUserList)
			return nil, nil
		}
	}

	if claimURI == ClaimUsername {
		users, err := m.ListUsers(ctx, value, 0)
		if err != nil {
			return nil, m.fail(ctx, err, Failure{Operation: opGetUserList, Claims: []string{claimURI}})
		}
		return m.finishUserList(ctx, claimURI, value, profile, users)
	}

	// Domain embedded in the searched value targets a single store.
	if domain, rest := SplitDomain(value); domain != "" {
		if target := m.chain.lookup(domain); target != nil {
			users, err := target.getUserListLocal(ctx, claimURI, rest, profile)
			if err != nil {
				return nil, m.fail(ctx, err, Failure{Operation: opGetUserList, Claims: []string{claimURI}, Domain: domain})
			}
			return m.finishUserList(ctx, claimURI, value, profile, users)
		}
	}

	members := m.chain.members()
	results := make([][]string, len(members))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, member := range members {
		g.Go(func() error {
			users, err := member.getUserListLocal(gctx, claimURI, value, profile)
			if err != nil {
				m.listeners.Fail(gctx, Failure{
					Operation: opGetUserList,
					Code:      dErrors.CodeOf(err),
					Message:   err.Error(),
					Claims:    []string{claimURI},
					Domain:    member.DomainName(),
				})
				m.metrics.IncFanoutStoreError()
				m.logger.WarnContext(gctx, "claim search failed for one store",
					"domain", member.DomainName(), "claim", claimURI, "error", err.Error())
				return nil
			}
			mu.Lock()
			results[i] = users
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return m.finishUserList(ctx, claimURI, value, profile, DedupeMerge(results...))
}

// getUserListLocal maps the claim onto this store's attribute and runs the
// attribute search against the local primitives only.
func (m *Manager) getUserListLocal(ctx context.Context, claimURI, value, profile string) ([]string, error) {
	ctx = requestcontext.WithResolvedDomain(ctx, m.DomainName())
	attr, err := m.attributeFor(claimURI)
	if err != nil {
		return nil, err
	}
	users, err := m.ops.DoGetUserList(ctx, attr, value, profile, m.cfg.ListLimit())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDownstream, "attribute search failed")
	}
	return qualifyAll(m.DomainName(), users), nil
}

// finishUserList runs the audit-only post fan-out over the merged set.
func (m *Manager) finishUserList(ctx context.Context, claimURI, value, profile string, users []string) ([]string, error) {
	for _, ol := range m.listeners.AuditOnly() {
		ok, err := ol.PostGetUserList(ctx, claimURI, value, profile, users)
		if err != nil {
			wrapped := dErrors.Wrap(err, dErrors.CodeDownstream, "post get user list listener failed")
			return nil, m.fail(ctx, wrapped, Failure{Operation: opGetUserList, Claims: []string{claimURI}})
		}
		if !ok {
			m.veto(ctx, opGetUserList)
			return nil, nil
		}
	}
	m.metrics.IncOperation(opGetUserList, "success")
	return users, nil
}

// ListPaginatedUsers pages through usernames matching a filter. Stores are
// consulted sequentially in chain order; the offset is consumed across store
// boundaries using each store's skipped-candidate count, so a page never
// double-counts rows a store had to pass over client-side.
func (m *Manager) ListPaginatedUsers(ctx context.Context, filter string, limit, offset int) (PaginatedResult, error) {
	ctx, span := m.tracer.Start(ctx, "userstore.ListPaginatedUsers")
	defer span.End()

	if filter == "" {
		filter = "*"
	}
	if limit <= 0 {
		limit = m.cfg.ListLimit()
	}
	if offset < 0 {
		offset = 0
	}

	if domain, rest := SplitDomain(filter); domain != "" {
		target := m.chain.lookup(domain)
		if target == nil {
			return PaginatedResult{}, dErrors.New(dErrors.CodeInvalidDomain, "invalid domain name %s", domain)
		}
		page, err := target.ops.DoListPaginatedUsers(ctx, rest, limit, offset)
		if err != nil {
			return PaginatedResult{}, dErrors.Wrap(err, dErrors.CodeDownstream, "paginated listing in domain %s failed", domain)
		}
		page.Names = qualifyAll(target.DomainName(), page.Names)
		return page, nil
	}

	return m.paginateChain(ctx, limit, offset, func(member *Manager, lim, off int) (PaginatedResult, error) {
		return member.ops.DoListPaginatedUsers(ctx, filter, lim, off)
	})
}

// GetPaginatedUserList pages through users whose claim carries a value, with
// the same sequential offset accounting as ListPaginatedUsers.
func (m *Manager) GetPaginatedUserList(ctx context.Context, claimURI, value, profile string, limit, offset int) (PaginatedResult, error) {
	ctx, span := m.tracer.Start(ctx, "userstore.GetPaginatedUserList")
	defer span.End()

	if claimURI == "" || value == "" {
		return PaginatedResult{}, dErrors.New(dErrors.CodeInvalidInput, "claim URI and value are required")
	}
	if profile == "" {
		profile = DefaultProfile
	}
	if limit <= 0 {
		limit = m.cfg.ListLimit()
	}
	if offset < 0 {
		offset = 0
	}

	if claimURI == ClaimUsername {
		return m.ListPaginatedUsers(ctx, value, limit, offset)
	}

	if domain, rest := SplitDomain(value); domain != "" {
		if target := m.chain.lookup(domain); target != nil {
			attr, err := target.attributeFor(claimURI)
			if err != nil {
				return PaginatedResult{}, err
			}
			page, err := target.ops.DoGetPaginatedUserList(ctx, attr, rest, profile, limit, offset)
			if err != nil {
				return PaginatedResult{}, dErrors.Wrap(err, dErrors.CodeDownstream, "paginated search in domain %s failed", domain)
			}
			page.Names = qualifyAll(target.DomainName(), page.Names)
			return page, nil
		}
	}

	return m.paginateChain(ctx, limit, offset, func(member *Manager, lim, off int) (PaginatedResult, error) {
		attr, err := member.attributeFor(claimURI)
		if err != nil {
			return PaginatedResult{}, err
		}
		return member.ops.DoGetPaginatedUserList(ctx, attr, value, profile, lim, off)
	})
}

// paginateChain walks the chain in order, consuming the offset and filling
// the page from successive stores. A failing store is reported and skipped;
// its rows simply never join the page.
func (m *Manager) paginateChain(ctx context.Context, limit, offset int, query func(member *Manager, lim, off int) (PaginatedResult, error)) (PaginatedResult, error) {
	out := PaginatedResult{}
	remaining := limit

	for _, member := range m.chain.members() {
		if remaining <= 0 {
			break
		}
		page, err := query(member, remaining, offset)
		if err != nil {
			m.listeners.Fail(ctx, Failure{
				Operation: opListUsers,
				Code:      dErrors.CodeOf(err),
				Message:   err.Error(),
				Domain:    member.DomainName(),
			})
			m.metrics.IncFanoutStoreError()
			m.logger.WarnContext(ctx, "paginated listing failed for one store",
				"domain", member.DomainName(), "error", err.Error())
			continue
		}
		out.Names = append(out.Names, qualifyAll(member.DomainName(), page.Names)...)
		out.SkippedCount += page.SkippedCount
		remaining -= len(page.Names)

		// The offset is consumed by what this store skipped and returned;
		// later stores start their window where this one ended.
		consumed := len(page.Names) + page.SkippedCount
		if consumed >= offset {
			offset = 0
		} else {
			offset -= consumed
		}
	}

	out.Names = DedupeMerge(out.Names)
	m.metrics.IncOperation(opListUsers, "success")
	return out, nil
}

func qualifyAll(domain string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, QualifyName(domain, n))
	}
	return out
}
