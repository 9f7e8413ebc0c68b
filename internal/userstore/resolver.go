package userstore

import (
	"strings"

	dErrors "idrealm/pkg/domain-errors"
)

// ResolvedStore is the per-call resolution result for a possibly
// domain-qualified name. Exactly one of the local / recursive / hybrid /
// system classifications holds. The manager reference is non-owning and
// valid only for the current call stack frame.
type ResolvedStore struct {
	DomainAwareName string
	DomainFreeName  string
	DomainName      string
	Manager         *Manager
	Recursive       bool
	HybridRole      bool
	SystemStore     bool
}

// Local reports whether the name belongs to the resolving manager itself.
func (r *ResolvedStore) Local() bool {
	return !r.Recursive && !r.HybridRole && !r.SystemStore
}

// resolve classifies a name against this manager's own domain and the
// chain's domain index. Any failure surfaces as a single coded error; no
// partial state escapes.
func (m *Manager) resolve(name string) (*ResolvedStore, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "name cannot be empty")
	}

	own := m.DomainName()
	domain, rest := SplitDomain(name)
	if domain == "" {
		// No separator: the name belongs to this manager's own domain.
		return &ResolvedStore{
			DomainAwareName: QualifyName(own, name),
			DomainFreeName:  name,
			DomainName:      own,
			Manager:         m,
		}, nil
	}

	if owner := m.chain.lookup(domain); owner != nil {
		if owner == m {
			// Explicitly qualified with our own registered domain.
			return &ResolvedStore{
				DomainAwareName: name,
				DomainFreeName:  rest,
				DomainName:      owner.DomainName(),
				Manager:         m,
			}, nil
		}
		return &ResolvedStore{
			DomainAwareName: name,
			DomainFreeName:  rest,
			DomainName:      owner.DomainName(),
			Manager:         owner,
			Recursive:       true,
		}, nil
	}

	switch {
	case strings.EqualFold(domain, own):
		return &ResolvedStore{
			DomainAwareName: name,
			DomainFreeName:  rest,
			DomainName:      own,
			Manager:         m,
		}, nil
	case strings.EqualFold(domain, InternalDomain),
		strings.EqualFold(domain, ApplicationDomain),
		strings.EqualFold(domain, WorkflowDomain):
		return &ResolvedStore{
			DomainAwareName: name,
			DomainFreeName:  rest,
			DomainName:      domain,
			Manager:         m,
			HybridRole:      true,
		}, nil
	case strings.EqualFold(domain, SystemDomain):
		return &ResolvedStore{
			DomainAwareName: name,
			DomainFreeName:  rest,
			DomainName:      domain,
			Manager:         m,
			SystemStore:     true,
		}, nil
	default:
		return nil, dErrors.New(dErrors.CodeInvalidDomain, "invalid domain name %s", domain)
	}
}
