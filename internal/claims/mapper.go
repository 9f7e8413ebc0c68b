// Package claims maps claim URIs onto the physical attribute names of the
// user stores.
package claims

import (
	"strings"
	"sync"

	dErrors "idrealm/pkg/domain-errors"
)

// Mapper resolves claim URIs with a three-step fallback: the domain's own
// mapping, then the realm-wide mapping, then the URI's last path segment for
// schemaless stores.
type Mapper struct {
	mu       sync.RWMutex
	generic  map[string]string            // claim URI -> attribute
	byDomain map[string]map[string]string // upper-cased domain -> claim URI -> attribute
}

// New builds a mapper from the realm-wide mapping.
func New(generic map[string]string) *Mapper {
	m := &Mapper{
		generic:  make(map[string]string, len(generic)),
		byDomain: make(map[string]map[string]string),
	}
	for uri, attr := range generic {
		m.generic[uri] = attr
	}
	return m
}

// SetDomainMapping overrides claim mappings for one store's domain.
func (m *Mapper) SetDomainMapping(domain string, mapping map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToUpper(domain)
	if m.byDomain[key] == nil {
		m.byDomain[key] = make(map[string]string, len(mapping))
	}
	for uri, attr := range mapping {
		m.byDomain[key][uri] = attr
	}
}

// AttributeName resolves a claim URI for a domain.
func (m *Mapper) AttributeName(domain, claimURI string) (string, error) {
	if claimURI == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "claim URI cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if mapping, ok := m.byDomain[strings.ToUpper(domain)]; ok {
		if attr, ok := mapping[claimURI]; ok {
			return attr, nil
		}
	}
	if attr, ok := m.generic[claimURI]; ok {
		return attr, nil
	}

	// Schemaless fallback: the URI's final segment is the attribute.
	if idx := strings.LastIndex(claimURI, "/"); idx >= 0 && idx+1 < len(claimURI) {
		return claimURI[idx+1:], nil
	}
	return claimURI, nil
}
