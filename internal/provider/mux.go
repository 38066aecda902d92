package provider

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Mux routes requests to a backend by Request.Provider. It is safe for
// concurrent use.
type Mux struct {
	mu       sync.RWMutex
	backends map[string]Provider
	fallback Provider
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{backends: make(map[string]Provider)}
}

// Handle registers p for the given provider id, replacing any previous one.
// Ids are matched case-insensitively.
func (m *Mux) Handle(id string, p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backends[strings.ToLower(id)] = p
}

// SetFallback sets the backend used when no id matches.
func (m *Mux) SetFallback(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = p
}

// Providers returns the registered ids, sorted.
func (m *Mux) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.backends))
	for id := range m.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Invoke dispatches req to the backend registered for req.Provider.
func (m *Mux) Invoke(ctx context.Context, req *Request) (*Response, error) {
	m.mu.RLock()
	p, ok := m.backends[strings.ToLower(req.Provider)]
	if !ok {
		p = m.fallback
	}
	m.mu.RUnlock()

	if p == nil {
		return nil, NewProviderError(req.Provider, "route", 0, KindInvalidRequest,
			"no provider registered for "+quoteID(req.Provider), nil)
	}
	return p.Invoke(ctx, req)
}

func quoteID(id string) string {
	if id == "" {
		return `""`
	}
	return `"` + id + `"`
}

var _ Provider = (*Mux)(nil)
