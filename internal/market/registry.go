package market

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"marketsched/internal/domain"
)

// Registry maps market identifiers to Market values. Markets are registered
// once at startup and never removed, so reads vastly outnumber writes.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*Market
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{markets: make(map[string]*Market)}
}

// Register adds a market. Registering an id twice is an error; silent
// overwrite would let two components disagree about a market's rules.
func (r *Registry) Register(m *Market) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markets[m.ID()]; ok {
		return fmt.Errorf("market %q already registered", m.ID())
	}
	r.markets[m.ID()] = m
	return nil
}

// Get returns the market registered under id. The not-found error names the
// registered ids so a typo is obvious from the message alone.
func (r *Registry) Get(id string) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	if !ok {
		ids := r.idsLocked()
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: %q (no markets registered)", domain.ErrMarketNotFound, id)
		}
		return nil, fmt.Errorf("%w: %q (registered: %s)", domain.ErrMarketNotFound, id, strings.Join(ids, ", "))
	}
	return m, nil
}

// IDs returns the registered market identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.idsLocked()
}

// All returns the registered markets ordered by id.
func (r *Registry) All() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Market, 0, len(r.markets))
	for _, id := range r.idsLocked() {
		out = append(out, r.markets[id])
	}
	return out
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, 0, len(r.markets))
	for id := range r.markets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
