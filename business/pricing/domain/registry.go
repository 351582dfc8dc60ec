package domain

import (
	"fmt"
	"slices"
)

// ChainRegistry is the immutable set of configured chains.
type ChainRegistry struct {
	order []string
	byKey map[string]ChainDescriptor
}

// NewChainRegistry builds a registry from descriptors, keeping their order.
// Duplicate or empty chain names are rejected.
func NewChainRegistry(descriptors ...ChainDescriptor) (*ChainRegistry, error) {
	r := &ChainRegistry{
		order: make([]string, 0, len(descriptors)),
		byKey: make(map[string]ChainDescriptor, len(descriptors)),
	}

	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("chain descriptor without name")
		}
		if _, exists := r.byKey[d.Name]; exists {
			return nil, fmt.Errorf("chain %q registered twice", d.Name)
		}
		r.byKey[d.Name] = cloneDescriptor(d)
		r.order = append(r.order, d.Name)
	}

	return r, nil
}

// Describe returns the descriptor for chain.
func (r *ChainRegistry) Describe(chain string) (ChainDescriptor, bool) {
	d, ok := r.byKey[chain]
	if !ok {
		return ChainDescriptor{}, false
	}
	return cloneDescriptor(d), true
}

// Has reports whether chain is configured.
func (r *ChainRegistry) Has(chain string) bool {
	_, ok := r.byKey[chain]
	return ok
}

// AllChains returns chain names in configuration order.
func (r *ChainRegistry) AllChains() []string {
	return slices.Clone(r.order)
}

// Len returns the number of chains.
func (r *ChainRegistry) Len() int {
	return len(r.order)
}

// cloneDescriptor copies the optional sub-descriptors so callers cannot mutate registry state.
func cloneDescriptor(d ChainDescriptor) ChainDescriptor {
	if d.Pool != nil {
		p := *d.Pool
		d.Pool = &p
	}
	if d.Oracle != nil {
		o := *d.Oracle
		d.Oracle = &o
	}
	if d.Api != nil {
		a := *d.Api
		d.Api = &a
	}
	return d
}
