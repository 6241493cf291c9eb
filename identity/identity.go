// Package identity cross-references patient identifiers issued by different
// assigning authorities.
package identity

import (
	"context"
	"slices"
	"sync"

	"github.com/caio-sobreiro/dicomarc/types"
)

// Static resolves identities from linked groups held in memory
type Static struct {
	mu     sync.RWMutex
	groups map[string]*group
}

type group struct {
	ids []types.IDWithIssuer
}

// NewStatic creates a resolver with the given groups linked.
func NewStatic(groups ...[]types.IDWithIssuer) *Static {
	s := &Static{groups: make(map[string]*group)}
	for _, g := range groups {
		s.Link(g...)
	}
	return s
}

// Link records that ids denote the same patient, joining the groups any of
// them already belong to.
func (s *Static) Link(ids ...types.IDWithIssuer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := &group{}
	add := func(id types.IDWithIssuer) {
		if !slices.Contains(merged.ids, id) {
			merged.ids = append(merged.ids, id)
		}
	}
	for _, id := range ids {
		if g, ok := s.groups[id.String()]; ok {
			for _, other := range g.ids {
				add(other)
			}
		}
		add(id)
	}
	for _, id := range merged.ids {
		s.groups[id.String()] = merged
	}
}

// Resolve returns every identity linked to pid, pid included. An unknown pid
// yields nil.
func (s *Static) Resolve(_ context.Context, pid types.IDWithIssuer) ([]types.IDWithIssuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[pid.String()]
	if !ok {
		return nil, nil
	}
	return slices.Clone(g.ids), nil
}
