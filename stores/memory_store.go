package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oarkflow/pageguard"
)

// MemoryPolicyStore implements policy persistence in-memory for testing/demo
type MemoryPolicyStore struct {
	mu       sync.RWMutex
	policies map[string]*pageguard.Policy
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{policies: make(map[string]*pageguard.Policy)}
}

func (s *MemoryPolicyStore) SavePolicy(ctx context.Context, p *pageguard.Policy) error {
	if err := validateStrategy(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()
	s.policies[p.ID] = p
	return nil
}

func (s *MemoryPolicyStore) DeletePolicy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, id)
	return nil
}

func (s *MemoryPolicyStore) GetPolicy(ctx context.Context, id string) (*pageguard.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pageguard.ErrNoPolicy, id)
	}
	cop := *p
	return &cop, nil
}

func (s *MemoryPolicyStore) GetPoliciesForResource(ctx context.Context, resourceID string) ([]*pageguard.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*pageguard.Policy, 0)
	for _, p := range s.policies {
		if p.ResourceID == resourceID {
			cop := *p
			out = append(out, &cop)
		}
	}
	return out, nil
}

func (s *MemoryPolicyStore) ListPolicies(ctx context.Context) ([]*pageguard.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*pageguard.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		cop := *p
		out = append(out, &cop)
	}
	return out, nil
}
