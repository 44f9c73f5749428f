package pageguard

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// ============================================================================
// POLICY STORE
// ============================================================================

// PolicyStore is the external persistence the cache fetches from on a miss.
// Implementations return every policy for the exact resource id, disabled
// ones included; the engine turns a disabled policy into a denial.
type PolicyStore interface {
	GetPoliciesForResource(ctx context.Context, resourceID string) ([]*Policy, error)
}

// ============================================================================
// POLICY CACHE
// ============================================================================

// DefaultPolicyCacheTTL bounds how stale a cached policy snapshot may be.
const DefaultPolicyCacheTTL = 5 * time.Minute

type policyCacheEntry struct {
	policies  []*Policy
	fetchedAt time.Time
}

// PolicyCache is a TTL-keyed snapshot store mapping resource id to the
// enabled policies for that resource. It is an explicit, injectable service:
// tests construct their own (empty or pre-seeded) instance instead of
// relying on process-global state. Entry replacement is atomic; a TTL race
// may cost one extra store fetch, which is tolerated.
type PolicyCache struct {
	mu      sync.RWMutex
	entries map[string]*policyCacheEntry
	ttl     time.Duration
	clock   func() time.Time
}

// NewPolicyCache builds a cache with the given TTL; ttl <= 0 uses the default.
func NewPolicyCache(ttl time.Duration) *PolicyCache {
	if ttl <= 0 {
		ttl = DefaultPolicyCacheTTL
	}
	return &PolicyCache{
		entries: make(map[string]*policyCacheEntry),
		ttl:     ttl,
		clock:   time.Now,
	}
}

// Get returns the cached snapshot if present and fresh.
func (c *PolicyCache) Get(resourceID string) ([]*Policy, bool) {
	c.mu.RLock()
	entry, ok := c.entries[resourceID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.clock().Sub(entry.fetchedAt) >= c.ttl {
		return nil, false
	}
	return entry.policies, true
}

// Put stores a fresh snapshot for the resource.
func (c *PolicyCache) Put(resourceID string, policies []*Policy) {
	entry := &policyCacheEntry{policies: policies, fetchedAt: c.clock()}
	c.mu.Lock()
	c.entries[resourceID] = entry
	c.mu.Unlock()
}

// Invalidate removes one entry.
func (c *PolicyCache) Invalidate(resourceID string) {
	c.mu.Lock()
	delete(c.entries, resourceID)
	c.mu.Unlock()
}

// InvalidateAll removes every entry.
func (c *PolicyCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*policyCacheEntry)
	c.mu.Unlock()
}

// Len reports the number of cached snapshots.
func (c *PolicyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ============================================================================
// DECISION CACHE (ristretto)
// ============================================================================

// DecisionKey keys the short-lived decision cache
type DecisionKey struct {
	ResourceID string
	UserID     string
	IP         string
}

// String flattens the key for ristretto, which hashes only scalar key types.
func (k DecisionKey) String() string {
	return k.ResourceID + "\x00" + k.UserID + "\x00" + k.IP
}

// decisionCache memoizes full decisions for a short TTL on top of the policy
// cache. Backed by ristretto so hot routes stay cheap under load.
type decisionCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func newDecisionCache(numCounters, maxCost, bufferItems int64, ttl time.Duration) (*decisionCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return &decisionCache{cache: c, ttl: ttl}, nil
}

func (d *decisionCache) get(key DecisionKey) (*AccessDecision, bool) {
	v, ok := d.cache.Get(key.String())
	if !ok {
		return nil, false
	}
	dec, ok := v.(*AccessDecision)
	return dec, ok
}

func (d *decisionCache) set(key DecisionKey, dec *AccessDecision) {
	// cache a trimmed copy; traces are per-request diagnostics
	cp := *dec
	cp.Trace = []string{"(cached)"}
	d.cache.SetWithTTL(key.String(), &cp, 1, d.ttl)
}

func (d *decisionCache) clear() {
	d.cache.Clear()
}
