package resolver

import (
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/agily/omicron/pkg/authz"
)

type cacheKey struct {
	actor      authz.Actor
	resource   authz.Resource
	permission string
}

type cacheEntry struct {
	allowed   bool
	expiresAt time.Time
	chain     []authz.Resource
}

// DecisionCache memoizes resolutions purely for latency. Each entry records
// the ancestor chain consulted while resolving it; an assignment change on any
// instance in that chain drops the entry, so a revocation is visible on the
// very next call. Entries also age out on a TTL as a backstop for stores that
// cannot signal changes.
type DecisionCache struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	entries map[cacheKey]cacheEntry

	// byResource indexes entries by every instance in their chain.
	byResource map[authz.Resource]map[cacheKey]struct{}
}

func NewDecisionCache(clk clock.Clock, ttl time.Duration) *DecisionCache {
	return &DecisionCache{
		clock:      clk,
		ttl:        ttl,
		entries:    make(map[cacheKey]cacheEntry),
		byResource: make(map[authz.Resource]map[cacheKey]struct{}),
	}
}

func (c *DecisionCache) Get(actor authz.Actor, resource authz.Resource, permission string) (bool, bool) {
	key := cacheKey{actor: actor, resource: resource, permission: permission}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false, false
	}
	if c.clock.Now().After(entry.expiresAt) {
		c.dropLocked(key, entry)
		return false, false
	}
	return entry.allowed, true
}

func (c *DecisionCache) Put(actor authz.Actor, resource authz.Resource, permission string, allowed bool, chain []authz.Resource) {
	key := cacheKey{actor: actor, resource: resource, permission: permission}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.dropLocked(key, old)
	}

	c.entries[key] = cacheEntry{
		allowed:   allowed,
		expiresAt: c.clock.Now().Add(c.ttl),
		chain:     chain,
	}
	for _, res := range chain {
		keys, ok := c.byResource[res]
		if !ok {
			keys = make(map[cacheKey]struct{})
			c.byResource[res] = keys
		}
		keys[key] = struct{}{}
	}
}

// RoleAssignmentChanged invalidates every cached decision whose resolution
// touched the given instance, covering both the instance itself and anything
// that inherited through it.
func (c *DecisionCache) RoleAssignmentChanged(resource authz.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.byResource[resource] {
		if entry, ok := c.entries[key]; ok {
			c.dropLocked(key, entry)
		}
	}
}

func (c *DecisionCache) dropLocked(key cacheKey, entry cacheEntry) {
	delete(c.entries, key)
	for _, res := range entry.chain {
		if keys, ok := c.byResource[res]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.byResource, res)
			}
		}
	}
}
