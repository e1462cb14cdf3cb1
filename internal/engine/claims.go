package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// claim is a time-bounded ownership marker on one order. A worker that
// crashes without releasing simply lets the lease lapse, after which the
// next scan may reclaim the order.
type claim struct {
	token   string
	expires time.Time
}

// ClaimRegistry hands out at most one live claim per order. It is the
// linearization point for order status writes: no status transition happens
// outside a held claim, and cancellation is refused while one is held.
type ClaimRegistry struct {
	mu     sync.Mutex
	ttl    time.Duration
	claims map[string]claim
	now    func() time.Time
}

func NewClaimRegistry(ttl time.Duration) *ClaimRegistry {
	return &ClaimRegistry{
		ttl:    ttl,
		claims: make(map[string]claim),
		now:    time.Now,
	}
}

// Acquire claims the order and returns the lease token. Returns false when
// a live claim is already held by someone else.
func (r *ClaimRegistry) Acquire(orderID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.claims[orderID]; ok && now.Before(existing.expires) {
		return "", false
	}

	token := uuid.New().String()
	r.claims[orderID] = claim{token: token, expires: now.Add(r.ttl)}
	return token, true
}

// Release drops the claim if token is still the live lease. A stale token
// (expired and reclaimed by another worker) releases nothing.
func (r *ClaimRegistry) Release(orderID, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.claims[orderID]; ok && existing.token == token {
		delete(r.claims, orderID)
	}
}

// Held reports whether a live claim exists for the order.
func (r *ClaimRegistry) Held(orderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.claims[orderID]
	return ok && r.now().Before(existing.expires)
}

// Owns reports whether token is the live lease for the order. The
// coordinator checks this before committing a terminal status, so a worker
// that overran its lease cannot race the reclaiming one.
func (r *ClaimRegistry) Owns(orderID, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.claims[orderID]
	return ok && existing.token == token && r.now().Before(existing.expires)
}
