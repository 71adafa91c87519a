package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/leduong/EPlusTV/internal/models"
)

// Registry holds the enabled adapters keyed by provider key and throttles
// playback resolution per provider.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	limiters map[string]*rate.Limiter

	limit rate.Limit
	burst int
}

// NewRegistry creates a registry. A non-positive perSecond disables throttling.
func NewRegistry(perSecond float64, burst int) *Registry {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Registry{
		adapters: make(map[string]Adapter),
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Register adds an adapter. Registering a key twice replaces the adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Key()] = a
	r.limiters[a.Key()] = rate.NewLimiter(r.limit, r.burst)
}

// Get returns the adapter for key.
func (r *Registry) Get(key string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[key]
	return a, ok
}

// All returns the adapters ordered by key.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Adapter, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.adapters[k])
	}
	return out
}

// Keys returns the registered provider keys in order.
func (r *Registry) Keys() []string {
	all := r.All()
	keys := make([]string, len(all))
	for i, a := range all {
		keys[i] = a.Key()
	}
	return keys
}

// Resolve resolves playback for entry through the adapter named by entry.From.
func (r *Registry) Resolve(ctx context.Context, entry *models.Entry) (*PlaybackInfo, error) {
	r.mu.RLock()
	a, ok := r.adapters[entry.From]
	limiter := r.limiters[entry.From]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, entry.From)
	}
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for %s rate limit: %w", entry.From, err)
	}
	return a.GetEventData(ctx, entry)
}

// Stale reports whether the adapter for key says its credentials are stale.
// Adapters that do not implement StaleChecker are never stale.
func (r *Registry) Stale(key string, now time.Time) bool {
	a, ok := r.Get(key)
	if !ok {
		return false
	}
	sc, ok := a.(StaleChecker)
	return ok && sc.CredentialsStale(now)
}
