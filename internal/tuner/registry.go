package tuner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/leduong/EPlusTV/internal/metrics"
	"github.com/leduong/EPlusTV/internal/observability"
	"github.com/leduong/EPlusTV/pkg/httpclient"
)

// RegistryConfig holds session lifetime settings.
type RegistryConfig struct {
	// IdleTimeout is how long a session survives without a heartbeat.
	// Default: 5 minutes
	IdleTimeout time.Duration

	// ReapInterval is how often idle sessions are swept.
	// Default: 60 seconds
	ReapInterval time.Duration

	// LaunchTimeout bounds one launch, which may run a provider auth flow.
	// Default: 45 seconds
	LaunchTimeout time.Duration
}

// DefaultRegistryConfig returns the default registry configuration.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		IdleTimeout:   5 * time.Minute,
		ReapInterval:  60 * time.Second,
		LaunchTimeout: 45 * time.Second,
	}
}

// Registry owns the in-memory tuner sessions keyed by channel id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	launches singleflight.Group

	entries  EntryLookup
	resolver Resolver
	client   *httpclient.Client
	logger   *slog.Logger
	now      func() time.Time

	idleTimeout   time.Duration
	reapInterval  time.Duration
	launchTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates an empty session registry.
func NewRegistry(entries EntryLookup, resolver Resolver, client *httpclient.Client) *Registry {
	cfg := DefaultRegistryConfig()
	return &Registry{
		sessions:      make(map[string]*Session),
		entries:       entries,
		resolver:      resolver,
		client:        client,
		logger:        slog.Default(),
		now:           time.Now,
		idleTimeout:   cfg.IdleTimeout,
		reapInterval:  cfg.ReapInterval,
		launchTimeout: cfg.LaunchTimeout,
	}
}

// WithLogger sets a custom logger.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = observability.WithComponent(logger, "tuner")
	return r
}

// WithConfig applies configuration to the registry.
func (r *Registry) WithConfig(cfg RegistryConfig) *Registry {
	if cfg.IdleTimeout > 0 {
		r.idleTimeout = cfg.IdleTimeout
	}
	if cfg.ReapInterval > 0 {
		r.reapInterval = cfg.ReapInterval
	}
	if cfg.LaunchTimeout > 0 {
		r.launchTimeout = cfg.LaunchTimeout
	}
	return r
}

// GetOrLaunch returns the live session for id, launching one if needed.
// Concurrent callers for the same id share a single launch.
func (r *Registry) GetOrLaunch(ctx context.Context, id, baseURL string) (*Session, error) {
	if s, ok := r.Get(id); ok {
		return s, nil
	}

	v, err, _ := r.launches.Do(id, func() (any, error) {
		if s, ok := r.Get(id); ok {
			return s, nil
		}

		// the launch is shared, so one caller going away must not abort it
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.launchTimeout)
		defer cancel()

		s := newSession(id, baseURL, r.entries, r.resolver, r.client, r.logger, r.now)
		if err := s.Launch(lctx); err != nil {
			result := "error"
			if errors.Is(err, ErrNotScheduled) {
				result = "not_scheduled"
			}
			metrics.SessionLaunches.WithLabelValues(result).Inc()
			return nil, err
		}
		metrics.SessionLaunches.WithLabelValues("ok").Inc()

		r.mu.Lock()
		r.sessions[id] = s
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Get returns the session for id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Touch records a heartbeat for id. It reports false if no session exists.
func (r *Registry) Touch(id string, now time.Time) bool {
	s, ok := r.Get(id)
	if !ok {
		return false
	}
	s.Touch(now)
	return true
}

// Remove drops the session for id. It reports whether one existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if ok {
		r.logger.Debug("tuner session removed", slog.String("channel", id))
	}
	return ok
}

// Clear drops every session.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.sessions)
	r.sessions = make(map[string]*Session)
	metrics.ActiveSessions.Set(0)
	return n
}

// List returns a snapshot of every session ordered by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Info())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Reap removes sessions idle longer than the idle timeout, and sessions
// that never completed a launch. It returns how many were removed.
func (r *Registry) Reap(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	reaped := 0
	for id, s := range r.sessions {
		if s.complete() && now.Sub(s.Heartbeat()) <= r.idleTimeout {
			continue
		}
		delete(r.sessions, id)
		reaped++
		r.logger.Info("reaped idle tuner session", slog.String("channel", id))
	}
	if reaped > 0 {
		metrics.SessionsReaped.Add(float64(reaped))
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return reaped
}

// Start runs the reaper until Stop or ctx is cancelled.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx != nil {
		return fmt.Errorf("session reaper already started")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.reapLoop(r.ctx)

	r.logger.Info("session reaper started",
		slog.Duration("interval", r.reapInterval),
		slog.Duration("idle_timeout", r.idleTimeout),
	)
	return nil
}

// Stop ends the reaper and waits for it to exit.
func (r *Registry) Stop() {
	r.mu.Lock()
	if r.ctx == nil {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.ctx, r.cancel = nil, nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.logger.Info("session reaper stopped")
}

func (r *Registry) reapLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap(r.now())
		}
	}
}
