package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/leduong/EPlusTV/internal/metrics"
	"github.com/leduong/EPlusTV/internal/observability"
)

// DefaultRefreshInterval is how often credentials are refreshed.
const DefaultRefreshInterval = 30 * time.Minute

// Supervisor initializes adapters once and refreshes their credentials on a
// cron entry. A failing adapter never affects the others.
type Supervisor struct {
	mu sync.Mutex

	registry *Registry
	interval time.Duration
	logger   *slog.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSupervisor creates a supervisor for the adapters in registry.
func NewSupervisor(registry *Registry, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Supervisor{
		registry: registry,
		interval: interval,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *Supervisor) WithLogger(logger *slog.Logger) *Supervisor {
	s.logger = observability.WithComponent(logger, "supervisor")
	return s
}

// InitializeAll initializes every adapter concurrently.
func (s *Supervisor) InitializeAll(ctx context.Context) {
	s.each(ctx, "initialize", func(ctx context.Context, a Adapter) error {
		return a.Initialize(ctx)
	})
}

// RefreshAll refreshes every adapter's credentials concurrently.
func (s *Supervisor) RefreshAll(ctx context.Context) {
	s.each(ctx, "refresh", func(ctx context.Context, a Adapter) error {
		err := a.RefreshTokens(ctx)
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.CredentialRefreshes.WithLabelValues(a.Key(), result).Inc()
		return err
	})
}

func (s *Supervisor) each(ctx context.Context, op string, fn func(context.Context, Adapter) error) {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range s.registry.All() {
		a := a
		g.Go(func() error {
			start := time.Now()
			if err := fn(gctx, a); err != nil {
				observability.WithError(observability.WithProvider(s.logger, a.Key()), err).
					Warn("provider "+op+" failed")
				return nil
			}
			s.logger.Debug("provider "+op+" complete",
				slog.String("provider", a.Key()),
				slog.Duration("duration", time.Since(start)),
			)
			return nil
		})
	}
	_ = g.Wait()
}

// Start initializes and refreshes all adapters, then schedules the periodic
// refresh. It returns once the initial round has finished.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("supervisor already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.InitializeAll(s.ctx)
	s.RefreshAll(s.ctx)

	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() { s.RefreshAll(s.ctx) }); err != nil {
		s.cancel()
		s.ctx, s.cancel = nil, nil
		return fmt.Errorf("scheduling credential refresh: %w", err)
	}
	s.cron.Start()

	s.logger.Info("provider supervisor started",
		slog.Any("providers", s.registry.Keys()),
		slog.Duration("refresh_interval", s.interval),
	)
	return nil
}

// Stop cancels in-flight refreshes and waits for the cron entry to finish.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.ctx, s.cancel, s.cron = nil, nil, nil
	s.logger.Info("provider supervisor stopped")
}
