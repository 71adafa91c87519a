package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/observability"
)

// Runner drives ingestion and scheduling passes on a timer.
type Runner struct {
	mu sync.RWMutex

	service *Service
	logger  *slog.Logger

	interval    time.Duration
	runOnStart  bool
	passTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	cron   *cron.Cron
	wg     sync.WaitGroup
}

// RunnerConfig holds configuration for the runner.
type RunnerConfig struct {
	// Interval between ingest-and-schedule passes.
	// Default: 4 hours
	Interval time.Duration

	// RunOnStart runs one pass as soon as the runner starts.
	// Default: true
	RunOnStart bool

	// PassTimeout bounds a single timed pass.
	// Default: 10 minutes
	PassTimeout time.Duration
}

// DefaultRunnerConfig returns the default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Interval:    4 * time.Hour,
		RunOnStart:  true,
		PassTimeout: 10 * time.Minute,
	}
}

// NewRunner creates a runner for service.
func NewRunner(service *Service) *Runner {
	cfg := DefaultRunnerConfig()
	return &Runner{
		service:     service,
		logger:      slog.Default(),
		interval:    cfg.Interval,
		runOnStart:  cfg.RunOnStart,
		passTimeout: cfg.PassTimeout,
	}
}

// WithLogger sets a custom logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = observability.WithComponent(logger, "schedule-runner")
	return r
}

// WithConfig applies configuration to the runner.
func (r *Runner) WithConfig(cfg RunnerConfig) *Runner {
	if cfg.Interval > 0 {
		r.interval = cfg.Interval
	}
	if cfg.PassTimeout > 0 {
		r.passTimeout = cfg.PassTimeout
	}
	r.runOnStart = cfg.RunOnStart
	return r
}

// Start schedules the timed pass and, if configured, kicks off a startup
// pass in the background.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx != nil {
		return fmt.Errorf("runner already started")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	spec := fmt.Sprintf("@every %s", r.interval)
	if _, err := r.cron.AddFunc(spec, func() { r.run(models.TriggerTimer) }); err != nil {
		r.cancel()
		r.ctx, r.cancel, r.cron = nil, nil, nil
		return fmt.Errorf("scheduling pass timer: %w", err)
	}
	r.cron.Start()

	if r.runOnStart {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.run(models.TriggerStartup)
		}()
	}

	r.logger.Info("schedule runner started", slog.Duration("interval", r.interval))
	return nil
}

// Stop cancels any running pass and waits for it to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.ctx == nil {
		r.mu.Unlock()
		return
	}
	cancel, c := r.cancel, r.cron
	r.mu.Unlock()

	// passes read r.ctx under the lock, so wait with it released
	cancel()
	<-c.Stop().Done()
	r.wg.Wait()

	r.mu.Lock()
	r.ctx, r.cancel, r.cron = nil, nil, nil
	r.mu.Unlock()
	r.logger.Info("schedule runner stopped")
}

// IsRunning reports whether the runner is started.
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ctx != nil
}

// NextRun returns when the timed pass fires next, or zero when stopped.
func (r *Runner) NextRun() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cron == nil {
		return time.Time{}
	}
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (r *Runner) run(trigger models.ScheduleTrigger) {
	r.mu.RLock()
	parent := r.ctx
	r.mu.RUnlock()
	if parent == nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, r.passTimeout)
	defer cancel()

	if _, err := r.service.IngestAndRun(ctx, trigger); err != nil {
		// already logged by the service
		return
	}
	if n, err := r.service.PruneRuns(ctx); err != nil {
		observability.WithError(r.logger, err).Warn("pruning schedule runs failed")
	} else if n > 0 {
		r.logger.Debug("pruned schedule runs", slog.Int64("count", n))
	}
}
