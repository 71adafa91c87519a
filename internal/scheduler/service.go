package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leduong/EPlusTV/internal/catalog"
	"github.com/leduong/EPlusTV/internal/config"
	"github.com/leduong/EPlusTV/internal/metrics"
	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/observability"
	"github.com/leduong/EPlusTV/internal/repository"
)

// RunRetention is how long pass records are kept.
const RunRetention = 7 * 24 * time.Hour

// Catalog is the part of the entry catalog a pass drives.
type Catalog interface {
	Ingest(ctx context.Context) (*catalog.IngestResult, error)
	Prune(ctx context.Context, now time.Time) (int64, error)
	Clear(ctx context.Context) (int64, error)
}

// Service runs scheduling passes over the local catalog. Passes are
// serialized; every exported mutating method takes the same lock.
type Service struct {
	entries  repository.EntryRepository
	settings repository.ScheduleSettingsRepository
	runs     repository.ScheduleRunRepository
	catalog  Catalog

	defaults      config.SchedulingConfig
	linear        LinearChannels
	linearStart   int
	linearEnabled bool

	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a scheduling service. defaults seed the stored settings
// on first use and fix the linear range.
func NewService(
	entries repository.EntryRepository,
	settings repository.ScheduleSettingsRepository,
	runs repository.ScheduleRunRepository,
	cat Catalog,
	defaults config.SchedulingConfig,
) *Service {
	return &Service{
		entries:       entries,
		settings:      settings,
		runs:          runs,
		catalog:       cat,
		defaults:      defaults,
		linear:        DefaultLinearChannels,
		linearStart:   defaults.LinearStart,
		linearEnabled: defaults.LinearEnabled,
		logger:        slog.Default(),
		now:           time.Now,
	}
}

// WithLogger sets a custom logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = observability.WithComponent(logger, "scheduler")
	return s
}

// WithLinearChannels replaces the linear lineup.
func (s *Service) WithLinearChannels(l LinearChannels) *Service {
	s.linear = l
	return s
}

// Linear returns the linear lineup, its first channel and whether it is on.
func (s *Service) Linear() (LinearChannels, int, bool) {
	return s.linear, s.linearStart, s.linearEnabled
}

// Settings returns the stored settings, seeding them from defaults if absent.
func (s *Service) Settings(ctx context.Context) (*models.ScheduleSettings, error) {
	current, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading schedule settings: %w", err)
	}
	if current != nil {
		return current, nil
	}

	seeded := &models.ScheduleSettings{
		StartChannel:      s.defaults.StartChannel,
		NumChannels:       s.defaults.NumChannels,
		ExcludeCategories: s.defaults.ExcludeCategories,
		ExcludeTitles:     s.defaults.ExcludeTitles,
	}
	if err := s.settings.Save(ctx, seeded); err != nil {
		return nil, fmt.Errorf("seeding schedule settings: %w", err)
	}
	return seeded, nil
}

// RunPass prunes expired entries and places every unscheduled one.
func (s *Service) RunPass(ctx context.Context, trigger models.ScheduleTrigger) (*models.ScheduleRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runPass(ctx, trigger)
}

// IngestAndRun pulls fresh listings and then runs a pass. An ingestion error
// is logged and the pass still runs over what is already stored.
func (s *Service) IngestAndRun(ctx context.Context, trigger models.ScheduleTrigger) (*models.ScheduleRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.catalog.Ingest(ctx); err != nil {
		observability.WithError(s.logger, err).Warn("ingestion failed, scheduling stored entries")
	}
	return s.runPass(ctx, trigger)
}

// ResetSchedule clears every channel assignment and schedules from scratch.
// The catalog itself is kept.
func (s *Service) ResetSchedule(ctx context.Context) (*models.ScheduleRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.entries.ClearChannels(ctx); err != nil {
		return nil, fmt.Errorf("clearing channel assignments: %w", err)
	}
	return s.runPass(ctx, models.TriggerReset)
}

// Rebuild empties the catalog, ingests every provider again and schedules.
func (s *Service) Rebuild(ctx context.Context) (*models.ScheduleRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.catalog.Clear(ctx); err != nil {
		return nil, err
	}
	if _, err := s.catalog.Ingest(ctx); err != nil {
		return nil, fmt.Errorf("re-ingesting catalog: %w", err)
	}
	return s.runPass(ctx, models.TriggerRebuild)
}

// UpdateSettings stores new pool settings and reschedules everything.
func (s *Service) UpdateSettings(ctx context.Context, in *models.ScheduleSettings) (*models.ScheduleRun, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkLinearOverlap(in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading schedule settings: %w", err)
	}
	if current != nil {
		in.ID = current.ID
		in.CreatedAt = current.CreatedAt
	}
	if err := s.settings.Save(ctx, in); err != nil {
		return nil, fmt.Errorf("saving schedule settings: %w", err)
	}
	s.logger.Info("schedule settings updated",
		slog.Int("start_channel", in.StartChannel),
		slog.Int("num_channels", in.NumChannels),
	)

	if _, err := s.entries.ClearChannels(ctx); err != nil {
		return nil, fmt.Errorf("clearing channel assignments: %w", err)
	}
	return s.runPass(ctx, models.TriggerSettings)
}

func (s *Service) checkLinearOverlap(in *models.ScheduleSettings) error {
	if !s.linearEnabled || len(s.linear) == 0 {
		return nil
	}
	linearEnd := s.linearStart + len(s.linear)
	if in.StartChannel < linearEnd && s.linearStart < in.EndChannel() {
		return models.ErrValidation{
			Field:   "start_channel",
			Message: fmt.Sprintf("pool [%d, %d) overlaps linear channels [%d, %d)", in.StartChannel, in.EndChannel(), s.linearStart, linearEnd),
		}
	}
	return nil
}

// PreviewRow is one planned placement.
type PreviewRow struct {
	EntryID string    `json:"entry_id"`
	Name    string    `json:"name"`
	From    string    `json:"from"`
	Channel int       `json:"channel"`
	Linear  bool      `json:"linear"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Preview is what a reset would produce, without persisting anything.
type Preview struct {
	Rows     []PreviewRow `json:"rows"`
	Dropped  []string     `json:"dropped"`
	Filtered int          `json:"filtered"`
	Channels int          `json:"channels_used"`
}

// Preview plans a schedule for every live-or-future entry as if all
// assignments were cleared.
func (s *Service) Preview(ctx context.Context) (*Preview, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.entries.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading entries: %w", err)
	}

	now := s.now()
	pending := make([]*models.Entry, 0, len(all))
	for _, e := range all {
		if !e.Expired(now) {
			pending = append(pending, e)
		}
	}

	plan := s.plan(pending, settings, nil)
	byID := make(map[string]*models.Entry, len(pending))
	for _, e := range pending {
		byID[e.ID] = e
	}

	dropped := append(append([]string{}, plan.dropped...), plan.overlapping...)
	out := &Preview{Dropped: dropped, Filtered: plan.filtered, Channels: plan.channelsUsed}
	for _, as := range plan.linear {
		out.Rows = append(out.Rows, previewRow(byID[as.EntryID], as.Channel, true))
	}
	for _, as := range plan.dynamic {
		out.Rows = append(out.Rows, previewRow(byID[as.EntryID], as.Channel, false))
	}
	return out, nil
}

func previewRow(e *models.Entry, channel int, linear bool) PreviewRow {
	return PreviewRow{
		EntryID: e.ID,
		Name:    e.Name,
		From:    e.From,
		Channel: channel,
		Linear:  linear,
		Start:   e.StartTime(),
		End:     e.EndTime(),
	}
}

// Runs returns recent pass records, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]*models.ScheduleRun, error) {
	return s.runs.Recent(ctx, limit)
}

// PruneRuns drops pass records older than RunRetention.
func (s *Service) PruneRuns(ctx context.Context) (int64, error) {
	return s.runs.DeleteOlderThan(ctx, s.now().Add(-RunRetention))
}

type plan struct {
	linear       []Assignment
	dynamic      []Assignment
	dropped      []string
	overlapping  []string
	filtered     int
	unmapped     int
	channelsUsed int
}

func (p plan) assignments() map[string]int {
	m := make(map[string]int, len(p.linear)+len(p.dynamic))
	for _, as := range p.linear {
		m[as.EntryID] = as.Channel
	}
	for _, as := range p.dynamic {
		m[as.EntryID] = as.Channel
	}
	return m
}

// plan filters entries, places linear ones on their fixed channel and
// allocates the rest from the pool. tails covers both ranges.
func (s *Service) plan(entries []*models.Entry, settings *models.ScheduleSettings, tails map[int]int64) plan {
	filters := NewFilters(settings.ExcludeCategories, settings.ExcludeTitles)
	kept, filtered := filters.Apply(entries)

	var p plan
	p.filtered = filtered

	dynamic := make([]*models.Entry, 0, len(kept))
	var linear []*models.Entry
	for _, e := range kept {
		switch {
		case !e.IsLinear():
			dynamic = append(dynamic, e)
		case s.linearEnabled:
			linear = append(linear, e)
		}
	}

	placed := s.linear.Place(linear, s.linearStart, tails)
	p.linear = placed.Assignments
	p.overlapping = placed.Overlapping
	p.unmapped = placed.Unmapped

	alloc := Allocate(dynamic, Pool{Start: settings.StartChannel, Size: settings.NumChannels}, tails)
	p.dynamic = alloc.Assignments
	p.dropped = alloc.Dropped
	p.channelsUsed = alloc.ChannelsUsed
	return p
}

func (s *Service) runPass(ctx context.Context, trigger models.ScheduleTrigger) (*models.ScheduleRun, error) {
	started := s.now()
	run := &models.ScheduleRun{Trigger: trigger, StartedAt: started}

	err := s.pass(ctx, run)
	run.DurationMs = time.Since(started).Milliseconds()
	if err != nil {
		run.Error = err.Error()
	}

	// record with a fresh context so a cancelled pass is still visible
	if rerr := s.runs.Create(context.WithoutCancel(ctx), run); rerr != nil {
		observability.WithError(s.logger, rerr).Warn("recording schedule run failed")
	}

	if err != nil {
		observability.WithError(s.logger, err).Error("schedule pass failed", slog.String("trigger", string(trigger)))
		return run, err
	}
	s.logger.Info("schedule pass complete",
		slog.String("trigger", string(trigger)),
		slog.Int64("pruned", run.Pruned),
		slog.Int("considered", run.Considered),
		slog.Int("scheduled", run.Scheduled),
		slog.Int("linear", run.Linear),
		slog.Int("dropped", run.Dropped),
		slog.Int("channels_used", run.ChannelsUsed),
	)
	return run, nil
}

func (s *Service) pass(ctx context.Context, run *models.ScheduleRun) error {
	pruned, err := s.catalog.Prune(ctx, run.StartedAt)
	if err != nil {
		return err
	}
	run.Pruned = pruned

	settings, err := s.Settings(ctx)
	if err != nil {
		return err
	}

	pending, err := s.entries.Unscheduled(ctx)
	if err != nil {
		return fmt.Errorf("loading unscheduled entries: %w", err)
	}
	run.Considered = len(pending)

	tails, err := s.entries.ChannelTails(ctx, settings.StartChannel, settings.EndChannel())
	if err != nil {
		return fmt.Errorf("loading channel tails: %w", err)
	}
	if s.linearEnabled {
		linearTails, err := s.entries.ChannelTails(ctx, s.linearStart, s.linearStart+s.linear.Len())
		if err != nil {
			return fmt.Errorf("loading linear channel tails: %w", err)
		}
		for ch, end := range linearTails {
			tails[ch] = end
		}
	}

	p := s.plan(pending, settings, tails)
	run.Filtered = p.filtered
	run.Linear = len(p.linear)
	run.Scheduled = len(p.dynamic)
	run.Dropped = len(p.dropped) + len(p.overlapping)
	run.ChannelsUsed = p.channelsUsed

	if len(p.dropped) > 0 {
		s.logger.Warn("channel pool exhausted",
			slog.Int("dropped", len(p.dropped)),
			slog.Int("pool_size", settings.NumChannels),
		)
	}
	if len(p.overlapping) > 0 {
		s.logger.Warn("overlapping linear entries skipped",
			slog.Int("count", len(p.overlapping)),
			slog.Any("entry_ids", p.overlapping),
		)
	}
	if p.unmapped > 0 {
		s.logger.Debug("linear entries without a known network", slog.Int("count", p.unmapped))
	}

	assignments := p.assignments()
	if len(assignments) == 0 {
		return nil
	}
	if err := s.entries.AssignChannels(ctx, assignments); err != nil {
		return fmt.Errorf("persisting assignments: %w", err)
	}

	metrics.ScheduledEntries.WithLabelValues("dynamic").Add(float64(len(p.dynamic)))
	metrics.ScheduledEntries.WithLabelValues("linear").Add(float64(len(p.linear)))
	metrics.AllocationDrops.Add(float64(len(p.dropped) + len(p.overlapping)))
	return nil
}

// IsValidation reports whether err is a settings validation failure.
func IsValidation(err error) bool {
	var v models.ErrValidation
	return errors.As(err, &v)
}
