// Package repository defines data access interfaces for eplustv entities.
// All database access goes through these interfaces.
package repository

import (
	"context"
	"time"

	"github.com/leduong/EPlusTV/internal/models"
)

// ScheduledFilter narrows a scheduled-entry listing.
type ScheduledFilter struct {
	// Linear selects linear (true) or dynamic (false) entries; nil selects both.
	Linear *bool
	// Provider restricts the listing to one provider key when set.
	Provider string
}

// EntryRepository defines operations on the event catalog.
type EntryRepository interface {
	// InsertIfAbsent inserts entries whose id is not yet present and
	// returns how many rows were added. Existing rows are left untouched.
	InsertIfAbsent(ctx context.Context, entries []*models.Entry) (int64, error)
	// GetByID retrieves an entry by ID.
	GetByID(ctx context.Context, id string) (*models.Entry, error)
	// GetAll retrieves all entries ordered by start.
	GetAll(ctx context.Context) ([]*models.Entry, error)
	// Unscheduled retrieves entries with no channel, ordered by start then id.
	Unscheduled(ctx context.Context) ([]*models.Entry, error)
	// Scheduled retrieves entries with a channel, ordered by start.
	Scheduled(ctx context.Context, filter ScheduledFilter) ([]*models.Entry, error)
	// Covering returns the entry on channel whose window contains at, or nil.
	Covering(ctx context.Context, channel int, at time.Time) (*models.Entry, error)
	// ChannelTails returns the latest end time per channel in [from, to).
	ChannelTails(ctx context.Context, from, to int) (map[int]int64, error)
	// AssignChannels sets the channel of each entry id in one transaction.
	AssignChannels(ctx context.Context, assignments map[string]int) error
	// ClearChannels removes every channel assignment.
	ClearChannels(ctx context.Context) (int64, error)
	// DeleteExpired removes entries that ended at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// DeleteAll empties the catalog.
	DeleteAll(ctx context.Context) (int64, error)
	// Count returns the number of catalog entries.
	Count(ctx context.Context) (int64, error)
}

// ProviderStateRepository persists the local mirror of provider credentials.
type ProviderStateRepository interface {
	// Get retrieves the state for a provider key, or nil if absent.
	Get(ctx context.Context, key string) (*models.ProviderState, error)
	// Upsert creates or replaces the state for its key.
	Upsert(ctx context.Context, state *models.ProviderState) error
	// GetAll retrieves every stored provider state.
	GetAll(ctx context.Context) ([]*models.ProviderState, error)
}

// ScheduleSettingsRepository persists the channel pool settings.
type ScheduleSettingsRepository interface {
	// Get retrieves the settings row, or nil if none has been saved.
	Get(ctx context.Context) (*models.ScheduleSettings, error)
	// Save creates or updates the settings row.
	Save(ctx context.Context, settings *models.ScheduleSettings) error
}

// ScheduleRunRepository persists scheduling pass history.
type ScheduleRunRepository interface {
	// Create records a completed pass.
	Create(ctx context.Context, run *models.ScheduleRun) error
	// Recent retrieves the latest runs, newest first.
	Recent(ctx context.Context, limit int) ([]*models.ScheduleRun, error)
	// DeleteOlderThan removes runs that started before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
