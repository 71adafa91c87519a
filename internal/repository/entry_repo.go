package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/leduong/EPlusTV/internal/models"
)

const entryBatchSize = 200

// entryRepo implements EntryRepository using GORM.
type entryRepo struct {
	db *gorm.DB
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(db *gorm.DB) *entryRepo {
	return &entryRepo{db: db}
}

// InsertIfAbsent inserts new entries, ignoring ids already in the catalog.
func (r *entryRepo) InsertIfAbsent(ctx context.Context, entries []*models.Entry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	// a batch may repeat an id; keep the first occurrence
	seen := make(map[string]struct{}, len(entries))
	unique := make([]*models.Entry, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		unique = append(unique, e)
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		CreateInBatches(unique, entryBatchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("inserting entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetByID retrieves an entry by ID.
func (r *entryRepo) GetByID(ctx context.Context, id string) (*models.Entry, error) {
	var entry models.Entry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting entry by ID: %w", err)
	}
	return &entry, nil
}

// GetAll retrieves all entries ordered by start.
func (r *entryRepo) GetAll(ctx context.Context) ([]*models.Entry, error) {
	var entries []*models.Entry
	if err := r.db.WithContext(ctx).Order("start_ms ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("getting all entries: %w", err)
	}
	return entries, nil
}

// Unscheduled retrieves entries that have no channel yet.
func (r *entryRepo) Unscheduled(ctx context.Context) ([]*models.Entry, error) {
	var entries []*models.Entry
	if err := r.db.WithContext(ctx).
		Where("channel IS NULL").
		Order("start_ms ASC, id ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("getting unscheduled entries: %w", err)
	}
	return entries, nil
}

// Scheduled retrieves entries with a channel.
func (r *entryRepo) Scheduled(ctx context.Context, filter ScheduledFilter) ([]*models.Entry, error) {
	query := r.db.WithContext(ctx).Where("channel IS NOT NULL")
	if filter.Linear != nil {
		// clause expressions keep the column quoted; LINEAR is reserved in MySQL
		if *filter.Linear {
			query = query.Where(clause.Eq{Column: clause.Column{Name: "linear"}, Value: true})
		} else {
			query = query.Where(clause.Or(
				clause.Eq{Column: clause.Column{Name: "linear"}, Value: nil},
				clause.Eq{Column: clause.Column{Name: "linear"}, Value: false},
			))
		}
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}

	var entries []*models.Entry
	if err := query.Order("start_ms ASC, channel ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("getting scheduled entries: %w", err)
	}
	return entries, nil
}

// Covering returns the entry on the channel whose window contains at.
func (r *entryRepo) Covering(ctx context.Context, channel int, at time.Time) (*models.Entry, error) {
	ms := at.UnixMilli()
	var entry models.Entry
	err := r.db.WithContext(ctx).
		Where("channel = ? AND start_ms <= ? AND end_ms > ?", channel, ms, ms).
		Order("start_ms DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting entry covering channel %d: %w", channel, err)
	}
	return &entry, nil
}

// ChannelTails returns the latest end per occupied channel in [from, to).
func (r *entryRepo) ChannelTails(ctx context.Context, from, to int) (map[int]int64, error) {
	var rows []struct {
		Channel int
		Tail    int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Entry{}).
		Select("channel, MAX(end_ms) AS tail").
		Where("channel >= ? AND channel < ?", from, to).
		Group("channel").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("getting channel tails: %w", err)
	}

	tails := make(map[int]int64, len(rows))
	for _, row := range rows {
		tails[row.Channel] = row.Tail
	}
	return tails, nil
}

// AssignChannels sets channels for the given entry ids.
func (r *entryRepo) AssignChannels(ctx context.Context, assignments map[string]int) error {
	if len(assignments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, channel := range assignments {
			if err := tx.Model(&models.Entry{}).Where("id = ?", id).Update("channel", channel).Error; err != nil {
				return fmt.Errorf("assigning channel %d to %s: %w", channel, id, err)
			}
		}
		return nil
	})
}

// ClearChannels removes every channel assignment.
func (r *entryRepo) ClearChannels(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Entry{}).
		Where("channel IS NOT NULL").
		Update("channel", nil)
	if result.Error != nil {
		return 0, fmt.Errorf("clearing channels: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteExpired removes entries that ended at or before now.
func (r *entryRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("end_ms <= ?", now.UnixMilli()).Delete(&models.Entry{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting expired entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteAll empties the catalog.
func (r *entryRepo) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Entry{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting all entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Count returns the number of catalog entries.
func (r *entryRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Entry{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}
