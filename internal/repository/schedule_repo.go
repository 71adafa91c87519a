package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/leduong/EPlusTV/internal/models"
)

// scheduleSettingsRepo implements ScheduleSettingsRepository using GORM.
type scheduleSettingsRepo struct {
	db *gorm.DB
}

// NewScheduleSettingsRepository creates a new ScheduleSettingsRepository.
func NewScheduleSettingsRepository(db *gorm.DB) *scheduleSettingsRepo {
	return &scheduleSettingsRepo{db: db}
}

// Get retrieves the settings row.
func (r *scheduleSettingsRepo) Get(ctx context.Context) (*models.ScheduleSettings, error) {
	var settings models.ScheduleSettings
	if err := r.db.WithContext(ctx).Order("created_at ASC").First(&settings).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting schedule settings: %w", err)
	}
	return &settings, nil
}

// Save creates or updates the settings row.
func (r *scheduleSettingsRepo) Save(ctx context.Context, settings *models.ScheduleSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if settings.ID.IsZero() {
		if err := r.db.WithContext(ctx).Create(settings).Error; err != nil {
			return fmt.Errorf("creating schedule settings: %w", err)
		}
		return nil
	}
	if err := r.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("updating schedule settings: %w", err)
	}
	return nil
}

// scheduleRunRepo implements ScheduleRunRepository using GORM.
type scheduleRunRepo struct {
	db *gorm.DB
}

// NewScheduleRunRepository creates a new ScheduleRunRepository.
func NewScheduleRunRepository(db *gorm.DB) *scheduleRunRepo {
	return &scheduleRunRepo{db: db}
}

// Create records a completed pass.
func (r *scheduleRunRepo) Create(ctx context.Context, run *models.ScheduleRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("creating schedule run: %w", err)
	}
	return nil
}

// Recent retrieves the latest runs, newest first.
func (r *scheduleRunRepo) Recent(ctx context.Context, limit int) ([]*models.ScheduleRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []*models.ScheduleRun
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("getting recent schedule runs: %w", err)
	}
	return runs, nil
}

// DeleteOlderThan removes runs that started before cutoff.
func (r *scheduleRunRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("started_at < ?", cutoff).Delete(&models.ScheduleRun{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting old schedule runs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
