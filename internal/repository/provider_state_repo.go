package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/leduong/EPlusTV/internal/models"
)

// providerStateRepo implements ProviderStateRepository using GORM.
type providerStateRepo struct {
	db *gorm.DB
}

// NewProviderStateRepository creates a new ProviderStateRepository.
func NewProviderStateRepository(db *gorm.DB) *providerStateRepo {
	return &providerStateRepo{db: db}
}

// Get retrieves the state for a provider key.
func (r *providerStateRepo) Get(ctx context.Context, key string) (*models.ProviderState, error) {
	var state models.ProviderState
	if err := r.db.WithContext(ctx).Where(&models.ProviderState{Key: key}).First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting provider state %s: %w", key, err)
	}
	return &state, nil
}

// Upsert creates or replaces the state for its key.
func (r *providerStateRepo) Upsert(ctx context.Context, state *models.ProviderState) error {
	if state.Key == "" {
		return models.ErrValidation{Field: "key", Message: "is required"}
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "expires_at", "updated_at"}),
		}).
		Create(state).Error; err != nil {
		return fmt.Errorf("upserting provider state %s: %w", state.Key, err)
	}
	return nil
}

// GetAll retrieves every stored provider state.
func (r *providerStateRepo) GetAll(ctx context.Context) ([]*models.ProviderState, error) {
	var states []*models.ProviderState
	if err := r.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&states).Error; err != nil {
		return nil, fmt.Errorf("getting provider states: %w", err)
	}
	return states, nil
}
