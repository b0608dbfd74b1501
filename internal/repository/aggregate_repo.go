package repository

import (
	"context"
	"errors"
	"time"

	"github.com/froberg/shopsync/internal/domain"
	"gorm.io/gorm"
)

// AggregateRepository handles the derived daily aggregate table. Writes
// replace the whole (shop, date) slice in one transaction: dimensions that
// disappeared from the raw data must not survive a recomputation.
type AggregateRepository struct {
	db *gorm.DB
}

// NewAggregateRepository creates a new AggregateRepository.
func NewAggregateRepository(db *gorm.DB) *AggregateRepository {
	return &AggregateRepository{db: db}
}

// ReplaceForDay deletes every aggregate row for (shop, metricDate) and
// inserts the freshly computed set.
func (r *AggregateRepository) ReplaceForDay(ctx context.Context, shop string, metricDate time.Time, rows []domain.DailyAggregate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("shop = ? AND metric_date = ?", shop, metricDate).
			Delete(&domain.DailyAggregate{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// GetForDay returns all aggregate rows for (shop, metricDate).
func (r *AggregateRepository) GetForDay(ctx context.Context, shop string, metricDate time.Time) ([]domain.DailyAggregate, error) {
	var rows []domain.DailyAggregate
	err := r.db.WithContext(ctx).
		Where("shop = ? AND metric_date = ?", shop, metricDate).
		Order("dimension_type ASC, dimension_value ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetShopRow returns the whole-shop aggregate row for (shop, metricDate),
// or nil when the day has never been aggregated.
func (r *AggregateRepository) GetShopRow(ctx context.Context, shop string, metricDate time.Time) (*domain.DailyAggregate, error) {
	var row domain.DailyAggregate
	err := r.db.WithContext(ctx).
		Where("shop = ? AND metric_date = ? AND dimension_type = ?", shop, metricDate, domain.DimensionShop).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
