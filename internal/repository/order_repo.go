package repository

import (
	"context"
	"time"

	"github.com/froberg/shopsync/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository handles the raw fact tables (orders, order lines, SKUs,
// refunds). All writes are idempotent upserts keyed by the natural key, so
// re-ingesting the same export result is safe.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// UpsertOrders creates or updates order headers in chunks of chunkSize,
// keyed on (shop, external_id).
func (r *OrderRepository) UpsertOrders(ctx context.Context, orders []domain.Order, chunkSize int) error {
	if len(orders) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop"}, {Name: "external_id"}},
		UpdateAll: true,
	}).CreateInBatches(orders, chunkSize).Error
}

// UpsertLines creates or updates order lines keyed on (shop, external_id).
func (r *OrderRepository) UpsertLines(ctx context.Context, lines []domain.OrderLine, chunkSize int) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop"}, {Name: "external_id"}},
		UpdateAll: true,
	}).CreateInBatches(lines, chunkSize).Error
}

// UpsertSKUs creates or updates SKU catalog rows keyed on (shop, sku).
func (r *OrderRepository) UpsertSKUs(ctx context.Context, skus []domain.SKU, chunkSize int) error {
	if len(skus) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop"}, {Name: "sku"}},
		UpdateAll: true,
	}).CreateInBatches(skus, chunkSize).Error
}

// UpsertRefunds creates or updates refund rows keyed on (shop, external_id).
func (r *OrderRepository) UpsertRefunds(ctx context.Context, refunds []domain.Refund, chunkSize int) error {
	if len(refunds) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop"}, {Name: "external_id"}},
		UpdateAll: true,
	}).CreateInBatches(refunds, chunkSize).Error
}

// UpdateOrderShipping overwrites the shipping and discount figures of one
// order, bumping its remote mutation timestamp so the aggregation staleness
// scan picks the change up.
func (r *OrderRepository) UpdateOrderShipping(ctx context.Context, shop, externalID string, shippingGross, shippingNet, discount decimal.Decimal, updatedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("shop = ? AND external_id = ?", shop, externalID).
		Updates(map[string]interface{}{
			"shipping_gross":    shippingGross,
			"shipping_net":      shippingNet,
			"discount_amount":   discount,
			"remote_updated_at": updatedAt,
		}).Error
}

// OrdersByBusinessDate pages through orders whose business date falls in
// [from, to), ordered by external id for stable pagination.
func (r *OrderRepository) OrdersByBusinessDate(ctx context.Context, shop string, from, to time.Time, limit, offset int) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.db.WithContext(ctx).
		Where("shop = ? AND created_at_original >= ? AND created_at_original < ?", shop, from, to).
		Order("external_id ASC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// LinesByBusinessDate pages through order lines whose business date falls in
// [from, to).
func (r *OrderRepository) LinesByBusinessDate(ctx context.Context, shop string, from, to time.Time, limit, offset int) ([]domain.OrderLine, error) {
	var lines []domain.OrderLine
	err := r.db.WithContext(ctx).
		Where("shop = ? AND created_at_original >= ? AND created_at_original < ?", shop, from, to).
		Order("external_id ASC").
		Limit(limit).
		Offset(offset).
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// RefundsByEventDate returns refunds whose refund event date falls in
// [from, to), regardless of when the refunded order was placed.
func (r *OrderRepository) RefundsByEventDate(ctx context.Context, shop string, from, to time.Time) ([]domain.Refund, error) {
	var refunds []domain.Refund
	err := r.db.WithContext(ctx).
		Where("shop = ? AND refund_date >= ? AND refund_date < ?", shop, from, to).
		Find(&refunds).Error
	if err != nil {
		return nil, err
	}
	return refunds, nil
}

// RefundsByOrderDate returns refunds whose parent order's business date
// falls in [from, to), regardless of when the refund happened.
func (r *OrderRepository) RefundsByOrderDate(ctx context.Context, shop string, from, to time.Time) ([]domain.Refund, error) {
	var refunds []domain.Refund
	err := r.db.WithContext(ctx).
		Where("shop = ? AND order_created_at >= ? AND order_created_at < ?", shop, from, to).
		Find(&refunds).Error
	if err != nil {
		return nil, err
	}
	return refunds, nil
}

// SKUsByShop returns the SKU catalog for a shop as a map keyed by SKU code.
func (r *OrderRepository) SKUsByShop(ctx context.Context, shop string) (map[string]domain.SKU, error) {
	var skus []domain.SKU
	if err := r.db.WithContext(ctx).Where("shop = ?", shop).Find(&skus).Error; err != nil {
		return nil, err
	}
	out := make(map[string]domain.SKU, len(skus))
	for _, s := range skus {
		out[s.SKU] = s
	}
	return out, nil
}

// OrderKeysAfter returns up to limit orders for the shop and date range with
// external_id greater than the cursor, in key order. An empty cursor starts
// from the beginning of the key space. Used by resumable workers.
func (r *OrderRepository) OrderKeysAfter(ctx context.Context, shop string, from, to time.Time, afterExternalID string, limit int) ([]domain.Order, error) {
	query := r.db.WithContext(ctx).
		Where("shop = ? AND created_at_original >= ? AND created_at_original < ?", shop, from, to)
	if afterExternalID != "" {
		query = query.Where("external_id > ?", afterExternalID)
	}
	var orders []domain.Order
	if err := query.
		Order("external_id ASC").
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// MutatedBusinessDates returns the distinct business timestamps of rows
// whose remote mutation timestamp falls in [from, to) but whose business
// date does not. These are the historical days whose aggregates went stale.
func (r *OrderRepository) MutatedBusinessDates(ctx context.Context, shop string, from, to time.Time) ([]time.Time, error) {
	var orderDates []time.Time
	err := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("shop = ? AND remote_updated_at >= ? AND remote_updated_at < ?", shop, from, to).
		Where("created_at_original < ? OR created_at_original >= ?", from, to).
		Distinct("created_at_original").
		Pluck("created_at_original", &orderDates).Error
	if err != nil {
		return nil, err
	}

	var refundDates []time.Time
	err = r.db.WithContext(ctx).Model(&domain.Refund{}).
		Where("shop = ? AND remote_updated_at >= ? AND remote_updated_at < ?", shop, from, to).
		Where("order_created_at < ? OR order_created_at >= ?", from, to).
		Distinct("order_created_at").
		Pluck("order_created_at", &refundDates).Error
	if err != nil {
		return nil, err
	}

	return append(orderDates, refundDates...), nil
}

// DistinctShops returns every shop present in the orders table.
func (r *OrderRepository) DistinctShops(ctx context.Context) ([]string, error) {
	var shops []string
	err := r.db.WithContext(ctx).Model(&domain.Order{}).
		Distinct("shop").
		Order("shop ASC").
		Pluck("shop", &shops).Error
	if err != nil {
		return nil, err
	}
	return shops, nil
}

// CountOrders counts orders for a shop, used by ingestion idempotence checks.
func (r *OrderRepository) CountOrders(ctx context.Context, shop string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("shop = ?", shop).
		Count(&count).Error
	return count, err
}
