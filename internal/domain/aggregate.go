package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DimensionType classifies one slice of a daily aggregate. The shop-level
// row covers the whole shop; color and article rows break the same day down
// by product attribute.
type DimensionType string

const (
	DimensionShop    DimensionType = "shop"
	DimensionColor   DimensionType = "color"
	DimensionArticle DimensionType = "article"
)

// DailyAggregate is one derived reporting row per (shop, metric date,
// dimension). It is always recomputed wholesale from the raw tables and
// overwritten, never patched in place, which makes aggregation idempotent
// and safe to re-run for any historical date.
//
// Two refund attributions coexist: ReturnQuantity/ReturnAmount
// count refunds against the business date of the refunded order (a late
// refund changes the numbers of the day the order was placed), while
// ReturnsBookedQuantity/ReturnsBookedAmount count refunds against the day
// the refund itself happened.
type DailyAggregate struct {
	Shop           string        `gorm:"type:text;not null;uniqueIndex:uq_daily_aggregates_key,priority:1" json:"shop"`
	MetricDate     time.Time     `gorm:"not null;uniqueIndex:uq_daily_aggregates_key,priority:2" json:"metric_date"`
	DimensionType  DimensionType `gorm:"type:text;not null;uniqueIndex:uq_daily_aggregates_key,priority:3" json:"dimension_type"`
	DimensionValue string        `gorm:"type:text;not null;default:'';uniqueIndex:uq_daily_aggregates_key,priority:4" json:"dimension_value"`

	GrossQuantity         int             `json:"gross_quantity"`
	NetQuantity           int             `json:"net_quantity"`
	GrossRevenue          decimal.Decimal `gorm:"type:decimal(20,2)" json:"gross_revenue"`
	NetRevenue            decimal.Decimal `gorm:"type:decimal(20,2)" json:"net_revenue"`
	ReturnQuantity        int             `json:"return_quantity"`
	ReturnAmount          decimal.Decimal `gorm:"type:decimal(20,2)" json:"return_amount"`
	ReturnsBookedQuantity int             `json:"returns_booked_quantity"`
	ReturnsBookedAmount   decimal.Decimal `gorm:"type:decimal(20,2)" json:"returns_booked_amount"`
	CancelledQuantity     int             `json:"cancelled_quantity"`
	CancelledAmount       decimal.Decimal `gorm:"type:decimal(20,2)" json:"cancelled_amount"`
	DiscountAmount        decimal.Decimal `gorm:"type:decimal(20,2)" json:"discount_amount"`
	ShippingGross         decimal.Decimal `gorm:"type:decimal(20,2)" json:"shipping_gross"`
	ShippingNet           decimal.Decimal `gorm:"type:decimal(20,2)" json:"shipping_net"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for DailyAggregate.
func (DailyAggregate) TableName() string {
	return "daily_aggregates"
}
