package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is one externally sourced order header. The natural key is
// (shop, external_id); re-ingesting the same export must upsert, never
// duplicate. CreatedAtOriginal is the business date (when the order was
// placed), RemoteUpdatedAt the last upstream mutation, CancelledAt the
// cancellation event date when set. The three are distinct on purpose: a
// cancellation or refund mutates an order long after its business date, and
// the aggregation engine uses RemoteUpdatedAt to find historical days whose
// numbers changed.
type Order struct {
	Shop              string          `gorm:"type:text;not null;uniqueIndex:uq_orders_shop_ext,priority:1" json:"shop"`
	ExternalID        string          `gorm:"type:text;not null;uniqueIndex:uq_orders_shop_ext,priority:2" json:"external_id"`
	OrderNumber       string          `gorm:"type:text" json:"order_number"`
	Currency          string          `gorm:"type:text" json:"currency"`
	GrossAmount       decimal.Decimal `gorm:"type:decimal(20,4)" json:"gross_amount"`
	NetAmount         decimal.Decimal `gorm:"type:decimal(20,4)" json:"net_amount"`
	DiscountAmount    decimal.Decimal `gorm:"type:decimal(20,4)" json:"discount_amount"`
	ShippingGross     decimal.Decimal `gorm:"type:decimal(20,4)" json:"shipping_gross"`
	ShippingNet       decimal.Decimal `gorm:"type:decimal(20,4)" json:"shipping_net"`
	CreatedAtOriginal time.Time       `gorm:"not null;index" json:"created_at_original"`
	RemoteUpdatedAt   time.Time       `gorm:"index" json:"remote_updated_at"`
	CancelledAt       *time.Time      `gorm:"index" json:"cancelled_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Order.
func (Order) TableName() string {
	return "orders"
}

// OrderLine is one line item belonging to an order. Export results carry
// lines as flat records with a parent back-reference, so OrderExternalID is
// the only link to the order header.
type OrderLine struct {
	Shop              string          `gorm:"type:text;not null;uniqueIndex:uq_order_lines_shop_ext,priority:1" json:"shop"`
	ExternalID        string          `gorm:"type:text;not null;uniqueIndex:uq_order_lines_shop_ext,priority:2" json:"external_id"`
	OrderExternalID   string          `gorm:"type:text;not null;index" json:"order_external_id"`
	SKU               string          `gorm:"type:text;index" json:"sku"`
	Quantity          int             `json:"quantity"`
	GrossAmount       decimal.Decimal `gorm:"type:decimal(20,4)" json:"gross_amount"`
	NetAmount         decimal.Decimal `gorm:"type:decimal(20,4)" json:"net_amount"`
	DiscountAmount    decimal.Decimal `gorm:"type:decimal(20,4)" json:"discount_amount"`
	CreatedAtOriginal time.Time       `gorm:"not null;index" json:"created_at_original"`
	RemoteUpdatedAt   time.Time       `gorm:"index" json:"remote_updated_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName returns the database table name for OrderLine.
func (OrderLine) TableName() string {
	return "order_lines"
}

// SKU is catalog metadata for one stock keeping unit, synced by the skus
// object type and joined onto order lines for dimensional aggregates.
type SKU struct {
	Shop            string    `gorm:"type:text;not null;uniqueIndex:uq_skus_shop_sku,priority:1" json:"shop"`
	SKU             string    `gorm:"type:text;not null;uniqueIndex:uq_skus_shop_sku,priority:2;column:sku" json:"sku"`
	Color           string    `gorm:"type:text" json:"color"`
	ArticleNumber   string    `gorm:"type:text" json:"article_number"`
	RemoteUpdatedAt time.Time `json:"remote_updated_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for SKU.
func (SKU) TableName() string {
	return "skus"
}

// Refund is one refund event against an order. RefundDate is the event date
// and usually differs from the parent order's business date; the business
// date is denormalized onto the row so both attributions can be computed
// without a join.
type Refund struct {
	Shop            string          `gorm:"type:text;not null;uniqueIndex:uq_refunds_shop_ext,priority:1" json:"shop"`
	ExternalID      string          `gorm:"type:text;not null;uniqueIndex:uq_refunds_shop_ext,priority:2" json:"external_id"`
	OrderExternalID string          `gorm:"type:text;not null;index" json:"order_external_id"`
	LineSKU         string          `gorm:"type:text" json:"line_sku"`
	Quantity        int             `json:"quantity"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount"`
	RefundDate      time.Time       `gorm:"not null;index" json:"refund_date"`
	OrderCreatedAt  time.Time       `gorm:"not null;index" json:"order_created_at"`
	RemoteUpdatedAt time.Time       `gorm:"index" json:"remote_updated_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Refund.
func (Refund) TableName() string {
	return "refunds"
}
