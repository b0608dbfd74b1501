package platform

import (
	"time"

	"github.com/shopspring/decimal"
)

// Operation statuses reported by the upstream bulk export API.
const (
	StatusCreated   = "CREATED"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Operation is one platform-side bulk export operation. Submit returns it
// with an opaque ID; polling by ID refreshes status and object count, and a
// completed operation carries the result file URL.
type Operation struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ObjectCount int64  `json:"object_count"`
	URL         string `json:"url,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
}

// Active reports whether the operation still occupies the per-shop export
// slot on the platform.
func (o *Operation) Active() bool {
	return o.Status == StatusCreated || o.Status == StatusRunning
}

// Terminal reports whether the operation reached a final state.
func (o *Operation) Terminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusFailed || o.Status == StatusCancelled
}

// OrderRecord is one order header line in an export result file.
type OrderRecord struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Currency       string          `json:"currency"`
	GrossAmount    decimal.Decimal `json:"grossAmount"`
	NetAmount      decimal.Decimal `json:"netAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	ShippingGross  decimal.Decimal `json:"shippingGross"`
	ShippingNet    decimal.Decimal `json:"shippingNet"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	CancelledAt    *time.Time      `json:"cancelledAt,omitempty"`
}

// LineRecord is one order line in an export result file. Lines never nest
// inside their order; they only carry a back-reference in __parentId.
type LineRecord struct {
	ID             string          `json:"id"`
	ParentID       string          `json:"__parentId"`
	SKU            string          `json:"sku"`
	Quantity       int             `json:"quantity"`
	GrossAmount    decimal.Decimal `json:"grossAmount"`
	NetAmount      decimal.Decimal `json:"netAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// OrderNode is an order header with its reconstructed line items.
type OrderNode struct {
	OrderRecord
	Lines []LineRecord
}

// SKURecord is one catalog row in a SKU export result file.
type SKURecord struct {
	SKU           string    `json:"sku"`
	Color         string    `json:"color"`
	ArticleNumber string    `json:"articleNumber"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ShippingRecord is one order-level shipping/discount correction in a
// shipping export result file.
type ShippingRecord struct {
	OrderID        string          `json:"orderId"`
	ShippingGross  decimal.Decimal `json:"shippingGross"`
	ShippingNet    decimal.Decimal `json:"shippingNet"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// RefundRecord is one refund returned by the per-order refund endpoint,
// used by the resumable enrichment worker.
type RefundRecord struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	LineSKU    string          `json:"line_sku"`
	Quantity   int             `json:"quantity"`
	Amount     decimal.Decimal `json:"amount"`
	RefundDate time.Time       `json:"refund_date"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
