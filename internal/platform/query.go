package platform

import (
	"fmt"
	"time"
)

// Export queries submitted to the platform. The exact schema belongs to the
// upstream API; only the date-range clauses matter here, everything else is
// opaque text echoed back by the result parser.

// OrderExportQuery builds the bulk query for order headers and line items
// created in [start, end).
func OrderExportQuery(start, end time.Time) string {
	return fmt.Sprintf(`{
  orders(query: "created_at:>='%s' AND created_at:<'%s'") {
    edges { node {
      id name currency grossAmount netAmount discountAmount
      shippingGross shippingNet createdAt updatedAt cancelledAt
      lineItems { edges { node { id sku quantity grossAmount netAmount discountAmount } } }
    } }
  }
}`, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
}

// SKUExportQuery builds the bulk query for the SKU catalog. The catalog is
// small and not date-scoped; every sync refreshes it wholesale.
func SKUExportQuery() string {
	return `{
  productVariants {
    edges { node { sku color articleNumber updatedAt } }
  }
}`
}

// ShippingExportQuery builds the bulk query for shipping and discount
// corrections on orders updated in [start, end).
func ShippingExportQuery(start, end time.Time) string {
	return fmt.Sprintf(`{
  orders(query: "updated_at:>='%s' AND updated_at:<'%s'") {
    edges { node { orderId shippingGross shippingNet discountAmount updatedAt } }
  }
}`, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
}
