package platform

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestParseOrderExport(t *testing.T) {
	// Children may precede their parent in the stream.
	input := strings.Join([]string{
		`{"id":"line-1","__parentId":"order-1","sku":"SKU-A","quantity":2,"grossAmount":"20.00","netAmount":"16.00","discountAmount":"0"}`,
		`{"id":"order-1","name":"#1001","currency":"EUR","grossAmount":"25.00","netAmount":"20.00","discountAmount":"0","shippingGross":"5.00","shippingNet":"4.00","createdAt":"2024-05-01T10:00:00Z","updatedAt":"2024-05-01T10:00:00Z"}`,
		`{"id":"order-2","name":"#1002","currency":"EUR","grossAmount":"10.00","netAmount":"8.00","discountAmount":"1.00","shippingGross":"0","shippingNet":"0","createdAt":"2024-05-01T12:00:00Z","updatedAt":"2024-05-01T12:00:00Z"}`,
		`{"id":"line-2","__parentId":"order-1","sku":"SKU-B","quantity":1,"grossAmount":"5.00","netAmount":"4.00","discountAmount":"0"}`,
		`{"id":"line-3","__parentId":"order-2","sku":"SKU-A","quantity":1,"grossAmount":"10.00","netAmount":"8.00","discountAmount":"1.00"}`,
	}, "\n")

	nodes, err := ParseOrderExport(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(nodes) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(nodes))
	}
	if nodes[0].ID != "order-1" || nodes[1].ID != "order-2" {
		t.Errorf("expected stream order preserved, got %s, %s", nodes[0].ID, nodes[1].ID)
	}
	if len(nodes[0].Lines) != 2 {
		t.Errorf("expected 2 lines on order-1, got %d", len(nodes[0].Lines))
	}
	if len(nodes[1].Lines) != 1 {
		t.Errorf("expected 1 line on order-2, got %d", len(nodes[1].Lines))
	}
	if nodes[0].Lines[0].SKU != "SKU-A" || nodes[0].Lines[0].Quantity != 2 {
		t.Errorf("unexpected first line: %+v", nodes[0].Lines[0])
	}
	if !nodes[0].GrossAmount.Equal(mustDecimal(t, "25.00")) {
		t.Errorf("expected gross 25.00, got %s", nodes[0].GrossAmount)
	}
}

func TestParseOrderExportEmptyStream(t *testing.T) {
	nodes, err := ParseOrderExport(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 0 {
		t.Errorf("expected no orders, got %d", len(nodes))
	}
}

func TestParseOrderExportSkipsBlankLines(t *testing.T) {
	input := "\n" +
		`{"id":"order-1","name":"#1001","currency":"EUR","createdAt":"2024-05-01T10:00:00Z","updatedAt":"2024-05-01T10:00:00Z"}` +
		"\n\n"
	nodes, err := ParseOrderExport(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 order, got %d", len(nodes))
	}
}

func TestParseOrderExportUnknownParent(t *testing.T) {
	input := `{"id":"line-1","__parentId":"order-missing","sku":"SKU-A","quantity":1}`
	_, err := ParseOrderExport(strings.NewReader(input))
	if err == nil {
		t.Fatal("expected error for orphaned line item")
	}
	if !strings.Contains(err.Error(), "unknown parent") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseOrderExportMalformedLine(t *testing.T) {
	input := `{"id":"order-1"` + "\n"
	_, err := ParseOrderExport(strings.NewReader(input))
	if err == nil {
		t.Fatal("expected error for malformed record")
	}
	if !strings.Contains(err.Error(), "line 1") {
		t.Errorf("expected line number in error, got: %v", err)
	}
}

func TestParseSKUExport(t *testing.T) {
	input := strings.Join([]string{
		`{"sku":"SKU-A","color":"red","articleNumber":"ART-1","updatedAt":"2024-05-01T10:00:00Z"}`,
		`{"sku":"SKU-B","color":"blue","articleNumber":"ART-2","updatedAt":"2024-05-01T10:00:00Z"}`,
	}, "\n")

	records, err := ParseSKUExport(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].SKU != "SKU-A" || records[0].Color != "red" || records[0].ArticleNumber != "ART-1" {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestParseSKUExportMissingSKU(t *testing.T) {
	input := `{"color":"red","articleNumber":"ART-1"}`
	_, err := ParseSKUExport(strings.NewReader(input))
	if err == nil {
		t.Fatal("expected error for record without sku")
	}
}

func TestParseShippingExport(t *testing.T) {
	input := `{"orderId":"order-1","shippingGross":"4.95","shippingNet":"4.16","discountAmount":"0","updatedAt":"2024-05-02T08:00:00Z"}`

	records, err := ParseShippingExport(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].OrderID != "order-1" {
		t.Errorf("unexpected order id %q", records[0].OrderID)
	}
	if !records[0].ShippingGross.Equal(mustDecimal(t, "4.95")) {
		t.Errorf("expected shipping gross 4.95, got %s", records[0].ShippingGross)
	}
}

func TestParseShippingExportMissingOrderID(t *testing.T) {
	input := `{"shippingGross":"4.95"}`
	_, err := ParseShippingExport(strings.NewReader(input))
	if err == nil {
		t.Fatal("expected error for record without order id")
	}
}
