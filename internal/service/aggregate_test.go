package service

import (
	"context"
	"testing"
	"time"

	"github.com/froberg/shopsync/internal/config"
	"github.com/froberg/shopsync/internal/domain"
	"github.com/froberg/shopsync/internal/repository"
	"gorm.io/gorm"
)

func newAggregationFixture(t *testing.T) (*AggregationService, *repository.OrderRepository, *repository.AggregateRepository, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	orders := repository.NewOrderRepository(db)
	aggregates := repository.NewAggregateRepository(db)
	svc := NewAggregationService(orders, aggregates, &config.AggregationConfig{
		PageSize:              2, // force pagination in tests
		MaxReaggregationDepth: 3,
	})
	return svc, orders, aggregates, db
}

// seedDay inserts two orders for 2024-05-01 (one cancelled), three lines and
// the SKU catalog. The day is in the summer-offset period, so its window is
// [2024-04-30 22:00, 2024-05-01 22:00) UTC.
func seedDay(t *testing.T, orders *repository.OrderRepository) {
	t.Helper()
	ctx := context.Background()
	placedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cancelledAt := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)

	if err := orders.UpsertOrders(ctx, []domain.Order{
		{
			Shop: "shop-a", ExternalID: "order-1", OrderNumber: "#1001", Currency: "EUR",
			GrossAmount: dec("25.00"), NetAmount: dec("20.00"),
			ShippingGross: dec("5.00"), ShippingNet: dec("4.00"),
			CreatedAtOriginal: placedAt, RemoteUpdatedAt: placedAt,
		},
		{
			Shop: "shop-a", ExternalID: "order-2", OrderNumber: "#1002", Currency: "EUR",
			GrossAmount: dec("10.00"), NetAmount: dec("8.00"),
			CreatedAtOriginal: placedAt, RemoteUpdatedAt: cancelledAt,
			CancelledAt: &cancelledAt,
		},
	}, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := orders.UpsertLines(ctx, []domain.OrderLine{
		{
			Shop: "shop-a", ExternalID: "line-1", OrderExternalID: "order-1",
			SKU: "SKU-A", Quantity: 2, GrossAmount: dec("20.00"), NetAmount: dec("16.00"),
			CreatedAtOriginal: placedAt, RemoteUpdatedAt: placedAt,
		},
		{
			Shop: "shop-a", ExternalID: "line-2", OrderExternalID: "order-1",
			SKU: "SKU-B", Quantity: 1, GrossAmount: dec("5.00"), NetAmount: dec("4.00"),
			CreatedAtOriginal: placedAt, RemoteUpdatedAt: placedAt,
		},
		{
			Shop: "shop-a", ExternalID: "line-3", OrderExternalID: "order-2",
			SKU: "SKU-A", Quantity: 1, GrossAmount: dec("10.00"), NetAmount: dec("8.00"),
			CreatedAtOriginal: placedAt, RemoteUpdatedAt: cancelledAt,
		},
	}, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := orders.UpsertSKUs(ctx, []domain.SKU{
		{Shop: "shop-a", SKU: "SKU-A", Color: "red", ArticleNumber: "ART-1"},
		{Shop: "shop-a", SKU: "SKU-B", Color: "blue", ArticleNumber: "ART-2"},
	}, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func findRow(rows []domain.DailyAggregate, dimType domain.DimensionType, dimValue string) *domain.DailyAggregate {
	for i := range rows {
		if rows[i].DimensionType == dimType && rows[i].DimensionValue == dimValue {
			return &rows[i]
		}
	}
	return nil
}

func TestAggregateShopLevel(t *testing.T) {
	svc, orders, aggregates, _ := newAggregationFixture(t)
	seedDay(t, orders)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	shopRow, err := svc.Aggregate(ctx, "shop-a", day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if shopRow.GrossQuantity != 4 {
		t.Errorf("expected gross quantity 4, got %d", shopRow.GrossQuantity)
	}
	if shopRow.CancelledQuantity != 1 {
		t.Errorf("expected cancelled quantity 1, got %d", shopRow.CancelledQuantity)
	}
	if shopRow.NetQuantity != 3 {
		t.Errorf("expected net quantity 3, got %d", shopRow.NetQuantity)
	}
	if !shopRow.GrossRevenue.Equal(dec("35.00")) {
		t.Errorf("expected gross revenue 35.00, got %s", shopRow.GrossRevenue)
	}
	if !shopRow.NetRevenue.Equal(dec("20.00")) {
		t.Errorf("expected net revenue 20.00, got %s", shopRow.NetRevenue)
	}
	if !shopRow.CancelledAmount.Equal(dec("10.00")) {
		t.Errorf("expected cancelled amount 10.00, got %s", shopRow.CancelledAmount)
	}
	if !shopRow.ShippingGross.Equal(dec("5.00")) || !shopRow.ShippingNet.Equal(dec("4.00")) {
		t.Errorf("unexpected shipping figures: %s / %s", shopRow.ShippingGross, shopRow.ShippingNet)
	}

	// Dimension rows exist alongside.
	rows, err := aggregates.GetForDay(ctx, "shop-a", day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	red := findRow(rows, domain.DimensionColor, "red")
	if red == nil {
		t.Fatal("expected a color=red row")
	}
	if red.GrossQuantity != 3 || red.CancelledQuantity != 1 || red.NetQuantity != 2 {
		t.Errorf("unexpected red quantities: %+v", red)
	}
	if !red.GrossRevenue.Equal(dec("30.00")) || !red.NetRevenue.Equal(dec("16.00")) {
		t.Errorf("unexpected red revenue: %s / %s", red.GrossRevenue, red.NetRevenue)
	}

	blue := findRow(rows, domain.DimensionColor, "blue")
	if blue == nil || blue.GrossQuantity != 1 {
		t.Errorf("unexpected blue row: %+v", blue)
	}

	art1 := findRow(rows, domain.DimensionArticle, "ART-1")
	if art1 == nil || art1.GrossQuantity != 3 {
		t.Errorf("unexpected ART-1 row: %+v", art1)
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	svc, orders, aggregates, _ := newAggregationFixture(t)
	seedDay(t, orders)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	first, err := svc.Aggregate(ctx, "shop-a", day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Aggregate(ctx, "shop-a", day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.GrossQuantity != second.GrossQuantity || !first.NetRevenue.Equal(second.NetRevenue) {
		t.Errorf("re-aggregation changed figures: %+v vs %+v", first, second)
	}

	rows, err := aggregates.GetForDay(ctx, "shop-a", day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// shop + red + blue + ART-1 + ART-2, never duplicated.
	if len(rows) != 5 {
		t.Errorf("expected 5 rows after double aggregation, got %d", len(rows))
	}
}

func TestAggregateEmptyDayEmitsShopRow(t *testing.T) {
	svc, _, aggregates, _ := newAggregationFixture(t)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	shopRow, err := svc.Aggregate(ctx, "shop-a", day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shopRow.GrossQuantity != 0 || !shopRow.GrossRevenue.IsZero() {
		t.Errorf("expected all-zero shop row, got %+v", shopRow)
	}

	rows, err := aggregates.GetForDay(ctx, "shop-a", day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected exactly the shop row, got %d rows", len(rows))
	}
}

func TestAggregateOverwritesStaleRows(t *testing.T) {
	svc, orders, aggregates, db := newAggregationFixture(t)
	seedDay(t, orders)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	if _, err := svc.Aggregate(ctx, "shop-a", day); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The raw data disappears (say, a corrective re-import).
	for _, model := range []interface{}{&domain.Order{}, &domain.OrderLine{}} {
		if err := db.Where("shop = ?", "shop-a").Delete(model).Error; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	shopRow, err := svc.Aggregate(ctx, "shop-a", day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shopRow.GrossQuantity != 0 {
		t.Errorf("expected zeroed shop row, got %+v", shopRow)
	}

	rows, err := aggregates.GetForDay(ctx, "shop-a", day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected stale dimension rows removed, got %d rows", len(rows))
	}
}

func TestRetroactiveRefundReaggregatesOrderDay(t *testing.T) {
	svc, orders, aggregates, _ := newAggregationFixture(t)
	seedDay(t, orders)
	ctx := context.Background()

	orderDay := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	refundDay := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	refundAt := time.Date(2024, 5, 20, 14, 0, 0, 0, time.UTC)

	if _, err := svc.Aggregate(ctx, "shop-a", orderDay); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Weeks later a refund lands against order-1.
	if err := orders.UpsertRefunds(ctx, []domain.Refund{{
		Shop: "shop-a", ExternalID: "ref-1", OrderExternalID: "order-1",
		LineSKU: "SKU-A", Quantity: 1, Amount: dec("9.95"),
		RefundDate:     refundAt,
		OrderCreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		RemoteUpdatedAt: refundAt,
	}}, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	refundDayRow, reaggregated, err := svc.AggregateWithRefresh(ctx, "shop-a", refundDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The refund day books the return but carries no business-date figures.
	if refundDayRow.ReturnsBookedQuantity != 1 || !refundDayRow.ReturnsBookedAmount.Equal(dec("9.95")) {
		t.Errorf("unexpected booked returns: %+v", refundDayRow)
	}
	if refundDayRow.ReturnQuantity != 0 {
		t.Errorf("expected no business-date returns on refund day, got %d", refundDayRow.ReturnQuantity)
	}
	if refundDayRow.GrossQuantity != 0 {
		t.Errorf("expected no sales on refund day, got %d", refundDayRow.GrossQuantity)
	}

	// The order's day was detected as stale and recomputed.
	if len(reaggregated) != 1 || !reaggregated[0].Equal(orderDay) {
		t.Fatalf("expected re-aggregation of %s, got %v", orderDay.Format("2006-01-02"), reaggregated)
	}

	orderDayRow, err := aggregates.GetShopRow(ctx, "shop-a", orderDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orderDayRow == nil {
		t.Fatal("expected order day shop row")
	}
	if orderDayRow.ReturnQuantity != 1 || !orderDayRow.ReturnAmount.Equal(dec("9.95")) {
		t.Errorf("expected return attributed to order day, got %+v", orderDayRow)
	}
	// Net revenue now excludes the returned amount: 20.00 - 9.95.
	if !orderDayRow.NetRevenue.Equal(dec("10.05")) {
		t.Errorf("expected net revenue 10.05, got %s", orderDayRow.NetRevenue)
	}
	if orderDayRow.NetQuantity != 2 {
		t.Errorf("expected net quantity 2, got %d", orderDayRow.NetQuantity)
	}
	// Booked figures stay on the refund day.
	if orderDayRow.ReturnsBookedQuantity != 0 {
		t.Errorf("expected no booked returns on order day, got %d", orderDayRow.ReturnsBookedQuantity)
	}

	// Re-running the refresh is stable: the order day is recomputed again to
	// the same figures.
	_, _, err = svc.AggregateWithRefresh(ctx, "shop-a", refundDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, err := aggregates.GetShopRow(ctx, "shop-a", orderDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ReturnQuantity != 1 || !again.NetRevenue.Equal(dec("10.05")) {
		t.Errorf("refresh is not stable: %+v", again)
	}
}

func TestAggregateAll(t *testing.T) {
	svc, orders, _, _ := newAggregationFixture(t)
	seedDay(t, orders)
	ctx := context.Background()

	// A second shop with one order on the same day.
	placedAt := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := orders.UpsertOrders(ctx, []domain.Order{{
		Shop: "shop-b", ExternalID: "order-1", GrossAmount: dec("7.00"), NetAmount: dec("6.00"),
		CreatedAtOriginal: placedAt, RemoteUpdatedAt: placedAt,
	}}, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summary, err := svc.AggregateAll(ctx, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.ShopsProcessed != 2 {
		t.Fatalf("expected 2 shops, got %d", summary.ShopsProcessed)
	}
	if summary.Date != "2024-05-01" {
		t.Errorf("unexpected date %q", summary.Date)
	}
	for _, m := range summary.Metrics {
		if m.Aggregate == nil {
			t.Errorf("missing aggregate for shop %s", m.Shop)
		}
	}
}
