package repository

import (
	"context"
	"testing"
	"time"

	"github.com/froberg/shopsync/internal/domain"
	"github.com/shopspring/decimal"
)

func TestGetShopRowMissingDayReturnsNil(t *testing.T) {
	db := newTestDB(t)
	repo := NewAggregateRepository(db)

	row, err := repo.GetShopRow(context.Background(), "shop-a",
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row != nil {
		t.Errorf("expected nil for never-aggregated day, got %+v", row)
	}
}

func TestReplaceForDayDropsVanishedDimensions(t *testing.T) {
	db := newTestDB(t)
	repo := NewAggregateRepository(db)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	first := []domain.DailyAggregate{
		{Shop: "shop-a", MetricDate: day, DimensionType: domain.DimensionShop,
			GrossQuantity: 4, GrossRevenue: decimal.RequireFromString("35.00")},
		{Shop: "shop-a", MetricDate: day, DimensionType: domain.DimensionColor,
			DimensionValue: "red", GrossQuantity: 4},
	}
	if err := repo.ReplaceForDay(ctx, "shop-a", day, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Recomputation without the color row must remove it.
	second := []domain.DailyAggregate{
		{Shop: "shop-a", MetricDate: day, DimensionType: domain.DimensionShop,
			GrossQuantity: 2, GrossRevenue: decimal.RequireFromString("20.00")},
	}
	if err := repo.ReplaceForDay(ctx, "shop-a", day, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := repo.GetForDay(ctx, "shop-a", day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after replacement, got %d", len(rows))
	}

	shop, err := repo.GetShopRow(ctx, "shop-a", day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shop == nil || shop.GrossQuantity != 2 {
		t.Errorf("unexpected shop row: %+v", shop)
	}
}
