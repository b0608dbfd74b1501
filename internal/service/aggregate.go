package service

import (
	"context"
	"fmt"
	"time"

	"github.com/froberg/shopsync/internal/config"
	"github.com/froberg/shopsync/internal/domain"
	"github.com/froberg/shopsync/internal/logger"
	"github.com/froberg/shopsync/internal/repository"
	"github.com/shopspring/decimal"
)

// AggregationService recomputes the derived daily metrics. Aggregate is a
// pure function of the raw tables at call time and always overwrites the
// whole (shop, date) slice, which is what makes re-running it for any
// historical date safe.
type AggregationService struct {
	orders     *repository.OrderRepository
	aggregates *repository.AggregateRepository
	pageSize   int
	maxDepth   int
}

// NewAggregationService creates a new AggregationService.
func NewAggregationService(
	orders *repository.OrderRepository,
	aggregates *repository.AggregateRepository,
	cfg *config.AggregationConfig,
) *AggregationService {
	return &AggregationService{
		orders:     orders,
		aggregates: aggregates,
		pageSize:   cfg.PageSize,
		maxDepth:   cfg.MaxReaggregationDepth,
	}
}

// ShopDayResult reports one shop's aggregation outcome, including any
// historical dates that were re-aggregated because their raw rows mutated.
type ShopDayResult struct {
	Shop         string                 `json:"shop"`
	Aggregate    *domain.DailyAggregate `json:"aggregate"`
	Reaggregated []string               `json:"reaggregated,omitempty"`
}

// RunSummary is the response of one aggregation run across all shops.
type RunSummary struct {
	Date           string          `json:"date"`
	ShopsProcessed int             `json:"shops_processed"`
	Metrics        []ShopDayResult `json:"metrics"`
}

// Aggregate recomputes every aggregate row for (shop, date) from the raw
// tables and overwrites the stored slice. A day with no raw rows yields an
// all-zero shop row, replacing whatever was stored before.
func (s *AggregationService) Aggregate(ctx context.Context, shop string, date time.Time) (*domain.DailyAggregate, error) {
	date = metricDateKey(date)
	rows, err := s.computeDay(ctx, shop, date)
	if err != nil {
		return nil, err
	}
	if err := s.aggregates.ReplaceForDay(ctx, shop, date, rows); err != nil {
		return nil, fmt.Errorf("store aggregates for %s: %w", date.Format("2006-01-02"), err)
	}

	for i := range rows {
		if rows[i].DimensionType == domain.DimensionShop {
			return &rows[i], nil
		}
	}
	return nil, fmt.Errorf("aggregation produced no shop row for %s", date.Format("2006-01-02"))
}

// AggregateWithRefresh aggregates the target date, then finds raw rows that
// were mutated inside the target window but belong to other business dates
// and re-aggregates those days too. The chain is walked breadth-first with
// a bounded generation count so cascades terminate deterministically; in
// practice it ends after one hop because re-aggregation itself never
// touches the remote mutation timestamps.
func (s *AggregationService) AggregateWithRefresh(ctx context.Context, shop string, date time.Time) (*domain.DailyAggregate, []time.Time, error) {
	date = metricDateKey(date)
	agg, err := s.Aggregate(ctx, shop, date)
	if err != nil {
		return nil, nil, err
	}

	visited := map[time.Time]bool{date: true}
	var reaggregated []time.Time

	frontier, err := s.detectStaleDates(ctx, shop, date, visited)
	if err != nil {
		return nil, nil, err
	}

	for generation := 1; generation <= s.maxDepth && len(frontier) > 0; generation++ {
		var next []time.Time
		for _, day := range frontier {
			logger.CtxInfo(ctx, "Re-aggregating %s (generation %d) after retroactive update",
				day.Format("2006-01-02"), generation)
			if _, err := s.Aggregate(ctx, shop, day); err != nil {
				return nil, nil, err
			}
			reaggregated = append(reaggregated, day)

			more, err := s.detectStaleDates(ctx, shop, day, visited)
			if err != nil {
				return nil, nil, err
			}
			next = append(next, more...)
		}
		frontier = next
	}

	return agg, reaggregated, nil
}

// AggregateAll runs AggregateWithRefresh for every shop present in the raw
// tables.
func (s *AggregationService) AggregateAll(ctx context.Context, date time.Time) (*RunSummary, error) {
	date = metricDateKey(date)
	shops, err := s.orders.DistinctShops(ctx)
	if err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}

	summary := &RunSummary{
		Date:    date.Format("2006-01-02"),
		Metrics: make([]ShopDayResult, 0, len(shops)),
	}
	for _, shop := range shops {
		shopCtx := logger.WithField(ctx, logger.FieldShop, shop)
		agg, reagg, err := s.AggregateWithRefresh(shopCtx, shop, date)
		if err != nil {
			return nil, fmt.Errorf("aggregate shop %s: %w", shop, err)
		}
		result := ShopDayResult{Shop: shop, Aggregate: agg}
		for _, d := range reagg {
			result.Reaggregated = append(result.Reaggregated, d.Format("2006-01-02"))
		}
		summary.Metrics = append(summary.Metrics, result)
		summary.ShopsProcessed++
	}
	return summary, nil
}

// detectStaleDates returns the distinct local calendar dates, other than
// already visited ones, whose aggregates went stale because a raw row with
// a different business date was mutated inside the given date's window.
func (s *AggregationService) detectStaleDates(ctx context.Context, shop string, date time.Time, visited map[time.Time]bool) ([]time.Time, error) {
	from, to := dayWindow(date)
	stamps, err := s.orders.MutatedBusinessDates(ctx, shop, from, to)
	if err != nil {
		return nil, fmt.Errorf("scan mutated business dates: %w", err)
	}

	var dates []time.Time
	for _, ts := range stamps {
		day := localDateOf(ts)
		if visited[day] {
			continue
		}
		visited[day] = true
		dates = append(dates, day)
	}
	return dates, nil
}

// accumulator collects one aggregate row's sums. Monetary values stay at
// full precision until the final rounding to cents.
type accumulator struct {
	grossQty         int
	cancelledQty     int
	returnQty        int
	returnsBookedQty int
	grossRev         decimal.Decimal
	netRevBase       decimal.Decimal
	cancelledAmt     decimal.Decimal
	returnAmt        decimal.Decimal
	returnsBookedAmt decimal.Decimal
	discount         decimal.Decimal
	shipGross        decimal.Decimal
	shipNet          decimal.Decimal
}

type dimKey struct {
	Type  domain.DimensionType
	Value string
}

func (s *AggregationService) computeDay(ctx context.Context, shop string, date time.Time) ([]domain.DailyAggregate, error) {
	from, to := dayWindow(date)

	orders, err := s.fetchOrders(ctx, shop, from, to)
	if err != nil {
		return nil, err
	}
	lines, err := s.fetchLines(ctx, shop, from, to)
	if err != nil {
		return nil, err
	}
	returnsByOrderDate, err := s.orders.RefundsByOrderDate(ctx, shop, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch refunds by order date: %w", err)
	}
	// Disjoint from the business-date fetch: refunds booked today against
	// orders from other days still count on today's booked figures.
	returnsBooked, err := s.orders.RefundsByEventDate(ctx, shop, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch refunds by event date: %w", err)
	}
	catalog, err := s.orders.SKUsByShop(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("fetch sku catalog: %w", err)
	}

	cancelled := make(map[string]bool, len(orders))
	accs := map[dimKey]*accumulator{
		{Type: domain.DimensionShop}: {},
	}
	acc := func(key dimKey) *accumulator {
		a, ok := accs[key]
		if !ok {
			a = &accumulator{}
			accs[key] = a
		}
		return a
	}
	shopAcc := acc(dimKey{Type: domain.DimensionShop})

	for _, o := range orders {
		shopAcc.grossRev = shopAcc.grossRev.Add(o.GrossAmount)
		shopAcc.discount = shopAcc.discount.Add(o.DiscountAmount)
		shopAcc.shipGross = shopAcc.shipGross.Add(o.ShippingGross)
		shopAcc.shipNet = shopAcc.shipNet.Add(o.ShippingNet)
		if o.CancelledAt != nil {
			cancelled[o.ExternalID] = true
			shopAcc.cancelledAmt = shopAcc.cancelledAmt.Add(o.GrossAmount)
		} else {
			shopAcc.netRevBase = shopAcc.netRevBase.Add(o.NetAmount)
		}
	}

	for _, l := range lines {
		shopAcc.grossQty += l.Quantity
		isCancelled := cancelled[l.OrderExternalID]
		if isCancelled {
			shopAcc.cancelledQty += l.Quantity
		}
		for _, key := range dimKeysFor(l.SKU, catalog) {
			a := acc(key)
			a.grossQty += l.Quantity
			a.grossRev = a.grossRev.Add(l.GrossAmount)
			a.discount = a.discount.Add(l.DiscountAmount)
			if isCancelled {
				a.cancelledQty += l.Quantity
				a.cancelledAmt = a.cancelledAmt.Add(l.GrossAmount)
			} else {
				a.netRevBase = a.netRevBase.Add(l.NetAmount)
			}
		}
	}

	for _, r := range returnsByOrderDate {
		shopAcc.returnQty += r.Quantity
		shopAcc.returnAmt = shopAcc.returnAmt.Add(r.Amount)
		for _, key := range dimKeysFor(r.LineSKU, catalog) {
			a := acc(key)
			a.returnQty += r.Quantity
			a.returnAmt = a.returnAmt.Add(r.Amount)
		}
	}

	for _, r := range returnsBooked {
		shopAcc.returnsBookedQty += r.Quantity
		shopAcc.returnsBookedAmt = shopAcc.returnsBookedAmt.Add(r.Amount)
		for _, key := range dimKeysFor(r.LineSKU, catalog) {
			a := acc(key)
			a.returnsBookedQty += r.Quantity
			a.returnsBookedAmt = a.returnsBookedAmt.Add(r.Amount)
		}
	}

	rows := make([]domain.DailyAggregate, 0, len(accs))
	for key, a := range accs {
		rows = append(rows, a.toRow(shop, date, key))
	}
	return rows, nil
}

// dimKeysFor resolves one SKU code to its dimension keys via the catalog.
// Lines whose SKU is unknown only count into the shop-level row.
func dimKeysFor(sku string, catalog map[string]domain.SKU) []dimKey {
	if sku == "" {
		return nil
	}
	meta, ok := catalog[sku]
	if !ok {
		return nil
	}
	var keys []dimKey
	if meta.Color != "" {
		keys = append(keys, dimKey{Type: domain.DimensionColor, Value: meta.Color})
	}
	if meta.ArticleNumber != "" {
		keys = append(keys, dimKey{Type: domain.DimensionArticle, Value: meta.ArticleNumber})
	}
	return keys
}

// toRow finalizes one accumulator: net figures subtract cancellations and
// business-date-attributed returns, and monetary sums are rounded to cents
// here at the end, never per row.
func (a *accumulator) toRow(shop string, date time.Time, key dimKey) domain.DailyAggregate {
	netRev := a.netRevBase.Sub(a.returnAmt)
	return domain.DailyAggregate{
		Shop:                  shop,
		MetricDate:            date,
		DimensionType:         key.Type,
		DimensionValue:        key.Value,
		GrossQuantity:         a.grossQty,
		NetQuantity:           a.grossQty - a.cancelledQty - a.returnQty,
		GrossRevenue:          a.grossRev.Round(2),
		NetRevenue:            netRev.Round(2),
		ReturnQuantity:        a.returnQty,
		ReturnAmount:          a.returnAmt.Round(2),
		ReturnsBookedQuantity: a.returnsBookedQty,
		ReturnsBookedAmount:   a.returnsBookedAmt.Round(2),
		CancelledQuantity:     a.cancelledQty,
		CancelledAmount:       a.cancelledAmt.Round(2),
		DiscountAmount:        a.discount.Round(2),
		ShippingGross:         a.shipGross.Round(2),
		ShippingNet:           a.shipNet.Round(2),
	}
}

// fetchOrders pages past the single-query row cap.
func (s *AggregationService) fetchOrders(ctx context.Context, shop string, from, to time.Time) ([]domain.Order, error) {
	var all []domain.Order
	for offset := 0; ; offset += s.pageSize {
		page, err := s.orders.OrdersByBusinessDate(ctx, shop, from, to, s.pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("fetch orders page at %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < s.pageSize {
			return all, nil
		}
	}
}

func (s *AggregationService) fetchLines(ctx context.Context, shop string, from, to time.Time) ([]domain.OrderLine, error) {
	var all []domain.OrderLine
	for offset := 0; ; offset += s.pageSize {
		page, err := s.orders.LinesByBusinessDate(ctx, shop, from, to, s.pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("fetch order lines page at %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < s.pageSize {
			return all, nil
		}
	}
}
