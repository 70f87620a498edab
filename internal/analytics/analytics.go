// Package analytics builds read-only sales reports. Orders are bucketed with
// the same business-day and settled rules as the shift ledger.
package analytics

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"lunamatcha/backend/internal/bucket"
	"lunamatcha/backend/internal/domain"
	"lunamatcha/backend/internal/ledger"
	"lunamatcha/backend/internal/pricing"
	"lunamatcha/backend/internal/store"
)

const (
	periodTopProducts = 10
	rollingTopLimit   = 20
)

type Rollup struct {
	repo     store.OrderRepository
	resolver *bucket.Resolver
	now      func() time.Time
}

func New(repo store.OrderRepository, resolver *bucket.Resolver, now func() time.Time) *Rollup {
	if now == nil {
		now = time.Now
	}
	return &Rollup{repo: repo, resolver: resolver, now: now}
}

// Period reports on one bucket and compares its revenue with the bucket
// right before it.
func (r *Rollup) Period(ctx context.Context, kind bucket.Kind, ref string) (domain.PeriodReport, error) {
	if strings.TrimSpace(ref) == "" {
		return domain.PeriodReport{}, fmt.Errorf("%w: %s reference is required", store.ErrValidation, kind)
	}
	current, err := r.resolver.Resolve(kind, ref)
	if err != nil {
		return domain.PeriodReport{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	previous := r.resolver.Previous(kind, current)

	var currentOrders, previousOrders []domain.Order
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		currentOrders, err = r.settled(gctx, current)
		return err
	})
	g.Go(func() error {
		var err error
		previousOrders, err = r.settled(gctx, previous)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.PeriodReport{}, err
	}

	report := domain.PeriodReport{
		Period:      string(kind),
		Key:         bucket.Key(kind, current),
		StartDate:   current.Start,
		EndDate:     current.End,
		TopProducts: topProducts(currentOrders, periodTopProducts),
	}
	for _, order := range currentOrders {
		report.TotalRevenue += revenue(order)
		report.TotalOrders++
		for _, item := range order.Items {
			report.TotalItems += item.Quantity
		}
	}
	totals := ledger.Summarize(currentOrders)
	report.CashAmount = totals.CashAmount
	report.BankTransferAmount = totals.BankTransferAmount

	for _, order := range previousOrders {
		report.PreviousRevenue += revenue(order)
	}
	report.RevenueChange = report.TotalRevenue - report.PreviousRevenue
	report.RevenueChangePercent = percentChange(report.TotalRevenue, report.PreviousRevenue)

	switch kind {
	case bucket.Day:
		report.Orders = currentOrders
	case bucket.Week, bucket.Month:
		report.Breakdown = r.breakdown(currentOrders, current, daily)
	case bucket.Quarter, bucket.Year:
		report.Breakdown = r.breakdown(currentOrders, current, monthly)
	}
	return report, nil
}

// PeakHours spreads one day's settled orders over 24 creation-hour slots.
func (r *Rollup) PeakHours(ctx context.Context, date string) (domain.PeakHoursReport, error) {
	if strings.TrimSpace(date) == "" {
		return domain.PeakHoursReport{}, fmt.Errorf("%w: date is required", store.ErrValidation)
	}
	day, err := r.resolver.ParseDay(date)
	if err != nil {
		return domain.PeakHoursReport{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	orders, err := r.settled(ctx, r.resolver.DayRange(day))
	if err != nil {
		return domain.PeakHoursReport{}, err
	}

	stats := make([]domain.HourStat, 24)
	for h := range stats {
		stats[h].Hour = h
	}
	loc := r.resolver.Location()
	for _, order := range orders {
		h := order.CreatedAt.In(loc).Hour()
		stats[h].Orders++
		stats[h].Revenue += revenue(order)
	}

	return domain.PeakHoursReport{Date: day.Format(bucket.DateLayout), HourStats: stats}, nil
}

// TopProducts ranks products over a rolling window ending now (today, week
// or month) or over an explicit inclusive day span.
func (r *Rollup) TopProducts(ctx context.Context, period string, startDate string, endDate string) (domain.TopProductsReport, error) {
	var (
		rg    bucket.Range
		label string
	)

	now := r.now()
	switch {
	case strings.TrimSpace(startDate) != "" && strings.TrimSpace(endDate) != "":
		from, err := r.resolver.ParseDay(startDate)
		if err != nil {
			return domain.TopProductsReport{}, fmt.Errorf("%w: startDate: %v", store.ErrValidation, err)
		}
		to, err := r.resolver.ParseDay(endDate)
		if err != nil {
			return domain.TopProductsReport{}, fmt.Errorf("%w: endDate: %v", store.ErrValidation, err)
		}
		if to.Before(from) {
			return domain.TopProductsReport{}, fmt.Errorf("%w: endDate before startDate", store.ErrValidation)
		}
		rg, label = r.resolver.SpanRange(from, to), "custom"
	case period == "today":
		rg, label = r.resolver.DayRange(now), period
	case period == "week":
		rg, label = r.resolver.SpanRange(now.AddDate(0, 0, -6), now), period
	case period == "month":
		rg, label = r.resolver.SpanRange(now.AddDate(0, -1, 0), now), period
	case period == "":
		return domain.TopProductsReport{}, fmt.Errorf("%w: period or startDate and endDate is required", store.ErrValidation)
	default:
		return domain.TopProductsReport{}, fmt.Errorf("%w: unknown period %q", store.ErrValidation, period)
	}

	orders, err := r.settled(ctx, rg)
	if err != nil {
		return domain.TopProductsReport{}, err
	}

	return domain.TopProductsReport{
		Period:      label,
		StartDate:   rg.Start,
		EndDate:     rg.End,
		TopProducts: topProducts(orders, rollingTopLimit),
	}, nil
}

func (r *Rollup) settled(ctx context.Context, rg bucket.Range) ([]domain.Order, error) {
	return r.repo.ListOrders(ctx, store.OrderFilter{Range: &rg, SettledOnly: true})
}

type granularity int

const (
	daily granularity = iota
	monthly
)

// breakdown emits one zero-filled slot per day or month of rg, in order.
func (r *Rollup) breakdown(orders []domain.Order, rg bucket.Range, g granularity) []domain.BreakdownStat {
	layout, step := bucket.DateLayout, func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	if g == monthly {
		layout, step = "2006-01", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	}

	stats := make([]domain.BreakdownStat, 0, 31)
	index := make(map[string]int)
	for t := rg.Start; !t.After(rg.End); t = step(t) {
		label := t.Format(layout)
		index[label] = len(stats)
		stats = append(stats, domain.BreakdownStat{Label: label})
	}

	for _, order := range orders {
		label := r.resolver.BusinessDay(order).Format(layout)
		i, ok := index[label]
		if !ok {
			continue
		}
		stats[i].Orders++
		stats[i].Revenue += revenue(order)
	}
	return stats
}

func topProducts(orders []domain.Order, limit int) []domain.ProductStat {
	byKey := make(map[string]*domain.ProductStat)
	seen := make(map[string]string)

	for _, order := range orders {
		for _, item := range order.Items {
			key := item.ProductID
			if key == "" {
				key = strings.ToLower(item.ProductName)
			}
			stat, ok := byKey[key]
			if !ok {
				stat = &domain.ProductStat{ProductID: item.ProductID, ProductName: item.ProductName}
				byKey[key] = stat
			}
			stat.Quantity += item.Quantity
			stat.Revenue += pricing.LineTotal(item)
			if seen[key] != order.ID {
				seen[key] = order.ID
				stat.Orders++
			}
		}
	}

	stats := make([]domain.ProductStat, 0, len(byKey))
	for _, stat := range byKey {
		stats = append(stats, *stat)
	}
	slices.SortFunc(stats, func(a, b domain.ProductStat) int {
		if a.Quantity != b.Quantity {
			return b.Quantity - a.Quantity
		}
		if a.Revenue != b.Revenue {
			if b.Revenue > a.Revenue {
				return 1
			}
			return -1
		}
		return strings.Compare(a.ProductName, b.ProductName)
	})
	if len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}

func revenue(order domain.Order) int64 {
	if order.TotalAmount < 0 {
		return 0
	}
	return order.TotalAmount
}

// percentChange is the relative revenue change. Without previous revenue
// there is nothing to compare against and the change is 0.
func percentChange(current int64, previous int64) float64 {
	if previous <= 0 {
		return 0
	}
	pct := float64(current-previous) / float64(previous) * 100
	return math.Round(pct*100) / 100
}
