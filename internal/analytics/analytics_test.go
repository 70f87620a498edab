package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunamatcha/backend/internal/bucket"
	"lunamatcha/backend/internal/domain"
	"lunamatcha/backend/internal/store"
	"lunamatcha/backend/internal/store/memory"
)

var ict = time.FixedZone("ICT", 7*3600)

func newTestRollup(t *testing.T) (*Rollup, *memory.Store) {
	t.Helper()
	repo := memory.New()
	now := func() time.Time { return time.Date(2024, 3, 15, 18, 0, 0, 0, ict) }
	return New(repo, bucket.NewResolver(ict), now), repo
}

func addOrder(t *testing.T, repo *memory.Store, created time.Time, method string, items ...domain.OrderItem) domain.Order {
	t.Helper()
	var total int64
	for _, item := range items {
		total += item.Price * int64(item.Quantity)
	}
	order, err := repo.CreateOrder(context.Background(), domain.Order{
		Items:         items,
		TotalAmount:   total,
		PaymentMethod: method,
		Status:        domain.OrderStatusCompleted,
		CreatedAt:     created,
	})
	require.NoError(t, err)
	return *order
}

func item(id string, name string, price int64, qty int) domain.OrderItem {
	return domain.OrderItem{ProductID: id, ProductName: name, Size: domain.SizeSmall, Quantity: qty, Price: price, IceType: domain.IceCommon}
}

func TestDailyReport(t *testing.T) {
	rollup, repo := newTestRollup(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 15, 9, 0, 0, 0, ict)

	addOrder(t, repo, day, domain.PaymentCash, item("p1", "Matcha Latte", 30000, 2))
	addOrder(t, repo, day.Add(time.Hour), domain.PaymentBankTransfer, item("p2", "Hojicha", 25000, 1))
	addOrder(t, repo, day.AddDate(0, 0, -1), domain.PaymentCash, item("p1", "Matcha Latte", 30000, 1))

	held, err := repo.CreateOrder(ctx, domain.Order{
		Items:       []domain.OrderItem{item("p3", "Genmaicha", 99000, 1)},
		TotalAmount: 99000,
		Status:      domain.OrderStatusHeld,
		CreatedAt:   day,
	})
	require.NoError(t, err)

	report, err := rollup.Period(ctx, bucket.Day, "2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", report.Key)
	assert.Equal(t, int64(85000), report.TotalRevenue)
	assert.Equal(t, 2, report.TotalOrders)
	assert.Equal(t, 3, report.TotalItems)
	assert.Equal(t, int64(60000), report.CashAmount)
	assert.Equal(t, int64(25000), report.BankTransferAmount)
	assert.Equal(t, int64(30000), report.PreviousRevenue)
	assert.Equal(t, int64(55000), report.RevenueChange)
	assert.InDelta(t, 183.33, report.RevenueChangePercent, 0.001)
	assert.Len(t, report.Orders, 2)
	for _, o := range report.Orders {
		assert.NotEqual(t, held.ID, o.ID)
	}
	require.NotEmpty(t, report.TopProducts)
	assert.Equal(t, "p1", report.TopProducts[0].ProductID)
	assert.Nil(t, report.Breakdown)
}

func TestWeeklyReportBreakdownAndBusinessDate(t *testing.T) {
	rollup, repo := newTestRollup(t)
	ctx := context.Background()

	// 2024-W11 runs Monday 11 March to Sunday 17 March
	addOrder(t, repo, time.Date(2024, 3, 11, 9, 0, 0, 0, ict), domain.PaymentCash, item("p1", "Matcha Latte", 10000, 1))
	backdated := domain.Order{
		Items:         []domain.OrderItem{item("p1", "Matcha Latte", 10000, 1)},
		TotalAmount:   10000,
		PaymentMethod: domain.PaymentCash,
		CreatedAt:     time.Date(2024, 3, 18, 0, 30, 0, 0, ict),
	}
	bd := time.Date(2024, 3, 17, 0, 0, 0, 0, ict)
	backdated.BusinessDate = &bd
	_, err := repo.CreateOrder(ctx, backdated)
	require.NoError(t, err)

	report, err := rollup.Period(ctx, bucket.Week, "2024-W11")
	require.NoError(t, err)
	assert.Equal(t, "2024-W11", report.Key)
	assert.Equal(t, int64(20000), report.TotalRevenue)
	require.Len(t, report.Breakdown, 7)
	assert.Equal(t, "2024-03-11", report.Breakdown[0].Label)
	assert.Equal(t, 1, report.Breakdown[0].Orders)
	assert.Equal(t, "2024-03-17", report.Breakdown[6].Label)
	assert.Equal(t, 1, report.Breakdown[6].Orders)
	assert.Zero(t, report.PreviousRevenue)
	assert.Equal(t, int64(20000), report.RevenueChange)
	assert.Zero(t, report.RevenueChangePercent)
}

func TestQuarterlyBreakdownByMonth(t *testing.T) {
	rollup, repo := newTestRollup(t)
	addOrder(t, repo, time.Date(2024, 2, 10, 9, 0, 0, 0, ict), domain.PaymentCash, item("p1", "Matcha Latte", 10000, 1))

	report, err := rollup.Period(context.Background(), bucket.Quarter, "2024-Q1")
	require.NoError(t, err)
	require.Len(t, report.Breakdown, 3)
	assert.Equal(t, "2024-01", report.Breakdown[0].Label)
	assert.Equal(t, "2024-02", report.Breakdown[1].Label)
	assert.Equal(t, int64(10000), report.Breakdown[1].Revenue)
}

func TestMonthlyPreviousCrossesYear(t *testing.T) {
	rollup, repo := newTestRollup(t)
	addOrder(t, repo, time.Date(2023, 12, 31, 22, 0, 0, 0, ict), domain.PaymentCash, item("p1", "Matcha Latte", 40000, 1))
	addOrder(t, repo, time.Date(2024, 1, 2, 9, 0, 0, 0, ict), domain.PaymentCash, item("p1", "Matcha Latte", 10000, 1))

	report, err := rollup.Period(context.Background(), bucket.Month, "2024-01")
	require.NoError(t, err)
	assert.Equal(t, int64(40000), report.PreviousRevenue)
	assert.Equal(t, int64(-30000), report.RevenueChange)
	assert.Equal(t, float64(-75), report.RevenueChangePercent)
	assert.Len(t, report.Breakdown, 31)
}

func TestPeriodRejectsReferences(t *testing.T) {
	rollup, _ := newTestRollup(t)
	ctx := context.Background()

	for _, tc := range []struct {
		kind bucket.Kind
		ref  string
	}{
		{bucket.Day, ""},
		{bucket.Week, "2024-11"},
		{bucket.Quarter, "2024-Q5"},
		{bucket.Year, "abcd"},
	} {
		_, err := rollup.Period(ctx, tc.kind, tc.ref)
		assert.ErrorIs(t, err, store.ErrValidation, "%s %q", tc.kind, tc.ref)
	}
}

func TestPeakHours(t *testing.T) {
	rollup, repo := newTestRollup(t)
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, ict)
	addOrder(t, repo, day.Add(9*time.Hour+15*time.Minute), domain.PaymentCash, item("p1", "Matcha Latte", 10000, 1))
	addOrder(t, repo, day.Add(9*time.Hour+45*time.Minute), domain.PaymentCash, item("p1", "Matcha Latte", 12000, 1))
	addOrder(t, repo, day.Add(20*time.Hour), domain.PaymentCash, item("p1", "Matcha Latte", 5000, 1))

	report, err := rollup.PeakHours(context.Background(), "2024-03-15")
	require.NoError(t, err)
	require.Len(t, report.HourStats, 24)
	assert.Equal(t, 2, report.HourStats[9].Orders)
	assert.Equal(t, int64(22000), report.HourStats[9].Revenue)
	assert.Equal(t, 1, report.HourStats[20].Orders)
	assert.Zero(t, report.HourStats[0].Orders)

	_, err = rollup.PeakHours(context.Background(), "")
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestTopProductsWindows(t *testing.T) {
	rollup, repo := newTestRollup(t)
	ctx := context.Background()
	today := time.Date(2024, 3, 15, 9, 0, 0, 0, ict)

	addOrder(t, repo, today, domain.PaymentCash, item("p1", "Matcha Latte", 30000, 1), item("p2", "Hojicha", 20000, 3))
	addOrder(t, repo, today.AddDate(0, 0, -3), domain.PaymentCash, item("p1", "Matcha Latte", 30000, 5))
	addOrder(t, repo, today.AddDate(0, 0, -20), domain.PaymentCash, item("p3", "Genmaicha", 15000, 9))

	todayReport, err := rollup.TopProducts(ctx, "today", "", "")
	require.NoError(t, err)
	require.Len(t, todayReport.TopProducts, 2)
	assert.Equal(t, "p2", todayReport.TopProducts[0].ProductID)

	week, err := rollup.TopProducts(ctx, "week", "", "")
	require.NoError(t, err)
	require.Len(t, week.TopProducts, 2)
	assert.Equal(t, "p1", week.TopProducts[0].ProductID)
	assert.Equal(t, 6, week.TopProducts[0].Quantity)
	assert.Equal(t, 2, week.TopProducts[0].Orders)

	month, err := rollup.TopProducts(ctx, "month", "", "")
	require.NoError(t, err)
	assert.Len(t, month.TopProducts, 3)

	custom, err := rollup.TopProducts(ctx, "", "2024-02-24", "2024-02-24")
	require.NoError(t, err)
	require.Len(t, custom.TopProducts, 1)
	assert.Equal(t, "p3", custom.TopProducts[0].ProductID)

	_, err = rollup.TopProducts(ctx, "", "", "")
	assert.ErrorIs(t, err, store.ErrValidation)
	_, err = rollup.TopProducts(ctx, "decade", "", "")
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestPercentChange(t *testing.T) {
	assert.Equal(t, float64(0), percentChange(0, 0))
	assert.Equal(t, float64(0), percentChange(500, 0))
	assert.Equal(t, float64(0), percentChange(50000, 0))
	assert.Equal(t, float64(50), percentChange(150, 100))
	assert.Equal(t, float64(-100), percentChange(0, 100))
}
