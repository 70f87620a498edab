package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunamatcha/backend/internal/bucket"
	"lunamatcha/backend/internal/daylock"
	"lunamatcha/backend/internal/domain"
	"lunamatcha/backend/internal/store"
	"lunamatcha/backend/internal/store/memory"
)

var ict = time.FixedZone("ICT", 7*3600)

func newTestLedger() (*Ledger, *memory.Store) {
	repo := memory.New()
	return New(repo, bucket.NewResolver(ict), daylock.NewLocal()), repo
}

func putOrder(t *testing.T, repo store.Repository, method string, total int64, created time.Time, mutate ...func(o *domain.Order)) *domain.Order {
	t.Helper()
	order := domain.Order{
		Items: []domain.OrderItem{{
			ProductName: "Matcha Latte",
			Size:        domain.SizeSmall,
			Quantity:    1,
			Price:       total,
			IceType:     domain.IceCommon,
		}},
		TotalAmount:   total,
		PaymentMethod: method,
		Status:        domain.OrderStatusCompleted,
		CreatedAt:     created,
	}
	for _, fn := range mutate {
		fn(&order)
	}
	saved, err := repo.CreateOrder(context.Background(), order)
	require.NoError(t, err)
	return saved
}

func TestSummarizePartitionsChannels(t *testing.T) {
	totals := Summarize([]domain.Order{
		{ID: "a", TotalAmount: 20000, PaymentMethod: domain.PaymentCash},
		{ID: "b", TotalAmount: 30000, PaymentMethod: domain.PaymentExactAmount},
		{ID: "c", TotalAmount: 5000, PaymentMethod: ""},
		{ID: "d", TotalAmount: 15000, PaymentMethod: domain.PaymentBankTransfer},
		{ID: "e", TotalAmount: -1, PaymentMethod: domain.PaymentCash},
	})

	assert.Equal(t, int64(55000), totals.CashAmount)
	assert.Equal(t, int64(15000), totals.BankTransferAmount)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, totals.OrderIDs)
}

func TestGetOrCreateCashAndBankTotals(t *testing.T) {
	l, repo := newTestLedger()
	ctx := context.Background()
	day := time.Date(2024, 3, 15, 10, 0, 0, 0, ict)

	putOrder(t, repo, domain.PaymentCash, 20000, day)
	big := putOrder(t, repo, domain.PaymentCash, 30000, day.Add(time.Hour))
	putOrder(t, repo, domain.PaymentBankTransfer, 15000, day.Add(2*time.Hour))

	shift, err := l.GetOrCreate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), shift.CashAmount)
	assert.Equal(t, int64(15000), shift.BankTransferAmount)
	assert.Equal(t, int64(50000), shift.EndAmount)
	assert.Equal(t, int64(50000), shift.NetAmount)
	assert.Len(t, shift.Orders, 3)

	require.NoError(t, repo.DeleteOrder(ctx, big.ID))
	shift, err = l.GetOrCreate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), shift.CashAmount)
	assert.Len(t, shift.Orders, 2)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	l, repo := newTestLedger()
	ctx := context.Background()
	day := time.Date(2024, 3, 15, 10, 0, 0, 0, ict)
	putOrder(t, repo, domain.PaymentCash, 20000, day)

	first, err := l.Recompute(ctx, day)
	require.NoError(t, err)
	second, err := l.Recompute(ctx, day)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CashAmount, second.CashAmount)
	assert.Equal(t, first.BankTransferAmount, second.BankTransferAmount)
	assert.Equal(t, first.EndAmount, second.EndAmount)
	assert.Equal(t, first.NetAmount, second.NetAmount)
	assert.Equal(t, first.Orders, second.Orders)
}

func TestRecomputeUsesBusinessDateFallback(t *testing.T) {
	l, repo := newTestLedger()
	ctx := context.Background()
	dayD := time.Date(2024, 3, 15, 0, 0, 0, 0, ict)
	nextDay := dayD.AddDate(0, 0, 1)

	// legacy order with no business date counts on its creation day
	putOrder(t, repo, "", 10000, dayD.Add(9*time.Hour), func(o *domain.Order) { o.Status = "" })
	// back-dated order counts on its business date, not its creation day
	putOrder(t, repo, domain.PaymentCash, 7000, nextDay.Add(time.Hour), func(o *domain.Order) {
		bd := dayD
		o.BusinessDate = &bd
	})

	shiftD, err := l.GetOrCreate(ctx, dayD)
	require.NoError(t, err)
	assert.Equal(t, int64(17000), shiftD.CashAmount)

	shiftNext, err := l.GetOrCreate(ctx, nextDay)
	require.NoError(t, err)
	assert.Zero(t, shiftNext.CashAmount)
	assert.Empty(t, shiftNext.Orders)
}

func TestHeldOrdersExcluded(t *testing.T) {
	l, repo := newTestLedger()
	ctx := context.Background()
	day := time.Date(2024, 3, 15, 10, 0, 0, 0, ict)
	order := putOrder(t, repo, domain.PaymentCash, 20000, day)

	shift, err := l.GetOrCreate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), shift.CashAmount)

	order.Status = domain.OrderStatusHeld
	_, err = repo.UpdateOrder(ctx, *order)
	require.NoError(t, err)

	shift, err = l.Recompute(ctx, day)
	require.NoError(t, err)
	assert.Zero(t, shift.CashAmount)
	assert.NotContains(t, shift.Orders, order.ID)
}

func TestSetOpeningFloat(t *testing.T) {
	l, repo := newTestLedger()
	ctx := context.Background()
	day := time.Date(2024, 3, 15, 10, 0, 0, 0, ict)
	putOrder(t, repo, domain.PaymentCash, 50000, day)

	shift, err := l.GetOrCreate(ctx, day)
	require.NoError(t, err)

	updated, err := l.SetOpeningFloat(ctx, shift.ID, 100000)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), updated.StartAmount)
	assert.Equal(t, int64(-50000), updated.NetAmount)

	// opening float survives later recomputes
	again, err := l.Recompute(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), again.StartAmount)
	assert.Equal(t, again.EndAmount-again.StartAmount, again.NetAmount)

	_, err = l.SetOpeningFloat(ctx, shift.ID, -1)
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = l.SetOpeningFloat(ctx, "shift-missing", 10)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// conflictOnce makes the first SaveShift lose a compare-and-swap race.
type conflictOnce struct {
	*memory.Store
	once sync.Once
}

func (c *conflictOnce) SaveShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	conflict := false
	c.once.Do(func() { conflict = true })
	if conflict {
		return nil, store.ErrVersionConflict
	}
	return c.Store.SaveShift(ctx, shift)
}

func TestRecomputeRetriesVersionConflict(t *testing.T) {
	repo := &conflictOnce{Store: memory.New()}
	l := New(repo, bucket.NewResolver(ict), nil)
	ctx := context.Background()
	day := time.Date(2024, 3, 15, 10, 0, 0, 0, ict)

	_, err := l.GetOrCreate(ctx, day)
	require.NoError(t, err)

	putOrder(t, repo, domain.PaymentCash, 12000, day)
	shift, err := l.Recompute(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(12000), shift.CashAmount)
}

func TestConcurrentRecomputeConverges(t *testing.T) {
	l, repo := newTestLedger()
	ctx := context.Background()
	day := time.Date(2024, 3, 15, 10, 0, 0, 0, ict)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			putOrder(t, repo, domain.PaymentCash, 1000, day.Add(time.Duration(i)*time.Minute))
			_, err := l.Recompute(ctx, day)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	shift, err := l.GetOrCreate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), shift.CashAmount)
	assert.Len(t, shift.Orders, 10)
}

func TestListDoesNotRefresh(t *testing.T) {
	l, repo := newTestLedger()
	ctx := context.Background()
	day := time.Date(2024, 3, 15, 10, 0, 0, 0, ict)

	_, err := l.GetOrCreate(ctx, day)
	require.NoError(t, err)
	putOrder(t, repo, domain.PaymentCash, 9000, day)

	shifts, err := l.List(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Zero(t, shifts[0].CashAmount)
}
