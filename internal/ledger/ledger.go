// Package ledger keeps one shift row per calendar day whose money fields are
// always re-derived from the day's settled orders.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lunamatcha/backend/internal/bucket"
	"lunamatcha/backend/internal/daylock"
	"lunamatcha/backend/internal/domain"
	"lunamatcha/backend/internal/pricing"
	"lunamatcha/backend/internal/store"
)

const maxSaveAttempts = 3

type Ledger struct {
	repo     store.Repository
	resolver *bucket.Resolver
	locker   daylock.Locker
	log      zerolog.Logger
}

func New(repo store.Repository, resolver *bucket.Resolver, locker daylock.Locker) *Ledger {
	if locker == nil {
		locker = daylock.NewLocal()
	}
	return &Ledger{
		repo:     repo,
		resolver: resolver,
		locker:   locker,
		log:      log.With().Str("component", "ledger").Logger(),
	}
}

// Totals is the derived part of a shift.
type Totals struct {
	CashAmount         int64
	BankTransferAmount int64
	OrderIDs           []string
}

// Summarize partitions settled orders by payment channel. Negative totals are
// treated as corrupt and contribute nothing, but the order is still listed.
func Summarize(orders []domain.Order) Totals {
	totals := Totals{OrderIDs: make([]string, 0, len(orders))}
	for _, order := range orders {
		totals.OrderIDs = append(totals.OrderIDs, order.ID)
		amount := order.TotalAmount
		if amount < 0 {
			continue
		}
		switch {
		case pricing.IsBankTransfer(order.PaymentMethod):
			totals.BankTransferAmount += amount
		case pricing.IsCashChannel(order.PaymentMethod):
			totals.CashAmount += amount
		}
	}
	return totals
}

// Apply writes totals into shift and re-derives end and net amounts.
func (t Totals) Apply(shift *domain.Shift) {
	shift.CashAmount = t.CashAmount
	shift.BankTransferAmount = t.BankTransferAmount
	shift.EndAmount = t.CashAmount
	shift.NetAmount = shift.EndAmount - shift.StartAmount
	shift.Orders = append([]string{}, t.OrderIDs...)
}

// GetOrCreate returns the shift for the day containing day, creating it with
// a zero opening float if needed. The derived fields are recomputed and
// persisted on every call.
func (l *Ledger) GetOrCreate(ctx context.Context, day time.Time) (*domain.Shift, error) {
	date := l.resolver.StartOfDay(day)

	release, err := l.locker.Lock(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("lock shift %s: %w", date.Format(bucket.DateLayout), err)
	}
	defer release()

	var lastErr error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		shift, err := l.refresh(ctx, date)
		if err == nil {
			return shift, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) && !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		lastErr = err
		l.log.Debug().Err(err).Int("attempt", attempt).Time("date", date).Msg("shift write lost race, retrying")
	}
	return nil, lastErr
}

// Recompute is the post-mutation hook used by order writes.
func (l *Ledger) Recompute(ctx context.Context, day time.Time) (*domain.Shift, error) {
	return l.GetOrCreate(ctx, day)
}

func (l *Ledger) refresh(ctx context.Context, date time.Time) (*domain.Shift, error) {
	totals, err := l.totalsFor(ctx, date)
	if err != nil {
		return nil, err
	}

	existing, err := l.repo.GetShiftByDate(ctx, date)
	if errors.Is(err, store.ErrNotFound) {
		shift := domain.Shift{Date: date}
		totals.Apply(&shift)
		return l.repo.CreateShift(ctx, shift)
	}
	if err != nil {
		return nil, err
	}

	totals.Apply(existing)
	return l.repo.SaveShift(ctx, *existing)
}

func (l *Ledger) totalsFor(ctx context.Context, date time.Time) (Totals, error) {
	rg := l.resolver.DayRange(date)
	orders, err := l.repo.ListOrders(ctx, store.OrderFilter{Range: &rg, SettledOnly: true})
	if err != nil {
		return Totals{}, fmt.Errorf("list orders for shift: %w", err)
	}
	return Summarize(orders), nil
}

// SetOpeningFloat stores the operator-entered opening cash and re-derives the
// net amount from the stored end amount without re-reading orders.
func (l *Ledger) SetOpeningFloat(ctx context.Context, shiftID string, amount int64) (*domain.Shift, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: startAmount must be >= 0", store.ErrValidation)
	}

	shift, err := l.repo.GetShiftByID(ctx, shiftID)
	if err != nil {
		return nil, err
	}

	release, err := l.locker.Lock(ctx, shift.Date)
	if err != nil {
		return nil, fmt.Errorf("lock shift %s: %w", shift.Date.Format(bucket.DateLayout), err)
	}
	defer release()

	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		if attempt > 1 {
			if shift, err = l.repo.GetShiftByID(ctx, shiftID); err != nil {
				return nil, err
			}
		}
		shift.StartAmount = amount
		shift.NetAmount = shift.EndAmount - shift.StartAmount

		saved, err := l.repo.SaveShift(ctx, *shift)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, store.ErrVersionConflict
}

// List returns stored shifts newest first without refreshing them. Bounds
// are whole local days; either may be nil.
func (l *Ledger) List(ctx context.Context, from *time.Time, to *time.Time) ([]domain.Shift, error) {
	var lo, hi *time.Time
	if from != nil {
		v := l.resolver.StartOfDay(*from)
		lo = &v
	}
	if to != nil {
		v := l.resolver.StartOfDay(*to)
		hi = &v
	}
	return l.repo.ListShifts(ctx, lo, hi)
}
