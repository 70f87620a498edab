// Package service runs order mutations and keeps the shift ledger in step
// with them. Ledger refresh after a write is best effort: it is logged on
// failure and never fails the write itself.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lunamatcha/backend/internal/bucket"
	"lunamatcha/backend/internal/domain"
	"lunamatcha/backend/internal/ledger"
	"lunamatcha/backend/internal/pricing"
	"lunamatcha/backend/internal/store"
)

var (
	ErrAlreadyHeld = fmt.Errorf("order is already held: %w", store.ErrConflict)
	ErrNotHeld     = fmt.Errorf("order is not held: %w", store.ErrConflict)
)

const heldPageSize = 50

type Options struct {
	// LedgerTimeout bounds the post-write ledger refresh. Zero means 5s.
	LedgerTimeout time.Duration
	Now           func() time.Time
	Logger        *zerolog.Logger
}

type Service struct {
	repo          store.Repository
	ledger        *ledger.Ledger
	resolver      *bucket.Resolver
	ledgerTimeout time.Duration
	now           func() time.Time
	log           zerolog.Logger
}

func New(repo store.Repository, shifts *ledger.Ledger, resolver *bucket.Resolver, opts Options) *Service {
	if opts.LedgerTimeout <= 0 {
		opts.LedgerTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := log.With().Str("component", "orders").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Service{
		repo:          repo,
		ledger:        shifts,
		resolver:      resolver,
		ledgerTimeout: opts.LedgerTimeout,
		now:           opts.Now,
		log:           logger,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	if len(req.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: items is required", store.ErrValidation)
	}
	method := strings.TrimSpace(req.PaymentMethod)
	if method != "" && !pricing.IsKnownMethod(method) {
		return domain.Order{}, fmt.Errorf("%w: unknown paymentMethod %q", store.ErrValidation, method)
	}

	now := s.now().In(s.resolver.Location())
	businessDate := s.resolver.StartOfDay(now)
	if raw := strings.TrimSpace(req.OrderDate); raw != "" {
		parsed, err := s.resolver.ParseDay(raw)
		if err != nil {
			return domain.Order{}, fmt.Errorf("%w: orderDate: %v", store.ErrValidation, err)
		}
		businessDate = parsed
	}

	order := domain.Order{
		Items:        normalizeItems(req.Items),
		BusinessDate: &businessDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	switch req.Status {
	case "", domain.OrderStatusCompleted:
		order.Status = domain.OrderStatusCompleted
	case domain.OrderStatusHeld:
		order.Status = domain.OrderStatusHeld
		order.HeldAt = &now
	default:
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", store.ErrValidation, req.Status)
	}

	order.TotalAmount = pricing.Total(order.Items)
	applyPayment(&order, method, req.CustomerPaid, req.Change)

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}

	s.syncLedger(ctx, "create", *created)
	return *created, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// OrderQuery selects orders by business day. Date wins over the pair; a
// half-open pair applies no filter.
type OrderQuery struct {
	Date      string
	StartDate string
	EndDate   string
}

func (s *Service) ListOrders(ctx context.Context, q OrderQuery) ([]domain.Order, error) {
	var filter store.OrderFilter

	switch {
	case strings.TrimSpace(q.Date) != "":
		day, err := s.resolver.ParseDay(q.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: date: %v", store.ErrValidation, err)
		}
		rg := s.resolver.DayRange(day)
		filter.Range = &rg
	case strings.TrimSpace(q.StartDate) != "" && strings.TrimSpace(q.EndDate) != "":
		rg, err := s.parseSpan(q.StartDate, q.EndDate)
		if err != nil {
			return nil, err
		}
		filter.Range = &rg
	}

	return s.repo.ListOrders(ctx, filter)
}

// UpdateItems replaces the item list when one is given and re-derives the
// total and payment fields. The business day never changes.
func (s *Service) UpdateItems(ctx context.Context, id string, req domain.OrderUpdateRequest) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	if len(req.Items) > 0 {
		order.Items = normalizeItems(req.Items)
		order.TotalAmount = pricing.Total(order.Items)
		applyPayment(order, order.PaymentMethod, order.CustomerPaid, order.Change)
	} else {
		order.Items = normalizeItems(order.Items)
	}

	updated, err := s.repo.UpdateOrder(ctx, *order)
	if err != nil {
		return domain.Order{}, err
	}

	s.syncLedger(ctx, "update", *updated)
	return *updated, nil
}

// DeleteOrder removes the order and refreshes the day it was attributed to,
// resolved before the row is gone.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		return err
	}

	s.syncLedger(ctx, "delete", *order)
	return nil
}

func (s *Service) HoldOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if order.IsHeld() {
		return domain.Order{}, ErrAlreadyHeld
	}

	now := s.now().In(s.resolver.Location())
	order.Items = normalizeItems(order.Items)
	order.Status = domain.OrderStatusHeld
	order.HeldAt = &now

	updated, err := s.repo.UpdateOrder(ctx, *order)
	if err != nil {
		return domain.Order{}, err
	}

	// the order may have counted while completed; drop it from the day
	s.syncLedger(ctx, "hold", *updated)
	return *updated, nil
}

// RestoreOrder hands a held order back for editing. It changes nothing;
// CompleteOrder settles it.
func (s *Service) RestoreOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.IsHeld() {
		return domain.Order{}, ErrNotHeld
	}
	return *order, nil
}

func (s *Service) CompleteOrder(ctx context.Context, id string, req domain.OrderCompleteRequest) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.IsHeld() {
		return domain.Order{}, ErrNotHeld
	}
	method := strings.TrimSpace(req.PaymentMethod)
	if method != "" && !pricing.IsKnownMethod(method) {
		return domain.Order{}, fmt.Errorf("%w: unknown paymentMethod %q", store.ErrValidation, method)
	}

	if len(req.Items) > 0 {
		order.Items = normalizeItems(req.Items)
	} else {
		order.Items = normalizeItems(order.Items)
	}
	order.TotalAmount = pricing.Total(order.Items)
	applyPayment(order, method, req.CustomerPaid, req.Change)
	order.Status = domain.OrderStatusCompleted
	order.HeldAt = nil

	updated, err := s.repo.UpdateOrder(ctx, *order)
	if err != nil {
		return domain.Order{}, err
	}

	s.syncLedger(ctx, "complete", *updated)
	return *updated, nil
}

func (s *Service) ListHeldOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListHeldOrders(ctx, heldPageSize)
}

// GetShift returns the refreshed shift for date, or for today when date is
// empty.
func (s *Service) GetShift(ctx context.Context, date string) (domain.Shift, error) {
	day := s.resolver.StartOfDay(s.now())
	if strings.TrimSpace(date) != "" {
		parsed, err := s.resolver.ParseDay(date)
		if err != nil {
			return domain.Shift{}, fmt.Errorf("%w: date: %v", store.ErrValidation, err)
		}
		day = parsed
	}

	shift, err := s.ledger.GetOrCreate(ctx, day)
	if err != nil {
		return domain.Shift{}, err
	}
	return *shift, nil
}

func (s *Service) ListShifts(ctx context.Context, startDate string, endDate string) ([]domain.Shift, error) {
	if strings.TrimSpace(startDate) == "" || strings.TrimSpace(endDate) == "" {
		return s.ledger.List(ctx, nil, nil)
	}
	rg, err := s.parseSpan(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.ledger.List(ctx, &rg.Start, &rg.End)
}

func (s *Service) SetStartAmount(ctx context.Context, shiftID string, req domain.StartAmountRequest) (domain.Shift, error) {
	if req.StartAmount == nil {
		return domain.Shift{}, fmt.Errorf("%w: startAmount is required", store.ErrValidation)
	}
	shift, err := s.ledger.SetOpeningFloat(ctx, shiftID, *req.StartAmount)
	if err != nil {
		return domain.Shift{}, err
	}
	return *shift, nil
}

func (s *Service) parseSpan(startDate string, endDate string) (bucket.Range, error) {
	from, err := s.resolver.ParseDay(startDate)
	if err != nil {
		return bucket.Range{}, fmt.Errorf("%w: startDate: %v", store.ErrValidation, err)
	}
	to, err := s.resolver.ParseDay(endDate)
	if err != nil {
		return bucket.Range{}, fmt.Errorf("%w: endDate: %v", store.ErrValidation, err)
	}
	if to.Before(from) {
		return bucket.Range{}, fmt.Errorf("%w: endDate before startDate", store.ErrValidation)
	}
	return s.resolver.SpanRange(from, to), nil
}

// syncLedger refreshes the shift for the order's business day. It runs on a
// context that outlives the request so a client hang-up does not abort it,
// and it never returns an error.
func (s *Service) syncLedger(ctx context.Context, op string, order domain.Order) {
	day := s.resolver.BusinessDay(order)

	ledgerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ledgerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("op", op).
				Str("order_id", order.ID).
				Time("day", day).
				Interface("panic", r).
				Msg("shift ledger refresh panicked")
		}
	}()

	if _, err := s.ledger.Recompute(ledgerCtx, day); err != nil {
		s.log.Error().
			Err(err).
			Str("op", op).
			Str("order_id", order.ID).
			Time("day", day).
			Msg("shift ledger refresh failed")
	}
}

func applyPayment(order *domain.Order, method string, customerPaid int64, change int64) {
	payment := pricing.ApplyPayment(method, order.TotalAmount, customerPaid, change)
	order.PaymentMethod = payment.Method
	order.CustomerPaid = payment.CustomerPaid
	order.Change = payment.Change
}

func normalizeItems(items []domain.OrderItem) []domain.OrderItem {
	normalized := make([]domain.OrderItem, len(items))
	for i, item := range items {
		item.ProductName = strings.TrimSpace(item.ProductName)
		item.Note = strings.TrimSpace(item.Note)
		if item.IceType == "" {
			item.IceType = domain.IceCommon
		}
		toppings := make([]domain.OrderTopping, len(item.Toppings))
		for j, topping := range item.Toppings {
			if topping.Quantity <= 0 {
				topping.Quantity = 1
			}
			toppings[j] = topping
		}
		item.Toppings = toppings
		normalized[i] = item
	}
	return normalized
}
