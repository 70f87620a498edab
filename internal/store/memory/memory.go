package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"lunamatcha/backend/internal/bucket"
	"lunamatcha/backend/internal/domain"
	"lunamatcha/backend/internal/store"
	"lunamatcha/backend/internal/xid"
)

type Store struct {
	mu         sync.RWMutex
	ordersByID map[string]domain.Order
	shiftsByID map[string]domain.Shift
	shiftByDay map[string]string
	now        func() time.Time
}

func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock stamps createdAt/updatedAt from now instead of the wall clock.
func NewWithClock(now func() time.Time) *Store {
	return &Store{
		ordersByID: make(map[string]domain.Order),
		shiftsByID: make(map[string]domain.Shift),
		shiftByDay: make(map[string]string),
		now:        now,
	}
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if err := store.ValidateOrder(order); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, store.ErrConflict
	}
	now := s.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	s.ordersByID[order.ID] = cloneOrder(order)
	saved := cloneOrder(order)
	return &saved, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneOrder(order)
	return &found, nil
}

func (s *Store) UpdateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if err := store.ValidateOrder(order); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.ordersByID[order.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	order.CreatedAt = existing.CreatedAt
	order.UpdatedAt = s.now()

	s.ordersByID[order.ID] = cloneOrder(order)
	saved := cloneOrder(order)
	return &saved, nil
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ordersByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.ordersByID, id)
	return nil
}

func (s *Store) ListOrders(_ context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 64)
	for _, order := range s.ordersByID {
		if !filter.Matches(order) {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpString(b.ID, a.ID)
	})
	return result, nil
}

func (s *Store) ListHeldOrders(_ context.Context, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 16)
	for _, order := range s.ordersByID {
		if !order.IsHeld() {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		if c := heldAt(b).Compare(heldAt(a)); c != 0 {
			return c
		}
		return cmpString(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.Date.IsZero() {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey(shift.Date)
	if _, exists := s.shiftByDay[key]; exists {
		return nil, store.ErrConflict
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	now := s.now()
	shift.CreatedAt = now
	shift.UpdatedAt = now
	shift.Version = 1

	s.shiftsByID[shift.ID] = cloneShift(shift)
	s.shiftByDay[key] = shift.ID
	saved := cloneShift(shift)
	return &saved, nil
}

func (s *Store) GetShiftByDate(_ context.Context, date time.Time) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.shiftByDay[dayKey(date)]
	if !ok {
		return nil, store.ErrNotFound
	}
	shift := cloneShift(s.shiftsByID[id])
	return &shift, nil
}

func (s *Store) GetShiftByID(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shiftsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneShift(shift)
	return &found, nil
}

func (s *Store) SaveShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.shiftsByID[shift.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if existing.Version != shift.Version {
		return nil, store.ErrVersionConflict
	}
	shift.Date = existing.Date
	shift.CreatedAt = existing.CreatedAt
	shift.UpdatedAt = s.now()
	shift.Version = existing.Version + 1

	s.shiftsByID[shift.ID] = cloneShift(shift)
	saved := cloneShift(shift)
	return &saved, nil
}

func (s *Store) ListShifts(_ context.Context, from *time.Time, to *time.Time) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Shift, 0, len(s.shiftsByID))
	for _, shift := range s.shiftsByID {
		if from != nil && shift.Date.Before(*from) {
			continue
		}
		if to != nil && shift.Date.After(*to) {
			continue
		}
		result = append(result, cloneShift(shift))
	}

	slices.SortFunc(result, func(a, b domain.Shift) int {
		return b.Date.Compare(a.Date)
	})
	return result, nil
}

func dayKey(t time.Time) string {
	return t.Format(bucket.DateLayout)
}

func heldAt(o domain.Order) time.Time {
	if o.HeldAt != nil {
		return *o.HeldAt
	}
	return o.UpdatedAt
}

func cloneOrder(order domain.Order) domain.Order {
	cloned := order
	cloned.Items = make([]domain.OrderItem, len(order.Items))
	for i, item := range order.Items {
		cloned.Items[i] = item
		cloned.Items[i].Toppings = append([]domain.OrderTopping(nil), item.Toppings...)
	}
	cloned.BusinessDate = cloneTime(order.BusinessDate)
	cloned.HeldAt = cloneTime(order.HeldAt)
	return cloned
}

func cloneShift(shift domain.Shift) domain.Shift {
	cloned := shift
	cloned.Orders = append([]string{}, shift.Orders...)
	return cloned
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
