package store

import (
	"context"
	"errors"
	"time"

	"lunamatcha/backend/internal/bucket"
	"lunamatcha/backend/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
	ErrVersionConflict = errors.New("version conflict")
)

// OrderFilter narrows ListOrders. A nil Range matches every order.
type OrderFilter struct {
	Range       *bucket.Range
	SettledOnly bool
}

// Matches applies the filter to a single order using the shared bucket rules.
func (f OrderFilter) Matches(o domain.Order) bool {
	if f.Range != nil && !bucket.Contains(*f.Range, o) {
		return false
	}
	if f.SettledOnly && !bucket.IsSettled(o) {
		return false
	}
	return true
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error
	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
	ListHeldOrders(ctx context.Context, limit int) ([]domain.Order, error)
}

type ShiftRepository interface {
	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetShiftByDate(ctx context.Context, date time.Time) (*domain.Shift, error)
	GetShiftByID(ctx context.Context, id string) (*domain.Shift, error)
	// SaveShift persists every field of shift if the stored version still
	// equals shift.Version, and returns the row with the next version.
	SaveShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	ListShifts(ctx context.Context, from *time.Time, to *time.Time) ([]domain.Shift, error)
}

type Repository interface {
	OrderRepository
	ShiftRepository
}
