package store

import (
	"fmt"

	"lunamatcha/backend/internal/domain"
)

// ValidateOrder enforces the order record invariants shared by every
// repository implementation. Empty payment method and status are accepted so
// legacy rows stay readable and writable.
func ValidateOrder(order domain.Order) error {
	if len(order.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	for i, item := range order.Items {
		if item.Size != domain.SizeSmall && item.Size != domain.SizeLarge {
			return fmt.Errorf("%w: item %d has invalid size %q", ErrValidation, i, item.Size)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item %d quantity must be at least 1", ErrValidation, i)
		}
		if item.Price < 0 {
			return fmt.Errorf("%w: item %d price must not be negative", ErrValidation, i)
		}
		// an empty ice type is a legacy row and reads as common
		switch item.IceType {
		case "", domain.IceCommon, domain.IceSeparate, domain.IceNone:
		default:
			return fmt.Errorf("%w: item %d has invalid ice type %q", ErrValidation, i, item.IceType)
		}
		for j, topping := range item.Toppings {
			if topping.Price < 0 || topping.Quantity < 1 {
				return fmt.Errorf("%w: item %d topping %d needs price >= 0 and quantity >= 1", ErrValidation, i, j)
			}
		}
	}
	if order.TotalAmount < 0 || order.CustomerPaid < 0 || order.Change < 0 {
		return fmt.Errorf("%w: money fields must not be negative", ErrValidation)
	}
	switch order.PaymentMethod {
	case "", domain.PaymentCash, domain.PaymentBankTransfer, domain.PaymentExactAmount:
	default:
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, order.PaymentMethod)
	}
	switch order.Status {
	case "", domain.OrderStatusCompleted, domain.OrderStatusHeld:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrValidation, order.Status)
	}
	return nil
}
