// Package pricing turns order lines into money. It is the only place order
// totals are computed; create, update and completion all call Total.
package pricing

import "lunamatcha/backend/internal/domain"

// Total sums LineTotal over items. Missing or negative numbers count as zero,
// so a malformed payload undercounts instead of failing.
func Total(items []domain.OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += LineTotal(item)
	}
	return total
}

// LineTotal is price*qty plus every topping's price*toppingQty, multiplied by
// the line quantity.
func LineTotal(item domain.OrderItem) int64 {
	qty := nonNegative(int64(item.Quantity))
	var toppings int64
	for _, topping := range item.Toppings {
		toppings += nonNegative(topping.Price) * toppingQuantity(topping.Quantity)
	}
	return nonNegative(item.Price)*qty + toppings*qty
}

type Payment struct {
	Method       string
	CustomerPaid int64
	Change       int64
}

// ApplyPayment derives customerPaid and change from the payment method.
// Cash keeps the caller's values; exact_amount pays the total with no change;
// bank_transfer moves no cash at all.
func ApplyPayment(method string, total int64, customerPaid int64, change int64) Payment {
	if method == "" {
		method = domain.PaymentCash
	}
	switch method {
	case domain.PaymentExactAmount:
		return Payment{Method: method, CustomerPaid: total, Change: 0}
	case domain.PaymentBankTransfer:
		return Payment{Method: method, CustomerPaid: 0, Change: 0}
	default:
		return Payment{Method: method, CustomerPaid: customerPaid, Change: change}
	}
}

// IsKnownMethod reports whether method is one of the accepted payment methods.
func IsKnownMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentBankTransfer, domain.PaymentExactAmount:
		return true
	}
	return false
}

// IsCashChannel reports whether an order paid with method lands in the cash
// drawer. Orders saved before the payment method existed were cash sales.
func IsCashChannel(method string) bool {
	return method == domain.PaymentCash || method == domain.PaymentExactAmount || method == ""
}

func IsBankTransfer(method string) bool {
	return method == domain.PaymentBankTransfer
}

// toppingQuantity applies the data-model default of one when a topping
// quantity was never filled in.
func toppingQuantity(q int) int64 {
	if q <= 0 {
		return 1
	}
	return int64(q)
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
