package domain

import "time"

const (
	SizeSmall = "small"
	SizeLarge = "large"
)

const (
	IceCommon   = "common"
	IceSeparate = "separate"
	IceNone     = "none"
)

const (
	PaymentCash         = "cash"
	PaymentBankTransfer = "bank_transfer"
	PaymentExactAmount  = "exact_amount"
)

// An empty Status on a stored order means the record predates the status
// field and is treated as completed.
const (
	OrderStatusCompleted = "completed"
	OrderStatusHeld      = "held"
)

type OrderTopping struct {
	ToppingID   string `json:"toppingId,omitempty"`
	ToppingName string `json:"toppingName"`
	Price       int64  `json:"price"`
	Quantity    int    `json:"quantity"`
}

type OrderItem struct {
	ProductID   string         `json:"productId"`
	ProductName string         `json:"productName"`
	Size        string         `json:"size"`
	Quantity    int            `json:"quantity"`
	Price       int64          `json:"price"`
	IceType     string         `json:"iceType"`
	Note        string         `json:"note"`
	Toppings    []OrderTopping `json:"toppings"`
}

type Order struct {
	ID            string      `json:"id"`
	Items         []OrderItem `json:"items"`
	TotalAmount   int64       `json:"totalAmount"`
	CustomerPaid  int64       `json:"customerPaid"`
	Change        int64       `json:"change"`
	PaymentMethod string      `json:"paymentMethod,omitempty"`
	Status        string      `json:"status,omitempty"`
	BusinessDate  *time.Time  `json:"orderDate,omitempty"`
	HeldAt        *time.Time  `json:"heldAt,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// IsHeld reports whether the order is parked and excluded from revenue.
func (o Order) IsHeld() bool {
	return o.Status == OrderStatusHeld
}

type OrderCreateRequest struct {
	Items         []OrderItem `json:"items"`
	PaymentMethod string      `json:"paymentMethod"`
	CustomerPaid  int64       `json:"customerPaid"`
	Change        int64       `json:"change"`
	OrderDate     string      `json:"orderDate,omitempty"`
	Status        string      `json:"status,omitempty"`
}

type OrderUpdateRequest struct {
	Items []OrderItem `json:"items"`
}

type OrderCompleteRequest struct {
	Items         []OrderItem `json:"items,omitempty"`
	PaymentMethod string      `json:"paymentMethod"`
	CustomerPaid  int64       `json:"customerPaid"`
	Change        int64       `json:"change"`
}

// Shift is one calendar day's cash drawer reconciliation. Only StartAmount
// is operator-entered; every other money field is re-derived from orders.
type Shift struct {
	ID                 string    `json:"id"`
	Date               time.Time `json:"date"`
	StartAmount        int64     `json:"startAmount"`
	CashAmount         int64     `json:"cashAmount"`
	BankTransferAmount int64     `json:"bankTransferAmount"`
	EndAmount          int64     `json:"endAmount"`
	NetAmount          int64     `json:"netAmount"`
	Orders             []string  `json:"orders"`
	Version            int64     `json:"version"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type StartAmountRequest struct {
	StartAmount *int64 `json:"startAmount"`
}

type ProductStat struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	Revenue     int64  `json:"revenue"`
	Orders      int    `json:"orders"`
}

type BreakdownStat struct {
	Label   string `json:"label"`
	Revenue int64  `json:"revenue"`
	Orders  int    `json:"orders"`
}

type PeriodReport struct {
	Period               string          `json:"period"`
	Key                  string          `json:"key"`
	StartDate            time.Time       `json:"startDate"`
	EndDate              time.Time       `json:"endDate"`
	TotalRevenue         int64           `json:"totalRevenue"`
	TotalOrders          int             `json:"totalOrders"`
	TotalItems           int             `json:"totalItems"`
	CashAmount           int64           `json:"cashAmount"`
	BankTransferAmount   int64           `json:"bankTransferAmount"`
	TopProducts          []ProductStat   `json:"topProducts"`
	PreviousRevenue      int64           `json:"previousRevenue"`
	RevenueChange        int64           `json:"revenueChange"`
	RevenueChangePercent float64         `json:"revenueChangePercent"`
	Breakdown            []BreakdownStat `json:"breakdown,omitempty"`
	Orders               []Order         `json:"orders,omitempty"`
}

type HourStat struct {
	Hour    int   `json:"hour"`
	Revenue int64 `json:"revenue"`
	Orders  int   `json:"orders"`
}

type PeakHoursReport struct {
	Date      string     `json:"date"`
	HourStats []HourStat `json:"hourStats"`
}

type TopProductsReport struct {
	Period      string        `json:"period"`
	StartDate   time.Time     `json:"startDate"`
	EndDate     time.Time     `json:"endDate"`
	TopProducts []ProductStat `json:"topProducts"`
}
