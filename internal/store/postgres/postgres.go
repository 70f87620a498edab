package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"lunamatcha/backend/internal/bucket"
	"lunamatcha/backend/internal/domain"
	"lunamatcha/backend/internal/store"
	"lunamatcha/backend/internal/xid"
)

type Store struct {
	db  *sql.DB
	loc *time.Location
}

// New opens the pool and pings it. DATE columns are read back as midnight in
// loc, the same location the bucket resolver uses.
func New(ctx context.Context, databaseURL string, loc *time.Location) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if loc == nil {
		loc = time.Local
	}
	return &Store{db: db, loc: loc}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const orderColumns = `id, items, total_amount, customer_paid, change_amount, payment_method, status, business_date, held_at, created_at, updated_at`

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if err := store.ValidateOrder(order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, order.ID, items, order.TotalAmount, order.CustomerPaid, order.Change,
		nullIfEmpty(order.PaymentMethod), nullIfEmpty(order.Status), s.nullDate(order.BusinessDate),
		nullTime(order.HeldAt), order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	return s.GetOrder(ctx, order.ID)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := s.scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *Store) UpdateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if err := store.ValidateOrder(order); err != nil {
		return nil, err
	}
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET items = $2, total_amount = $3, customer_paid = $4, change_amount = $5,
		    payment_method = $6, status = $7, business_date = $8, held_at = $9, updated_at = now()
		WHERE id = $1
	`, order.ID, items, order.TotalAmount, order.CustomerPaid, order.Change,
		nullIfEmpty(order.PaymentMethod), nullIfEmpty(order.Status), s.nullDate(order.BusinessDate),
		nullTime(order.HeldAt))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetOrder(ctx, order.ID)
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListOrders pushes the bucket rule into SQL so indexes narrow the scan, then
// re-applies filter.Matches so the result is identical to the memory store.
func (s *Store) ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE true`
	args := make([]any, 0, 4)

	if filter.Range != nil {
		args = append(args,
			filter.Range.Start.In(s.loc).Format(bucket.DateLayout),
			filter.Range.End.In(s.loc).Format(bucket.DateLayout),
			filter.Range.Start,
			filter.Range.End,
		)
		query += ` AND ((business_date IS NOT NULL AND business_date BETWEEN $1::date AND $2::date)
			OR (business_date IS NULL AND created_at BETWEEN $3 AND $4))`
	}
	if filter.SettledOnly {
		query += ` AND (status IS NULL OR status = '` + domain.OrderStatusCompleted + `')`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 64)
	for rows.Next() {
		order, err := s.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		if !filter.Matches(*order) {
			continue
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) ListHeldOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1
		ORDER BY COALESCE(held_at, updated_at) DESC, id DESC
		LIMIT $2
	`, domain.OrderStatusHeld, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := s.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

const shiftColumns = `id, shift_date, start_amount, cash_amount, bank_transfer_amount, end_amount, net_amount, order_ids, version, created_at, updated_at`

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.Date.IsZero() {
		return nil, store.ErrValidation
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	orderIDs, err := marshalIDs(shift.Orders)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO shifts (id, shift_date, start_amount, cash_amount, bank_transfer_amount, end_amount, net_amount, order_ids, version, created_at, updated_at)
		VALUES ($1,$2::date,$3,$4,$5,$6,$7,$8,1,now(),now())
		RETURNING `+shiftColumns,
		shift.ID, s.dateParam(shift.Date), shift.StartAmount, shift.CashAmount, shift.BankTransferAmount,
		shift.EndAmount, shift.NetAmount, orderIDs)
	created, err := s.scanShift(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) GetShiftByDate(ctx context.Context, date time.Time) (*domain.Shift, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE shift_date = $1::date`, s.dateParam(date))
	return s.oneShift(row)
}

func (s *Store) GetShiftByID(ctx context.Context, id string) (*domain.Shift, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id)
	return s.oneShift(row)
}

func (s *Store) SaveShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	orderIDs, err := marshalIDs(shift.Orders)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE shifts
		SET start_amount = $3, cash_amount = $4, bank_transfer_amount = $5, end_amount = $6,
		    net_amount = $7, order_ids = $8, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+shiftColumns,
		shift.ID, shift.Version, shift.StartAmount, shift.CashAmount, shift.BankTransferAmount,
		shift.EndAmount, shift.NetAmount, orderIDs)
	saved, err := s.scanShift(row)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM shifts WHERE id = $1)`, shift.ID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrVersionConflict
}

func (s *Store) ListShifts(ctx context.Context, from *time.Time, to *time.Time) ([]domain.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE true`
	args := make([]any, 0, 2)
	if from != nil {
		args = append(args, s.dateParam(*from))
		query += fmt.Sprintf(` AND shift_date >= $%d::date`, len(args))
	}
	if to != nil {
		args = append(args, s.dateParam(*to))
		query += fmt.Sprintf(` AND shift_date <= $%d::date`, len(args))
	}
	query += ` ORDER BY shift_date DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]domain.Shift, 0, 32)
	for rows.Next() {
		shift, err := s.scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, *shift)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shifts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order         domain.Order
		items         []byte
		totalAmount   sql.NullInt64
		paymentMethod sql.NullString
		status        sql.NullString
		businessDate  sql.NullTime
		heldAt        sql.NullTime
	)
	if err := row.Scan(&order.ID, &items, &totalAmount, &order.CustomerPaid, &order.Change,
		&paymentMethod, &status, &businessDate, &heldAt, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &order.Items); err != nil {
			return nil, fmt.Errorf("decode order items %s: %w", order.ID, err)
		}
	}
	order.TotalAmount = totalAmount.Int64
	order.PaymentMethod = paymentMethod.String
	order.Status = status.String
	if businessDate.Valid {
		day := s.localDate(businessDate.Time)
		order.BusinessDate = &day
	}
	if heldAt.Valid {
		t := heldAt.Time.In(s.loc)
		order.HeldAt = &t
	}
	order.CreatedAt = order.CreatedAt.In(s.loc)
	order.UpdatedAt = order.UpdatedAt.In(s.loc)
	return &order, nil
}

func (s *Store) scanShift(row rowScanner) (*domain.Shift, error) {
	var (
		shift    domain.Shift
		date     time.Time
		orderIDs []byte
	)
	if err := row.Scan(&shift.ID, &date, &shift.StartAmount, &shift.CashAmount, &shift.BankTransferAmount,
		&shift.EndAmount, &shift.NetAmount, &orderIDs, &shift.Version, &shift.CreatedAt, &shift.UpdatedAt); err != nil {
		return nil, err
	}
	shift.Date = s.localDate(date)
	shift.Orders = []string{}
	if len(orderIDs) > 0 {
		if err := json.Unmarshal(orderIDs, &shift.Orders); err != nil {
			return nil, fmt.Errorf("decode shift orders %s: %w", shift.ID, err)
		}
	}
	shift.CreatedAt = shift.CreatedAt.In(s.loc)
	shift.UpdatedAt = shift.UpdatedAt.In(s.loc)
	return &shift, nil
}

func (s *Store) oneShift(row *sql.Row) (*domain.Shift, error) {
	shift, err := s.scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return shift, nil
}

// localDate turns a DATE value (decoded by pgx as UTC midnight) into midnight
// of the same calendar day in the store's location.
func (s *Store) localDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

func (s *Store) dateParam(t time.Time) string {
	return t.In(s.loc).Format(bucket.DateLayout)
}

func (s *Store) nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return s.dateParam(*val)
}

func marshalIDs(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(ids)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
