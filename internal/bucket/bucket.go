// Package bucket maps reporting periods onto inclusive instant ranges in the
// operator's location and decides which orders fall inside them.
//
// Every day-bucketed query in the system (shift ledger, order listing and
// analytics) goes through Contains so the business-date fallback rule is
// defined exactly once.
package bucket

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lunamatcha/backend/internal/domain"
)

type Kind string

const (
	Day     Kind = "day"
	Week    Kind = "week"
	Month   Kind = "month"
	Quarter Kind = "quarter"
	Year    Kind = "year"
)

const DateLayout = "2006-01-02"

var ErrInvalidReference = errors.New("invalid period reference")

// Range is inclusive on both ends: Start is local midnight of the first day,
// End is 23:59:59.999 local of the last day.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r Range) Includes(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

type Resolver struct {
	loc *time.Location
}

func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{loc: loc}
}

func (r *Resolver) Location() *time.Location {
	return r.loc
}

// StartOfDay truncates t to midnight of its calendar day in the resolver's
// location.
func (r *Resolver) StartOfDay(t time.Time) time.Time {
	local := t.In(r.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc)
}

func (r *Resolver) endOfDay(t time.Time) time.Time {
	local := t.In(r.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, int(999*time.Millisecond), r.loc)
}

func (r *Resolver) DayRange(t time.Time) Range {
	return Range{Start: r.StartOfDay(t), End: r.endOfDay(t)}
}

// SpanRange covers whole days from the day of from to the day of to.
func (r *Resolver) SpanRange(from time.Time, to time.Time) Range {
	return Range{Start: r.StartOfDay(from), End: r.endOfDay(to)}
}

// ParseDay reads a calendar date in the resolver's location. A full RFC 3339
// timestamp is accepted too and truncated to its local day.
func (r *Resolver) ParseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrInvalidReference)
	}
	if day, err := time.ParseInLocation(DateLayout, raw, r.loc); err == nil {
		return day, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return r.StartOfDay(ts), nil
	}
	return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidReference, raw)
}

// RangeOf returns the bucket of the given kind that contains t.
func (r *Resolver) RangeOf(kind Kind, t time.Time) Range {
	day := r.StartOfDay(t)
	switch kind {
	case Week:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return Range{Start: start, End: r.endOfDay(start.AddDate(0, 0, 6))}
	case Month:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, r.loc)
		return Range{Start: start, End: r.endOfDay(start.AddDate(0, 1, -1))}
	case Quarter:
		firstMonth := time.Month((int(day.Month())-1)/3*3 + 1)
		start := time.Date(day.Year(), firstMonth, 1, 0, 0, 0, 0, r.loc)
		return Range{Start: start, End: r.endOfDay(start.AddDate(0, 3, -1))}
	case Year:
		start := time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, r.loc)
		return Range{Start: start, End: r.endOfDay(time.Date(day.Year(), time.December, 31, 0, 0, 0, 0, r.loc))}
	default:
		return r.DayRange(day)
	}
}

// Previous returns the bucket of the same kind immediately before rg. The
// instant just before rg.Start always lies in the previous bucket, which
// handles month, quarter and year rollover.
func (r *Resolver) Previous(kind Kind, rg Range) Range {
	return r.RangeOf(kind, rg.Start.Add(-time.Nanosecond))
}

// Resolve parses a period reference: day "2024-03-15", week "2024-W11" (ISO
// week), month "2024-03", quarter "2024-Q1", year "2024".
func (r *Resolver) Resolve(kind Kind, ref string) (Range, error) {
	ref = strings.TrimSpace(ref)
	switch kind {
	case Day:
		day, err := r.ParseDay(ref)
		if err != nil {
			return Range{}, err
		}
		return r.DayRange(day), nil
	case Week:
		yearPart, weekPart, ok := strings.Cut(strings.ToUpper(ref), "-W")
		if !ok {
			return Range{}, fmt.Errorf("%w: week %q", ErrInvalidReference, ref)
		}
		year, err1 := strconv.Atoi(yearPart)
		week, err2 := strconv.Atoi(weekPart)
		if err1 != nil || err2 != nil || week < 1 || week > 53 {
			return Range{}, fmt.Errorf("%w: week %q", ErrInvalidReference, ref)
		}
		// Jan 4 is always in ISO week 1.
		jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, r.loc)
		start := r.RangeOf(Week, jan4).Start.AddDate(0, 0, (week-1)*7)
		if y, w := start.ISOWeek(); y != year || w != week {
			return Range{}, fmt.Errorf("%w: week %q does not exist", ErrInvalidReference, ref)
		}
		return r.RangeOf(Week, start), nil
	case Month:
		month, err := time.ParseInLocation("2006-01", ref, r.loc)
		if err != nil {
			return Range{}, fmt.Errorf("%w: month %q", ErrInvalidReference, ref)
		}
		return r.RangeOf(Month, month), nil
	case Quarter:
		yearPart, quarterPart, ok := strings.Cut(strings.ToUpper(ref), "-Q")
		if !ok {
			return Range{}, fmt.Errorf("%w: quarter %q", ErrInvalidReference, ref)
		}
		year, err1 := strconv.Atoi(yearPart)
		quarter, err2 := strconv.Atoi(quarterPart)
		if err1 != nil || err2 != nil || quarter < 1 || quarter > 4 || year < 1 {
			return Range{}, fmt.Errorf("%w: quarter %q", ErrInvalidReference, ref)
		}
		return r.RangeOf(Quarter, time.Date(year, time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, r.loc)), nil
	case Year:
		year, err := strconv.Atoi(ref)
		if err != nil || year < 1 || year > 9999 {
			return Range{}, fmt.Errorf("%w: year %q", ErrInvalidReference, ref)
		}
		return r.RangeOf(Year, time.Date(year, time.January, 1, 0, 0, 0, 0, r.loc)), nil
	}
	return Range{}, fmt.Errorf("%w: unknown period %q", ErrInvalidReference, kind)
}

// Key renders the canonical reference string of a bucket.
func Key(kind Kind, rg Range) string {
	start := rg.Start
	switch kind {
	case Week:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case Month:
		return start.Format("2006-01")
	case Quarter:
		return fmt.Sprintf("%d-Q%d", start.Year(), (int(start.Month())-1)/3+1)
	case Year:
		return strconv.Itoa(start.Year())
	default:
		return start.Format(DateLayout)
	}
}

// BusinessDay is the local calendar day an order is attributed to: its
// business date when set, otherwise the day it was created.
func (r *Resolver) BusinessDay(o domain.Order) time.Time {
	if o.BusinessDate != nil {
		return r.StartOfDay(*o.BusinessDate)
	}
	return r.StartOfDay(o.CreatedAt)
}

// Contains is the order-to-bucket membership rule. An order with a business
// date belongs where that date falls; only an order without one falls back
// to its creation timestamp. Never both.
func Contains(rg Range, o domain.Order) bool {
	if o.BusinessDate != nil {
		return rg.Includes(*o.BusinessDate)
	}
	return rg.Includes(o.CreatedAt)
}

// IsSettled reports whether an order counts as a realized sale: completed,
// or a legacy record with no status at all. Held orders never count.
func IsSettled(o domain.Order) bool {
	return o.Status == domain.OrderStatusCompleted || o.Status == ""
}
