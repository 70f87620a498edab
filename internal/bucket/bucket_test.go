package bucket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunamatcha/backend/internal/domain"
)

var ict = time.FixedZone("ICT", 7*3600)

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, ict)
}

func TestDayRangeIsInclusiveLocal(t *testing.T) {
	r := NewResolver(ict)

	rg := r.DayRange(at(2024, time.March, 15, 14, 30))

	assert.Equal(t, at(2024, time.March, 15, 0, 0), rg.Start)
	assert.Equal(t, time.Date(2024, time.March, 15, 23, 59, 59, int(999*time.Millisecond), ict), rg.End)
	assert.True(t, rg.Includes(rg.Start))
	assert.True(t, rg.Includes(rg.End))
	assert.False(t, rg.Includes(rg.End.Add(time.Millisecond)))
}

func TestStartOfDayUsesResolverLocation(t *testing.T) {
	r := NewResolver(ict)

	// 20:00 UTC on the 14th is already the 15th in ICT.
	day := r.StartOfDay(time.Date(2024, time.March, 14, 20, 0, 0, 0, time.UTC))

	assert.Equal(t, at(2024, time.March, 15, 0, 0), day)
}

func TestParseDay(t *testing.T) {
	r := NewResolver(ict)

	day, err := r.ParseDay("2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.March, 15, 0, 0), day)

	day, err = r.ParseDay("2024-03-14T18:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.March, 15, 0, 0), day)

	_, err = r.ParseDay("15/03/2024")
	assert.ErrorIs(t, err, ErrInvalidReference)
	_, err = r.ParseDay("")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestResolvePeriods(t *testing.T) {
	r := NewResolver(ict)

	tests := []struct {
		kind      Kind
		ref       string
		wantStart time.Time
		wantLast  time.Time
	}{
		{Day, "2024-03-15", at(2024, time.March, 15, 0, 0), at(2024, time.March, 15, 0, 0)},
		{Week, "2024-W11", at(2024, time.March, 11, 0, 0), at(2024, time.March, 17, 0, 0)},
		{Week, "2021-W01", at(2021, time.January, 4, 0, 0), at(2021, time.January, 10, 0, 0)},
		{Week, "2020-W53", at(2020, time.December, 28, 0, 0), at(2021, time.January, 3, 0, 0)},
		{Month, "2024-02", at(2024, time.February, 1, 0, 0), at(2024, time.February, 29, 0, 0)},
		{Quarter, "2024-Q4", at(2024, time.October, 1, 0, 0), at(2024, time.December, 31, 0, 0)},
		{Year, "2023", at(2023, time.January, 1, 0, 0), at(2023, time.December, 31, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+"_"+tt.ref, func(t *testing.T) {
			rg, err := r.Resolve(tt.kind, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, rg.Start)
			assert.Equal(t, r.DayRange(tt.wantLast).End, rg.End)
			assert.Equal(t, tt.ref, Key(tt.kind, rg))
		})
	}
}

func TestResolveRejectsBadReferences(t *testing.T) {
	r := NewResolver(ict)

	for _, tc := range []struct {
		kind Kind
		ref  string
	}{
		{Week, "2024-11"},
		{Week, "2021-W53"},
		{Week, "2024-W00"},
		{Month, "2024-13"},
		{Quarter, "2024-Q5"},
		{Quarter, "2024"},
		{Year, "abcd"},
		{Kind("decade"), "2020"},
	} {
		_, err := r.Resolve(tc.kind, tc.ref)
		assert.ErrorIs(t, err, ErrInvalidReference, "%s %s", tc.kind, tc.ref)
	}
}

func TestPreviousHandlesBoundaries(t *testing.T) {
	r := NewResolver(ict)

	jan, err := r.Resolve(Month, "2024-01")
	require.NoError(t, err)
	assert.Equal(t, "2023-12", Key(Month, r.Previous(Month, jan)))

	q1, err := r.Resolve(Quarter, "2024-Q1")
	require.NoError(t, err)
	assert.Equal(t, "2023-Q4", Key(Quarter, r.Previous(Quarter, q1)))

	mar1, err := r.Resolve(Day, "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", Key(Day, r.Previous(Day, mar1)))

	w1, err := r.Resolve(Week, "2021-W01")
	require.NoError(t, err)
	assert.Equal(t, "2020-W53", Key(Week, r.Previous(Week, w1)))

	y, err := r.Resolve(Year, "2024")
	require.NoError(t, err)
	assert.Equal(t, "2023", Key(Year, r.Previous(Year, y)))
}

func TestContainsFallsBackToCreatedAtOnlyWithoutBusinessDate(t *testing.T) {
	r := NewResolver(ict)
	day := r.DayRange(at(2024, time.March, 15, 0, 0))
	businessDay := at(2024, time.March, 15, 0, 0)

	legacy := domain.Order{CreatedAt: at(2024, time.March, 15, 9, 0)}
	assert.True(t, Contains(day, legacy))

	backdated := domain.Order{BusinessDate: &businessDay, CreatedAt: at(2024, time.March, 16, 1, 0)}
	assert.True(t, Contains(day, backdated))

	otherDay := at(2024, time.March, 14, 0, 0)
	moved := domain.Order{BusinessDate: &otherDay, CreatedAt: at(2024, time.March, 15, 9, 0)}
	assert.False(t, Contains(day, moved), "createdAt must not be consulted when a business date exists")

	assert.Equal(t, businessDay, r.BusinessDay(backdated))
	assert.Equal(t, businessDay, r.BusinessDay(legacy))
}

func TestIsSettled(t *testing.T) {
	assert.True(t, IsSettled(domain.Order{Status: domain.OrderStatusCompleted}))
	assert.True(t, IsSettled(domain.Order{}))
	assert.False(t, IsSettled(domain.Order{Status: domain.OrderStatusHeld}))
}
