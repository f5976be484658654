package depreciation_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/asset-engine/depreciation"
)

func TestBuilder_Build(t *testing.T) {
	// GIVEN: A 120,000 asset on a 12 month straight line template
	// WHEN: Building its schedule
	// THEN: A Draft schedule with accumulated amounts 10,000 .. 120,000

	a := newAsset("A-1", "120000", straightLine12())
	s, err := depreciation.NewBuilder(2).Build(a, a.FinanceBooks[0], straightLine12())
	require.NoError(t, err)

	assert.Equal(t, depreciation.ScheduleDraft, s.Status)
	assert.Equal(t, a.Ref(), s.Parent)
	assert.Equal(t, testCompany, s.Company)
	assert.Equal(t, testBook, s.FinanceBook)
	assert.Equal(t, "SL 12 Months", s.TemplateName)
	require.Len(t, s.Rows, 12)

	seen := make(map[depreciation.RowID]bool)
	for i, r := range s.Rows {
		requireAmount(t, strconv.Itoa(10000*(i+1)), r.AccumulatedDepreciationAmount)
		assert.False(t, r.IsPosted())
		assert.False(t, seen[r.ID], "duplicate row id")
		seen[r.ID] = true
	}
	requireAmount(t, "120000", s.TotalDepreciation())
	requireAmount(t, "120000", s.Rows[11].AccumulatedDepreciationAmount)
}

func TestBuilder_Build_OpeningAccumulatedStartsTheRunningTotal(t *testing.T) {
	a := newAsset("A-1", "120000", straightLine12())
	a.IsExistingAsset = true
	a.OpeningAccumulatedDepreciation = dec("25000")

	s, err := depreciation.NewBuilder(2).Build(a, a.FinanceBooks[0], straightLine12())
	require.NoError(t, err)
	require.Len(t, s.Rows, 10)

	requireAmount(t, "5000", s.Rows[0].DepreciationAmount)
	requireAmount(t, "30000", s.Rows[0].AccumulatedDepreciationAmount)
	requireAmount(t, "120000", s.Rows[9].AccumulatedDepreciationAmount)
	requireAmount(t, "95000", sumRows(s.Rows))
}

func TestBuilder_Build_WrapsGeneratorErrors(t *testing.T) {
	a := newAsset("A-1", "120000", straightLine12())
	a.FinanceBooks[0].DepreciationPostingStartDate = a.AvailableForUseDate

	_, err := depreciation.NewBuilder(2).Build(a, a.FinanceBooks[0], straightLine12())
	require.Error(t, err)
	assert.ErrorIs(t, err, depreciation.ErrValidation)
	assert.Contains(t, err.Error(), "A-1")
}

func TestBuilder_Rebuild_KeepsPostedRows(t *testing.T) {
	// GIVEN: A schedule whose first three rows are posted
	// WHEN: Rebuilding with a 24 month life
	// THEN: The three rows come first unchanged (new IDs), the 90,000 left is
	//       spread over April 2024 .. December 2025

	a := newAsset("A-1", "120000", straightLine12())
	b := depreciation.NewBuilder(2)
	current, err := b.Build(a, a.FinanceBooks[0], straightLine12())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		current.Rows[i].PostingRef = depreciation.PostingID("P-" + strconv.Itoa(i))
	}

	extended := depreciation.ExtendLife(straightLine12(), 12)
	next, err := b.Rebuild(current, a, a.FinanceBooks[0], extended)
	require.NoError(t, err)

	require.Len(t, next.Rows, 24)
	assert.NotEqual(t, current.ID, next.ID)
	assert.Equal(t, extended.Name, next.TemplateName)
	for i := 0; i < 3; i++ {
		assert.Equal(t, current.Rows[i].ScheduleDate, next.Rows[i].ScheduleDate)
		requireAmount(t, current.Rows[i].DepreciationAmount.String(), next.Rows[i].DepreciationAmount)
		assert.Equal(t, current.Rows[i].PostingRef, next.Rows[i].PostingRef)
		assert.NotEqual(t, current.Rows[i].ID, next.Rows[i].ID)
	}

	assert.Equal(t, "2024-04-30", next.Rows[3].ScheduleDate.String())
	for _, r := range next.Rows[3:23] {
		requireAmount(t, "4285.71", r.DepreciationAmount)
	}
	last := next.Rows[23]
	assert.Equal(t, "2025-12-31", last.ScheduleDate.String())
	requireAmount(t, "4285.8", last.DepreciationAmount)
	requireAmount(t, "120000", last.AccumulatedDepreciationAmount)
}

func TestBuilder_Rebuild_WithoutPostedRowsIsABuild(t *testing.T) {
	a := newAsset("A-1", "120000", straightLine12())
	b := depreciation.NewBuilder(2)
	current, err := b.Build(a, a.FinanceBooks[0], straightLine12())
	require.NoError(t, err)

	next, err := b.Rebuild(current, a, a.FinanceBooks[0], depreciation.ExtendLife(straightLine12(), 12))
	require.NoError(t, err)
	require.Len(t, next.Rows, 24)
	requireAmount(t, "5000", next.Rows[0].DepreciationAmount)
}

func TestSchedule_DueRows(t *testing.T) {
	a := newAsset("A-1", "120000", straightLine12())
	s, err := depreciation.NewBuilder(2).Build(a, a.FinanceBooks[0], straightLine12())
	require.NoError(t, err)

	assert.Empty(t, s.DueRows(date("2024-01-30")))
	assert.Len(t, s.DueRows(date("2024-01-31")), 1)
	assert.Len(t, s.DueRows(date("2024-04-15")), 4)

	s.Rows[0].PostingRef = "P-1"
	due := s.DueRows(date("2024-04-15"))
	require.Len(t, due, 3)
	assert.Equal(t, s.Rows[1].ID, due[0].ID)
	assert.Equal(t, s.Rows[0].ID, s.LastPostedRow().ID)
	requireAmount(t, "10000", s.PostedDepreciation())
}
