package depreciation_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/asset-engine/depreciation"
)

// =============================================================================
// DRAFTS AND ACTIVATION
// =============================================================================

func TestLifecycle_CreateDraftSchedules(t *testing.T) {
	f := newFixture(t)
	a := newAsset("A-1", "120000", straightLine12())
	require.NoError(t, f.store.SaveAsset(f.ctx, a))

	created, err := f.lifecycle.CreateDraftSchedules(f.ctx, f.store, a)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, depreciation.ScheduleDraft, created[0].Status)
	assert.Len(t, created[0].Rows, 12)

	// WHEN: Creating drafts again while one is open
	// THEN: Rejected, the open schedule is not duplicated
	_, err = f.lifecycle.CreateDraftSchedules(f.ctx, f.store, a)
	assert.ErrorIs(t, err, depreciation.ErrActiveScheduleExists)

	all, err := f.store.ListSchedules(f.ctx, a.Ref())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLifecycle_CreateDraftSchedules_SkipsAssetsWithoutDepreciation(t *testing.T) {
	f := newFixture(t)
	a := newAsset("A-1", "120000", straightLine12())
	a.CalculateDepreciation = false

	created, err := f.lifecycle.CreateDraftSchedules(f.ctx, f.store, a)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestLifecycle_RebuildDrafts(t *testing.T) {
	// GIVEN: A draft asset with its draft schedule
	// WHEN: The gross amount is edited and drafts rebuilt
	// THEN: The old draft is gone and the new one reflects the edit

	f := newFixture(t)
	a := newAsset("A-1", "120000", straightLine12())
	first, err := f.lifecycle.CreateDraftSchedules(f.ctx, f.store, a)
	require.NoError(t, err)

	a.GrossPurchaseAmount = dec("60000")
	rebuilt, err := f.lifecycle.RebuildDrafts(f.ctx, f.store, a)
	require.NoError(t, err)
	require.Len(t, rebuilt, 1)
	requireAmount(t, "5000", rebuilt[0].Rows[0].DepreciationAmount)

	_, err = f.store.GetSchedule(f.ctx, first[0].ID)
	assert.True(t, depreciation.IsNotFound(err))
}

func TestLifecycle_ActivateSchedules(t *testing.T) {
	f := newFixture(t)
	a := newAsset("A-1", "120000", straightLine12())
	s := f.submit(t, a)

	assert.Equal(t, depreciation.ScheduleActive, s.Status)
	assert.Len(t, s.Rows, 12)

	// activating again is a no-op
	activated, err := f.lifecycle.ActivateSchedules(f.ctx, f.store, a)
	require.NoError(t, err)
	assert.Empty(t, activated)

	// RebuildDrafts refuses to touch an active schedule
	_, err = f.lifecycle.RebuildDrafts(f.ctx, f.store, a)
	assert.ErrorIs(t, err, depreciation.ErrInvalidTransition)
}

func TestLifecycle_OneActiveSchedulePerBook(t *testing.T) {
	f := newFixture(t)
	a := newAsset("A-1", "120000", straightLine12())
	s := f.submit(t, a)

	dup := s.Clone()
	dup.ID = "other"
	err := f.store.SaveSchedule(f.ctx, dup)
	assert.ErrorIs(t, err, depreciation.ErrActiveScheduleExists)
	assert.True(t, depreciation.IsConflict(err))
}

// =============================================================================
// SUPERSEDE
// =============================================================================

func TestLifecycle_Supersede_ReversesPostings(t *testing.T) {
	// GIVEN: An active schedule with three posted rows
	// WHEN: The salvage value changes and the schedule is superseded
	// THEN: The old schedule is cancelled with the cause, its postings are
	//       cancelled, the book value is restored and a fresh schedule is active

	f := newFixture(t)
	a := newAsset("A-1", "120000", straightLine12())
	old := f.submit(t, a)

	_, err := f.engine.PostDepreciationEntries(f.ctx, old.ID, date("2024-03-31"))
	require.NoError(t, err)
	requireAmount(t, "90000", f.asset(t, "A-1").AssetValue)

	var replacement *depreciation.Schedule
	err = f.store.WithTx(f.ctx, func(st depreciation.Store) error {
		asset, err := st.GetAsset(f.ctx, "A-1")
		if err != nil {
			return err
		}
		fb := asset.FinanceBooks[0]
		fb.SalvageValue = dec("12000")
		asset.SetBook(fb)
		replacement, err = f.lifecycle.Supersede(f.ctx, st, asset, testBook, "salvage value changed")
		return err
	})
	require.NoError(t, err)

	cancelled, err := f.store.GetSchedule(f.ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, depreciation.ScheduleCancelled, cancelled.Status)
	assert.Equal(t, "salvage value changed", cancelled.Note)
	assert.Equal(t, replacement.ID, cancelled.SupersededBy)
	assert.Empty(t, cancelled.PostedRows())

	postings, err := f.store.ListPostings(f.ctx, old.ID)
	require.NoError(t, err)
	require.Len(t, postings, 3)
	for _, p := range postings {
		assert.Equal(t, depreciation.PostingCancelled, p.Status)
		assert.Equal(t, "salvage value changed", p.CancelReason)
	}

	active := f.active(t, a.Ref(), testBook)
	assert.Equal(t, replacement.ID, active.ID)
	require.Len(t, active.Rows, 12)
	requireAmount(t, "9000", active.Rows[0].DepreciationAmount)
	assert.Empty(t, active.PostedRows())

	asset := f.asset(t, "A-1")
	requireAmount(t, "120000", asset.AssetValue)
	assert.Equal(t, depreciation.StatusSubmitted, asset.Status)

	activities, err := f.store.ListActivities(f.ctx, "A-1")
	require.NoError(t, err)
	assert.Contains(t, activityTypes(activities), depreciation.ActivityScheduleChange)
}

// =============================================================================
// LIFE CHANGES
// =============================================================================

func TestLifecycle_ApplyLifeChange_TransfersPostings(t *testing.T) {
	// GIVEN: Three posted rows on a 12 month schedule
	// WHEN: The life is extended by 12 months
	// THEN: 24 rows; the first three keep their postings, which now point at
	//       the replacement; the tail spreads the remaining 90,000

	f := newFixture(t)
	a := newAsset("A-1", "120000", straightLine12())
	old := f.submit(t, a)
	res, err := f.engine.PostDepreciationEntries(f.ctx, old.ID, date("2024-03-31"))
	require.NoError(t, err)
	require.Len(t, res.Postings, 3)

	extended := depreciation.ExtendLife(straightLine12(), 12)
	replacement := applyLifeChange(t, f, "A-1", extended, "repair R-1 completed")

	require.Len(t, replacement.Rows, 24)
	assert.Equal(t, extended.Name, replacement.TemplateName)
	requireAmount(t, "4285.71", replacement.Rows[3].DepreciationAmount)
	requireAmount(t, "4285.8", replacement.Rows[23].DepreciationAmount)
	requireAmount(t, "120000", replacement.Rows[23].AccumulatedDepreciationAmount)
	assert.Equal(t, "2025-12-31", replacement.Rows[23].ScheduleDate.String())

	transferred, err := f.store.ListPostings(f.ctx, replacement.ID)
	require.NoError(t, err)
	require.Len(t, transferred, 3)
	for i, p := range transferred {
		row := replacement.Rows[i]
		assert.Equal(t, row.ID, p.RowID)
		assert.Equal(t, p.ID, row.PostingRef)
		assert.Equal(t, depreciation.PostingKey(replacement.ID, row.ID), p.IdempotencyKey)
		assert.Equal(t, depreciation.PostingSubmitted, p.Status)
	}

	cancelled, err := f.store.GetSchedule(f.ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, depreciation.ScheduleCancelled, cancelled.Status)
	assert.Equal(t, "repair R-1 completed", cancelled.Note)
	assert.Empty(t, cancelled.PostedRows())

	asset := f.asset(t, "A-1")
	requireAmount(t, "90000", asset.AssetValue)
	assert.Equal(t, extended.Name, asset.FinanceBooks[0].TemplateName)
	_, err = f.store.GetTemplate(f.ctx, extended.Name)
	require.NoError(t, err)

	// WHEN: The change is reverted to the original template
	// THEN: Back to 12 rows of 10,000 with the same three postings
	original, err := f.store.GetTemplate(f.ctx, depreciation.OriginalTemplateName(extended))
	require.NoError(t, err)
	reverted := applyLifeChange(t, f, "A-1", original, "repair R-1 cancelled")

	require.Len(t, reverted.Rows, 12)
	for _, r := range reverted.Rows {
		requireAmount(t, "10000", r.DepreciationAmount)
	}
	assert.Len(t, reverted.PostedRows(), 3)
	requireAmount(t, "90000", f.asset(t, "A-1").AssetValue)

	// a sweep continues from the fourth row
	report, err := f.engine.PostDue(f.ctx, date("2024-04-30"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Postings)
	requireAmount(t, "80000", f.asset(t, "A-1").AssetValue)
}

func TestLifecycle_ApplyLifeChange_DraftAssetRebuildsDrafts(t *testing.T) {
	f := newFixture(t)
	a := newAsset("A-1", "120000", straightLine12())
	require.NoError(t, f.store.SaveAsset(f.ctx, a))
	_, err := f.lifecycle.CreateDraftSchedules(f.ctx, f.store, a)
	require.NoError(t, err)

	replacement, err := f.lifecycle.ApplyLifeChange(f.ctx, f.store, a, testBook, depreciation.ExtendLife(straightLine12(), 12), "life changed")
	require.NoError(t, err)
	assert.Nil(t, replacement)

	all, err := f.store.ListSchedules(f.ctx, a.Ref())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, depreciation.ScheduleDraft, all[0].Status)
	assert.Len(t, all[0].Rows, 24)
}

func applyLifeChange(t *testing.T, f *fixture, id string, tmpl depreciation.Template, cause string) *depreciation.Schedule {
	t.Helper()
	var replacement *depreciation.Schedule
	err := f.store.WithTx(f.ctx, func(st depreciation.Store) error {
		asset, err := st.GetAsset(f.ctx, depreciation.AssetID(id))
		if err != nil {
			return err
		}
		replacement, err = f.lifecycle.ApplyLifeChange(f.ctx, st, asset, testBook, tmpl, cause)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, replacement)
	return replacement
}

// =============================================================================
// CANCELLATION AND FINANCE BOOK SYNC
// =============================================================================

func TestLifecycle_CancelSchedules(t *testing.T) {
	f := newFixture(t)
	a := newAsset("A-1", "120000", straightLine12())
	s := f.submit(t, a)
	_, err := f.engine.PostDepreciationEntries(f.ctx, s.ID, date("2024-02-29"))
	require.NoError(t, err)

	err = f.store.WithTx(f.ctx, func(st depreciation.Store) error {
		asset, err := st.GetAsset(f.ctx, "A-1")
		if err != nil {
			return err
		}
		asset.DocStatus = depreciation.DocCancelled
		return f.lifecycle.CancelSchedules(f.ctx, st, asset, "asset cancelled")
	})
	require.NoError(t, err)

	got, err := f.store.GetSchedule(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, depreciation.ScheduleCancelled, got.Status)

	postings, err := f.store.ListPostings(f.ctx, s.ID)
	require.NoError(t, err)
	for _, p := range postings {
		assert.Equal(t, depreciation.PostingCancelled, p.Status)
	}

	asset := f.asset(t, "A-1")
	assert.Equal(t, depreciation.StatusCancelled, asset.Status)
	requireAmount(t, "120000", asset.FinanceBooks[0].AssetValue)

	ids, err := f.store.ListDueSchedules(f.ctx, date("2024-12-31"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestLifecycle_SyncFinanceBooks(t *testing.T) {
	// GIVEN: A submitted asset with one finance book
	// WHEN: A tax book is added and the main book removed
	// THEN: The tax book gets an active schedule, the main book's is cancelled

	f := newFixture(t)
	a := newAsset("A-1", "120000", straightLine12())
	mainSchedule := f.submit(t, a)

	err := f.store.WithTx(f.ctx, func(st depreciation.Store) error {
		asset, err := st.GetAsset(f.ctx, "A-1")
		if err != nil {
			return err
		}
		previous := append([]depreciation.FinanceBookEntry(nil), asset.FinanceBooks...)
		asset.FinanceBooks = []depreciation.FinanceBookEntry{{
			FinanceBook:                  "Tax Book",
			TemplateName:                 ddb5Years().Name,
			SalvageValue:                 dec("10000"),
			DepreciationPostingStartDate: date("2024-12-31"),
			AssetValue:                   dec("120000"),
		}}
		return f.lifecycle.SyncFinanceBooks(f.ctx, st, asset, previous)
	})
	require.NoError(t, err)

	tax := f.active(t, a.Ref(), "Tax Book")
	require.Len(t, tax.Rows, 5)
	requireAmount(t, "48000", tax.Rows[0].DepreciationAmount)

	cancelled, err := f.store.GetSchedule(f.ctx, mainSchedule.ID)
	require.NoError(t, err)
	assert.Equal(t, depreciation.ScheduleCancelled, cancelled.Status)
	assert.Equal(t, "finance book Main Book removed", cancelled.Note)
}

func TestLifecycle_SyncFinanceBooks_ChangedSettingsSupersede(t *testing.T) {
	f := newFixture(t)
	a := newAsset("A-1", "120000", straightLine12())
	old := f.submit(t, a)

	err := f.store.WithTx(f.ctx, func(st depreciation.Store) error {
		asset, err := st.GetAsset(f.ctx, "A-1")
		if err != nil {
			return err
		}
		previous := append([]depreciation.FinanceBookEntry(nil), asset.FinanceBooks...)
		asset.FinanceBooks[0].DepreciationPostingStartDate = date("2024-03-31")
		return f.lifecycle.SyncFinanceBooks(f.ctx, st, asset, previous)
	})
	require.NoError(t, err)

	s := f.active(t, a.Ref(), testBook)
	assert.NotEqual(t, old.ID, s.ID)
	// January to March land on the first row
	require.Len(t, s.Rows, 10)
	assert.Equal(t, "2024-03-31", s.Rows[0].ScheduleDate.String())
	requireAmount(t, "29513.51", s.Rows[0].DepreciationAmount)
	requireAmount(t, "10054.05", s.Rows[1].DepreciationAmount)
	requireAmount(t, "120000", sumRows(s.Rows))
}

func TestLifecycle_TransitionFailureRollsBack(t *testing.T) {
	// GIVEN: A supersede whose template is missing
	// THEN: The transaction fails and the old schedule stays active

	f := newFixture(t)
	a := newAsset("A-1", "120000", straightLine12())
	old := f.submit(t, a)

	err := f.store.WithTx(f.ctx, func(st depreciation.Store) error {
		asset, err := st.GetAsset(f.ctx, "A-1")
		if err != nil {
			return err
		}
		fb := asset.FinanceBooks[0]
		fb.TemplateName = "does not exist"
		asset.SetBook(fb)
		_, err = f.lifecycle.Supersede(f.ctx, st, asset, testBook, "template changed")
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, depreciation.ErrNotFound))

	assert.Equal(t, old.ID, f.active(t, a.Ref(), testBook).ID)
}

func activityTypes(list []depreciation.Activity) []depreciation.ActivityType {
	out := make([]depreciation.ActivityType, len(list))
	for i, a := range list {
		out[i] = a.Type
	}
	return out
}
