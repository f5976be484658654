package depreciation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/asset-engine/depreciation"
)

func TestResolveDepreciationAccounts_CompanyDefaults(t *testing.T) {
	f := newFixture(t)
	r := &depreciation.AccountsResolver{Directory: f.store}

	credit, debit, err := r.ResolveDepreciationAccounts(f.ctx, testCategory, testCompany)
	require.NoError(t, err)
	assert.Equal(t, "Accumulated Depreciation - AC", credit)
	assert.Equal(t, "Depreciation - AC", debit)
}

func TestResolveDepreciationAccounts_CategoryOverridesCompany(t *testing.T) {
	// GIVEN: The category sets its own expense account for the company but
	//        leaves the accumulated account blank
	// THEN: Expense from the category, accumulated from the company

	f := newFixture(t)
	require.NoError(t, f.store.SaveAccount(f.ctx, depreciation.Account{
		Name: "Machine Depreciation - AC", Company: testCompany, RootType: depreciation.RootExpense,
	}))
	require.NoError(t, f.store.SaveCategory(f.ctx, depreciation.Category{
		Name: testCategory,
		Accounts: []depreciation.CategoryAccount{
			{Company: "Other Co", DepreciationExpenseAccount: "Ignored"},
			{Company: testCompany, DepreciationExpenseAccount: "Machine Depreciation - AC"},
		},
	}))
	r := &depreciation.AccountsResolver{Directory: f.store}

	credit, debit, err := r.ResolveDepreciationAccounts(f.ctx, testCategory, testCompany)
	require.NoError(t, err)
	assert.Equal(t, "Accumulated Depreciation - AC", credit)
	assert.Equal(t, "Machine Depreciation - AC", debit)
}

func TestResolveDepreciationAccounts_IncomeAccountSwapsSides(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveAccount(f.ctx, depreciation.Account{
		Name: "Depreciation - AC", Company: testCompany, RootType: depreciation.RootIncome,
	}))
	r := &depreciation.AccountsResolver{Directory: f.store}

	credit, debit, err := r.ResolveDepreciationAccounts(f.ctx, testCategory, testCompany)
	require.NoError(t, err)
	assert.Equal(t, "Depreciation - AC", credit)
	assert.Equal(t, "Accumulated Depreciation - AC", debit)
}

func TestResolveDepreciationAccounts_Errors(t *testing.T) {
	t.Run("nothing configured", func(t *testing.T) {
		f := newFixture(t)
		r := &depreciation.AccountsResolver{Directory: f.store}

		_, _, err := r.ResolveDepreciationAccounts(f.ctx, "Unknown Category", "Unknown Co")
		require.Error(t, err)
		assert.True(t, depreciation.IsMissingConfiguration(err))
		assert.Contains(t, err.Error(), "Accumulated Depreciation Account and Depreciation Expense Account")
	})

	t.Run("expense account does not exist", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.SaveCompany(f.ctx, depreciation.Company{
			Name:                           testCompany,
			AccumulatedDepreciationAccount: "Accumulated Depreciation - AC",
			DepreciationExpenseAccount:     "Gone - AC",
		}))
		r := &depreciation.AccountsResolver{Directory: f.store}

		_, _, err := r.ResolveDepreciationAccounts(f.ctx, testCategory, testCompany)
		assert.True(t, depreciation.IsMissingConfiguration(err))
	})

	t.Run("expense account of the wrong root type", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.SaveAccount(f.ctx, depreciation.Account{
			Name: "Depreciation - AC", Company: testCompany, RootType: depreciation.RootLiability,
		}))
		r := &depreciation.AccountsResolver{Directory: f.store}

		_, _, err := r.ResolveDepreciationAccounts(f.ctx, testCategory, testCompany)
		assert.ErrorIs(t, err, depreciation.ErrValidation)
	})
}

func TestDepreciationCostCenter(t *testing.T) {
	f := newFixture(t)
	r := &depreciation.AccountsResolver{Directory: f.store}

	cc, err := r.DepreciationCostCenter(f.ctx, testCompany)
	require.NoError(t, err)
	assert.Equal(t, "Main - AC", cc)

	cc, err = r.DepreciationCostCenter(f.ctx, "Unknown Co")
	require.NoError(t, err)
	assert.Empty(t, cc)
}
