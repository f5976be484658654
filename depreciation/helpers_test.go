package depreciation_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/asset-engine/depreciation"
	"github.com/warp/asset-engine/depreciation/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const (
	testCompany  = "Acme Corp"
	testCategory = "Machinery"
	testBook     = "Main Book"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(s string) depreciation.Date {
	return depreciation.MustParseDate(s)
}

func requireAmount(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual.String())
}

func straightLine12() depreciation.Template {
	return depreciation.Template{
		Name:      "SL 12 Months",
		Method:    depreciation.MethodStraightLine,
		Frequency: depreciation.FrequencyMonthly,
		AssetLife: 12,
		LifeUnit:  depreciation.LifeMonths,
	}
}

func ddb5Years() depreciation.Template {
	return depreciation.Template{
		Name:      "DDB 5 Years",
		Method:    depreciation.MethodDoubleDecliningBalance,
		Frequency: depreciation.FrequencyYearly,
		AssetLife: 5,
		LifeUnit:  depreciation.LifeYears,
	}
}

// fixture is a memory store seeded with a company, category, accounts
// and the standard templates.
type fixture struct {
	ctx       context.Context
	store     *store.Memory
	lifecycle *depreciation.Lifecycle
	engine    *depreciation.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()

	require.NoError(t, st.SaveCompany(ctx, depreciation.Company{
		Name:                           testCompany,
		AccumulatedDepreciationAccount: "Accumulated Depreciation - AC",
		DepreciationExpenseAccount:     "Depreciation - AC",
		DepreciationCostCenter:         "Main - AC",
	}))
	require.NoError(t, st.SaveCategory(ctx, depreciation.Category{Name: testCategory}))
	require.NoError(t, st.SaveAccount(ctx, depreciation.Account{
		Name: "Accumulated Depreciation - AC", Company: testCompany, RootType: depreciation.RootAsset,
	}))
	require.NoError(t, st.SaveAccount(ctx, depreciation.Account{
		Name: "Depreciation - AC", Company: testCompany, RootType: depreciation.RootExpense,
	}))
	require.NoError(t, st.SaveTemplate(ctx, straightLine12()))
	require.NoError(t, st.SaveTemplate(ctx, ddb5Years()))

	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	builder := depreciation.NewBuilder(2)
	builder.Now = func() time.Time { return fixed }
	lc := depreciation.NewLifecycle(builder, nil, nil)
	lc.Now = builder.Now

	engine := depreciation.NewEngine(st, nil)
	engine.SetAutomaticPosting(true)
	engine.Now = builder.Now

	return &fixture{ctx: ctx, store: st, lifecycle: lc, engine: engine}
}

// newAsset returns an unsaved draft asset worth gross with one finance book.
func newAsset(id, gross string, tmpl depreciation.Template) *depreciation.Asset {
	return &depreciation.Asset{
		ID:                    depreciation.AssetID(id),
		Name:                  "Asset " + id,
		Company:               testCompany,
		Category:              testCategory,
		GrossPurchaseAmount:   dec(gross),
		PurchaseDate:          date("2024-01-01"),
		AvailableForUseDate:   date("2024-01-01"),
		CalculateDepreciation: true,
		NumOfAssets:           1,
		AssetValue:            dec(gross),
		DocStatus:             depreciation.DocDraft,
		FinanceBooks: []depreciation.FinanceBookEntry{{
			FinanceBook:                  testBook,
			TemplateName:                 tmpl.Name,
			SalvageValue:                 decimal.Zero,
			DepreciationPostingStartDate: date("2024-01-31"),
			AssetValue:                   dec(gross),
		}},
	}
}

// submit saves a, builds its drafts and activates them, the way the asset
// workflows do on insert + submit.
func (f *fixture) submit(t *testing.T, a *depreciation.Asset) *depreciation.Schedule {
	t.Helper()
	err := f.store.WithTx(f.ctx, func(st depreciation.Store) error {
		if _, err := f.lifecycle.CreateDraftSchedules(f.ctx, st, a); err != nil {
			return err
		}
		a.DocStatus = depreciation.DocSubmitted
		if _, err := f.lifecycle.ActivateSchedules(f.ctx, st, a); err != nil {
			return err
		}
		return st.SaveAsset(f.ctx, a)
	})
	require.NoError(t, err)
	return f.active(t, a.Ref(), a.FinanceBooks[0].FinanceBook)
}

func (f *fixture) active(t *testing.T, ref depreciation.ParentRef, book string) *depreciation.Schedule {
	t.Helper()
	s, err := depreciation.ActiveSchedule(f.ctx, f.store, ref, book)
	require.NoError(t, err)
	require.NotNil(t, s, "no active schedule for %s", ref)
	return s
}

func (f *fixture) asset(t *testing.T, id string) *depreciation.Asset {
	t.Helper()
	a, err := f.store.GetAsset(f.ctx, depreciation.AssetID(id))
	require.NoError(t, err)
	return a
}

func sumRows(rows []depreciation.Row) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.DepreciationAmount)
	}
	return total
}
