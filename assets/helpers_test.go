package assets_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/asset-engine/assets"
	"github.com/warp/asset-engine/depreciation"
	"github.com/warp/asset-engine/depreciation/store"
)

const (
	testCompany  = "Acme Corp"
	testCategory = "Machinery"
	testBook     = "Main Book"
	sl12         = "SL 12 Months"
	ddb5         = "DDB 5 Years"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(s string) depreciation.Date { return depreciation.MustParseDate(s) }

func requireAmount(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual.String())
}

type fixture struct {
	ctx    context.Context
	store  *store.Memory
	engine *depreciation.Engine
	svc    *assets.Service
}

// newFixture seeds a memory store with one company, a category defaulting
// to the main book on the 12 month template, accounts and templates.
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
	require.NoError(t, st.SaveCategory(ctx, depreciation.Category{
		Name:         testCategory,
		FinanceBooks: []depreciation.CategoryFinanceBook{{FinanceBook: testBook, TemplateName: sl12}},
	}))
	require.NoError(t, st.SaveAccount(ctx, depreciation.Account{
		Name: "Accumulated Depreciation - AC", Company: testCompany, RootType: depreciation.RootAsset,
	}))
	require.NoError(t, st.SaveAccount(ctx, depreciation.Account{
		Name: "Depreciation - AC", Company: testCompany, RootType: depreciation.RootExpense,
	}))
	require.NoError(t, st.SaveTemplate(ctx, depreciation.Template{
		Name: sl12, Method: depreciation.MethodStraightLine, Frequency: depreciation.FrequencyMonthly,
		AssetLife: 12, LifeUnit: depreciation.LifeMonths,
	}))
	require.NoError(t, st.SaveTemplate(ctx, depreciation.Template{
		Name: ddb5, Method: depreciation.MethodDoubleDecliningBalance, Frequency: depreciation.FrequencyYearly,
		AssetLife: 5, LifeUnit: depreciation.LifeYears,
	}))

	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixed }

	builder := depreciation.NewBuilder(2)
	builder.Now = clock
	lc := depreciation.NewLifecycle(builder, nil, nil)
	lc.Now = clock

	engine := depreciation.NewEngine(st, nil)
	engine.Now = clock

	svc := assets.NewService(st, lc, engine, nil)
	svc.Now = clock

	return &fixture{ctx: ctx, store: st, engine: engine, svc: svc}
}

// newAsset returns a 120,000 asset on the 12 month straight line template,
// available from 2024-01-01 with posting starting 2024-01-31.
func newAsset(id string) *depreciation.Asset {
	return &depreciation.Asset{
		ID:                    depreciation.AssetID(id),
		Name:                  "Lathe " + id,
		Company:               testCompany,
		Category:              testCategory,
		GrossPurchaseAmount:   dec("120000"),
		PurchaseDate:          date("2024-01-01"),
		AvailableForUseDate:   date("2024-01-01"),
		CalculateDepreciation: true,
		NumOfAssets:           1,
		FinanceBooks: []depreciation.FinanceBookEntry{{
			FinanceBook:                  testBook,
			TemplateName:                 sl12,
			DepreciationPostingStartDate: date("2024-01-31"),
		}},
	}
}

// submitted inserts and submits a, then posts up to postedTo (if set).
func (f *fixture) submitted(t *testing.T, a *depreciation.Asset, postedTo string) *depreciation.Asset {
	t.Helper()
	_, err := f.svc.InsertAsset(f.ctx, a)
	require.NoError(t, err)
	got, err := f.svc.SubmitAsset(f.ctx, a.ID)
	require.NoError(t, err)
	if postedTo != "" {
		_, err := f.engine.PostDue(f.ctx, date(postedTo))
		require.NoError(t, err)
		return f.asset(t, string(a.ID))
	}
	return got
}

func (f *fixture) asset(t *testing.T, id string) *depreciation.Asset {
	t.Helper()
	a, err := f.store.GetAsset(f.ctx, depreciation.AssetID(id))
	require.NoError(t, err)
	return a
}

func (f *fixture) active(t *testing.T, ref depreciation.ParentRef, book string) *depreciation.Schedule {
	t.Helper()
	s, err := depreciation.ActiveSchedule(f.ctx, f.store, ref, book)
	require.NoError(t, err)
	require.NotNil(t, s, "no active schedule for %s", ref)
	return s
}

func (f *fixture) activityTypes(t *testing.T, id string) []depreciation.ActivityType {
	t.Helper()
	list, err := f.store.ListActivities(f.ctx, depreciation.AssetID(id))
	require.NoError(t, err)
	out := make([]depreciation.ActivityType, len(list))
	for i, a := range list {
		out[i] = a.Type
	}
	return out
}
