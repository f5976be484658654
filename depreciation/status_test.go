package depreciation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/asset-engine/depreciation"
)

func TestDeriveStatus(t *testing.T) {
	book := func(value, salvage string) []depreciation.FinanceBookEntry {
		return []depreciation.FinanceBookEntry{{FinanceBook: testBook, AssetValue: dec(value), SalvageValue: dec(salvage)}}
	}

	tests := []struct {
		name     string
		doc      depreciation.DocStatus
		scrap    string
		books    []depreciation.FinanceBookEntry
		expected depreciation.AssetStatus
	}{
		{"draft", depreciation.DocDraft, "", book("1000", "0"), depreciation.StatusDraft},
		{"cancelled", depreciation.DocCancelled, "", book("1000", "0"), depreciation.StatusCancelled},
		{"scrapped wins over values", depreciation.DocSubmitted, "JV-1", book("0", "0"), depreciation.StatusScrapped},
		{"untouched", depreciation.DocSubmitted, "", book("1000", "0"), depreciation.StatusSubmitted},
		{"partially", depreciation.DocSubmitted, "", book("400", "0"), depreciation.StatusPartiallyDepreciated},
		{"down to salvage", depreciation.DocSubmitted, "", book("100", "100"), depreciation.StatusFullyDepreciated},
		{"no books", depreciation.DocSubmitted, "", nil, depreciation.StatusSubmitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := depreciation.DeriveStatus(tt.doc, tt.scrap, tt.books, dec("1000"), "")
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDeriveStatus_UsesDefaultBook(t *testing.T) {
	books := []depreciation.FinanceBookEntry{
		{FinanceBook: "Main Book", AssetValue: dec("1000")},
		{FinanceBook: "Tax Book", AssetValue: dec("0")},
	}

	assert.Equal(t, depreciation.StatusSubmitted,
		depreciation.DeriveStatus(depreciation.DocSubmitted, "", books, dec("1000"), ""))
	assert.Equal(t, depreciation.StatusFullyDepreciated,
		depreciation.DeriveStatus(depreciation.DocSubmitted, "", books, dec("1000"), "Tax Book"))
	// unknown default falls back to the first book
	assert.Equal(t, depreciation.StatusSubmitted,
		depreciation.DeriveStatus(depreciation.DocSubmitted, "", books, dec("1000"), "Other"))
}

// countingCache records lookups so tests can tell cache hits from misses.
type countingCache struct {
	books map[string]string
	sets  int
}

func (c *countingCache) Get(_ context.Context, company string) (string, bool) {
	b, ok := c.books[company]
	return b, ok
}

func (c *countingCache) Set(_ context.Context, company, book string) {
	c.sets++
	c.books[company] = book
}

func (c *countingCache) Invalidate(_ context.Context, company string) error {
	delete(c.books, company)
	return nil
}

func TestRefreshStatus_DefaultBookFromCompany(t *testing.T) {
	// GIVEN: An asset with two books and a company defaulting to the tax book
	// WHEN: Refreshing its status
	// THEN: The headline value and status follow the tax book, and the
	//       company lookup is cached

	f := newFixture(t)
	require.NoError(t, f.store.SaveCompany(f.ctx, depreciation.Company{Name: testCompany, DefaultFinanceBook: "Tax Book"}))

	a := newAsset("A-1", "1000", straightLine12())
	a.DocStatus = depreciation.DocSubmitted
	a.FinanceBooks = append(a.FinanceBooks, depreciation.FinanceBookEntry{FinanceBook: "Tax Book", AssetValue: dec("250")})

	cache := &countingCache{books: map[string]string{}}
	src := depreciation.CachedBooks{Dir: f.store, Cache: cache}

	require.NoError(t, depreciation.RefreshStatus(f.ctx, a, src))
	requireAmount(t, "250", a.AssetValue)
	assert.Equal(t, depreciation.StatusPartiallyDepreciated, a.Status)
	assert.Equal(t, 1, cache.sets)

	require.NoError(t, depreciation.RefreshStatus(f.ctx, a, src))
	assert.Equal(t, 1, cache.sets)
}

func TestRefreshStatus_SerialUnit(t *testing.T) {
	parent := newAsset("A-1", "1000", straightLine12())
	unit := &depreciation.SerialUnit{
		SerialNo:     "SN-0001",
		AssetID:      parent.ID,
		DocStatus:    depreciation.DocSubmitted,
		FinanceBooks: []depreciation.FinanceBookEntry{{FinanceBook: testBook, AssetValue: dec("600")}},
		Asset:        parent,
	}

	require.NoError(t, depreciation.RefreshStatus(context.Background(), unit, nil))
	requireAmount(t, "600", unit.AssetValue)
	assert.Equal(t, depreciation.StatusPartiallyDepreciated, unit.Status)
}
