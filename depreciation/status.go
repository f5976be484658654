package depreciation

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ASSET STATUS DERIVATION
// =============================================================================

// DeriveStatus computes the status of an asset or serial unit from its
// current data. There is no stored transition table: the same inputs always
// give the same status.
//
//	Draft      -> not submitted
//	Cancelled  -> voided
//	Scrapped   -> scrap journal linked
//	Fully Depreciated     -> default book value <= its salvage value
//	Partially Depreciated -> default book value < gross purchase amount
//	Submitted  -> otherwise
func DeriveStatus(doc DocStatus, scrapJournal string, books []FinanceBookEntry, gross decimal.Decimal, defaultBook string) AssetStatus {
	switch doc {
	case DocDraft, "":
		return StatusDraft
	case DocCancelled:
		return StatusCancelled
	}
	if scrapJournal != "" {
		return StatusScrapped
	}
	if len(books) > 0 {
		fb := DefaultBook(books, defaultBook)
		if fb.AssetValue.LessThanOrEqual(fb.SalvageValue) {
			return StatusFullyDepreciated
		}
		if fb.AssetValue.LessThan(gross) {
			return StatusPartiallyDepreciated
		}
	}
	return StatusSubmitted
}

// DefaultBook picks the company's default finance book if the list has it,
// else the first entry. books must not be empty.
func DefaultBook(books []FinanceBookEntry, companyDefault string) FinanceBookEntry {
	if companyDefault != "" {
		for _, fb := range books {
			if fb.FinanceBook == companyDefault {
				return fb
			}
		}
	}
	return books[0]
}

// DefaultBookSource returns a company's default finance book name ("" when
// none is configured).
type DefaultBookSource interface {
	DefaultFinanceBook(ctx context.Context, company string) (string, error)
}

// BookCache caches default finance book names per company. Implemented by
// the memory and redis caches in package cache.
type BookCache interface {
	Get(ctx context.Context, company string) (string, bool)
	Set(ctx context.Context, company, book string)
	Invalidate(ctx context.Context, company string) error
}

// CachedBooks reads default finance books from Dir through Cache. Cache
// may be nil.
type CachedBooks struct {
	Dir   Directory
	Cache BookCache
}

func (c CachedBooks) DefaultFinanceBook(ctx context.Context, company string) (string, error) {
	if c.Cache != nil {
		if book, ok := c.Cache.Get(ctx, company); ok {
			return book, nil
		}
	}
	co, err := c.Dir.GetCompany(ctx, company)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if c.Cache != nil {
		c.Cache.Set(ctx, company, co.DefaultFinanceBook)
	}
	return co.DefaultFinanceBook, nil
}

// RefreshStatus recomputes the status of p and copies the default book's
// value to its headline asset value.
func RefreshStatus(ctx context.Context, p Depreciable, src DefaultBookSource) error {
	terms := p.Terms()
	books := p.Books()
	var defaultBook string
	if src != nil && len(books) > 1 {
		name, err := src.DefaultFinanceBook(ctx, terms.Company)
		if err != nil {
			return fmt.Errorf("default finance book for %s: %w", terms.Company, err)
		}
		defaultBook = name
	}
	if len(books) > 0 {
		p.SetAssetValue(DefaultBook(books, defaultBook).AssetValue)
	}
	doc, scrap := p.Document()
	p.SetStatus(DeriveStatus(doc, scrap, books, terms.GrossPurchaseAmount, defaultBook))
	return nil
}
