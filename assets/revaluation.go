package assets

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/asset-engine/depreciation"
)

// =============================================================================
// REVALUATION
// =============================================================================

// Revalue changes the value of an asset or serial unit. The difference
// between the new and the current value is applied to the gross purchase
// amount and to every finance book, then each book's Active schedule is
// superseded: postings made so far are reversed and the schedule is
// rebuilt on the new gross amount.
//
// CurrentAssetValue defaults to the value of r.FinanceBook, or the
// headline value when no book is named.
func (s *Service) Revalue(ctx context.Context, r depreciation.Revaluation) (depreciation.Revaluation, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = s.now()

	err := s.Store.WithTx(ctx, func(st depreciation.Store) error {
		p, err := s.loadAdjustable(ctx, st, r.Parent(), r.FinanceBook)
		if err != nil {
			return err
		}
		terms := p.Terms()
		switch {
		case r.Date.IsZero():
			return invalid("date", "is required")
		case r.Date.Before(terms.PurchaseDate):
			return invalid("date", "asset revaluation cannot be posted before asset's purchase date %s", terms.PurchaseDate)
		case r.NewAssetValue.IsNegative():
			return invalid("new_asset_value", "cannot be negative")
		}
		if r.CurrentAssetValue.IsZero() {
			r.CurrentAssetValue = CurrentAssetValue(p, r.FinanceBook)
		}

		diff := r.Difference()
		gross := terms.GrossPurchaseAmount.Add(diff)
		if gross.IsNegative() {
			return invalid("new_asset_value", "would make the gross purchase amount negative")
		}
		for _, fb := range p.Books() {
			if fb.SalvageValue.GreaterThan(gross) {
				return invalid("new_asset_value", "gross purchase amount %s would fall below the salvage value of %s", gross, fb.FinanceBook)
			}
		}

		setGross(p, gross)
		for _, fb := range p.Books() {
			fb.AssetValue = fb.AssetValue.Add(diff)
			p.SetBook(fb)
		}

		if terms.CalculateDepreciation {
			cause := fmt.Sprintf("revaluation %s: value changed by %s", r.ID, diff)
			for _, fb := range p.Books() {
				if _, err := s.Lifecycle.Supersede(ctx, st, p, fb.FinanceBook, cause); err != nil {
					return err
				}
			}
		}
		if err := s.saveParent(ctx, st, p); err != nil {
			return err
		}

		r.DocStatus = depreciation.DocSubmitted
		if err := st.SaveRevaluation(ctx, r); err != nil {
			return err
		}
		return s.record(ctx, st, r.Parent(), depreciation.ActivityRevaluation, r.Date, "Asset Revaluation", r.ID,
			fmt.Sprintf("%s -> %s", r.CurrentAssetValue, r.NewAssetValue))
	})
	if err != nil {
		return depreciation.Revaluation{}, fmt.Errorf("revalue %s: %w", r.Parent(), err)
	}
	s.Logger.Info("asset revalued",
		zap.String("asset_id", r.Parent().String()),
		zap.String("difference", r.Difference().String()))
	return r, nil
}

// CurrentAssetValue is the value of book in p, or the headline value when
// book is empty or unknown.
func CurrentAssetValue(p depreciation.Depreciable, book string) decimal.Decimal {
	if book != "" {
		if fb, ok := depreciation.FindBook(p, book); ok {
			return fb.AssetValue
		}
	}
	switch v := p.(type) {
	case *depreciation.Asset:
		return v.AssetValue
	case *depreciation.SerialUnit:
		return v.AssetValue
	}
	return decimal.Zero
}

// setGross changes the gross purchase amount. A serial unit keeps its own
// amount from then on.
func setGross(p depreciation.Depreciable, gross decimal.Decimal) {
	switch v := p.(type) {
	case *depreciation.Asset:
		v.GrossPurchaseAmount = gross
	case *depreciation.SerialUnit:
		v.GrossPurchaseAmount = gross
	}
}
