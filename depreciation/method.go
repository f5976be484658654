package depreciation

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// STRAIGHT LINE
// =============================================================================

// straightLine spreads the depreciable amount across the slots in
// proportion to their weights. The slot closing the life takes whatever
// is left so the rows sum exactly to the depreciable amount.
func straightLine(in PeriodInput, slots []slot) []Period {
	depreciable := in.GrossPurchaseAmount.Sub(in.SalvageValue)
	if in.ResumeAfter != nil {
		depreciable = depreciable.Sub(in.AccumulatedToDate)
	}
	if !depreciable.IsPositive() {
		return nil
	}

	weights := make([]decimal.Decimal, len(slots))
	total := decimal.Zero
	for i, s := range slots {
		weights[i] = s.weight()
		total = total.Add(weights[i])
	}
	if !total.IsPositive() {
		return nil
	}

	slots, weights = applyDisposal(slots, weights, in.DisposalDate)

	remaining := depreciable
	periods := make([]Period, 0, len(slots))
	for i, s := range slots {
		var amount decimal.Decimal
		if s.lifeEnd {
			amount = remaining
		} else {
			amount = depreciable.Mul(weights[i]).Div(total).Round(in.Precision)
			amount = decimal.Min(amount, remaining)
		}
		remaining = remaining.Sub(amount)
		periods = append(periods, Period{Date: s.end, Amount: amount})
	}
	return periods
}

// =============================================================================
// DECLINING BALANCE (DDB / WDV)
// =============================================================================

// decliningBalance applies a per-period rate to the running book value.
// Double declining balance starts at gross with salvage as the floor;
// written down value starts at gross - salvage with a floor of zero. The
// slot closing the life lands the book value exactly on the floor.
func decliningBalance(in PeriodInput, slots []slot) []Period {
	var book, floor, annualRate decimal.Decimal
	switch in.Template.Method {
	case MethodDoubleDecliningBalance:
		book = in.GrossPurchaseAmount
		floor = in.SalvageValue
		annualRate = decimal.NewFromInt(2).Div(in.Template.LifeYears())
	case MethodWrittenDownValue:
		book = in.GrossPurchaseAmount.Sub(in.SalvageValue)
		floor = decimal.Zero
		annualRate = in.Template.RateOfDepreciation.Div(decimal.NewFromInt(100))
	}
	if in.ResumeAfter != nil {
		book = book.Sub(in.AccumulatedToDate)
	}
	periodRate := annualRate.
		Mul(decimal.NewFromInt(int64(in.Template.PeriodMonths()))).
		Div(decimal.NewFromInt(12))

	weights := make([]decimal.Decimal, len(slots))
	for i, s := range slots {
		weights[i] = s.weight()
	}
	slots, weights = applyDisposal(slots, weights, in.DisposalDate)

	var periods []Period
	for i, s := range slots {
		headroom := book.Sub(floor)
		if !headroom.IsPositive() {
			break
		}
		var amount decimal.Decimal
		if s.lifeEnd {
			amount = headroom
		} else {
			amount = book.Mul(periodRate).Mul(weights[i]).Round(in.Precision)
			amount = decimal.Min(amount, headroom)
		}
		book = book.Sub(amount)
		periods = append(periods, Period{Date: s.end, Amount: amount})
	}
	return periods
}

// applyDisposal truncates the slot containing the disposal date and drops
// every slot after it. The truncated slot is prorated like any other
// partial slot and never absorbs the remainder.
func applyDisposal(slots []slot, weights []decimal.Decimal, disposal *Date) ([]slot, []decimal.Decimal) {
	cut := disposalCut(slots, disposal)
	if cut < 0 {
		return slots, weights
	}
	out := append([]slot(nil), slots[:cut+1]...)
	ws := append([]decimal.Decimal(nil), weights[:cut+1]...)
	out[cut].end = *disposal
	out[cut].lifeEnd = false
	ws[cut] = out[cut].weight()
	return out, ws
}
