/*
period.go - Depreciation period generation

PURPOSE:
  Turns a template plus an asset's dates and amounts into the ordered list
  of (date, amount) pairs a schedule is made of. Pure functions, no store
  access.

SLOTS:
  Boundaries are anchored on the posting start date and advance by the
  template's period length (end-of-month dates stay end-of-month). Each
  slot covers the days after the previous boundary up to its own boundary
  and carries a weight = covered days / days in a full period. The first
  slot starts at available-for-use, so its weight can exceed 1:

    available-for-use  2024-01-15, posting start 2024-01-31, monthly
    slot 1: Jan 15..Jan 31   weight 17/31
    slot 2: Feb 01..Feb 29   weight 1
    ...
    last:   ..life end       weight <= 1

  The life ends one day before available-for-use + useful life. A disposal
  date inside the life truncates the slot containing it and drops the rest.

RESUMING:
  Rebuilds pass ResumeAfter (the last posted row date) and AccumulatedToDate
  (everything already depreciated). Slots up to ResumeAfter are skipped and
  the first remaining slot only covers the days after it.

SEE ALSO:
  - method.go: per-method amount calculation over the slots
  - schedule.go: turns periods into schedule rows
*/
package depreciation

import (
	"github.com/shopspring/decimal"
)

// Period is one generated (date, amount) pair.
type Period struct {
	Date   Date
	Amount decimal.Decimal
}

// PeriodInput carries everything the generator needs.
type PeriodInput struct {
	Template                       Template
	GrossPurchaseAmount            decimal.Decimal
	SalvageValue                   decimal.Decimal
	OpeningAccumulatedDepreciation decimal.Decimal
	AvailableForUseDate            Date
	PostingStartDate               Date
	DisposalDate                   *Date

	// ResumeAfter and AccumulatedToDate are set for partial rebuilds.
	ResumeAfter       *Date
	AccumulatedToDate decimal.Decimal

	Precision int32
}

// slot is one period of the schedule before amounts are assigned.
type slot struct {
	start    Date
	end      Date
	fullDays int
	// lifeEnd marks the slot that closes the useful life (as opposed to
	// one cut short by a disposal).
	lifeEnd bool
}

func (s slot) weight() decimal.Decimal {
	covered := DaysBetween(s.start, s.end) + 1
	if covered <= 0 || s.fullDays <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(covered)).Div(decimal.NewFromInt(int64(s.fullDays)))
}

// GeneratePeriods validates the input and returns the periods in ascending
// date order. Periods with a zero amount are omitted.
func GeneratePeriods(in PeriodInput) ([]Period, error) {
	if err := in.Template.Validate(); err != nil {
		return nil, err
	}
	if err := validatePeriodInput(in); err != nil {
		return nil, err
	}

	lifeEnd := LifeEndDate(in.AvailableForUseDate, in.Template)
	slots := generateSlots(in.Template.PeriodMonths(), in.AvailableForUseDate, in.PostingStartDate, lifeEnd)
	if in.ResumeAfter != nil {
		slots = resumeSlots(slots, *in.ResumeAfter)
	}
	if len(slots) == 0 {
		return nil, nil
	}

	var periods []Period
	switch in.Template.Method {
	case MethodStraightLine:
		periods = straightLine(in, slots)
	case MethodDoubleDecliningBalance, MethodWrittenDownValue:
		periods = decliningBalance(in, slots)
	}

	if in.ResumeAfter == nil && in.OpeningAccumulatedDepreciation.IsPositive() {
		periods = consumeOpening(periods, in.OpeningAccumulatedDepreciation)
	}
	return dropEmpty(periods), nil
}

func validatePeriodInput(in PeriodInput) error {
	if in.AvailableForUseDate.IsZero() {
		return newValidationError("available_for_use_date", "is required")
	}
	if in.PostingStartDate.IsZero() {
		return newValidationError("depreciation_posting_start_date", "is required")
	}
	if in.PostingStartDate.Equal(in.AvailableForUseDate) {
		return newValidationError("depreciation_posting_start_date", "cannot be the same as the available-for-use date")
	}
	if in.PostingStartDate.Before(in.AvailableForUseDate) {
		return newValidationError("depreciation_posting_start_date", "cannot be before the available-for-use date")
	}
	if in.GrossPurchaseAmount.IsNegative() {
		return newValidationError("gross_purchase_amount", "cannot be negative")
	}
	if in.SalvageValue.IsNegative() {
		return newValidationError("salvage_value", "cannot be negative")
	}
	if in.SalvageValue.GreaterThan(in.GrossPurchaseAmount) {
		return newValidationError("salvage_value", "cannot exceed gross purchase amount %s", in.GrossPurchaseAmount)
	}
	if in.Template.Method.IsDeclining() && !in.GrossPurchaseAmount.GreaterThan(in.SalvageValue) {
		return &TemplateError{
			Template: in.Template.Name,
			Reason:   "gross purchase amount must be greater than salvage value for declining balance methods",
		}
	}
	if in.OpeningAccumulatedDepreciation.IsNegative() {
		return newValidationError("opening_accumulated_depreciation", "cannot be negative")
	}
	if in.OpeningAccumulatedDepreciation.GreaterThan(in.GrossPurchaseAmount.Sub(in.SalvageValue)) {
		return newValidationError("opening_accumulated_depreciation", "cannot exceed the depreciable amount")
	}
	return nil
}

// LifeEndDate is the last day of the useful life.
func LifeEndDate(availableForUse Date, t Template) Date {
	return availableForUse.AddMonths(t.LifeMonths()).AddDays(-1)
}

// boundary returns the k-th boundary after start; end-of-month starts stay
// pinned to month ends.
func boundary(start Date, months int) Date {
	d := start.AddMonths(months)
	if start.IsEndOfMonth() {
		return d.EndOfMonth()
	}
	return d
}

func generateSlots(periodMonths int, availableForUse, postingStart, lifeEnd Date) []slot {
	var slots []slot
	prev := boundary(postingStart, -periodMonths)
	for k := 0; ; k++ {
		b := boundary(postingStart, k*periodMonths)
		s := slot{
			start:    MaxDate(availableForUse, prev.AddDays(1)),
			end:      b,
			fullDays: DaysBetween(prev, b),
		}
		if k == 0 {
			// the first slot runs from available-for-use, however far back
			s.start = availableForUse
		}
		if !b.Before(lifeEnd) {
			s.end = lifeEnd
			s.lifeEnd = true
		}
		if !s.start.After(s.end) {
			slots = append(slots, s)
		}
		if s.lifeEnd {
			return slots
		}
		prev = b
	}
}

func resumeSlots(slots []slot, after Date) []slot {
	var out []slot
	for _, s := range slots {
		if !s.end.After(after) {
			continue
		}
		s.start = MaxDate(s.start, after.AddDays(1))
		out = append(out, s)
	}
	return out
}

// disposalCut returns the index of the slot containing the disposal date,
// or -1 when the asset is not disposed of within the slots.
func disposalCut(slots []slot, disposal *Date) int {
	if disposal == nil {
		return -1
	}
	for i, s := range slots {
		if !disposal.After(s.end) {
			if s.lifeEnd && disposal.Equal(s.end) {
				return -1
			}
			return i
		}
	}
	return -1
}

func consumeOpening(periods []Period, opening decimal.Decimal) []Period {
	out := make([]Period, 0, len(periods))
	for _, p := range periods {
		if opening.IsPositive() {
			if opening.GreaterThanOrEqual(p.Amount) {
				opening = opening.Sub(p.Amount)
				continue
			}
			p.Amount = p.Amount.Sub(opening)
			opening = decimal.Zero
		}
		out = append(out, p)
	}
	return out
}

func dropEmpty(periods []Period) []Period {
	out := periods[:0]
	for _, p := range periods {
		if p.Amount.IsPositive() {
			out = append(out, p)
		}
	}
	return out
}
