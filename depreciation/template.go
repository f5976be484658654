package depreciation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TEMPLATE - Named depreciation configuration
// =============================================================================

type Method string

const (
	MethodStraightLine           Method = "Straight Line"
	MethodDoubleDecliningBalance Method = "Double Declining Balance"
	MethodWrittenDownValue       Method = "Written Down Value"
)

// IsDeclining reports whether the method works on a running book value.
func (m Method) IsDeclining() bool {
	return m == MethodDoubleDecliningBalance || m == MethodWrittenDownValue
}

type Frequency string

const (
	FrequencyMonthly      Frequency = "Monthly"
	FrequencyQuarterly    Frequency = "Quarterly"
	FrequencyHalfYearly   Frequency = "Half-Yearly"
	FrequencyYearly       Frequency = "Yearly"
	FrequencyEveryNMonths Frequency = "Every N Months"
)

type LifeUnit string

const (
	LifeMonths LifeUnit = "Months"
	LifeYears  LifeUnit = "Years"
)

// ModifiedCopySuffix is appended to the name of a template cloned for a
// life change.
const ModifiedCopySuffix = " - Modified Copy"

// Template is immutable once referenced by a schedule; a life change
// produces a derived copy instead of editing it.
type Template struct {
	Name      string    `json:"name"`
	Method    Method    `json:"method"`
	Frequency Frequency `json:"frequency"`
	// FrequencyMonths is only read for FrequencyEveryNMonths.
	FrequencyMonths    int             `json:"frequency_months,omitempty"`
	AssetLife          int             `json:"asset_life"`
	LifeUnit           LifeUnit        `json:"life_unit"`
	RateOfDepreciation decimal.Decimal `json:"rate_of_depreciation"`
	// DerivedFrom names the template this one was cloned from.
	DerivedFrom string `json:"derived_from,omitempty"`
}

// PeriodMonths returns the number of months between two schedule rows.
func (t Template) PeriodMonths() int {
	switch t.Frequency {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencyHalfYearly:
		return 6
	case FrequencyYearly:
		return 12
	case FrequencyEveryNMonths:
		return t.FrequencyMonths
	}
	return 0
}

func (t Template) LifeMonths() int {
	if t.LifeUnit == LifeYears {
		return t.AssetLife * 12
	}
	return t.AssetLife
}

// LifeYears is the useful life in (possibly fractional) years.
func (t Template) LifeYears() decimal.Decimal {
	return decimal.NewFromInt(int64(t.LifeMonths())).Div(decimal.NewFromInt(12))
}

// Validate checks the template on its own, independent of any asset.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return newValidationError("name", "is required")
	}
	switch t.Method {
	case MethodStraightLine, MethodDoubleDecliningBalance, MethodWrittenDownValue:
	default:
		return &TemplateError{Template: t.Name, Reason: fmt.Sprintf("unknown depreciation method %q", t.Method)}
	}
	if t.PeriodMonths() <= 0 {
		return &TemplateError{Template: t.Name, Reason: fmt.Sprintf("invalid frequency %q", t.Frequency)}
	}
	if t.LifeUnit != LifeMonths && t.LifeUnit != LifeYears {
		return &TemplateError{Template: t.Name, Reason: fmt.Sprintf("invalid life unit %q", t.LifeUnit)}
	}
	if t.AssetLife <= 0 {
		return &TemplateError{Template: t.Name, Reason: "asset life must be greater than zero"}
	}
	if t.Method == MethodWrittenDownValue {
		if !t.RateOfDepreciation.IsPositive() || t.RateOfDepreciation.GreaterThan(decimal.NewFromInt(100)) {
			return &TemplateError{Template: t.Name, Reason: "rate of depreciation must be between 0 and 100"}
		}
	}
	return nil
}

// =============================================================================
// LIFE CHANGES
// =============================================================================

// ExtendLife returns a copy of t whose useful life is longer by months.
// A years-based template stays in years when the change is a whole number
// of years and is converted to months otherwise.
func ExtendLife(t Template, months int) Template {
	c := t
	c.Name = t.Name + ModifiedCopySuffix
	c.DerivedFrom = t.Name
	switch {
	case t.LifeUnit == LifeYears && months%12 == 0:
		c.AssetLife = t.AssetLife + months/12
	case t.LifeUnit == LifeYears:
		c.AssetLife = t.LifeMonths() + months
		c.LifeUnit = LifeMonths
	default:
		c.AssetLife = t.AssetLife + months
	}
	return c
}

// OriginalTemplateName returns the template t was derived from, falling
// back to stripping one ModifiedCopySuffix from the name. Returns t.Name
// for templates that were never derived.
func OriginalTemplateName(t Template) string {
	if t.DerivedFrom != "" {
		return t.DerivedFrom
	}
	if name, ok := strings.CutSuffix(t.Name, ModifiedCopySuffix); ok {
		return name
	}
	return t.Name
}
