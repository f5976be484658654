package assets

import (
	"fmt"
	"strings"

	"github.com/warp/asset-engine/depreciation"
)

// =============================================================================
// ASSET VALIDATION
// =============================================================================

// ValidateAsset checks an asset before it is saved or submitted. Finance
// book dates are checked only for assets that depreciate.
func ValidateAsset(a *depreciation.Asset) error {
	if strings.TrimSpace(a.Name) == "" {
		return invalid("name", "is required")
	}
	if a.Company == "" {
		return invalid("company", "is required")
	}
	if a.NumOfAssets <= 0 {
		return invalid("num_of_assets", "number of assets must be greater than zero")
	}
	if a.GrossPurchaseAmount.IsNegative() {
		return invalid("gross_purchase_amount", "cannot be negative")
	}
	if a.PurchaseDate.IsZero() {
		return invalid("purchase_date", "is required")
	}
	if a.IsSerialized {
		if err := ValidateNamingSeries(a.SerialNoSeries); err != nil {
			return err
		}
	}
	if !a.CalculateDepreciation {
		return nil
	}

	if a.AvailableForUseDate.IsZero() {
		return invalid("available_for_use_date", "is required")
	}
	if a.AvailableForUseDate.Before(a.PurchaseDate) {
		return invalid("available_for_use_date", "available-for-use date should be after purchase date")
	}
	if len(a.FinanceBooks) == 0 {
		return invalid("finance_books", "at least one finance book is required to calculate depreciation")
	}
	seen := make(map[string]bool, len(a.FinanceBooks))
	for i, fb := range a.FinanceBooks {
		if seen[fb.FinanceBook] {
			return invalid("finance_books", "row #%d: finance book %q is listed twice", i+1, fb.FinanceBook)
		}
		seen[fb.FinanceBook] = true
		if fb.TemplateName == "" {
			return invalid("finance_books", "row #%d: depreciation template is required", i+1)
		}
		if fb.DepreciationPostingStartDate.Equal(a.AvailableForUseDate) {
			return invalid("finance_books", "row #%d: depreciation posting date should not be equal to available-for-use date", i+1)
		}
		if fb.SalvageValue.GreaterThan(a.GrossPurchaseAmount) {
			return invalid("finance_books", "row #%d: salvage value cannot exceed gross purchase amount", i+1)
		}
	}
	return nil
}

// ValidateNamingSeries requires a '.' before the '#' digits of a serial
// number series such as "SN-.####".
func ValidateNamingSeries(series string) error {
	if series == "" {
		return invalid("serial_no_series", "is required for serialized assets")
	}
	hash := strings.IndexByte(series, '#')
	if hash >= 0 && !strings.Contains(series[:hash], ".") {
		return invalid("serial_no_series", "please add a '.' before the '#'s in the serial number naming series")
	}
	return nil
}

// validateUnitReference checks the serial number given for a repair or a
// revaluation against the asset.
func validateUnitReference(a *depreciation.Asset, serialNo string) error {
	switch {
	case a.IsSerialized && serialNo == "":
		return invalid("serial_no", "asset serial no needs to be provided for serialized asset %s", a.ID)
	case !a.IsSerialized && serialNo != "":
		return invalid("serial_no", "asset %s is not serialized", a.ID)
	case !a.IsSerialized && a.NumOfAssets > 1:
		return invalid("asset", "asset %s represents %d assets and cannot be adjusted as a whole", a.ID, a.NumOfAssets)
	}
	return nil
}

// serialNumber formats the n-th number of a series: "SN-.####" -> SN-0042.
// A series without '#' gets five digits.
func serialNumber(series string, n int) string {
	prefix, digits := series, 5
	if hash := strings.IndexByte(series, '#'); hash >= 0 {
		prefix = series[:hash]
		digits = strings.Count(series[hash:], "#")
	}
	prefix = strings.TrimSuffix(prefix, ".")
	return fmt.Sprintf("%s%0*d", prefix, digits, n)
}

func invalid(field, format string, args ...any) error {
	return &depreciation.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
