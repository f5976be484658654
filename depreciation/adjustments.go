package depreciation

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ADJUSTMENTS - Events that feed back into schedules
// =============================================================================

type RepairStatus string

const (
	RepairPending   RepairStatus = "Pending"
	RepairCompleted RepairStatus = "Completed"
	RepairCancelled RepairStatus = "Cancelled"
)

// Repair records maintenance on an asset. A completed repair with
// IncreaseInAssetLife > 0 extends the useful life of every finance book
// (or only FinanceBook when set).
type Repair struct {
	ID                  string          `json:"id"`
	AssetID             AssetID         `json:"asset_id"`
	SerialNo            string          `json:"serial_no,omitempty"`
	FinanceBook         string          `json:"finance_book,omitempty"`
	FailureDate         Date            `json:"failure_date"`
	CompletionDate      Date            `json:"completion_date"`
	Status              RepairStatus    `json:"repair_status"`
	RepairCost          decimal.Decimal `json:"repair_cost"`
	IncreaseInAssetLife int             `json:"increase_in_asset_life"`
	Description         string          `json:"description,omitempty"`
	DocStatus           DocStatus       `json:"doc_status"`
	CreatedAt           time.Time       `json:"created_at"`
}

func (r Repair) Parent() ParentRef { return ParentRef{AssetID: r.AssetID, SerialNo: r.SerialNo} }

// Revaluation changes the value of an asset in one finance book. The
// difference between NewAssetValue and CurrentAssetValue is applied to the
// gross purchase amount and the schedules are superseded.
type Revaluation struct {
	ID                string          `json:"id"`
	AssetID           AssetID         `json:"asset_id"`
	SerialNo          string          `json:"serial_no,omitempty"`
	FinanceBook       string          `json:"finance_book,omitempty"`
	Date              Date            `json:"date"`
	CurrentAssetValue decimal.Decimal `json:"current_asset_value"`
	NewAssetValue     decimal.Decimal `json:"new_asset_value"`
	DocStatus         DocStatus       `json:"doc_status"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (r Revaluation) Difference() decimal.Decimal {
	return r.NewAssetValue.Sub(r.CurrentAssetValue)
}

func (r Revaluation) Parent() ParentRef { return ParentRef{AssetID: r.AssetID, SerialNo: r.SerialNo} }
