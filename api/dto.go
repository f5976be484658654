/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request types decouple
  the external contract from the domain model; most responses return the
  domain types directly since they already carry JSON tags.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types that are not domain types
  - *Response: Complex response wrappers

TYPES:
  Assets:
    AssetRequest, FinanceBookRequest, AssetDetailDTO, CancelRequest,
    ScrapRequest

  Adjustments:
    RepairRequest, CompleteRepairRequest, RevaluationRequest

  Posting:
    PostRequest, RunRequest, ScheduleDetailDTO, CancelPostingRequest,
    SweepRunDTO, SettingsRequest, SettingsDTO

  Settings:
    depreciation.Company, depreciation.Category, depreciation.Account

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry validator/v10 tags, checked by Handler.decode before
  any domain call. Domain rules (dates, finance books, templates) are
  checked by the assets service.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/template.go: TemplateJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/asset-engine/depreciation"
)

// =============================================================================
// ASSETS
// =============================================================================

// FinanceBookRequest is one finance book row of an asset.
type FinanceBookRequest struct {
	FinanceBook                  string            `json:"finance_book" validate:"required"`
	Template                     string            `json:"template"`
	SalvageValue                 decimal.Decimal   `json:"salvage_value"`
	DepreciationPostingStartDate depreciation.Date `json:"depreciation_posting_start_date"`
}

// AssetRequest creates or updates an asset.
type AssetRequest struct {
	ID                             string               `json:"id" validate:"omitempty,max=140"`
	Name                           string               `json:"name" validate:"required,max=140"`
	Company                        string               `json:"company" validate:"required"`
	Category                       string               `json:"category" validate:"required"`
	ItemCode                       string               `json:"item_code"`
	CostCenter                     string               `json:"cost_center"`
	GrossPurchaseAmount            decimal.Decimal      `json:"gross_purchase_amount"`
	OpeningAccumulatedDepreciation decimal.Decimal      `json:"opening_accumulated_depreciation"`
	PurchaseDate                   depreciation.Date    `json:"purchase_date"`
	AvailableForUseDate            depreciation.Date    `json:"available_for_use_date"`
	CalculateDepreciation          bool                 `json:"calculate_depreciation"`
	IsExistingAsset                bool                 `json:"is_existing_asset"`
	IsSerialized                   bool                 `json:"is_serialized"`
	NumOfAssets                    int                  `json:"num_of_assets" validate:"gte=0,lte=10000"`
	SerialNoSeries                 string               `json:"serial_no_series"`
	FinanceBooks                   []FinanceBookRequest `json:"finance_books" validate:"dive"`
}

// toAsset converts the request. The number of assets defaults to 1.
func (r AssetRequest) toAsset() *depreciation.Asset {
	a := &depreciation.Asset{
		ID:                             depreciation.AssetID(r.ID),
		Name:                           r.Name,
		Company:                        r.Company,
		Category:                       r.Category,
		ItemCode:                       r.ItemCode,
		CostCenter:                     r.CostCenter,
		GrossPurchaseAmount:            r.GrossPurchaseAmount,
		OpeningAccumulatedDepreciation: r.OpeningAccumulatedDepreciation,
		PurchaseDate:                   r.PurchaseDate,
		AvailableForUseDate:            r.AvailableForUseDate,
		CalculateDepreciation:          r.CalculateDepreciation,
		IsExistingAsset:                r.IsExistingAsset,
		IsSerialized:                   r.IsSerialized,
		NumOfAssets:                    r.NumOfAssets,
		SerialNoSeries:                 r.SerialNoSeries,
	}
	if a.NumOfAssets == 0 {
		a.NumOfAssets = 1
	}
	for _, fb := range r.FinanceBooks {
		a.FinanceBooks = append(a.FinanceBooks, depreciation.FinanceBookEntry{
			FinanceBook:                  fb.FinanceBook,
			TemplateName:                 fb.Template,
			SalvageValue:                 fb.SalvageValue,
			DepreciationPostingStartDate: fb.DepreciationPostingStartDate,
		})
	}
	return a
}

// AssetDetailDTO is an asset with its serial units.
type AssetDetailDTO struct {
	*depreciation.Asset
	SerialUnits []*depreciation.SerialUnit `json:"serial_units,omitempty"`
}

// CancelRequest carries an optional reason.
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ScrapRequest scraps an asset or one of its serial units.
type ScrapRequest struct {
	SerialNo     string            `json:"serial_no"`
	Date         depreciation.Date `json:"date"`
	JournalEntry string            `json:"journal_entry"`
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// RepairRequest records a repair. The asset comes from the URL.
type RepairRequest struct {
	ID                  string            `json:"id"`
	SerialNo            string            `json:"serial_no"`
	FinanceBook         string            `json:"finance_book"`
	FailureDate         depreciation.Date `json:"failure_date"`
	CompletionDate      depreciation.Date `json:"completion_date"`
	RepairCost          decimal.Decimal   `json:"repair_cost"`
	IncreaseInAssetLife int               `json:"increase_in_asset_life" validate:"gte=0,lte=1200"`
	Description         string            `json:"description" validate:"max=1000"`
}

func (r RepairRequest) toRepair(assetID string) depreciation.Repair {
	return depreciation.Repair{
		ID:                  r.ID,
		AssetID:             depreciation.AssetID(assetID),
		SerialNo:            r.SerialNo,
		FinanceBook:         r.FinanceBook,
		FailureDate:         r.FailureDate,
		CompletionDate:      r.CompletionDate,
		RepairCost:          r.RepairCost,
		IncreaseInAssetLife: r.IncreaseInAssetLife,
		Description:         r.Description,
	}
}

// CompleteRepairRequest completes and submits a pending repair.
type CompleteRepairRequest struct {
	CompletionDate depreciation.Date `json:"completion_date"`
}

// RevaluationRequest changes the value of an asset in one finance book.
type RevaluationRequest struct {
	ID            string            `json:"id"`
	SerialNo      string            `json:"serial_no"`
	FinanceBook   string            `json:"finance_book"`
	Date          depreciation.Date `json:"date"`
	NewAssetValue decimal.Decimal   `json:"new_asset_value"`
}

// =============================================================================
// POSTING
// =============================================================================

// PostRequest posts depreciation up to Date (today when empty).
type PostRequest struct {
	Date depreciation.Date `json:"date"`
}

// RunRequest starts a sweep over every due schedule. Force runs it even
// when automatic posting is disabled.
type RunRequest struct {
	Date  depreciation.Date `json:"date"`
	Force bool              `json:"force"`
}

// SettingsRequest switches automatic posting on or off.
type SettingsRequest struct {
	AutomaticPostingEnabled *bool `json:"automatic_posting_enabled" validate:"required"`
}

// SettingsDTO is the engine's current posting switches.
type SettingsDTO struct {
	AutomaticPostingEnabled bool `json:"automatic_posting_enabled"`
	MaxConcurrency          int  `json:"max_concurrency"`
}

// ScheduleDetailDTO is a schedule with the postings made from it.
type ScheduleDetailDTO struct {
	*depreciation.Schedule
	Postings []depreciation.Posting `json:"postings"`
}

// CancelPostingRequest reverses one posting.
type CancelPostingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// SweepRunDTO is one recorded scheduler sweep.
type SweepRunDTO struct {
	ID          string `json:"id"`
	RunDate     string `json:"run_date"`
	Status      string `json:"status"`
	Schedules   int    `json:"schedules"`
	Postings    int    `json:"postings"`
	Failures    int    `json:"failures"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Details any    `json:"details,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
