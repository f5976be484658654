/*
Package depreciation is the depreciation scheduling and posting engine.

It computes time-phased depreciation schedules for fixed assets (Straight
Line, Double Declining Balance, Written Down Value), owns the schedule
lifecycle (Draft -> Active -> Cancelled), and posts one ledger entry per
due schedule row exactly once, keeping each finance book's asset value and
the asset status in step.

KEY CONCEPTS IN THIS FILE (types.go):
  - Asset / SerialUnit: the two depreciable record variants, unified by
    the Depreciable interface
  - FinanceBookEntry: one depreciation "view" of an asset with its own
    salvage value, template and running book value
  - Posting: the ledger entry created for one schedule row
  - Activity: audit trail entry for asset events

SEE ALSO:
  - period.go / method.go: period generation and amortization math
  - schedule.go: schedule builder
  - lifecycle.go: schedule state machine and rebuild triggers
  - posting.go: posting engine
*/
package depreciation

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AssetID string
type ScheduleID string
type RowID string
type PostingID string

// ParentRef identifies the record a schedule depreciates: a whole asset, or
// one serialized unit of it when SerialNo is set.
type ParentRef struct {
	AssetID  AssetID `json:"asset_id"`
	SerialNo string  `json:"serial_no,omitempty"`
}

func (p ParentRef) IsSerialUnit() bool { return p.SerialNo != "" }

func (p ParentRef) String() string {
	if p.SerialNo != "" {
		return string(p.AssetID) + "/" + p.SerialNo
	}
	return string(p.AssetID)
}

// =============================================================================
// STATUSES
// =============================================================================

// DocStatus is the document state of an asset or serial unit.
type DocStatus string

const (
	DocDraft     DocStatus = "Draft"
	DocSubmitted DocStatus = "Submitted"
	DocCancelled DocStatus = "Cancelled"
)

// AssetStatus is derived from current data, see status.go.
type AssetStatus string

const (
	StatusDraft                AssetStatus = "Draft"
	StatusSubmitted            AssetStatus = "Submitted"
	StatusPartiallyDepreciated AssetStatus = "Partially Depreciated"
	StatusFullyDepreciated     AssetStatus = "Fully Depreciated"
	StatusScrapped             AssetStatus = "Scrapped"
	StatusCancelled            AssetStatus = "Cancelled"
	StatusOutOfOrder           AssetStatus = "Out of Order"
)

// =============================================================================
// FINANCE BOOK ENTRY
// =============================================================================

// FinanceBookEntry belongs to exactly one asset or serial unit.
// AssetValue is the running book value; it never goes negative and lands on
// SalvageValue once the asset is fully depreciated.
type FinanceBookEntry struct {
	FinanceBook                  string          `json:"finance_book"`
	SalvageValue                 decimal.Decimal `json:"salvage_value"`
	TemplateName                 string          `json:"template"`
	DepreciationPostingStartDate Date            `json:"depreciation_posting_start_date"`
	AssetValue                   decimal.Decimal `json:"asset_value"`
}

// =============================================================================
// DEPRECIABLE - Shared view over Asset and SerialUnit
// =============================================================================

// Terms are the acquisition values a schedule is computed from. A serial
// unit takes them from its parent asset.
type Terms struct {
	Company                        string
	Category                       string
	CostCenter                     string
	GrossPurchaseAmount            decimal.Decimal
	OpeningAccumulatedDepreciation decimal.Decimal
	PurchaseDate                   Date
	AvailableForUseDate            Date
	DisposalDate                   *Date
	CalculateDepreciation          bool
}

// Depreciable is implemented by Asset and SerialUnit.
type Depreciable interface {
	Ref() ParentRef
	Terms() Terms
	Books() []FinanceBookEntry
	// SetBook replaces the entry with the same FinanceBook name. Returns
	// false if the parent has no such book.
	SetBook(FinanceBookEntry) bool
	// Document returns the doc status and the scrap journal reference.
	Document() (DocStatus, string)
	SetStatus(AssetStatus)
	// SetAssetValue sets the headline book value (the default finance
	// book's value for depreciable assets).
	SetAssetValue(decimal.Decimal)
}

// FindBook returns the entry for the named finance book.
func FindBook(p Depreciable, name string) (FinanceBookEntry, bool) {
	for _, fb := range p.Books() {
		if fb.FinanceBook == name {
			return fb, true
		}
	}
	return FinanceBookEntry{}, false
}

// Asset is a whole fixed asset.
type Asset struct {
	ID                             AssetID            `json:"id"`
	Name                           string             `json:"name"`
	Company                        string             `json:"company"`
	Category                       string             `json:"category"`
	ItemCode                       string             `json:"item_code"`
	CostCenter                     string             `json:"cost_center,omitempty"`
	GrossPurchaseAmount            decimal.Decimal    `json:"gross_purchase_amount"`
	OpeningAccumulatedDepreciation decimal.Decimal    `json:"opening_accumulated_depreciation"`
	PurchaseDate                   Date               `json:"purchase_date"`
	AvailableForUseDate            Date               `json:"available_for_use_date"`
	CalculateDepreciation          bool               `json:"calculate_depreciation"`
	IsExistingAsset                bool               `json:"is_existing_asset"`
	IsSerialized                   bool               `json:"is_serialized"`
	NumOfAssets                    int                `json:"num_of_assets"`
	SerialNoSeries                 string             `json:"serial_no_series,omitempty"`
	FinanceBooks                   []FinanceBookEntry `json:"finance_books"`
	AssetValue                     decimal.Decimal    `json:"asset_value"`
	DocStatus                      DocStatus          `json:"doc_status"`
	Status                         AssetStatus        `json:"status"`
	ScrapJournal                   string             `json:"scrap_journal,omitempty"`
	DisposalDate                   *Date              `json:"disposal_date,omitempty"`
}

func (a *Asset) Ref() ParentRef { return ParentRef{AssetID: a.ID} }

func (a *Asset) Terms() Terms {
	return Terms{
		Company:                        a.Company,
		Category:                       a.Category,
		CostCenter:                     a.CostCenter,
		GrossPurchaseAmount:            a.GrossPurchaseAmount,
		OpeningAccumulatedDepreciation: a.OpeningAccumulatedDepreciation,
		PurchaseDate:                   a.PurchaseDate,
		AvailableForUseDate:            a.AvailableForUseDate,
		DisposalDate:                   a.DisposalDate,
		CalculateDepreciation:          a.CalculateDepreciation,
	}
}

func (a *Asset) Books() []FinanceBookEntry { return a.FinanceBooks }

func (a *Asset) SetBook(fb FinanceBookEntry) bool {
	for i := range a.FinanceBooks {
		if a.FinanceBooks[i].FinanceBook == fb.FinanceBook {
			a.FinanceBooks[i] = fb
			return true
		}
	}
	return false
}

func (a *Asset) Document() (DocStatus, string) { return a.DocStatus, a.ScrapJournal }
func (a *Asset) SetStatus(s AssetStatus) { a.Status = s }
func (a *Asset) SetAssetValue(v decimal.Decimal) { a.AssetValue = v }

// InitialAssetValue is the book value an asset starts with: existing assets
// that are depreciated carry their opening accumulated depreciation.
func (a *Asset) InitialAssetValue() decimal.Decimal {
	if a.CalculateDepreciation && a.IsExistingAsset {
		return a.GrossPurchaseAmount.Sub(a.OpeningAccumulatedDepreciation)
	}
	return a.GrossPurchaseAmount
}

// Clone returns a deep copy safe to mutate.
func (a *Asset) Clone() *Asset {
	c := *a
	c.FinanceBooks = append([]FinanceBookEntry(nil), a.FinanceBooks...)
	if a.DisposalDate != nil {
		d := *a.DisposalDate
		c.DisposalDate = &d
	}
	return &c
}

// SerialUnit is one individually tracked unit of a serialized asset.
// Its gross purchase amount starts as the parent's and diverges only
// through revaluations of the unit.
type SerialUnit struct {
	SerialNo            string             `json:"serial_no"`
	AssetID             AssetID            `json:"asset_id"`
	GrossPurchaseAmount decimal.Decimal    `json:"gross_purchase_amount"`
	FinanceBooks        []FinanceBookEntry `json:"finance_books"`
	AssetValue          decimal.Decimal    `json:"asset_value"`
	DocStatus           DocStatus          `json:"doc_status"`
	Status              AssetStatus        `json:"status"`
	ScrapJournal        string             `json:"scrap_journal,omitempty"`
	DisposalDate        *Date              `json:"disposal_date,omitempty"`

	// Asset is the parent, hydrated by the store on load.
	Asset *Asset `json:"-"`
}

func (u *SerialUnit) Ref() ParentRef { return ParentRef{AssetID: u.AssetID, SerialNo: u.SerialNo} }

func (u *SerialUnit) Terms() Terms {
	var t Terms
	if u.Asset != nil {
		t = u.Asset.Terms()
	}
	if !u.GrossPurchaseAmount.IsZero() {
		t.GrossPurchaseAmount = u.GrossPurchaseAmount
	}
	if u.DisposalDate != nil {
		t.DisposalDate = u.DisposalDate
	}
	return t
}

func (u *SerialUnit) Books() []FinanceBookEntry { return u.FinanceBooks }

func (u *SerialUnit) SetBook(fb FinanceBookEntry) bool {
	for i := range u.FinanceBooks {
		if u.FinanceBooks[i].FinanceBook == fb.FinanceBook {
			u.FinanceBooks[i] = fb
			return true
		}
	}
	return false
}

func (u *SerialUnit) Document() (DocStatus, string) { return u.DocStatus, u.ScrapJournal }
func (u *SerialUnit) SetStatus(s AssetStatus) { u.Status = s }
func (u *SerialUnit) SetAssetValue(v decimal.Decimal) { u.AssetValue = v }

func (u *SerialUnit) Clone() *SerialUnit {
	c := *u
	c.FinanceBooks = append([]FinanceBookEntry(nil), u.FinanceBooks...)
	if u.DisposalDate != nil {
		d := *u.DisposalDate
		c.DisposalDate = &d
	}
	if u.Asset != nil {
		c.Asset = u.Asset.Clone()
	}
	return &c
}

// =============================================================================
// POSTING - Ledger entry for one schedule row
// =============================================================================

type PostingStatus string

const (
	PostingSubmitted PostingStatus = "Submitted"
	PostingCancelled PostingStatus = "Cancelled"
)

// Posting references exactly one schedule row. Postings are never deleted;
// cancelling one is a compensating transaction.
type Posting struct {
	ID             PostingID       `json:"id"`
	Parent         ParentRef       `json:"parent"`
	ScheduleID     ScheduleID      `json:"schedule_id"`
	RowID          RowID           `json:"row_id"`
	FinanceBook    string          `json:"finance_book"`
	Company        string          `json:"company"`
	PostingDate    Date            `json:"posting_date"`
	Amount         decimal.Decimal `json:"amount"`
	CreditAccount  string          `json:"credit_account"`
	DebitAccount   string          `json:"debit_account"`
	CostCenter     string          `json:"cost_center,omitempty"`
	Status         PostingStatus   `json:"status"`
	IdempotencyKey string          `json:"idempotency_key"`
	CancelReason   string          `json:"cancel_reason,omitempty"`
	CreatedBy      string          `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PostingKey is the idempotency key of the posting for a schedule row.
func PostingKey(scheduleID ScheduleID, rowID RowID) string {
	return string(scheduleID) + "/" + string(rowID)
}

// =============================================================================
// ACTIVITY - Asset audit trail
// =============================================================================

type ActivityType string

const (
	ActivityPurchase       ActivityType = "Purchase"
	ActivityCreation       ActivityType = "Creation"
	ActivityDepreciation   ActivityType = "Depreciation"
	ActivityRepair         ActivityType = "Repair"
	ActivityRevaluation    ActivityType = "Revaluation"
	ActivityScrap          ActivityType = "Scrap"
	ActivityCancellation   ActivityType = "Cancellation"
	ActivityScheduleChange ActivityType = "Schedule Change"
)

type Activity struct {
	ID            string       `json:"id"`
	AssetID       AssetID      `json:"asset_id"`
	SerialNo      string       `json:"serial_no,omitempty"`
	Type          ActivityType `json:"activity_type"`
	Date          Date         `json:"activity_date"`
	ReferenceType string       `json:"reference_type,omitempty"`
	ReferenceID   string       `json:"reference_id,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}
