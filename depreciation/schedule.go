/*
schedule.go - Depreciation schedules and the schedule builder

PURPOSE:
  A Schedule is the time-phased plan for depreciating one asset (or
  serial unit) in one finance book. Rows are ordered by date; each row is
  posted at most once and keeps a reference to its posting.

INVARIANTS:
  - Rows are in ascending ScheduleDate order
  - AccumulatedDepreciationAmount is non-decreasing and starts from the
    opening accumulated depreciation
  - Sum of amounts + opening = gross - salvage for a full life schedule
  - A posted row is never modified or dropped by a rebuild

SEE ALSO:
  - period.go: period generation
  - lifecycle.go: Draft -> Active -> Cancelled transitions
*/
package depreciation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ScheduleStatus string

const (
	ScheduleDraft     ScheduleStatus = "Draft"
	ScheduleActive    ScheduleStatus = "Active"
	ScheduleCancelled ScheduleStatus = "Cancelled"
)

// Row is one planned depreciation amount.
type Row struct {
	ID                            RowID           `json:"id"`
	ScheduleDate                  Date            `json:"schedule_date"`
	DepreciationAmount            decimal.Decimal `json:"depreciation_amount"`
	AccumulatedDepreciationAmount decimal.Decimal `json:"accumulated_depreciation_amount"`
	PostingRef                    PostingID       `json:"posting_ref,omitempty"`
}

func (r Row) IsPosted() bool { return r.PostingRef != "" }

type Schedule struct {
	ID           ScheduleID     `json:"id"`
	Parent       ParentRef      `json:"parent"`
	Company      string         `json:"company"`
	FinanceBook  string         `json:"finance_book"`
	TemplateName string         `json:"template"`
	Status       ScheduleStatus `json:"status"`
	Rows         []Row          `json:"rows"`
	// Note records why a schedule was cancelled.
	Note         string     `json:"note,omitempty"`
	SupersededBy ScheduleID `json:"superseded_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (s *Schedule) Clone() *Schedule {
	c := *s
	c.Rows = append([]Row(nil), s.Rows...)
	return &c
}

func (s *Schedule) PostedRows() []Row {
	var out []Row
	for _, r := range s.Rows {
		if r.IsPosted() {
			out = append(out, r)
		}
	}
	return out
}

// LastPostedRow returns nil when nothing has been posted yet.
func (s *Schedule) LastPostedRow() *Row {
	var last *Row
	for i := range s.Rows {
		if s.Rows[i].IsPosted() {
			last = &s.Rows[i]
		}
	}
	return last
}

// DueRows returns the unposted rows dated on or before date.
func (s *Schedule) DueRows(date Date) []Row {
	var out []Row
	for _, r := range s.Rows {
		if r.ScheduleDate.After(date) {
			break
		}
		if !r.IsPosted() {
			out = append(out, r)
		}
	}
	return out
}

func (s *Schedule) HasDueRows(date Date) bool {
	return len(s.DueRows(date)) > 0
}

func (s *Schedule) RowIndex(id RowID) int {
	for i := range s.Rows {
		if s.Rows[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Schedule) TotalDepreciation() decimal.Decimal {
	total := decimal.Zero
	for _, r := range s.Rows {
		total = total.Add(r.DepreciationAmount)
	}
	return total
}

func (s *Schedule) PostedDepreciation() decimal.Decimal {
	total := decimal.Zero
	for _, r := range s.Rows {
		if r.IsPosted() {
			total = total.Add(r.DepreciationAmount)
		}
	}
	return total
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder creates schedules from templates. It never touches the store.
type Builder struct {
	// Precision is the number of decimal places amounts are rounded to.
	Precision int32
	Now       func() time.Time
}

func NewBuilder(precision int32) *Builder {
	return &Builder{Precision: precision, Now: time.Now}
}

func newID() string { return uuid.NewString() }

// Build generates a fresh Draft schedule for one finance book of parent.
func (b *Builder) Build(parent Depreciable, book FinanceBookEntry, t Template) (*Schedule, error) {
	terms := parent.Terms()
	periods, err := GeneratePeriods(PeriodInput{
		Template:                       t,
		GrossPurchaseAmount:            terms.GrossPurchaseAmount,
		SalvageValue:                   book.SalvageValue,
		OpeningAccumulatedDepreciation: terms.OpeningAccumulatedDepreciation,
		AvailableForUseDate:            terms.AvailableForUseDate,
		PostingStartDate:               book.DepreciationPostingStartDate,
		DisposalDate:                   terms.DisposalDate,
		Precision:                      b.Precision,
	})
	if err != nil {
		return nil, fmt.Errorf("build schedule for %s (%s): %w", parent.Ref(), book.FinanceBook, err)
	}

	s := b.newSchedule(parent, book, t)
	s.Rows = appendRows(nil, periods, terms.OpeningAccumulatedDepreciation)
	return s, nil
}

// Rebuild regenerates the unposted tail of current under template t.
// Posted rows are carried over unchanged (with new row IDs, in the same
// order, at the front of the result) and the remaining rows are computed
// from the last posted date with the posted depreciation as the floor.
// Without posted rows this is a plain Build.
func (b *Builder) Rebuild(current *Schedule, parent Depreciable, book FinanceBookEntry, t Template) (*Schedule, error) {
	last := current.LastPostedRow()
	if last == nil {
		return b.Build(parent, book, t)
	}
	resumeAfter := last.ScheduleDate
	accumulated := last.AccumulatedDepreciationAmount

	terms := parent.Terms()
	periods, err := GeneratePeriods(PeriodInput{
		Template:                       t,
		GrossPurchaseAmount:            terms.GrossPurchaseAmount,
		SalvageValue:                   book.SalvageValue,
		OpeningAccumulatedDepreciation: terms.OpeningAccumulatedDepreciation,
		AvailableForUseDate:            terms.AvailableForUseDate,
		PostingStartDate:               book.DepreciationPostingStartDate,
		DisposalDate:                   terms.DisposalDate,
		ResumeAfter:                    &resumeAfter,
		AccumulatedToDate:              accumulated,
		Precision:                      b.Precision,
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild schedule %s: %w", current.ID, err)
	}

	s := b.newSchedule(parent, book, t)
	for _, r := range current.PostedRows() {
		r.ID = RowID(newID())
		s.Rows = append(s.Rows, r)
	}
	s.Rows = appendRows(s.Rows, periods, accumulated)
	return s, nil
}

func (b *Builder) newSchedule(parent Depreciable, book FinanceBookEntry, t Template) *Schedule {
	now := b.now()
	return &Schedule{
		ID:           ScheduleID(newID()),
		Parent:       parent.Ref(),
		Company:      parent.Terms().Company,
		FinanceBook:  book.FinanceBook,
		TemplateName: t.Name,
		Status:       ScheduleDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (b *Builder) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

func appendRows(rows []Row, periods []Period, accumulated decimal.Decimal) []Row {
	for _, p := range periods {
		accumulated = accumulated.Add(p.Amount)
		rows = append(rows, Row{
			ID:                            RowID(newID()),
			ScheduleDate:                  p.Date,
			DepreciationAmount:            p.Amount,
			AccumulatedDepreciationAmount: accumulated,
		})
	}
	return rows
}
