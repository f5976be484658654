package assets

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/asset-engine/depreciation"
)

// =============================================================================
// REPAIRS
// =============================================================================

// CreateRepair records a repair against a submitted asset or serial unit.
// While a repair is Pending the asset is Out of Order.
func (s *Service) CreateRepair(ctx context.Context, r depreciation.Repair) (depreciation.Repair, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = depreciation.RepairPending
	}
	r.DocStatus = depreciation.DocDraft
	r.CreatedAt = s.now()

	err := s.Store.WithTx(ctx, func(st depreciation.Store) error {
		if err := validateRepair(r); err != nil {
			return err
		}
		p, err := s.loadAdjustable(ctx, st, r.Parent(), r.FinanceBook)
		if err != nil {
			return err
		}
		if err := st.SaveRepair(ctx, r); err != nil {
			return err
		}
		return s.updateRepairStatus(ctx, st, p, r)
	})
	if err != nil {
		return depreciation.Repair{}, fmt.Errorf("create repair for %s: %w", r.Parent(), err)
	}
	return r, nil
}

// CompleteRepair marks a Draft repair completed on date and submits it.
func (s *Service) CompleteRepair(ctx context.Context, id string, date depreciation.Date) (depreciation.Repair, error) {
	err := s.Store.WithTx(ctx, func(st depreciation.Store) error {
		r, err := st.GetRepair(ctx, id)
		if err != nil {
			return err
		}
		if r.DocStatus != depreciation.DocDraft {
			return fmt.Errorf("repair %s is %s: %w", id, r.DocStatus, depreciation.ErrInvalidTransition)
		}
		r.Status = depreciation.RepairCompleted
		r.CompletionDate = date
		if err := validateRepair(r); err != nil {
			return err
		}
		return st.SaveRepair(ctx, r)
	})
	if err != nil {
		return depreciation.Repair{}, fmt.Errorf("complete repair %s: %w", id, err)
	}
	return s.SubmitRepair(ctx, id)
}

// SubmitRepair submits a completed repair. An increase in asset life
// switches the affected finance books to a template with the longer life;
// posted rows and their postings carry over.
func (s *Service) SubmitRepair(ctx context.Context, id string) (depreciation.Repair, error) {
	var r depreciation.Repair
	err := s.Store.WithTx(ctx, func(st depreciation.Store) error {
		var err error
		if r, err = st.GetRepair(ctx, id); err != nil {
			return err
		}
		if r.DocStatus != depreciation.DocDraft {
			return fmt.Errorf("repair %s is %s: %w", id, r.DocStatus, depreciation.ErrInvalidTransition)
		}
		if r.Status == depreciation.RepairPending {
			return invalid("repair_status", "please update repair status")
		}
		p, err := s.loadAdjustable(ctx, st, r.Parent(), r.FinanceBook)
		if err != nil {
			return err
		}

		r.DocStatus = depreciation.DocSubmitted
		if err := st.SaveRepair(ctx, r); err != nil {
			return err
		}
		if r.Status == depreciation.RepairCompleted && r.IncreaseInAssetLife > 0 && p.Terms().CalculateDepreciation {
			cause := "repair " + r.ID + ": useful life extended by " + strconv.Itoa(r.IncreaseInAssetLife) + " months"
			for _, fb := range affectedBooks(p, r.FinanceBook) {
				current, err := st.GetTemplate(ctx, fb.TemplateName)
				if err != nil {
					return err
				}
				extended, err := freeTemplate(ctx, st, depreciation.ExtendLife(current, r.IncreaseInAssetLife))
				if err != nil {
					return err
				}
				if _, err := s.Lifecycle.ApplyLifeChange(ctx, st, p, fb.FinanceBook, extended, cause); err != nil {
					return err
				}
			}
		}
		if err := s.updateRepairStatus(ctx, st, p, r); err != nil {
			return err
		}
		return s.record(ctx, st, r.Parent(), depreciation.ActivityRepair, r.CompletionDate, "Asset Repair", r.ID, r.Description)
	})
	if err != nil {
		return depreciation.Repair{}, fmt.Errorf("submit repair %s: %w", id, err)
	}
	s.Logger.Info("repair submitted",
		zap.String("repair_id", id),
		zap.String("asset_id", r.Parent().String()),
		zap.Int("increase_in_asset_life", r.IncreaseInAssetLife))
	return r, nil
}

// CancelRepair cancels a repair. A submitted repair that extended the
// useful life puts each affected book back on the template it was derived
// from.
func (s *Service) CancelRepair(ctx context.Context, id string) (depreciation.Repair, error) {
	var r depreciation.Repair
	err := s.Store.WithTx(ctx, func(st depreciation.Store) error {
		var err error
		if r, err = st.GetRepair(ctx, id); err != nil {
			return err
		}
		if r.DocStatus == depreciation.DocCancelled {
			return fmt.Errorf("repair %s is already cancelled: %w", id, depreciation.ErrInvalidTransition)
		}
		p, err := depreciation.LoadParent(ctx, st, r.Parent())
		if err != nil {
			return err
		}

		extended := r.DocStatus == depreciation.DocSubmitted && r.Status == depreciation.RepairCompleted && r.IncreaseInAssetLife > 0
		if extended && p.Terms().CalculateDepreciation {
			cause := "repair " + r.ID + " cancelled"
			for _, fb := range affectedBooks(p, r.FinanceBook) {
				current, err := st.GetTemplate(ctx, fb.TemplateName)
				if err != nil {
					return err
				}
				name := depreciation.OriginalTemplateName(current)
				if name == current.Name {
					continue
				}
				original, err := st.GetTemplate(ctx, name)
				if err != nil {
					return fmt.Errorf("revert finance book %q: %w", fb.FinanceBook, err)
				}
				if _, err := s.Lifecycle.ApplyLifeChange(ctx, st, p, fb.FinanceBook, original, cause); err != nil {
					return err
				}
			}
		}

		r.DocStatus = depreciation.DocCancelled
		r.Status = depreciation.RepairCancelled
		if err := st.SaveRepair(ctx, r); err != nil {
			return err
		}
		if err := s.updateRepairStatus(ctx, st, p, r); err != nil {
			return err
		}
		return s.record(ctx, st, r.Parent(), depreciation.ActivityRepair, depreciation.DateOf(s.now()), "Asset Repair", r.ID, "repair cancelled")
	})
	if err != nil {
		return depreciation.Repair{}, fmt.Errorf("cancel repair %s: %w", id, err)
	}
	return r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func validateRepair(r depreciation.Repair) error {
	switch r.Status {
	case depreciation.RepairPending, depreciation.RepairCompleted, depreciation.RepairCancelled:
	default:
		return invalid("repair_status", "unknown repair status %q", r.Status)
	}
	if r.FailureDate.IsZero() {
		return invalid("failure_date", "is required")
	}
	if r.RepairCost.IsNegative() {
		return invalid("repair_cost", "cannot be negative")
	}
	if r.IncreaseInAssetLife < 0 {
		return invalid("increase_in_asset_life", "cannot be negative")
	}
	if r.Status == depreciation.RepairCompleted {
		if r.CompletionDate.IsZero() {
			return invalid("completion_date", "is required for a completed repair")
		}
		if r.CompletionDate.Before(r.FailureDate) {
			return invalid("completion_date", "cannot be before failure date %s", r.FailureDate)
		}
	}
	return nil
}

// loadAdjustable loads the submitted parent a repair or revaluation refers
// to and checks the serial number and finance book against it.
func (s *Service) loadAdjustable(ctx context.Context, st depreciation.Store, ref depreciation.ParentRef, book string) (depreciation.Depreciable, error) {
	a, err := st.GetAsset(ctx, ref.AssetID)
	if err != nil {
		return nil, err
	}
	if err := validateUnitReference(a, ref.SerialNo); err != nil {
		return nil, err
	}
	p, err := depreciation.LoadParent(ctx, st, ref)
	if err != nil {
		return nil, err
	}
	doc, journal := p.Document()
	switch {
	case doc != depreciation.DocSubmitted:
		return nil, fmt.Errorf("%s is %s: %w", ref, doc, depreciation.ErrInvalidTransition)
	case journal != "":
		return nil, fmt.Errorf("%s is scrapped: %w", ref, depreciation.ErrInvalidTransition)
	}
	if book != "" {
		if _, ok := depreciation.FindBook(p, book); !ok {
			return nil, invalid("finance_book", "%s is not used in %s", book, ref)
		}
	}
	return p, nil
}

// updateRepairStatus marks the parent Out of Order while any of its
// repairs is pending and rederives the status otherwise.
func (s *Service) updateRepairStatus(ctx context.Context, st depreciation.Store, p depreciation.Depreciable, r depreciation.Repair) error {
	repairs, err := st.ListRepairs(ctx, r.Parent())
	if err != nil {
		return err
	}
	if err := depreciation.RefreshStatus(ctx, p, depreciation.CachedBooks{Dir: st, Cache: s.BookCache}); err != nil {
		return err
	}
	for _, other := range repairs {
		if other.Status == depreciation.RepairPending && other.DocStatus != depreciation.DocCancelled {
			p.SetStatus(depreciation.StatusOutOfOrder)
			break
		}
	}
	return depreciation.SaveParent(ctx, st, p)
}

func affectedBooks(p depreciation.Depreciable, book string) []depreciation.FinanceBookEntry {
	if book == "" {
		return p.Books()
	}
	fb, ok := depreciation.FindBook(p, book)
	if !ok {
		return nil
	}
	return []depreciation.FinanceBookEntry{fb}
}

// freeTemplate returns t, renamed when a different template already uses
// its name. An identical stored template is reused as is.
func freeTemplate(ctx context.Context, st depreciation.TemplateStore, t depreciation.Template) (depreciation.Template, error) {
	base := t.Name
	for n := 2; ; n++ {
		existing, err := st.GetTemplate(ctx, t.Name)
		if errors.Is(err, depreciation.ErrNotFound) {
			return t, nil
		}
		if err != nil {
			return depreciation.Template{}, err
		}
		if sameTemplate(existing, t) {
			return existing, nil
		}
		t.Name = base + " " + strconv.Itoa(n)
	}
}

func sameTemplate(a, b depreciation.Template) bool {
	return a.Method == b.Method &&
		a.Frequency == b.Frequency &&
		a.FrequencyMonths == b.FrequencyMonths &&
		a.AssetLife == b.AssetLife &&
		a.LifeUnit == b.LifeUnit &&
		a.RateOfDepreciation.Equal(b.RateOfDepreciation) &&
		a.DerivedFrom == b.DerivedFrom
}
