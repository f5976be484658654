/*
Package assets holds the asset workflows that drive the depreciation
engine: insert, update, submit, cancel and scrap of assets, repairs that
change the useful life, and revaluations that change the value.

PURPOSE:
  Each workflow is one store transaction that changes the asset and lets
  the schedule lifecycle react to it, so an asset and its schedules never
  disagree.

WORKFLOWS:
  InsertAsset   draft asset + Draft schedules
  UpdateAsset   drafts rebuilt; submitted assets only change finance books
  SubmitAsset   schedules activated, serial units created
  CancelAsset   schedules cancelled, postings reversed
  ScrapAsset    disposal date set, schedules truncated, posted to the date
  repairs.go    CreateRepair / CompleteRepair / SubmitRepair / CancelRepair
  revaluation.go Revalue

SERIALIZED ASSETS:
  A serialized asset does not depreciate itself. Submitting it creates
  NumOfAssets serial units named from SerialNoSeries; each unit copies the
  asset's finance books and gets its own schedules.

SEE ALSO:
  - depreciation/lifecycle.go: schedule transitions
  - depreciation/posting.go: posting engine
*/
package assets

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/asset-engine/depreciation"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store     depreciation.TxStore
	Lifecycle *depreciation.Lifecycle
	// Engine posts depreciation up to the scrap date. Optional.
	Engine    *depreciation.Engine
	BookCache depreciation.BookCache
	Logger    *zap.Logger
	Now       func() time.Time
}

func NewService(st depreciation.TxStore, lc *depreciation.Lifecycle, engine *depreciation.Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Store:     st,
		Lifecycle: lc,
		Engine:    engine,
		BookCache: lc.BookCache,
		Logger:    logger,
		Now:       time.Now,
	}
}

// =============================================================================
// INSERT / UPDATE
// =============================================================================

// InsertAsset saves a new Draft asset and builds its Draft schedules.
// Finance books default to the category's when none are given.
func (s *Service) InsertAsset(ctx context.Context, a *depreciation.Asset) (*depreciation.Asset, error) {
	a = a.Clone()
	if a.ID == "" {
		a.ID = depreciation.AssetID(uuid.NewString())
	}
	a.DocStatus = depreciation.DocDraft
	a.ScrapJournal = ""
	a.DisposalDate = nil

	err := s.Store.WithTx(ctx, func(st depreciation.Store) error {
		if _, err := st.GetAsset(ctx, a.ID); err == nil {
			return invalid("id", "asset %s already exists", a.ID)
		} else if !errors.Is(err, depreciation.ErrNotFound) {
			return err
		}
		if err := s.setMissingValues(ctx, st, a); err != nil {
			return err
		}
		a.AssetValue = a.InitialAssetValue()
		for i := range a.FinanceBooks {
			a.FinanceBooks[i].AssetValue = a.AssetValue
		}
		if err := ValidateAsset(a); err != nil {
			return err
		}
		if !a.IsSerialized {
			if _, err := s.Lifecycle.CreateDraftSchedules(ctx, st, a); err != nil {
				return err
			}
		}
		if err := s.saveAsset(ctx, st, a); err != nil {
			return err
		}
		return s.record(ctx, st, a.Ref(), depreciation.ActivityCreation, depreciation.DateOf(s.now()), "Asset", string(a.ID), "")
	})
	if err != nil {
		return nil, fmt.Errorf("insert asset %s: %w", a.ID, err)
	}
	s.Logger.Info("asset created", zap.String("asset_id", string(a.ID)), zap.Int("finance_books", len(a.FinanceBooks)))
	return a, nil
}

// UpdateAsset applies an edit. A Draft asset takes every field and gets
// its drafts rebuilt. A Submitted asset only accepts name, cost center and
// finance book changes; values are changed through revaluations.
func (s *Service) UpdateAsset(ctx context.Context, upd *depreciation.Asset) (*depreciation.Asset, error) {
	var result *depreciation.Asset
	err := s.Store.WithTx(ctx, func(st depreciation.Store) error {
		cur, err := st.GetAsset(ctx, upd.ID)
		if err != nil {
			return err
		}

		switch cur.DocStatus {
		case depreciation.DocDraft:
			a := upd.Clone()
			a.DocStatus = depreciation.DocDraft
			a.ScrapJournal, a.DisposalDate = "", nil
			if err := s.setMissingValues(ctx, st, a); err != nil {
				return err
			}
			a.AssetValue = a.InitialAssetValue()
			for i := range a.FinanceBooks {
				a.FinanceBooks[i].AssetValue = a.AssetValue
			}
			if err := ValidateAsset(a); err != nil {
				return err
			}
			if a.IsSerialized || !a.CalculateDepreciation {
				if err := deleteDrafts(ctx, st, a.Ref()); err != nil {
					return err
				}
			} else if _, err := s.Lifecycle.RebuildDrafts(ctx, st, a); err != nil {
				return err
			}
			result = a
			return s.saveAsset(ctx, st, a)

		case depreciation.DocSubmitted:
			if field := frozenFieldChanged(cur, upd); field != "" {
				return invalid(field, "cannot be changed after submission; use a revaluation or a repair")
			}
			if cur.ScrapJournal != "" {
				return fmt.Errorf("asset %s is scrapped: %w", cur.ID, depreciation.ErrInvalidTransition)
			}
			a := cur.Clone()
			a.Name = upd.Name
			a.CostCenter = upd.CostCenter
			a.FinanceBooks = mergeBooks(cur.FinanceBooks, upd.FinanceBooks, cur.InitialAssetValue())
			if err := ValidateAsset(a); err != nil {
				return err
			}
			if a.CalculateDepreciation && !a.IsSerialized {
				if err := s.Lifecycle.SyncFinanceBooks(ctx, st, a, cur.FinanceBooks); err != nil {
					return err
				}
			}
			result = a
			return s.saveAsset(ctx, st, a)
		}
		return fmt.Errorf("asset %s is %s: %w", cur.ID, cur.DocStatus, depreciation.ErrInvalidTransition)
	})
	if err != nil {
		return nil, fmt.Errorf("update asset %s: %w", upd.ID, err)
	}
	return result, nil
}

// =============================================================================
// SUBMIT / CANCEL
// =============================================================================

// SubmitAsset activates the schedules of a Draft asset, or creates the
// serial units of a serialized one.
func (s *Service) SubmitAsset(ctx context.Context, id depreciation.AssetID) (*depreciation.Asset, error) {
	var a *depreciation.Asset
	err := s.Store.WithTx(ctx, func(st depreciation.Store) error {
		var err error
		if a, err = st.GetAsset(ctx, id); err != nil {
			return err
		}
		if a.DocStatus != depreciation.DocDraft {
			return fmt.Errorf("asset %s is %s: %w", id, a.DocStatus, depreciation.ErrInvalidTransition)
		}
		if err := ValidateAsset(a); err != nil {
			return err
		}
		a.DocStatus = depreciation.DocSubmitted

		if a.IsSerialized {
			if err := s.createSerialUnits(ctx, st, a); err != nil {
				return err
			}
		} else {
			if _, err := s.Lifecycle.ActivateSchedules(ctx, st, a); err != nil {
				return err
			}
			if err := s.record(ctx, st, a.Ref(), depreciation.ActivityPurchase, a.PurchaseDate, "Asset", string(a.ID), ""); err != nil {
				return err
			}
		}
		return s.saveAsset(ctx, st, a)
	})
	if err != nil {
		return nil, fmt.Errorf("submit asset %s: %w", id, err)
	}
	s.Logger.Info("asset submitted", zap.String("asset_id", string(id)), zap.Bool("serialized", a.IsSerialized))
	return a, nil
}

// createSerialUnits creates NumOfAssets units with the next free numbers
// of the asset's series.
func (s *Service) createSerialUnits(ctx context.Context, st depreciation.Store, a *depreciation.Asset) error {
	n := 0
	for created := 0; created < a.NumOfAssets; {
		n++
		serialNo := serialNumber(a.SerialNoSeries, n)
		if _, err := st.GetSerialUnit(ctx, serialNo); err == nil {
			continue
		} else if !errors.Is(err, depreciation.ErrNotFound) {
			return err
		}

		u := &depreciation.SerialUnit{
			SerialNo:     serialNo,
			AssetID:      a.ID,
			FinanceBooks: slices.Clone(a.FinanceBooks),
			DocStatus:    depreciation.DocSubmitted,
			Asset:        a,
		}
		for i := range u.FinanceBooks {
			u.FinanceBooks[i].AssetValue = a.InitialAssetValue()
		}
		if _, err := s.Lifecycle.ActivateSchedules(ctx, st, u); err != nil {
			return err
		}
		if err := s.saveParent(ctx, st, u); err != nil {
			return err
		}
		if err := s.record(ctx, st, u.Ref(), depreciation.ActivityPurchase, a.PurchaseDate, "Asset", string(a.ID), ""); err != nil {
			return err
		}
		if err := s.record(ctx, st, u.Ref(), depreciation.ActivityCreation, depreciation.DateOf(s.now()), "Asset Serial No", serialNo, ""); err != nil {
			return err
		}
		created++
	}
	return nil
}

// CancelAsset cancels a submitted asset and its serial units. Active
// schedules are cancelled and their postings reversed.
func (s *Service) CancelAsset(ctx context.Context, id depreciation.AssetID, reason string) (*depreciation.Asset, error) {
	if reason == "" {
		reason = "asset cancelled"
	}
	var a *depreciation.Asset
	err := s.Store.WithTx(ctx, func(st depreciation.Store) error {
		var err error
		if a, err = st.GetAsset(ctx, id); err != nil {
			return err
		}
		if a.DocStatus != depreciation.DocSubmitted {
			return fmt.Errorf("asset %s is %s: %w", id, a.DocStatus, depreciation.ErrInvalidTransition)
		}

		units, err := st.ListSerialUnits(ctx, id)
		if err != nil {
			return err
		}
		for _, u := range units {
			if u.DocStatus != depreciation.DocSubmitted {
				continue
			}
			u.DocStatus = depreciation.DocCancelled
			if err := s.Lifecycle.CancelSchedules(ctx, st, u, reason); err != nil {
				return err
			}
		}

		a.DocStatus = depreciation.DocCancelled
		if err := s.Lifecycle.CancelSchedules(ctx, st, a, reason); err != nil {
			return err
		}
		return s.record(ctx, st, a.Ref(), depreciation.ActivityCancellation, depreciation.DateOf(s.now()), "Asset", string(id), reason)
	})
	if err != nil {
		return nil, fmt.Errorf("cancel asset %s: %w", id, err)
	}
	s.Logger.Info("asset cancelled", zap.String("asset_id", string(id)), zap.String("reason", reason))
	return a, nil
}

// =============================================================================
// SCRAP
// =============================================================================

// ScrapAsset disposes of an asset or serial unit on date. Schedules are
// cut at the disposal date, depreciation is posted up to it, and the scrap
// journal is linked last, all in one transaction.
func (s *Service) ScrapAsset(ctx context.Context, ref depreciation.ParentRef, date depreciation.Date, journal string) (depreciation.Depreciable, error) {
	if journal == "" {
		journal = "SCRAP-" + uuid.NewString()[:8]
	}
	cause := "scrapped on " + date.String()
	if s.Engine != nil {
		if err := s.Engine.Authorize(ctx); err != nil {
			return nil, fmt.Errorf("scrap %s: %w", ref, err)
		}
	}

	var (
		scrapped depreciation.Depreciable
		posted   []depreciation.PostResult
	)
	err := s.Store.WithTx(ctx, func(st depreciation.Store) error {
		p, err := depreciation.LoadParent(ctx, st, ref)
		if err != nil {
			return err
		}
		if err := checkScrappable(p, date); err != nil {
			return err
		}
		schedules, err := st.ListSchedules(ctx, ref)
		if err != nil {
			return err
		}
		for _, sch := range schedules {
			if sch.Status != depreciation.ScheduleActive {
				continue
			}
			if last := sch.LastPostedRow(); last != nil && last.ScheduleDate.After(date) {
				return invalid("scrap_date", "depreciation is already posted up to %s in %s; cancel those postings first", last.ScheduleDate, sch.FinanceBook)
			}
		}

		setDisposalDate(p, date)
		if err := s.Lifecycle.Reschedule(ctx, st, p, cause); err != nil {
			return err
		}
		if err := s.saveParent(ctx, st, p); err != nil {
			return err
		}

		if s.Engine != nil {
			if schedules, err = st.ListSchedules(ctx, ref); err != nil {
				return err
			}
			for _, sch := range schedules {
				if sch.Status != depreciation.ScheduleActive || !sch.HasDueRows(date) {
					continue
				}
				res, err := s.Engine.PostEntriesTx(ctx, st, sch.ID, date)
				if err != nil {
					return fmt.Errorf("post schedule %s: %w", sch.ID, err)
				}
				posted = append(posted, res)
			}
			// posting saved its own copy of the parent
			if p, err = depreciation.LoadParent(ctx, st, ref); err != nil {
				return err
			}
		}

		setScrapJournal(p, journal)
		if err := s.saveParent(ctx, st, p); err != nil {
			return err
		}
		scrapped = p
		return s.record(ctx, st, ref, depreciation.ActivityScrap, date, "Journal Entry", journal, "")
	})
	if err != nil {
		return nil, fmt.Errorf("scrap %s: %w", ref, err)
	}
	for _, res := range posted {
		s.Engine.RecordPosted(res)
	}
	s.Logger.Info("asset scrapped", zap.String("asset_id", ref.String()), zap.String("date", date.String()))
	return scrapped, nil
}

func checkScrappable(p depreciation.Depreciable, date depreciation.Date) error {
	doc, journal := p.Document()
	switch {
	case doc != depreciation.DocSubmitted:
		return fmt.Errorf("%s is %s: %w", p.Ref(), doc, depreciation.ErrInvalidTransition)
	case journal != "":
		return fmt.Errorf("%s is already scrapped: %w", p.Ref(), depreciation.ErrInvalidTransition)
	}
	if a, ok := p.(*depreciation.Asset); ok && a.IsSerialized {
		return invalid("serial_no", "scrap the serial units of asset %s individually", a.ID)
	}
	if date.Before(p.Terms().PurchaseDate) {
		return invalid("scrap_date", "cannot be before purchase date %s", p.Terms().PurchaseDate)
	}
	return nil
}

func setDisposalDate(p depreciation.Depreciable, date depreciation.Date) {
	switch v := p.(type) {
	case *depreciation.Asset:
		v.DisposalDate = &date
	case *depreciation.SerialUnit:
		v.DisposalDate = &date
	}
}

func setScrapJournal(p depreciation.Depreciable, journal string) {
	switch v := p.(type) {
	case *depreciation.Asset:
		v.ScrapJournal = journal
	case *depreciation.SerialUnit:
		v.ScrapJournal = journal
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// setMissingValues fills the finance books from the asset category when
// the asset lists none. Posting starts at the first month end after
// available-for-use.
func (s *Service) setMissingValues(ctx context.Context, st depreciation.Store, a *depreciation.Asset) error {
	if a.NumOfAssets == 0 {
		a.NumOfAssets = 1
	}
	if !a.CalculateDepreciation || len(a.FinanceBooks) > 0 || a.Category == "" {
		return nil
	}
	cat, err := st.GetCategory(ctx, a.Category)
	if errors.Is(err, depreciation.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	start := a.AvailableForUseDate.EndOfMonth()
	if start.Equal(a.AvailableForUseDate) {
		start = a.AvailableForUseDate.AddMonths(1).EndOfMonth()
	}
	for _, cb := range cat.FinanceBooks {
		a.FinanceBooks = append(a.FinanceBooks, depreciation.FinanceBookEntry{
			FinanceBook:                  cb.FinanceBook,
			TemplateName:                 cb.TemplateName,
			DepreciationPostingStartDate: start,
		})
	}
	return nil
}

// frozenFieldChanged names the first value field an update of a submitted
// asset tries to change.
func frozenFieldChanged(cur, upd *depreciation.Asset) string {
	switch {
	case !cur.GrossPurchaseAmount.Equal(upd.GrossPurchaseAmount):
		return "gross_purchase_amount"
	case !cur.OpeningAccumulatedDepreciation.Equal(upd.OpeningAccumulatedDepreciation):
		return "opening_accumulated_depreciation"
	case !cur.PurchaseDate.Equal(upd.PurchaseDate):
		return "purchase_date"
	case !cur.AvailableForUseDate.Equal(upd.AvailableForUseDate):
		return "available_for_use_date"
	case cur.CalculateDepreciation != upd.CalculateDepreciation:
		return "calculate_depreciation"
	case cur.IsSerialized != upd.IsSerialized:
		return "is_serialized"
	case cur.NumOfAssets != upd.NumOfAssets:
		return "num_of_assets"
	case cur.Company != upd.Company:
		return "company"
	case cur.Category != upd.Category:
		return "category"
	}
	return ""
}

// mergeBooks keeps the running value of books that already existed and
// starts new ones at initial.
func mergeBooks(cur, upd []depreciation.FinanceBookEntry, initial decimal.Decimal) []depreciation.FinanceBookEntry {
	values := make(map[string]decimal.Decimal, len(cur))
	for _, fb := range cur {
		values[fb.FinanceBook] = fb.AssetValue
	}
	out := slices.Clone(upd)
	for i := range out {
		if v, ok := values[out[i].FinanceBook]; ok {
			out[i].AssetValue = v
		} else {
			out[i].AssetValue = initial
		}
	}
	return out
}

func deleteDrafts(ctx context.Context, st depreciation.Store, ref depreciation.ParentRef) error {
	schedules, err := st.ListSchedules(ctx, ref)
	if err != nil {
		return err
	}
	for _, sch := range schedules {
		if sch.Status == depreciation.ScheduleDraft {
			if err := st.DeleteSchedule(ctx, sch.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) saveAsset(ctx context.Context, st depreciation.Store, a *depreciation.Asset) error {
	return s.saveParent(ctx, st, a)
}

func (s *Service) saveParent(ctx context.Context, st depreciation.Store, p depreciation.Depreciable) error {
	if err := depreciation.RefreshStatus(ctx, p, depreciation.CachedBooks{Dir: st, Cache: s.BookCache}); err != nil {
		return err
	}
	return depreciation.SaveParent(ctx, st, p)
}

func (s *Service) record(ctx context.Context, st depreciation.Store, ref depreciation.ParentRef, typ depreciation.ActivityType, date depreciation.Date, refType, refID, notes string) error {
	return st.AppendActivity(ctx, depreciation.Activity{
		ID:            uuid.NewString(),
		AssetID:       ref.AssetID,
		SerialNo:      ref.SerialNo,
		Type:          typ,
		Date:          date,
		ReferenceType: refType,
		ReferenceID:   refID,
		Notes:         notes,
		CreatedAt:     s.now(),
	})
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
