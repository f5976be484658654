/*
lifecycle.go - Schedule state machine and rebuild triggers

STATE MACHINE (per schedule):

	Draft --(parent submitted)--> Active --(superseded / parent cancelled)--> Cancelled

  Draft schedules are deleted and rebuilt freely. An Active schedule is
  never edited structurally: a change to the parent produces a replacement
  schedule and the old one is cancelled with a note naming the cause.
  Exactly one schedule is Active per (parent, finance book).

TRIGGERS:
  - value or finance book settings change  -> Supersede (postings reversed)
  - useful life change (repairs)           -> ApplyLifeChange (posted rows
                                              and their postings carried over)
  - disposal date set (scrap)              -> Reschedule
  - finance book added / removed           -> SyncFinanceBooks
  - parent cancelled                       -> CancelSchedules

All methods take the Store to write to so callers can run them inside
TxStore.WithTx together with their own writes.
*/
package depreciation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Lifecycle applies schedule transitions.
type Lifecycle struct {
	Builder   *Builder
	BookCache BookCache
	Logger    *zap.Logger
	Now       func() time.Time
}

func NewLifecycle(builder *Builder, cache BookCache, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{Builder: builder, BookCache: cache, Logger: logger, Now: time.Now}
}

func (l *Lifecycle) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}

// =============================================================================
// DRAFT SCHEDULES
// =============================================================================

// CreateDraftSchedules builds one Draft schedule per finance book of p.
// Parents without depreciation get none.
func (l *Lifecycle) CreateDraftSchedules(ctx context.Context, st Store, p Depreciable) ([]*Schedule, error) {
	if !p.Terms().CalculateDepreciation {
		return nil, nil
	}
	existing, err := st.ListSchedules(ctx, p.Ref())
	if err != nil {
		return nil, err
	}

	var created []*Schedule
	for _, fb := range p.Books() {
		if s := openSchedule(existing, fb.FinanceBook); s != nil {
			return nil, fmt.Errorf("%s already has %s schedule %s for finance book %q: %w",
				p.Ref(), s.Status, s.ID, fb.FinanceBook, ErrActiveScheduleExists)
		}
		s, err := l.build(ctx, st, p, fb)
		if err != nil {
			return nil, err
		}
		if err := st.SaveSchedule(ctx, s); err != nil {
			return nil, err
		}
		created = append(created, s)
	}
	return created, nil
}

// RebuildDrafts deletes the Draft schedules of p and builds them again.
func (l *Lifecycle) RebuildDrafts(ctx context.Context, st Store, p Depreciable) ([]*Schedule, error) {
	existing, err := st.ListSchedules(ctx, p.Ref())
	if err != nil {
		return nil, err
	}
	for _, s := range existing {
		switch s.Status {
		case ScheduleDraft:
			if err := st.DeleteSchedule(ctx, s.ID); err != nil {
				return nil, err
			}
		case ScheduleActive:
			return nil, fmt.Errorf("rebuild drafts of %s: schedule %s is active: %w", p.Ref(), s.ID, ErrInvalidTransition)
		}
	}
	return l.CreateDraftSchedules(ctx, st, p)
}

// ActivateSchedules moves the Draft schedules of p to Active. Finance
// books without a schedule get one built and activated.
func (l *Lifecycle) ActivateSchedules(ctx context.Context, st Store, p Depreciable) ([]*Schedule, error) {
	if !p.Terms().CalculateDepreciation {
		return nil, nil
	}
	existing, err := st.ListSchedules(ctx, p.Ref())
	if err != nil {
		return nil, err
	}

	var activated []*Schedule
	for _, fb := range p.Books() {
		s := openSchedule(existing, fb.FinanceBook)
		switch {
		case s == nil:
			if s, err = l.build(ctx, st, p, fb); err != nil {
				return nil, err
			}
		case s.Status == ScheduleActive:
			continue
		}
		s.Status = ScheduleActive
		s.UpdatedAt = l.now()
		if err := st.SaveSchedule(ctx, s); err != nil {
			return nil, err
		}
		activated = append(activated, s)
	}
	return activated, nil
}

// =============================================================================
// ACTIVE SCHEDULE CHANGES
// =============================================================================

// Supersede replaces the Active schedule of one finance book after a value
// or finance book change. Postings made against the old schedule are
// reversed, the old schedule is cancelled with cause as its note, and a
// freshly built replacement is activated.
func (l *Lifecycle) Supersede(ctx context.Context, st Store, p Depreciable, book, cause string) (*Schedule, error) {
	fb, ok := FindBook(p, book)
	if !ok {
		return nil, fmt.Errorf("%s has no finance book %q: %w", p.Ref(), book, ErrNotFound)
	}
	old, err := ActiveSchedule(ctx, st, p.Ref(), book)
	if err != nil {
		return nil, err
	}
	if old != nil {
		if err := l.cancelSchedule(ctx, st, p, old, cause); err != nil {
			return nil, err
		}
		// reversals restored the book value
		fb, _ = FindBook(p, book)
	}

	replacement, err := l.build(ctx, st, p, fb)
	if err != nil {
		return nil, err
	}
	replacement.Status = ScheduleActive
	if err := st.SaveSchedule(ctx, replacement); err != nil {
		return nil, err
	}
	if old != nil {
		old.SupersededBy = replacement.ID
		if err := st.SaveSchedule(ctx, old); err != nil {
			return nil, err
		}
	}
	if err := l.saveParent(ctx, st, p); err != nil {
		return nil, err
	}
	l.recordChange(ctx, st, p, replacement, cause)

	l.logger().Info("schedule superseded",
		zap.String("asset_id", p.Ref().String()),
		zap.String("finance_book", book),
		zap.String("cause", cause),
		zap.String("schedule_id", string(replacement.ID)))
	return replacement, nil
}

// ApplyLifeChange switches one finance book to template t (a longer or
// reverted useful life). Posted rows are kept: they and their postings move
// to the replacement schedule, whose remaining rows are regenerated from
// the last posted date. The old schedule is cancelled with cause as its
// note. Draft parents simply get their drafts rebuilt.
func (l *Lifecycle) ApplyLifeChange(ctx context.Context, st Store, p Depreciable, book string, t Template, cause string) (*Schedule, error) {
	fb, ok := FindBook(p, book)
	if !ok {
		return nil, fmt.Errorf("%s has no finance book %q: %w", p.Ref(), book, ErrNotFound)
	}
	if _, err := st.GetTemplate(ctx, t.Name); errors.Is(err, ErrNotFound) {
		if err := st.SaveTemplate(ctx, t); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	fb.TemplateName = t.Name
	p.SetBook(fb)

	old, err := ActiveSchedule(ctx, st, p.Ref(), book)
	if err != nil {
		return nil, err
	}
	if old == nil {
		if doc, _ := p.Document(); doc == DocDraft {
			if _, err := l.RebuildDrafts(ctx, st, p); err != nil {
				return nil, err
			}
			return nil, l.saveParent(ctx, st, p)
		}
		return nil, fmt.Errorf("%s has no active schedule for finance book %q: %w", p.Ref(), book, ErrNotFound)
	}

	replacement, err := l.Builder.Rebuild(old, p, fb, t)
	if err != nil {
		return nil, err
	}
	replacement.Status = ScheduleActive

	carried := old.PostedRows()
	for i := range old.Rows {
		old.Rows[i].PostingRef = ""
	}
	old.Status = ScheduleCancelled
	old.Note = cause
	old.SupersededBy = replacement.ID
	old.UpdatedAt = l.now()
	if err := st.SaveSchedule(ctx, old); err != nil {
		return nil, err
	}
	if err := st.SaveSchedule(ctx, replacement); err != nil {
		return nil, err
	}

	for i, row := range carried {
		posting, err := st.GetPosting(ctx, row.PostingRef)
		if err != nil {
			return nil, fmt.Errorf("transfer posting %s: %w", row.PostingRef, err)
		}
		target := replacement.Rows[i]
		posting.ScheduleID = replacement.ID
		posting.RowID = target.ID
		posting.IdempotencyKey = PostingKey(replacement.ID, target.ID)
		if err := st.UpdatePosting(ctx, posting); err != nil {
			return nil, fmt.Errorf("transfer posting %s: %w", posting.ID, err)
		}
	}

	if err := l.saveParent(ctx, st, p); err != nil {
		return nil, err
	}
	l.recordChange(ctx, st, p, replacement, cause)

	l.logger().Info("useful life changed",
		zap.String("asset_id", p.Ref().String()),
		zap.String("finance_book", book),
		zap.String("template", t.Name),
		zap.Int("carried_rows", len(carried)),
		zap.String("schedule_id", string(replacement.ID)))
	return replacement, nil
}

// Reschedule recomputes the unposted rows of every Active schedule of p
// under its current template. Used after the disposal date is set.
func (l *Lifecycle) Reschedule(ctx context.Context, st Store, p Depreciable, cause string) error {
	if !p.Terms().CalculateDepreciation {
		return nil
	}
	for _, fb := range p.Books() {
		t, err := st.GetTemplate(ctx, fb.TemplateName)
		if err != nil {
			return fmt.Errorf("template %q for finance book %q: %w", fb.TemplateName, fb.FinanceBook, err)
		}
		if _, err := l.ApplyLifeChange(ctx, st, p, fb.FinanceBook, t, cause); err != nil {
			return err
		}
	}
	return nil
}

// CancelSchedules is called when p is cancelled: drafts are deleted and
// Active schedules cancelled with their postings reversed.
func (l *Lifecycle) CancelSchedules(ctx context.Context, st Store, p Depreciable, cause string) error {
	existing, err := st.ListSchedules(ctx, p.Ref())
	if err != nil {
		return err
	}
	for _, s := range existing {
		switch s.Status {
		case ScheduleDraft:
			if err := st.DeleteSchedule(ctx, s.ID); err != nil {
				return err
			}
		case ScheduleActive:
			if err := l.cancelSchedule(ctx, st, p, s, cause); err != nil {
				return err
			}
		}
	}
	return l.saveParent(ctx, st, p)
}

// SyncFinanceBooks reconciles schedules with the finance books of p after
// an edit. previous is the finance book list before the edit.
//
//	book added                                   -> build (+ activate)
//	book removed                                 -> cancel its schedule
//	salvage, template or posting start changed   -> supersede
func (l *Lifecycle) SyncFinanceBooks(ctx context.Context, st Store, p Depreciable, previous []FinanceBookEntry) error {
	if doc, _ := p.Document(); doc == DocDraft {
		_, err := l.RebuildDrafts(ctx, st, p)
		return err
	}

	before := make(map[string]FinanceBookEntry, len(previous))
	for _, fb := range previous {
		before[fb.FinanceBook] = fb
	}

	for _, fb := range p.Books() {
		prev, existed := before[fb.FinanceBook]
		delete(before, fb.FinanceBook)
		switch {
		case !existed:
			if _, err := l.Supersede(ctx, st, p, fb.FinanceBook, "finance book "+fb.FinanceBook+" added"); err != nil {
				return err
			}
		case bookSettingsChanged(prev, fb):
			if _, err := l.Supersede(ctx, st, p, fb.FinanceBook, "finance book "+fb.FinanceBook+" changed"); err != nil {
				return err
			}
		}
	}

	for name := range before {
		s, err := ActiveSchedule(ctx, st, p.Ref(), name)
		if err != nil {
			return err
		}
		if s == nil {
			continue
		}
		if err := l.cancelSchedule(ctx, st, p, s, "finance book "+name+" removed"); err != nil {
			return err
		}
	}
	return l.saveParent(ctx, st, p)
}

func bookSettingsChanged(a, b FinanceBookEntry) bool {
	return !a.SalvageValue.Equal(b.SalvageValue) ||
		a.TemplateName != b.TemplateName ||
		!a.DepreciationPostingStartDate.Equal(b.DepreciationPostingStartDate)
}

// =============================================================================
// HELPERS
// =============================================================================

// ActiveSchedule returns the Active schedule of (parent, book), or nil.
func ActiveSchedule(ctx context.Context, st ScheduleStore, parent ParentRef, book string) (*Schedule, error) {
	all, err := st.ListSchedules(ctx, parent)
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.FinanceBook == book && s.Status == ScheduleActive {
			return s, nil
		}
	}
	return nil, nil
}

// openSchedule returns the Draft or Active schedule of a book, or nil.
func openSchedule(all []*Schedule, book string) *Schedule {
	for _, s := range all {
		if s.FinanceBook == book && s.Status != ScheduleCancelled {
			return s
		}
	}
	return nil
}

func (l *Lifecycle) build(ctx context.Context, st Store, p Depreciable, fb FinanceBookEntry) (*Schedule, error) {
	t, err := st.GetTemplate(ctx, fb.TemplateName)
	if err != nil {
		return nil, fmt.Errorf("template %q for finance book %q: %w", fb.TemplateName, fb.FinanceBook, err)
	}
	return l.Builder.Build(p, fb, t)
}

// cancelSchedule reverses every posting of s and cancels it.
func (l *Lifecycle) cancelSchedule(ctx context.Context, st Store, p Depreciable, s *Schedule, cause string) error {
	for _, row := range s.PostedRows() {
		posting, err := st.GetPosting(ctx, row.PostingRef)
		if err != nil {
			return fmt.Errorf("reverse posting %s: %w", row.PostingRef, err)
		}
		if err := reversePosting(ctx, st, p, s, &posting, cause); err != nil {
			return err
		}
	}
	s.Status = ScheduleCancelled
	s.Note = cause
	s.UpdatedAt = l.now()
	return st.SaveSchedule(ctx, s)
}

// reversePosting is the compensating transaction for one posting: the
// posting is marked Cancelled, its row reference cleared, and the amount
// given back to the finance book. s and p are updated in memory; callers
// save them.
func reversePosting(ctx context.Context, st PostingStore, p Depreciable, s *Schedule, posting *Posting, reason string) error {
	if posting.Status == PostingCancelled {
		return fmt.Errorf("posting %s is already cancelled: %w", posting.ID, ErrInvalidTransition)
	}
	idx := s.RowIndex(posting.RowID)
	if idx < 0 || s.Rows[idx].PostingRef != posting.ID {
		return &ReferenceError{Message: fmt.Sprintf("posting %s is not linked to a row of schedule %s", posting.ID, s.ID)}
	}

	posting.Status = PostingCancelled
	posting.CancelReason = reason
	if err := st.UpdatePosting(ctx, *posting); err != nil {
		return err
	}
	s.Rows[idx].PostingRef = ""

	if fb, ok := FindBook(p, posting.FinanceBook); ok {
		fb.AssetValue = fb.AssetValue.Add(posting.Amount)
		p.SetBook(fb)
	}
	return nil
}

func (l *Lifecycle) saveParent(ctx context.Context, st Store, p Depreciable) error {
	if err := RefreshStatus(ctx, p, CachedBooks{Dir: st, Cache: l.BookCache}); err != nil {
		return err
	}
	return SaveParent(ctx, st, p)
}

// recordChange logs a schedule change on the asset's activity trail.
// Failures are logged and never abort the transition.
func (l *Lifecycle) recordChange(ctx context.Context, st Store, p Depreciable, s *Schedule, cause string) {
	ref := p.Ref()
	err := st.AppendActivity(ctx, Activity{
		ID:            newID(),
		AssetID:       ref.AssetID,
		SerialNo:      ref.SerialNo,
		Type:          ActivityScheduleChange,
		Date:          DateOf(l.now()),
		ReferenceType: "Depreciation Schedule",
		ReferenceID:   string(s.ID),
		Notes:         cause,
		CreatedAt:     l.now(),
	})
	if err != nil {
		l.logger().Warn("record schedule change", zap.String("schedule_id", string(s.ID)), zap.Error(err))
	}
}

func (l *Lifecycle) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
