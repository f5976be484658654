/*
posting.go - Posting engine

PURPOSE:
  Creates one Posting per due schedule row, exactly once, and keeps the
  finance book value and the parent's status in step.

ENTRY POINTS:
  PostDepreciationEntries(ctx, schedule, date)  one schedule, atomic
  PostEntriesTx(ctx, st, schedule, date)        same, inside a caller's transaction
  PostDue(ctx, date)                            every Active schedule with due rows
  PostAllDepreciationEntries(ctx, date)         PostDue, gated by settings
  CancelPosting(ctx, posting, reason)           compensating transaction

IDEMPOTENCE:
  A row with a PostingRef is never posted again, and every posting carries
  the key <schedule>/<row>, so re-running a sweep for the same date is a
  no-op. A failed schedule is retried by the next sweep.

ORDERING:
  Rows of one schedule are posted in ascending date order and the run
  stops at the first row dated after the requested date. Only the latest
  posted row can be cancelled, so posted rows always form a prefix of the
  schedule.
*/
package depreciation

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Settings are the company-wide posting switches.
type Settings struct {
	// AutomaticPostingEnabled gates PostAllDepreciationEntries.
	AutomaticPostingEnabled bool
	// MaxConcurrency bounds how many schedules a sweep posts in parallel.
	MaxConcurrency int
}

// Recorder receives posting metrics. Implemented by metrics.Metrics.
type Recorder interface {
	PostingsCreated(financeBook string, count int, amount decimal.Decimal)
	PostingCancelled(financeBook string)
	ScheduleFailed(reason string)
	SweepCompleted(schedules, failures int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) PostingsCreated(string, int, decimal.Decimal) {}
func (nopRecorder) PostingCancelled(string)                      {}
func (nopRecorder) ScheduleFailed(string)                        {}
func (nopRecorder) SweepCompleted(int, int, time.Duration)       {}

// =============================================================================
// ENGINE
// =============================================================================

// Engine reads accounts and company settings through the transaction it
// runs in.
type Engine struct {
	Store      TxStore
	Authorizer Authorizer
	BookCache  BookCache
	Settings   Settings
	Metrics    Recorder
	Logger     *zap.Logger
	Now        func() time.Time

	mu sync.RWMutex
}

// NewEngine returns an engine allowing every caller, with automatic
// posting disabled.
func NewEngine(st TxStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Store:      st,
		Authorizer: AllowAll{},
		Settings:   Settings{MaxConcurrency: 4},
		Metrics:    nopRecorder{},
		Logger:     logger,
		Now:        time.Now,
	}
}

// PostResult lists the postings created for one schedule.
type PostResult struct {
	ScheduleID  ScheduleID      `json:"schedule_id"`
	FinanceBook string          `json:"finance_book,omitempty"`
	Postings    []Posting       `json:"postings"`
	Decrease    decimal.Decimal `json:"decrease_in_value"`
}

// ScheduleFailure is one schedule a sweep could not post.
type ScheduleFailure struct {
	ScheduleID ScheduleID `json:"schedule_id"`
	Err        error      `json:"-"`
	Message    string     `json:"error"`
}

// SweepReport summarizes a sweep. Failures never abort the sweep.
type SweepReport struct {
	Date      Date              `json:"date"`
	Disabled  bool              `json:"disabled,omitempty"`
	Schedules int               `json:"schedules"`
	Postings  int               `json:"postings"`
	Failures  []ScheduleFailure `json:"failures,omitempty"`
}

func (r SweepReport) Failed() bool { return len(r.Failures) > 0 }

// PostDepreciationEntries posts every unposted row of an Active schedule
// dated on or before date. Permission is checked before anything is read
// or written; the rest runs in one store transaction.
func (e *Engine) PostDepreciationEntries(ctx context.Context, id ScheduleID, date Date) (PostResult, error) {
	if err := e.Authorize(ctx); err != nil {
		return PostResult{ScheduleID: id, Decrease: decimal.Zero}, err
	}

	var result PostResult
	err := e.Store.WithTx(ctx, func(st Store) error {
		var err error
		result, err = e.PostEntriesTx(ctx, st, id, date)
		return err
	})
	if err != nil {
		return PostResult{ScheduleID: id, Decrease: decimal.Zero}, fmt.Errorf("post schedule %s: %w", id, err)
	}
	e.RecordPosted(result)
	return result, nil
}

// PostEntriesTx posts the due rows of one schedule through st. It does not
// check permission; the caller authorizes, owns the transaction and calls
// RecordPosted once it commits.
func (e *Engine) PostEntriesTx(ctx context.Context, st Store, id ScheduleID, date Date) (PostResult, error) {
	result := PostResult{ScheduleID: id, Decrease: decimal.Zero}

	s, err := st.GetSchedule(ctx, id)
	if err != nil {
		return result, err
	}
	if s.Status != ScheduleActive {
		return result, fmt.Errorf("schedule %s is %s: %w", s.ID, s.Status, ErrInvalidTransition)
	}
	result.FinanceBook = s.FinanceBook
	if !s.HasDueRows(date) {
		return result, nil
	}

	p, err := LoadParent(ctx, st, s.Parent)
	if err != nil {
		return result, err
	}
	fb, ok := FindBook(p, s.FinanceBook)
	if !ok {
		return result, &ReferenceError{Message: fmt.Sprintf("finance book %s of schedule %s is not used in %s", s.FinanceBook, s.ID, p.Ref())}
	}
	terms := p.Terms()
	accounts := &AccountsResolver{Directory: st}
	credit, debit, err := accounts.ResolveDepreciationAccounts(ctx, terms.Category, terms.Company)
	if err != nil {
		return result, err
	}
	costCenter := terms.CostCenter
	if costCenter == "" {
		if costCenter, err = accounts.DepreciationCostCenter(ctx, terms.Company); err != nil {
			return result, err
		}
	}

	actor, _ := ActorFrom(ctx)
	now := e.now()
	for i := range s.Rows {
		row := &s.Rows[i]
		if row.ScheduleDate.After(date) {
			break
		}
		if row.IsPosted() {
			continue
		}
		posting := Posting{
			ID:             PostingID(newID()),
			Parent:         s.Parent,
			ScheduleID:     s.ID,
			RowID:          row.ID,
			FinanceBook:    s.FinanceBook,
			Company:        terms.Company,
			PostingDate:    row.ScheduleDate,
			Amount:         row.DepreciationAmount,
			CreditAccount:  credit,
			DebitAccount:   debit,
			CostCenter:     costCenter,
			Status:         PostingSubmitted,
			IdempotencyKey: PostingKey(s.ID, row.ID),
			CreatedBy:      actor.ID,
			CreatedAt:      now,
		}
		if err := ValidatePosting(posting, s, p); err != nil {
			return result, err
		}
		if err := st.AppendPosting(ctx, posting); err != nil {
			return result, fmt.Errorf("append posting for row %s: %w", row.ID, err)
		}
		row.PostingRef = posting.ID
		result.Decrease = result.Decrease.Add(posting.Amount)
		result.Postings = append(result.Postings, posting)

		if err := st.AppendActivity(ctx, Activity{
			ID:            newID(),
			AssetID:       s.Parent.AssetID,
			SerialNo:      s.Parent.SerialNo,
			Type:          ActivityDepreciation,
			Date:          posting.PostingDate,
			ReferenceType: "Depreciation Posting",
			ReferenceID:   string(posting.ID),
			CreatedAt:     now,
		}); err != nil {
			return result, err
		}
	}

	// decrease applied once per run
	fb.AssetValue = fb.AssetValue.Sub(result.Decrease)
	p.SetBook(fb)

	s.UpdatedAt = now
	if err := st.SaveSchedule(ctx, s); err != nil {
		return result, err
	}
	if err := RefreshStatus(ctx, p, CachedBooks{Dir: st, Cache: e.BookCache}); err != nil {
		return result, err
	}
	return result, SaveParent(ctx, st, p)
}

// RecordPosted reports a committed PostResult to metrics and the log.
func (e *Engine) RecordPosted(result PostResult) {
	n := len(result.Postings)
	if n == 0 {
		return
	}
	e.metrics().PostingsCreated(result.FinanceBook, n, result.Decrease)
	e.logger().Debug("depreciation posted",
		zap.String("schedule_id", string(result.ScheduleID)),
		zap.Int("postings", n),
		zap.String("amount", result.Decrease.String()))
}

// CurrentSettings returns a copy of the posting switches.
func (e *Engine) CurrentSettings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Settings
}

// SetAutomaticPosting turns scheduled posting on or off at runtime.
func (e *Engine) SetAutomaticPosting(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Settings.AutomaticPostingEnabled = enabled
}

// PostAllDepreciationEntries is the scheduled entry point: a no-op unless
// automatic posting is enabled.
func (e *Engine) PostAllDepreciationEntries(ctx context.Context, date Date) (SweepReport, error) {
	if !e.CurrentSettings().AutomaticPostingEnabled {
		e.logger().Debug("automatic depreciation posting disabled")
		return SweepReport{Date: date, Disabled: true}, nil
	}
	return e.PostDue(ctx, date)
}

// PostDue posts every Active schedule with rows due on or before date.
// Schedules are processed independently on a bounded pool of workers; a
// failing schedule is reported and logged without stopping the others.
func (e *Engine) PostDue(ctx context.Context, date Date) (SweepReport, error) {
	report := SweepReport{Date: date}
	if err := e.Authorize(ctx); err != nil {
		return report, err
	}
	started := e.now()

	ids, err := e.Store.ListDueSchedules(ctx, date)
	if err != nil {
		return report, fmt.Errorf("list due schedules: %w", err)
	}
	report.Schedules = len(ids)

	workers := e.CurrentSettings().MaxConcurrency
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, id := range ids {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(id ScheduleID) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := e.PostDepreciationEntries(ctx, id, date)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, ScheduleFailure{ScheduleID: id, Err: err, Message: err.Error()})
				e.metrics().ScheduleFailed(failureReason(err))
				e.logger().Warn("depreciation posting failed",
					zap.String("schedule_id", string(id)),
					zap.Error(err))
				return
			}
			report.Postings += len(res.Postings)
		}(id)
	}
	wg.Wait()

	slices.SortFunc(report.Failures, func(a, b ScheduleFailure) int {
		switch {
		case a.ScheduleID < b.ScheduleID:
			return -1
		case a.ScheduleID > b.ScheduleID:
			return 1
		}
		return 0
	})

	elapsed := e.now().Sub(started)
	e.metrics().SweepCompleted(report.Schedules, len(report.Failures), elapsed)
	e.logger().Info("depreciation sweep finished",
		zap.String("date", date.String()),
		zap.Int("schedules", report.Schedules),
		zap.Int("postings", report.Postings),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("elapsed", elapsed))
	return report, ctx.Err()
}

// CancelPosting reverses a posting: it is marked Cancelled, its row
// reference cleared, the amount added back to the finance book, and the
// parent's status recomputed. History is kept. Only the posting of the
// schedule's latest posted row can be cancelled; later ones go first.
func (e *Engine) CancelPosting(ctx context.Context, id PostingID, reason string) error {
	if err := e.Authorize(ctx); err != nil {
		return err
	}
	var book string
	err := e.Store.WithTx(ctx, func(st Store) error {
		posting, err := st.GetPosting(ctx, id)
		if err != nil {
			return err
		}
		book = posting.FinanceBook
		s, err := st.GetSchedule(ctx, posting.ScheduleID)
		if err != nil {
			return err
		}
		if err := checkLatestPosting(s, posting); err != nil {
			return err
		}
		p, err := LoadParent(ctx, st, posting.Parent)
		if err != nil {
			return err
		}
		if err := reversePosting(ctx, st, p, s, &posting, reason); err != nil {
			return err
		}
		s.UpdatedAt = e.now()
		if err := st.SaveSchedule(ctx, s); err != nil {
			return err
		}
		if err := RefreshStatus(ctx, p, CachedBooks{Dir: st, Cache: e.BookCache}); err != nil {
			return err
		}
		if err := SaveParent(ctx, st, p); err != nil {
			return err
		}
		return st.AppendActivity(ctx, Activity{
			ID:            newID(),
			AssetID:       posting.Parent.AssetID,
			SerialNo:      posting.Parent.SerialNo,
			Type:          ActivityCancellation,
			Date:          DateOf(e.now()),
			ReferenceType: "Depreciation Posting",
			ReferenceID:   string(posting.ID),
			Notes:         reason,
			CreatedAt:     e.now(),
		})
	})
	if err != nil {
		return fmt.Errorf("cancel posting %s: %w", id, err)
	}
	e.metrics().PostingCancelled(book)
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidatePosting checks a posting against its schedule and parent before
// it is written.
func ValidatePosting(posting Posting, s *Schedule, p Depreciable) error {
	if !posting.Amount.IsPositive() {
		return newValidationError("amount", "depreciation amount must be greater than zero")
	}
	if posting.ScheduleID != s.ID {
		return &ReferenceError{Message: fmt.Sprintf("posting references schedule %s, not %s", posting.ScheduleID, s.ID)}
	}
	if posting.Parent != s.Parent || p.Ref() != s.Parent {
		return &ReferenceError{Message: fmt.Sprintf(
			"depreciation schedule %s cannot be used here as it is linked with %s, not %s",
			s.ID, s.Parent, posting.Parent)}
	}
	if posting.RowID == "" {
		return newValidationError("row_id", "depreciation schedule row is required")
	}
	if s.RowIndex(posting.RowID) < 0 {
		return &ReferenceError{Message: fmt.Sprintf("row %s is not part of schedule %s", posting.RowID, s.ID)}
	}

	books := p.Books()
	switch {
	case len(books) == 0:
		return newValidationError("finance_book", "%s is not linked with any finance books", p.Ref())
	case posting.FinanceBook == "" && len(books) > 1:
		return newValidationError("finance_book", "%s is linked with multiple finance books, one must be given", p.Ref())
	case posting.FinanceBook != "":
		if _, ok := FindBook(p, posting.FinanceBook); !ok {
			return newValidationError("finance_book", "%s is not used in %s", posting.FinanceBook, p.Ref())
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// checkLatestPosting keeps posted rows a prefix of the schedule, so a
// rebuild resuming after the last posted row loses nothing.
func checkLatestPosting(s *Schedule, posting Posting) error {
	if posting.Status == PostingCancelled {
		return nil
	}
	last := s.LastPostedRow()
	if last == nil || last.ID != posting.RowID {
		later := "<none>"
		if last != nil {
			later = last.ScheduleDate.String()
		}
		return fmt.Errorf("posting %s of %s is not the latest in schedule %s (posted up to %s); cancel later postings first: %w",
			posting.ID, posting.PostingDate, s.ID, later, ErrInvalidTransition)
	}
	return nil
}

// Authorize checks the context's actor against the engine's Authorizer.
func (e *Engine) Authorize(ctx context.Context) error {
	if e.Authorizer == nil {
		return nil
	}
	return e.Authorizer.AuthorizePosting(ctx)
}

func (e *Engine) metrics() Recorder {
	if e.Metrics == nil {
		return nopRecorder{}
	}
	return e.Metrics
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func failureReason(err error) string {
	switch {
	case IsClientError(err):
		return "validation"
	case IsMissingConfiguration(err):
		return "missing_configuration"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	}
	return "internal"
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
