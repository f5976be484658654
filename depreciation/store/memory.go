// Package store provides the in-memory depreciation.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/asset-engine/depreciation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps everything in maps guarded by one mutex. Values are copied
// on the way in and out so callers never share state with the store.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

func NewMemory() *Memory {
	return &Memory{s: newState()}
}

type state struct {
	assets       map[depreciation.AssetID]*depreciation.Asset
	units        map[string]*depreciation.SerialUnit
	templates    map[string]depreciation.Template
	schedules    map[depreciation.ScheduleID]*depreciation.Schedule
	scheduleSeq  map[depreciation.ScheduleID]int
	nextSeq      int
	postings     map[depreciation.PostingID]depreciation.Posting
	postingKeys  map[string]depreciation.PostingID
	repairs      map[string]depreciation.Repair
	revaluations map[string]depreciation.Revaluation
	activities   []depreciation.Activity
	companies    map[string]depreciation.Company
	categories   map[string]depreciation.Category
	accounts     map[string]depreciation.Account
}

func newState() *state {
	return &state{
		assets:       make(map[depreciation.AssetID]*depreciation.Asset),
		units:        make(map[string]*depreciation.SerialUnit),
		templates:    make(map[string]depreciation.Template),
		schedules:    make(map[depreciation.ScheduleID]*depreciation.Schedule),
		scheduleSeq:  make(map[depreciation.ScheduleID]int),
		postings:     make(map[depreciation.PostingID]depreciation.Posting),
		postingKeys:  make(map[string]depreciation.PostingID),
		repairs:      make(map[string]depreciation.Repair),
		revaluations: make(map[string]depreciation.Revaluation),
		companies:    make(map[string]depreciation.Company),
		categories:   make(map[string]depreciation.Category),
		accounts:     make(map[string]depreciation.Account),
	}
}

// clone deep-copies the state for rollback.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.assets {
		c.assets[k] = v.Clone()
	}
	for k, v := range s.units {
		c.units[k] = v.Clone()
	}
	for k, v := range s.templates {
		c.templates[k] = v
	}
	for k, v := range s.schedules {
		c.schedules[k] = v.Clone()
	}
	for k, v := range s.scheduleSeq {
		c.scheduleSeq[k] = v
	}
	c.nextSeq = s.nextSeq
	for k, v := range s.postings {
		c.postings[k] = v
	}
	for k, v := range s.postingKeys {
		c.postingKeys[k] = v
	}
	for k, v := range s.repairs {
		c.repairs[k] = v
	}
	for k, v := range s.revaluations {
		c.revaluations[k] = v
	}
	c.activities = append([]depreciation.Activity(nil), s.activities...)
	for k, v := range s.companies {
		c.companies[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = cloneCategory(v)
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	return c
}

func cloneCategory(c depreciation.Category) depreciation.Category {
	c.Accounts = append([]depreciation.CategoryAccount(nil), c.Accounts...)
	c.FinanceBooks = append([]depreciation.CategoryFinanceBook(nil), c.FinanceBooks...)
	return c
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, depreciation.ErrNotFound)
}

// =============================================================================
// STATE - Unlocked operations shared by Memory and the transaction view
// =============================================================================

func (s *state) SaveAsset(_ context.Context, a *depreciation.Asset) error {
	s.assets[a.ID] = a.Clone()
	return nil
}

func (s *state) GetAsset(_ context.Context, id depreciation.AssetID) (*depreciation.Asset, error) {
	a, ok := s.assets[id]
	if !ok {
		return nil, notFound("asset", string(id))
	}
	return a.Clone(), nil
}

func (s *state) ListAssets(_ context.Context) ([]*depreciation.Asset, error) {
	out := make([]*depreciation.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) SaveSerialUnit(_ context.Context, u *depreciation.SerialUnit) error {
	c := u.Clone()
	c.Asset = nil
	s.units[u.SerialNo] = c
	return nil
}

func (s *state) GetSerialUnit(_ context.Context, serialNo string) (*depreciation.SerialUnit, error) {
	u, ok := s.units[serialNo]
	if !ok {
		return nil, notFound("serial no", serialNo)
	}
	c := u.Clone()
	if a, ok := s.assets[u.AssetID]; ok {
		c.Asset = a.Clone()
	}
	return c, nil
}

func (s *state) ListSerialUnits(ctx context.Context, assetID depreciation.AssetID) ([]*depreciation.SerialUnit, error) {
	var out []*depreciation.SerialUnit
	for no, u := range s.units {
		if u.AssetID != assetID {
			continue
		}
		c, err := s.GetSerialUnit(ctx, no)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNo < out[j].SerialNo })
	return out, nil
}

func (s *state) SaveTemplate(_ context.Context, t depreciation.Template) error {
	s.templates[t.Name] = t
	return nil
}

func (s *state) GetTemplate(_ context.Context, name string) (depreciation.Template, error) {
	t, ok := s.templates[name]
	if !ok {
		return depreciation.Template{}, notFound("template", name)
	}
	return t, nil
}

func (s *state) ListTemplates(_ context.Context) ([]depreciation.Template, error) {
	out := make([]depreciation.Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *state) SaveSchedule(_ context.Context, sch *depreciation.Schedule) error {
	if sch.Status == depreciation.ScheduleActive {
		for id, other := range s.schedules {
			if id != sch.ID && other.Status == depreciation.ScheduleActive &&
				other.Parent == sch.Parent && other.FinanceBook == sch.FinanceBook {
				return fmt.Errorf("%s / %s: %w", sch.Parent, sch.FinanceBook, depreciation.ErrActiveScheduleExists)
			}
		}
	}
	if _, ok := s.scheduleSeq[sch.ID]; !ok {
		s.nextSeq++
		s.scheduleSeq[sch.ID] = s.nextSeq
	}
	s.schedules[sch.ID] = sch.Clone()
	return nil
}

func (s *state) GetSchedule(_ context.Context, id depreciation.ScheduleID) (*depreciation.Schedule, error) {
	sch, ok := s.schedules[id]
	if !ok {
		return nil, notFound("schedule", string(id))
	}
	return sch.Clone(), nil
}

func (s *state) DeleteSchedule(_ context.Context, id depreciation.ScheduleID) error {
	sch, ok := s.schedules[id]
	if !ok {
		return notFound("schedule", string(id))
	}
	if sch.Status != depreciation.ScheduleDraft {
		return fmt.Errorf("delete %s schedule %s: %w", sch.Status, id, depreciation.ErrInvalidTransition)
	}
	delete(s.schedules, id)
	delete(s.scheduleSeq, id)
	return nil
}

func (s *state) ListSchedules(_ context.Context, parent depreciation.ParentRef) ([]*depreciation.Schedule, error) {
	var out []*depreciation.Schedule
	for _, sch := range s.schedules {
		if sch.Parent == parent {
			out = append(out, sch.Clone())
		}
	}
	s.sortSchedules(out)
	return out, nil
}

func (s *state) ListDueSchedules(_ context.Context, date depreciation.Date) ([]depreciation.ScheduleID, error) {
	var due []*depreciation.Schedule
	for _, sch := range s.schedules {
		if sch.Status == depreciation.ScheduleActive && sch.HasDueRows(date) {
			due = append(due, sch)
		}
	}
	s.sortSchedules(due)
	ids := make([]depreciation.ScheduleID, len(due))
	for i, sch := range due {
		ids[i] = sch.ID
	}
	return ids, nil
}

func (s *state) sortSchedules(list []*depreciation.Schedule) {
	sort.Slice(list, func(i, j int) bool {
		return s.scheduleSeq[list[i].ID] < s.scheduleSeq[list[j].ID]
	})
}

func (s *state) AppendPosting(_ context.Context, p depreciation.Posting) error {
	if _, ok := s.postings[p.ID]; ok {
		return fmt.Errorf("posting %s: %w", p.ID, depreciation.ErrDuplicatePosting)
	}
	if err := s.claimKey(p); err != nil {
		return err
	}
	s.postings[p.ID] = p
	return nil
}

func (s *state) GetPosting(_ context.Context, id depreciation.PostingID) (depreciation.Posting, error) {
	p, ok := s.postings[id]
	if !ok {
		return depreciation.Posting{}, notFound("posting", string(id))
	}
	return p, nil
}

// UpdatePosting re-indexes the idempotency key: only submitted postings
// hold one, so a row can be posted again after its posting is cancelled.
func (s *state) UpdatePosting(_ context.Context, p depreciation.Posting) error {
	old, ok := s.postings[p.ID]
	if !ok {
		return notFound("posting", string(p.ID))
	}
	if owner, held := s.postingKeys[old.IdempotencyKey]; held && owner == old.ID {
		delete(s.postingKeys, old.IdempotencyKey)
	}
	if err := s.claimKey(p); err != nil {
		_ = s.claimKey(old)
		return err
	}
	s.postings[p.ID] = p
	return nil
}

func (s *state) claimKey(p depreciation.Posting) error {
	if p.IdempotencyKey == "" || p.Status != depreciation.PostingSubmitted {
		return nil
	}
	if owner, taken := s.postingKeys[p.IdempotencyKey]; taken && owner != p.ID {
		return fmt.Errorf("posting key %s: %w", p.IdempotencyKey, depreciation.ErrDuplicatePosting)
	}
	s.postingKeys[p.IdempotencyKey] = p.ID
	return nil
}

func (s *state) ListPostings(_ context.Context, scheduleID depreciation.ScheduleID) ([]depreciation.Posting, error) {
	var out []depreciation.Posting
	for _, p := range s.postings {
		if p.ScheduleID == scheduleID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PostingDate.Equal(out[j].PostingDate) {
			return out[i].PostingDate.Before(out[j].PostingDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) SaveRepair(_ context.Context, r depreciation.Repair) error {
	s.repairs[r.ID] = r
	return nil
}

func (s *state) GetRepair(_ context.Context, id string) (depreciation.Repair, error) {
	r, ok := s.repairs[id]
	if !ok {
		return depreciation.Repair{}, notFound("repair", id)
	}
	return r, nil
}

func (s *state) ListRepairs(_ context.Context, parent depreciation.ParentRef) ([]depreciation.Repair, error) {
	var out []depreciation.Repair
	for _, r := range s.repairs {
		if r.Parent() == parent {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *state) SaveRevaluation(_ context.Context, r depreciation.Revaluation) error {
	s.revaluations[r.ID] = r
	return nil
}

func (s *state) ListRevaluations(_ context.Context, parent depreciation.ParentRef) ([]depreciation.Revaluation, error) {
	var out []depreciation.Revaluation
	for _, r := range s.revaluations {
		if r.Parent() == parent {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *state) AppendActivity(_ context.Context, a depreciation.Activity) error {
	s.activities = append(s.activities, a)
	return nil
}

func (s *state) ListActivities(_ context.Context, assetID depreciation.AssetID) ([]depreciation.Activity, error) {
	var out []depreciation.Activity
	for _, a := range s.activities {
		if a.AssetID == assetID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *state) SaveCompany(_ context.Context, c depreciation.Company) error {
	s.companies[c.Name] = c
	return nil
}

func (s *state) GetCompany(_ context.Context, name string) (depreciation.Company, error) {
	c, ok := s.companies[name]
	if !ok {
		return depreciation.Company{}, notFound("company", name)
	}
	return c, nil
}

func (s *state) SaveCategory(_ context.Context, c depreciation.Category) error {
	s.categories[c.Name] = cloneCategory(c)
	return nil
}

func (s *state) GetCategory(_ context.Context, name string) (depreciation.Category, error) {
	c, ok := s.categories[name]
	if !ok {
		return depreciation.Category{}, notFound("asset category", name)
	}
	return cloneCategory(c), nil
}

func (s *state) SaveAccount(_ context.Context, a depreciation.Account) error {
	s.accounts[a.Name] = a
	return nil
}

func (s *state) GetAccount(_ context.Context, name string) (depreciation.Account, error) {
	a, ok := s.accounts[name]
	if !ok {
		return depreciation.Account{}, notFound("account", name)
	}
	return a, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialized.
func (m *Memory) WithTx(_ context.Context, fn func(depreciation.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(m.s); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

// =============================================================================
// LOCKED ACCESSORS
// =============================================================================

func (m *Memory) SaveAsset(ctx context.Context, a *depreciation.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveAsset(ctx, a)
}

func (m *Memory) GetAsset(ctx context.Context, id depreciation.AssetID) (*depreciation.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetAsset(ctx, id)
}

func (m *Memory) ListAssets(ctx context.Context) ([]*depreciation.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListAssets(ctx)
}

func (m *Memory) SaveSerialUnit(ctx context.Context, u *depreciation.SerialUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveSerialUnit(ctx, u)
}

func (m *Memory) GetSerialUnit(ctx context.Context, serialNo string) (*depreciation.SerialUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetSerialUnit(ctx, serialNo)
}

func (m *Memory) ListSerialUnits(ctx context.Context, assetID depreciation.AssetID) ([]*depreciation.SerialUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListSerialUnits(ctx, assetID)
}

func (m *Memory) SaveTemplate(ctx context.Context, t depreciation.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveTemplate(ctx, t)
}

func (m *Memory) GetTemplate(ctx context.Context, name string) (depreciation.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetTemplate(ctx, name)
}

func (m *Memory) ListTemplates(ctx context.Context) ([]depreciation.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListTemplates(ctx)
}

func (m *Memory) SaveSchedule(ctx context.Context, sch *depreciation.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveSchedule(ctx, sch)
}

func (m *Memory) GetSchedule(ctx context.Context, id depreciation.ScheduleID) (*depreciation.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetSchedule(ctx, id)
}

func (m *Memory) DeleteSchedule(ctx context.Context, id depreciation.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.DeleteSchedule(ctx, id)
}

func (m *Memory) ListSchedules(ctx context.Context, parent depreciation.ParentRef) ([]*depreciation.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListSchedules(ctx, parent)
}

func (m *Memory) ListDueSchedules(ctx context.Context, date depreciation.Date) ([]depreciation.ScheduleID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListDueSchedules(ctx, date)
}

func (m *Memory) AppendPosting(ctx context.Context, p depreciation.Posting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.AppendPosting(ctx, p)
}

func (m *Memory) GetPosting(ctx context.Context, id depreciation.PostingID) (depreciation.Posting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetPosting(ctx, id)
}

func (m *Memory) UpdatePosting(ctx context.Context, p depreciation.Posting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.UpdatePosting(ctx, p)
}

func (m *Memory) ListPostings(ctx context.Context, scheduleID depreciation.ScheduleID) ([]depreciation.Posting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListPostings(ctx, scheduleID)
}

func (m *Memory) SaveRepair(ctx context.Context, r depreciation.Repair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveRepair(ctx, r)
}

func (m *Memory) GetRepair(ctx context.Context, id string) (depreciation.Repair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetRepair(ctx, id)
}

func (m *Memory) ListRepairs(ctx context.Context, parent depreciation.ParentRef) ([]depreciation.Repair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListRepairs(ctx, parent)
}

func (m *Memory) SaveRevaluation(ctx context.Context, r depreciation.Revaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveRevaluation(ctx, r)
}

func (m *Memory) ListRevaluations(ctx context.Context, parent depreciation.ParentRef) ([]depreciation.Revaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListRevaluations(ctx, parent)
}

func (m *Memory) AppendActivity(ctx context.Context, a depreciation.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.AppendActivity(ctx, a)
}

func (m *Memory) ListActivities(ctx context.Context, assetID depreciation.AssetID) ([]depreciation.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListActivities(ctx, assetID)
}

func (m *Memory) SaveCompany(ctx context.Context, c depreciation.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveCompany(ctx, c)
}

func (m *Memory) GetCompany(ctx context.Context, name string) (depreciation.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetCompany(ctx, name)
}

func (m *Memory) SaveCategory(ctx context.Context, c depreciation.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveCategory(ctx, c)
}

func (m *Memory) GetCategory(ctx context.Context, name string) (depreciation.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetCategory(ctx, name)
}

func (m *Memory) SaveAccount(ctx context.Context, a depreciation.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveAccount(ctx, a)
}

func (m *Memory) GetAccount(ctx context.Context, name string) (depreciation.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetAccount(ctx, name)
}

var _ depreciation.TxStore = (*Memory)(nil)
