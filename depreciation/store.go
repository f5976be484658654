/*
store.go - Persistence interface for assets, schedules and postings

PURPOSE:
  Defines the interface between the depreciation engine and the database.
  Implementations: in-memory (depreciation/store) for tests and demos,
  SQLite (store/sqlite) for production.

POSTINGS:
  Postings are never deleted. A cancelled posting keeps its record with
  Status = Cancelled. Every posting carries an idempotency key
  (<schedule>/<row>); appending a second posting with the same key fails
  with ErrDuplicatePosting.

ATOMICITY:
  TxStore.WithTx runs a whole posting run, cancellation or lifecycle
  transition for one schedule as a unit: if fn fails nothing it wrote is
  kept, so a row is never marked posted without its posting existing and
  vice versa.

SEE ALSO:
  - depreciation/store/memory.go
  - store/sqlite/sqlite.go
*/
package depreciation

import "context"

// =============================================================================
// STORE - Interfaces for persistence
// =============================================================================

type AssetStore interface {
	// SaveAsset inserts or replaces the asset.
	SaveAsset(ctx context.Context, a *Asset) error
	GetAsset(ctx context.Context, id AssetID) (*Asset, error)
	ListAssets(ctx context.Context) ([]*Asset, error)

	SaveSerialUnit(ctx context.Context, u *SerialUnit) error
	// GetSerialUnit returns the unit with its parent asset loaded.
	GetSerialUnit(ctx context.Context, serialNo string) (*SerialUnit, error)
	ListSerialUnits(ctx context.Context, assetID AssetID) ([]*SerialUnit, error)
}

type TemplateStore interface {
	SaveTemplate(ctx context.Context, t Template) error
	GetTemplate(ctx context.Context, name string) (Template, error)
	ListTemplates(ctx context.Context) ([]Template, error)
}

type ScheduleStore interface {
	// SaveSchedule inserts or replaces a schedule and all its rows.
	// Saving a second Active schedule for the same (parent, finance book)
	// fails with ErrActiveScheduleExists.
	SaveSchedule(ctx context.Context, s *Schedule) error
	GetSchedule(ctx context.Context, id ScheduleID) (*Schedule, error)
	// DeleteSchedule removes a Draft schedule.
	DeleteSchedule(ctx context.Context, id ScheduleID) error
	// ListSchedules returns every schedule of one parent, oldest first.
	ListSchedules(ctx context.Context, parent ParentRef) ([]*Schedule, error)
	// ListDueSchedules returns the Active schedules that have at least one
	// unposted row dated on or before date.
	ListDueSchedules(ctx context.Context, date Date) ([]ScheduleID, error)
}

type PostingStore interface {
	AppendPosting(ctx context.Context, p Posting) error
	GetPosting(ctx context.Context, id PostingID) (Posting, error)
	// UpdatePosting changes status or schedule link of an existing posting.
	UpdatePosting(ctx context.Context, p Posting) error
	ListPostings(ctx context.Context, scheduleID ScheduleID) ([]Posting, error)
}

type AdjustmentStore interface {
	SaveRepair(ctx context.Context, r Repair) error
	GetRepair(ctx context.Context, id string) (Repair, error)
	ListRepairs(ctx context.Context, parent ParentRef) ([]Repair, error)
	SaveRevaluation(ctx context.Context, r Revaluation) error
	ListRevaluations(ctx context.Context, parent ParentRef) ([]Revaluation, error)
}

type ActivityStore interface {
	AppendActivity(ctx context.Context, a Activity) error
	ListActivities(ctx context.Context, assetID AssetID) ([]Activity, error)
}

// SettingsStore is the write side of Directory.
type SettingsStore interface {
	Directory
	SaveCompany(ctx context.Context, c Company) error
	SaveCategory(ctx context.Context, c Category) error
	SaveAccount(ctx context.Context, a Account) error
}

// Store is everything the engine persists.
type Store interface {
	AssetStore
	TemplateStore
	ScheduleStore
	PostingStore
	AdjustmentStore
	ActivityStore
	SettingsStore
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// LoadParent loads the asset or serial unit a ref points to.
func LoadParent(ctx context.Context, s AssetStore, ref ParentRef) (Depreciable, error) {
	if ref.IsSerialUnit() {
		u, err := s.GetSerialUnit(ctx, ref.SerialNo)
		if err != nil {
			return nil, err
		}
		if u.AssetID != ref.AssetID {
			return nil, &ReferenceError{Message: "serial no " + ref.SerialNo + " does not belong to asset " + string(ref.AssetID)}
		}
		return u, nil
	}
	return s.GetAsset(ctx, ref.AssetID)
}

// SaveParent persists an asset or serial unit.
func SaveParent(ctx context.Context, s AssetStore, p Depreciable) error {
	switch v := p.(type) {
	case *Asset:
		return s.SaveAsset(ctx, v)
	case *SerialUnit:
		return s.SaveSerialUnit(ctx, v)
	}
	return newValidationError("parent", "unsupported depreciable %T", p)
}
