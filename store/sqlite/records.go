package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/asset-engine/depreciation"
)

// =============================================================================
// ADJUSTMENT STORE
// =============================================================================

func (q *queries) SaveRepair(ctx context.Context, r depreciation.Repair) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO repairs (id, asset_id, serial_no, data_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data_json = excluded.data_json
	`, r.ID, r.AssetID, r.SerialNo, data, r.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save repair %s: %w", r.ID, err)
	}
	return nil
}

func (q *queries) GetRepair(ctx context.Context, id string) (depreciation.Repair, error) {
	var r depreciation.Repair
	err := q.getDocument(ctx, "repair", id, "SELECT data_json FROM repairs WHERE id = ?", &r)
	return r, err
}

func (q *queries) ListRepairs(ctx context.Context, parent depreciation.ParentRef) ([]depreciation.Repair, error) {
	var out []depreciation.Repair
	err := q.listDocuments(ctx, `
		SELECT data_json FROM repairs
		WHERE asset_id = ? AND serial_no = ?
		ORDER BY created_at, seq
	`, func(data string) error {
		var r depreciation.Repair
		if err := decode(data, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	}, parent.AssetID, parent.SerialNo)
	return out, err
}

func (q *queries) SaveRevaluation(ctx context.Context, r depreciation.Revaluation) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO revaluations (id, asset_id, serial_no, data_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data_json = excluded.data_json
	`, r.ID, r.AssetID, r.SerialNo, data, r.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save revaluation %s: %w", r.ID, err)
	}
	return nil
}

func (q *queries) ListRevaluations(ctx context.Context, parent depreciation.ParentRef) ([]depreciation.Revaluation, error) {
	var out []depreciation.Revaluation
	err := q.listDocuments(ctx, `
		SELECT data_json FROM revaluations
		WHERE asset_id = ? AND serial_no = ?
		ORDER BY created_at, seq
	`, func(data string) error {
		var r depreciation.Revaluation
		if err := decode(data, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	}, parent.AssetID, parent.SerialNo)
	return out, err
}

// =============================================================================
// ACTIVITY STORE
// =============================================================================

func (q *queries) AppendActivity(ctx context.Context, a depreciation.Activity) error {
	data, err := encode(a)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO activities (id, asset_id, activity_type, data_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.AssetID, a.Type, data, q.timestamp())
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (q *queries) ListActivities(ctx context.Context, assetID depreciation.AssetID) ([]depreciation.Activity, error) {
	var out []depreciation.Activity
	err := q.listDocuments(ctx, "SELECT data_json FROM activities WHERE asset_id = ? ORDER BY seq", func(data string) error {
		var a depreciation.Activity
		if err := decode(data, &a); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	}, assetID)
	return out, err
}

// =============================================================================
// SETTINGS STORE
// =============================================================================

func (q *queries) SaveCompany(ctx context.Context, c depreciation.Company) error {
	return q.saveNamed(ctx, "companies", c.Name, c)
}

func (q *queries) GetCompany(ctx context.Context, name string) (depreciation.Company, error) {
	var c depreciation.Company
	err := q.getDocument(ctx, "company", name, "SELECT data_json FROM companies WHERE name = ?", &c)
	return c, err
}

func (q *queries) SaveCategory(ctx context.Context, c depreciation.Category) error {
	return q.saveNamed(ctx, "categories", c.Name, c)
}

func (q *queries) GetCategory(ctx context.Context, name string) (depreciation.Category, error) {
	var c depreciation.Category
	err := q.getDocument(ctx, "asset category", name, "SELECT data_json FROM categories WHERE name = ?", &c)
	return c, err
}

func (q *queries) SaveAccount(ctx context.Context, a depreciation.Account) error {
	data, err := encode(a)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO accounts (name, company, data_json)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			company = excluded.company,
			data_json = excluded.data_json
	`, a.Name, a.Company, data)
	if err != nil {
		return fmt.Errorf("failed to save account %q: %w", a.Name, err)
	}
	return nil
}

func (q *queries) GetAccount(ctx context.Context, name string) (depreciation.Account, error) {
	var a depreciation.Account
	err := q.getDocument(ctx, "account", name, "SELECT data_json FROM accounts WHERE name = ?", &a)
	return a, err
}

// saveNamed upserts a settings document keyed by name. table is one of
// the fixed settings tables, never user input.
func (q *queries) saveNamed(ctx context.Context, table, name string, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx,
		"INSERT INTO "+table+" (name, data_json) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET data_json = excluded.data_json",
		name, data)
	if err != nil {
		return fmt.Errorf("failed to save %s %q: %w", table, name, err)
	}
	return nil
}

// =============================================================================
// SWEEP RUN STORE
// =============================================================================

// SweepRun records one scheduled posting sweep.
type SweepRun struct {
	ID          string
	RunDate     depreciation.Date
	Status      string // running, completed, failed
	Schedules   int
	Postings    int
	Failures    int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// SaveSweepRun inserts or updates a sweep run.
func (s *Store) SaveSweepRun(ctx context.Context, r SweepRun) error {
	var completedAt sql.NullString
	if r.CompletedAt != nil {
		completedAt = nullString(r.CompletedAt.UTC().Format(timeLayout))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sweep_runs (id, run_date, status, schedules, postings, failures, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			schedules = excluded.schedules,
			postings = excluded.postings,
			failures = excluded.failures,
			error = excluded.error,
			completed_at = excluded.completed_at
	`, r.ID, r.RunDate.String(), r.Status, r.Schedules, r.Postings, r.Failures,
		nullString(r.Error), r.StartedAt.UTC().Format(timeLayout), completedAt)
	if err != nil {
		return fmt.Errorf("failed to save sweep run %s: %w", r.ID, err)
	}
	return nil
}

// ListSweepRuns returns the most recent sweep runs first.
func (s *Store) ListSweepRuns(ctx context.Context, limit int) ([]SweepRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_date, status, schedules, postings, failures, error, started_at, completed_at
		FROM sweep_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweep runs: %w", err)
	}
	defer rows.Close()

	var runs []SweepRun
	for rows.Next() {
		var (
			r                    SweepRun
			runDate, startedAt   string
			errText, completedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &runDate, &r.Status, &r.Schedules, &r.Postings, &r.Failures,
			&errText, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sweep run: %w", err)
		}
		r.RunDate, _ = depreciation.ParseDate(runDate)
		r.Error = errText.String
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
		if completedAt.Valid {
			t, _ := time.Parse(timeLayout, completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
