package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/asset-engine/depreciation"
)

// =============================================================================
// SCHEDULE STORE
// =============================================================================

func (q *queries) SaveSchedule(ctx context.Context, s *depreciation.Schedule) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO schedules (id, asset_id, serial_no, finance_book, status, next_due, data_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			asset_id = excluded.asset_id,
			serial_no = excluded.serial_no,
			finance_book = excluded.finance_book,
			status = excluded.status,
			next_due = excluded.next_due,
			data_json = excluded.data_json,
			updated_at = excluded.updated_at
	`, s.ID, s.Parent.AssetID, s.Parent.SerialNo, s.FinanceBook, s.Status, nextDue(s), data, q.timestamp())
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%s / %s: %w", s.Parent, s.FinanceBook, depreciation.ErrActiveScheduleExists)
	}
	if err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", s.ID, err)
	}
	return nil
}

// nextDue is the date of the first unposted row, NULL when every row is
// posted.
func nextDue(s *depreciation.Schedule) sql.NullString {
	for _, r := range s.Rows {
		if !r.IsPosted() {
			return nullString(r.ScheduleDate.String())
		}
	}
	return sql.NullString{}
}

func (q *queries) GetSchedule(ctx context.Context, id depreciation.ScheduleID) (*depreciation.Schedule, error) {
	var s depreciation.Schedule
	if err := q.getDocument(ctx, "schedule", string(id), "SELECT data_json FROM schedules WHERE id = ?", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSchedule removes a Draft schedule.
func (q *queries) DeleteSchedule(ctx context.Context, id depreciation.ScheduleID) error {
	var status string
	err := q.q.QueryRowContext(ctx, "SELECT status FROM schedules WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("schedule", string(id))
	}
	if err != nil {
		return fmt.Errorf("failed to load schedule %s: %w", id, err)
	}
	if depreciation.ScheduleStatus(status) != depreciation.ScheduleDraft {
		return fmt.Errorf("delete %s schedule %s: %w", status, id, depreciation.ErrInvalidTransition)
	}
	if _, err := q.q.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", id, err)
	}
	return nil
}

func (q *queries) ListSchedules(ctx context.Context, parent depreciation.ParentRef) ([]*depreciation.Schedule, error) {
	var out []*depreciation.Schedule
	err := q.listDocuments(ctx, `
		SELECT data_json FROM schedules
		WHERE asset_id = ? AND serial_no = ?
		ORDER BY seq
	`, func(data string) error {
		var s depreciation.Schedule
		if err := decode(data, &s); err != nil {
			return err
		}
		out = append(out, &s)
		return nil
	}, parent.AssetID, parent.SerialNo)
	return out, err
}

func (q *queries) ListDueSchedules(ctx context.Context, date depreciation.Date) ([]depreciation.ScheduleID, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id FROM schedules
		WHERE status = ? AND next_due IS NOT NULL AND next_due <= ?
		ORDER BY seq
	`, depreciation.ScheduleActive, date.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	defer rows.Close()

	var ids []depreciation.ScheduleID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan schedule id: %w", err)
		}
		ids = append(ids, depreciation.ScheduleID(id))
	}
	return ids, rows.Err()
}

// =============================================================================
// POSTING STORE
// =============================================================================

func (q *queries) AppendPosting(ctx context.Context, p depreciation.Posting) error {
	data, err := encode(p)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO postings
		(id, schedule_id, row_id, finance_book, posting_date, status, idempotency_key, data_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.ScheduleID, p.RowID, p.FinanceBook, p.PostingDate.String(), p.Status, p.IdempotencyKey, data, q.timestamp())
	if isUniqueConstraintError(err) {
		return fmt.Errorf("posting %s (key %s): %w", p.ID, p.IdempotencyKey, depreciation.ErrDuplicatePosting)
	}
	if err != nil {
		return fmt.Errorf("failed to append posting: %w", err)
	}
	return nil
}

func (q *queries) GetPosting(ctx context.Context, id depreciation.PostingID) (depreciation.Posting, error) {
	var p depreciation.Posting
	err := q.getDocument(ctx, "posting", string(id), "SELECT data_json FROM postings WHERE id = ?", &p)
	return p, err
}

// UpdatePosting changes the status or schedule link of a posting. The
// partial unique index re-checks the idempotency key.
func (q *queries) UpdatePosting(ctx context.Context, p depreciation.Posting) error {
	data, err := encode(p)
	if err != nil {
		return err
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE postings SET
			schedule_id = ?, row_id = ?, status = ?, idempotency_key = ?, data_json = ?
		WHERE id = ?
	`, p.ScheduleID, p.RowID, p.Status, p.IdempotencyKey, data, p.ID)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("posting key %s: %w", p.IdempotencyKey, depreciation.ErrDuplicatePosting)
	}
	if err != nil {
		return fmt.Errorf("failed to update posting %s: %w", p.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("posting", string(p.ID))
	}
	return nil
}

func (q *queries) ListPostings(ctx context.Context, scheduleID depreciation.ScheduleID) ([]depreciation.Posting, error) {
	var out []depreciation.Posting
	err := q.listDocuments(ctx, `
		SELECT data_json FROM postings
		WHERE schedule_id = ?
		ORDER BY posting_date, id
	`, func(data string) error {
		var p depreciation.Posting
		if err := decode(data, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	}, scheduleID)
	return out, err
}
