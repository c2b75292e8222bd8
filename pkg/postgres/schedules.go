package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jakechorley/live-schedule/pkg/db"
)

const listSchedulesSelect = `
	SELECT
		ls.id,
		ls.batch_id,
		ls.is_draft,
		la.id,
		la.account_name,
		la.platform,
		ls.date,
		ls.start_time,
		ls.end_time,
		he.name,
		ce.name
	FROM live_schedules ls
	JOIN live_accounts la ON la.id = ls.account_id
	JOIN hosts h ON h.id = ls.host_id
	JOIN employees he ON he.id = h.employee_id
	LEFT JOIN employees ce ON ce.id = ls.co_host_id`

// buildListQuery appends the filter conditions and ordering to the joined select
func buildListQuery(filter db.ScheduleFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	if len(filter.AccountIDs) > 0 {
		args = append(args, filter.AccountIDs)
		conditions = append(conditions, fmt.Sprintf("ls.account_id = ANY($%d)", len(args)))
	}
	if filter.Date != nil {
		args = append(args, toPgDate(*filter.Date))
		conditions = append(conditions, fmt.Sprintf("ls.date = $%d", len(args)))
	}

	var sb strings.Builder
	sb.WriteString(listSchedulesSelect)
	if len(conditions) > 0 {
		sb.WriteString("\n\tWHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	sb.WriteString("\n\tORDER BY ls.date, ls.start_time, ls.id")

	return sb.String(), args
}

// ListSchedules returns schedule rows joined with account, host and co-host names
func (d *DB) ListSchedules(ctx context.Context, filter db.ScheduleFilter) ([]db.ScheduleView, error) {
	query, args := buildListQuery(filter)

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query live schedules: %w", err)
	}

	views, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (db.ScheduleView, error) {
		var (
			v          db.ScheduleView
			date       pgtype.Date
			start, end pgtype.Time
		)
		if err := row.Scan(
			&v.ScheduleID, &v.BatchID, &v.IsDraft,
			&v.AccountID, &v.AccountName, &v.Platform,
			&date, &start, &end,
			&v.HostName, &v.CohostName,
		); err != nil {
			return v, err
		}
		v.Date = date.Time
		v.StartTime = fromPgTime(start)
		v.EndTime = fromPgTime(end)
		return v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan live schedules: %w", err)
	}

	return views, nil
}

// SetBatchDraftStatus sets is_draft on every live schedule in the batch
func (d *DB) SetBatchDraftStatus(ctx context.Context, batchID int64, isDraft bool) (int64, error) {
	var updated int64

	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schedule_batches WHERE id = $1)`, batchID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to look up batch %d: %w", batchID, err)
		}
		if !exists {
			return fmt.Errorf("batch %d: %w", batchID, db.ErrNotFound)
		}

		tag, err := tx.Exec(ctx, `UPDATE live_schedules SET is_draft = $1 WHERE batch_id = $2`, isDraft, batchID)
		if err != nil {
			return fmt.Errorf("failed to update batch %d: %w", batchID, err)
		}
		updated = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	return updated, nil
}
