package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jakechorley/live-schedule/pkg/core/model"
	"github.com/jakechorley/live-schedule/pkg/db"
)

// Store implements db.GenerationStore on top of a pool or transaction
type Store struct {
	q querier
}

// GetAccount loads a live account by id
func (s *Store) GetAccount(ctx context.Context, id int64) (*db.Account, error) {
	var (
		account    db.Account
		start, end pgtype.Time
	)
	err := s.q.QueryRow(ctx, `
		SELECT id, account_name, account_code, platform, location,
		       start_time, end_time, switch_host_every, with_cohost
		FROM live_accounts
		WHERE id = $1
	`, id).Scan(
		&account.ID, &account.Name, &account.Code, &account.Platform, &account.Location,
		&start, &end, &account.SwitchHostEvery, &account.WithCohost,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account %d: %w", id, err)
	}

	account.StartTime = fromPgTime(start)
	account.EndTime = fromPgTime(end)
	return &account, nil
}

// GetAssignedHosts returns the ids of every host assigned to the account
func (s *Store) GetAssignedHosts(ctx context.Context, accountID int64) ([]int64, error) {
	rows, err := s.q.Query(ctx, `
		SELECT DISTINCT h.id
		FROM hosts h
		JOIN host_account_assignment haa ON haa.host_id = h.id
		WHERE haa.account_id = $1
		ORDER BY h.id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assigned hosts: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan assigned hosts: %w", err)
	}
	return ids, nil
}

// UpsertHostAvailability writes all rows in one round trip, overwriting existing (host, date) rows
func (s *Store) UpsertHostAvailability(ctx context.Context, rows []db.HostAvailability) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO host_availability (host_id, date, is_available)
			VALUES ($1, $2, $3)
			ON CONFLICT (host_id, date) DO UPDATE SET is_available = EXCLUDED.is_available
		`, row.HostID, toPgDate(row.Date), row.IsAvailable)
	}

	results := s.q.SendBatch(ctx, batch)
	for _, row := range rows {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to upsert availability for host %d on %s: %w", row.HostID, model.FormatDate(row.Date), err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to upsert host availability: %w", err)
	}
	return nil
}

// FindQualifyingHosts returns the active, available, assigned hosts whose employee is free for slot
func (s *Store) FindQualifyingHosts(ctx context.Context, accountID int64, date time.Time, slot model.Slot) ([]db.HostCandidate, error) {
	rows, err := s.q.Query(ctx, `
		SELECT DISTINCT h.id, h.employee_id
		FROM hosts h
		JOIN host_availability ha ON ha.host_id = h.id
		JOIN host_account_assignment haa ON haa.host_id = h.id
		WHERE haa.account_id = $1
		  AND ha.date = $2
		  AND ha.is_available = TRUE
		  AND h.is_active = TRUE
		  AND NOT EXISTS (
		      SELECT 1 FROM work_schedules ws
		      WHERE ws.employee_id = h.employee_id
		        AND ws.date = $2
		        AND ws.start_time < $4
		        AND $3 < ws.end_time
		  )
		ORDER BY h.id
	`, accountID, toPgDate(date), toPgTime(slot.Start), toPgTime(slot.End))
	if err != nil {
		return nil, fmt.Errorf("failed to query qualifying hosts: %w", err)
	}

	candidates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (db.HostCandidate, error) {
		var c db.HostCandidate
		err := row.Scan(&c.HostID, &c.EmployeeID)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan qualifying hosts: %w", err)
	}
	return candidates, nil
}

// FindOffAvailability returns the host's day-off row id for date, or nil
func (s *Store) FindOffAvailability(ctx context.Context, hostID int64, date time.Time) (*int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
		SELECT id FROM host_availability
		WHERE host_id = $1 AND date = $2 AND is_available = FALSE
		LIMIT 1
	`, hostID, toPgDate(date)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query off availability: %w", err)
	}
	return &id, nil
}

// FindFreeEmployeeByPosition returns the lowest-id employee in position with no overlapping work schedule
func (s *Store) FindFreeEmployeeByPosition(ctx context.Context, position string, date time.Time, slot model.Slot) (*int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
		SELECT e.id
		FROM employees e
		WHERE e.position = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM work_schedules ws
		      WHERE ws.employee_id = e.id
		        AND ws.date = $2
		        AND ws.start_time < $4
		        AND $3 < ws.end_time
		  )
		ORDER BY e.id
		LIMIT 1
	`, position, toPgDate(date), toPgTime(slot.Start), toPgTime(slot.End)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query free %s: %w", position, err)
	}
	return &id, nil
}

// InsertScheduleBatch creates a batch and sets its id
func (s *Store) InsertScheduleBatch(ctx context.Context, batch *db.ScheduleBatch) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO schedule_batches (start_date, end_date)
		VALUES ($1, $2)
		RETURNING id
	`, toPgDate(batch.StartDate), toPgDate(batch.EndDate)).Scan(&batch.ID)
	if err != nil {
		return fmt.Errorf("failed to insert schedule batch: %w", err)
	}
	return nil
}

// InsertWorkSchedule records an employee commitment and sets its id
func (s *Store) InsertWorkSchedule(ctx context.Context, ws *db.WorkSchedule) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO work_schedules (employee_id, position, date, start_time, end_time, schedule_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, ws.EmployeeID, ws.Position, toPgDate(ws.Date), toPgTime(ws.StartTime), toPgTime(ws.EndTime), ws.ScheduleType).Scan(&ws.ID)
	if err != nil {
		return fmt.Errorf("failed to insert work schedule: %w", err)
	}
	return nil
}

// InsertLiveSchedule creates a live schedule row and sets its id
func (s *Store) InsertLiveSchedule(ctx context.Context, ls *db.LiveSchedule) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO live_schedules
			(account_id, batch_id, is_draft, date, start_time, end_time, host_id, co_host_id, off_availability_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		ls.AccountID, ls.BatchID, ls.IsDraft, toPgDate(ls.Date),
		toPgTime(ls.StartTime), toPgTime(ls.EndTime),
		ls.HostID, ls.CoHostID, ls.OffAvailabilityID,
	).Scan(&ls.ID)
	if err != nil {
		return fmt.Errorf("failed to insert live schedule: %w", err)
	}
	return nil
}

// SetLiveScheduleCohost links a co-host employee to a live schedule row
func (s *Store) SetLiveScheduleCohost(ctx context.Context, scheduleID, employeeID int64) error {
	tag, err := s.q.Exec(ctx, `UPDATE live_schedules SET co_host_id = $1 WHERE id = $2`, employeeID, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to set co-host: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("live schedule %d: %w", scheduleID, db.ErrNotFound)
	}
	return nil
}
