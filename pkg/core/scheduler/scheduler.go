package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/live-schedule/pkg/core/model"
	"github.com/jakechorley/live-schedule/pkg/db"
)

// DefaultCohostPosition is the employee position eligible for co-host duty
const DefaultCohostPosition = "cohost"

// Config contains the optional collaborators of a Scheduler
type Config struct {
	// Rand drives day-off and host choices. Defaults to a randomly seeded PCG source.
	Rand Rand

	// Now is the clock used for run timestamps. Defaults to time.Now.
	Now func() time.Time

	// CohostPosition is the employee position searched for co-hosts. Defaults to "cohost".
	CohostPosition string
}

// Scheduler generates draft live-stream schedules for a set of accounts.
// Calls to Generate on the same Scheduler are serialized.
type Scheduler struct {
	store          db.Transactor
	logger         *zap.Logger
	rng            Rand
	now            func() time.Time
	cohostPosition string

	mu sync.Mutex
}

// New creates a Scheduler backed by store
func New(store db.Transactor, logger *zap.Logger, cfg Config) *Scheduler {
	s := &Scheduler{
		store:          store,
		logger:         logger,
		rng:            cfg.Rand,
		now:            cfg.Now,
		cohostPosition: cfg.CohostPosition,
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cohostPosition == "" {
		s.cohostPosition = DefaultCohostPosition
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Generate processes accounts in order. For each account it plans host days off,
// opens a new batch, and fills every (date, slot) of the 7-day window with a
// randomly chosen qualifying host, attaching a co-host where the account needs one.
//
// Each account runs in its own transaction: a persistence error rolls that account
// back and generation continues with the next one. Unknown accounts, accounts with
// no slots, and slots with no qualifying host are recorded in the summary, not
// returned as errors.
//
// When ctx is cancelled the run stops at the next slot boundary, keeps the rows
// already written for the current account, and returns the partial summary along
// with the context error.
func (s *Scheduler) Generate(ctx context.Context, accountIDs []int64, startDate time.Time) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startDate = model.NormalizeDate(startDate)
	dates := HorizonDates(startDate)
	summary := newSummary(uuid.NewString(), startDate, s.now())

	logger := s.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("Generating live schedules",
		zap.Int64s("account_ids", accountIDs),
		zap.String("start_date", summary.StartDate),
		zap.String("end_date", summary.EndDate))

	for _, accountID := range accountIDs {
		if err := ctx.Err(); err != nil {
			return s.stop(logger, summary, err)
		}

		run := s.generateAccount(ctx, logger.With(zap.Int64("account_id", accountID)), accountID, startDate, dates)
		summary.merge(run)

		if run.cancelled {
			return s.stop(logger, summary, ctx.Err())
		}
		if err := ctx.Err(); err != nil {
			return s.stop(logger, summary, err)
		}
	}

	summary.FinishedAt = s.now()
	logger.Info("Live schedule generation complete",
		zap.Int("accounts_processed", summary.AccountsProcessed),
		zap.Int("slots_filled", summary.SlotsFilled),
		zap.Int("slots_skipped", len(summary.SlotsSkipped)),
		zap.Int("cohosts_assigned", summary.CohostsAssigned),
		zap.Duration("duration", summary.Duration()))

	return summary, nil
}

func (s *Scheduler) stop(logger *zap.Logger, summary *Summary, err error) (*Summary, error) {
	summary.Cancelled = true
	summary.FinishedAt = s.now()
	logger.Warn("Live schedule generation cancelled",
		zap.Int("accounts_processed", summary.AccountsProcessed),
		zap.Int("slots_filled", summary.SlotsFilled),
		zap.Error(err))
	return summary, err
}

// generateAccount runs one account inside a transaction and reports what happened
func (s *Scheduler) generateAccount(ctx context.Context, logger *zap.Logger, accountID int64, startDate time.Time, dates []time.Time) *accountRun {
	var run *accountRun

	// Store calls are detached from ctx so a cancellation never fails a query midway
	// and rolls back the account. ctx is only consulted between slots.
	err := s.store.WithinTx(context.WithoutCancel(ctx), func(store db.GenerationStore) error {
		run = &accountRun{outcome: AccountOutcome{AccountID: accountID}}
		return s.fillAccount(ctx, store, logger, run, startDate, dates)
	})
	if err != nil {
		logger.Error("Account generation failed, changes rolled back", zap.Error(err))
		return &accountRun{outcome: AccountOutcome{
			AccountID: accountID,
			Kind:      OutcomeAccountFailed,
			Error:     err.Error(),
		}}
	}

	logger.Info("Account generation finished",
		zap.String("outcome", string(run.outcome.Kind)),
		zap.Int64("batch_id", run.outcome.BatchID),
		zap.Int("slots_filled", run.outcome.SlotsFilled),
		zap.Int("slots_skipped", run.outcome.SlotsSkipped))

	return run
}

func (s *Scheduler) fillAccount(ctx context.Context, store db.GenerationStore, logger *zap.Logger, run *accountRun, startDate time.Time, dates []time.Time) error {
	accountID := run.outcome.AccountID
	qctx := context.WithoutCancel(ctx)

	account, err := store.GetAccount(qctx, accountID)
	if errors.Is(err, db.ErrNotFound) {
		logger.Info("Account not found, skipping")
		run.outcome.Kind = OutcomeAccountNotFound
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load account %d: %w", accountID, err)
	}

	// Days off for every host assigned to the account
	hostIDs, err := store.GetAssignedHosts(qctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to get hosts assigned to account %d: %w", accountID, err)
	}
	availability := PlanDaysOff(hostIDs, dates, s.rng)
	if err := store.UpsertHostAvailability(qctx, availability); err != nil {
		return fmt.Errorf("failed to record host availability: %w", err)
	}
	logger.Debug("Host availability recorded", zap.Int64s("host_ids", hostIDs), zap.Int("rows", len(availability)))

	batch := &db.ScheduleBatch{StartDate: startDate, EndDate: BatchEndDate(startDate)}
	if err := store.InsertScheduleBatch(qctx, batch); err != nil {
		return fmt.Errorf("failed to create schedule batch: %w", err)
	}
	run.outcome.BatchID = batch.ID

	slots := CalculateSlots(account.StartTime, account.EndTime, account.SwitchHostEvery)
	if len(slots) == 0 {
		logger.Info("No valid time slots for account",
			zap.Stringer("start_time", account.StartTime),
			zap.Stringer("end_time", account.EndTime),
			zap.Float64("switch_host_every", account.SwitchHostEvery))
		reason := fmt.Sprintf("cadence %gh does not fit window %s-%s", account.SwitchHostEvery, account.StartTime, account.EndTime)
		for _, date := range dates {
			run.record(SlotOutcome{
				Kind:      OutcomeSkippedNoSlots,
				AccountID: accountID,
				Date:      model.FormatDate(date),
				Reason:    reason,
			})
		}
		run.outcome.Kind = OutcomeSkippedNoSlots
		return nil
	}

	for _, date := range dates {
		for _, slot := range slots {
			if ctx.Err() != nil {
				run.cancelled = true
				run.outcome.Kind = OutcomeCancelled
				return nil
			}

			outcome, err := s.fillSlot(qctx, store, logger, account, batch.ID, date, slot)
			if err != nil {
				return fmt.Errorf("failed to fill %s %s: %w", model.FormatDate(date), slot, err)
			}
			run.record(outcome)
		}
	}

	run.outcome.Kind = OutcomeCompleted
	return nil
}

// fillSlot assigns a host (and optionally a co-host) to one date and slot
func (s *Scheduler) fillSlot(ctx context.Context, store db.GenerationStore, logger *zap.Logger, account *db.Account, batchID int64, date time.Time, slot model.Slot) (SlotOutcome, error) {
	outcome := SlotOutcome{
		AccountID: account.ID,
		Date:      model.FormatDate(date),
		Slot:      &slot,
	}

	host, err := s.selectHost(ctx, store, logger, account.ID, date, slot)
	if err != nil {
		return outcome, err
	}
	if host == nil {
		logger.Debug("No host available",
			zap.String("date", outcome.Date),
			zap.Stringer("slot", slot))
		outcome.Kind = OutcomeSkippedNoHost
		outcome.Reason = "no qualifying host"
		return outcome, nil
	}

	err = store.InsertWorkSchedule(ctx, &db.WorkSchedule{
		EmployeeID:   host.EmployeeID,
		Position:     model.PositionHost,
		Date:         date,
		StartTime:    slot.Start,
		EndTime:      slot.End,
		ScheduleType: model.ScheduleTypeLive,
	})
	if err != nil {
		return outcome, fmt.Errorf("failed to write host work schedule: %w", err)
	}

	offAvailabilityID, err := store.FindOffAvailability(ctx, host.HostID, date)
	if err != nil {
		return outcome, fmt.Errorf("failed to look up off availability: %w", err)
	}

	schedule := &db.LiveSchedule{
		AccountID:         account.ID,
		BatchID:           batchID,
		IsDraft:           true,
		Date:              date,
		StartTime:         slot.Start,
		EndTime:           slot.End,
		HostID:            host.HostID,
		OffAvailabilityID: offAvailabilityID,
	}
	if err := store.InsertLiveSchedule(ctx, schedule); err != nil {
		return outcome, fmt.Errorf("failed to write live schedule: %w", err)
	}

	logger.Debug("Host assigned",
		zap.String("date", outcome.Date),
		zap.Stringer("slot", slot),
		zap.Int64("host_id", host.HostID),
		zap.Int64("employee_id", host.EmployeeID),
		zap.Int64("schedule_id", schedule.ID))

	outcome.Kind = OutcomeFilled
	outcome.ScheduleID = schedule.ID
	outcome.HostID = host.HostID

	if account.WithCohost {
		cohostID, err := s.attachCohost(ctx, store, logger, schedule, date, slot)
		if err != nil {
			return outcome, err
		}
		outcome.CohostID = cohostID
	}

	return outcome, nil
}

// attachCohost finds a free co-host and links it to the schedule row.
// A missing co-host leaves the row host-only.
func (s *Scheduler) attachCohost(ctx context.Context, store db.GenerationStore, logger *zap.Logger, schedule *db.LiveSchedule, date time.Time, slot model.Slot) (*int64, error) {
	cohostID, err := s.selectCohost(ctx, store, date, slot)
	if err != nil {
		return nil, err
	}
	if cohostID == nil {
		logger.Debug("No co-host available",
			zap.String("date", model.FormatDate(date)),
			zap.Stringer("slot", slot))
		return nil, nil
	}

	err = store.InsertWorkSchedule(ctx, &db.WorkSchedule{
		EmployeeID:   *cohostID,
		Position:     model.PositionCohost,
		Date:         date,
		StartTime:    slot.Start,
		EndTime:      slot.End,
		ScheduleType: model.ScheduleTypeLive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write co-host work schedule: %w", err)
	}

	if err := store.SetLiveScheduleCohost(ctx, schedule.ID, *cohostID); err != nil {
		return nil, fmt.Errorf("failed to attach co-host: %w", err)
	}
	schedule.CoHostID = cohostID

	logger.Debug("Co-host assigned", zap.Int64("schedule_id", schedule.ID), zap.Int64("employee_id", *cohostID))
	return cohostID, nil
}
