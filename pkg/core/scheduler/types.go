package scheduler

import (
	"time"

	"github.com/jakechorley/live-schedule/pkg/core/model"
)

// OutcomeKind tags what happened to a slot or an account during a run
type OutcomeKind string

const (
	// Slot-level outcomes
	OutcomeFilled         OutcomeKind = "filled"
	OutcomeSkippedNoHost  OutcomeKind = "skipped_no_host"
	OutcomeSkippedNoSlots OutcomeKind = "skipped_no_slots"

	// Account-level outcomes
	OutcomeCompleted       OutcomeKind = "completed"
	OutcomeAccountNotFound OutcomeKind = "account_not_found"
	OutcomeAccountFailed   OutcomeKind = "account_failed"
	OutcomeCancelled       OutcomeKind = "cancelled"
)

// SlotOutcome records the result for one (account, date, slot).
// For OutcomeSkippedNoSlots, Slot is nil and the entry covers the whole day.
type SlotOutcome struct {
	Kind       OutcomeKind `json:"kind"`
	AccountID  int64       `json:"account_id"`
	Date       string      `json:"date"`
	Slot       *model.Slot `json:"slot,omitempty"`
	ScheduleID int64       `json:"schedule_id,omitempty"`
	HostID     int64       `json:"host_id,omitempty"`
	CohostID   *int64      `json:"cohost_id,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// AccountOutcome summarises one account's generation
type AccountOutcome struct {
	AccountID       int64       `json:"account_id"`
	Kind            OutcomeKind `json:"kind"`
	BatchID         int64       `json:"batch_id,omitempty"`
	SlotsFilled     int         `json:"slots_filled"`
	SlotsSkipped    int         `json:"slots_skipped"`
	CohostsAssigned int         `json:"cohosts_assigned"`
	Error           string      `json:"error,omitempty"`
}

// Summary is the structured result of a generation run
type Summary struct {
	RunID             string           `json:"run_id"`
	StartDate         string           `json:"start_date"`
	EndDate           string           `json:"end_date"`
	AccountsProcessed int              `json:"accounts_processed"`
	SlotsFilled       int              `json:"slots_filled"`
	CohostsAssigned   int              `json:"cohosts_assigned"`
	Assignments       []SlotOutcome    `json:"assignments"`
	SlotsSkipped      []SlotOutcome    `json:"slots_skipped"`
	Accounts          []AccountOutcome `json:"accounts"`
	Cancelled         bool             `json:"cancelled"`
	StartedAt         time.Time        `json:"started_at"`
	FinishedAt        time.Time        `json:"finished_at"`
}

func newSummary(runID string, start time.Time, now time.Time) *Summary {
	// Initialize with empty slices (not nil) for easier consumption
	return &Summary{
		RunID:        runID,
		StartDate:    model.FormatDate(start),
		EndDate:      model.FormatDate(BatchEndDate(start)),
		Assignments:  []SlotOutcome{},
		SlotsSkipped: []SlotOutcome{},
		Accounts:     []AccountOutcome{},
		StartedAt:    now,
	}
}

// Duration returns how long the run took
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// accountRun accumulates one account's outcomes until its transaction settles
type accountRun struct {
	outcome   AccountOutcome
	slots     []SlotOutcome
	cancelled bool
}

func (r *accountRun) record(o SlotOutcome) {
	r.slots = append(r.slots, o)
	switch o.Kind {
	case OutcomeFilled:
		r.outcome.SlotsFilled++
		if o.CohostID != nil {
			r.outcome.CohostsAssigned++
		}
	default:
		r.outcome.SlotsSkipped++
	}
}

// merge folds a settled account run into the summary. Slot outcomes of failed
// accounts are dropped because their writes were rolled back.
func (s *Summary) merge(run *accountRun) {
	s.Accounts = append(s.Accounts, run.outcome)

	switch run.outcome.Kind {
	case OutcomeAccountNotFound, OutcomeAccountFailed:
		return
	}

	s.AccountsProcessed++
	s.SlotsFilled += run.outcome.SlotsFilled
	s.CohostsAssigned += run.outcome.CohostsAssigned
	for _, o := range run.slots {
		if o.Kind == OutcomeFilled {
			s.Assignments = append(s.Assignments, o)
		} else {
			s.SlotsSkipped = append(s.SlotsSkipped, o)
		}
	}
}
