package db

import (
	"errors"
	"time"

	"github.com/jakechorley/live-schedule/pkg/core/model"
)

// ErrNotFound is returned when a requested account or batch does not exist
var ErrNotFound = errors.New("not found")

// Employee represents an employees record
type Employee struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Position string `json:"position"`
}

// Account represents a live_accounts record
type Account struct {
	ID              int64           `json:"id"`
	Name            string          `json:"account_name"`
	Code            string          `json:"account_code"`
	Platform        string          `json:"platform"`
	Location        string          `json:"location"`
	StartTime       model.TimeOfDay `json:"start_time"`
	EndTime         model.TimeOfDay `json:"end_time"`
	SwitchHostEvery float64         `json:"switch_host_every"`
	WithCohost      bool            `json:"with_cohost"`
}

// Host represents a hosts record
type Host struct {
	ID         int64 `json:"id"`
	EmployeeID int64 `json:"employee_id"`
	Active     bool  `json:"is_active"`
}

// HostAvailability represents a host_availability record.
// There is at most one row per (HostID, Date).
type HostAvailability struct {
	ID          int64     `json:"id"`
	HostID      int64     `json:"host_id"`
	Date        time.Time `json:"date"`
	IsAvailable bool      `json:"is_available"`
}

// ScheduleBatch represents a schedule_batches record
type ScheduleBatch struct {
	ID        int64     `json:"id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// WorkSchedule represents a work_schedules record.
// These rows are the per-employee ledger the double-booking check reads.
type WorkSchedule struct {
	ID           int64           `json:"id"`
	EmployeeID   int64           `json:"employee_id"`
	Position     string          `json:"position"`
	Date         time.Time       `json:"date"`
	StartTime    model.TimeOfDay `json:"start_time"`
	EndTime      model.TimeOfDay `json:"end_time"`
	ScheduleType string          `json:"schedule_type"`
}

// Slot returns the row's time range
func (w WorkSchedule) Slot() model.Slot {
	return model.Slot{Start: w.StartTime, End: w.EndTime}
}

// LiveSchedule represents a live_schedules record
type LiveSchedule struct {
	ID                int64           `json:"id"`
	AccountID         int64           `json:"account_id"`
	BatchID           int64           `json:"batch_id"`
	IsDraft           bool            `json:"is_draft"`
	Date              time.Time       `json:"date"`
	StartTime         model.TimeOfDay `json:"start_time"`
	EndTime           model.TimeOfDay `json:"end_time"`
	HostID            int64           `json:"host_id"`
	CoHostID          *int64          `json:"co_host_id"`
	OffAvailabilityID *int64          `json:"off_availability_id"`
}

// HostCandidate is a host that qualifies for a given date, slot and account
type HostCandidate struct {
	HostID     int64
	EmployeeID int64
}

// ScheduleView is a live schedule row joined with account, host and co-host names
type ScheduleView struct {
	ScheduleID  int64           `json:"schedule_id"`
	BatchID     int64           `json:"batch_id"`
	IsDraft     bool            `json:"is_draft"`
	AccountID   int64           `json:"account_id"`
	AccountName string          `json:"account_name"`
	Platform    string          `json:"platform"`
	Date        time.Time       `json:"schedule_date"`
	StartTime   model.TimeOfDay `json:"start_time"`
	EndTime     model.TimeOfDay `json:"end_time"`
	HostName    string          `json:"host_name"`
	CohostName  *string         `json:"cohost_name"`
}

// ScheduleFilter narrows the read path. Zero values mean "no filter".
type ScheduleFilter struct {
	AccountIDs []int64
	Date       *time.Time
}
