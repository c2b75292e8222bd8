package db

import (
	"context"
	"time"

	"github.com/jakechorley/live-schedule/pkg/core/model"
)

// AccountStore loads account configuration
type AccountStore interface {
	// GetAccount returns ErrNotFound when no account has the given id
	GetAccount(ctx context.Context, id int64) (*Account, error)
}

// HostStore exposes host assignment and availability operations
type HostStore interface {
	GetAssignedHosts(ctx context.Context, accountID int64) ([]int64, error)

	// UpsertHostAvailability writes one row per (host, date); an existing row is overwritten
	UpsertHostAvailability(ctx context.Context, rows []HostAvailability) error

	// FindQualifyingHosts returns hosts that are active, available on date, assigned to
	// the account, and whose employee has no work schedule overlapping slot on date.
	// Results are ordered by host id.
	FindQualifyingHosts(ctx context.Context, accountID int64, date time.Time, slot model.Slot) ([]HostCandidate, error)

	// FindOffAvailability returns the id of the host's is_available=false row for date, if any
	FindOffAvailability(ctx context.Context, hostID int64, date time.Time) (*int64, error)
}

// EmployeeStore exposes employee lookups used by co-host selection
type EmployeeStore interface {
	// FindFreeEmployeeByPosition returns the lowest-id employee holding position with no
	// work schedule overlapping slot on date, or nil when none exists
	FindFreeEmployeeByPosition(ctx context.Context, position string, date time.Time, slot model.Slot) (*int64, error)
}

// ScheduleWriter persists batches and schedule rows
type ScheduleWriter interface {
	InsertScheduleBatch(ctx context.Context, batch *ScheduleBatch) error
	InsertWorkSchedule(ctx context.Context, ws *WorkSchedule) error
	InsertLiveSchedule(ctx context.Context, ls *LiveSchedule) error
	SetLiveScheduleCohost(ctx context.Context, scheduleID, employeeID int64) error
}

// GenerationStore is everything one account's generation reads and writes
type GenerationStore interface {
	AccountStore
	HostStore
	EmployeeStore
	ScheduleWriter
}

// Transactor runs fn inside a single transaction. If fn returns an error every write
// made through the store is discarded; otherwise it is committed.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(store GenerationStore) error) error
}

// ScheduleReader is the read path joining schedules with account and employee names
type ScheduleReader interface {
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]ScheduleView, error)
}

// BatchStatusStore finalizes or reverts a batch
type BatchStatusStore interface {
	// SetBatchDraftStatus returns the number of rows updated, or ErrNotFound for an unknown batch
	SetBatchDraftStatus(ctx context.Context, batchID int64, isDraft bool) (int64, error)
}

// Database defines the interface for all database operations.
// Both the postgres.DB and memstore.Store implement this interface.
type Database interface {
	Transactor
	ScheduleReader
	BatchStatusStore
}
