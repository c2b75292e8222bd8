// Package memstore is an in-memory implementation of db.Database.
// It backs the scheduler, HTTP and CLI tests.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jakechorley/live-schedule/pkg/core/model"
	"github.com/jakechorley/live-schedule/pkg/db"
)

type availabilityKey struct {
	hostID int64
	date   time.Time
}

// state holds every table. It is copied wholesale to emulate transactions.
type state struct {
	nextID int64

	employees     map[int64]db.Employee
	accounts      map[int64]db.Account
	hosts         map[int64]db.Host
	assignments   map[int64][]int64 // account id -> host ids
	availability  map[availabilityKey]db.HostAvailability
	batches       map[int64]db.ScheduleBatch
	workSchedules []db.WorkSchedule
	liveSchedules []db.LiveSchedule
}

func newState() *state {
	return &state{
		employees:    map[int64]db.Employee{},
		accounts:     map[int64]db.Account{},
		hosts:        map[int64]db.Host{},
		assignments:  map[int64][]int64{},
		availability: map[availabilityKey]db.HostAvailability{},
		batches:      map[int64]db.ScheduleBatch{},
	}
}

func (st *state) clone() *state {
	c := &state{
		nextID:        st.nextID,
		employees:     maps.Clone(st.employees),
		accounts:      maps.Clone(st.accounts),
		hosts:         maps.Clone(st.hosts),
		assignments:   make(map[int64][]int64, len(st.assignments)),
		availability:  maps.Clone(st.availability),
		batches:       maps.Clone(st.batches),
		workSchedules: slices.Clone(st.workSchedules),
		liveSchedules: slices.Clone(st.liveSchedules),
	}
	for k, v := range st.assignments {
		c.assignments[k] = slices.Clone(v)
	}
	return c
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

// Store is a mutex-guarded in-memory database
type Store struct {
	mu sync.Mutex
	st *state

	// failLive makes InsertLiveSchedule fail for the given account ids
	failLive map[int64]error

	// afterLiveInsert is called after each live schedule insert while the lock is held
	afterLiveInsert func(db.LiveSchedule)
}

// New creates an empty Store
func New() *Store {
	return &Store{
		st:       newState(),
		failLive: map[int64]error{},
	}
}

// FailLiveInserts makes every live schedule insert for accountID return err
func (s *Store) FailLiveInserts(accountID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLive[accountID] = err
}

// AfterLiveInsert registers a hook run after every successful live schedule insert
func (s *Store) AfterLiveInsert(fn func(db.LiveSchedule)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterLiveInsert = fn
}

// Seeding helpers

func (s *Store) AddEmployee(name, position string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.st.id()
	s.st.employees[id] = db.Employee{ID: id, Name: name, Position: position}
	return id
}

// AddAccount stores account and returns its new id. account.ID is ignored.
func (s *Store) AddAccount(account db.Account) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	account.ID = s.st.id()
	s.st.accounts[account.ID] = account
	return account.ID
}

func (s *Store) AddHost(employeeID int64, active bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.st.id()
	s.st.hosts[id] = db.Host{ID: id, EmployeeID: employeeID, Active: active}
	return id
}

func (s *Store) AssignHost(accountID, hostID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.assignments[accountID] = append(s.st.assignments[accountID], hostID)
}

// AddWorkSchedule records an existing commitment for an employee
func (s *Store) AddWorkSchedule(ws db.WorkSchedule) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws.ID = s.st.id()
	ws.Date = model.NormalizeDate(ws.Date)
	s.st.workSchedules = append(s.st.workSchedules, ws)
	return ws.ID
}

// SetAvailability writes an availability row directly, overwriting any existing one
func (s *Store) SetAvailability(hostID int64, date time.Time, available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	(&tx{st: s.st}).upsertAvailability(db.HostAvailability{HostID: hostID, Date: date, IsAvailable: available})
}

// Accessors

func (s *Store) LiveSchedules() []db.LiveSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.liveSchedules)
}

func (s *Store) WorkSchedules() []db.WorkSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.workSchedules)
}

func (s *Store) Batches() []db.ScheduleBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.st.batches))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Availability returns every availability row ordered by host then date
func (s *Store) Availability() []db.HostAvailability {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.st.availability))
	sort.Slice(out, func(i, j int) bool {
		if out[i].HostID != out[j].HostID {
			return out[i].HostID < out[j].HostID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// WithinTx runs fn against a copy of the data and swaps it in only when fn succeeds.
// Transactions are serialized.
func (s *Store) WithinTx(ctx context.Context, fn func(store db.GenerationStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{st: s.st.clone(), failLive: s.failLive, afterLiveInsert: s.afterLiveInsert}
	if err := fn(t); err != nil {
		return err
	}
	s.st = t.st
	return nil
}

// ListSchedules joins live schedules with account and employee names,
// ordered by date then start time
func (s *Store) ListSchedules(ctx context.Context, filter db.ScheduleFilter) ([]db.ScheduleView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := []db.ScheduleView{}
	for _, ls := range s.st.liveSchedules {
		if len(filter.AccountIDs) > 0 && !slices.Contains(filter.AccountIDs, ls.AccountID) {
			continue
		}
		if filter.Date != nil && !ls.Date.Equal(model.NormalizeDate(*filter.Date)) {
			continue
		}

		account, ok := s.st.accounts[ls.AccountID]
		if !ok {
			continue
		}
		host, ok := s.st.hosts[ls.HostID]
		if !ok {
			continue
		}
		hostEmployee, ok := s.st.employees[host.EmployeeID]
		if !ok {
			continue
		}

		view := db.ScheduleView{
			ScheduleID:  ls.ID,
			BatchID:     ls.BatchID,
			IsDraft:     ls.IsDraft,
			AccountID:   ls.AccountID,
			AccountName: account.Name,
			Platform:    account.Platform,
			Date:        ls.Date,
			StartTime:   ls.StartTime,
			EndTime:     ls.EndTime,
			HostName:    hostEmployee.Name,
		}
		if ls.CoHostID != nil {
			if cohost, ok := s.st.employees[*ls.CoHostID]; ok {
				name := cohost.Name
				view.CohostName = &name
			}
		}
		views = append(views, view)
	}

	sort.SliceStable(views, func(i, j int) bool {
		if !views[i].Date.Equal(views[j].Date) {
			return views[i].Date.Before(views[j].Date)
		}
		if views[i].StartTime != views[j].StartTime {
			return views[i].StartTime < views[j].StartTime
		}
		return views[i].ScheduleID < views[j].ScheduleID
	})

	return views, nil
}

// SetBatchDraftStatus flips is_draft on every schedule row of the batch
func (s *Store) SetBatchDraftStatus(ctx context.Context, batchID int64, isDraft bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.batches[batchID]; !ok {
		return 0, fmt.Errorf("batch %d: %w", batchID, db.ErrNotFound)
	}

	var updated int64
	for i := range s.st.liveSchedules {
		if s.st.liveSchedules[i].BatchID == batchID {
			s.st.liveSchedules[i].IsDraft = isDraft
			updated++
		}
	}
	return updated, nil
}

// tx is the GenerationStore handed to WithinTx callbacks. The Store lock is held
// for its whole lifetime, so it does no locking of its own.
type tx struct {
	st              *state
	failLive        map[int64]error
	afterLiveInsert func(db.LiveSchedule)
}

func (t *tx) GetAccount(ctx context.Context, id int64) (*db.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	account, ok := t.st.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, db.ErrNotFound)
	}
	return &account, nil
}

func (t *tx) GetAssignedHosts(ctx context.Context, accountID int64) ([]int64, error) {
	ids := slices.Clone(t.st.assignments[accountID])
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func (t *tx) UpsertHostAvailability(ctx context.Context, rows []db.HostAvailability) error {
	for _, row := range rows {
		t.upsertAvailability(row)
	}
	return nil
}

func (t *tx) upsertAvailability(row db.HostAvailability) {
	row.Date = model.NormalizeDate(row.Date)
	key := availabilityKey{hostID: row.HostID, date: row.Date}
	if existing, ok := t.st.availability[key]; ok {
		row.ID = existing.ID
	} else {
		row.ID = t.st.id()
	}
	t.st.availability[key] = row
}

func (t *tx) FindQualifyingHosts(ctx context.Context, accountID int64, date time.Time, slot model.Slot) ([]db.HostCandidate, error) {
	date = model.NormalizeDate(date)

	candidates := []db.HostCandidate{}
	for _, hostID := range t.st.assignments[accountID] {
		host, ok := t.st.hosts[hostID]
		if !ok || !host.Active {
			continue
		}
		avail, ok := t.st.availability[availabilityKey{hostID: hostID, date: date}]
		if !ok || !avail.IsAvailable {
			continue
		}
		if t.busy(host.EmployeeID, date, slot) {
			continue
		}
		candidates = append(candidates, db.HostCandidate{HostID: host.ID, EmployeeID: host.EmployeeID})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].HostID < candidates[j].HostID })
	return slices.CompactFunc(candidates, func(a, b db.HostCandidate) bool { return a.HostID == b.HostID }), nil
}

func (t *tx) FindOffAvailability(ctx context.Context, hostID int64, date time.Time) (*int64, error) {
	avail, ok := t.st.availability[availabilityKey{hostID: hostID, date: model.NormalizeDate(date)}]
	if !ok || avail.IsAvailable {
		return nil, nil
	}
	id := avail.ID
	return &id, nil
}

func (t *tx) FindFreeEmployeeByPosition(ctx context.Context, position string, date time.Time, slot model.Slot) (*int64, error) {
	date = model.NormalizeDate(date)

	ids := slices.Sorted(maps.Keys(t.st.employees))
	for _, id := range ids {
		if t.st.employees[id].Position != position {
			continue
		}
		if t.busy(id, date, slot) {
			continue
		}
		return &id, nil
	}
	return nil, nil
}

// busy reports whether the employee has a work schedule overlapping slot on date
func (t *tx) busy(employeeID int64, date time.Time, slot model.Slot) bool {
	for _, ws := range t.st.workSchedules {
		if ws.EmployeeID == employeeID && ws.Date.Equal(date) && ws.Slot().Overlaps(slot) {
			return true
		}
	}
	return false
}

func (t *tx) InsertScheduleBatch(ctx context.Context, batch *db.ScheduleBatch) error {
	batch.ID = t.st.id()
	batch.StartDate = model.NormalizeDate(batch.StartDate)
	batch.EndDate = model.NormalizeDate(batch.EndDate)
	t.st.batches[batch.ID] = *batch
	return nil
}

func (t *tx) InsertWorkSchedule(ctx context.Context, ws *db.WorkSchedule) error {
	ws.ID = t.st.id()
	ws.Date = model.NormalizeDate(ws.Date)
	t.st.workSchedules = append(t.st.workSchedules, *ws)
	return nil
}

func (t *tx) InsertLiveSchedule(ctx context.Context, ls *db.LiveSchedule) error {
	if err := t.failLive[ls.AccountID]; err != nil {
		return err
	}
	if _, ok := t.st.batches[ls.BatchID]; !ok {
		return fmt.Errorf("batch %d does not exist", ls.BatchID)
	}

	ls.ID = t.st.id()
	ls.Date = model.NormalizeDate(ls.Date)
	t.st.liveSchedules = append(t.st.liveSchedules, *ls)

	if t.afterLiveInsert != nil {
		t.afterLiveInsert(*ls)
	}
	return nil
}

func (t *tx) SetLiveScheduleCohost(ctx context.Context, scheduleID, employeeID int64) error {
	for i := range t.st.liveSchedules {
		if t.st.liveSchedules[i].ID == scheduleID {
			id := employeeID
			t.st.liveSchedules[i].CoHostID = &id
			return nil
		}
	}
	return fmt.Errorf("live schedule %d: %w", scheduleID, db.ErrNotFound)
}
