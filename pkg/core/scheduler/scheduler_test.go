package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/live-schedule/pkg/core/model"
	"github.com/jakechorley/live-schedule/pkg/db"
	"github.com/jakechorley/live-schedule/pkg/memstore"
)

var testStart = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func newTestScheduler(store db.Transactor, seed uint64) *Scheduler {
	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return New(store, zap.NewNop(), Config{
		Rand: rand.New(rand.NewPCG(seed, seed+1)),
		Now:  func() time.Time { return clock },
	})
}

// newSequencedScheduler cycles its random draws through 0..6, so up to seven hosts
// of one account always get distinct days off
func newSequencedScheduler(store db.Transactor) *Scheduler {
	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return New(store, zap.NewNop(), Config{
		Rand: &sequenceRand{values: []int{0, 1, 2, 3, 4, 5, 6}},
		Now:  func() time.Time { return clock },
	})
}

// seedAccount creates an account with n fresh hosts assigned to it
func seedAccount(store *memstore.Store, name string, start, end model.TimeOfDay, cadence float64, withCohost bool, n int) (int64, []int64) {
	accountID := store.AddAccount(db.Account{
		Name:            name,
		Code:            name,
		Platform:        "TikTok",
		StartTime:       start,
		EndTime:         end,
		SwitchHostEvery: cadence,
		WithCohost:      withCohost,
	})

	hostIDs := make([]int64, 0, n)
	for i := range n {
		employeeID := store.AddEmployee(fmt.Sprintf("%s host %d", name, i+1), model.PositionHost)
		hostID := store.AddHost(employeeID, true)
		store.AssignHost(accountID, hostID)
		hostIDs = append(hostIDs, hostID)
	}
	return accountID, hostIDs
}

// assertNoDoubleBooking checks that no employee holds two overlapping work schedules
func assertNoDoubleBooking(t *testing.T, rows []db.WorkSchedule) {
	t.Helper()
	for i := range rows {
		for j := i + 1; j < len(rows); j++ {
			a, b := rows[i], rows[j]
			if a.EmployeeID != b.EmployeeID || !a.Date.Equal(b.Date) {
				continue
			}
			assert.False(t, a.Slot().Overlaps(b.Slot()),
				"employee %d double-booked on %s: %s and %s", a.EmployeeID, model.FormatDate(a.Date), a.Slot(), b.Slot())
		}
	}
}

func TestGenerate_FillsEverySlot(t *testing.T) {
	store := memstore.New()
	accountID, hostIDs := seedAccount(store, "acme", tod(10, 0), tod(16, 0), 2, false, 3)

	summary, err := newSequencedScheduler(store).Generate(context.Background(), []int64{accountID}, testStart)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.AccountsProcessed)
	assert.Equal(t, 21, summary.SlotsFilled)
	assert.Empty(t, summary.SlotsSkipped)
	assert.Len(t, summary.Assignments, 21)
	assert.Equal(t, "2025-06-02", summary.StartDate)
	assert.Equal(t, "2025-06-08", summary.EndDate)
	assert.False(t, summary.Cancelled)

	batches := store.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, testStart, batches[0].StartDate)
	assert.Equal(t, testStart.AddDate(0, 0, 6), batches[0].EndDate)

	require.Len(t, summary.Accounts, 1)
	assert.Equal(t, OutcomeCompleted, summary.Accounts[0].Kind)
	assert.Equal(t, batches[0].ID, summary.Accounts[0].BatchID)

	schedules := store.LiveSchedules()
	require.Len(t, schedules, 21)

	availability := map[string]bool{}
	for _, row := range store.Availability() {
		availability[fmt.Sprintf("%d/%s", row.HostID, model.FormatDate(row.Date))] = row.IsAvailable
	}
	assert.Len(t, availability, 21)

	for _, ls := range schedules {
		assert.True(t, ls.IsDraft)
		assert.Equal(t, batches[0].ID, ls.BatchID)
		assert.Contains(t, hostIDs, ls.HostID)
		assert.Nil(t, ls.CoHostID)
		assert.Nil(t, ls.OffAvailabilityID)
		assert.True(t, availability[fmt.Sprintf("%d/%s", ls.HostID, model.FormatDate(ls.Date))],
			"host %d scheduled on a day off", ls.HostID)
	}

	assert.Len(t, store.WorkSchedules(), 21)
	assertNoDoubleBooking(t, store.WorkSchedules())
}

func TestGenerate_EachHostGetsOneDayOff(t *testing.T) {
	store := memstore.New()
	accountID, hostIDs := seedAccount(store, "acme", tod(10, 0), tod(12, 0), 2, false, 4)

	_, err := newTestScheduler(store, 7).Generate(context.Background(), []int64{accountID}, testStart)
	require.NoError(t, err)

	offDays := map[int64]int{}
	for _, row := range store.Availability() {
		if !row.IsAvailable {
			offDays[row.HostID]++
		}
	}
	for _, hostID := range hostIDs {
		assert.Equal(t, 1, offDays[hostID], "host %d", hostID)
	}
}

func TestGenerate_SkipsSlotsWithoutQualifyingHost(t *testing.T) {
	store := memstore.New()
	accountID, _ := seedAccount(store, "acme", tod(10, 0), tod(16, 0), 2, false, 0)

	// Inactive host
	inactiveEmployee := store.AddEmployee("inactive", model.PositionHost)
	inactiveHost := store.AddHost(inactiveEmployee, false)
	store.AssignHost(accountID, inactiveHost)

	// Active host whose employee is booked all week
	busyEmployee := store.AddEmployee("busy", model.PositionHost)
	busyHost := store.AddHost(busyEmployee, true)
	store.AssignHost(accountID, busyHost)
	for _, date := range HorizonDates(testStart) {
		store.AddWorkSchedule(db.WorkSchedule{
			EmployeeID:   busyEmployee,
			Position:     model.PositionHost,
			Date:         date,
			StartTime:    tod(0, 0),
			EndTime:      tod(24, 0),
			ScheduleType: model.ScheduleTypeLive,
		})
	}

	// Free host who is off one day of the week
	freeEmployee := store.AddEmployee("free", model.PositionHost)
	freeHost := store.AddHost(freeEmployee, true)
	store.AssignHost(accountID, freeHost)

	summary, err := newTestScheduler(store, 3).Generate(context.Background(), []int64{accountID}, testStart)
	require.NoError(t, err)

	assert.Equal(t, 18, summary.SlotsFilled)
	require.Len(t, summary.SlotsSkipped, 3)
	for _, skipped := range summary.SlotsSkipped {
		assert.Equal(t, OutcomeSkippedNoHost, skipped.Kind)
		assert.NotNil(t, skipped.Slot)
	}

	for _, ls := range store.LiveSchedules() {
		assert.Equal(t, freeHost, ls.HostID)
	}
	assertNoDoubleBooking(t, store.WorkSchedules())
}

func TestGenerate_NoHostsAssigned(t *testing.T) {
	store := memstore.New()
	accountID, _ := seedAccount(store, "acme", tod(10, 0), tod(16, 0), 2, false, 0)

	summary, err := newTestScheduler(store, 1).Generate(context.Background(), []int64{accountID}, testStart)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.SlotsFilled)
	assert.Len(t, summary.SlotsSkipped, 21)
	assert.Empty(t, store.LiveSchedules())
	assert.Len(t, store.Batches(), 1)
}

func TestGenerate_NoValidSlots(t *testing.T) {
	store := memstore.New()
	accountID, _ := seedAccount(store, "acme", tod(10, 0), tod(12, 0), 3, false, 2)

	summary, err := newTestScheduler(store, 1).Generate(context.Background(), []int64{accountID}, testStart)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.AccountsProcessed)
	require.Len(t, summary.SlotsSkipped, 7)
	for _, skipped := range summary.SlotsSkipped {
		assert.Equal(t, OutcomeSkippedNoSlots, skipped.Kind)
		assert.Nil(t, skipped.Slot)
		assert.NotEmpty(t, skipped.Reason)
	}
	assert.Equal(t, OutcomeSkippedNoSlots, summary.Accounts[0].Kind)

	// Availability and an empty batch are still recorded
	assert.Len(t, store.Batches(), 1)
	assert.Len(t, store.Availability(), 14)
	assert.Empty(t, store.LiveSchedules())
}

func TestGenerate_UnknownAccountIsSkipped(t *testing.T) {
	store := memstore.New()
	accountID, _ := seedAccount(store, "acme", tod(10, 0), tod(12, 0), 2, false, 1)

	summary, err := newTestScheduler(store, 1).Generate(context.Background(), []int64{9999, accountID}, testStart)
	require.NoError(t, err)

	require.Len(t, summary.Accounts, 2)
	assert.Equal(t, OutcomeAccountNotFound, summary.Accounts[0].Kind)
	assert.Equal(t, int64(9999), summary.Accounts[0].AccountID)
	assert.Equal(t, OutcomeCompleted, summary.Accounts[1].Kind)
	assert.Equal(t, 1, summary.AccountsProcessed)
	assert.Len(t, store.Batches(), 1)
}

func TestGenerate_EmptyAccountList(t *testing.T) {
	store := memstore.New()

	summary, err := newTestScheduler(store, 1).Generate(context.Background(), nil, testStart)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.AccountsProcessed)
	assert.Empty(t, summary.Accounts)
	assert.Empty(t, store.Batches())
}

func TestGenerate_CohostRequiredButNoneExist(t *testing.T) {
	store := memstore.New()
	accountID, _ := seedAccount(store, "acme", tod(10, 0), tod(16, 0), 2, true, 3)

	summary, err := newSequencedScheduler(store).Generate(context.Background(), []int64{accountID}, testStart)
	require.NoError(t, err)

	assert.Equal(t, 21, summary.SlotsFilled)
	assert.Equal(t, 0, summary.CohostsAssigned)
	for _, ls := range store.LiveSchedules() {
		assert.Nil(t, ls.CoHostID)
	}
}

func TestGenerate_AssignsCohost(t *testing.T) {
	store := memstore.New()
	accountID, _ := seedAccount(store, "acme", tod(10, 0), tod(16, 0), 2, true, 3)
	cohost := store.AddEmployee("cohost", model.PositionCohost)

	summary, err := newSequencedScheduler(store).Generate(context.Background(), []int64{accountID}, testStart)
	require.NoError(t, err)

	assert.Equal(t, 21, summary.CohostsAssigned)
	for _, ls := range store.LiveSchedules() {
		require.NotNil(t, ls.CoHostID)
		assert.Equal(t, cohost, *ls.CoHostID)
	}
	for _, a := range summary.Assignments {
		require.NotNil(t, a.CohostID)
		assert.Equal(t, cohost, *a.CohostID)
	}

	cohostRows := 0
	for _, ws := range store.WorkSchedules() {
		if ws.Position == model.PositionCohost {
			cohostRows++
		}
	}
	assert.Equal(t, 21, cohostRows)
}

func TestGenerate_CohostNotDoubleBookedAcrossAccounts(t *testing.T) {
	store := memstore.New()
	first, _ := seedAccount(store, "first", tod(10, 0), tod(16, 0), 2, true, 3)
	second, _ := seedAccount(store, "second", tod(10, 0), tod(16, 0), 2, true, 3)
	store.AddEmployee("cohost", model.PositionCohost)

	summary, err := newSequencedScheduler(store).Generate(context.Background(), []int64{first, second}, testStart)
	require.NoError(t, err)

	assert.Equal(t, 21, summary.Accounts[0].CohostsAssigned)
	assert.Equal(t, 0, summary.Accounts[1].CohostsAssigned)
	assertNoDoubleBooking(t, store.WorkSchedules())
}

func TestGenerate_SharedHostsNeverDoubleBooked(t *testing.T) {
	store := memstore.New()
	first, hosts := seedAccount(store, "first", tod(8, 0), tod(20, 0), 1.5, true, 2)
	second, _ := seedAccount(store, "second", tod(9, 0), tod(21, 0), 2, false, 1)
	third, _ := seedAccount(store, "third", tod(10, 0), tod(14, 0), 1, true, 0)
	for _, hostID := range hosts {
		store.AssignHost(second, hostID)
		store.AssignHost(third, hostID)
	}
	store.AddEmployee("cohost 1", model.PositionCohost)
	store.AddEmployee("cohost 2", model.PositionCohost)

	for seed := uint64(0); seed < 10; seed++ {
		_, err := newTestScheduler(store, seed).Generate(context.Background(), []int64{first, second, third}, testStart.AddDate(0, 0, int(seed)*3))
		require.NoError(t, err)
	}

	assertNoDoubleBooking(t, store.WorkSchedules())
}

func TestGenerate_RepeatedRunsCreateNewBatches(t *testing.T) {
	store := memstore.New()
	accountID, _ := seedAccount(store, "acme", tod(10, 0), tod(16, 0), 2, false, 5)
	s := newTestScheduler(store, 1)

	firstRun, err := s.Generate(context.Background(), []int64{accountID}, testStart)
	require.NoError(t, err)
	secondRun, err := s.Generate(context.Background(), []int64{accountID}, testStart)
	require.NoError(t, err)

	batches := store.Batches()
	require.Len(t, batches, 2)
	assert.NotEqual(t, batches[0].ID, batches[1].ID)
	assert.NotEqual(t, firstRun.RunID, secondRun.RunID)

	// Availability is overwritten, not duplicated
	assert.Len(t, store.Availability(), 35)
	assert.Len(t, store.LiveSchedules(), firstRun.SlotsFilled+secondRun.SlotsFilled)
	assertNoDoubleBooking(t, store.WorkSchedules())
}

func TestGenerate_DeterministicWithSeed(t *testing.T) {
	run := func() []int64 {
		store := memstore.New()
		accountID, _ := seedAccount(store, "acme", tod(8, 0), tod(22, 0), 1, false, 6)
		_, err := newTestScheduler(store, 42).Generate(context.Background(), []int64{accountID}, testStart)
		require.NoError(t, err)

		hosts := []int64{}
		for _, ls := range store.LiveSchedules() {
			hosts = append(hosts, ls.HostID)
		}
		return hosts
	}

	first := run()
	second := run()

	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestGenerate_PersistenceFailureRollsBackOneAccount(t *testing.T) {
	store := memstore.New()
	failing, _ := seedAccount(store, "failing", tod(10, 0), tod(12, 0), 2, false, 1)
	healthy, _ := seedAccount(store, "healthy", tod(10, 0), tod(12, 0), 2, false, 1)
	store.FailLiveInserts(failing, errors.New("disk full"))

	summary, err := newTestScheduler(store, 1).Generate(context.Background(), []int64{failing, healthy}, testStart)
	require.NoError(t, err)

	require.Len(t, summary.Accounts, 2)
	assert.Equal(t, OutcomeAccountFailed, summary.Accounts[0].Kind)
	assert.Contains(t, summary.Accounts[0].Error, "disk full")
	assert.Equal(t, OutcomeCompleted, summary.Accounts[1].Kind)
	assert.Equal(t, 1, summary.AccountsProcessed)

	// Nothing from the failing account survives, including its batch and availability
	batches := store.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, summary.Accounts[1].BatchID, batches[0].ID)
	assert.Len(t, store.Availability(), 7)
	for _, ls := range store.LiveSchedules() {
		assert.Equal(t, healthy, ls.AccountID)
	}
	for _, a := range summary.Assignments {
		assert.Equal(t, healthy, a.AccountID)
	}
}

func TestGenerate_CancellationKeepsCompletedRows(t *testing.T) {
	store := memstore.New()
	first, _ := seedAccount(store, "first", tod(8, 0), tod(20, 0), 1, false, 4)
	second, _ := seedAccount(store, "second", tod(8, 0), tod(20, 0), 1, false, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inserted := 0
	store.AfterLiveInsert(func(db.LiveSchedule) {
		inserted++
		if inserted == 5 {
			cancel()
		}
	})

	summary, err := newSequencedScheduler(store).Generate(ctx, []int64{first, second}, testStart)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)

	assert.True(t, summary.Cancelled)
	assert.Equal(t, 5, summary.SlotsFilled)
	require.Len(t, summary.Accounts, 1)
	assert.Equal(t, OutcomeCancelled, summary.Accounts[0].Kind)
	assert.Equal(t, first, summary.Accounts[0].AccountID)

	assert.Len(t, store.LiveSchedules(), 5)
	assert.Len(t, store.Batches(), 1)
}

func TestGenerate_AlreadyCancelled(t *testing.T) {
	store := memstore.New()
	accountID, _ := seedAccount(store, "acme", tod(10, 0), tod(12, 0), 2, false, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := newTestScheduler(store, 1).Generate(ctx, []int64{accountID}, testStart)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Cancelled)
	assert.Empty(t, summary.Accounts)
	assert.Empty(t, store.Batches())
}

// ctxStore fails every call made with a done context, the way pgx does
type ctxStore struct {
	inner db.Transactor
}

func (c ctxStore) WithinTx(ctx context.Context, fn func(store db.GenerationStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.inner.WithinTx(ctx, func(store db.GenerationStore) error {
		return fn(ctxTx{inner: store})
	})
}

type ctxTx struct {
	inner db.GenerationStore
}

func (t ctxTx) GetAccount(ctx context.Context, id int64) (*db.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.inner.GetAccount(ctx, id)
}

func (t ctxTx) GetAssignedHosts(ctx context.Context, accountID int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.inner.GetAssignedHosts(ctx, accountID)
}

func (t ctxTx) UpsertHostAvailability(ctx context.Context, rows []db.HostAvailability) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.inner.UpsertHostAvailability(ctx, rows)
}

func (t ctxTx) FindQualifyingHosts(ctx context.Context, accountID int64, date time.Time, slot model.Slot) ([]db.HostCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.inner.FindQualifyingHosts(ctx, accountID, date, slot)
}

func (t ctxTx) FindOffAvailability(ctx context.Context, hostID int64, date time.Time) (*int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.inner.FindOffAvailability(ctx, hostID, date)
}

func (t ctxTx) FindFreeEmployeeByPosition(ctx context.Context, position string, date time.Time, slot model.Slot) (*int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.inner.FindFreeEmployeeByPosition(ctx, position, date, slot)
}

func (t ctxTx) InsertScheduleBatch(ctx context.Context, batch *db.ScheduleBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.inner.InsertScheduleBatch(ctx, batch)
}

func (t ctxTx) InsertWorkSchedule(ctx context.Context, ws *db.WorkSchedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.inner.InsertWorkSchedule(ctx, ws)
}

func (t ctxTx) InsertLiveSchedule(ctx context.Context, ls *db.LiveSchedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.inner.InsertLiveSchedule(ctx, ls)
}

func (t ctxTx) SetLiveScheduleCohost(ctx context.Context, scheduleID, employeeID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.inner.SetLiveScheduleCohost(ctx, scheduleID, employeeID)
}

func TestGenerate_CancellationMidSlotCommitsWrittenRows(t *testing.T) {
	store := memstore.New()
	accountID, _ := seedAccount(store, "acme", tod(8, 0), tod(20, 0), 4, true, 3)
	cohost := store.AddEmployee("cohost", model.PositionCohost)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel between the live insert and the co-host update of the fifth slot
	inserted := 0
	store.AfterLiveInsert(func(db.LiveSchedule) {
		inserted++
		if inserted == 5 {
			cancel()
		}
	})

	summary, err := newSequencedScheduler(ctxStore{inner: store}).Generate(ctx, []int64{accountID}, testStart)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)

	require.Len(t, summary.Accounts, 1)
	assert.Equal(t, OutcomeCancelled, summary.Accounts[0].Kind)
	assert.Empty(t, summary.Accounts[0].Error)
	assert.Equal(t, 5, summary.SlotsFilled)
	assert.Equal(t, 5, summary.CohostsAssigned)

	schedules := store.LiveSchedules()
	require.Len(t, schedules, 5)
	for _, ls := range schedules {
		require.NotNil(t, ls.CoHostID)
		assert.Equal(t, cohost, *ls.CoHostID)
	}
	assert.Len(t, store.Batches(), 1)
	assert.Len(t, store.Availability(), 21)
}
