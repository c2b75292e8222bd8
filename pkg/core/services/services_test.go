package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/live-schedule/pkg/core/model"
	"github.com/jakechorley/live-schedule/pkg/core/scheduler"
	"github.com/jakechorley/live-schedule/pkg/db"
	"github.com/jakechorley/live-schedule/pkg/lock"
)

// mockGenerator implements Generator
type mockGenerator struct {
	summary *scheduler.Summary
	err     error

	calls       int
	accountIDs  []int64
	startDate   time.Time
	hadDeadline bool
	onGenerate  func()
}

func (m *mockGenerator) Generate(ctx context.Context, accountIDs []int64, startDate time.Time) (*scheduler.Summary, error) {
	m.calls++
	m.accountIDs = accountIDs
	m.startDate = startDate
	_, m.hadDeadline = ctx.Deadline()
	if m.onGenerate != nil {
		m.onGenerate()
	}
	if m.summary == nil {
		m.summary = &scheduler.Summary{}
	}
	return m.summary, m.err
}

// mockLocker implements lock.Locker
type mockLocker struct {
	err      error
	acquired int
	released int
}

func (m *mockLocker) Acquire(ctx context.Context, name string) (lock.Unlock, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.acquired++
	return func(context.Context) error {
		m.released++
		return nil
	}, nil
}

// mockScheduleStore implements db.ScheduleReader and db.BatchStatusStore
type mockScheduleStore struct {
	views     []db.ScheduleView
	listErr   error
	filter    db.ScheduleFilter
	updated   int64
	statusErr error
}

func (m *mockScheduleStore) ListSchedules(ctx context.Context, filter db.ScheduleFilter) ([]db.ScheduleView, error) {
	m.filter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.views, nil
}

func (m *mockScheduleStore) SetBatchDraftStatus(ctx context.Context, batchID int64, isDraft bool) (int64, error) {
	if m.statusErr != nil {
		return 0, m.statusErr
	}
	return m.updated, nil
}

func TestGenerateSchedule_Success(t *testing.T) {
	gen := &mockGenerator{summary: &scheduler.Summary{SlotsFilled: 3}}
	locker := &mockLocker{}

	summary, err := GenerateSchedule(context.Background(), gen, locker, zap.NewNop(),
		GenerateRequest{AccountIDs: []int64{3, 1, 3}, StartDate: "2025-06-02"}, time.Minute)

	require.NoError(t, err)
	assert.Equal(t, 3, summary.SlotsFilled)
	assert.Equal(t, []int64{3, 1}, gen.accountIDs)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), gen.startDate)
	assert.True(t, gen.hadDeadline)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
}

func TestGenerateSchedule_InvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  GenerateRequest
	}{
		{"no accounts", GenerateRequest{StartDate: "2025-06-02"}},
		{"non-positive account", GenerateRequest{AccountIDs: []int64{1, 0}, StartDate: "2025-06-02"}},
		{"missing date", GenerateRequest{AccountIDs: []int64{1}}},
		{"malformed date", GenerateRequest{AccountIDs: []int64{1}, StartDate: "02/06/2025"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{}
			locker := &mockLocker{}

			_, err := GenerateSchedule(context.Background(), gen, locker, zap.NewNop(), tt.req, 0)

			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, 0, gen.calls)
			assert.Equal(t, 0, locker.acquired)
		})
	}
}

func TestGenerateSchedule_Locked(t *testing.T) {
	gen := &mockGenerator{}

	_, err := GenerateSchedule(context.Background(), gen, &mockLocker{err: lock.ErrLocked}, zap.NewNop(),
		GenerateRequest{AccountIDs: []int64{1}, StartDate: "2025-06-02"}, 0)

	assert.ErrorIs(t, err, ErrGenerationInProgress)
	assert.Equal(t, 0, gen.calls)
}

func TestGenerateSchedule_LockBackendError(t *testing.T) {
	_, err := GenerateSchedule(context.Background(), &mockGenerator{}, &mockLocker{err: errors.New("redis down")}, zap.NewNop(),
		GenerateRequest{AccountIDs: []int64{1}, StartDate: "2025-06-02"}, 0)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrGenerationInProgress)
	assert.Contains(t, err.Error(), "redis down")
}

func TestGenerateSchedule_SerializesRuns(t *testing.T) {
	locker := lock.NewLocalLocker()
	req := GenerateRequest{AccountIDs: []int64{1}, StartDate: "2025-06-02"}

	var nestedErr error
	gen := &mockGenerator{}
	gen.onGenerate = func() {
		// A second run attempted while the first holds the lock is rejected
		_, nestedErr = GenerateSchedule(context.Background(), &mockGenerator{}, locker, zap.NewNop(), req, 0)
	}

	_, err := GenerateSchedule(context.Background(), gen, locker, zap.NewNop(), req, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, nestedErr, ErrGenerationInProgress)

	// The lock is released once the run finishes
	_, err = GenerateSchedule(context.Background(), &mockGenerator{}, locker, zap.NewNop(), req, 0)
	assert.NoError(t, err)
}

func TestGenerateSchedule_CancelledReturnsPartialSummary(t *testing.T) {
	gen := &mockGenerator{
		summary: &scheduler.Summary{SlotsFilled: 2, Cancelled: true},
		err:     context.Canceled,
	}
	locker := &mockLocker{}

	summary, err := GenerateSchedule(context.Background(), gen, locker, zap.NewNop(),
		GenerateRequest{AccountIDs: []int64{1}, StartDate: "2025-06-02"}, 0)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, locker.released)
}

func TestListSchedules_Filter(t *testing.T) {
	store := &mockScheduleStore{views: []db.ScheduleView{{ScheduleID: 1}}}

	views, err := ListSchedules(context.Background(), store, zap.NewNop(), ListRequest{AccountIDs: []int64{2, 2, 5}, Date: "2025-06-03"})

	require.NoError(t, err)
	assert.Len(t, views, 1)
	assert.Equal(t, []int64{2, 5}, store.filter.AccountIDs)
	require.NotNil(t, store.filter.Date)
	assert.Equal(t, "2025-06-03", model.FormatDate(*store.filter.Date))
}

func TestListSchedules_NoFilter(t *testing.T) {
	store := &mockScheduleStore{}

	_, err := ListSchedules(context.Background(), store, zap.NewNop(), ListRequest{})

	require.NoError(t, err)
	assert.Empty(t, store.filter.AccountIDs)
	assert.Nil(t, store.filter.Date)
}

func TestListSchedules_Errors(t *testing.T) {
	_, err := ListSchedules(context.Background(), &mockScheduleStore{}, zap.NewNop(), ListRequest{Date: "tomorrow"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = ListSchedules(context.Background(), &mockScheduleStore{listErr: errors.New("boom")}, zap.NewNop(), ListRequest{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidRequest)
}

func TestExportSchedules(t *testing.T) {
	store := &mockScheduleStore{views: []db.ScheduleView{
		{HostName: "Alice", Date: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)},
		{HostName: "Bob", Date: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)},
	}}
	now := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)

	var buf bytes.Buffer
	result, err := ExportSchedules(context.Background(), store, zap.NewNop(), ListRequest{}, now, &buf)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, "Live_Schedules_20250601_1830.xlsx", result.Filename)
	assert.NotZero(t, buf.Len())
}

func TestSetBatchStatus(t *testing.T) {
	updated, err := SetBatchStatus(context.Background(), &mockScheduleStore{updated: 21}, zap.NewNop(), 4, false)
	require.NoError(t, err)
	assert.Equal(t, int64(21), updated)

	_, err = SetBatchStatus(context.Background(), &mockScheduleStore{}, zap.NewNop(), 0, false)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = SetBatchStatus(context.Background(), &mockScheduleStore{statusErr: db.ErrNotFound}, zap.NewNop(), 9, true)
	assert.ErrorIs(t, err, db.ErrNotFound)
}
