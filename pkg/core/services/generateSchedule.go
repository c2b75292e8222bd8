package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/live-schedule/pkg/core/model"
	"github.com/jakechorley/live-schedule/pkg/core/scheduler"
	"github.com/jakechorley/live-schedule/pkg/lock"
	"github.com/jakechorley/live-schedule/pkg/metrics"
)

// GenerationLockName is the lock held for the duration of a generation run
const GenerationLockName = "live-schedule:generate"

var (
	// ErrInvalidRequest marks caller input errors
	ErrInvalidRequest = errors.New("invalid request")

	// ErrGenerationInProgress is returned when another run holds the generation lock
	ErrGenerationInProgress = errors.New("schedule generation already in progress")
)

// Generator produces draft schedules. *scheduler.Scheduler implements it.
type Generator interface {
	Generate(ctx context.Context, accountIDs []int64, startDate time.Time) (*scheduler.Summary, error)
}

// GenerateRequest is the input of a generation run
type GenerateRequest struct {
	AccountIDs []int64
	StartDate  string
}

// GenerateSchedule validates the request, takes the generation lock and runs the generator.
// A positive timeout bounds the run; when it expires the partial summary is returned
// together with the context error.
func GenerateSchedule(ctx context.Context, generator Generator, locker lock.Locker, logger *zap.Logger, req GenerateRequest, timeout time.Duration) (*scheduler.Summary, error) {
	accountIDs, err := normalizeAccountIDs(req.AccountIDs)
	if err != nil {
		return nil, err
	}
	if len(accountIDs) == 0 {
		return nil, fmt.Errorf("%w: account_ids must not be empty", ErrInvalidRequest)
	}

	startDate, err := model.ParseDate(req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	unlock, err := locker.Acquire(ctx, GenerationLockName)
	if errors.Is(err, lock.ErrLocked) {
		metrics.GenerationRuns.WithLabelValues(metrics.ResultLocked).Inc()
		logger.Warn("Generation requested while another run is in progress")
		return nil, ErrGenerationInProgress
	}
	if err != nil {
		metrics.GenerationRuns.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("failed to acquire generation lock: %w", err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Failed to release generation lock", zap.Error(err))
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	summary, err := generator.Generate(ctx, accountIDs, startDate)
	metrics.RecordSummary(summary)

	switch {
	case err == nil:
		metrics.GenerationRuns.WithLabelValues(metrics.ResultOK).Inc()
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		metrics.GenerationRuns.WithLabelValues(metrics.ResultCancelled).Inc()
	default:
		metrics.GenerationRuns.WithLabelValues(metrics.ResultError).Inc()
	}

	if err != nil {
		return summary, fmt.Errorf("schedule generation stopped: %w", err)
	}
	return summary, nil
}

// normalizeAccountIDs rejects non-positive ids and drops repeats, keeping first-seen order
func normalizeAccountIDs(ids []int64) ([]int64, error) {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, fmt.Errorf("%w: invalid account id %d", ErrInvalidRequest, id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
