package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/live-schedule/pkg/core/model"
	"github.com/jakechorley/live-schedule/pkg/db"
)

// PickHost chooses uniformly among the qualifying candidates.
// Returns false when there are none.
func PickHost(candidates []db.HostCandidate, rng Rand) (db.HostCandidate, bool) {
	if len(candidates) == 0 {
		return db.HostCandidate{}, false
	}
	return candidates[rng.IntN(len(candidates))], true
}

// selectHost runs the qualifying-host query for one date and slot and picks one at random
func (s *Scheduler) selectHost(ctx context.Context, store db.HostStore, logger *zap.Logger, accountID int64, date time.Time, slot model.Slot) (*db.HostCandidate, error) {
	candidates, err := store.FindQualifyingHosts(ctx, accountID, date, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to find qualifying hosts: %w", err)
	}

	logger.Debug("Host search result",
		zap.String("date", model.FormatDate(date)),
		zap.Stringer("slot", slot),
		zap.Int("candidates", len(candidates)))

	host, ok := PickHost(candidates, s.rng)
	if !ok {
		return nil, nil
	}
	return &host, nil
}

// selectCohost returns the first employee holding the co-host position who is free
// for the slot. Unlike host selection this is first-found, not random.
func (s *Scheduler) selectCohost(ctx context.Context, store db.EmployeeStore, date time.Time, slot model.Slot) (*int64, error) {
	employeeID, err := store.FindFreeEmployeeByPosition(ctx, s.cohostPosition, date, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to find co-host: %w", err)
	}
	return employeeID, nil
}
