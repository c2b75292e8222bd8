package scheduler

import (
	"time"

	"github.com/jakechorley/live-schedule/pkg/db"
)

// Rand is the random source used for day-off and host choices.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// PlanDaysOff picks one uniformly random day off per host within dates and returns
// an availability row for every (host, date) pair: unavailable on the day off,
// available otherwise.
func PlanDaysOff(hostIDs []int64, dates []time.Time, rng Rand) []db.HostAvailability {
	rows := make([]db.HostAvailability, 0, len(hostIDs)*len(dates))
	if len(dates) == 0 {
		return rows
	}

	for _, hostID := range hostIDs {
		offDay := rng.IntN(len(dates))
		for i, date := range dates {
			rows = append(rows, db.HostAvailability{
				HostID:      hostID,
				Date:        date,
				IsAvailable: i != offDay,
			})
		}
	}

	return rows
}
