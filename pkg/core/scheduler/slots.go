package scheduler

import (
	"math"
	"time"

	"github.com/jakechorley/live-schedule/pkg/core/model"
)

// MinCadence is the shortest slot CalculateSlots will produce
const MinCadence = time.Minute

// CadenceDuration converts a "switch host every" value in hours to a duration.
// Non-positive and non-finite cadences convert to zero.
func CadenceDuration(hours float64) time.Duration {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return 0
	}
	d := math.Round(hours * float64(time.Hour))
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// CalculateSlots tiles [start, end) with contiguous slots of exactly cadenceHours,
// beginning at start. A trailing remainder shorter than the cadence is dropped.
//
// The result is empty when the cadence is shorter than MinCadence, when it is longer
// than the window, or when start is not before end (windows that wrap past midnight are not
// supported).
func CalculateSlots(start, end model.TimeOfDay, cadenceHours float64) []model.Slot {
	slots := []model.Slot{}

	step := model.TimeOfDay(CadenceDuration(cadenceHours))
	if step < model.TimeOfDay(MinCadence) || start >= end || step > end-start {
		return slots
	}

	for current := start; current < end; {
		next := current + step
		if next > end {
			break
		}
		slots = append(slots, model.Slot{Start: current, End: next})
		current = next
	}

	return slots
}
