package scheduler

import (
	"time"

	"github.com/teambition/rrule-go"

	"github.com/jakechorley/live-schedule/pkg/core/model"
)

// HorizonDays is the fixed length of a generation window
const HorizonDays = 7

// HorizonDates returns the HorizonDays consecutive dates starting at start, in order
func HorizonDates(start time.Time) []time.Time {
	start = model.NormalizeDate(start)

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Count:   HorizonDays,
		Dtstart: start,
	})
	if err != nil {
		// NewRRule only rejects invalid options
		dates := make([]time.Time, HorizonDays)
		for i := range dates {
			dates[i] = start.AddDate(0, 0, i)
		}
		return dates
	}

	return rule.All()
}

// BatchEndDate returns the last date of the window beginning at start
func BatchEndDate(start time.Time) time.Time {
	return model.NormalizeDate(start).AddDate(0, 0, HorizonDays-1)
}
