package dataset

import (
	"fmt"
	"sort"
	"time"
)

// monthOf truncates a date to the first day of its calendar month.
func monthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PrepareMonthly filters the raw records to a single cohort and averages the
// weekly values within each calendar month. The weekly source data is noisy;
// the analysis proceeds on monthly means.
//
// Months after the last observation are padded with zero-valued placeholder
// points through padThrough, so the forecast horizon survives later joins.
// A cohort label absent from the input yields an empty series, not an error.
func PrepareMonthly(records []Record, cohort string, padThrough time.Time) (Series, error) {
	sums := make(map[time.Time]float64)
	counts := make(map[time.Time]int)
	for _, r := range records {
		if r.Age != cohort {
			continue
		}
		m := monthOf(r.Date.Time)
		sums[m] += r.Deaths
		counts[m]++
	}
	if len(sums) == 0 {
		return Series{}, nil
	}

	series := make(Series, 0, len(sums))
	for m, sum := range sums {
		series = append(series, Point{Date: m, Deaths: sum / float64(counts[m])})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })

	// Pad placeholder months from the last observation through padThrough.
	last := series[len(series)-1].Date
	for m := last.AddDate(0, 1, 0); !m.After(monthOf(padThrough)); m = m.AddDate(0, 1, 0) {
		series = append(series, Point{Date: m, Deaths: 0, Placeholder: true})
	}

	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("monthly aggregation produced an invalid series: %w", err)
	}
	return series, nil
}
