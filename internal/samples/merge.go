package samples

import (
	"errors"
	"fmt"
	"time"

	"github.com/kereru-analytics/nz-mortality/internal/dataset"
)

// Merge errors. All of these are fatal: a misaligned sample table can only
// produce a wrong statistic, never a degraded one.
var (
	ErrMisaligned           = errors.New("sample tables are misaligned")
	ErrUnmatchedPlaceholder = errors.New("placeholder month has no matching forecast step")
	ErrUnmatchedObservation = errors.New("observed month has no matching forecast step")
)

// MergedRow joins one posterior draw of both quantities with the observation
// for its date, when one exists.
type MergedRow struct {
	Chain       int
	Step        int
	Date        time.Time
	Trend       float64
	Yhat        float64
	Observed    float64
	HasObserved bool
}

// Table is the merged observed+sampled table, dense over chains and steps.
// Rows are ordered by chain, then step.
type Table struct {
	Rows   []MergedRow
	Chains int
	Steps  int
	Dates  []time.Time
}

// At returns the row for a chain and step.
func (t *Table) At(chain, step int) MergedRow {
	return t.Rows[chain*t.Steps+step]
}

// MergeAligned joins the trend and yhat long tables on their (chain, step)
// keys and attaches the observation for each date on the axis. The two
// quantities must align on identical keys; every point of the observed series
// must match a step on the axis, and placeholder months in particular must be
// covered by the forecast horizon. Any mismatch fails the merge.
func MergeAligned(trend, yhat Long, dates []time.Time, obs dataset.Series) (*Table, error) {
	if trend.Chains != yhat.Chains || trend.Steps != yhat.Steps {
		return nil, fmt.Errorf("%w: trend is %dx%d, yhat is %dx%d",
			ErrMisaligned, trend.Chains, trend.Steps, yhat.Chains, yhat.Steps)
	}
	if len(trend.Rows) != len(yhat.Rows) {
		return nil, fmt.Errorf("%w: %d trend rows vs %d yhat rows",
			ErrMisaligned, len(trend.Rows), len(yhat.Rows))
	}
	if len(dates) != trend.Steps {
		return nil, fmt.Errorf("%w: %d axis dates for %d steps",
			ErrMisaligned, len(dates), trend.Steps)
	}

	stepByDate := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		stepByDate[d] = i
	}

	// Attach observations to steps. Unmatched points are fatal; a placeholder
	// falling through would otherwise leak its zero into the statistic.
	type observation struct {
		value       float64
		placeholder bool
	}
	obsByStep := make(map[int]observation, len(obs))
	for _, p := range obs {
		step, ok := stepByDate[p.Date]
		if !ok {
			if p.Placeholder {
				return nil, fmt.Errorf("%w: %s", ErrUnmatchedPlaceholder, p.Date.Format("2006-01-02"))
			}
			return nil, fmt.Errorf("%w: %s", ErrUnmatchedObservation, p.Date.Format("2006-01-02"))
		}
		obsByStep[step] = observation{value: p.Deaths, placeholder: p.Placeholder}
	}

	rows := make([]MergedRow, 0, len(trend.Rows))
	for i := range trend.Rows {
		tr, yr := trend.Rows[i], yhat.Rows[i]
		if tr.Chain != yr.Chain || tr.Step != yr.Step {
			return nil, fmt.Errorf("%w: key (%d,%d) vs (%d,%d) at row %d",
				ErrMisaligned, tr.Chain, tr.Step, yr.Chain, yr.Step, i)
		}
		row := MergedRow{
			Chain: tr.Chain,
			Step:  tr.Step,
			Date:  dates[tr.Step],
			Trend: tr.Value,
			Yhat:  yr.Value,
		}
		if o, ok := obsByStep[tr.Step]; ok && !o.placeholder {
			row.Observed = o.value
			row.HasObserved = true
		}
		rows = append(rows, row)
	}

	return &Table{Rows: rows, Chains: trend.Chains, Steps: trend.Steps, Dates: dates}, nil
}
