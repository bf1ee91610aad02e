// Package excess computes the cumulative excess-mortality statistic from the
// merged observed+sampled table.
package excess

import (
	"errors"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kereru-analytics/nz-mortality/internal/samples"
)

// ErrNoChains indicates the merged table carries no posterior chains.
var ErrNoChains = errors.New("merged table has no chains")

// Stat is the cumulative excess-mortality summary for one date: the
// cross-chain mean of the running sum of (predicted - observed) and its 5/95
// credible band.
type Stat struct {
	Date          time.Time
	CumDeltaMean  float64
	CumDeltaLower float64
	CumDeltaUpper float64
}

// Cumulative restricts the merged table to observed dates on/after the cutoff
// and, for each chain independently, accumulates (yhat - observed) over time.
// Each date is then summarized across chains into a mean and an empirical
// 5th/95th percentile band (stat.Quantile with stat.Empirical on the sorted
// per-chain cumulative values).
//
// Placeholder months carry no observation and never enter the sum. The
// trajectory is free to rise and fall; no monotonicity is implied.
func Cumulative(tbl *samples.Table, cutoff time.Time) ([]Stat, error) {
	if tbl.Chains < 1 {
		return nil, ErrNoChains
	}

	// Steps that participate: on/after cutoff with a real observation.
	var steps []int
	for step := 0; step < tbl.Steps; step++ {
		row := tbl.At(0, step)
		if row.Date.Before(cutoff) || !row.HasObserved {
			continue
		}
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return []Stat{}, nil
	}

	// Per-chain running sums, one trajectory per chain.
	cum := make([][]float64, len(steps))
	for i := range cum {
		cum[i] = make([]float64, tbl.Chains)
	}
	for c := 0; c < tbl.Chains; c++ {
		sum := 0.0
		for i, step := range steps {
			row := tbl.At(c, step)
			sum += row.Yhat - row.Observed
			cum[i][c] = sum
		}
	}

	stats := make([]Stat, len(steps))
	scratch := make([]float64, tbl.Chains)
	for i, step := range steps {
		copy(scratch, cum[i])
		sort.Float64s(scratch)
		stats[i] = Stat{
			Date:          tbl.At(0, step).Date,
			CumDeltaMean:  stat.Mean(cum[i], nil),
			CumDeltaLower: stat.Quantile(0.05, stat.Empirical, scratch, nil),
			CumDeltaUpper: stat.Quantile(0.95, stat.Empirical, scratch, nil),
		}
	}
	return stats, nil
}
