package samples

import (
	"errors"
	"fmt"
	"time"
)

// Reshape errors.
var (
	ErrRaggedMatrix = errors.New("sample matrix rows have unequal lengths")
	ErrEmptyMatrix  = errors.New("sample matrix has no chains")
)

// Wide holds posterior draws as produced by the model backend: one row per
// chain, one column per time step, for the trend and full-prediction
// quantities. The date axis runs over the full forecast horizon.
type Wide struct {
	Dates []time.Time
	Trend [][]float64
	Yhat  [][]float64
}

// Row is one posterior draw in long form, keyed by chain and time step.
type Row struct {
	Chain int
	Step  int
	Value float64
}

// Long is the long-form view of one sampled quantity. Rows are ordered by
// chain, then step, and the table is dense: Chains*Steps rows.
type Long struct {
	Rows   []Row
	Chains int
	Steps  int
}

// Reshape converts a wide per-chain sample matrix into long form keyed by
// (chain, step). Ragged input is a correctness defect and fails outright.
func Reshape(wide [][]float64) (Long, error) {
	if len(wide) == 0 {
		return Long{}, ErrEmptyMatrix
	}
	steps := len(wide[0])
	rows := make([]Row, 0, len(wide)*steps)
	for chain, values := range wide {
		if len(values) != steps {
			return Long{}, fmt.Errorf("%w: chain %d has %d steps, expected %d",
				ErrRaggedMatrix, chain, len(values), steps)
		}
		for step, v := range values {
			rows = append(rows, Row{Chain: chain, Step: step, Value: v})
		}
	}
	return Long{Rows: rows, Chains: len(wide), Steps: steps}, nil
}
