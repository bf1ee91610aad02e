// Package model fits an additive trend+seasonality model to a monthly series
// and produces forecasts and posterior samples over an extended horizon.
package model

import (
	"errors"
	"time"

	"github.com/kereru-analytics/nz-mortality/internal/dataset"
)

// MinTrainingPoints is the smallest training series a fit will accept. Two
// full years of monthly data are needed before the yearly seasonality basis
// is identifiable.
const MinTrainingPoints = 24

// Fit errors.
var (
	ErrInsufficientData      = errors.New("not enough training observations")
	ErrPlaceholderInTraining = errors.New("placeholder point in training series")
	ErrNotPositiveDefinite   = errors.New("normal equations are not positive definite")
)

// Backend fits the decomposition model to a training series. Any backend
// producing forecasts and posterior samples over an extended horizon is
// substitutable here.
type Backend interface {
	Fit(train dataset.Series) (*Fit, error)
}

// ForecastRow is the deterministic forecast for one date: point estimate,
// 5/95 interval and the decomposed trend and seasonal components.
type ForecastRow struct {
	Date     time.Time
	Point    float64
	Lower    float64
	Upper    float64
	Trend    float64
	Seasonal float64
}
