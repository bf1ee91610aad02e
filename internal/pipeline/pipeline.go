// Package pipeline runs the four analysis stages in order: prepare, fit,
// sample, aggregate. Every failure is tagged with the stage that produced it.
package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kereru-analytics/nz-mortality/internal/dataset"
	"github.com/kereru-analytics/nz-mortality/internal/excess"
	"github.com/kereru-analytics/nz-mortality/internal/model"
	"github.com/kereru-analytics/nz-mortality/internal/samples"
	"github.com/kereru-analytics/nz-mortality/pkg/config"
)

// Stage names used in error tagging and logs.
const (
	StagePrepare   = "prepare"
	StageFit       = "fit"
	StageSample    = "sample"
	StageAggregate = "aggregate"
)

// StageError wraps a failure with the pipeline stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result holds everything the report needs from one run.
type Result struct {
	RunID    string
	Cohort   string
	Cutoff   time.Time
	Series   dataset.Series
	Forecast []model.ForecastRow
	Excess   []excess.Stat
}

// monthsBetween returns the calendar-month distance from a to b.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// Run executes the analysis once. There are no retries: a statistical fit is
// not safe to silently rerun with a different seed.
func Run(cfg *config.Config, logger *slog.Logger) (*Result, error) {
	runID := uuid.New().String()
	logger = logger.With("run_id", runID)
	started := time.Now()

	// Stage 1: data preparation.
	records, err := dataset.Load(cfg.Input.Path)
	if err != nil {
		return nil, &StageError{Stage: StagePrepare, Err: err}
	}
	series, err := dataset.PrepareMonthly(records, cfg.Input.Cohort, cfg.Input.PadThrough)
	if err != nil {
		return nil, &StageError{Stage: StagePrepare, Err: err}
	}
	logger.Info("prepared monthly series",
		"records", len(records), "months", len(series), "observed", series.Observed())

	// Stage 2: model fit on pre-cutoff observations only.
	train := series.Before(cfg.Model.Cutoff)
	backend := &model.BayesLinear{
		Changepoints: cfg.Model.Changepoints,
		FourierOrder: cfg.Model.FourierOrder,
		Ridge:        1.0,
		Seed:         cfg.Model.Seed,
	}
	fit, err := backend.Fit(train)
	if err != nil {
		return nil, &StageError{Stage: StageFit, Err: err}
	}
	logger.Info("fitted model", "training_months", len(train),
		"cutoff", cfg.Model.Cutoff.Format("2006-01-02"))

	// Stage 3: forecast and posterior sampling. The horizon must at least
	// cover every month of the prepared series, padded placeholders included.
	// Measured in calendar months, not points: a gap month in the series
	// would otherwise leave the axis short.
	horizon := cfg.Model.HorizonMonths
	lastTrain := train[len(train)-1].Date
	lastSeries := series[len(series)-1].Date
	if needed := monthsBetween(lastTrain, lastSeries); needed > horizon {
		horizon = needed
	}
	forecast, err := fit.Forecast(horizon)
	if err != nil {
		return nil, &StageError{Stage: StageSample, Err: err}
	}
	wide, err := fit.PosteriorSamples(horizon, cfg.Model.Chains)
	if err != nil {
		return nil, &StageError{Stage: StageSample, Err: err}
	}
	trendLong, err := samples.Reshape(wide.Trend)
	if err != nil {
		return nil, &StageError{Stage: StageSample, Err: err}
	}
	yhatLong, err := samples.Reshape(wide.Yhat)
	if err != nil {
		return nil, &StageError{Stage: StageSample, Err: err}
	}
	table, err := samples.MergeAligned(trendLong, yhatLong, wide.Dates, series)
	if err != nil {
		return nil, &StageError{Stage: StageSample, Err: err}
	}
	logger.Info("sampled posterior", "chains", table.Chains, "steps", table.Steps)

	// Stage 4: cumulative excess mortality with credible band.
	stats, err := excess.Cumulative(table, cfg.Model.Cutoff)
	if err != nil {
		return nil, &StageError{Stage: StageAggregate, Err: err}
	}
	logger.Info("aggregated excess mortality",
		"dates", len(stats), "elapsed", time.Since(started))

	return &Result{
		RunID:    runID,
		Cohort:   cfg.Input.Cohort,
		Cutoff:   cfg.Model.Cutoff,
		Series:   series,
		Forecast: forecast,
		Excess:   stats,
	}, nil
}
