package model

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kereru-analytics/nz-mortality/internal/dataset"
	"github.com/kereru-analytics/nz-mortality/internal/samples"
)

// z90 is the two-sided 90% normal quantile, giving the 5th/95th interval.
const z90 = 1.6448536269514722

// BayesLinear is the default model backend: a piecewise-linear trend with
// evenly spaced changepoints plus a yearly Fourier seasonality basis, fitted
// by ridge-regularized least squares. The coefficient posterior is the
// conjugate normal N(coef, sigma2*(X'X+lambda*I)^-1), which is what the
// posterior sampler draws from. Sub-yearly seasonality is deliberately off:
// the series is already aggregated to monthly means.
type BayesLinear struct {
	Changepoints int
	FourierOrder int
	Ridge        float64
	Seed         uint64
}

// NewBayesLinear returns a backend with the default basis configuration.
func NewBayesLinear(seed uint64) *BayesLinear {
	return &BayesLinear{
		Changepoints: 8,
		FourierOrder: 3,
		Ridge:        1.0,
		Seed:         seed,
	}
}

// Fit is the opaque result of fitting the model to a training series. It owns
// no mutable state after construction and is consumed only to produce
// forecasts and posterior samples.
type Fit struct {
	cfg       BayesLinear
	dates     []time.Time
	t0        time.Time
	span      float64 // training span in seconds, scales time to [0,1]
	coef      []float64
	cov       *mat.SymDense // sigma2 * (X'X + lambda*I)^-1
	sigma2    float64
	trendCols int
	cols      int
}

// Fit estimates the model on the training series. The series must be sorted
// with unique dates, contain no placeholder points and carry at least
// MinTrainingPoints observations.
func (b *BayesLinear) Fit(train dataset.Series) (*Fit, error) {
	if err := train.Validate(); err != nil {
		return nil, err
	}
	for _, p := range train {
		if p.Placeholder {
			return nil, fmt.Errorf("%w: %s", ErrPlaceholderInTraining, p.Date.Format("2006-01-02"))
		}
	}
	n := len(train)
	trendCols := 2 + b.Changepoints
	cols := trendCols + 2*b.FourierOrder
	if n < MinTrainingPoints || n <= cols {
		need := MinTrainingPoints
		if cols+1 > need {
			need = cols + 1
		}
		return nil, fmt.Errorf("%w: have %d, need at least %d", ErrInsufficientData, n, need)
	}

	fit := &Fit{
		cfg:       *b,
		dates:     train.Dates(),
		t0:        train[0].Date,
		span:      train[n-1].Date.Sub(train[0].Date).Seconds(),
		trendCols: trendCols,
		cols:      cols,
	}

	// Design matrix over the training dates.
	x := mat.NewDense(n, cols, nil)
	y := mat.NewVecDense(n, nil)
	for i, p := range train {
		x.SetRow(i, fit.features(p.Date))
		y.SetVec(i, p.Deaths)
	}

	// Ridge-regularized normal equations, solved by Cholesky.
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	a := mat.NewSymDense(cols, nil)
	for i := 0; i < cols; i++ {
		for j := i; j < cols; j++ {
			v := xtx.At(i, j)
			if i == j {
				v += b.Ridge
			}
			a.SetSym(i, j, v)
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return nil, ErrNotPositiveDefinite
	}

	xty := mat.NewVecDense(cols, nil)
	xty.MulVec(x.T(), y)
	coef := mat.NewVecDense(cols, nil)
	if err := chol.SolveVecTo(coef, xty); err != nil {
		return nil, fmt.Errorf("failed to solve normal equations: %w", err)
	}
	fit.coef = make([]float64, cols)
	for i := 0; i < cols; i++ {
		fit.coef[i] = coef.AtVec(i)
	}

	// Residual variance and coefficient covariance.
	rss := 0.0
	for _, p := range train {
		r := p.Deaths - floats.Dot(fit.features(p.Date), fit.coef)
		rss += r * r
	}
	fit.sigma2 = rss / float64(n-cols)

	inv := mat.NewSymDense(cols, nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, fmt.Errorf("failed to invert normal equations: %w", err)
	}
	fit.cov = mat.NewSymDense(cols, nil)
	for i := 0; i < cols; i++ {
		for j := i; j < cols; j++ {
			fit.cov.SetSym(i, j, fit.sigma2*inv.At(i, j))
		}
	}
	return fit, nil
}

// features builds the basis row for one date: intercept, scaled time, one
// hinge per changepoint, then the yearly Fourier pairs.
func (f *Fit) features(date time.Time) []float64 {
	row := make([]float64, f.cols)
	tau := date.Sub(f.t0).Seconds() / f.span
	row[0] = 1
	row[1] = tau
	for j := 1; j <= f.cfg.Changepoints; j++ {
		s := float64(j) / float64(f.cfg.Changepoints+1)
		row[1+j] = math.Max(0, tau-s)
	}
	yearFrac := float64(date.YearDay()-1) / 365.25
	for k := 1; k <= f.cfg.FourierOrder; k++ {
		theta := 2 * math.Pi * float64(k) * yearFrac
		row[f.trendCols+2*(k-1)] = math.Sin(theta)
		row[f.trendCols+2*(k-1)+1] = math.Cos(theta)
	}
	return row
}

// Axis returns the forecast date axis: the training dates extended by
// horizon additional months.
func (f *Fit) Axis(horizon int) []time.Time {
	axis := make([]time.Time, 0, len(f.dates)+horizon)
	axis = append(axis, f.dates...)
	last := f.dates[len(f.dates)-1]
	for i := 1; i <= horizon; i++ {
		axis = append(axis, last.AddDate(0, i, 0))
	}
	return axis
}

// Forecast produces the deterministic forecast table for every date from the
// start of training through horizon additional months. The interval is the
// Gaussian predictive 5th/95th band.
func (f *Fit) Forecast(horizon int) ([]ForecastRow, error) {
	if horizon < 0 {
		return nil, fmt.Errorf("horizon must not be negative, got %d", horizon)
	}
	axis := f.Axis(horizon)
	rows := make([]ForecastRow, len(axis))
	for i, date := range axis {
		feat := f.features(date)
		point := floats.Dot(feat, f.coef)
		trend := floats.Dot(feat[:f.trendCols], f.coef[:f.trendCols])

		fv := mat.NewVecDense(f.cols, feat)
		predVar := f.sigma2 + mat.Inner(fv, f.cov, fv)
		sd := math.Sqrt(predVar)

		rows[i] = ForecastRow{
			Date:     date,
			Point:    point,
			Lower:    point - z90*sd,
			Upper:    point + z90*sd,
			Trend:    trend,
			Seasonal: point - trend,
		}
	}
	return rows, nil
}

// PosteriorSamples draws chains independent realizations of the trend and the
// full prediction at every step of the forecast axis. Each call reseeds its
// own source, so results are identical across calls for a fixed seed.
func (f *Fit) PosteriorSamples(horizon, chains int) (*samples.Wide, error) {
	if horizon < 0 {
		return nil, fmt.Errorf("horizon must not be negative, got %d", horizon)
	}
	if chains < 1 {
		return nil, fmt.Errorf("chains must be at least 1, got %d", chains)
	}

	src := rand.NewSource(f.cfg.Seed)
	coefDist, ok := distmv.NewNormal(f.coef, f.cov, src)
	if !ok {
		return nil, ErrNotPositiveDefinite
	}
	noise := distuv.Normal{Mu: 0, Sigma: math.Sqrt(f.sigma2), Src: src}

	axis := f.Axis(horizon)
	feats := make([][]float64, len(axis))
	for i, date := range axis {
		feats[i] = f.features(date)
	}

	wide := &samples.Wide{
		Dates: axis,
		Trend: make([][]float64, chains),
		Yhat:  make([][]float64, chains),
	}
	draw := make([]float64, f.cols)
	for c := 0; c < chains; c++ {
		coefDist.Rand(draw)
		trendRow := make([]float64, len(axis))
		yhatRow := make([]float64, len(axis))
		for i, feat := range feats {
			trendRow[i] = floats.Dot(feat[:f.trendCols], draw[:f.trendCols])
			yhatRow[i] = floats.Dot(feat, draw) + noise.Rand()
		}
		wide.Trend[c] = trendRow
		wide.Yhat[c] = yhatRow
	}
	return wide, nil
}
