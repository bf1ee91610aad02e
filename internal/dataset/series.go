package dataset

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors for time series.
var (
	ErrDuplicateDate = errors.New("duplicate date in series")
	ErrUnsortedDates = errors.New("series dates are not in increasing order")
)

// Point is one monthly observation. Placeholder marks a padded future month
// that carries no real observation; its Deaths value is never meaningful.
type Point struct {
	Date        time.Time
	Deaths      float64
	Placeholder bool
}

// Series is an ordered monthly time series with unique dates.
type Series []Point

// Validate checks the series invariants: strictly increasing, unique dates.
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if s[i].Date.Equal(s[i-1].Date) {
			return fmt.Errorf("%w: %s", ErrDuplicateDate, s[i].Date.Format("2006-01-02"))
		}
		if s[i].Date.Before(s[i-1].Date) {
			return fmt.Errorf("%w: %s after %s", ErrUnsortedDates,
				s[i-1].Date.Format("2006-01-02"), s[i].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Before returns the observed points strictly before the cutoff. Placeholder
// points are never included, whatever their date.
func (s Series) Before(cutoff time.Time) Series {
	var out Series
	for _, p := range s {
		if p.Placeholder || !p.Date.Before(cutoff) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Dates returns the date axis of the series.
func (s Series) Dates() []time.Time {
	dates := make([]time.Time, len(s))
	for i, p := range s {
		dates[i] = p.Date
	}
	return dates
}

// Observed reports how many points carry a real observation.
func (s Series) Observed() int {
	n := 0
	for _, p := range s {
		if !p.Placeholder {
			n++
		}
	}
	return n
}
