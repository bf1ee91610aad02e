package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kereru-analytics/nz-mortality/internal/model"
	"github.com/kereru-analytics/nz-mortality/pkg/config"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeWeeklyCSV builds a ten-year weekly series with a yearly sinusoid and a
// 10% level drop throughout the final year.
func writeWeeklyCSV(t *testing.T, cohort string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("series_name,parameter,value\n")
	for d := date("2010-01-04"); d.Before(date("2021-01-01")); d = d.AddDate(0, 0, 7) {
		yearFrac := float64(d.YearDay()-1) / 365.25
		level := 100 + 20*math.Sin(2*math.Pi*yearFrac)
		if d.Year() == 2020 {
			level *= 0.9
		}
		fmt.Fprintf(&b, "%s,%s,%.4f\n", cohort, d.Format("2006-01-02"), level)
	}

	path := filepath.Join(t.TempDir(), "weekly.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	return path
}

func testConfig(path string) *config.Config {
	return &config.Config{
		Input: config.InputConfig{
			Path:       path,
			Cohort:     "80 and over",
			PadThrough: date("2021-06-01"),
		},
		Model: config.ModelConfig{
			Cutoff:        date("2020-01-01"),
			HorizonMonths: 17,
			Chains:        1000,
			Seed:          42,
			Changepoints:  8,
			FourierOrder:  3,
		},
	}
}

func TestRun_TenPercentDropScenario(t *testing.T) {
	cfg := testConfig(writeWeeklyCSV(t, "80 and over"))

	result, err := Run(cfg, quietLogger())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Only the 12 observed months of the drop year carry a statistic; padded
	// placeholder months never do.
	if len(result.Excess) != 12 {
		t.Fatalf("Expected 12 excess stats, got %d", len(result.Excess))
	}
	for _, s := range result.Excess {
		if s.CumDeltaUpper < s.CumDeltaMean || s.CumDeltaMean < s.CumDeltaLower {
			t.Errorf("%s: band [%v, %v] does not bracket mean %v",
				s.Date.Format("2006-01"), s.CumDeltaLower, s.CumDeltaUpper, s.CumDeltaMean)
		}
	}

	// A 10% drop on a level of ~100 over 12 months accumulates roughly
	// 0.10 * 100 * 12 = 120 fewer-than-expected deaths.
	final := result.Excess[len(result.Excess)-1]
	if final.CumDeltaMean < 60 || final.CumDeltaMean > 180 {
		t.Errorf("Final cumulative excess %v, expected roughly 120", final.CumDeltaMean)
	}
	if final.CumDeltaLower <= 0 {
		t.Errorf("Band lower bound %v should clearly exclude zero", final.CumDeltaLower)
	}

	// Forecast axis covers the padded series end (2021-06).
	lastForecast := result.Forecast[len(result.Forecast)-1].Date
	if lastForecast.Before(date("2021-06-01")) {
		t.Errorf("Forecast ends %s, expected coverage through 2021-06", lastForecast)
	}
}

func TestRun_DeterministicForFixedSeed(t *testing.T) {
	path := writeWeeklyCSV(t, "80 and over")

	first, err := Run(testConfig(path), quietLogger())
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	second, err := Run(testConfig(path), quietLogger())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	for i := range first.Excess {
		a, b := first.Excess[i], second.Excess[i]
		if a.CumDeltaMean != b.CumDeltaMean || a.CumDeltaLower != b.CumDeltaLower || a.CumDeltaUpper != b.CumDeltaUpper {
			t.Fatalf("Excess stat %d differs between identically seeded runs", i)
		}
	}
}

func TestRun_GapMonthAfterCutoff(t *testing.T) {
	// One whole post-cutoff month has no observations. The forecast axis
	// must still reach the end of the series: the horizon is a calendar
	// distance, not a point count.
	var b strings.Builder
	b.WriteString("series_name,parameter,value\n")
	for d := date("2010-01-04"); d.Before(date("2021-01-01")); d = d.AddDate(0, 0, 7) {
		if d.Year() == 2020 && d.Month() == time.February {
			continue
		}
		yearFrac := float64(d.YearDay()-1) / 365.25
		level := 100 + 20*math.Sin(2*math.Pi*yearFrac)
		fmt.Fprintf(&b, "80 and over,%s,%.4f\n", d.Format("2006-01-02"), level)
	}
	path := filepath.Join(t.TempDir(), "weekly.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	cfg := testConfig(path)
	cfg.Model.HorizonMonths = 1
	cfg.Input.PadThrough = date("2020-12-01")

	result, err := Run(cfg, quietLogger())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := len(result.Excess); got != 11 {
		t.Fatalf("Expected 11 excess stats for 11 observed months, got %d", got)
	}
	last := result.Forecast[len(result.Forecast)-1].Date
	if last.Before(date("2020-12-01")) {
		t.Errorf("Forecast ends %s, expected coverage through 2020-12", last)
	}
}

func TestRun_MissingCohortFailsFit(t *testing.T) {
	cfg := testConfig(writeWeeklyCSV(t, "80 and over"))
	cfg.Input.Cohort = "no such cohort"

	_, err := Run(cfg, quietLogger())
	if err == nil {
		t.Fatal("Expected an error for a missing cohort")
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageFit {
		t.Fatalf("Expected a fit stage error, got %v", err)
	}
	if !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("Expected ErrInsufficientData, got %v", err)
	}
}

func TestRun_CutoffBeforeAllDataFailsFast(t *testing.T) {
	cfg := testConfig(writeWeeklyCSV(t, "80 and over"))
	cfg.Model.Cutoff = date("2009-01-01")
	cfg.Input.PadThrough = date("2021-06-01")

	_, err := Run(cfg, quietLogger())
	if !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("Expected ErrInsufficientData for zero training rows, got %v", err)
	}
}

func TestRun_MissingInputFile(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "absent.csv"))

	_, err := Run(cfg, quietLogger())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StagePrepare {
		t.Fatalf("Expected a prepare stage error, got %v", err)
	}
}
