package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/kereru-analytics/nz-mortality/internal/pipeline"
	"github.com/kereru-analytics/nz-mortality/internal/report"
	"github.com/kereru-analytics/nz-mortality/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	fmt.Printf("Analysing cohort %q from %s\n", cfg.Input.Cohort, cfg.Input.Path)

	// Run the pipeline once
	result, err := pipeline.Run(cfg, logger)
	if err != nil {
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			log.Fatalf("Run failed in %s stage: %v", stageErr.Stage, stageErr.Err)
		}
		log.Fatalf("Run failed: %v", err)
	}

	// Render the report
	out, err := os.Create(cfg.Output.HTMLPath)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer out.Close()

	if err := report.Render(out, result, cfg.Output.Title); err != nil {
		log.Fatalf("Failed to render report: %v", err)
	}

	if n := len(result.Excess); n > 0 {
		last := result.Excess[n-1]
		fmt.Printf("Cumulative excess through %s: %.1f (90%% band %.1f to %.1f)\n",
			last.Date.Format("2006-01"), last.CumDeltaMean, last.CumDeltaLower, last.CumDeltaUpper)
	}
	fmt.Printf("Report written to %s\n", cfg.Output.HTMLPath)
}
