package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Config holds all parameters for a single analysis run.
type Config struct {
	Input  InputConfig
	Model  ModelConfig
	Output OutputConfig
}

// InputConfig describes the raw CSV and the cohort to analyse.
type InputConfig struct {
	Path       string
	Cohort     string
	PadThrough time.Time
}

// ModelConfig describes the model fit and sampling parameters.
type ModelConfig struct {
	Cutoff        time.Time
	HorizonMonths int
	Chains        int
	Seed          uint64
	Changepoints  int
	FourierOrder  int
}

// OutputConfig describes where the rendered report goes.
type OutputConfig struct {
	HTMLPath string
	Title    string
}

// scenario is the YAML shape of an optional scenario file. All fields are
// optional; unset fields keep their defaults.
type scenario struct {
	Input struct {
		Path       string `yaml:"path"`
		Cohort     string `yaml:"cohort"`
		PadThrough string `yaml:"pad_through"`
	} `yaml:"input"`
	Model struct {
		Cutoff        string  `yaml:"cutoff"`
		HorizonMonths *int    `yaml:"horizon_months"`
		Chains        *int    `yaml:"chains"`
		Seed          *uint64 `yaml:"seed"`
		Changepoints  *int    `yaml:"changepoints"`
		FourierOrder  *int    `yaml:"fourier_order"`
	} `yaml:"model"`
	Output struct {
		HTMLPath string `yaml:"html_path"`
		Title    string `yaml:"title"`
	} `yaml:"output"`
}

// Load builds the run configuration. Precedence: built-in defaults, then the
// scenario file named by ANALYSIS_SCENARIO (if any), then environment
// variables. A .env file is loaded first when present.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Input: InputConfig{
			Path:       "data/weekly_deaths.csv",
			Cohort:     "80 and over",
			PadThrough: mustDate("2021-12-01"),
		},
		Model: ModelConfig{
			Cutoff:        mustDate("2020-01-01"),
			HorizonMonths: 17,
			Chains:        4000,
			Seed:          42,
			Changepoints:  8,
			FourierOrder:  3,
		},
		Output: OutputConfig{
			HTMLPath: "report.html",
			Title:    "NZ mortality, 80 and over",
		},
	}

	if path := os.Getenv("ANALYSIS_SCENARIO"); path != "" {
		if err := applyScenario(config, path); err != nil {
			return nil, fmt.Errorf("failed to apply scenario %s: %w", path, err)
		}
	}

	config.Input.Path = getEnv("ANALYSIS_INPUT", config.Input.Path)
	config.Input.Cohort = getEnv("ANALYSIS_COHORT", config.Input.Cohort)
	if pad, ok, err := getEnvAsDate("ANALYSIS_PAD_THROUGH"); err != nil {
		return nil, err
	} else if ok {
		config.Input.PadThrough = pad
	}

	if cutoff, ok, err := getEnvAsDate("ANALYSIS_CUTOFF"); err != nil {
		return nil, err
	} else if ok {
		config.Model.Cutoff = cutoff
	}
	config.Model.HorizonMonths = getEnvAsInt("ANALYSIS_HORIZON_MONTHS", config.Model.HorizonMonths)
	config.Model.Chains = getEnvAsInt("ANALYSIS_CHAINS", config.Model.Chains)
	config.Model.Seed = getEnvAsUint("ANALYSIS_SEED", config.Model.Seed)
	config.Model.Changepoints = getEnvAsInt("ANALYSIS_CHANGEPOINTS", config.Model.Changepoints)
	config.Model.FourierOrder = getEnvAsInt("ANALYSIS_FOURIER_ORDER", config.Model.FourierOrder)

	config.Output.HTMLPath = getEnv("ANALYSIS_OUTPUT", config.Output.HTMLPath)
	config.Output.Title = getEnv("ANALYSIS_TITLE", config.Output.Title)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks that the configuration can produce a meaningful run.
func (c *Config) Validate() error {
	if c.Input.Path == "" {
		return fmt.Errorf("input path must not be empty")
	}
	if c.Input.Cohort == "" {
		return fmt.Errorf("cohort label must not be empty")
	}
	if c.Model.Chains < 1000 {
		return fmt.Errorf("chains must be at least 1000 for stable percentile estimates, got %d", c.Model.Chains)
	}
	if c.Model.HorizonMonths < 1 {
		return fmt.Errorf("horizon must be at least 1 month, got %d", c.Model.HorizonMonths)
	}
	if c.Model.Changepoints < 0 {
		return fmt.Errorf("changepoints must not be negative, got %d", c.Model.Changepoints)
	}
	if c.Model.FourierOrder < 1 {
		return fmt.Errorf("fourier order must be at least 1, got %d", c.Model.FourierOrder)
	}
	if !c.Input.PadThrough.After(c.Model.Cutoff) {
		return fmt.Errorf("pad-through month %s must fall after the cutoff %s",
			c.Input.PadThrough.Format(dateLayout), c.Model.Cutoff.Format(dateLayout))
	}
	return nil
}

func applyScenario(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var s scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	if s.Input.Path != "" {
		config.Input.Path = s.Input.Path
	}
	if s.Input.Cohort != "" {
		config.Input.Cohort = s.Input.Cohort
	}
	if s.Input.PadThrough != "" {
		t, err := time.Parse(dateLayout, s.Input.PadThrough)
		if err != nil {
			return fmt.Errorf("invalid pad_through date %q: %w", s.Input.PadThrough, err)
		}
		config.Input.PadThrough = t
	}
	if s.Model.Cutoff != "" {
		t, err := time.Parse(dateLayout, s.Model.Cutoff)
		if err != nil {
			return fmt.Errorf("invalid cutoff date %q: %w", s.Model.Cutoff, err)
		}
		config.Model.Cutoff = t
	}
	// Pointer fields distinguish an explicit zero from an absent key.
	if s.Model.HorizonMonths != nil {
		config.Model.HorizonMonths = *s.Model.HorizonMonths
	}
	if s.Model.Chains != nil {
		config.Model.Chains = *s.Model.Chains
	}
	if s.Model.Seed != nil {
		config.Model.Seed = *s.Model.Seed
	}
	if s.Model.Changepoints != nil {
		config.Model.Changepoints = *s.Model.Changepoints
	}
	if s.Model.FourierOrder != nil {
		config.Model.FourierOrder = *s.Model.FourierOrder
	}
	if s.Output.HTMLPath != "" {
		config.Output.HTMLPath = s.Output.HTMLPath
	}
	if s.Output.Title != "" {
		config.Output.Title = s.Output.Title
	}
	return nil
}

func mustDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsUint(key string, defaultValue uint64) uint64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseUint(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDate(key string) (time.Time, bool, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(dateLayout, valueStr)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid date in %s: %w", key, err)
	}
	return t, true, nil
}
