package dataset

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
)

// ErrNoRecords indicates the input file parsed cleanly but held no data rows.
var ErrNoRecords = errors.New("input contains no records")

// Date wraps time.Time so weekly dates can be decoded straight from CSV cells.
type Date struct {
	time.Time
}

// UnmarshalCSV parses an ISO date cell.
func (d *Date) UnmarshalCSV(s string) error {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Time = t.UTC()
	return nil
}

// Record is one raw weekly observation. The source columns series_name,
// parameter and value are renamed on load to Age, Date and Deaths.
type Record struct {
	Age    string  `csv:"series_name"`
	Date   Date    `csv:"parameter"`
	Deaths float64 `csv:"value"`
}

// Load reads the raw weekly CSV and validates every row. Malformed rows fail
// the load with a descriptive error rather than being skipped.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	var records []Record
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoRecords)
	}

	for i, r := range records {
		if r.Age == "" {
			return nil, fmt.Errorf("row %d: empty series_name", i+1)
		}
		if r.Date.IsZero() {
			return nil, fmt.Errorf("row %d: missing date", i+1)
		}
		if r.Deaths < 0 {
			return nil, fmt.Errorf("row %d: negative death count %v", i+1, r.Deaths)
		}
	}
	return records, nil
}
