package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deaths.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	return path
}

func TestLoad_RenamesColumns(t *testing.T) {
	path := writeCSV(t, "series_name,parameter,value\n80 and over,2019-01-07,123\n")

	records, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	r := records[0]
	if r.Age != "80 and over" {
		t.Errorf("Age is %q, expected %q", r.Age, "80 and over")
	}
	if !r.Date.Equal(date("2019-01-07")) {
		t.Errorf("Date is %s, expected 2019-01-07", r.Date)
	}
	if r.Deaths != 123 {
		t.Errorf("Deaths is %v, expected 123", r.Deaths)
	}
}

func TestLoad_MalformedRows(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad date", "series_name,parameter,value\n80 and over,not-a-date,123\n"},
		{"bad value", "series_name,parameter,value\n80 and over,2019-01-07,abc\n"},
		{"negative value", "series_name,parameter,value\n80 and over,2019-01-07,-5\n"},
		{"empty cohort", "series_name,parameter,value\n,2019-01-07,5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeCSV(t, tt.content)); err == nil {
				t.Error("Expected an error for malformed input, got nil")
			}
		})
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	_, err := Load(writeCSV(t, "series_name,parameter,value\n"))
	if !errors.Is(err, ErrNoRecords) {
		t.Fatalf("Expected ErrNoRecords, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Error("Expected an error for a missing file, got nil")
	}
}
