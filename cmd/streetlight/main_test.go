package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"streetlight_monitor/internal/ingest"
)

// writeExport writes a full Viinikka operating day of 10 W at minute 10 of
// every hour.
func writeExport(t *testing.T) string {
	t.Helper()
	var rows [][4]string
	start := time.Date(2019, time.July, 9, 21, 10, 0, 0, time.UTC)
	for i := range 24 {
		ts := start.Add(time.Duration(i) * time.Hour)
		rows = append(rows, [4]string{"KV-0125-C01", "activePower", "10", ts.Format("2006-01-02T15:04:05.000")})
	}

	path := filepath.Join(t.TempDir(), "export.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, ingest.WriteCSV(f, rows))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AREAS_FILE", "")
	t.Setenv("QUANTUMLEAP_ADDRESS", "")

	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"streetlight"}, args...))
	return out.String(), err
}

func TestReconcileFromExport(t *testing.T) {
	input := writeExport(t)

	out, err := run(t, "reconcile", "--service", "viinikka", "--entity", "KV-0125-C01", "--date", "2019-07-10", "--input", input)
	require.NoError(t, err)

	var day struct {
		Date    string                    `json:"date"`
		Buckets map[string]map[string]any `json:"buckets"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &day))
	assert.Equal(t, "2019-07-10", day.Date)
	assert.Len(t, day.Buckets, 24)
	assert.Contains(t, day.Buckets["05:00:00"], "activePower")
}

func TestEnergyFromExport(t *testing.T) {
	input := writeExport(t)

	out, err := run(t, "energy", "--service", "viinikka", "--entity", "KV-0125-C01", "--date", "2019-07-10", "--input", input)
	require.NoError(t, err)
	assert.Equal(t, "KV-0125-C01 2019-07-10: 240 Wh (0.0 estimated hours)\n", out)
}

func TestReportWorkbook(t *testing.T) {
	input := writeExport(t)
	path := filepath.Join(t.TempDir(), "report.xlsx")

	out, err := run(t, "report", "--area", "viinikka", "--entity", "KV-0125-C01", "--date", "2019-07-10", "--input", input, "--xlsx", path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("wrote 1 reports to %s\n", path), out)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, "Entity", summary[0][0])
	assert.Equal(t, "KV-0125-C01", summary[1][0])
	assert.Equal(t, "240 Wh", summary[1][3])
	assert.Equal(t, "Total", summary[2][0])

	buckets, err := f.GetRows(bucketSheet)
	require.NoError(t, err)
	assert.Len(t, buckets, 25)
}

func TestCommandErrors(t *testing.T) {
	input := writeExport(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown service", []string{"energy", "--service", "helsinki", "--entity", "KV-1", "--date", "2019-07-10", "--input", input}, "unknown service"},
		{"bad date", []string{"energy", "--service", "viinikka", "--entity", "KV-1", "--date", "someday", "--input", input}, "parsing date"},
		{"unknown area", []string{"report", "--area", "nowhere", "--entity", "KV-1", "--date", "2019-07-10", "--input", input}, "not found"},
		{"empty area", []string{"report", "--area", "viinikka", "--date", "2019-07-10", "--input", input}, "no entities"},
		{"no provider", []string{"energy", "--service", "viinikka", "--entity", "KV-1", "--date", "2019-07-10"}, "QUANTUMLEAP_ADDRESS"},
		{"migrate without database", []string{"migrate"}, "DATABASE_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, strings.ToLower(err.Error()), strings.ToLower(tt.want))
		})
	}
}
