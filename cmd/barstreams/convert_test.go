package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/barstreams/bars"
)

const csvHeader = "Timestamp,Open,High,Low,Close,Volume_(BTC),Volume_(Currency),Weighted_Price\n"

const goodCSV = csvHeader +
	"1325317920,4.39,4.39,4.39,4.39,0.45558087,2.0000000193,4.39\n" +
	"1325317980,NaN,NaN,NaN,NaN,NaN,NaN,NaN\n" +
	"1325318040,4.39,4.39,4.39,4.39,0.455581,2,4.39\n"

const badCSV = csvHeader +
	"1325317920,4.39,4.39,4.39,4.39,0.45558087,2.0000000193,4.39\n" +
	"1325318040,not-a-number,4.39,4.39,4.39,0.455581,2,4.39\n"

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func convertConfig(input, out string) *CLIConfig {
	return &CLIConfig{
		Command:         commandConvert,
		Input:           input,
		OutDir:          out,
		Output:          "ALL",
		TimeZone:        "UTC",
		Workers:         2,
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 10 * time.Second,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunConvert_SingleFile(t *testing.T) {
	in := writeInput(t, t.TempDir(), "btc.csv", goodCSV)
	out := t.TempDir()

	summary, err := runConvert(context.Background(), convertConfig(in, out), discardLogger())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Batches)
	assert.Empty(t, summary.Failed)
	assert.Equal(t, 3, summary.Counters[bars.CounterRecordsRead])
	assert.Equal(t, 2, summary.Counters[bars.CounterJSONRecords])
	assert.Equal(t, 2, summary.Counters[bars.CounterXMLRecords])

	for _, name := range []string{"btc1.json", "btc2.json", "btc1.xml", "btc2.xml"} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	data, err := os.ReadFile(filepath.Join(out, "btc1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "4.39")
}

func TestRunConvert_JSONOnly(t *testing.T) {
	in := writeInput(t, t.TempDir(), "btc.csv", goodCSV)
	out := t.TempDir()
	cfg := convertConfig(in, out)
	cfg.Output = "json"

	summary, err := runConvert(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Counters[bars.CounterJSONRecords])
	assert.Zero(t, summary.Counters[bars.CounterXMLRecords])
	assert.NoFileExists(t, filepath.Join(out, "btc1.xml"))
}

func TestRunConvert_DirectoryWithFailure(t *testing.T) {
	inDir := t.TempDir()
	writeInput(t, inDir, "btc.csv", goodCSV)
	writeInput(t, inDir, "bad.CSV", badCSV)
	writeInput(t, inDir, "notes.txt", "not a batch")
	out := t.TempDir()

	summary, err := runConvert(context.Background(), convertConfig(inDir, out), discardLogger())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Batches)
	assert.Equal(t, []string{"bad.CSV"}, summary.Failed)
	assert.Equal(t, 5, summary.Counters[bars.CounterRecordsRead])
	assert.Equal(t, 2, summary.Counters[bars.CounterJSONRecords])

	copied, err := os.ReadFile(filepath.Join(out, failureDir, "bad.CSV"))
	require.NoError(t, err)
	assert.Equal(t, badCSV, string(copied), "failed batches are copied unmodified")
	assert.NoFileExists(t, filepath.Join(out, "bad1.json"))
}

func TestRunConvert_SkipsEmptyBatch(t *testing.T) {
	in := writeInput(t, t.TempDir(), "empty.csv", "")
	summary, err := runConvert(context.Background(), convertConfig(in, t.TempDir()), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, summary.Failed)
}

func TestRunConvert_ExistingArtifacts(t *testing.T) {
	in := writeInput(t, t.TempDir(), "btc.csv", goodCSV)
	out := t.TempDir()
	writeInput(t, out, "btc1.json", "{}")

	summary, err := runConvert(context.Background(), convertConfig(in, out), discardLogger())
	require.NoError(t, err)
	assert.Zero(t, summary.Counters[bars.CounterJSONRecords], "undelivered artifacts keep their sequence number")
	assert.Equal(t, 2, summary.Counters[bars.CounterXMLRecords])
	data, err := os.ReadFile(filepath.Join(out, "btc1.json"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	cfg := convertConfig(in, out)
	cfg.Overwrite = true
	cfg.Output = "JSON"
	summary, err = runConvert(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Counters[bars.CounterJSONRecords])
}

func TestCollectInputs(t *testing.T) {
	dir := t.TempDir()
	_, err := collectInputs(dir)
	assert.ErrorContains(t, err, "no .csv files")

	b := writeInput(t, dir, "b.csv", goodCSV)
	a := writeInput(t, dir, "a.csv", goodCSV)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755))

	inputs, err := collectInputs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, inputs)

	inputs, err = collectInputs(a)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, inputs)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, convertSummary{
		Batches: 2,
		Failed:  []string{"bad.csv"},
		Counters: map[string]int{
			bars.CounterRecordsRead: 5,
			bars.CounterJSONRecords: 2,
		},
	})
	assert.Equal(t, "batches: 2\n"+
		"CSV records read: 5\n"+
		"JSON records created: 2\n"+
		"XML records created: 0\n"+
		"failed: 1\n"+
		"  failure/bad.csv\n", buf.String())
}
