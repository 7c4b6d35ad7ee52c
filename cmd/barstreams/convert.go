package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/barstreams/bars"
	"github.com/c360/barstreams/output/file"
	"github.com/c360/barstreams/pkg/worker"
)

// failureDir is the subdirectory of -out receiving batches that fail to decode.
const failureDir = "failure"

// convertSummary totals one convert run.
type convertSummary struct {
	Batches  int
	Failed   []string
	Skipped  int
	Counters map[string]int
}

// runConvert converts every input file once, with no NATS involved.
// Artifacts land in cli.OutDir and failing batches are copied unmodified
// into cli.OutDir/failure.
func runConvert(ctx context.Context, cli *CLIConfig, logger *slog.Logger) (convertSummary, error) {
	output, err := bars.ParseOutput(cli.Output)
	if err != nil {
		return convertSummary{}, err
	}
	loc, err := time.LoadLocation(cli.TimeZone)
	if err != nil {
		return convertSummary{}, fmt.Errorf("load time zone: %w", err)
	}

	inputs, err := collectInputs(cli.Input)
	if err != nil {
		return convertSummary{}, err
	}

	artifacts, err := file.NewSink(cli.OutDir, file.WithOverwrite(cli.Overwrite))
	if err != nil {
		return convertSummary{}, fmt.Errorf("artifact directory: %w", err)
	}
	failures, err := file.NewSink(filepath.Join(cli.OutDir, failureDir), file.WithOverwrite(cli.Overwrite))
	if err != nil {
		return convertSummary{}, fmt.Errorf("failure directory: %w", err)
	}

	counters := bars.NewCounters()
	sinks := bars.Sinks{JSON: artifacts, XML: artifacts, Failure: failures, Counters: counters}
	pipeline := bars.NewPipeline(bars.NewCodecs(), logger, bars.WithTimeLocation(loc))
	policy := bars.NewPolicy(output)

	var (
		mu       sync.Mutex
		summary  = convertSummary{Batches: len(inputs)}
		firstErr error
	)

	convert := func(ctx context.Context, path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name := filepath.Base(path)
		batch := bars.Batch{
			ID:         uuid.NewString(),
			Name:       name,
			Data:       data,
			Attributes: map[string]string{bars.AttrFilename: name},
		}

		result, err := pipeline.Process(ctx, batch, policy, sinks)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		switch {
		case result.Skipped:
			summary.Skipped++
		case result.Disposition == bars.DispositionFailed:
			summary.Failed = append(summary.Failed, name)
		}
		logger.Info("Batch converted",
			"filename", name,
			"records_read", result.RecordsRead,
			"json_created", result.JSONCreated,
			"xml_created", result.XMLCreated,
			"disposition", result.Disposition.String(),
			"duration", result.Duration)
		return nil
	}

	pool := worker.NewPool[string](min(cli.Workers, max(len(inputs), 1)), len(inputs)+1, convert,
		worker.WithErrorHandler[string](func(path string, err error) {
			logger.Error("Batch not converted", "filename", filepath.Base(path), "error", err)
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", path, err)
			}
			mu.Unlock()
		}))
	if err := pool.Start(ctx); err != nil {
		return convertSummary{}, err
	}
	for _, path := range inputs {
		if err := pool.SubmitWait(ctx, path); err != nil {
			_ = pool.Stop(cli.ShutdownTimeout)
			return convertSummary{}, err
		}
	}
	if err := pool.Stop(cli.ShutdownTimeout); err != nil {
		return convertSummary{}, fmt.Errorf("drain converters: %w", err)
	}

	summary.Counters = counters.Snapshot()
	slices.Sort(summary.Failed)
	return summary, firstErr
}

// collectInputs returns path itself, or the sorted *.csv files directly
// inside it when path is a directory.
func collectInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var inputs []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			inputs = append(inputs, filepath.Join(path, e.Name()))
		}
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no .csv files in %s", path)
	}
	return inputs, nil
}

// printSummary writes the counters in a stable order, then the failures.
func printSummary(w io.Writer, s convertSummary) {
	_, _ = fmt.Fprintf(w, "batches: %d\n", s.Batches)
	for _, name := range []string{bars.CounterRecordsRead, bars.CounterJSONRecords, bars.CounterXMLRecords} {
		_, _ = fmt.Fprintf(w, "%s: %d\n", name, s.Counters[name])
	}
	if s.Skipped > 0 {
		_, _ = fmt.Fprintf(w, "skipped: %d\n", s.Skipped)
	}
	_, _ = fmt.Fprintf(w, "failed: %d\n", len(s.Failed))
	for _, name := range s.Failed {
		_, _ = fmt.Fprintf(w, "  %s/%s\n", failureDir, name)
	}
}
