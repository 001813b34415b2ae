// Package pipeline runs one report: fetch, normalize, build and write.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"calreport/internal/config"
	"calreport/internal/metrics"
	"calreport/internal/models"
	"calreport/internal/report"
	"calreport/internal/window"
)

// EventLister fetches the events of a calendar alias.
type EventLister interface {
	ListEvents(ctx context.Context, alias string, w window.Window) (config.Calendar, []models.RawEvent, error)
}

// Request describes one report run.
type Request struct {
	Alias      string
	Window     window.Window
	ByUser     bool
	OutputFile string // empty means the default name for the window and alias
}

// Result summarizes a finished run.
type Result struct {
	OutputFile string
	Fetched    int
	Skipped    map[report.SkipReason]int
	Table      report.Table
}

// Summary is the line printed after a successful run.
func (res *Result) Summary() string {
	if res.Table.Aggregated {
		return fmt.Sprintf("Found %d creators (%s hours total) and wrote to file %s",
			res.Table.Len(), report.FormatHours(res.Table.TotalHours()), res.OutputFile)
	}
	return fmt.Sprintf("Found %d events and wrote to file %s", res.Table.Len(), res.OutputFile)
}

// Reporter orchestrates a single report from calendar to CSV file.
type Reporter struct {
	logger  *slog.Logger
	lister  EventLister
	metrics *metrics.Recorder
	now     func() time.Time
}

// NewReporter creates a new Reporter. rec may be nil.
func NewReporter(logger *slog.Logger, lister EventLister, rec *metrics.Recorder) *Reporter {
	if rec == nil {
		rec = metrics.New()
	}
	return &Reporter{
		logger:  logger,
		lister:  lister,
		metrics: rec,
		now:     time.Now,
	}
}

// Run performs the full report cycle. Nothing is written unless every step succeeds.
func (r *Reporter) Run(ctx context.Context, req Request) (*Result, error) {
	r.logger.Info("Starting report.", "calendar", req.Alias, "window", req.Window.Label(), "byUser", req.ByUser)

	_, events, err := r.lister.ListEvents(ctx, req.Alias, req.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	r.metrics.Fetched(len(events))
	if len(events) == 0 {
		r.logger.Info("No events found in specified date range.", "calendar", req.Alias)
	}

	normalized, err := report.Normalize(events)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize events: %w", err)
	}
	for _, reason := range sortedReasons(normalized.Skipped) {
		n := normalized.Skipped[reason]
		r.metrics.Skipped(string(reason), n)
		r.logger.Debug("Skipped events", "reason", reason, "count", n)
	}

	table := report.Build(normalized.Rows, req.Alias, req.ByUser)

	outputFile := req.OutputFile
	if outputFile == "" {
		outputFile = req.Window.DefaultOutputFile(req.Alias)
	}
	if err := report.WriteCSV(table, outputFile); err != nil {
		return nil, err
	}
	r.logger.Info("Report written.", "file", outputFile, "rows", table.Len())

	r.record(table)
	return &Result{
		OutputFile: outputFile,
		Fetched:    len(events),
		Skipped:    normalized.Skipped,
		Table:      table,
	}, nil
}

func (r *Reporter) record(table report.Table) {
	r.metrics.Rows(table.Len())
	if table.Aggregated {
		for _, c := range table.Creators {
			r.metrics.CreatorHours(c.CreatorEmail, c.DurationHours)
		}
	} else {
		for _, row := range table.Rows {
			r.metrics.CreatorHours(row.CreatorEmail, row.DurationHours)
		}
	}
	r.metrics.Finished(r.now())
}

func sortedReasons(m map[report.SkipReason]int) []report.SkipReason {
	out := make([]report.SkipReason, 0, len(m))
	for reason := range m {
		out = append(out, reason)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
