// Package report normalizes calendar events and renders them as CSV reports.
package report

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Unknown replaces creator fields the source did not provide.
const Unknown = "unknown"

// TimeLayout is how start_time and end_time are rendered. Fractional seconds
// are printed only when present.
const TimeLayout = "2006-01-02 15:04:05.999999-07:00"

var (
	eventHeader = []string{
		"calendar", "event_id", "event_name", "creator_name", "creator_email",
		"start_time", "end_time", "created_at", "updated_at", "duration_hr",
	}
	aggregatedHeader = []string{"calendar", "creator_name", "creator_email", "duration_hr"}
)

// Row is one reported event.
type Row struct {
	Calendar      string
	EventID       string
	EventName     string
	CreatorName   string
	CreatorEmail  string
	StartTime     time.Time
	EndTime       time.Time
	CreatedAt     string
	UpdatedAt     string
	DurationHours float64
}

// AggregatedRow is the total time of one creator.
type AggregatedRow struct {
	Calendar      string
	CreatorName   string
	CreatorEmail  string
	DurationHours float64
}

// Table is a finished report: per-event rows, or per-creator rows when Aggregated is set.
type Table struct {
	Aggregated bool
	Rows       []Row
	Creators   []AggregatedRow
}

// Len returns the number of records in the table.
func (t Table) Len() int {
	if t.Aggregated {
		return len(t.Creators)
	}
	return len(t.Rows)
}

// TotalHours sums duration_hr over every record.
func (t Table) TotalHours() float64 {
	var total float64
	if t.Aggregated {
		for _, c := range t.Creators {
			total += c.DurationHours
		}
		return total
	}
	for _, r := range t.Rows {
		total += r.DurationHours
	}
	return total
}

// Header returns the column names in output order.
func (t Table) Header() []string {
	if t.Aggregated {
		return append([]string(nil), aggregatedHeader...)
	}
	return append([]string(nil), eventHeader...)
}

// Records renders every record as strings in Header order.
func (t Table) Records() [][]string {
	out := make([][]string, 0, t.Len())
	if t.Aggregated {
		for _, c := range t.Creators {
			out = append(out, []string{c.Calendar, c.CreatorName, c.CreatorEmail, FormatHours(c.DurationHours)})
		}
		return out
	}
	for _, r := range t.Rows {
		out = append(out, []string{
			r.Calendar,
			r.EventID,
			r.EventName,
			r.CreatorName,
			r.CreatorEmail,
			r.StartTime.Format(TimeLayout),
			r.EndTime.Format(TimeLayout),
			r.CreatedAt,
			r.UpdatedAt,
			FormatHours(r.DurationHours),
		})
	}
	return out
}

// FormatHours prints the shortest decimal that round-trips, keeping a
// trailing ".0" on integral values.
func FormatHours(h float64) string {
	format := byte('f')
	if abs := math.Abs(h); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		format = 'g'
	}
	s := strconv.FormatFloat(h, format, -1, 64)
	if strings.ContainsAny(s, ".eIN") {
		return s
	}
	return s + ".0"
}
