package report

import (
	"sort"
	"time"
)

// Build stamps calendar on every row, computes duration_hr and, when
// aggregate is set, folds rows into one record per creator email.
// rows is not modified.
func Build(rows []Row, calendar string, aggregate bool) Table {
	out := make([]Row, len(rows))
	for i, r := range rows {
		r.Calendar = calendar
		r.DurationHours = hours(r.EndTime.Sub(r.StartTime))
		out[i] = r
	}

	if !aggregate {
		return Table{Rows: out}
	}
	return Table{Aggregated: true, Creators: aggregateByCreator(out)}
}

// hours converts d without rounding. Negative durations pass through.
func hours(d time.Duration) float64 {
	return d.Seconds() / 3600.0
}

// aggregateByCreator keeps the first calendar and creator name seen for each
// email and sums the hours. Output is ordered by creator email.
func aggregateByCreator(rows []Row) []AggregatedRow {
	index := make(map[string]int)
	groups := make([]AggregatedRow, 0)

	for _, r := range rows {
		i, ok := index[r.CreatorEmail]
		if !ok {
			index[r.CreatorEmail] = len(groups)
			groups = append(groups, AggregatedRow{
				Calendar:     r.Calendar,
				CreatorName:  r.CreatorName,
				CreatorEmail: r.CreatorEmail,
			})
			i = len(groups) - 1
		}
		groups[i].DurationHours += r.DurationHours
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].CreatorEmail < groups[b].CreatorEmail
	})
	return groups
}
