package report

import (
	"fmt"
	"strings"
	"time"

	"calreport/internal/apperr"
	"calreport/internal/models"
)

// ExcludeMarker drops any event whose name contains it.
const ExcludeMarker = "EXCLUDE"

// SkipReason says why an event produced no row.
type SkipReason string

const (
	SkipAllDay   SkipReason = "all_day"
	SkipExcluded SkipReason = "excluded"
)

// NormalizeResult holds the surviving rows and the skip counts per reason.
type NormalizeResult struct {
	Rows    []Row
	Skipped map[SkipReason]int
}

// Normalize filters events and maps the survivors to rows, preserving order.
// Calendar and duration are left for Build. A malformed start or end
// timestamp fails the whole batch.
func Normalize(events []models.RawEvent) (NormalizeResult, error) {
	res := NormalizeResult{
		Rows:    make([]Row, 0, len(events)),
		Skipped: make(map[SkipReason]int),
	}

	for _, ev := range events {
		if !ev.Start.IsTimed() || !ev.End.IsTimed() {
			res.Skipped[SkipAllDay]++
			continue
		}
		if strings.Contains(ev.Summary, ExcludeMarker) {
			res.Skipped[SkipExcluded]++
			continue
		}

		start, err := parseTimestamp(ev.ID, "start", ev.Start.DateTime)
		if err != nil {
			return NormalizeResult{}, err
		}
		end, err := parseTimestamp(ev.ID, "end", ev.End.DateTime)
		if err != nil {
			return NormalizeResult{}, err
		}

		res.Rows = append(res.Rows, Row{
			EventID:      ev.ID,
			EventName:    ev.Summary,
			CreatorName:  orUnknown(ev.Creator.DisplayName),
			CreatorEmail: orUnknown(ev.Creator.Email),
			StartTime:    start,
			EndTime:      end,
			CreatedAt:    ev.Created,
			UpdatedAt:    ev.Updated,
		})
	}

	return res, nil
}

func orUnknown(s *string) string {
	if s == nil {
		return Unknown
	}
	return *s
}

func parseTimestamp(eventID, field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: event %q has malformed %s time %q: %w", apperr.ErrDataFormat, eventID, field, value, err)
	}
	return t, nil
}
