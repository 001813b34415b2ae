// Package window turns the command line date arguments into a query range.
package window

import (
	"fmt"
	"strings"
	"time"

	"calreport/internal/apperr"
)

// DateLayout is the format dates are printed in.
const DateLayout = "2006-01-02"

// inputLayout also accepts single-digit months and days, e.g. 2024-3-1.
const inputLayout = "2006-1-2"

// queryLayout mirrors a naive ISO-8601 timestamp. Fractional seconds are only
// printed when present; the UTC designator is appended by Query.
const queryLayout = "2006-01-02T15:04:05.999999"

// Window is the [Start, End] range a report covers. End is not checked against Start.
type Window struct {
	Start time.Time
	End   time.Time
}

// Parse validates start and end. An empty end means now.
func Parse(start, end string, now time.Time) (Window, error) {
	if strings.TrimSpace(start) == "" {
		return Window{}, fmt.Errorf("%w: start date is required (format YYYY-MM-DD)", apperr.ErrInvalidArgument)
	}

	s, err := parseDate(start)
	if err != nil {
		return Window{}, err
	}

	var e time.Time
	if end == "" {
		e = now.UTC()
	} else {
		e, err = parseDate(end)
		if err != nil {
			return Window{}, err
		}
	}

	return Window{Start: s, End: e}, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(inputLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: Not a valid date: '%s'.", apperr.ErrInvalidArgument, s)
	}
	return t, nil
}

// Query returns the range bounds as ISO-8601 instants with a trailing Z.
func (w Window) Query() (timeMin, timeMax string) {
	return w.Start.UTC().Format(queryLayout) + "Z", w.End.UTC().Format(queryLayout) + "Z"
}

// Label names the window for file names, e.g. from_2024-03-01_to_2024-03-31.
func (w Window) Label() string {
	return fmt.Sprintf("from_%s_to_%s", w.Start.Format(DateLayout), w.End.Format(DateLayout))
}

// DefaultOutputFile is the report file name used when none is given.
func (w Window) DefaultOutputFile(calendar string) string {
	return fmt.Sprintf("%s_%s.csv", w.Label(), calendar)
}
