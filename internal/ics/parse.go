package ics

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"calreport/internal/apperr"
	"calreport/internal/models"
	"calreport/internal/recur"
)

const propRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")

// Parse decodes an iCalendar payload into VEVENTs ready for expansion.
// A VEVENT without a usable DTSTART is logged and skipped.
func Parse(logger *slog.Logger, body []byte) ([]recur.Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty calendar feed", apperr.ErrDataFormat)
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDataFormat, err, "failed to parse calendar feed")
	}

	var out []recur.Event
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			logger.Warn("Skipping unreadable event", "uid", ev.UID, "error", err)
			continue
		}
		if ev.UID == "" {
			ev.UID = uuid.NewString()
			logger.Debug("Event has no UID, generated one", "uid", ev.UID, "summary", ev.Summary)
		}
		out = append(out, ev)
	}
	return out, nil
}

func parseVEvent(ve *ical.VEvent) (recur.Event, error) {
	var ev recur.Event
	ev.UID = propValue(ve, ical.ComponentPropertyUniqueId)
	ev.Summary = propValue(ve, ical.ComponentPropertySummary)
	ev.Creator = organizer(ve.GetProperty(ical.ComponentPropertyOrganizer))
	ev.Created = stamp(propValue(ve, ical.ComponentPropertyCreated))
	ev.Updated = stamp(propValue(ve, ical.ComponentPropertyLastModified))
	ev.RRule = propValue(ve, ical.ComponentPropertyRrule)

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return ev, errors.New("missing DTSTART")
	}
	ev.AllDay = isDate(dtstart)

	if ev.AllDay {
		start, err := parseTime(dtstart.Value, "")
		if err != nil {
			return ev, fmt.Errorf("bad DTSTART: %w", err)
		}
		ev.Start = start
		ev.End = start.AddDate(0, 0, 1)
		if dtend := ve.GetProperty(ical.ComponentPropertyDtEnd); dtend != nil {
			if end, err := parseTime(dtend.Value, ""); err == nil {
				ev.End = end
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return ev, fmt.Errorf("bad DTSTART: %w", err)
		}
		ev.Start = start
		ev.End = start
		if end, err := ve.GetEndAt(); err == nil {
			ev.End = end
		}
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseTime(part, param(p.ICalParameters, "TZID")); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(propRecurrenceID); rid != nil {
		t, err := parseTime(rid.Value, param(rid.ICalParameters, "TZID"))
		if err != nil {
			return ev, fmt.Errorf("bad RECURRENCE-ID: %w", err)
		}
		ev.RecurrenceID = &t
	}
	return ev, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

// organizer maps ORGANIZER to a creator. A missing CN parameter leaves the
// name absent; CN="" is an empty name.
func organizer(p *ical.IANAProperty) models.Creator {
	if p == nil {
		return models.Creator{}
	}
	var c models.Creator
	if v := strings.TrimSpace(p.Value); v != "" {
		c.Email = models.StringPtr(trimMailto(v))
	}
	if cn, ok := p.ICalParameters["CN"]; ok {
		name := ""
		if len(cn) > 0 {
			name = cn[0]
		}
		c.DisplayName = &name
	}
	return c
}

func trimMailto(v string) string {
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		return v[7:]
	}
	return v
}

func param(params map[string][]string, key string) string {
	if vs := params[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func isDate(p *ical.IANAProperty) bool {
	if strings.EqualFold(param(p.ICalParameters, "VALUE"), "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parseTime reads DATE and DATE-TIME values. Floating times use tzid when
// given, otherwise UTC. Dates are midnight UTC.
func parseTime(v, tzid string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		loc := time.UTC
		if tzid != "" {
			l, err := time.LoadLocation(tzid)
			if err != nil {
				return time.Time{}, err
			}
			loc = l
		}
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.Parse("20060102", v)
	}
}

// stamp renders CREATED / LAST-MODIFIED as RFC 3339, or verbatim if unparsable.
func stamp(v string) string {
	if v == "" {
		return ""
	}
	t, err := parseTime(v, "")
	if err != nil {
		return v
	}
	return t.Format(time.RFC3339)
}
