// Package caldav reads events from a CalDAV calendar collection.
package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"calreport/internal/apperr"
	"calreport/internal/models"
	"calreport/internal/recur"
	"calreport/internal/window"
)

const userAgent = "calreport/1.0"

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper

	unauthorized bool
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.Username != "" {
		req.SetBasicAuth(t.Username, t.Password)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := t.Transport.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		t.unauthorized = true
	}
	return resp, err
}

// CalDAVClient is a client for reading from a CalDAV server.
type CalDAVClient struct {
	caldavClient *caldav.Client
	transport    *customTransport
	logger       *slog.Logger
}

// NewClient creates a CalDAV client for endpoint. A nil base uses http.DefaultTransport.
func NewClient(logger *slog.Logger, endpoint, username, password string, base http.RoundTripper) (*CalDAVClient, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	transport := &customTransport{
		Username:  username,
		Password:  password,
		Transport: base,
	}
	httpClient := &http.Client{Transport: transport, Timeout: 60 * time.Second}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create caldav client: %w", apperr.ErrInvalidArgument, err)
	}

	return &CalDAVClient{
		caldavClient: caldavClient,
		transport:    transport,
		logger:       logger,
	}, nil
}

// ListEvents returns the event instances of calendar overlapping w. calendar
// is either a collection path (starting with "/") or a calendar display name.
func (c *CalDAVClient) ListEvents(ctx context.Context, calendar string, w window.Window) ([]models.RawEvent, error) {
	calendarPath, err := c.findCalendar(ctx, calendar)
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: w.Start,
				End:   w.End,
			}},
		},
	}

	c.logger.Debug("Querying CalDAV calendar", "path", calendarPath, "start", w.Start, "end", w.End)
	objects, err := c.caldavClient.QueryCalendar(ctx, calendarPath, query)
	if err != nil {
		return nil, c.classify(err, "failed to query calendar")
	}

	var components []*ical.Component
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		components = append(components, obj.Data.Children...)
	}

	events, err := toEvents(c.logger, components)
	if err != nil {
		return nil, err
	}
	raws, err := recur.Expand(events, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Successfully fetched events from CalDAV", "count", len(raws), "path", calendarPath)
	return raws, nil
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func (c *CalDAVClient) findCalendar(ctx context.Context, name string) (string, error) {
	if strings.HasPrefix(name, "/") {
		return name, nil
	}

	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", c.classify(err, "failed to find principal path")
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", c.classify(err, "failed to find calendar home set")
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", c.classify(err, "failed to find calendars")
	}

	var names []string
	for _, cal := range calendars {
		if cal.Name == name {
			c.logger.Debug("Found CalDAV calendar", "name", name, "path", cal.Path)
			return cal.Path, nil
		}
		names = append(names, cal.Name)
	}

	return "", fmt.Errorf("%w: no calendar found with name '%s' (available: %s)", apperr.ErrInvalidArgument, name, strings.Join(names, ", "))
}

func (c *CalDAVClient) classify(err error, msg string) error {
	if c.transport.unauthorized {
		return apperr.Wrap(apperr.ErrAuthentication, err, msg)
	}
	return apperr.Wrap(apperr.ErrNetwork, err, msg)
}

// toEvents converts VEVENT components into expandable events. Components
// that are not VEVENTs are ignored; a VEVENT without UID gets a random one.
func toEvents(logger *slog.Logger, components []*ical.Component) ([]recur.Event, error) {
	var out []recur.Event
	for _, comp := range components {
		if comp.Name != ical.CompEvent {
			continue
		}
		ev, err := toEvent(comp)
		if err != nil {
			return nil, err
		}
		if ev.UID == "" {
			ev.UID = uuid.NewString()
			logger.Warn("CalDAV event has no UID, generating a new one.", "uid", ev.UID, "summary", ev.Summary)
		}
		out = append(out, ev)
	}
	return out, nil
}

func toEvent(comp *ical.Component) (recur.Event, error) {
	var ev recur.Event
	ev.UID = text(comp, ical.PropUID)
	ev.Summary = text(comp, ical.PropSummary)
	if p := comp.Props.Get(ical.PropRecurrenceRule); p != nil {
		ev.RRule = p.Value
	}
	ev.Creator = organizer(comp.Props.Get(ical.PropOrganizer))
	ev.Created = stamp(comp, ical.PropCreated)
	ev.Updated = stamp(comp, ical.PropLastModified)

	dtstart := comp.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return ev, fmt.Errorf("%w: event %q has no DTSTART", apperr.ErrDataFormat, ev.UID)
	}
	ev.AllDay = dtstart.ValueType() == ical.ValueDate || !strings.Contains(dtstart.Value, "T")

	start, err := propTime(dtstart)
	if err != nil {
		return ev, apperr.Wrap(apperr.ErrDataFormat, err, fmt.Sprintf("event %q has invalid DTSTART", ev.UID))
	}
	ev.Start = start

	var end time.Time
	if dtend := comp.Props.Get(ical.PropDateTimeEnd); dtend != nil {
		end, err = propTime(dtend)
	} else {
		vevent := ical.Event{Component: comp}
		end, err = vevent.DateTimeEnd(time.UTC)
	}
	switch {
	case err == nil && !end.IsZero():
		ev.End = end
	case ev.AllDay:
		ev.End = start.AddDate(0, 0, 1)
	default:
		ev.End = start
	}

	for _, p := range comp.Props.Values(ical.PropExceptionDates) {
		for _, part := range strings.Split(p.Value, ",") {
			single := p
			single.Value = strings.TrimSpace(part)
			if t, err := propTime(&single); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}

	if rid := comp.Props.Get(ical.PropRecurrenceID); rid != nil {
		t, err := propTime(rid)
		if err != nil {
			return ev, apperr.Wrap(apperr.ErrDataFormat, err, fmt.Sprintf("event %q has invalid RECURRENCE-ID", ev.UID))
		}
		ev.RecurrenceID = &t
	}
	return ev, nil
}

// propTime reads a DATE or DATE-TIME property. Dates sent without VALUE=DATE
// are accepted as well.
func propTime(p *ical.Prop) (time.Time, error) {
	t, err := p.DateTime(time.UTC)
	if err != nil && !strings.Contains(p.Value, "T") {
		return time.Parse("20060102", p.Value)
	}
	return t, err
}

func text(comp *ical.Component, name string) string {
	p := comp.Props.Get(name)
	if p == nil {
		return ""
	}
	if v, err := p.Text(); err == nil {
		return v
	}
	return p.Value
}

// organizer maps ORGANIZER to a creator, keeping an absent CN apart from an empty one.
func organizer(p *ical.Prop) models.Creator {
	if p == nil {
		return models.Creator{}
	}
	var c models.Creator
	if v := strings.TrimSpace(p.Value); v != "" {
		if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
			v = v[7:]
		}
		c.Email = models.StringPtr(v)
	}
	if cn, ok := p.Params[ical.ParamCommonName]; ok {
		name := ""
		if len(cn) > 0 {
			name = cn[0]
		}
		c.DisplayName = &name
	}
	return c
}

func stamp(comp *ical.Component, name string) string {
	p := comp.Props.Get(name)
	if p == nil {
		return ""
	}
	t, err := p.DateTime(time.UTC)
	if err != nil {
		return p.Value
	}
	return t.Format(time.RFC3339)
}
