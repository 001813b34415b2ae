package google

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"calreport/internal/apperr"
	"calreport/internal/models"
	"calreport/internal/window"
)

const defaultRedirectURL = "http://localhost"

// CalendarClient provides a client for interacting with the Google Calendar API.
type CalendarClient struct {
	service *calendar.Service
	logger  *slog.Logger
}

// NewClient creates a Google Calendar client on top of an authenticated HTTP client.
func NewClient(ctx context.Context, logger *slog.Logger, httpClient *http.Client, opts ...option.ClientOption) (*CalendarClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &CalendarClient{service: service, logger: logger}, nil
}

// ListEvents fetches the events of calendarID within w in a single request.
// Recurring events are expanded into instances and ordered by start time.
// Only the first page of results is returned.
func (c *CalendarClient) ListEvents(ctx context.Context, calendarID string, w window.Window) ([]models.RawEvent, error) {
	timeMin, timeMax := w.Query()
	c.logger.Debug("Fetching events", "calendarID", calendarID, "timeMin", timeMin, "timeMax", timeMax)

	events, err := c.service.Events.List(calendarID).
		TimeMin(timeMin).
		TimeMax(timeMax).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyError(err, "failed to retrieve events")
	}

	if events.NextPageToken != "" {
		c.logger.Warn("More events are available than one page holds; the report is truncated.", "calendarID", calendarID, "count", len(events.Items))
	}
	c.logger.Info("Successfully fetched events from Google Calendar", "count", len(events.Items), "calendarID", calendarID)
	return toRawEvents(events.Items), nil
}

// toRawEvents converts Google Calendar events to the internal RawEvent model.
// The typed API drops empty strings, so an empty creator field counts as absent.
func toRawEvents(items []*calendar.Event) []models.RawEvent {
	out := make([]models.RawEvent, 0, len(items))
	for _, item := range items {
		ev := models.RawEvent{
			ID:      item.Id,
			Summary: item.Summary,
			Start:   toEventTime(item.Start),
			End:     toEventTime(item.End),
			Created: item.Created,
			Updated: item.Updated,
		}
		if item.Creator != nil {
			ev.Creator = models.Creator{
				DisplayName: nonEmpty(item.Creator.DisplayName),
				Email:       nonEmpty(item.Creator.Email),
			}
		}
		out = append(out, ev)
	}
	return out
}

func toEventTime(t *calendar.EventDateTime) models.EventTime {
	if t == nil {
		return models.EventTime{}
	}
	return models.EventTime{DateTime: t.DateTime, Date: t.Date}
}

// nonEmpty maps "" to nil. The generated client cannot tell a field sent as ""
// from one that was omitted, so Google creators never carry an empty name.
func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CalendarInfo describes a calendar the account can read.
type CalendarInfo struct {
	ID         string
	Summary    string
	AccessRole string
}

// DiscoverCalendars lists the calendars associated with the authenticated account.
func (c *CalendarClient) DiscoverCalendars(ctx context.Context) ([]CalendarInfo, error) {
	list, err := c.service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, classifyError(err, "failed to list calendars")
	}

	var out []CalendarInfo
	for _, item := range list.Items {
		out = append(out, CalendarInfo{ID: item.Id, Summary: item.Summary, AccessRole: item.AccessRole})
	}
	return out, nil
}

// classifyError tags API errors: a failed token refresh inside the transport
// is an authentication failure, anything else a network failure.
func classifyError(err error, msg string) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return apperr.Wrap(apperr.ErrAuthentication, err, msg)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return apperr.Wrap(apperr.ErrNetwork, err, fmt.Sprintf("%s (HTTP %d)", msg, gerr.Code))
	}
	return apperr.Wrap(apperr.ErrNetwork, err, msg)
}

// OAuthConfig builds the OAuth2 client configuration. Explicit client
// credentials win over the client secret file.
func OAuthConfig(clientID, clientSecret, secretFile string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  defaultRedirectURL,
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(secretFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: client secret file %s not found; provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET or set client_secret_file", apperr.ErrAuthentication, secretFile)
		}
		return nil, apperr.Wrap(apperr.ErrAuthentication, err, "unable to read client secret file")
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrAuthentication, err, "unable to parse client secret file to config")
	}
	if config.RedirectURL == "" {
		config.RedirectURL = defaultRedirectURL
	}
	return config, nil
}
