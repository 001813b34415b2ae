// Package ics reads events from an iCalendar subscription feed.
package ics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"calreport/internal/apperr"
	"calreport/internal/models"
	"calreport/internal/recur"
	"calreport/internal/window"
)

// FeedClient fetches a single .ics feed over HTTP.
type FeedClient struct {
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a feed client. A nil httpClient uses a client with a 30s timeout.
func NewClient(logger *slog.Logger, httpClient *http.Client) *FeedClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &FeedClient{client: httpClient, logger: logger}
}

// ListEvents downloads the feed at feedURL and returns the event instances
// overlapping w, recurring events expanded and ordered by start time.
func (c *FeedClient) ListEvents(ctx context.Context, feedURL string, w window.Window) ([]models.RawEvent, error) {
	body, err := c.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	events, err := Parse(c.logger, body)
	if err != nil {
		return nil, err
	}

	raws, err := recur.Expand(events, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Successfully fetched events from feed", "count", len(raws), "url", redactURL(feedURL))
	return raws, nil
}

func (c *FeedClient) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid feed url: %w", apperr.ErrInvalidArgument, err)
	}
	req.Header.Set("Accept", "text/calendar")

	c.logger.Debug("Fetching feed", "url", redactURL(feedURL))
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrNetwork, err, "failed to fetch feed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: failed to fetch feed (HTTP %d)", apperr.ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrNetwork, err, "failed to read feed")
	}
	return body, nil
}

// redactURL keeps scheme and host only; feed paths often carry secrets.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
