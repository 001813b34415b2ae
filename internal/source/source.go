// Package source resolves calendar aliases and fetches their events through
// the backend configured for each alias.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"calreport/internal/apperr"
	"calreport/internal/config"
	"calreport/internal/models"
	"calreport/internal/window"
)

// Source lists the events of one calendar within a window.
type Source interface {
	ListEvents(ctx context.Context, calendarID string, w window.Window) ([]models.RawEvent, error)
}

// Constructor creates the backend for one configured calendar.
type Constructor func(ctx context.Context, cal config.Calendar) (Source, error)

// Factory maps a calendar type to its backend constructor.
type Factory map[string]Constructor

// Client is the calendar client the report pipeline talks to.
type Client struct {
	logger    *slog.Logger
	calendars map[string]config.Calendar
	factory   Factory
}

// NewClient creates a Client over the configured alias table.
func NewClient(logger *slog.Logger, calendars map[string]config.Calendar, factory Factory) *Client {
	return &Client{logger: logger, calendars: calendars, factory: factory}
}

// Resolve maps an alias to its calendar entry.
func (c *Client) Resolve(alias string) (config.Calendar, error) {
	cal, ok := c.calendars[alias]
	if !ok {
		return config.Calendar{}, fmt.Errorf("%w: unknown calendar %q (known: %s)", apperr.ErrInvalidArgument, alias, strings.Join(c.aliases(), ", "))
	}
	return cal, nil
}

// ListEvents resolves alias and fetches its events in w with a single backend call.
func (c *Client) ListEvents(ctx context.Context, alias string, w window.Window) (config.Calendar, []models.RawEvent, error) {
	cal, err := c.Resolve(alias)
	if err != nil {
		return cal, nil, err
	}

	newSource, ok := c.factory[cal.Type]
	if !ok {
		return cal, nil, fmt.Errorf("%w: calendar %q has unsupported type %q", apperr.ErrInvalidArgument, alias, cal.Type)
	}
	src, err := newSource(ctx, cal)
	if err != nil {
		return cal, nil, err
	}

	c.logger.Debug("Resolved calendar", "alias", alias, "type", cal.Type, "target", Target(cal))
	events, err := src.ListEvents(ctx, Target(cal), w)
	if err != nil {
		return cal, nil, fmt.Errorf("calendar %q: %w", alias, err)
	}
	return cal, events, nil
}

// Target is the identifier a backend expects for cal: the Google calendar
// id, the CalDAV calendar name or path, or the ICS feed URL.
func Target(cal config.Calendar) string {
	switch cal.Type {
	case config.TypeCalDAV:
		return cal.Calendar
	case config.TypeICS:
		return cal.URL
	default:
		return cal.ID
	}
}

func (c *Client) aliases() []string {
	out := make([]string, 0, len(c.calendars))
	for alias := range c.calendars {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}
