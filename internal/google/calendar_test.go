package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"calreport/internal/apperr"
	"calreport/internal/window"
)

const eventsJSON = `{
  "kind": "calendar#events",
  "items": [
    {
      "id": "e1",
      "summary": "Sync",
      "creator": {"displayName": "Alice", "email": "a@x.com"},
      "start": {"dateTime": "2024-03-01T10:00:00Z"},
      "end": {"dateTime": "2024-03-01T11:00:00Z"},
      "created": "2024-02-01T00:00:00.000Z",
      "updated": "2024-02-01T00:00:00.000Z"
    },
    {
      "id": "e3",
      "summary": "Review",
      "creator": {"email": "b@x.com"},
      "start": {"date": "2024-03-02"},
      "end": {"date": "2024-03-03"}
    },
    {
      "id": "e4",
      "summary": "No creator",
      "start": {"dateTime": "2024-03-04T10:00:00+01:00"},
      "end": {"dateTime": "2024-03-04T10:30:00+01:00"}
    }
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *CalendarClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := NewClient(context.Background(), logger, srv.Client(), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestListEvents(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, eventsJSON)
	})

	win, err := window.Parse("2024-03-01", "2024-03-31", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	events, err := c.ListEvents(context.Background(), "lab@group.calendar.google.com", win)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}

	if !strings.HasSuffix(gotPath, "/calendars/lab@group.calendar.google.com/events") {
		t.Errorf("path = %s", gotPath)
	}
	want := map[string]string{
		"timeMin":      "2024-03-01T00:00:00Z",
		"timeMax":      "2024-03-31T00:00:00Z",
		"singleEvents": "true",
		"orderBy":      "startTime",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
	if _, ok := gotQuery["pageToken"]; ok {
		t.Error("pageToken should not be sent")
	}

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	e1 := events[0]
	if e1.ID != "e1" || e1.Start.DateTime != "2024-03-01T10:00:00Z" || e1.Created != "2024-02-01T00:00:00.000Z" {
		t.Errorf("e1 = %+v", e1)
	}
	if e1.Creator.DisplayName == nil || *e1.Creator.DisplayName != "Alice" || *e1.Creator.Email != "a@x.com" {
		t.Errorf("e1 creator = %+v", e1.Creator)
	}

	e3 := events[1]
	if e3.Start.IsTimed() || e3.Start.Date != "2024-03-02" {
		t.Errorf("e3 start = %+v, want all-day", e3.Start)
	}
	if e3.Creator.DisplayName != nil {
		t.Errorf("e3 display name = %q, want absent", *e3.Creator.DisplayName)
	}

	if e4 := events[2]; e4.Creator.DisplayName != nil || e4.Creator.Email != nil {
		t.Errorf("e4 creator = %+v, want absent", e4.Creator)
	}
}

func TestToRawEventsEmptyCreator(t *testing.T) {
	events := toRawEvents([]*calendar.Event{{
		Id:      "e1",
		Creator: &calendar.EventCreator{DisplayName: "", Email: "a@x.com"},
	}})
	if got := events[0].Creator; got.DisplayName != nil || got.Email == nil || *got.Email != "a@x.com" {
		t.Errorf("creator = %+v, want absent name and email a@x.com", got)
	}
}

func TestListEventsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"kind":"calendar#events","items":[]}`)
	})
	win, _ := window.Parse("2024-03-01", "2024-03-02", time.Now())
	events, err := c.ListEvents(context.Background(), "primary", win)
	if err != nil || len(events) != 0 {
		t.Errorf("ListEvents() = %v, %v; want no events and no error", events, err)
	}
}

func TestListEventsServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":404,"message":"Not Found"}}`)
	})
	win, _ := window.Parse("2024-03-01", "2024-03-02", time.Now())
	_, err := c.ListEvents(context.Background(), "missing", win)
	if !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("ListEvents() error = %v, want ErrNetwork", err)
	}
	if !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("error %q does not mention the status", err)
	}
}

func TestDiscoverCalendars(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/me/calendarList") {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"id":"primary@x.com","summary":"Me","accessRole":"owner"}]}`)
	})
	cals, err := c.DiscoverCalendars(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(cals) != 1 || cals[0].ID != "primary@x.com" || cals[0].AccessRole != "owner" {
		t.Errorf("DiscoverCalendars() = %+v", cals)
	}
}

func TestOAuthConfig(t *testing.T) {
	cfg, err := OAuthConfig("id", "secret", "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ClientID != "id" || cfg.RedirectURL != defaultRedirectURL {
		t.Errorf("config = %+v", cfg)
	}

	dir := t.TempDir()
	secret := filepath.Join(dir, "client_secret.json")
	content := `{"installed":{"client_id":"file-id","client_secret":"file-secret","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`
	if err := os.WriteFile(secret, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err = OAuthConfig("", "", secret)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ClientID != "file-id" || len(cfg.Scopes) != 1 {
		t.Errorf("config = %+v", cfg)
	}

	if _, err := OAuthConfig("", "", filepath.Join(dir, "missing.json")); !errors.Is(err, apperr.ErrAuthentication) {
		t.Errorf("missing file error = %v, want ErrAuthentication", err)
	}
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{}"), 0o600)
	if _, err := OAuthConfig("", "", bad); !errors.Is(err, apperr.ErrAuthentication) {
		t.Errorf("bad file error = %v, want ErrAuthentication", err)
	}
}
