package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"schedai/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *CalendarClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := calendar.NewService(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("calendar.NewService: %v", err)
	}
	return NewClientFromService(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), "")
}

func TestCreateEventSendsPayload(t *testing.T) {
	t.Parallel()

	var got calendar.Event
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		resp := got
		resp.Id = "abc123"
		resp.HtmlLink = "https://calendar.example/abc123"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	in := models.CalendarEvent{
		Summary:     "Write report",
		Description: "from backlog",
		Location:    "Office",
		Start:       models.EventTime{DateTime: "2025-08-07T09:00:00+07:00", TimeZone: "Asia/Jakarta"},
		End:         models.EventTime{DateTime: "2025-08-07T10:00:00+07:00", TimeZone: "Asia/Jakarta"},
	}
	out, err := c.CreateEvent(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if gotPath != "/calendars/primary/events" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if got.Summary != in.Summary || got.Start.DateTime != in.Start.DateTime || got.End.TimeZone != "Asia/Jakarta" || got.Location != "Office" {
		t.Fatalf("unexpected request payload: %+v", got)
	}
	if out.ID != "abc123" || out.HTMLLink == "" || out.Summary != in.Summary {
		t.Fatalf("unexpected created event: %+v", out)
	}
}

func TestCreateEventMapsAPIError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":{"code":409,"message":"The requested identifier already exists."}}`)
	})

	_, err := c.CreateEvent(context.Background(), models.CalendarEvent{Summary: "x"})
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %T %v", err, err)
	}
	if upErr.Code != http.StatusConflict {
		t.Fatalf("unexpected code %d", upErr.Code)
	}
}

func TestListEventsSkipsAllDay(t *testing.T) {
	t.Parallel()

	var query map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"items":[
			{"id":"1","summary":"Standup","start":{"dateTime":"2025-08-07T09:00:00Z"},"end":{"dateTime":"2025-08-07T09:15:00Z"}},
			{"id":"2","summary":"Holiday","start":{"date":"2025-08-08"},"end":{"date":"2025-08-09"}}
		]}`)
	})

	from := time.Date(2025, 8, 7, 0, 0, 0, 0, time.UTC)
	events, err := c.ListEvents(context.Background(), from, from.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].Summary != "Standup" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if query["timeMin"][0] != "2025-08-07T00:00:00Z" || query["timeMax"][0] != "2025-08-09T00:00:00Z" {
		t.Fatalf("unexpected time window: %v", query)
	}
	if query["singleEvents"][0] != "true" || query["orderBy"][0] != "startTime" {
		t.Fatalf("unexpected list options: %v", query)
	}
}

func TestTokenRoundTripAndAccounts(t *testing.T) {
	dir := t.TempDir()
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"}
	for _, name := range []string{"work", "personal"} {
		if err := SaveToken(filepath.Join(dir, TokenFile(name)), tok); err != nil {
			t.Fatalf("SaveToken: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "credentials.json"), []byte("{}"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, err := tokenFromFile(filepath.Join(dir, TokenFile("work")))
	if err != nil || loaded.RefreshToken != "r" {
		t.Fatalf("tokenFromFile: %+v %v", loaded, err)
	}

	accounts, err := GetTokenAccounts(dir)
	if err != nil {
		t.Fatalf("GetTokenAccounts: %v", err)
	}
	sort.Strings(accounts)
	if len(accounts) != 2 || accounts[0] != "personal" || accounts[1] != "work" {
		t.Fatalf("unexpected accounts: %v", accounts)
	}
}

func TestOAuthConfigFromCredentials(t *testing.T) {
	t.Parallel()

	cfg, err := GetOAuthConfigForAuthFlow("id", "secret")
	if err != nil {
		t.Fatalf("GetOAuthConfigForAuthFlow: %v", err)
	}
	if cfg.ClientID != "id" || len(cfg.Scopes) != 2 || cfg.Scopes[0] != calendar.CalendarEventsScope {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
