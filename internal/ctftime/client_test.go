package ctftime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const eventJSON = `{
	"title": "Example CTF 2025",
	"description": "A jeopardy CTF.",
	"start": "2025-06-01T12:00:00+00:00",
	"finish": "2025-06-03T12:00:00+00:00",
	"url": "https://example.ctf",
	"ctftime_url": "https://ctftime.org/event/1234/",
	"format": "Jeopardy",
	"weight": 24.5,
	"location": ""
}`

func TestEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/events/1234/" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("request sent without User-Agent")
		}
		w.Write([]byte(eventJSON))
	}))
	defer srv.Close()

	c := New(srv.URL, discardLogger())
	info, err := c.Event(context.Background(), "1234")
	if err != nil {
		t.Fatalf("Event: %v", err)
	}
	if info.Title != "Example CTF 2025" || info.Weight != 24.5 {
		t.Errorf("unexpected event: %+v", info)
	}
	if info.Location != "Online" {
		t.Errorf("empty location should default to Online, got %q", info.Location)
	}
	start, err := info.StartTime()
	if err != nil {
		t.Fatalf("StartTime: %v", err)
	}
	if start.UTC().Hour() != 12 {
		t.Errorf("start = %s", start)
	}
}

func TestEventNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := New(srv.URL, discardLogger())
	_, err := c.Event(context.Background(), "9999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Event(missing) = %v, want ErrNotFound", err)
	}
	var connErr *ConnError
	if errors.As(err, &connErr) {
		t.Fatal("404 was misclassified as a connection error")
	}
}

func TestConnErrorAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// Hijack and drop the connection so the client sees a transport error.
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("server does not support hijacking")
		}
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	defer srv.Close()

	c := New(srv.URL, discardLogger())
	_, err := c.Event(context.Background(), "1234")

	var connErr *ConnError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v, want *ConnError", err)
	}
	if got := calls.Load(); got != defaultAttempts {
		t.Errorf("attempts = %d, want %d", got, defaultAttempts)
	}
}

func TestUpcoming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/events/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[` + eventJSON + `,` + eventJSON + `,` + eventJSON + `]`))
	}))
	defer srv.Close()

	c := New(srv.URL, discardLogger())
	events, err := c.Upcoming(context.Background(), 2)
	if err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want limit-trimmed 2", len(events))
	}
	if events[0].Title != "Example CTF 2025" {
		t.Errorf("events[0] = %+v", events[0])
	}

	// Zero limit means the whole list.
	events, err = c.Upcoming(context.Background(), 0)
	if err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("events = %d, want 3", len(events))
	}
}

const teamPage = `<html><body>
<h2>Planned events</h2>
<table>
  <tr><th>Event</th><th>Date</th></tr>
  <tr><td><a href="/event/1234/">Example CTF 2025</a></td><td>01 June</td></tr>
  <tr><td><a href="/event/5678/">Other CTF</a></td><td>12 July</td></tr>
  <tr><td>no link here</td><td>ignored</td></tr>
</table>
</body></html>`

func TestTeamEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/team/1005" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(teamPage))
	}))
	defer srv.Close()

	c := New(srv.URL, discardLogger())
	entries, err := c.TeamEvents(context.Background(), "1005")
	if err != nil {
		t.Fatalf("TeamEvents: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2: %+v", len(entries), entries)
	}
	if entries[0].EventID != "1234" || entries[0].Name != "Example CTF 2025" || entries[0].Date != "01 June" {
		t.Errorf("entry[0] = %+v", entries[0])
	}
	if entries[1].EventID != "5678" {
		t.Errorf("entry[1] = %+v", entries[1])
	}
}

func TestTeamEventsNoTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>nothing planned</p></body></html>"))
	}))
	defer srv.Close()

	c := New(srv.URL, discardLogger())
	entries, err := c.TeamEvents(context.Background(), "1005")
	if err != nil {
		t.Fatalf("TeamEvents: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %+v, want empty", entries)
	}
}
