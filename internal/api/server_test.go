package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/config"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/event"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/store/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		CORSAllowOrigins: []string{"*"},
		RateLimitEnabled: false,
	}
}

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	start := time.Now().Add(24 * time.Hour)
	e := &event.Event{
		ID:      "100",
		GuildID: "g1",
		Name:    "Example CTF",
		Start:   start,
		End:     start.Add(48 * time.Hour),
		AddedAt: time.Now(),
	}
	if err := st.Put(ctx, e); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.Join(ctx, "100", "g1", "u1", time.Now()); err != nil {
		t.Fatalf("Join: %v", err)
	}
	return st
}

func TestHealthEndpoints(t *testing.T) {
	router := NewRouter(seedStore(t), nil, testConfig())
	srv := httptest.NewServer(router)
	defer srv.Close()

	for _, path := range []string{"/", "/health", "/health/db"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
		if got := resp.Header.Get("X-Process-Time"); got == "" {
			t.Errorf("GET %s missing timing header", path)
		}
		resp.Body.Close()
	}
}

func TestListEvents(t *testing.T) {
	router := NewRouter(seedStore(t), nil, testConfig())
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/guilds/g1/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		GuildID string `json:"guild_id"`
		Count   int    `json:"count"`
		Events  []struct {
			ID           string `json:"event_id"`
			Name         string `json:"name"`
			Status       string `json:"status"`
			Participants int    `json:"participants"`
		} `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || len(body.Events) != 1 {
		t.Fatalf("count = %d, events = %v", body.Count, body.Events)
	}
	if got := body.Events[0]; got.Status != "announced" || got.Participants != 1 {
		t.Errorf("event view = %+v", got)
	}
}

func TestGetEvent(t *testing.T) {
	router := NewRouter(seedStore(t), nil, testConfig())
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/guilds/g1/events/100")
	if err != nil {
		t.Fatalf("GET event: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Participants []string `json:"participants"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Participants) != 1 || body.Participants[0] != "u1" {
		t.Errorf("participants = %v", body.Participants)
	}
}

func TestGetEventNotFound(t *testing.T) {
	router := NewRouter(seedStore(t), nil, testConfig())
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/guilds/g1/events/404")
	if err != nil {
		t.Fatalf("GET event: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "EVENT_NOT_FOUND" {
		t.Errorf("error code = %q", body.Error.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitEnabled = true
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Minute

	router := NewRouter(seedStore(t), nil, cfg)
	srv := httptest.NewServer(router)
	defer srv.Close()

	var last *http.Response
	for i := 0; i < 5; i++ {
		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		last = resp
	}
	if last.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status after burst = %d, want 429", last.StatusCode)
	}
	if got := last.Header.Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want the window in seconds", got)
	}
}

func TestRateLimitEvictsIdleBuckets(t *testing.T) {
	l := newIPLimiter(10, time.Minute)
	l.getLimiter("10.0.0.1")
	l.getLimiter("10.0.0.2")
	l.entries["10.0.0.1"].lastSeen = time.Now().Add(-evictAfter - time.Second)

	// A fresh IP triggers the sweep; only the idle bucket goes.
	l.getLimiter("10.0.0.3")
	if _, ok := l.entries["10.0.0.1"]; ok {
		t.Error("idle bucket survived eviction")
	}
	if _, ok := l.entries["10.0.0.2"]; !ok {
		t.Error("active bucket was evicted")
	}
}
