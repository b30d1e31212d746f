// Package ctftime is the client for the CTFtime directory service. Event
// metadata comes from the JSON API; a team's planned-events list only exists
// on the team page, so that one is scraped from HTML.
//
// Every call is bounded: per-attempt timeout, three attempts, token-bucket
// rate limiting. A 404 is the typed ErrNotFound, never a connection error.
package ctftime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://ctftime.org"

	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3
	requestsPerMin  = 30
)

// CTFtime throttles default Go user agents aggressively; the original bot
// shipped a browser UA for the same reason.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// ErrNotFound: the directory has no such event or team. Expected.
var ErrNotFound = errors.New("ctftime: not found")

// ConnError: the directory was unreachable after all retry attempts.
// Transient — callers retry on their next cycle.
type ConnError struct {
	URL string
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("ctftime: connection failed for %s: %v", e.URL, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// EventInfo is the directory's metadata for one competition.
type EventInfo struct {
	ID          string
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Start       string  `json:"start"`
	Finish      string  `json:"finish"`
	URL         string  `json:"url"`
	CTFtimeURL  string  `json:"ctftime_url"`
	Format      string  `json:"format"`
	Weight      float64 `json:"weight"`
	Location    string  `json:"location"`
}

// StartTime parses the ISO-8601 start instant.
func (e *EventInfo) StartTime() (time.Time, error) {
	return time.Parse(time.RFC3339, e.Start)
}

// FinishTime parses the ISO-8601 end instant.
func (e *EventInfo) FinishTime() (time.Time, error) {
	return time.Parse(time.RFC3339, e.Finish)
}

// PlanEntry is one row of a team's planned-events table.
type PlanEntry struct {
	EventID string
	Name    string
	Date    string
	URL     string
}

// Client is the rate-limited CTFtime HTTP client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	attempts   int
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a client for the given base URL ("" for the public site).
func New(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		attempts:   defaultAttempts,
		limiter:    rate.NewLimiter(rate.Limit(float64(requestsPerMin)/60.0), 1),
		logger:     logger,
	}
}

// get performs a rate-limited GET with bounded retries. Transport failures
// and timeouts are retried; HTTP status handling is left to the caller.
func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + path
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			c.logger.Warn("CTFtime request failed, retrying",
				"url", u, "attempt", attempt+1, "error", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return body, resp.StatusCode, nil
	}
	return nil, 0, &ConnError{URL: u, Err: lastErr}
}

// Event fetches full metadata for one event. Returns ErrNotFound for
// 404-class responses.
func (c *Client) Event(ctx context.Context, eventID string) (*EventInfo, error) {
	body, status, err := c.get(ctx, "/api/v1/events/"+eventID+"/")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("ctftime: event %s returned %d: %s", eventID, status, truncate(body, 200))
	}

	var info EventInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", eventID, err)
	}
	if info.Start == "" || info.Finish == "" {
		return nil, fmt.Errorf("ctftime: event %s missing start or finish time", eventID)
	}
	info.ID = eventID
	if info.CTFtimeURL == "" {
		info.CTFtimeURL = c.baseURL + "/event/" + eventID
	}
	if info.Location == "" {
		info.Location = "Online"
	}
	return &info, nil
}

// Upcoming fetches the public upcoming-events list, trimmed to limit.
func (c *Client) Upcoming(ctx context.Context, limit int) ([]EventInfo, error) {
	body, status, err := c.get(ctx, "/api/v1/events/")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("ctftime: events list returned %d: %s", status, truncate(body, 200))
	}

	var events []EventInfo
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("decode events list: %w", err)
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
