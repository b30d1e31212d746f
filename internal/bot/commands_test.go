package bot

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/ctftime"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/delivery"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/event"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/importer"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/reminder"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/store/memory"
)

const guild = "g1"

type fakeDirectory struct {
	events map[string]*ctftime.EventInfo
	plan   []ctftime.PlanEntry
}

func (f *fakeDirectory) Event(_ context.Context, id string) (*ctftime.EventInfo, error) {
	info, ok := f.events[id]
	if !ok {
		return nil, ctftime.ErrNotFound
	}
	return info, nil
}

func (f *fakeDirectory) TeamEvents(context.Context, string) ([]ctftime.PlanEntry, error) {
	return f.plan, nil
}

// fakeNotifier records role assignments; delivery is not under test here.
type fakeNotifier struct {
	assigned []string
	removed  []string
}

func (f *fakeNotifier) SendDirect(context.Context, string, delivery.Message) error { return nil }
func (f *fakeNotifier) SendChannel(context.Context, string, string, delivery.Message) error {
	return nil
}
func (f *fakeNotifier) CreateEventRole(context.Context, string, string) error { return nil }
func (f *fakeNotifier) DeleteEventRole(context.Context, string, string) error { return nil }

func (f *fakeNotifier) AssignEventRole(_ context.Context, _, userID, roleName string) error {
	f.assigned = append(f.assigned, userID+":"+roleName)
	return nil
}

func (f *fakeNotifier) RemoveEventRole(_ context.Context, _, userID, roleName string) error {
	f.removed = append(f.removed, userID+":"+roleName)
	return nil
}

func newHandler(t *testing.T) (*Handler, *memory.Store, *fakeNotifier) {
	t.Helper()
	st := memory.New()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	start := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	dir := &fakeDirectory{
		events: map[string]*ctftime.EventInfo{
			"100": {
				ID:     "100",
				Title:  "Example CTF",
				Start:  start.Format(time.RFC3339),
				Finish: start.Add(48 * time.Hour).Format(time.RFC3339),
				Format: "Jeopardy",
			},
		},
	}
	n := &fakeNotifier{}
	imp := importer.New(st, dir, n, logger)
	h := NewHandler(st, imp, n, logger)
	h.now = func() time.Time { return start.Add(-time.Hour) }
	return h, st, n
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func member(userID string) Invocation {
	return Invocation{GuildID: guild, UserID: userID, ChannelID: "c1"}
}

func admin(userID string) Invocation {
	inv := member(userID)
	inv.IsAdmin = true
	return inv
}

func mustAdd(t *testing.T, h *Handler) {
	t.Helper()
	if reply := h.Execute(context.Background(), member("u1"), "addctf", []string{"100"}); !strings.Contains(reply, "Added") {
		t.Fatalf("addctf reply = %q", reply)
	}
}

func TestAddCTF(t *testing.T) {
	ctx := context.Background()
	h, st, _ := newHandler(t)

	mustAdd(t, h)
	if _, err := st.Get(ctx, "100", guild); err != nil {
		t.Fatalf("event not stored: %v", err)
	}
	if e, _ := st.Get(ctx, "100", guild); e.AddedBy != "u1" {
		t.Errorf("AddedBy = %q", e.AddedBy)
	}

	if reply := h.Execute(ctx, member("u1"), "addctf", []string{"100"}); !strings.Contains(reply, "already tracked") {
		t.Errorf("duplicate add reply = %q", reply)
	}
	if reply := h.Execute(ctx, member("u1"), "addctf", []string{"404"}); !strings.Contains(reply, "not found") {
		t.Errorf("missing event reply = %q", reply)
	}
	if reply := h.Execute(ctx, member("u1"), "addctf", nil); !strings.Contains(reply, "Usage") {
		t.Errorf("usage reply = %q", reply)
	}
}

func TestJoinLeave(t *testing.T) {
	ctx := context.Background()
	h, st, n := newHandler(t)
	mustAdd(t, h)

	if reply := h.Execute(ctx, member("u2"), "joinctf", []string{"100"}); !strings.Contains(reply, "Joined") {
		t.Fatalf("join reply = %q", reply)
	}
	if joined, _ := st.IsJoined(ctx, "100", guild, "u2"); !joined {
		t.Fatal("membership not stored")
	}
	if len(n.assigned) != 1 || n.assigned[0] != "u2:CTF-Example CTF" {
		t.Errorf("role assignments = %v", n.assigned)
	}

	if reply := h.Execute(ctx, member("u2"), "joinctf", []string{"100"}); !strings.Contains(reply, "already joined") {
		t.Errorf("rejoin reply = %q", reply)
	}
	if reply := h.Execute(ctx, member("u2"), "joinctf", []string{"404"}); !strings.Contains(reply, "No event") {
		t.Errorf("join missing reply = %q", reply)
	}

	if reply := h.Execute(ctx, member("u2"), "leavectf", []string{"100"}); !strings.Contains(reply, "Left") {
		t.Errorf("leave reply = %q", reply)
	}
	if reply := h.Execute(ctx, member("u2"), "leavectf", []string{"100"}); !strings.Contains(reply, "not in this event") {
		t.Errorf("re-leave reply = %q", reply)
	}
	if len(n.removed) != 1 {
		t.Errorf("role removals = %v", n.removed)
	}
}

func TestAdminGating(t *testing.T) {
	ctx := context.Background()
	h, st, _ := newHandler(t)
	mustAdd(t, h)

	for _, tc := range []struct {
		command string
		args    []string
	}{
		{"delctf", []string{"100"}},
		{"setnotify", []string{"<#123>"}},
		{"setctftime", []string{"55555"}},
	} {
		if reply := h.Execute(ctx, member("u1"), tc.command, tc.args); !strings.Contains(reply, "administrators") {
			t.Errorf("%s by member: %q", tc.command, reply)
		}
	}

	if reply := h.Execute(ctx, admin("boss"), "setnotify", []string{"<#123>"}); !strings.Contains(reply, "<#123>") {
		t.Errorf("setnotify reply = %q", reply)
	}
	if ch, _ := st.NotificationChannel(ctx, guild); ch != "123" {
		t.Errorf("channel = %q", ch)
	}

	if reply := h.Execute(ctx, admin("boss"), "delctf", []string{"100"}); !strings.Contains(reply, "Removed") {
		t.Errorf("delctf reply = %q", reply)
	}
	if events, _ := st.ListByGuild(ctx, guild); len(events) != 0 {
		t.Errorf("event survived delctf: %v", events)
	}
}

func TestSetRemind(t *testing.T) {
	ctx := context.Background()
	h, st, _ := newHandler(t)
	mustAdd(t, h)

	reply := h.Execute(ctx, member("u1"), "setremind", []string{"100", "12h_before", "none"})
	if !strings.Contains(reply, "12 hours") {
		t.Fatalf("setremind reply = %q", reply)
	}

	prefs, found, _ := st.Prefs(ctx, "100", guild, "u1")
	if !found {
		t.Fatal("prefs row not written")
	}
	if len(prefs.BeforeStart) != 1 || prefs.BeforeStart[0] != reminder.Start12h || len(prefs.BeforeEnd) != 0 {
		t.Errorf("prefs = %+v", prefs)
	}

	if reply := h.Execute(ctx, member("u1"), "setremind", []string{"100", "bogus", "none"}); !strings.HasPrefix(reply, "❌") {
		t.Errorf("malformed token reply = %q", reply)
	}
	// End-side tokens are rejected on the start side.
	if reply := h.Execute(ctx, member("u1"), "setremind", []string{"100", "10m_before_end", "none"}); !strings.Contains(reply, "not valid") {
		t.Errorf("cross-side token reply = %q", reply)
	}
	if reply := h.Execute(ctx, member("u1"), "setremind", []string{"404", "none", "none"}); !strings.Contains(reply, "No event") {
		t.Errorf("missing event reply = %q", reply)
	}
}

func TestToggleOffsetStartsFromDefaults(t *testing.T) {
	ctx := context.Background()
	h, st, _ := newHandler(t)
	mustAdd(t, h)

	// No stored row: the first toggle removes 24h from the defaults.
	reply := h.ApplyAction(ctx, member("u1"), ToggleOffsetAction{EventID: "100", Offset: reminder.Start24h})
	if !strings.Contains(reply, "1 hour") {
		t.Fatalf("toggle reply = %q", reply)
	}

	prefs, found, _ := st.Prefs(ctx, "100", guild, "u1")
	if !found {
		t.Fatal("toggle did not persist a row")
	}
	if len(prefs.BeforeStart) != 1 || prefs.BeforeStart[0] != reminder.Start1h {
		t.Errorf("BeforeStart = %v", prefs.BeforeStart)
	}

	// Toggling again adds it back.
	h.ApplyAction(ctx, member("u1"), ToggleOffsetAction{EventID: "100", Offset: reminder.Start24h})
	prefs, _, _ = st.Prefs(ctx, "100", guild, "u1")
	if len(prefs.BeforeStart) != 2 {
		t.Errorf("BeforeStart after re-toggle = %v", prefs.BeforeStart)
	}
}

func TestActionDispatchJoinLeave(t *testing.T) {
	ctx := context.Background()
	h, st, _ := newHandler(t)
	mustAdd(t, h)

	if reply := h.ApplyAction(ctx, member("u3"), JoinAction{EventID: "100"}); !strings.Contains(reply, "Joined") {
		t.Fatalf("join action reply = %q", reply)
	}
	if joined, _ := st.IsJoined(ctx, "100", guild, "u3"); !joined {
		t.Fatal("join action did not persist")
	}
	if reply := h.ApplyAction(ctx, member("u3"), LeaveAction{EventID: "100"}); !strings.Contains(reply, "Left") {
		t.Errorf("leave action reply = %q", reply)
	}
}

func TestTimezone(t *testing.T) {
	ctx := context.Background()
	h, st, _ := newHandler(t)

	if reply := h.Execute(ctx, member("u1"), "timezone", []string{"Asia/Taipei"}); !strings.Contains(reply, "Asia/Taipei") {
		t.Fatalf("timezone reply = %q", reply)
	}
	if zone, _ := st.Timezone(ctx, "u1", guild); zone != "Asia/Taipei" {
		t.Errorf("zone = %q", zone)
	}
	if reply := h.Execute(ctx, member("u1"), "timezone", []string{"Mars/Olympus"}); !strings.Contains(reply, "Unknown timezone") {
		t.Errorf("bad zone reply = %q", reply)
	}
}

func TestListCTFShowsStatus(t *testing.T) {
	ctx := context.Background()
	h, st, _ := newHandler(t)
	mustAdd(t, h)

	// A second event already over at the pinned clock.
	past := h.now().Add(-72 * time.Hour)
	_ = st.Put(ctx, &event.Event{
		ID: "200", GuildID: guild, Name: "Old CTF",
		Start: past, End: past.Add(24 * time.Hour), AddedAt: past,
	})

	reply := h.Execute(ctx, member("u1"), "listctf", nil)
	if !strings.Contains(reply, "Example CTF") || !strings.Contains(reply, "Old CTF") {
		t.Fatalf("listctf reply = %q", reply)
	}
	if !strings.Contains(reply, "announced") || !strings.Contains(reply, "ended") {
		t.Errorf("statuses missing: %q", reply)
	}
}

func TestUnknownCommandStaysSilent(t *testing.T) {
	h, _, _ := newHandler(t)
	if reply := h.Execute(context.Background(), member("u1"), "frobnicate", nil); reply != "" {
		t.Errorf("unknown command reply = %q", reply)
	}
}
