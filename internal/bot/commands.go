package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/ctftime"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/delivery"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/event"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/importer"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/reminder"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/store"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/timeutil"
)

// Invocation carries the who/where of one command or button press.
type Invocation struct {
	GuildID   string
	UserID    string
	ChannelID string
	IsAdmin   bool
}

// roleAssigner is implemented by notifiers that can grant and revoke the
// per-event role on individual members. The fallback notifiers used in
// tests and headless runs do not.
type roleAssigner interface {
	AssignEventRole(ctx context.Context, guildID, userID, roleName string) error
	RemoveEventRole(ctx context.Context, guildID, userID, roleName string) error
}

// Handler executes commands against the store. It never returns an error to
// the transport: every outcome, expected or not, becomes a reply string.
type Handler struct {
	st       store.Store
	imp      *importer.Importer
	notifier delivery.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(st store.Store, imp *importer.Importer, notifier delivery.Notifier, logger *slog.Logger) *Handler {
	return &Handler{
		st:       st,
		imp:      imp,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Execute runs one named command and returns the reply text.
func (h *Handler) Execute(ctx context.Context, inv Invocation, command string, args []string) string {
	switch command {
	case "ping":
		return "🏓 Pong!"
	case "help":
		return helpText
	case "addctf":
		return h.addCTF(ctx, inv, args)
	case "delctf":
		return h.delCTF(ctx, inv, args)
	case "listctf":
		return h.listCTF(ctx, inv)
	case "myctf":
		return h.myCTF(ctx, inv)
	case "joinctf":
		return h.joinCTF(ctx, inv, args)
	case "leavectf":
		return h.leaveCTF(ctx, inv, args)
	case "participants":
		return h.participants(ctx, inv, args)
	case "invitectf":
		return h.inviteCTF(ctx, inv, args)
	case "setnotify":
		return h.setNotify(ctx, inv, args)
	case "setctftime":
		return h.setCTFtime(ctx, inv, args)
	case "setremind":
		return h.setRemind(ctx, inv, args)
	case "timezone":
		return h.setTimezone(ctx, inv, args)
	default:
		return "" // not ours; stay silent
	}
}

// ApplyAction executes one decoded button press and returns the reply text.
// All three variants go through the same store operations as the text
// commands.
func (h *Handler) ApplyAction(ctx context.Context, inv Invocation, a Action) string {
	switch v := a.(type) {
	case JoinAction:
		return h.joinCTF(ctx, inv, []string{v.EventID})
	case LeaveAction:
		return h.leaveCTF(ctx, inv, []string{v.EventID})
	case ToggleOffsetAction:
		return h.toggleOffset(ctx, inv, v.EventID, v.Offset)
	default:
		return ""
	}
}

// --------------------------------------------------------------------------
// Event commands
// --------------------------------------------------------------------------

func (h *Handler) addCTF(ctx context.Context, inv Invocation, args []string) string {
	if len(args) < 1 {
		return "Usage: `addctf <ctftime_event_id>`"
	}
	eventID := args[0]

	if _, err := h.st.Get(ctx, eventID, inv.GuildID); err == nil {
		return fmt.Sprintf("ℹ️ Event `%s` is already tracked.", eventID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return h.internalError("addctf", err)
	}

	e, err := h.imp.ImportEvent(ctx, inv.GuildID, eventID, inv.UserID)
	if err != nil {
		if errors.Is(err, ctftime.ErrNotFound) {
			return fmt.Sprintf("❌ Event `%s` was not found on CTFtime.", eventID)
		}
		return h.internalError("addctf", err)
	}
	return fmt.Sprintf("✅ Added **%s** (`%s`). Join with `joinctf %s`.", e.Name, e.ID, e.ID)
}

func (h *Handler) delCTF(ctx context.Context, inv Invocation, args []string) string {
	if !inv.IsAdmin {
		return "⛔ Only administrators can delete events."
	}
	if len(args) < 1 {
		return "Usage: `delctf <event_id>`"
	}
	eventID := args[0]

	e, err := h.st.Get(ctx, eventID, inv.GuildID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("❌ No event `%s` in this server.", eventID)
	}
	if err != nil {
		return h.internalError("delctf", err)
	}

	if h.notifier != nil {
		if err := h.notifier.DeleteEventRole(ctx, inv.GuildID, e.RoleName()); err != nil {
			h.logger.Warn("Could not delete event role",
				"guild_id", inv.GuildID, "event_id", eventID, "error", err)
		}
	}
	if _, err := h.st.Delete(ctx, eventID, inv.GuildID); err != nil {
		return h.internalError("delctf", err)
	}
	return fmt.Sprintf("🗑️ Removed **%s** and its participants.", e.Name)
}

func (h *Handler) listCTF(ctx context.Context, inv Invocation) string {
	events, err := h.st.ListByGuild(ctx, inv.GuildID)
	if err != nil {
		return h.internalError("listctf", err)
	}
	if len(events) == 0 {
		return "No competitions tracked. Add one with `addctf <ctftime_event_id>`."
	}

	var b strings.Builder
	b.WriteString("📋 **Tracked competitions**\n")
	now := h.now()
	for _, e := range events {
		fmt.Fprintf(&b, "%s `%s` **%s** — %s to %s (%s)\n",
			statusEmoji(e.StatusAt(now)), e.ID, e.Name,
			e.Start.UTC().Format("01-02 15:04"),
			e.End.UTC().Format("01-02 15:04"),
			e.StatusAt(now))
	}
	return b.String()
}

func (h *Handler) myCTF(ctx context.Context, inv Invocation) string {
	events, err := h.st.ListByUser(ctx, inv.GuildID, inv.UserID)
	if err != nil {
		return h.internalError("myctf", err)
	}
	if len(events) == 0 {
		return "You have not joined any competitions. Use `joinctf <event_id>`."
	}

	var b strings.Builder
	b.WriteString("🎯 **Your competitions**\n")
	now := h.now()
	for _, e := range events {
		fmt.Fprintf(&b, "%s `%s` **%s** (%s)\n",
			statusEmoji(e.StatusAt(now)), e.ID, e.Name, e.StatusAt(now))
	}
	return b.String()
}

// --------------------------------------------------------------------------
// Participation
// --------------------------------------------------------------------------

func (h *Handler) joinCTF(ctx context.Context, inv Invocation, args []string) string {
	if len(args) < 1 {
		return "Usage: `joinctf <event_id>`"
	}
	eventID := args[0]

	err := h.st.Join(ctx, eventID, inv.GuildID, inv.UserID, h.now())
	switch {
	case errors.Is(err, store.ErrEventNotFound):
		return fmt.Sprintf("❌ No event `%s` in this server.", eventID)
	case errors.Is(err, store.ErrAlreadyJoined):
		return "ℹ️ You already joined this event."
	case err != nil:
		return h.internalError("joinctf", err)
	}

	h.syncRole(ctx, inv, eventID, true)
	return fmt.Sprintf("✅ Joined event `%s`. Reminders use the defaults; tune with `setremind`.", eventID)
}

func (h *Handler) leaveCTF(ctx context.Context, inv Invocation, args []string) string {
	if len(args) < 1 {
		return "Usage: `leavectf <event_id>`"
	}
	eventID := args[0]

	err := h.st.Leave(ctx, eventID, inv.GuildID, inv.UserID)
	switch {
	case errors.Is(err, store.ErrNotJoined):
		return "ℹ️ You are not in this event."
	case err != nil:
		return h.internalError("leavectf", err)
	}

	h.syncRole(ctx, inv, eventID, false)
	return fmt.Sprintf("👋 Left event `%s`.", eventID)
}

func (h *Handler) participants(ctx context.Context, inv Invocation, args []string) string {
	if len(args) < 1 {
		return "Usage: `participants <event_id>`"
	}
	eventID := args[0]

	if _, err := h.st.Get(ctx, eventID, inv.GuildID); errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("❌ No event `%s` in this server.", eventID)
	} else if err != nil {
		return h.internalError("participants", err)
	}

	list, err := h.st.List(ctx, eventID, inv.GuildID)
	if err != nil {
		return h.internalError("participants", err)
	}
	if len(list) == 0 {
		return "Nobody has joined yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👥 **%d participant(s)**\n", len(list))
	for _, p := range list {
		fmt.Fprintf(&b, "- <@%s>\n", p.UserID)
	}
	return b.String()
}

func (h *Handler) inviteCTF(ctx context.Context, inv Invocation, args []string) string {
	if len(args) < 2 {
		return "Usage: `invitectf <event_id> <link>`"
	}
	eventID, link := args[0], args[1]

	err := h.st.SetInviteLink(ctx, eventID, inv.GuildID, link)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("❌ No event `%s` in this server.", eventID)
	}
	if err != nil {
		return h.internalError("invitectf", err)
	}
	return "🔗 Invite link saved."
}

// syncRole mirrors membership onto the per-event Discord role when the
// notifier supports it. Role drift is cosmetic, so failures only log.
func (h *Handler) syncRole(ctx context.Context, inv Invocation, eventID string, joined bool) {
	ra, ok := h.notifier.(roleAssigner)
	if !ok {
		return
	}
	e, err := h.st.Get(ctx, eventID, inv.GuildID)
	if err != nil {
		return
	}

	if joined {
		err = ra.AssignEventRole(ctx, inv.GuildID, inv.UserID, e.RoleName())
	} else {
		err = ra.RemoveEventRole(ctx, inv.GuildID, inv.UserID, e.RoleName())
	}
	if err != nil {
		h.logger.Warn("Could not sync event role",
			"guild_id", inv.GuildID, "user_id", inv.UserID, "event_id", eventID, "error", err)
	}
}

// --------------------------------------------------------------------------
// Settings
// --------------------------------------------------------------------------

func (h *Handler) setNotify(ctx context.Context, inv Invocation, args []string) string {
	if !inv.IsAdmin {
		return "⛔ Only administrators can change the notification channel."
	}
	if len(args) < 1 {
		return "Usage: `setnotify <#channel>`"
	}

	channelID := parseChannelMention(args[0])
	if channelID == "" {
		return "❌ That does not look like a channel. Mention it: `setnotify #ctf-announcements`."
	}
	if err := h.st.SetNotificationChannel(ctx, inv.GuildID, channelID); err != nil {
		return h.internalError("setnotify", err)
	}
	return fmt.Sprintf("✅ Announcements and fallbacks go to <#%s>.", channelID)
}

func (h *Handler) setCTFtime(ctx context.Context, inv Invocation, args []string) string {
	if !inv.IsAdmin {
		return "⛔ Only administrators can set the CTFtime team."
	}
	if len(args) < 1 {
		return "Usage: `setctftime <team_id>`"
	}
	teamID := args[0]

	if err := h.st.SetTeamID(ctx, inv.GuildID, teamID); err != nil {
		return h.internalError("setctftime", err)
	}

	// Pull the team's plan right away so the guild sees results without
	// waiting for the hourly sweep.
	result := h.imp.ImportTeam(ctx, inv.GuildID, teamID, inv.UserID)
	return fmt.Sprintf("✅ Team `%s` linked. Imported %d event(s), %d already tracked.",
		teamID, result.Imported, result.Skipped)
}

func (h *Handler) setRemind(ctx context.Context, inv Invocation, args []string) string {
	if len(args) < 3 {
		return "Usage: `setremind <event_id> <before_start> <before_end>`\n" +
			"Offsets are comma separated tokens (e.g. `24h_before,1h_before`), or `none`."
	}
	eventID := args[0]

	beforeStart, err := parseOffsetArg(args[1], reminder.StartOffsets)
	if err != nil {
		return fmt.Sprintf("❌ %v", err)
	}
	beforeEnd, err := parseOffsetArg(args[2], reminder.EndOffsets)
	if err != nil {
		return fmt.Sprintf("❌ %v", err)
	}

	prefs := reminder.Prefs{BeforeStart: beforeStart, BeforeEnd: beforeEnd}
	if err := h.st.SetPrefs(ctx, eventID, inv.GuildID, inv.UserID, prefs); err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			return fmt.Sprintf("❌ No event `%s` in this server.", eventID)
		}
		return h.internalError("setremind", err)
	}
	return fmt.Sprintf("⏰ Reminders for `%s` set: start %s, end %s.",
		eventID, describeOffsets(beforeStart), describeOffsets(beforeEnd))
}

func (h *Handler) toggleOffset(ctx context.Context, inv Invocation, eventID string, off reminder.Offset) string {
	stored, found, err := h.st.Prefs(ctx, eventID, inv.GuildID, inv.UserID)
	if err != nil {
		return h.internalError("toggle offset", err)
	}
	// First toggle starts from the defaults the user is effectively on.
	prefs := reminder.Resolve(stored, found)

	if off.BeforeStart() {
		prefs.BeforeStart = toggle(prefs.BeforeStart, off)
	} else {
		prefs.BeforeEnd = toggle(prefs.BeforeEnd, off)
	}

	if err := h.st.SetPrefs(ctx, eventID, inv.GuildID, inv.UserID, prefs); err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			return fmt.Sprintf("❌ No event `%s` in this server.", eventID)
		}
		return h.internalError("toggle offset", err)
	}
	return fmt.Sprintf("⏰ Reminders for `%s`: start %s, end %s.",
		eventID, describeOffsets(prefs.BeforeStart), describeOffsets(prefs.BeforeEnd))
}

func (h *Handler) setTimezone(ctx context.Context, inv Invocation, args []string) string {
	if len(args) < 1 {
		return "Usage: `timezone <IANA zone>` (e.g. `timezone Asia/Taipei`)"
	}
	zone := args[0]

	if _, err := time.LoadLocation(zone); err != nil {
		return fmt.Sprintf("❌ Unknown timezone `%s`. Use an IANA name like `Europe/Berlin`.", zone)
	}
	if err := h.st.SetTimezone(ctx, inv.UserID, inv.GuildID, zone, h.now()); err != nil {
		return h.internalError("timezone", err)
	}
	local := timeutil.FormatLocal(h.now(), zone)
	return fmt.Sprintf("🌍 Timezone set to `%s`. Your local time: %s.", zone, local)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (h *Handler) internalError(op string, err error) string {
	h.logger.Error("Command failed", "op", op, "error", err)
	return "⚠️ Something went wrong, try again later."
}

func statusEmoji(s event.Status) string {
	switch s {
	case event.Active:
		return "🟢"
	case event.Ended:
		return "⚫"
	default:
		return "🔵"
	}
}

// parseChannelMention accepts both a raw channel ID and the <#id> mention
// form Discord sends for typed channel references.
func parseChannelMention(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<#") && strings.HasSuffix(s, ">") {
		s = s[2 : len(s)-1]
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return ""
		}
	}
	if s == "" {
		return ""
	}
	return s
}

// parseOffsetArg parses a comma separated token list, restricted to the
// offsets valid on that side. "none" stores an explicitly empty selection.
func parseOffsetArg(arg string, allowed []reminder.Offset) ([]reminder.Offset, error) {
	if strings.EqualFold(arg, "none") {
		return nil, nil
	}
	offsets, err := reminder.DecodeOffsets(arg)
	if err != nil {
		return nil, err
	}
	for _, o := range offsets {
		ok := false
		for _, a := range allowed {
			if o == a {
				ok = true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("offset %s is not valid here", o.Token())
		}
	}
	return offsets, nil
}

func toggle(offsets []reminder.Offset, off reminder.Offset) []reminder.Offset {
	for i, o := range offsets {
		if o == off {
			return append(offsets[:i], offsets[i+1:]...)
		}
	}
	return append(offsets, off)
}

func describeOffsets(offsets []reminder.Offset) string {
	if len(offsets) == 0 {
		return "none"
	}
	labels := make([]string, len(offsets))
	for i, o := range offsets {
		labels[i] = o.Label()
	}
	return strings.Join(labels, ", ")
}

const helpText = "**CTF bot commands**\n" +
	"`addctf <id>` add a CTFtime event\n" +
	"`delctf <id>` remove an event (admin)\n" +
	"`listctf` list tracked events\n" +
	"`myctf` events you joined\n" +
	"`joinctf <id>` / `leavectf <id>` manage participation\n" +
	"`participants <id>` who joined\n" +
	"`invitectf <id> <link>` save the team invite link\n" +
	"`setremind <id> <start> <end>` reminder offsets, comma separated or `none`\n" +
	"`timezone <zone>` set your timezone\n" +
	"`setnotify <#channel>` announcement channel (admin)\n" +
	"`setctftime <team_id>` link a CTFtime team (admin)\n" +
	"`ping` liveness check"
