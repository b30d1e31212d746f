package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/delivery"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/event"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/reminder"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/timeutil"
)

// SweepResult tracks the outcome of one reminder sweep.
type SweepResult struct {
	Guilds          int
	EventsChecked   int
	Participants    int
	RemindersSent   int
	RemindersFailed int
	Errors          []string
	Duration        time.Duration
}

// Summary returns a human-readable summary.
func (r *SweepResult) Summary() string {
	return fmt.Sprintf("guilds=%d events=%d participants=%d sent=%d failed=%d errors=%d dur=%s",
		r.Guilds, r.EventsChecked, r.Participants, r.RemindersSent,
		r.RemindersFailed, len(r.Errors), r.Duration.Round(time.Millisecond))
}

// SweepReminders evaluates every configured offset of every participant of
// every non-ended event against its tolerance window, and delivers at most
// one reminder per due offset.
//
// Guilds are independent, so the sweep fans out over a worker pool. All
// failures are isolated at the participant level: one bad zone, one closed
// DM, or one storage hiccup never stops the rest of the sweep.
//
// There is no persisted "already sent" ledger. Exactly-once per offset is
// approximated by keeping tolerance windows narrower than the tick period,
// so an offset is in-window for at most one tick under normal cadence.
func (s *Scheduler) SweepReminders(ctx context.Context) SweepResult {
	start := s.now()
	var result SweepResult

	guilds, err := s.st.ListGuilds(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list guilds: %v", err))
		result.Duration = s.now().Sub(start)
		return result
	}
	result.Guilds = len(guilds)
	if len(guilds) == 0 {
		result.Duration = s.now().Sub(start)
		return result
	}

	workers := s.cfg.Workers
	if workers > len(guilds) {
		workers = len(guilds)
	}

	ch := make(chan string, len(guilds))
	for _, guildID := range guilds {
		ch <- guildID
	}
	close(ch)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for guildID := range ch {
				gr := s.sweepGuild(ctx, guildID)
				mu.Lock()
				result.EventsChecked += gr.EventsChecked
				result.Participants += gr.Participants
				result.RemindersSent += gr.RemindersSent
				result.RemindersFailed += gr.RemindersFailed
				result.Errors = append(result.Errors, gr.Errors...)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	result.Duration = s.now().Sub(start)
	return result
}

func (s *Scheduler) sweepGuild(ctx context.Context, guildID string) SweepResult {
	var result SweepResult
	now := s.now()

	events, err := s.st.ListByGuild(ctx, guildID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("guild %s: list events: %v", guildID, err))
		return result
	}

	channelID, err := s.st.NotificationChannel(ctx, guildID)
	if err != nil {
		s.logger.Warn("Notification channel lookup failed", "guild_id", guildID, "error", err)
	}

	for _, e := range events {
		if e.StatusAt(now) == event.Ended {
			continue // the purge sweep owns ended events
		}
		result.EventsChecked++

		participants, err := s.st.List(ctx, e.ID, guildID)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("guild %s event %s: list participants: %v", guildID, e.ID, err))
			continue
		}

		for _, p := range participants {
			result.Participants++
			sent, failed := s.sweepParticipant(ctx, e, p.UserID, channelID, now)
			result.RemindersSent += sent
			result.RemindersFailed += failed
		}
	}
	return result
}

// sweepParticipant evaluates one participant's effective offsets for one
// event and fires each due one.
func (s *Scheduler) sweepParticipant(ctx context.Context, e *event.Event, userID, channelID string, now time.Time) (sent, failed int) {
	stored, found, err := s.st.Prefs(ctx, e.ID, e.GuildID, userID)
	if err != nil {
		s.logger.Warn("Preference lookup failed",
			"guild_id", e.GuildID, "event_id", e.ID, "user_id", userID, "error", err)
		return 0, 0
	}
	prefs := reminder.Resolve(stored, found)

	zone, err := s.st.Timezone(ctx, userID, e.GuildID)
	if err != nil {
		zone = "UTC"
	}

	for _, o := range prefs.BeforeStart {
		if !o.Due(e.Start.Sub(now)) {
			continue
		}
		if s.deliver(ctx, e, userID, channelID, zone, o) {
			sent++
		} else {
			failed++
		}
	}

	// End reminders are suppressed until the event has actually started —
	// an "ending soon" ping for a not-yet-started event is nonsense even
	// when the raw arithmetic matches.
	if !now.After(e.Start) {
		return sent, failed
	}
	for _, o := range prefs.BeforeEnd {
		if !o.Due(e.End.Sub(now)) {
			continue
		}
		if s.deliver(ctx, e, userID, channelID, zone, o) {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}

func (s *Scheduler) deliver(ctx context.Context, e *event.Event, userID, channelID, zone string, o reminder.Offset) bool {
	msg := reminderMessage(e, zone, o)
	if err := delivery.Send(ctx, s.notifier, userID, channelID, msg, s.logger); err != nil {
		// Lost for this offset; delivery is best effort and the window
		// will have passed by the next tick.
		s.logger.Warn("Reminder delivery failed",
			"guild_id", e.GuildID, "event_id", e.ID, "user_id", userID,
			"offset", o.Token(), "error", err)
		return false
	}
	s.logger.Info("Reminder sent",
		"guild_id", e.GuildID, "event_id", e.ID, "user_id", userID, "offset", o.Token())
	return true
}

func reminderMessage(e *event.Event, zone string, o reminder.Offset) delivery.Message {
	title := "🎯 Competition Starting Soon"
	phase := "starts"
	if !o.BeforeStart() {
		title = "🏁 Competition Ending Soon"
		phase = "ends"
	}

	msg := delivery.Message{
		Title: title,
		Body:  fmt.Sprintf("Competition: %s\n\n%s until the competition %s", e.Name, o.Label(), phase),
		Fields: []delivery.Field{
			{
				Name: "⏰ Time Information",
				Value: fmt.Sprintf("**Start:** %s\n**End:** %s",
					timeutil.FormatLocal(e.Start, zone),
					timeutil.FormatLocal(e.End, zone)),
			},
		},
	}
	if e.OfficialURL != "" {
		msg.Fields = append(msg.Fields, delivery.Field{Name: "🔗 Competition Link", Value: e.OfficialURL})
	}
	return msg
}
