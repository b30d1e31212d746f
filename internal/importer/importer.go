// Package importer pulls a team's planned competitions from the CTFtime
// directory into the event store. Idempotence is keyed on event existence:
// a plan entry whose event ID is already stored is skipped, never
// re-imported.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/ctftime"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/delivery"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/event"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/store"
)

// Directory is the slice of the CTFtime client the importer needs.
type Directory interface {
	Event(ctx context.Context, eventID string) (*ctftime.EventInfo, error)
	TeamEvents(ctx context.Context, teamID string) ([]ctftime.PlanEntry, error)
}

// Result tracks the outcome of one import run.
type Result struct {
	GuildID  string
	TeamID   string
	Found    int
	Imported int
	Skipped  int
	Failed   int
	Errors   []string
	Duration time.Duration
}

// Summary returns a human-readable summary.
func (r *Result) Summary() string {
	return fmt.Sprintf("guild=%s team=%s found=%d imported=%d skipped=%d failed=%d dur=%s",
		r.GuildID, r.TeamID, r.Found, r.Imported, r.Skipped, r.Failed,
		r.Duration.Round(time.Millisecond))
}

// Importer imports planned events for guilds with a configured team.
type Importer struct {
	st       store.Store
	dir      Directory
	notifier delivery.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an importer. notifier may be nil for headless runs (CLI
// one-shot imports); role creation and announcements are then skipped.
func New(st store.Store, dir Directory, notifier delivery.Notifier, logger *slog.Logger) *Importer {
	return &Importer{
		st:       st,
		dir:      dir,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// ImportTeam imports every not-yet-known plan entry for one guild.
// addedBy records the triggering actor; empty for automated runs.
func (im *Importer) ImportTeam(ctx context.Context, guildID, teamID, addedBy string) Result {
	start := im.now()
	result := Result{GuildID: guildID, TeamID: teamID}

	entries, err := im.dir.TeamEvents(ctx, teamID)
	if err != nil {
		// Unreachable directory degrades to "this guild fails this tick";
		// the next sweep retries naturally.
		result.Errors = append(result.Errors, fmt.Sprintf("team events: %v", err))
		result.Duration = im.now().Sub(start)
		return result
	}
	result.Found = len(entries)

	for _, entry := range entries {
		if _, err := im.st.Get(ctx, entry.EventID, guildID); err == nil {
			result.Skipped++
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("event %s: lookup: %v", entry.EventID, err))
			continue
		}

		if _, err := im.ImportEvent(ctx, guildID, entry.EventID, addedBy); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("event %s: %v", entry.EventID, err))
			im.logger.Warn("Import failed",
				"guild_id", guildID, "event_id", entry.EventID, "error", err)
			continue
		}
		result.Imported++
	}

	result.Duration = im.now().Sub(start)
	im.logger.Info("Import run complete", "summary", result.Summary())
	return result
}

// ImportEvent fetches one event's metadata and stores it for the guild,
// creating the role and announcement as side effects. Used both by the team
// sweep and by the manual add command.
func (im *Importer) ImportEvent(ctx context.Context, guildID, eventID, addedBy string) (*event.Event, error) {
	info, err := im.dir.Event(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	startAt, err := info.StartTime()
	if err != nil {
		return nil, fmt.Errorf("parse start: %w", err)
	}
	endAt, err := info.FinishTime()
	if err != nil {
		return nil, fmt.Errorf("parse finish: %w", err)
	}

	e := &event.Event{
		ID:          eventID,
		GuildID:     guildID,
		Name:        info.Title,
		Start:       startAt,
		End:         endAt,
		Format:      info.Format,
		Weight:      info.Weight,
		Location:    info.Location,
		OfficialURL: info.URL,
		CTFtimeURL:  info.CTFtimeURL,
		AddedAt:     im.now(),
		AddedBy:     addedBy,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := im.st.Put(ctx, e); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Raced with a concurrent add; treat as already imported.
			return e, nil
		}
		return nil, fmt.Errorf("store: %w", err)
	}

	im.createArtifacts(ctx, e)
	return e, nil
}

// createArtifacts builds the guild-side role and announcement for a newly
// imported event. Failures here are logged and swallowed: the event itself
// is already stored, which is what the reminder engine needs.
func (im *Importer) createArtifacts(ctx context.Context, e *event.Event) {
	if im.notifier == nil {
		return
	}

	if err := im.notifier.CreateEventRole(ctx, e.GuildID, e.RoleName()); err != nil {
		im.logger.Warn("Could not create event role",
			"guild_id", e.GuildID, "event_id", e.ID, "error", err)
	}

	channelID, err := im.st.NotificationChannel(ctx, e.GuildID)
	if err != nil || channelID == "" {
		return
	}
	if err := im.notifier.SendChannel(ctx, channelID, "", announceMessage(e)); err != nil {
		im.logger.Warn("Could not announce imported event",
			"guild_id", e.GuildID, "event_id", e.ID, "error", err)
	}
}

func announceMessage(e *event.Event) delivery.Message {
	msg := delivery.Message{
		Title: "🎯 New CTF Competition Added",
		Body:  fmt.Sprintf("**%s**\nID: `%s`", e.Name, e.ID),
		Fields: []delivery.Field{
			{
				Name: "⏰ Time Information",
				Value: fmt.Sprintf("**Start:** %s UTC\n**End:** %s UTC",
					e.Start.UTC().Format("2006-01-02 15:04"),
					e.End.UTC().Format("2006-01-02 15:04")),
			},
			{
				Name: "📋 Details",
				Value: fmt.Sprintf("**Format:** %s\n**Weight:** %.1f\n**Location:** %s",
					e.Format, e.Weight, e.Location),
			},
		},
	}
	if e.OfficialURL != "" || e.CTFtimeURL != "" {
		msg.Fields = append(msg.Fields, delivery.Field{
			Name:  "🔗 Links",
			Value: fmt.Sprintf("%s\n%s", e.OfficialURL, e.CTFtimeURL),
		})
	}
	return msg
}

// SweepAll runs ImportTeam for every guild with a configured team ID.
// Per-guild failures never abort the sweep.
func (im *Importer) SweepAll(ctx context.Context) []Result {
	guilds, err := im.st.ListGuilds(ctx)
	if err != nil {
		im.logger.Error("Import sweep: list guilds failed", "error", err)
		return nil
	}

	var results []Result
	for _, guildID := range guilds {
		teamID, err := im.st.TeamID(ctx, guildID)
		if err != nil {
			im.logger.Warn("Import sweep: team lookup failed", "guild_id", guildID, "error", err)
			continue
		}
		if teamID == "" {
			continue
		}
		results = append(results, im.ImportTeam(ctx, guildID, teamID, ""))
	}
	return results
}
