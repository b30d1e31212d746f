package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/event"
)

// PurgeResult tracks the outcome of one ended-event purge sweep.
type PurgeResult struct {
	Purged   int
	Errors   []string
	Duration time.Duration
}

// Summary returns a human-readable summary.
func (r *PurgeResult) Summary() string {
	return fmt.Sprintf("purged=%d errors=%d dur=%s",
		r.Purged, len(r.Errors), r.Duration.Round(time.Millisecond))
}

// SweepEnded deletes events whose end instant has passed, cascading to
// their participant and preference rows, and removes the per-event guild
// role. Deletion happens on first Ended observation — there is no grace
// period for post-event queries.
//
// Role removal failures (missing permission, role already gone) are logged
// and do not block the event delete: a stale role is recoverable by hand,
// a stale event would keep feeding the reminder sweep forever.
func (s *Scheduler) SweepEnded(ctx context.Context) PurgeResult {
	start := s.now()
	var result PurgeResult

	guilds, err := s.st.ListGuilds(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list guilds: %v", err))
		result.Duration = s.now().Sub(start)
		return result
	}

	now := s.now()
	for _, guildID := range guilds {
		events, err := s.st.ListByGuild(ctx, guildID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("guild %s: list events: %v", guildID, err))
			continue
		}

		for _, e := range events {
			if e.StatusAt(now) != event.Ended {
				continue
			}

			if s.notifier != nil {
				if err := s.notifier.DeleteEventRole(ctx, guildID, e.RoleName()); err != nil {
					s.logger.Warn("Could not delete event role",
						"guild_id", guildID, "event_id", e.ID, "error", err)
				}
			}

			deleted, err := s.st.Delete(ctx, e.ID, guildID)
			if err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("guild %s event %s: delete: %v", guildID, e.ID, err))
				continue
			}
			if deleted {
				result.Purged++
				s.logger.Info("Purged ended event",
					"guild_id", guildID, "event_id", e.ID, "name", e.Name)
			}
		}
	}

	result.Duration = s.now().Sub(start)
	return result
}
