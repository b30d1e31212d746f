// Package store defines the persistence interfaces for events, participants,
// reminder preferences, guild settings, and user timezones.
//
// Expected conditions (not found, duplicate key, already joined) are sentinel
// error values so callers can branch with errors.Is instead of parsing
// messages. Two backends exist: store/postgres for production and
// store/memory for tests and database-free runs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/event"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/reminder"
)

var (
	// ErrNotFound: the requested row does not exist. Expected, not logged
	// as an error by callers.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate: insert conflict on a composite key.
	ErrDuplicate = errors.New("store: duplicate key")
	// ErrEventNotFound: a participant operation referenced a missing event.
	ErrEventNotFound = errors.New("store: event not found")
	// ErrAlreadyJoined: join called for an existing membership.
	ErrAlreadyJoined = errors.New("store: already joined")
	// ErrNotJoined: leave called for an absent membership.
	ErrNotJoined = errors.New("store: not joined")
)

// Participant is one user's membership in one event.
type Participant struct {
	EventID  string    `json:"event_id"`
	GuildID  string    `json:"guild_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Settings holds per-guild configuration.
type Settings struct {
	GuildID             string
	NotificationChannel string
	CTFtimeTeamID       string
}

// EventStore persists competition events keyed by (eventID, guildID).
type EventStore interface {
	// Put inserts a new event. Returns ErrDuplicate if the key exists;
	// an insert is never an update.
	Put(ctx context.Context, e *event.Event) error
	// Get returns the event or ErrNotFound.
	Get(ctx context.Context, eventID, guildID string) (*event.Event, error)
	// ListByGuild returns all events for a guild ordered by start time.
	ListByGuild(ctx context.Context, guildID string) ([]*event.Event, error)
	// Delete removes an event and cascades to its participants and
	// reminder preferences. Reports whether a row was deleted.
	Delete(ctx context.Context, eventID, guildID string) (bool, error)
	// SetInviteLink updates the only mutable event field.
	SetInviteLink(ctx context.Context, eventID, guildID, link string) error
	// ListGuilds returns every guild that has at least one event or a
	// settings row. Drives the scheduler's per-tenant fan-out.
	ListGuilds(ctx context.Context) ([]string, error)
}

// ParticipantStore persists the (event, guild, user) membership relation.
type ParticipantStore interface {
	// Join records participation. ErrEventNotFound if the event does not
	// exist (no write), ErrAlreadyJoined if the membership exists (no
	// second row). Both are expected conditions.
	Join(ctx context.Context, eventID, guildID, userID string, now time.Time) error
	// Leave removes participation. ErrNotJoined if absent.
	Leave(ctx context.Context, eventID, guildID, userID string) error
	// List returns participants ordered by join time.
	List(ctx context.Context, eventID, guildID string) ([]Participant, error)
	IsJoined(ctx context.Context, eventID, guildID, userID string) (bool, error)
	// ListByUser returns the events a user has joined in a guild,
	// ordered by start time.
	ListByUser(ctx context.Context, guildID, userID string) ([]*event.Event, error)
}

// ReminderStore persists per (event, guild, user) offset selections.
// Row absence ("never configured") must stay observably different from a row
// holding empty sets ("explicitly none stored, apply defaults is the
// caller's call") — Get reports both via the found flag.
type ReminderStore interface {
	// SetPrefs upserts the tuple. ErrEventNotFound if the event is gone.
	SetPrefs(ctx context.Context, eventID, guildID, userID string, prefs reminder.Prefs) error
	// Prefs returns the stored tuple and whether a row exists. found=false
	// means "never configured"; found=true with empty sets means a row was
	// written with nothing selected. Callers apply defaults, not the store.
	Prefs(ctx context.Context, eventID, guildID, userID string) (prefs reminder.Prefs, found bool, err error)
}

// SettingsStore persists per-guild settings. Setters upsert.
type SettingsStore interface {
	SetNotificationChannel(ctx context.Context, guildID, channelID string) error
	NotificationChannel(ctx context.Context, guildID string) (string, error)
	SetTeamID(ctx context.Context, guildID, teamID string) error
	TeamID(ctx context.Context, guildID string) (string, error)
}

// TimezoneStore persists per (user, guild) IANA zone names.
type TimezoneStore interface {
	SetTimezone(ctx context.Context, userID, guildID, zone string, now time.Time) error
	// Timezone returns the stored zone, or "UTC" when none is set.
	Timezone(ctx context.Context, userID, guildID string) (string, error)
}

// Store bundles all five interfaces. Constructed once at startup and passed
// by reference into the scheduler and the command layer.
type Store interface {
	EventStore
	ParticipantStore
	ReminderStore
	SettingsStore
	TimezoneStore
}
