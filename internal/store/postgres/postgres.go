// Package postgres implements the store interfaces on a pgx connection pool.
// All queries go through prepared statements registered in internal/db.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/db"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/event"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/reminder"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/store"
)

// Postgres error codes used for sentinel mapping.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store implements store.Store backed by Postgres.
type Store struct {
	pool *db.Pool
}

var _ store.Store = (*Store)(nil)

// New wraps an existing pool. The caller owns the pool's lifecycle.
func New(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

func (s *Store) Put(ctx context.Context, e *event.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, "event_insert",
		e.ID, e.GuildID, e.Name, e.Start, e.End, e.Format, e.Weight,
		e.Location, e.OfficialURL, e.CTFtimeURL, e.InviteLink, e.AddedAt, e.AddedBy)
	if isPgError(err, codeUniqueViolation) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, eventID, guildID string) (*event.Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx, "event_get", eventID, guildID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *Store) ListByGuild(ctx context.Context, guildID string) ([]*event.Event, error) {
	rows, err := s.pool.Query(ctx, "event_list_by_guild", guildID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) Delete(ctx context.Context, eventID, guildID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, "event_delete", eventID, guildID)
	if err != nil {
		return false, fmt.Errorf("delete event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) SetInviteLink(ctx context.Context, eventID, guildID, link string) error {
	tag, err := s.pool.Exec(ctx, "event_set_invite_link", eventID, guildID, link)
	if err != nil {
		return fmt.Errorf("set invite link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListGuilds(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "event_guilds")
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	defer rows.Close()

	var guilds []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan guild: %w", err)
		}
		guilds = append(guilds, g)
	}
	return guilds, rows.Err()
}

// --------------------------------------------------------------------------
// Participants
// --------------------------------------------------------------------------

func (s *Store) Join(ctx context.Context, eventID, guildID, userID string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, "participant_insert", eventID, guildID, userID, now)
	if isPgError(err, codeForeignKeyViolation) {
		return store.ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("join event: %w", err)
	}
	// ON CONFLICT DO NOTHING: zero rows means the membership already exists.
	if tag.RowsAffected() == 0 {
		return store.ErrAlreadyJoined
	}
	return nil
}

func (s *Store) Leave(ctx context.Context, eventID, guildID, userID string) error {
	tag, err := s.pool.Exec(ctx, "participant_delete", eventID, guildID, userID)
	if err != nil {
		return fmt.Errorf("leave event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotJoined
	}
	return nil
}

func (s *Store) List(ctx context.Context, eventID, guildID string) ([]store.Participant, error) {
	rows, err := s.pool.Query(ctx, "participant_list", eventID, guildID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participants []store.Participant
	for rows.Next() {
		var p store.Participant
		if err := rows.Scan(&p.EventID, &p.GuildID, &p.UserID, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *Store) IsJoined(ctx context.Context, eventID, guildID, userID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, "participant_exists", eventID, guildID, userID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return true, nil
}

func (s *Store) ListByUser(ctx context.Context, guildID, userID string) ([]*event.Event, error) {
	rows, err := s.pool.Query(ctx, "participant_by_user", guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("list user events: %w", err)
	}

	var memberships []store.Participant
	for rows.Next() {
		var p store.Participant
		if err := rows.Scan(&p.EventID, &p.GuildID, &p.UserID, &p.JoinedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		memberships = append(memberships, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	events := make([]*event.Event, 0, len(memberships))
	for _, m := range memberships {
		e, err := s.Get(ctx, m.EventID, m.GuildID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	sortEventsByStart(events)
	return events, nil
}

// --------------------------------------------------------------------------
// Reminder preferences
// --------------------------------------------------------------------------

func (s *Store) SetPrefs(ctx context.Context, eventID, guildID, userID string, prefs reminder.Prefs) error {
	_, err := s.pool.Exec(ctx, "reminder_upsert", eventID, guildID, userID,
		reminder.EncodeOffsets(prefs.BeforeStart), reminder.EncodeOffsets(prefs.BeforeEnd))
	if isPgError(err, codeForeignKeyViolation) {
		return store.ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("set reminder prefs: %w", err)
	}
	return nil
}

func (s *Store) Prefs(ctx context.Context, eventID, guildID, userID string) (reminder.Prefs, bool, error) {
	var beforeStart, beforeEnd string
	err := s.pool.QueryRow(ctx, "reminder_get", eventID, guildID, userID).Scan(&beforeStart, &beforeEnd)
	if errors.Is(err, pgx.ErrNoRows) {
		return reminder.Prefs{}, false, nil
	}
	if err != nil {
		return reminder.Prefs{}, false, fmt.Errorf("get reminder prefs: %w", err)
	}

	start, err := reminder.DecodeOffsets(beforeStart)
	if err != nil {
		return reminder.Prefs{}, false, fmt.Errorf("decode before_start: %w", err)
	}
	end, err := reminder.DecodeOffsets(beforeEnd)
	if err != nil {
		return reminder.Prefs{}, false, fmt.Errorf("decode before_end: %w", err)
	}
	return reminder.Prefs{BeforeStart: start, BeforeEnd: end}, true, nil
}

// --------------------------------------------------------------------------
// Guild settings
// --------------------------------------------------------------------------

func (s *Store) SetNotificationChannel(ctx context.Context, guildID, channelID string) error {
	if _, err := s.pool.Exec(ctx, "settings_set_channel", guildID, channelID); err != nil {
		return fmt.Errorf("set notification channel: %w", err)
	}
	return nil
}

func (s *Store) NotificationChannel(ctx context.Context, guildID string) (string, error) {
	var channelID string
	err := s.pool.QueryRow(ctx, "settings_get_channel", guildID).Scan(&channelID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get notification channel: %w", err)
	}
	return channelID, nil
}

func (s *Store) SetTeamID(ctx context.Context, guildID, teamID string) error {
	if _, err := s.pool.Exec(ctx, "settings_set_team", guildID, teamID); err != nil {
		return fmt.Errorf("set team id: %w", err)
	}
	return nil
}

func (s *Store) TeamID(ctx context.Context, guildID string) (string, error) {
	var teamID string
	err := s.pool.QueryRow(ctx, "settings_get_team", guildID).Scan(&teamID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get team id: %w", err)
	}
	return teamID, nil
}

// --------------------------------------------------------------------------
// Timezones
// --------------------------------------------------------------------------

func (s *Store) SetTimezone(ctx context.Context, userID, guildID, zone string, now time.Time) error {
	if _, err := s.pool.Exec(ctx, "timezone_upsert", userID, guildID, zone); err != nil {
		return fmt.Errorf("set timezone: %w", err)
	}
	return nil
}

func (s *Store) Timezone(ctx context.Context, userID, guildID string) (string, error) {
	var zone string
	err := s.pool.QueryRow(ctx, "timezone_get", userID, guildID).Scan(&zone)
	if errors.Is(err, pgx.ErrNoRows) {
		return "UTC", nil
	}
	if err != nil {
		return "", fmt.Errorf("get timezone: %w", err)
	}
	return zone, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func scanEvent(row pgx.Row) (*event.Event, error) {
	var e event.Event
	err := row.Scan(&e.ID, &e.GuildID, &e.Name, &e.Start, &e.End, &e.Format,
		&e.Weight, &e.Location, &e.OfficialURL, &e.CTFtimeURL, &e.InviteLink,
		&e.AddedAt, &e.AddedBy)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func sortEventsByStart(events []*event.Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].ID < events[j].ID
	})
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
