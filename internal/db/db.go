// Package db provides a pgxpool-based connection pool with prepared statement
// registration, schema migration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Migrate creates the schema if it does not exist. Statements are additive
// and idempotent so the bot can be restarted against an existing database.
func (p *Pool) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ctf_events (
			event_id      TEXT        NOT NULL,
			guild_id      TEXT        NOT NULL,
			name          TEXT        NOT NULL,
			start_time    TIMESTAMPTZ NOT NULL,
			end_time      TIMESTAMPTZ NOT NULL,
			format        TEXT        NOT NULL DEFAULT '',
			weight        DOUBLE PRECISION NOT NULL DEFAULT 0,
			location      TEXT        NOT NULL DEFAULT '',
			official_url  TEXT        NOT NULL DEFAULT '',
			ctftime_url   TEXT        NOT NULL DEFAULT '',
			invite_link   TEXT        NOT NULL DEFAULT '',
			added_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			added_by      TEXT        NOT NULL DEFAULT '',
			PRIMARY KEY (event_id, guild_id)
		)`,
		`CREATE TABLE IF NOT EXISTS event_participants (
			event_id  TEXT        NOT NULL,
			guild_id  TEXT        NOT NULL,
			user_id   TEXT        NOT NULL,
			join_time TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (event_id, guild_id, user_id),
			FOREIGN KEY (event_id, guild_id)
				REFERENCES ctf_events (event_id, guild_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS reminder_settings (
			event_id     TEXT NOT NULL,
			guild_id     TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			before_start TEXT NOT NULL DEFAULT '',
			before_end   TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (event_id, guild_id, user_id),
			FOREIGN KEY (event_id, guild_id)
				REFERENCES ctf_events (event_id, guild_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id                TEXT PRIMARY KEY,
			notification_channel_id TEXT NOT NULL DEFAULT '',
			ctftime_team_id         TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS user_timezones (
			user_id    TEXT        NOT NULL,
			guild_id   TEXT        NOT NULL,
			timezone   TEXT        NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, guild_id)
		)`,
		// Columns added after the initial release.
		`ALTER TABLE ctf_events ADD COLUMN IF NOT EXISTS invite_link TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE ctf_events ADD COLUMN IF NOT EXISTS added_by TEXT NOT NULL DEFAULT ''`,
	}

	for _, sql := range stmts {
		if _, err := p.Exec(ctx, sql); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// registerPreparedStatements registers all statements the store layer uses.
// Prepared statements eliminate parse overhead on every sweep tick.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Events
		"event_insert": `INSERT INTO ctf_events
			(event_id, guild_id, name, start_time, end_time, format, weight,
			 location, official_url, ctftime_url, invite_link, added_at, added_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		"event_get": `SELECT event_id, guild_id, name, start_time, end_time, format,
			weight, location, official_url, ctftime_url, invite_link, added_at, added_by
			FROM ctf_events WHERE event_id = $1 AND guild_id = $2`,
		"event_list_by_guild": `SELECT event_id, guild_id, name, start_time, end_time, format,
			weight, location, official_url, ctftime_url, invite_link, added_at, added_by
			FROM ctf_events WHERE guild_id = $1 ORDER BY start_time, event_id`,
		"event_delete":          "DELETE FROM ctf_events WHERE event_id = $1 AND guild_id = $2",
		"event_set_invite_link": "UPDATE ctf_events SET invite_link = $3 WHERE event_id = $1 AND guild_id = $2",
		"event_guilds": `SELECT guild_id FROM ctf_events
			UNION SELECT guild_id FROM guild_settings ORDER BY guild_id`,

		// Participants
		"participant_insert": `INSERT INTO event_participants (event_id, guild_id, user_id, join_time)
			VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		"participant_delete": "DELETE FROM event_participants WHERE event_id = $1 AND guild_id = $2 AND user_id = $3",
		"participant_list": `SELECT event_id, guild_id, user_id, join_time FROM event_participants
			WHERE event_id = $1 AND guild_id = $2 ORDER BY join_time, user_id`,
		"participant_exists": "SELECT 1 FROM event_participants WHERE event_id = $1 AND guild_id = $2 AND user_id = $3",
		"participant_by_user": `SELECT event_id, guild_id, user_id, join_time FROM event_participants
			WHERE guild_id = $1 AND user_id = $2 ORDER BY join_time, event_id`,

		// Reminder preferences
		"reminder_upsert": `INSERT INTO reminder_settings (event_id, guild_id, user_id, before_start, before_end)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (event_id, guild_id, user_id)
			DO UPDATE SET before_start = EXCLUDED.before_start, before_end = EXCLUDED.before_end`,
		"reminder_get": `SELECT before_start, before_end FROM reminder_settings
			WHERE event_id = $1 AND guild_id = $2 AND user_id = $3`,

		// Guild settings
		"settings_set_channel": `INSERT INTO guild_settings (guild_id, notification_channel_id)
			VALUES ($1, $2)
			ON CONFLICT (guild_id) DO UPDATE SET notification_channel_id = EXCLUDED.notification_channel_id`,
		"settings_get_channel": "SELECT notification_channel_id FROM guild_settings WHERE guild_id = $1",
		"settings_set_team": `INSERT INTO guild_settings (guild_id, ctftime_team_id)
			VALUES ($1, $2)
			ON CONFLICT (guild_id) DO UPDATE SET ctftime_team_id = EXCLUDED.ctftime_team_id`,
		"settings_get_team": "SELECT ctftime_team_id FROM guild_settings WHERE guild_id = $1",

		// Timezones
		"timezone_upsert": `INSERT INTO user_timezones (user_id, guild_id, timezone, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (user_id, guild_id) DO UPDATE SET timezone = EXCLUDED.timezone, updated_at = now()`,
		"timezone_get": "SELECT timezone FROM user_timezones WHERE user_id = $1 AND guild_id = $2",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
