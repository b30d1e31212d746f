// Command ctfbot runs the CTF event and reminder bot.
//
// Usage:
//
//	ctfbot serve
//	ctfbot import --guild 123 --team 55555
//	ctfbot events --guild 123
//	ctfbot upcoming --limit 20
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/api"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/bot"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/config"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/ctftime"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/db"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/delivery"
	ddiscord "github.com/guan4tou2/discord-ctf-remind-bot/internal/delivery/discord"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/importer"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/scheduler"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/store"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/store/memory"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/store/postgres"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "ctfbot",
		Short: "CTF event tracking and reminder bot",
	}

	root.AddCommand(serveCmd())
	root.AddCommand(importCmd())
	root.AddCommand(eventsCmd())
	root.AddCommand(upcomingCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore selects the backend from configuration. The returned pool is
// nil for the memory backend; callers must tolerate that.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, *db.Pool, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("No DATABASE_URL, using in-memory store (no persistence)")
		return memory.New(), nil, nil
	}

	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)
	return postgres.New(pool), pool, nil
}

// --------------------------------------------------------------------------
// serve command
// --------------------------------------------------------------------------

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, scheduler and status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.RequireToken(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			st, pool, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			session, err := discordgo.New("Bot " + cfg.DiscordToken)
			if err != nil {
				return fmt.Errorf("create discord session: %w", err)
			}

			var notifier delivery.Notifier = ddiscord.New(session)
			client := ctftime.New(cfg.CTFtimeBaseURL, logger)
			imp := importer.New(st, client, notifier, logger)

			sched := scheduler.New(st, notifier, imp, scheduler.Config{
				ReminderInterval: cfg.ReminderInterval,
				ImportInterval:   cfg.ImportInterval,
				PurgeInterval:    cfg.PurgeInterval,
				Workers:          cfg.SweepWorkers,
			}, logger)
			go sched.Start(ctx)

			// Status API
			var srv *http.Server
			if cfg.APIEnabled {
				addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
				srv = &http.Server{
					Addr:         addr,
					Handler:      api.NewRouter(st, pool, cfg),
					ReadTimeout:  10 * time.Second,
					WriteTimeout: 30 * time.Second,
					IdleTimeout:  60 * time.Second,
				}
				go func() {
					logger.Info("Starting status API", "addr", addr, "environment", cfg.Environment)
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error("Status API failed", "error", err)
					}
				}()
			}

			handler := bot.NewHandler(st, imp, notifier, logger)
			b := bot.New(session, handler, "!", cfg.GuildIDs, logger)
			if err := b.Start(ctx); err != nil {
				return err
			}

			// Gateway closed; drain the API server too.
			if srv != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("Shutdown error", "error", err)
				}
			}
			logger.Info("Stopped")
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// import command
// --------------------------------------------------------------------------

func importCmd() *cobra.Command {
	var guildID, teamID string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "One-shot import of a CTFtime team's planned events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			st, pool, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			client := ctftime.New(cfg.CTFtimeBaseURL, logger)
			// Headless: no notifier, so no roles or announcements.
			imp := importer.New(st, client, nil, logger)

			start := time.Now()
			result := imp.ImportTeam(ctx, guildID, teamID, "")
			logger.Info("Import finished",
				"duration", time.Since(start).Round(time.Second),
				"summary", result.Summary())
			for _, e := range result.Errors {
				logger.Error("import error", "error", e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "Guild ID to import into")
	cmd.Flags().StringVar(&teamID, "team", "", "CTFtime team ID")
	_ = cmd.MarkFlagRequired("guild")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

// --------------------------------------------------------------------------
// events command
// --------------------------------------------------------------------------

func eventsCmd() *cobra.Command {
	var guildID string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List tracked events for a guild",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			st, pool, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			events, err := st.ListByGuild(ctx, guildID)
			if err != nil {
				return err
			}

			now := time.Now()
			fmt.Printf("%-10s %-30s %-20s %-20s %s\n", "ID", "NAME", "START (UTC)", "END (UTC)", "STATUS")
			for _, e := range events {
				fmt.Printf("%-10s %-30s %-20s %-20s %s\n",
					e.ID, e.Name,
					e.Start.UTC().Format("2006-01-02 15:04"),
					e.End.UTC().Format("2006-01-02 15:04"),
					e.StatusAt(now))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "Guild ID to list")
	_ = cmd.MarkFlagRequired("guild")
	return cmd
}

// --------------------------------------------------------------------------
// upcoming command
// --------------------------------------------------------------------------

func upcomingCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "Show the public CTFtime upcoming-events list",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			client := ctftime.New(cfg.CTFtimeBaseURL, logger)
			events, err := client.Upcoming(ctx, limit)
			if err != nil {
				return err
			}

			fmt.Printf("%-40s %-20s %-12s %-8s %s\n", "TITLE", "START (UTC)", "FORMAT", "WEIGHT", "URL")
			for _, e := range events {
				start := e.Start
				if ts, err := e.StartTime(); err == nil {
					start = ts.UTC().Format("2006-01-02 15:04")
				}
				fmt.Printf("%-40.40s %-20s %-12s %-8.2f %s\n",
					e.Title, start, e.Format, e.Weight, e.CTFtimeURL)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of events to show")
	return cmd
}
