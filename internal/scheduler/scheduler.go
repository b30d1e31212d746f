// Package scheduler runs the periodic engine tasks as Go tickers: the
// reminder sweep, the planned-event import sweep, and the ended-event purge.
//
// Each task runs inside its own loop and executes synchronously on its
// tick, so two instances of the same task can never overlap; a slow tick
// simply delays the next one. Tasks are independent units of concurrency
// and never block each other.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/delivery"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/importer"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/store"
)

// Config controls task intervals. Zero duration disables a task.
type Config struct {
	ReminderInterval time.Duration // offset evaluation sweep
	ImportInterval   time.Duration // planned-event import sweep
	PurgeInterval    time.Duration // ended-event purge sweep
	Workers          int           // per-guild fan-out width for the reminder sweep
}

// DefaultConfig returns production defaults. The reminder interval must
// exceed the widest tolerance window's full span (ten minutes end to end),
// or an offset stays in-window across consecutive ticks and fires twice.
// Missing a window when a tick lands badly is accepted.
func DefaultConfig() Config {
	return Config{
		ReminderInterval: 11 * time.Minute,
		ImportInterval:   time.Hour,
		PurgeInterval:    time.Hour,
		Workers:          4,
	}
}

// Scheduler owns the periodic tasks. Construct with New; all dependencies
// are explicit — there is no package-level state.
type Scheduler struct {
	st       store.Store
	notifier delivery.Notifier
	importer *importer.Importer
	cfg      Config
	logger   *slog.Logger

	// now is injectable so tests can pin the clock.
	now func() time.Time
}

// New creates a scheduler around the shared store.
func New(st store.Store, notifier delivery.Notifier, im *importer.Importer, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Scheduler{
		st:       st,
		notifier: notifier,
		importer: im,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches all configured task loops and blocks until ctx is
// cancelled. Intended to be called with `go`.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Scheduler started",
		"reminder", s.cfg.ReminderInterval,
		"import", s.cfg.ImportInterval,
		"purge", s.cfg.PurgeInterval,
		"workers", s.cfg.Workers)

	tickers := make([]*time.Ticker, 0, 3)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if s.cfg.ReminderInterval > 0 {
		t := time.NewTicker(s.cfg.ReminderInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() {
			result := s.SweepReminders(ctx)
			if result.RemindersSent+result.RemindersFailed > 0 || len(result.Errors) > 0 {
				s.logger.Info("Reminder sweep", "summary", result.Summary())
			}
		})
	}

	if s.cfg.ImportInterval > 0 && s.importer != nil {
		t := time.NewTicker(s.cfg.ImportInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() {
			s.importer.SweepAll(ctx)
		})
	}

	if s.cfg.PurgeInterval > 0 {
		t := time.NewTicker(s.cfg.PurgeInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() {
			result := s.SweepEnded(ctx)
			if result.Purged > 0 || len(result.Errors) > 0 {
				s.logger.Info("Purge sweep", "summary", result.Summary())
			}
		})
	}

	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// runLoop executes fn on every tick until ctx is cancelled. fn runs in the
// loop goroutine, so ticks of the same task never overlap.
func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}
