// Package delivery is the boundary to the chat platform. The engine only
// speaks the Notifier interface; the discord subpackage provides the real
// implementation and tests use fakes.
//
// Delivery is best effort: a refused direct message falls back to the
// guild's notification channel, and if that also fails the reminder for
// this cycle is dropped. No send failure ever propagates as a task failure.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrRefused: the platform declined a direct message (closed DMs).
	ErrRefused = errors.New("delivery: direct message refused")
	// ErrChannelMissing: the configured channel does not exist or is gone.
	ErrChannelMissing = errors.New("delivery: channel missing")
	// ErrPermissionDenied: role or message mutation refused by the platform.
	ErrPermissionDenied = errors.New("delivery: permission denied")
)

// Field is one labeled section of a message.
type Field struct {
	Name  string
	Value string
}

// Message is a platform-independent notification payload.
type Message struct {
	Title  string
	Body   string
	Fields []Field
}

// Notifier delivers messages and manages per-event guild artifacts.
type Notifier interface {
	// SendDirect DMs a user. ErrRefused when the user cannot be reached.
	SendDirect(ctx context.Context, userID string, msg Message) error
	// SendChannel posts to a channel, prefixing mention when non-empty.
	SendChannel(ctx context.Context, channelID, mention string, msg Message) error
	// CreateEventRole creates the per-event participant role.
	CreateEventRole(ctx context.Context, guildID, roleName string) error
	// DeleteEventRole removes the per-event role when the event is purged.
	DeleteEventRole(ctx context.Context, guildID, roleName string) error
}

// Send attempts direct delivery and degrades to the guild channel with a
// mention. Returns an error only when both paths failed; the caller logs
// and moves on — a lost reminder is acceptable within one cycle.
func Send(ctx context.Context, n Notifier, userID, channelID string, msg Message, logger *slog.Logger) error {
	err := n.SendDirect(ctx, userID, msg)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrRefused) {
		return fmt.Errorf("send direct to %s: %w", userID, err)
	}

	if channelID == "" {
		return fmt.Errorf("direct refused for %s and no fallback channel", userID)
	}
	logger.Info("Direct message refused, falling back to channel",
		"user_id", userID, "channel_id", channelID)
	if err := n.SendChannel(ctx, channelID, "<@"+userID+">", msg); err != nil {
		return fmt.Errorf("channel fallback for %s: %w", userID, err)
	}
	return nil
}
