// Package bot is the Discord-facing command surface. Text commands and
// button interactions both funnel into the Handler, which owns all of the
// store logic; this file is only transport plumbing.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Bot owns the gateway session and routes events to the Handler.
type Bot struct {
	session *discordgo.Session
	handler *Handler
	prefix  string
	guilds  map[string]bool // allowlist; empty means every guild
	logger  *slog.Logger
}

// New builds a Bot on an existing session. guildIDs may be empty.
func New(session *discordgo.Session, handler *Handler, prefix string, guildIDs []string, logger *slog.Logger) *Bot {
	allow := make(map[string]bool, len(guildIDs))
	for _, g := range guildIDs {
		allow[g] = true
	}
	return &Bot{
		session: session,
		handler: handler,
		prefix:  prefix,
		guilds:  allow,
		logger:  logger,
	}
}

// Start registers handlers and opens the gateway connection. Blocks until
// ctx is cancelled, then closes the session.
func (b *Bot) Start(ctx context.Context) error {
	b.session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	removeMsg := b.session.AddHandler(b.onMessage)
	defer removeMsg()
	removeInteraction := b.session.AddHandler(b.onInteraction)
	defer removeInteraction()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	b.logger.Info("Discord gateway connected")

	<-ctx.Done()
	b.logger.Info("Closing Discord gateway")
	return b.session.Close()
}

func (b *Bot) allowed(guildID string) bool {
	return len(b.guilds) == 0 || b.guilds[guildID]
}

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" || !b.allowed(m.GuildID) {
		return
	}
	if !strings.HasPrefix(m.Content, b.prefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(m.Content, b.prefix))
	if len(fields) == 0 {
		return
	}
	command := strings.ToLower(fields[0])
	args := fields[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inv := Invocation{
		GuildID:   m.GuildID,
		UserID:    m.Author.ID,
		ChannelID: m.ChannelID,
		IsAdmin:   b.isAdmin(s, m.GuildID, m.ChannelID, m.Author.ID),
	}

	reply := b.handler.Execute(ctx, inv, command, args)
	if reply == "" {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		b.logger.Warn("Could not send reply",
			"guild_id", m.GuildID, "channel_id", m.ChannelID, "error", err)
	}
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent || !b.allowed(i.GuildID) {
		return
	}
	userID := interactionUserID(i)
	if userID == "" {
		return
	}

	action, err := DecodeAction(i.MessageComponentData().CustomID)
	if err != nil {
		return // not one of ours
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inv := Invocation{
		GuildID:   i.GuildID,
		UserID:    userID,
		ChannelID: i.ChannelID,
		IsAdmin:   b.isAdmin(s, i.GuildID, i.ChannelID, userID),
	}
	reply := b.handler.ApplyAction(ctx, inv, action)

	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: reply,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Warn("Could not respond to interaction",
			"guild_id", i.GuildID, "error", err)
	}
}

func (b *Bot) isAdmin(s *discordgo.Session, guildID, channelID, userID string) bool {
	perms, err := s.UserChannelPermissions(userID, channelID)
	if err != nil {
		// Fall back to member permissions resolved from guild roles.
		member, merr := s.GuildMember(guildID, userID)
		if merr != nil {
			return false
		}
		guild, gerr := s.State.Guild(guildID)
		if gerr != nil {
			return false
		}
		for _, roleID := range member.Roles {
			for _, role := range guild.Roles {
				if role.ID == roleID && role.Permissions&discordgo.PermissionAdministrator != 0 {
					return true
				}
			}
		}
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
