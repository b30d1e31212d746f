// Package discord implements delivery.Notifier on a discordgo session.
package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/delivery"
)

const embedColor = 0x2ECC71

// Notifier sends messages and manages roles through a live Discord session.
type Notifier struct {
	session *discordgo.Session
}

var _ delivery.Notifier = (*Notifier)(nil)

func New(session *discordgo.Session) *Notifier {
	return &Notifier{session: session}
}

// SendDirect opens (or reuses) the user's DM channel and posts the message.
// Closed DMs surface as delivery.ErrRefused so callers can fall back.
func (n *Notifier) SendDirect(ctx context.Context, userID string, msg delivery.Message) error {
	ch, err := n.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		if isDiscordCode(err, discordgo.ErrCodeCannotSendMessagesToThisUser) {
			return delivery.ErrRefused
		}
		return fmt.Errorf("open dm channel: %w", err)
	}

	_, err = n.session.ChannelMessageSendEmbed(ch.ID, embed(msg), discordgo.WithContext(ctx))
	if err != nil {
		if isDiscordCode(err, discordgo.ErrCodeCannotSendMessagesToThisUser) {
			return delivery.ErrRefused
		}
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}

// SendChannel posts to a guild channel, prefixing mention when non-empty.
func (n *Notifier) SendChannel(ctx context.Context, channelID, mention string, msg delivery.Message) error {
	_, err := n.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: mention,
		Embeds:  []*discordgo.MessageEmbed{embed(msg)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		switch {
		case isDiscordCode(err, discordgo.ErrCodeUnknownChannel):
			return delivery.ErrChannelMissing
		case isDiscordCode(err, discordgo.ErrCodeMissingPermissions):
			return delivery.ErrPermissionDenied
		}
		return fmt.Errorf("send to channel %s: %w", channelID, err)
	}
	return nil
}

// CreateEventRole creates the participant role unless one with the same
// name already exists.
func (n *Notifier) CreateEventRole(ctx context.Context, guildID, roleName string) error {
	existing, err := n.findRole(ctx, guildID, roleName)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	mentionable := true
	_, err = n.session.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        roleName,
		Mentionable: &mentionable,
	}, discordgo.WithContext(ctx))
	if err != nil {
		if isDiscordCode(err, discordgo.ErrCodeMissingPermissions) {
			return delivery.ErrPermissionDenied
		}
		return fmt.Errorf("create role %q: %w", roleName, err)
	}
	return nil
}

// DeleteEventRole removes the role by name. A role that is already gone is
// not an error.
func (n *Notifier) DeleteEventRole(ctx context.Context, guildID, roleName string) error {
	role, err := n.findRole(ctx, guildID, roleName)
	if err != nil {
		return err
	}
	if role == nil {
		return nil
	}

	if err := n.session.GuildRoleDelete(guildID, role.ID, discordgo.WithContext(ctx)); err != nil {
		if isDiscordCode(err, discordgo.ErrCodeMissingPermissions) {
			return delivery.ErrPermissionDenied
		}
		return fmt.Errorf("delete role %q: %w", roleName, err)
	}
	return nil
}

// AssignEventRole grants the named role to a member, creating nothing.
func (n *Notifier) AssignEventRole(ctx context.Context, guildID, userID, roleName string) error {
	role, err := n.findRole(ctx, guildID, roleName)
	if err != nil {
		return err
	}
	if role == nil {
		return nil
	}
	if err := n.session.GuildMemberRoleAdd(guildID, userID, role.ID, discordgo.WithContext(ctx)); err != nil {
		if isDiscordCode(err, discordgo.ErrCodeMissingPermissions) {
			return delivery.ErrPermissionDenied
		}
		return fmt.Errorf("assign role %q: %w", roleName, err)
	}
	return nil
}

// RemoveEventRole strips the named role from a member.
func (n *Notifier) RemoveEventRole(ctx context.Context, guildID, userID, roleName string) error {
	role, err := n.findRole(ctx, guildID, roleName)
	if err != nil || role == nil {
		return err
	}
	if err := n.session.GuildMemberRoleRemove(guildID, userID, role.ID, discordgo.WithContext(ctx)); err != nil {
		if isDiscordCode(err, discordgo.ErrCodeMissingPermissions) {
			return delivery.ErrPermissionDenied
		}
		return fmt.Errorf("remove role %q: %w", roleName, err)
	}
	return nil
}

func (n *Notifier) findRole(ctx context.Context, guildID, roleName string) (*discordgo.Role, error) {
	roles, err := n.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	for _, r := range roles {
		if r.Name == roleName {
			return r, nil
		}
	}
	return nil, nil
}

func embed(msg delivery.Message) *discordgo.MessageEmbed {
	fields := make([]*discordgo.MessageEmbedField, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  f.Name,
			Value: f.Value,
		})
	}
	return &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		Fields:      fields,
		Color:       embedColor,
	}
}

func isDiscordCode(err error, code int) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return restErr.Message.Code == code
	}
	return false
}
