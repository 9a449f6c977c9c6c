// Package discord connects the affiliate engine to a Discord guild: a REST
// adapter implementing the platform interfaces, and the gateway event and
// slash command wiring.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tariel-x/affiliates/internal/platform"

	"github.com/bwmarrin/discordgo"
)

const membersPageSize = 1000

// Client implements the platform interfaces over a discordgo session.
type Client struct {
	session *discordgo.Session
}

func NewClient(session *discordgo.Session) *Client {
	return &Client{session: session}
}

func (c *Client) ListInvites(ctx context.Context, guildID string) ([]platform.Invite, error) {
	invites, err := c.session.GuildInvites(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]platform.Invite, 0, len(invites))
	for _, inv := range invites {
		if inv == nil || inv.Code == "" {
			continue
		}
		out = append(out, platform.Invite{Code: inv.Code, Uses: inv.Uses})
	}
	return out, nil
}

func (c *Client) CreateInvite(ctx context.Context, channelID, reason string) (platform.CreatedInvite, error) {
	inv, err := c.session.ChannelInviteCreate(channelID, discordgo.Invite{
		MaxAge:  0,
		MaxUses: 0,
		Unique:  true,
	}, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return platform.CreatedInvite{}, mapError(err)
	}
	return platform.CreatedInvite{Code: inv.Code, URL: InviteURL(inv.Code)}, nil
}

func (c *Client) SendToUser(ctx context.Context, userID, content string) error {
	ch, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return mapError(err)
	}
	if _, err := c.session.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx)); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) SendToChannel(ctx context.Context, channelID, content string) (string, error) {
	msg, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	return msg.ID, nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	if _, err := c.session.ChannelMessageEdit(channelID, messageID, content, discordgo.WithContext(ctx)); err != nil {
		return mapError(err)
	}
	return nil
}

// ListMembers pages through the whole guild. It needs the server members
// intent.
func (c *Client) ListMembers(ctx context.Context, guildID string) ([]platform.Member, error) {
	var out []platform.Member
	after := ""
	for {
		page, err := c.session.GuildMembers(guildID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapError(err)
		}
		for _, m := range page {
			if m.User == nil || m.User.Bot {
				continue
			}
			out = append(out, platform.Member{ID: m.User.ID, Username: m.User.Username})
		}
		if len(page) < membersPageSize {
			return out, nil
		}
		last := page[len(page)-1]
		if last.User == nil {
			return out, nil
		}
		after = last.User.ID
	}
}

func InviteURL(code string) string {
	return "https://discord.gg/" + code
}

// mapError translates Discord REST failures into platform errors.
func mapError(err error) error {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownMessage:
			return fmt.Errorf("%w: %w", platform.ErrMessageNotFound, err)
		case discordgo.ErrCodeCannotSendMessagesToThisUser,
			discordgo.ErrCodeUnknownUser,
			discordgo.ErrCodeUnknownChannel:
			return fmt.Errorf("%w: %w", platform.ErrUnreachable, err)
		}
	}
	if rest.Response != nil && rest.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %w", platform.ErrUnreachable, err)
	}
	return err
}
