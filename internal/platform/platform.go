// Package platform declares what the affiliate engine needs from the chat
// platform hosting the community. The discord package implements it for
// production; platformtest provides an in-memory fake.
package platform

import (
	"context"
	"errors"
)

var (
	// ErrUnreachable means a message could not be delivered to its recipient
	// (closed DMs, unknown user, missing channel).
	ErrUnreachable = errors.New("recipient unreachable")
	// ErrMessageNotFound is returned when editing a message that no longer exists.
	ErrMessageNotFound = errors.New("message not found")
)

// Invite is the live state of one invite code.
type Invite struct {
	Code string
	Uses int
}

type CreatedInvite struct {
	Code string
	URL  string
}

type Member struct {
	ID       string
	Username string
}

type InviteLister interface {
	ListInvites(ctx context.Context, communityID string) ([]Invite, error)
}

type InviteCreator interface {
	// CreateInvite creates a permanent, unlimited, unique invite on channelID.
	CreateInvite(ctx context.Context, channelID, reason string) (CreatedInvite, error)
}

type UserMessenger interface {
	SendToUser(ctx context.Context, userID, content string) error
}

type ChannelMessenger interface {
	SendToChannel(ctx context.Context, channelID, content string) (messageID string, err error)
	EditMessage(ctx context.Context, channelID, messageID, content string) error
}

type MemberLister interface {
	ListMembers(ctx context.Context, communityID string) ([]Member, error)
}
