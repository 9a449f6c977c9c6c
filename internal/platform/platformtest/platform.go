// Package platformtest is an in-memory chat platform for tests.
package platformtest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tariel-x/affiliates/internal/platform"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Message struct {
	ChannelID string
	MessageID string
	Content   string
}

type Platform struct {
	mu          sync.Mutex
	invites     map[string]map[string]int // communityID -> code -> uses
	channels    map[string]string         // channelID -> communityID
	members     map[string][]platform.Member
	dms         map[string][]string
	unreachable map[string]bool
	messages    map[string]*Message
	posts       []Message

	// ListErr, when set, is returned by ListInvites.
	ListErr error

	// ListHook runs inside ListInvites before the snapshot is taken.
	ListHook  func(communityID string)
	ListCalls int
}

func New() *Platform {
	return &Platform{
		invites:     make(map[string]map[string]int),
		channels:    make(map[string]string),
		members:     make(map[string][]platform.Member),
		dms:         make(map[string][]string),
		unreachable: make(map[string]bool),
		messages:    make(map[string]*Message),
	}
}

// SetUses sets the cumulative use counter of code.
func (p *Platform) SetUses(communityID, code string, uses int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.communityLocked(communityID)[code] = uses
}

// Use increments the counter of code, like a member joining through it.
func (p *Platform) Use(communityID, code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.communityLocked(communityID)[code]++
}

func (p *Platform) DeleteInvite(communityID, code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.communityLocked(communityID), code)
}

// AddChannel makes channelID a channel of communityID for CreateInvite.
func (p *Platform) AddChannel(communityID, channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[channelID] = communityID
}

func (p *Platform) AddMember(communityID string, m platform.Member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members[communityID] = append(p.members[communityID], m)
}

func (p *Platform) SetUnreachable(userID string, unreachable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unreachable[userID] = unreachable
}

// DMs returns the messages delivered to userID.
func (p *Platform) DMs(userID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.dms[userID]...)
}

// Posts returns every message sent to a channel, in order.
func (p *Platform) Posts() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.posts...)
}

func (p *Platform) Message(messageID string) (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.messages[messageID]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

func (p *Platform) DeleteMessage(messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.messages, messageID)
}

func (p *Platform) ListInvites(ctx context.Context, communityID string) ([]platform.Invite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.ListHook != nil {
		p.ListHook(communityID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListCalls++
	if p.ListErr != nil {
		return nil, p.ListErr
	}

	codes := p.invites[communityID]
	out := make([]platform.Invite, 0, len(codes))
	for code, uses := range codes {
		out = append(out, platform.Invite{Code: code, Uses: uses})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (p *Platform) CreateInvite(ctx context.Context, channelID, reason string) (platform.CreatedInvite, error) {
	if err := ctx.Err(); err != nil {
		return platform.CreatedInvite{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	communityID, ok := p.channels[channelID]
	if !ok {
		return platform.CreatedInvite{}, errors.New("unknown channel")
	}
	code, err := gonanoid.New(10)
	if err != nil {
		return platform.CreatedInvite{}, err
	}
	p.communityLocked(communityID)[code] = 0
	return platform.CreatedInvite{Code: code, URL: "https://discord.gg/" + code}, nil
}

func (p *Platform) SendToUser(ctx context.Context, userID, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unreachable[userID] {
		return platform.ErrUnreachable
	}
	p.dms[userID] = append(p.dms[userID], content)
	return nil
}

func (p *Platform) SendToChannel(ctx context.Context, channelID, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := gonanoid.New(12)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	msg := Message{ChannelID: channelID, MessageID: id, Content: content}
	p.messages[id] = &msg
	p.posts = append(p.posts, msg)
	return id, nil
}

func (p *Platform) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	msg, ok := p.messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return platform.ErrMessageNotFound
	}
	msg.Content = content
	return nil
}

func (p *Platform) ListMembers(ctx context.Context, communityID string) ([]platform.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]platform.Member(nil), p.members[communityID]...), nil
}

func (p *Platform) communityLocked(communityID string) map[string]int {
	codes, ok := p.invites[communityID]
	if !ok {
		codes = make(map[string]int)
		p.invites[communityID] = codes
	}
	return codes
}
