package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tariel-x/affiliates/internal/attribution"
	"github.com/tariel-x/affiliates/internal/invites"
	"github.com/tariel-x/affiliates/internal/leaderboard"
	"github.com/tariel-x/affiliates/internal/snapshot"

	"github.com/bwmarrin/discordgo"
)

const (
	CommandInvite  = "invite"
	CommandMyStats = "mystats"

	Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsGuildInvites

	defaultEventTimeout = 30 * time.Second
)

var commands = []*discordgo.ApplicationCommand{
	{Name: CommandInvite, Description: "Get your personal affiliate invite link"},
	{Name: CommandMyStats, Description: "Show your affiliate invites and earnings"},
}

type Deps struct {
	Tracker         *attribution.Tracker
	Snapshots       *snapshot.Store
	Invites         *invites.Service
	Stats           *leaderboard.Aggregator
	Names           *leaderboard.Names
	RefreshInterval time.Duration
	EventTimeout    time.Duration
}

// Bot routes gateway events into the engine. When guildID is set, events
// from any other guild are ignored.
type Bot struct {
	session *discordgo.Session
	guildID string
	deps    Deps
	logger  *slog.Logger
	nowFn   func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	watched map[string]struct{}
}

func NewBot(session *discordgo.Session, guildID string, deps Deps, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.EventTimeout <= 0 {
		deps.EventTimeout = defaultEventTimeout
	}
	return &Bot{
		session: session,
		guildID: guildID,
		deps:    deps,
		logger:  logger,
		nowFn:   time.Now,
		ctx:     context.Background(),
		watched: make(map[string]struct{}),
	}
}

// Run opens the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	b.session.Identify.Intents = Intents
	removers := []func(){
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onGuildCreate),
		b.session.AddHandler(b.onMemberAdd),
		b.session.AddHandler(b.onInviteCreate),
		b.session.AddHandler(b.onInviteDelete),
		b.session.AddHandler(b.onInteraction),
	}
	defer func() {
		for _, remove := range removers {
			remove()
		}
	}()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	b.logger.Info("discord gateway connected")

	<-ctx.Done()

	if err := b.session.Close(); err != nil {
		b.logger.Warn("failed to close discord gateway", "error", err)
	}
	return nil
}

func (b *Bot) allowed(guildID string) bool {
	return guildID != "" && (b.guildID == "" || b.guildID == guildID)
}

func (b *Bot) eventContext() (context.Context, context.CancelFunc) {
	b.mu.Lock()
	parent := b.ctx
	b.mu.Unlock()
	return context.WithTimeout(parent, b.deps.EventTimeout)
}

// watch seeds the guild's snapshot and starts its periodic refresher once.
func (b *Bot) watch(ctx context.Context, guildID string) {
	if !b.allowed(guildID) {
		return
	}

	b.mu.Lock()
	_, seen := b.watched[guildID]
	b.watched[guildID] = struct{}{}
	base := b.ctx
	b.mu.Unlock()
	if seen {
		return
	}

	if _, err := b.deps.Snapshots.Refresh(ctx, guildID); err != nil {
		b.logger.Warn("initial invite refresh failed", "community_id", guildID, "error", err)
	}
	if b.deps.RefreshInterval > 0 {
		go b.deps.Snapshots.RunRefresher(base, guildID, b.deps.RefreshInterval)
	}
	b.logger.Info("watching community invites", "community_id", guildID)
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	ctx, cancel := b.eventContext()
	defer cancel()

	for _, g := range r.Guilds {
		if !b.allowed(g.ID) {
			continue
		}
		if _, err := s.ApplicationCommandBulkOverwrite(r.User.ID, g.ID, commands, discordgo.WithContext(ctx)); err != nil {
			b.logger.Error("failed to register commands", "community_id", g.ID, "error", err)
		}
		b.watch(ctx, g.ID)
	}
}

func (b *Bot) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	ctx, cancel := b.eventContext()
	defer cancel()
	b.watch(ctx, g.ID)
}

func (b *Bot) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil {
		return
	}
	ctx, cancel := b.eventContext()
	defer cancel()
	b.handleJoin(ctx, m.GuildID, m.User, m.JoinedAt)
}

func (b *Bot) onInviteCreate(_ *discordgo.Session, e *discordgo.InviteCreate) {
	ctx, cancel := b.eventContext()
	defer cancel()
	b.handleInviteChange(ctx, e.GuildID)
}

func (b *Bot) onInviteDelete(_ *discordgo.Session, e *discordgo.InviteDelete) {
	ctx, cancel := b.eventContext()
	defer cancel()
	b.handleInviteChange(ctx, e.GuildID)
}

func (b *Bot) handleJoin(ctx context.Context, guildID string, user *discordgo.User, joinedAt time.Time) {
	if !b.allowed(guildID) || user == nil || user.Bot {
		return
	}
	if joinedAt.IsZero() {
		joinedAt = b.nowFn()
	}
	b.deps.Tracker.MemberJoined(ctx, guildID, user.ID, user.Username, joinedAt)
	b.forget(user.ID)
}

// forget drops a cached display name after the member's username was
// written.
func (b *Bot) forget(memberID string) {
	if b.deps.Names != nil {
		b.deps.Names.Forget(memberID)
	}
}

func (b *Bot) handleInviteChange(ctx context.Context, guildID string) {
	if !b.allowed(guildID) {
		return
	}
	if _, err := b.deps.Snapshots.Refresh(ctx, guildID); err != nil {
		b.logger.Warn("invite refresh after invite change failed", "community_id", guildID, "error", err)
	}
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}

	ctx, cancel := b.eventContext()
	defer cancel()

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx))
	if err != nil {
		b.logger.Warn("failed to acknowledge command", "error", err)
		return
	}

	content := b.reply(ctx, i.GuildID, user, i.ApplicationCommandData().Name)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}, discordgo.WithContext(ctx)); err != nil {
		b.logger.Warn("failed to answer command", "error", err)
	}
}

// reply produces the ephemeral answer to a slash command.
func (b *Bot) reply(ctx context.Context, guildID string, user *discordgo.User, command string) string {
	if user == nil || !b.allowed(guildID) {
		return "This command only works inside the community."
	}

	switch command {
	case CommandInvite:
		rec, created, err := b.deps.Invites.GetOrCreate(ctx, guildID, user.ID, user.Username)
		if errors.Is(err, invites.ErrNoChannel) {
			return "Affiliate invites are not enabled yet."
		}
		if err != nil {
			b.logger.Error("failed to issue invite", "member_id", user.ID, "error", err)
			return "Could not create your invite link right now. Please try again later."
		}
		b.forget(user.ID)
		if created {
			return fmt.Sprintf("Here is your personal invite link: %s\nEvery member who joins through it counts for you.", rec.URL)
		}
		return fmt.Sprintf("Your personal invite link: %s", rec.URL)

	case CommandMyStats:
		stats, err := b.deps.Stats.MemberStats(ctx, user.ID, b.nowFn())
		if err != nil {
			b.logger.Error("failed to load member stats", "member_id", user.ID, "error", err)
			return "Could not load your stats right now. Please try again later."
		}
		return leaderboard.RenderStats(stats)
	}
	return "Unknown command."
}
