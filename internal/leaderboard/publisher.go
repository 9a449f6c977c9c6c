package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tariel-x/affiliates/internal/models"
	"github.com/tariel-x/affiliates/internal/platform"
	"github.com/tariel-x/affiliates/internal/store"
)

const (
	liveMessageName = "leaderboard_live"
	infoMessageName = "leaderboard_info"
)

// Observer is told about every published leaderboard.
type Observer interface {
	LeaderboardPublished(ctx context.Context, b Boards, final bool)
}

// Publisher keeps one live leaderboard message per channel, edited in place,
// and posts final results to the winners channel.
type Publisher struct {
	messenger        platform.ChannelMessenger
	store            *store.Store
	liveChannelID    string
	winnersChannelID string
	observers        []Observer
	logger           *slog.Logger
}

func NewPublisher(messenger platform.ChannelMessenger, st *store.Store, liveChannelID, winnersChannelID string, logger *slog.Logger, observers ...Observer) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		messenger:        messenger,
		store:            st,
		liveChannelID:    liveChannelID,
		winnersChannelID: winnersChannelID,
		observers:        observers,
		logger:           logger,
	}
}

func (p *Publisher) PublishLive(ctx context.Context, b Boards) error {
	if p.liveChannelID == "" {
		return nil
	}
	if err := p.upsert(ctx, liveMessageName, p.liveChannelID, RenderLive(b)); err != nil {
		return err
	}
	p.notify(ctx, b, false)
	return nil
}

func (p *Publisher) PublishFinal(ctx context.Context, b Boards) error {
	if p.winnersChannelID == "" {
		p.logger.Warn("winners channel not configured, final results not posted", "month", b.Month)
		p.notify(ctx, b, true)
		return nil
	}
	if _, err := p.messenger.SendToChannel(ctx, p.winnersChannelID, RenderFinal(b)); err != nil {
		return fmt.Errorf("post final results for %s: %w", b.Month, err)
	}
	p.logger.Info("final results posted", "month", b.Month, "channel_id", p.winnersChannelID)
	p.notify(ctx, b, true)
	return nil
}

// PublishInfo keeps the program description up to date in channelID.
func (p *Publisher) PublishInfo(ctx context.Context, channelID, content string) error {
	if channelID == "" {
		return nil
	}
	return p.upsert(ctx, infoMessageName, channelID, content)
}

// upsert edits the remembered message, or sends a new one when there is
// none, it lives in another channel, or it was deleted.
func (p *Publisher) upsert(ctx context.Context, name, channelID, content string) error {
	prev, err := p.store.ChannelMessage(ctx, name)
	switch {
	case err == nil && prev.ChannelID == channelID:
		err = p.messenger.EditMessage(ctx, channelID, prev.MessageID, content)
		if err == nil {
			return nil
		}
		if !errors.Is(err, platform.ErrMessageNotFound) {
			return fmt.Errorf("edit %s message: %w", name, err)
		}
		p.logger.Info("bot message gone, sending a new one", "name", name, "message_id", prev.MessageID)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return err
	}

	id, err := p.messenger.SendToChannel(ctx, channelID, content)
	if err != nil {
		return fmt.Errorf("send %s message: %w", name, err)
	}
	return p.store.SaveChannelMessage(ctx, &models.ChannelMessage{
		Name:      name,
		ChannelID: channelID,
		MessageID: id,
	})
}

func (p *Publisher) notify(ctx context.Context, b Boards, final bool) {
	for _, o := range p.observers {
		o.LeaderboardPublished(ctx, b, final)
	}
}
