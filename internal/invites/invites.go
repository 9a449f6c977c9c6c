// Package invites issues personal invite links. Every member gets at most
// one code, created lazily on first request and never changed afterwards.
package invites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tariel-x/affiliates/internal/models"
	"github.com/tariel-x/affiliates/internal/platform"
	"github.com/tariel-x/affiliates/internal/snapshot"
	"github.com/tariel-x/affiliates/internal/store"

	"golang.org/x/sync/singleflight"
)

var ErrNoChannel = errors.New("affiliate channel is not configured")

type Service struct {
	store     *store.Store
	creator   platform.InviteCreator
	snapshots *snapshot.Store
	channelID string
	logger    *slog.Logger

	group singleflight.Group
}

func NewService(st *store.Store, creator platform.InviteCreator, snapshots *snapshot.Store, channelID string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		creator:   creator,
		snapshots: snapshots,
		channelID: channelID,
		logger:    logger,
	}
}

// GetOrCreate returns the member's invite, creating it on the affiliate
// channel when none exists. created reports whether a new code was issued.
// Concurrent calls for the same member share one creation.
func (s *Service) GetOrCreate(ctx context.Context, communityID, memberID, username string) (rec *models.InviteRecord, created bool, err error) {
	if err := s.store.UpsertMember(ctx, memberID, username, nil); err != nil {
		return nil, false, err
	}

	v, err, _ := s.group.Do(memberID, func() (any, error) {
		return s.getOrCreate(ctx, memberID, username)
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(result)

	// Keep the baseline current so the next join through this code has a delta.
	if _, err := s.snapshots.Refresh(ctx, communityID); err != nil {
		s.logger.Warn("invite snapshot refresh failed", "community_id", communityID, "error", err)
	}
	return res.rec, res.created, nil
}

type result struct {
	rec     *models.InviteRecord
	created bool
}

func (s *Service) getOrCreate(ctx context.Context, memberID, username string) (result, error) {
	rec, err := s.store.InviteByOwner(ctx, memberID)
	if err == nil {
		return result{rec: rec}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return result{}, fmt.Errorf("lookup invite of %s: %w", memberID, err)
	}

	if s.channelID == "" {
		return result{}, ErrNoChannel
	}

	inv, err := s.creator.CreateInvite(ctx, s.channelID, fmt.Sprintf("Affiliate invite for %s (%s)", username, memberID))
	if err != nil {
		return result{}, fmt.Errorf("create platform invite for %s: %w", memberID, err)
	}

	rec = &models.InviteRecord{
		Code:           inv.Code,
		OwnerDiscordID: memberID,
		URL:            inv.URL,
	}
	if err := s.store.CreateInvite(ctx, rec); err != nil {
		return result{}, err
	}

	s.logger.Info("personal invite created", "member_id", memberID, "code", rec.Code)
	return result{rec: rec, created: true}, nil
}
