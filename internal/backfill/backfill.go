// Package backfill copies the current community roster into the member
// table so names resolve for members who joined before the bot.
package backfill

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tariel-x/affiliates/internal/models"
	"github.com/tariel-x/affiliates/internal/platform"
	"github.com/tariel-x/affiliates/internal/store"
)

type Backfiller struct {
	lister    platform.MemberLister
	store     *store.Store
	batchSize int
	logger    *slog.Logger
}

func New(lister platform.MemberLister, st *store.Store, batchSize int, logger *slog.Logger) *Backfiller {
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfiller{lister: lister, store: st, batchSize: batchSize, logger: logger}
}

// Run upserts every member of communityID and returns how many were written.
// Existing inviter fields and payout markers are left untouched.
func (b *Backfiller) Run(ctx context.Context, communityID string) (int, error) {
	members, err := b.lister.ListMembers(ctx, communityID)
	if err != nil {
		return 0, fmt.Errorf("list members of %s: %w", communityID, err)
	}
	b.logger.Info("backfill started", "community_id", communityID, "members", len(members))

	written := 0
	for start := 0; start < len(members); start += b.batchSize {
		end := min(start+b.batchSize, len(members))
		batch := make([]models.Member, 0, end-start)
		for _, m := range members[start:end] {
			if m.ID == "" {
				continue
			}
			batch = append(batch, models.Member{DiscordID: m.ID, Username: m.Username})
		}
		if err := b.store.UpsertMembers(ctx, batch, b.batchSize); err != nil {
			return written, err
		}
		written += len(batch)
		b.logger.Debug("backfill progress", "community_id", communityID, "written", written, "total", len(members))
	}

	b.logger.Info("backfill complete", "community_id", communityID, "written", written)
	return written, nil
}
