package attribution

import (
	"context"
	"log/slog"
	"time"

	"github.com/tariel-x/affiliates/internal/models"
	"github.com/tariel-x/affiliates/internal/store"
)

// Tracker handles member join events end to end: member upsert,
// resolution and logging. Failures are logged and the join is dropped.
type Tracker struct {
	store    *store.Store
	resolver *Resolver
	writer   *Writer
	logger   *slog.Logger
}

func NewTracker(store *store.Store, resolver *Resolver, writer *Writer, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, resolver: resolver, writer: writer, logger: logger}
}

// MemberJoined processes one join. The returned entry is nil unless a new
// attribution was written.
func (t *Tracker) MemberJoined(ctx context.Context, communityID, memberID, username string, joinedAt time.Time) (Result, *models.AttributionEntry) {
	log := t.logger.With("community_id", communityID, "member_id", memberID)

	if err := t.store.UpsertMember(ctx, memberID, username, &joinedAt); err != nil {
		log.Error("member upsert on join failed", "error", err)
	}

	res, err := t.resolver.Resolve(ctx, communityID)
	if err != nil {
		log.Warn("join resolution failed", "outcome", res.Outcome.String(), "error", err)
		return res, nil
	}

	switch res.Outcome {
	case OutcomeAttributed:
	case OutcomeAmbiguous:
		log.Info("join not attributed", "outcome", res.Outcome.String(), "delta", res.Delta, "tied", res.Tied)
		return res, nil
	case OutcomeUnknownOwner:
		log.Info("join not attributed", "outcome", res.Outcome.String(), "code", res.Code)
		return res, nil
	default:
		log.Info("join not attributed", "outcome", res.Outcome.String())
		return res, nil
	}

	entry, skip, err := t.writer.Record(ctx, memberID, res, joinedAt)
	if err != nil {
		log.Error("attribution log write failed, join dropped", "code", res.Code, "inviter_id", res.InviterID, "error", err)
		return res, nil
	}
	if entry == nil {
		log.Info("attribution skipped", "reason", string(skip), "code", res.Code, "inviter_id", res.InviterID)
		return res, nil
	}

	log.Info("join attributed", "code", res.Code, "inviter_id", res.InviterID, "delta", res.Delta, "month", entry.MonthKey)
	return res, entry
}
