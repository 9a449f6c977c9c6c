package attribution

import (
	"context"
	"errors"
	"time"

	"github.com/tariel-x/affiliates/internal/models"
	"github.com/tariel-x/affiliates/internal/monthkey"
	"github.com/tariel-x/affiliates/internal/store"
)

// ErrNotAttributed is returned when Record is given a non-attributed result.
var ErrNotAttributed = errors.New("result is not an attribution")

// SkipReason explains why Record wrote nothing.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipAlreadyInvited SkipReason = "already_invited"
	SkipSelfReferral   SkipReason = "self_referral"
)

// Writer appends attributions to the log. The first attribution of an
// invitee wins; later ones are skipped.
type Writer struct {
	store  *store.Store
	months *monthkey.Calculator
}

func NewWriter(store *store.Store, months *monthkey.Calculator) *Writer {
	return &Writer{store: store, months: months}
}

// Record stores the attribution of inviteeID. It returns the new entry, or
// a nil entry and the reason it was skipped.
func (w *Writer) Record(ctx context.Context, inviteeID string, res Result, joinedAt time.Time) (*models.AttributionEntry, SkipReason, error) {
	if res.Outcome != OutcomeAttributed || res.InviterID == "" {
		return nil, SkipNone, ErrNotAttributed
	}
	if res.InviterID == inviteeID {
		return nil, SkipSelfReferral, nil
	}

	entry := &models.AttributionEntry{
		InviteeDiscordID: inviteeID,
		InviterDiscordID: res.InviterID,
		Code:             res.Code,
		JoinedAt:         joinedAt,
		MonthKey:         w.months.ForInstant(joinedAt),
	}
	recorded, err := w.store.RecordAttribution(ctx, entry)
	if err != nil {
		return nil, SkipNone, err
	}
	if !recorded {
		return nil, SkipAlreadyInvited, nil
	}
	return entry, SkipNone, nil
}
