package payout

import (
	"context"
	"testing"
	"time"

	"github.com/tariel-x/affiliates/internal/leaderboard"
	"github.com/tariel-x/affiliates/internal/models"
	"github.com/tariel-x/affiliates/internal/monthkey"
	"github.com/tariel-x/affiliates/internal/platform/platformtest"
	"github.com/tariel-x/affiliates/internal/store"
	"github.com/tariel-x/affiliates/internal/store/storetest"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	store      *store.Store
	platform   *platformtest.Platform
	months     *monthkey.Calculator
	dispatcher *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storetest.Open(t)
	months, err := monthkey.New(time.UTC)
	require.NoError(t, err)
	agg := leaderboard.NewAggregator(st, months, nil, 10, 500)
	p := platformtest.New()
	return &fixture{
		store:      st,
		platform:   p,
		months:     months,
		dispatcher: NewDispatcher(agg, st, p, nil),
	}
}

func (f *fixture) qualified(t *testing.T, invitee, inviter string, joined time.Time) {
	t.Helper()
	ctx := context.Background()
	ok, err := f.store.RecordAttribution(ctx, &models.AttributionEntry{
		InviteeDiscordID: invitee,
		InviterDiscordID: inviter,
		Code:             "CODE-" + inviter,
		JoinedAt:         joined,
		MonthKey:         f.months.ForInstant(joined),
	})
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.store.MarkQualified(ctx, invitee, joined.Add(time.Hour))
	require.NoError(t, err)
}

func TestDispatchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.UpsertMember(ctx, "M1", "mia", nil))
	jan := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	f.qualified(t, "J1", "M1", jan)
	f.qualified(t, "J2", "M1", jan.Add(time.Hour))

	report, err := f.dispatcher.Dispatch(ctx, "2026-01")
	require.NoError(t, err)
	require.Equal(t, Report{Month: "2026-01", Eligible: 1, Sent: 1}, report)

	report, err = f.dispatcher.Dispatch(ctx, "2026-01")
	require.NoError(t, err)
	require.Equal(t, Report{Month: "2026-01", Eligible: 1, Skipped: 1}, report)

	dms := f.platform.DMs("M1")
	require.Len(t, dms, 1)
	require.Contains(t, dms[0], "**€10**")
	require.Contains(t, dms[0], "**2 qualified referrals**")

	member, err := f.store.GetMember(ctx, "M1")
	require.NoError(t, err)
	require.Equal(t, "2026-01", *member.LastEarningsDMMonth)
}

func TestDispatchRetriesAfterFailedDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.qualified(t, "J1", "M1", time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	f.platform.SetUnreachable("M1", true)

	report, err := f.dispatcher.Dispatch(ctx, "2026-01")
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.Empty(t, f.platform.DMs("M1"))

	member, err := f.store.GetMember(ctx, "M1")
	require.NoError(t, err)
	require.Nil(t, member.LastEarningsDMMonth)

	f.platform.SetUnreachable("M1", false)
	report, err = f.dispatcher.Dispatch(ctx, "2026-01")
	require.NoError(t, err)
	require.Equal(t, 1, report.Sent)
	require.Len(t, f.platform.DMs("M1"), 1)

	_, err = f.dispatcher.Dispatch(ctx, "2026-01")
	require.NoError(t, err)
	require.Len(t, f.platform.DMs("M1"), 1)
}

func TestDispatchSkipsOlderMonthsAndUnqualified(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.qualified(t, "J1", "M1", time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	f.qualified(t, "J2", "M1", time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))

	ok, err := f.store.RecordAttribution(ctx, &models.AttributionEntry{
		InviteeDiscordID: "J3",
		InviterDiscordID: "M2",
		Code:             "CODE-M2",
		JoinedAt:         time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC),
		MonthKey:         "2026-01",
	})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.dispatcher.Dispatch(ctx, "2026-02")
	require.NoError(t, err)
	require.Len(t, f.platform.DMs("M1"), 1)

	// The marker never moves backwards, so January is not sent late.
	report, err := f.dispatcher.Dispatch(ctx, "2026-01")
	require.NoError(t, err)
	require.Equal(t, Report{Month: "2026-01", Eligible: 1, Skipped: 1}, report)
	require.Len(t, f.platform.DMs("M1"), 1)
	require.Empty(t, f.platform.DMs("M2"))
}

func TestRender(t *testing.T) {
	require.Equal(t,
		"💰 **Affiliate Summary · 2026-01**\n\nYou earned **€5** from **1 qualified referral**.\n\nThanks for helping grow the community 🤝",
		Render("2026-01", 1, 500))
}
