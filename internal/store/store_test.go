package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/tariel-x/affiliates/internal/models"
	"github.com/tariel-x/affiliates/internal/store"
	"github.com/tariel-x/affiliates/internal/store/storetest"

	"github.com/stretchr/testify/require"
)

func entry(invitee, inviter, month string, joined time.Time) *models.AttributionEntry {
	return &models.AttributionEntry{
		InviteeDiscordID: invitee,
		InviterDiscordID: inviter,
		Code:             "CODE-" + inviter,
		JoinedAt:         joined,
		MonthKey:         month,
	}
}

func TestRecordAttributionIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	joined := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	ok, err := st.RecordAttribution(ctx, entry("U1", "M1", "2026-03", joined))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.RecordAttribution(ctx, entry("U1", "M2", "2026-03", joined.Add(time.Hour)))
	require.NoError(t, err)
	require.False(t, ok)

	member, err := st.GetMember(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, "M1", *member.InvitedByDiscordID)
	require.Equal(t, "CODE-M1", *member.InviteCodeUsed)

	entries, err := st.EntriesForInvitee(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "M1", entries[0].InviterDiscordID)
}

func TestUpsertMemberKeepsAttribution(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	joined := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, st.UpsertMember(ctx, "U1", "ulla", &joined))
	_, err := st.RecordAttribution(ctx, entry("U1", "M1", "2026-03", joined))
	require.NoError(t, err)

	require.NoError(t, st.UpsertMember(ctx, "U1", "ulla-renamed", nil))
	require.NoError(t, st.UpsertMembers(ctx, []models.Member{{DiscordID: "U1", Username: "ulla-batch"}, {DiscordID: "U2", Username: "udo"}}, 1))

	member, err := st.GetMember(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, "ulla-batch", member.Username)
	require.NotNil(t, member.JoinedAt)
	require.True(t, joined.Equal(*member.JoinedAt))
	require.Equal(t, "M1", *member.InvitedByDiscordID)

	_, err = st.GetMember(ctx, "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestEntriesForMonths(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	base := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)

	for i, m := range []string{"2026-01", "2026-02", "2026-03"} {
		_, err := st.RecordAttribution(ctx, entry("U"+m, "M1", m, base.AddDate(0, i, 0)))
		require.NoError(t, err)
	}

	entries, err := st.EntriesForMonths(ctx, "2026-02", "2026-01")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "2026-01", entries[0].MonthKey)

	none, err := st.EntriesForMonths(ctx)
	require.NoError(t, err)
	require.Empty(t, none)

	byInviter, err := st.EntriesForInviter(ctx, "M1")
	require.NoError(t, err)
	require.Len(t, byInviter, 3)
}

func TestMarkQualifiedOnce(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	_, err := st.RecordAttribution(ctx, entry("U1", "M1", "2026-03", time.Now()))
	require.NoError(t, err)

	changed, err := st.MarkQualified(ctx, "U1", time.Now())
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = st.MarkQualified(ctx, "U1", time.Now())
	require.NoError(t, err)
	require.False(t, changed)

	_, err = st.MarkQualified(ctx, "U9", time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkEarningsNotifiedOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	require.NoError(t, st.EnsureMember(ctx, "M1"))

	ok, err := st.MarkEarningsNotified(ctx, "M1", "2026-02")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.MarkEarningsNotified(ctx, "M1", "2026-02")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = st.MarkEarningsNotified(ctx, "M1", "2026-01")
	require.NoError(t, err)
	require.False(t, ok)

	member, err := st.GetMember(ctx, "M1")
	require.NoError(t, err)
	require.Equal(t, "2026-02", *member.LastEarningsDMMonth)
}

func TestInviteRecords(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	rec := &models.InviteRecord{Code: "abc", OwnerDiscordID: "M1", URL: "https://discord.gg/abc"}
	require.NoError(t, st.CreateInvite(ctx, rec))

	// A second invite for the same owner violates the unique owner index.
	require.Error(t, st.CreateInvite(ctx, &models.InviteRecord{Code: "def", OwnerDiscordID: "M1", URL: "x"}))

	byOwner, err := st.InviteByOwner(ctx, "M1")
	require.NoError(t, err)
	require.Equal(t, "abc", byOwner.Code)

	_, err = st.InviteByCode(ctx, "zzz")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestBotState(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)

	_, err := st.LoadRolloverState(ctx, "leaderboard")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.SaveRolloverState(ctx, &models.RolloverState{Name: "leaderboard", CurrentMonth: "2026-03"}))
	require.NoError(t, st.SaveRolloverState(ctx, &models.RolloverState{Name: "leaderboard", CurrentMonth: "2026-04", LastClosedMonth: "2026-03"}))
	state, err := st.LoadRolloverState(ctx, "leaderboard")
	require.NoError(t, err)
	require.Equal(t, "2026-04", state.CurrentMonth)
	require.Equal(t, "2026-03", state.LastClosedMonth)

	require.NoError(t, st.SaveChannelMessage(ctx, &models.ChannelMessage{Name: "live", ChannelID: "c1", MessageID: "m1"}))
	require.NoError(t, st.SaveChannelMessage(ctx, &models.ChannelMessage{Name: "live", ChannelID: "c1", MessageID: "m2"}))
	msg, err := st.ChannelMessage(ctx, "live")
	require.NoError(t, err)
	require.Equal(t, "m2", msg.MessageID)
}
