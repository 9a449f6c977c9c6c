package leaderboard

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/tariel-x/affiliates/internal/models"
	"github.com/tariel-x/affiliates/internal/monthkey"
	"github.com/tariel-x/affiliates/internal/platform/platformtest"
	"github.com/tariel-x/affiliates/internal/store"
	"github.com/tariel-x/affiliates/internal/store/storetest"

	"github.com/stretchr/testify/require"
)

func amsterdam(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)
	return loc
}

func newAggregator(t *testing.T, st *store.Store, topN int, opts ...monthkey.Option) *Aggregator {
	t.Helper()
	months, err := monthkey.New(amsterdam(t), opts...)
	require.NoError(t, err)
	return NewAggregator(st, months, NewNames(st, time.Minute), topN, 500)
}

func recordJoin(t *testing.T, st *store.Store, months *monthkey.Calculator, invitee, inviter string, joined time.Time) {
	t.Helper()
	ok, err := st.RecordAttribution(context.Background(), &models.AttributionEntry{
		InviteeDiscordID: invitee,
		InviterDiscordID: inviter,
		Code:             "CODE-" + inviter,
		JoinedAt:         joined,
		MonthKey:         months.ForInstant(joined),
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	agg := newAggregator(t, st, 10)
	require.NoError(t, st.UpsertMember(ctx, "M1", "mia", nil))
	require.NoError(t, st.UpsertMember(ctx, "M2", "max", nil))

	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	recordJoin(t, st, agg.Months(), "J1", "M1", t0)
	recordJoin(t, st, agg.Months(), "J2", "M2", t0.Add(time.Minute))

	b, err := agg.BuildLeaderboards(ctx, "2026-03")
	require.NoError(t, err)
	require.Equal(t, []string{"M1", "M2"}, ids(b.Invites))
	require.Equal(t, []int{1, 1}, counts(b.Invites))
	require.Equal(t, "mia", b.Invites[0].Name)
	require.Empty(t, b.Affiliates)
	require.False(t, b.Empty())

	changed, err := st.MarkQualified(ctx, "J1", t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.True(t, changed)

	b, err = agg.BuildLeaderboards(ctx, "2026-03")
	require.NoError(t, err)
	require.Len(t, b.Affiliates, 1)
	require.Equal(t, "M1", b.Affiliates[0].InviterID)
	require.Equal(t, int64(500), b.Affiliates[0].RewardCents)
	require.Contains(t, RenderLive(b), "€5")
}

func TestRankingIsDeterministic(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	agg := newAggregator(t, st, 10)

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// M3 invited first, M1 second; both end up with two qualified referrals.
	recordJoin(t, st, agg.Months(), "J1", "M3", t0)
	recordJoin(t, st, agg.Months(), "J2", "M1", t0.Add(time.Hour))
	recordJoin(t, st, agg.Months(), "J3", "M1", t0.Add(2*time.Hour))
	recordJoin(t, st, agg.Months(), "J4", "M3", t0.Add(3*time.Hour))
	recordJoin(t, st, agg.Months(), "J5", "M2", t0.Add(4*time.Hour))
	for _, j := range []string{"J1", "J2", "J3", "J4"} {
		_, err := st.MarkQualified(ctx, j, t0.Add(48*time.Hour))
		require.NoError(t, err)
	}

	first, err := agg.BuildLeaderboards(ctx, "2026-03")
	require.NoError(t, err)
	require.Equal(t, []string{"M3", "M1", "M2"}, ids(first.Invites))
	require.Equal(t, []string{"M3", "M1"}, ids(first.Affiliates))
	require.Equal(t, int64(1000), first.Affiliates[0].RewardCents)

	for i := 0; i < 5; i++ {
		again, err := agg.BuildLeaderboards(ctx, "2026-03")
		require.NoError(t, err)
		require.Equal(t, RenderLive(first), RenderLive(again))
	}
}

func TestTopNTruncation(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	agg := newAggregator(t, st, 1)
	require.Equal(t, MinTopN, agg.TopN())

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		recordJoin(t, st, agg.Months(), fmt.Sprintf("J%d", i), fmt.Sprintf("M%d", i), t0.Add(time.Duration(i)*time.Minute))
	}

	b, err := agg.BuildLeaderboards(ctx, "2026-03")
	require.NoError(t, err)
	require.Equal(t, []string{"M0", "M1", "M2"}, ids(b.Invites))
}

func TestClampTopN(t *testing.T) {
	require.Equal(t, DefaultTopN, ClampTopN(0))
	require.Equal(t, MinTopN, ClampTopN(2))
	require.Equal(t, 12, ClampTopN(12))
	require.Equal(t, MaxTopN, ClampTopN(100))
}

func TestCarryoverAggregation(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	launch, err := time.Parse(time.RFC3339, "2026-01-28T00:00:00+01:00")
	require.NoError(t, err)
	agg := newAggregator(t, st, 10, monthkey.WithCarryover(launch, "2026-02"))

	before, err := time.Parse(time.RFC3339, "2026-01-27T23:00:00+01:00")
	require.NoError(t, err)
	after, err := time.Parse(time.RFC3339, "2026-01-28T01:00:00+01:00")
	require.NoError(t, err)
	recordJoin(t, st, agg.Months(), "J1", "M1", before)
	recordJoin(t, st, agg.Months(), "J2", "M2", after)
	recordJoin(t, st, agg.Months(), "J3", "M3", time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC))
	for _, j := range []string{"J1", "J2"} {
		_, err := st.MarkQualified(ctx, j, time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC))
		require.NoError(t, err)
	}

	feb, err := agg.BuildLeaderboards(ctx, "2026-02")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"M2", "M3"}, ids(feb.Invites))
	require.Equal(t, []string{"M2"}, ids(feb.Affiliates))

	// The carried join is paid in the target month only.
	jan, err := agg.BuildLeaderboards(ctx, "2026-01")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"M1"}, ids(jan.Invites))
	require.Equal(t, []string{"M1"}, ids(jan.Affiliates))
}

func TestEmptyMonth(t *testing.T) {
	st := storetest.Open(t)
	agg := newAggregator(t, st, 10)

	b, err := agg.BuildLeaderboards(context.Background(), "2026-04")
	require.NoError(t, err)
	require.True(t, b.Empty())
	require.Contains(t, RenderLive(b), "No invites yet this month.")
	require.Contains(t, RenderLive(b), "No qualified referrals yet.")

	_, err = agg.BuildLeaderboards(context.Background(), "2026-4")
	require.ErrorIs(t, err, monthkey.ErrInvalidKey)
}

func TestNamesFallback(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	names := NewNames(st, time.Minute)

	require.Equal(t, "User 6789", names.Name(ctx, "123456789"))
	require.Equal(t, "Unknown", FallbackName(" "))

	require.NoError(t, st.UpsertMember(ctx, "123456789", "zoe", nil))
	// Cached until forgotten or expired.
	require.Equal(t, "User 6789", names.Name(ctx, "123456789"))
	names.Forget("123456789")
	require.Equal(t, "zoe", names.Name(ctx, "123456789"))

	now := time.Now()
	names.nowFn = func() time.Time { return now }
	require.NoError(t, st.UpsertMember(ctx, "123456789", "zoe2", nil))
	names.nowFn = func() time.Time { return now.Add(2 * time.Minute) }
	require.Equal(t, "zoe2", names.Name(ctx, "123456789"))
}

func TestMemberStats(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	agg := newAggregator(t, st, 10)

	recordJoin(t, st, agg.Months(), "J1", "M1", time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC))
	recordJoin(t, st, agg.Months(), "J2", "M1", time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC))
	recordJoin(t, st, agg.Months(), "J3", "M1", time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC))
	recordJoin(t, st, agg.Months(), "J4", "M1", time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC))
	recordJoin(t, st, agg.Months(), "J5", "M2", time.Date(2026, 3, 6, 11, 0, 0, 0, time.UTC))
	for _, j := range []string{"J1", "J2", "J3"} {
		_, err := st.MarkQualified(ctx, j, time.Now())
		require.NoError(t, err)
	}

	stats, err := agg.MemberStats(ctx, "M1", time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "2026-03", stats.ThisMonth)
	require.Equal(t, "2026-02", stats.LastMonth)
	require.Equal(t, Tally{Invites: 2, Qualified: 1, EarnedCents: 500}, stats.Current)
	require.Equal(t, Tally{Invites: 1, Qualified: 1, EarnedCents: 500}, stats.Previous)
	require.Equal(t, Tally{Invites: 4, Qualified: 3, EarnedCents: 1500}, stats.AllTime)

	out := RenderStats(stats)
	require.Contains(t, out, "This Month · 2026-03")
	require.Contains(t, out, "Earned: **€15**")
}

func TestFormatEUR(t *testing.T) {
	require.Equal(t, "€5", FormatEUR(500))
	require.Equal(t, "€2.50", FormatEUR(250))
	require.Equal(t, "€1,234", FormatEUR(123400))
	require.Equal(t, "€0", FormatEUR(0))
}

func TestRenderClampsLongNames(t *testing.T) {
	b := Boards{Month: "2026-03", Invites: []Entry{{InviterID: "M1", Name: "a-very-long-display-name", Count: 3}}}
	out := RenderLive(b)
	require.Contains(t, out, "a-very-long-displ…3")
	require.True(t, strings.HasPrefix(out, "**🏆 LEADERBOARD · 2026-03**"))
}

type recordingObserver struct {
	live, final []string
}

func (o *recordingObserver) LeaderboardPublished(_ context.Context, b Boards, final bool) {
	if final {
		o.final = append(o.final, b.Month)
		return
	}
	o.live = append(o.live, b.Month)
}

func TestPublisherEditsLiveMessageInPlace(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	p := platformtest.New()
	obs := &recordingObserver{}
	pub := NewPublisher(p, st, "lb", "winners", nil, obs)

	b := Boards{Month: "2026-03"}
	require.NoError(t, pub.PublishLive(ctx, b))
	require.Len(t, p.Posts(), 1)
	first := p.Posts()[0].MessageID

	b.Invites = []Entry{{InviterID: "M1", Name: "mia", Count: 1}}
	require.NoError(t, pub.PublishLive(ctx, b))
	require.Len(t, p.Posts(), 1)
	msg, ok := p.Message(first)
	require.True(t, ok)
	require.Contains(t, msg.Content, "mia")

	// A deleted message is replaced and the new id remembered.
	p.DeleteMessage(first)
	require.NoError(t, pub.PublishLive(ctx, b))
	require.Len(t, p.Posts(), 2)
	saved, err := st.ChannelMessage(ctx, liveMessageName)
	require.NoError(t, err)
	require.Equal(t, p.Posts()[1].MessageID, saved.MessageID)

	require.NoError(t, pub.PublishFinal(ctx, b))
	posts := p.Posts()
	require.Equal(t, "winners", posts[len(posts)-1].ChannelID)
	require.Contains(t, posts[len(posts)-1].Content, "FINAL RESULTS · 2026-03")

	require.Equal(t, []string{"2026-03", "2026-03", "2026-03"}, obs.live)
	require.Equal(t, []string{"2026-03"}, obs.final)
}

func TestPublishInfo(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	p := platformtest.New()
	pub := NewPublisher(p, st, "lb", "winners", nil)

	info := RenderInfo(10, 500, "aff", "2026-01-28T00:00:00+01:00", "2026-02")
	require.Contains(t, info, "Launch carryover")
	require.NoError(t, pub.PublishInfo(ctx, "info", info))
	require.NoError(t, pub.PublishInfo(ctx, "info", info))
	require.Len(t, p.Posts(), 1)
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.InviterID)
	}
	return out
}

func counts(entries []Entry) []int {
	out := make([]int, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Count)
	}
	return out
}
