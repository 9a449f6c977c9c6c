package leaderboard

import (
	"context"
	"fmt"
	"time"
)

type Tally struct {
	Invites     int   `json:"invites"`
	Qualified   int   `json:"qualified"`
	EarnedCents int64 `json:"earned_cents"`
}

type MemberStats struct {
	MemberID  string `json:"member_id"`
	ThisMonth string `json:"this_month"`
	LastMonth string `json:"last_month"`
	Current   Tally  `json:"current"`
	Previous  Tally  `json:"previous"`
	AllTime   Tally  `json:"all_time"`
}

// MemberStats reports what memberID earned in the month of now, the month
// before, and overall. Month tallies use the same filter as the rankings.
func (a *Aggregator) MemberStats(ctx context.Context, memberID string, now time.Time) (MemberStats, error) {
	thisMonth := a.months.ForInstant(now)
	lastMonth, err := a.months.Previous(thisMonth)
	if err != nil {
		return MemberStats{}, err
	}
	current, err := a.months.Filter(thisMonth)
	if err != nil {
		return MemberStats{}, err
	}
	previous, err := a.months.Filter(lastMonth)
	if err != nil {
		return MemberStats{}, err
	}

	entries, err := a.store.EntriesForInviter(ctx, memberID)
	if err != nil {
		return MemberStats{}, fmt.Errorf("stats for %s: %w", memberID, err)
	}

	stats := MemberStats{MemberID: memberID, ThisMonth: thisMonth, LastMonth: lastMonth}
	for _, e := range entries {
		a.add(&stats.AllTime, e.Qualified)
		if current.Match(e.MonthKey, e.JoinedAt) {
			a.add(&stats.Current, e.Qualified)
		}
		if previous.Match(e.MonthKey, e.JoinedAt) {
			a.add(&stats.Previous, e.Qualified)
		}
	}
	return stats, nil
}

func (a *Aggregator) add(t *Tally, qualified bool) {
	t.Invites++
	if qualified {
		t.Qualified++
		t.EarnedCents += a.feeCents
	}
}
