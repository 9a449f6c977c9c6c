// Package leaderboard computes the monthly invite and affiliate rankings,
// per-member stats, and publishes them to the community.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tariel-x/affiliates/internal/models"
	"github.com/tariel-x/affiliates/internal/monthkey"
	"github.com/tariel-x/affiliates/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	MinTopN     = 3
	MaxTopN     = 25
	DefaultTopN = 10
)

var tracer = otel.Tracer("github.com/tariel-x/affiliates/internal/leaderboard")

// ClampTopN bounds n to [MinTopN, MaxTopN]; zero or negative means the default.
func ClampTopN(n int) int {
	switch {
	case n <= 0:
		return DefaultTopN
	case n < MinTopN:
		return MinTopN
	case n > MaxTopN:
		return MaxTopN
	}
	return n
}

// Entry is one ranked inviter. Count is the number of invites in the
// invite ranking and the number of qualified referrals in the affiliate one.
type Entry struct {
	InviterID     string    `json:"inviter_id"`
	Name          string    `json:"name"`
	Count         int       `json:"count"`
	FirstJoinedAt time.Time `json:"first_joined_at"`
	RewardCents   int64     `json:"reward_cents"`
}

type Boards struct {
	Month      string  `json:"month"`
	Invites    []Entry `json:"invites"`
	Affiliates []Entry `json:"affiliates"`
}

// Empty reports whether nobody was invited in the month.
func (b Boards) Empty() bool {
	return len(b.Invites) == 0 && len(b.Affiliates) == 0
}

type NameResolver interface {
	Name(ctx context.Context, memberID string) string
}

// Aggregator is a read-only view over the attribution log.
type Aggregator struct {
	store    *store.Store
	months   *monthkey.Calculator
	names    NameResolver
	topN     int
	feeCents int64
}

func NewAggregator(st *store.Store, months *monthkey.Calculator, names NameResolver, topN int, feeCents int64) *Aggregator {
	return &Aggregator{
		store:    st,
		months:   months,
		names:    names,
		topN:     ClampTopN(topN),
		feeCents: feeCents,
	}
}

func (a *Aggregator) FeeCents() int64 { return a.feeCents }

func (a *Aggregator) TopN() int { return a.topN }

func (a *Aggregator) Months() *monthkey.Calculator { return a.months }

// Entries returns the log entries counted towards month, carryover included.
func (a *Aggregator) Entries(ctx context.Context, month string) ([]models.AttributionEntry, error) {
	filter, err := a.months.Filter(month)
	if err != nil {
		return nil, err
	}
	rows, err := a.store.EntriesForMonths(ctx, filter.Months()...)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, row := range rows {
		if filter.Match(row.MonthKey, row.JoinedAt) {
			out = append(out, row)
		}
	}
	return out, nil
}

// BuildLeaderboards ranks the inviters of month. Both rankings are sorted by
// count descending, then by the inviter's earliest entry, then by id, and
// truncated to the top N.
func (a *Aggregator) BuildLeaderboards(ctx context.Context, month string) (Boards, error) {
	ctx, span := tracer.Start(ctx, "leaderboard.build")
	defer span.End()
	span.SetAttributes(attribute.String("month", month))

	entries, err := a.Entries(ctx, month)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load entries")
		return Boards{}, fmt.Errorf("build leaderboards for %s: %w", month, err)
	}

	invites, affiliates := a.rank(entries)
	invites = truncate(invites, a.topN)
	affiliates = truncate(affiliates, a.topN)

	for i := range invites {
		invites[i].Name = a.name(ctx, invites[i].InviterID)
	}
	for i := range affiliates {
		affiliates[i].Name = a.name(ctx, affiliates[i].InviterID)
	}

	span.SetAttributes(attribute.Int("entries", len(entries)))
	return Boards{Month: month, Invites: invites, Affiliates: affiliates}, nil
}

// Affiliates returns every inviter with qualified referrals in month, ranked,
// without names or truncation.
func (a *Aggregator) Affiliates(ctx context.Context, month string) ([]Entry, error) {
	entries, err := a.Entries(ctx, month)
	if err != nil {
		return nil, err
	}
	_, affiliates := a.rank(entries)
	return affiliates, nil
}

func (a *Aggregator) rank(entries []models.AttributionEntry) (invites, affiliates []Entry) {
	type tally struct {
		invites   int
		qualified int
		first     time.Time
	}
	byInviter := make(map[string]*tally)
	for _, e := range entries {
		if e.InviterDiscordID == "" {
			continue
		}
		t, ok := byInviter[e.InviterDiscordID]
		if !ok {
			t = &tally{first: e.JoinedAt}
			byInviter[e.InviterDiscordID] = t
		}
		t.invites++
		if e.Qualified {
			t.qualified++
		}
		if e.JoinedAt.Before(t.first) {
			t.first = e.JoinedAt
		}
	}

	for id, t := range byInviter {
		invites = append(invites, Entry{InviterID: id, Count: t.invites, FirstJoinedAt: t.first})
		if t.qualified > 0 {
			affiliates = append(affiliates, Entry{
				InviterID:     id,
				Count:         t.qualified,
				FirstJoinedAt: t.first,
				RewardCents:   int64(t.qualified) * a.feeCents,
			})
		}
	}
	sortEntries(invites)
	sortEntries(affiliates)
	return invites, affiliates
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if !a.FirstJoinedAt.Equal(b.FirstJoinedAt) {
			return a.FirstJoinedAt.Before(b.FirstJoinedAt)
		}
		return a.InviterID < b.InviterID
	})
}

func truncate(entries []Entry, n int) []Entry {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}

func (a *Aggregator) name(ctx context.Context, id string) string {
	if a.names == nil {
		return FallbackName(id)
	}
	return a.names.Name(ctx, id)
}
