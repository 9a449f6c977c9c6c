// Package payout sends the monthly earnings summary to every affiliate
// exactly once per month.
package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tariel-x/affiliates/internal/leaderboard"
	"github.com/tariel-x/affiliates/internal/platform"
	"github.com/tariel-x/affiliates/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/tariel-x/affiliates/internal/payout")

type Report struct {
	Month    string `json:"month"`
	Eligible int    `json:"eligible"`
	Sent     int    `json:"sent"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
}

// Dispatcher delivers payout summaries. The member's last notified month is
// advanced only after a confirmed delivery, so a failed send is retried by
// the next Dispatch of the same month.
type Dispatcher struct {
	aggregator *leaderboard.Aggregator
	store      *store.Store
	messenger  platform.UserMessenger
	logger     *slog.Logger

	mu sync.Mutex
}

func NewDispatcher(aggregator *leaderboard.Aggregator, st *store.Store, messenger platform.UserMessenger, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{aggregator: aggregator, store: st, messenger: messenger, logger: logger}
}

// Dispatch notifies every inviter with qualified referrals in month. It is
// safe to call repeatedly; calls are serialized.
func (d *Dispatcher) Dispatch(ctx context.Context, month string) (Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, span := tracer.Start(ctx, "payout.dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("month", month))

	affiliates, err := d.aggregator.Affiliates(ctx, month)
	if err != nil {
		span.RecordError(err)
		return Report{Month: month}, fmt.Errorf("dispatch %s: %w", month, err)
	}

	report := Report{Month: month, Eligible: len(affiliates)}
	var errs []error
	for _, a := range affiliates {
		sent, err := d.notify(ctx, month, a)
		switch {
		case err != nil:
			report.Failed++
			if !errors.Is(err, platform.ErrUnreachable) {
				errs = append(errs, err)
			}
			d.logger.Warn("payout summary not delivered", "month", month, "inviter_id", a.InviterID, "error", err)
		case sent:
			report.Sent++
		default:
			report.Skipped++
		}
	}

	span.SetAttributes(
		attribute.Int("eligible", report.Eligible),
		attribute.Int("sent", report.Sent),
		attribute.Int("failed", report.Failed),
	)
	d.logger.Info("payout dispatch finished", "month", month, "eligible", report.Eligible,
		"sent", report.Sent, "skipped", report.Skipped, "failed", report.Failed)
	return report, errors.Join(errs...)
}

func (d *Dispatcher) notify(ctx context.Context, month string, a leaderboard.Entry) (bool, error) {
	member, err := d.store.GetMember(ctx, a.InviterID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := d.store.EnsureMember(ctx, a.InviterID); err != nil {
			return false, err
		}
	case err != nil:
		return false, err
	case member.LastEarningsDMMonth != nil && *member.LastEarningsDMMonth >= month:
		return false, nil
	}

	if err := d.messenger.SendToUser(ctx, a.InviterID, Render(month, a.Count, a.RewardCents)); err != nil {
		return false, err
	}

	marked, err := d.store.MarkEarningsNotified(ctx, a.InviterID, month)
	if err != nil {
		return true, fmt.Errorf("summary sent but marker not saved: %w", err)
	}
	if !marked {
		d.logger.Warn("earnings marker already advanced", "month", month, "inviter_id", a.InviterID)
	}
	return true, nil
}

// Render is the payout summary sent to an affiliate.
func Render(month string, qualified int, cents int64) string {
	noun := "qualified referrals"
	if qualified == 1 {
		noun = "qualified referral"
	}
	return fmt.Sprintf("💰 **Affiliate Summary · %s**\n\nYou earned **%s** from **%d %s**.\n\nThanks for helping grow the community 🤝",
		month, leaderboard.FormatEUR(cents), qualified, noun)
}
