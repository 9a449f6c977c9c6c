// Package rollover drives the leaderboard refresh and closes each month
// once the calendar moves past it.
package rollover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tariel-x/affiliates/internal/leaderboard"
	"github.com/tariel-x/affiliates/internal/monthkey"
	"github.com/tariel-x/affiliates/internal/payout"
)

type Builder interface {
	BuildLeaderboards(ctx context.Context, month string) (leaderboard.Boards, error)
}

type Publisher interface {
	PublishLive(ctx context.Context, b leaderboard.Boards) error
	PublishFinal(ctx context.Context, b leaderboard.Boards) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, month string) (payout.Report, error)
}

type Config struct {
	Interval    time.Duration
	TickTimeout time.Duration

	// DispatchTimeout bounds the payout messages sent when a month closes.
	// It is not part of the tick budget.
	DispatchTimeout time.Duration

	// State is optional. Without it the month lives only in memory.
	State StateStore
}

// Scheduler is either Uninitialized (current == "") or InMonth(current).
type Scheduler struct {
	months     *monthkey.Calculator
	builder    Builder
	publisher  Publisher
	dispatcher Dispatcher
	cfg        Config
	logger     *slog.Logger
	nowFn      func() time.Time

	mu         sync.Mutex
	current    string
	lastClosed string
	loaded     bool
}

func New(months *monthkey.Calculator, builder Builder, publisher Publisher, dispatcher Dispatcher, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = time.Minute
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		months:     months,
		builder:    builder,
		publisher:  publisher,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		nowFn:      time.Now,
	}
}

// Current returns the month the scheduler is in; ok is false while
// Uninitialized.
func (s *Scheduler) Current() (month string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != ""
}

// Run ticks immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("leaderboard tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick advances the state machine by one step. A failure to close a month
// leaves the scheduler in that month so the next tick retries.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TickTimeout)
	defer cancel()

	if err := s.loadLocked(ctx); err != nil {
		return err
	}
	nowMonth := s.months.ForInstant(s.nowFn())

	switch {
	case s.current == "":
		s.logger.Info("leaderboard scheduler started", "month", nowMonth)
		s.moveLocked(ctx, nowMonth)
	case s.current == nowMonth:
	case nowMonth < s.current:
		s.logger.Warn("clock moved back a month, not closing", "current", s.current, "now", nowMonth)
		s.moveLocked(ctx, nowMonth)
	default:
		if err := s.closeLocked(ctx, parent, s.current); err != nil {
			return err
		}
		s.moveLocked(ctx, nowMonth)
	}

	b, err := s.builder.BuildLeaderboards(ctx, s.current)
	if err != nil {
		return fmt.Errorf("live leaderboard %s: %w", s.current, err)
	}
	if err := s.publisher.PublishLive(ctx, b); err != nil {
		return fmt.Errorf("publish live leaderboard %s: %w", s.current, err)
	}
	return nil
}

func (s *Scheduler) closeLocked(ctx, parent context.Context, month string) error {
	if s.lastClosed != "" && s.lastClosed >= month {
		s.logger.Info("month already closed", "month", month)
		return nil
	}

	b, err := s.builder.BuildLeaderboards(ctx, month)
	if err != nil {
		return fmt.Errorf("final leaderboard %s: %w", month, err)
	}

	if b.Empty() {
		s.logger.Info("month had no data, skipping final results and payouts", "month", month)
	} else {
		if err := s.publisher.PublishFinal(ctx, b); err != nil {
			return err
		}
		// Delivery failures stay retryable through a manual dispatch.
		dctx, cancel := context.WithTimeout(parent, s.cfg.DispatchTimeout)
		report, err := s.dispatcher.Dispatch(dctx, month)
		cancel()
		if err != nil {
			s.logger.Error("payout dispatch incomplete", "month", month, "sent", report.Sent, "error", err)
		}
	}

	s.lastClosed = month
	return nil
}

func (s *Scheduler) moveLocked(ctx context.Context, month string) {
	s.current = month
	if s.cfg.State == nil {
		return
	}
	if err := s.cfg.State.Save(ctx, s.current, s.lastClosed); err != nil {
		s.logger.Error("save rollover state failed", "month", month, "error", err)
	}
}

// loadLocked restores persisted state once. Until it succeeds no tick runs,
// so a transient read error cannot overwrite the stored month.
func (s *Scheduler) loadLocked(ctx context.Context) error {
	if s.loaded || s.cfg.State == nil {
		return nil
	}
	current, lastClosed, ok, err := s.cfg.State.Load(ctx)
	if err != nil {
		return fmt.Errorf("load rollover state: %w", err)
	}
	s.loaded = true
	if ok {
		s.current = current
		s.lastClosed = lastClosed
		s.logger.Info("rollover state restored", "month", current, "last_closed", lastClosed)
	}
	return nil
}
