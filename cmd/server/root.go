package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	_ "time/tzdata"

	"github.com/tariel-x/affiliates/internal/config"
	"github.com/tariel-x/affiliates/internal/database"
	"github.com/tariel-x/affiliates/internal/discord"
	"github.com/tariel-x/affiliates/internal/leaderboard"
	"github.com/tariel-x/affiliates/internal/monthkey"
	"github.com/tariel-x/affiliates/internal/store"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
)

// app carries what every command needs once the environment is parsed.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "affiliates",
		Short:         "Discord invite attribution and monthly affiliate rewards",
		Version:       AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintln(os.Stderr, "config:", err)
				return err
			}
			a.cfg = cfg
			a.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			return nil
		},
	}

	root.AddCommand(
		newServeCmd(a),
		newBackfillCmd(a),
		newDispatchCmd(a),
		newLeaderboardCmd(a),
		newTokenCmd(a),
	)
	return root
}

// core is the storage and aggregation layer shared by all commands.
type core struct {
	store      *store.Store
	months     *monthkey.Calculator
	names      *leaderboard.Names
	aggregator *leaderboard.Aggregator
	close      func() error
}

func (a *app) openCore() (*core, error) {
	months, err := a.cfg.MonthKeys()
	if err != nil {
		return nil, fmt.Errorf("month keys: %w", err)
	}

	db, err := database.Initialize(a.cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	st := store.New(db)
	names := leaderboard.NewNames(st, leaderboard.DefaultNameTTL)
	topN := leaderboard.ClampTopN(a.cfg.TopN)
	if topN != a.cfg.TopN {
		a.logger.Warn("LEADERBOARD_TOP_N clamped", "configured", a.cfg.TopN, "used", topN)
	}

	return &core{
		store:      st,
		months:     months,
		names:      names,
		aggregator: leaderboard.NewAggregator(st, months, names, topN, a.cfg.FeeCents()),
		close:      sqlDB.Close,
	}, nil
}

// discordClient builds a REST-only client; the gateway is opened by the
// bot when serving.
func (a *app) discordClient() (*discordgo.Session, *discord.Client, error) {
	if a.cfg.DiscordToken == "" {
		return nil, nil, errors.New("DISCORD_TOKEN is required")
	}
	session, err := discordgo.New("Bot " + a.cfg.DiscordToken)
	if err != nil {
		return nil, nil, fmt.Errorf("discord session: %w", err)
	}
	session.Client.Timeout = a.cfg.PlatformTimeout
	return session, discord.NewClient(session), nil
}
