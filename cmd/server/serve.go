package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tariel-x/affiliates/internal/attribution"
	"github.com/tariel-x/affiliates/internal/discord"
	"github.com/tariel-x/affiliates/internal/handlers"
	"github.com/tariel-x/affiliates/internal/invites"
	"github.com/tariel-x/affiliates/internal/leaderboard"
	"github.com/tariel-x/affiliates/internal/payout"
	"github.com/tariel-x/affiliates/internal/push"
	"github.com/tariel-x/affiliates/internal/rollover"
	"github.com/tariel-x/affiliates/internal/snapshot"
	"github.com/tariel-x/affiliates/internal/telemetry"
	stream "github.com/tariel-x/affiliates/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const rolloverStateName = "leaderboard"

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the rollover scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	logger.Info(fmt.Sprintf("Affiliates Server v%s", AppVersion))

	shutdownTracing, err := telemetry.Setup(ctx, "affiliates", cfg.OTelEndpoint)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	if err := cfg.EnsureKeys(logger); err != nil {
		logger.Error("failed to prepare keys", "error", err)
		return err
	}

	c, err := a.openCore()
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return err
	}
	defer c.close()

	session, client, err := a.discordClient()
	if err != nil {
		logger.Error("failed to create discord client", "error", err)
		return err
	}

	snaps := snapshot.NewStore(client, cfg.PlatformTimeout, logger)
	resolver := attribution.NewResolver(snaps, attribution.StoreDirectory{Store: c.store})
	tracker := attribution.NewTracker(c.store, resolver, attribution.NewWriter(c.store, c.months), logger)
	invitesSvc := invites.NewService(c.store, client, snaps, cfg.AffiliateChannelID, logger)

	hub := stream.NewHub(logger)
	notifier := push.NewNotifier(c.store, push.VAPIDKeys{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
	}, &http.Client{Timeout: cfg.PlatformTimeout}, logger)
	publisher := leaderboard.NewPublisher(client, c.store, cfg.LeaderboardChannelID, cfg.WinnersChannelID, logger, hub, notifier)
	dispatcher := payout.NewDispatcher(c.aggregator, c.store, client, logger)

	schedCfg := rollover.Config{
		Interval:        cfg.TickInterval,
		TickTimeout:     cfg.TickTimeout,
		DispatchTimeout: cfg.DispatchTimeout,
	}
	if cfg.RolloverDurable {
		schedCfg.State = rollover.StoreState{Store: c.store, Name: rolloverStateName}
	}
	scheduler := rollover.New(c.months, c.aggregator, publisher, dispatcher, schedCfg, logger)

	bot := discord.NewBot(session, cfg.GuildID, discord.Deps{
		Tracker:         tracker,
		Snapshots:       snaps,
		Invites:         invitesSvc,
		Stats:           c.aggregator,
		Names:           c.names,
		RefreshInterval: cfg.InviteRefreshInterval,
	}, logger)

	h := handlers.New(handlers.Options{
		Store:          c.store,
		Aggregator:     c.aggregator,
		Invites:        invitesSvc,
		Dispatcher:     dispatcher,
		Hub:            hub,
		CommunityID:    cfg.GuildID,
		JWTSecret:      cfg.JWTSecret,
		VAPIDPublicKey: cfg.VAPIDPublicKey,
	}, logger)
	router := setupRouter(h, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(gctx)
	})
	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return startServer(gctx, router, cfg, logger)
	})
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(gctx, cfg.PlatformTimeout)
		defer cancel()
		info := leaderboard.RenderInfo(c.aggregator.TopN(), c.aggregator.FeeCents(), cfg.AffiliateChannelID, cfg.LaunchAt, cfg.CarryoverMonth)
		if err := publisher.PublishInfo(pctx, cfg.InfoChannelID, info); err != nil {
			logger.Warn("failed to publish info message", "channel_id", cfg.InfoChannelID, "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}

func setupRouter(h *handlers.Handlers, logger *slog.Logger) *gin.Engine {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), tracing(), requestLogger(logger))

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	h.Register(router)
	return router
}
