// Package handlers exposes the affiliate engine over a small admin and
// integration HTTP API.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tariel-x/affiliates/internal/invites"
	"github.com/tariel-x/affiliates/internal/leaderboard"
	"github.com/tariel-x/affiliates/internal/payout"
	"github.com/tariel-x/affiliates/internal/store"
	stream "github.com/tariel-x/affiliates/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Options struct {
	Store          *store.Store
	Aggregator     *leaderboard.Aggregator
	Invites        *invites.Service
	Dispatcher     *payout.Dispatcher
	Hub            *stream.Hub
	CommunityID    string
	JWTSecret      string
	VAPIDPublicKey string
}

type Handlers struct {
	store          *store.Store
	aggregator     *leaderboard.Aggregator
	invites        *invites.Service
	dispatcher     *payout.Dispatcher
	hub            *stream.Hub
	communityID    string
	jwtSecret      []byte
	vapidPublicKey string
	wsUpgrader     websocket.Upgrader
	logger         *slog.Logger
	nowFn          func() time.Time
}

func New(opts Options, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:          opts.Store,
		aggregator:     opts.Aggregator,
		invites:        opts.Invites,
		dispatcher:     opts.Dispatcher,
		hub:            opts.Hub,
		communityID:    opts.CommunityID,
		jwtSecret:      []byte(opts.JWTSecret),
		vapidPublicKey: opts.VAPIDPublicKey,
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
		nowFn:  time.Now,
	}
}

// Register mounts the API on router. Everything except health, the VAPID
// key and the live stream requires an admin token.
func (h *Handlers) Register(router gin.IRouter) {
	api := router.Group("/api")
	api.GET("/health", h.Health)
	api.GET("/vapid-public-key", h.GetVAPIDPublicKey)
	api.GET("/ws", h.HandleWebSocket)

	admin := api.Group("")
	admin.Use(h.AuthMiddleware())
	{
		admin.GET("/leaderboard/:month", h.GetLeaderboard)
		admin.GET("/members/:id/stats", h.GetMemberStats)
		admin.POST("/invites", h.CreateInvite)
		admin.POST("/referrals/:invitee_id/qualify", h.QualifyReferral)
		admin.POST("/payouts/:month/dispatch", h.DispatchPayouts)
		admin.POST("/push/subscribe", h.SubscribePush)
		admin.DELETE("/push/subscribe", h.UnsubscribePush)
	}
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": h.nowFn().UTC()})
}
