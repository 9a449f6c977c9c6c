package handlers

import (
	"errors"
	"net/http"

	"github.com/tariel-x/affiliates/internal/models"
	"github.com/tariel-x/affiliates/internal/store"

	"github.com/gin-gonic/gin"
)

type PushSubscribeKeys struct {
	P256DH string `json:"p256dh" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

type PushSubscribeRequest struct {
	Endpoint string            `json:"endpoint" binding:"required,url"`
	Keys     PushSubscribeKeys `json:"keys" binding:"required"`
}

func (h *Handlers) GetVAPIDPublicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publicKey": h.vapidPublicKey})
}

// SubscribePush replaces the admin's previous subscription.
func (h *Handlers) SubscribePush(c *gin.Context) {
	adminID := c.GetString(AdminIDKey)

	var req PushSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := models.PushSubscription{
		AdminID:  adminID,
		Endpoint: req.Endpoint,
		P256DH:   req.Keys.P256DH,
		Auth:     req.Keys.Auth,
	}
	if err := h.store.ReplacePushSubscription(c.Request.Context(), &sub); err != nil {
		h.logger.Error("failed to save push subscription", "admin_id", adminID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create subscription"})
		return
	}

	h.logger.Info("push subscription saved", "admin_id", adminID, "subscription_id", sub.ID)
	c.JSON(http.StatusCreated, sub)
}

func (h *Handlers) UnsubscribePush(c *gin.Context) {
	adminID := c.GetString(AdminIDKey)

	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.store.RemovePushSubscription(c.Request.Context(), adminID, req.Endpoint)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unsubscribed"})
}
