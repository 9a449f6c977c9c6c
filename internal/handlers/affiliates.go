package handlers

import (
	"errors"
	"net/http"

	"github.com/tariel-x/affiliates/internal/invites"
	"github.com/tariel-x/affiliates/internal/leaderboard"
	"github.com/tariel-x/affiliates/internal/monthkey"
	"github.com/tariel-x/affiliates/internal/store"

	"github.com/gin-gonic/gin"
)

type CreateInviteRequest struct {
	CommunityID string `json:"community_id"`
	MemberID    string `json:"member_id" binding:"required"`
	Username    string `json:"username" binding:"required,max=100"`
}

type CreateInviteResponse struct {
	Code    string `json:"code"`
	URL     string `json:"url"`
	OwnerID string `json:"owner_id"`
	Created bool   `json:"created"`
}

// GetLeaderboard returns both boards of a month; "current" is accepted as
// the month key.
func (h *Handlers) GetLeaderboard(c *gin.Context) {
	month := c.Param("month")
	if month == "current" {
		month = h.aggregator.Months().ForInstant(h.nowFn())
	}

	boards, err := h.aggregator.BuildLeaderboards(c.Request.Context(), month)
	if errors.Is(err, monthkey.ErrInvalidKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month must be YYYY-MM"})
		return
	}
	if err != nil {
		h.logger.Error("failed to build leaderboard", "month", month, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build leaderboard"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"month":      boards.Month,
		"invites":    nonNil(boards.Invites),
		"affiliates": nonNil(boards.Affiliates),
		"rendered":   leaderboard.RenderLive(boards),
	})
}

func (h *Handlers) GetMemberStats(c *gin.Context) {
	stats, err := h.aggregator.MemberStats(c.Request.Context(), c.Param("id"), h.nowFn())
	if err != nil {
		h.logger.Error("failed to load member stats", "member_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handlers) CreateInvite(c *gin.Context) {
	var req CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CommunityID == "" {
		req.CommunityID = h.communityID
	}
	if req.CommunityID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "community_id is required"})
		return
	}

	rec, created, err := h.invites.GetOrCreate(c.Request.Context(), req.CommunityID, req.MemberID, req.Username)
	if errors.Is(err, invites.ErrNoChannel) {
		c.JSON(http.StatusConflict, gin.H{"error": "Affiliate channel is not configured"})
		return
	}
	if err != nil {
		h.logger.Error("failed to issue invite", "member_id", req.MemberID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create invite"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, CreateInviteResponse{
		Code:    rec.Code,
		URL:     rec.URL,
		OwnerID: rec.OwnerDiscordID,
		Created: created,
	})
}

// QualifyReferral marks the invitee's attribution as a completed deal.
// Repeating the call is harmless.
func (h *Handlers) QualifyReferral(c *gin.Context) {
	inviteeID := c.Param("invitee_id")
	changed, err := h.store.MarkQualified(c.Request.Context(), inviteeID, h.nowFn())
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invitee has no attribution"})
		return
	}
	if err != nil {
		h.logger.Error("failed to qualify referral", "invitee_id", inviteeID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	h.logger.Info("referral qualified", "invitee_id", inviteeID, "changed", changed, "admin_id", c.GetString(AdminIDKey))
	c.JSON(http.StatusOK, gin.H{"invitee_id": inviteeID, "qualified": true, "changed": changed})
}

// DispatchPayouts re-runs the payout summary for a month. Members already
// notified for it are skipped.
func (h *Handlers) DispatchPayouts(c *gin.Context) {
	month := c.Param("month")
	if _, err := monthkey.Parse(month); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month must be YYYY-MM"})
		return
	}

	report, err := h.dispatcher.Dispatch(c.Request.Context(), month)
	if err != nil {
		h.logger.Error("payout dispatch incomplete", "month", month, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "report": report})
		return
	}
	h.logger.Info("payout dispatch finished", "month", month, "sent", report.Sent, "admin_id", c.GetString(AdminIDKey))
	c.JSON(http.StatusOK, report)
}

func nonNil(entries []leaderboard.Entry) []leaderboard.Entry {
	if entries == nil {
		return []leaderboard.Entry{}
	}
	return entries
}
