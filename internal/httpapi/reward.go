package httpapi

import (
	"net/http"

	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/services/claim"
	"smallbiznis-picks/services/quest"

	"github.com/gin-gonic/gin"
)

type adViewRequest struct {
	PlacementKey string `json:"placement_key" binding:"required"`
	SessionID    string `json:"session_id"`
}

type dailyClaimRequest struct {
	AdViewID string `json:"ad_view_id" binding:"required"`
}

type applyCodeRequest struct {
	UserID   string         `json:"user_id" binding:"required"`
	Code     string         `json:"code" binding:"required"`
	Metadata map[string]any `json:"metadata"`
}

func (h *Handler) RecordAdView(c *gin.Context) {
	var req adViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	view, err := h.claims.RecordAdView(c.Request.Context(), claim.RecordAdViewRequest{
		UserID:       c.Param("userId"),
		PlacementKey: req.PlacementKey,
		SessionID:    req.SessionID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) DailyClaimStatus(c *gin.Context) {
	status, err := h.claims.Status(c.Request.Context(), c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) DailyClaim(c *gin.Context) {
	var req dailyClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	result, err := h.claims.Claim(c.Request.Context(), c.Param("userId"), req.AdViewID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ReferralSnapshot(c *gin.Context) {
	snap, err := h.referrals.Snapshot(c.Request.Context(), c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) ApplyReferralCode(c *gin.Context) {
	var req applyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	ref, err := h.referrals.ApplyCode(c.Request.Context(), req.UserID, req.Code, req.Metadata)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ref)
}

// QuestState reads the role query parameter; anything but "venue" is a
// player.
func (h *Handler) QuestState(c *gin.Context) {
	role := quest.PersonaPlayer
	if c.Query("role") == string(quest.PersonaVenue) {
		role = quest.PersonaVenue
	}

	states, err := h.quests.State(c.Request.Context(), c.Param("userId"), role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": states})
}

func (h *Handler) ClaimQuest(c *gin.Context) {
	result, err := h.quests.ClaimReward(c.Request.Context(), c.Param("userId"), c.Param("questKey"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}
