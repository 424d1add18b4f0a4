package api

import (
	"fmt"
	"net/http"

	"MarketSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TrackerHandler 关注、关注等级与 No 评估
type TrackerHandler struct {
	trackerService *service.TrackerService
	logger         *logrus.Logger
}

func NewTrackerHandler(trackerService *service.TrackerService, logger *logrus.Logger) *TrackerHandler {
	return &TrackerHandler{trackerService: trackerService, logger: logger}
}

// FollowedEvents GET /api/me/followed-events
func (h *TrackerHandler) FollowedEvents(c *gin.Context) {
	ids, err := h.trackerService.FollowedEventIDs(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		writeError(c, h.logger, "followed_events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_ids": ids})
}

// AttentionLevels GET /api/me/attention
func (h *TrackerHandler) AttentionLevels(c *gin.Context) {
	levels, err := h.trackerService.AttentionLevels(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		writeError(c, h.logger, "attention_levels", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"levels": levels})
}

// Flagged GET /api/me/flagged
func (h *TrackerHandler) Flagged(c *gin.Context) {
	items, err := h.trackerService.FlaggedMarkets(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		writeError(c, h.logger, "flagged", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// FollowEvent POST(关注) / DELETE(取消) /api/events/:event_id/follow
func (h *TrackerHandler) FollowEvent(c *gin.Context) {
	eventID, ok := parseIDParam(c, h.logger, "event_id")
	if !ok {
		return
	}
	follow := c.Request.Method == http.MethodPost
	if err := h.trackerService.ToggleFollowEvent(c.Request.Context(), currentUser(c).ID, eventID, follow); err != nil {
		writeError(c, h.logger, "follow_event", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_id": eventID, "followed": follow})
}

// FollowMarket POST(关注) / DELETE(取消) /api/markets/:market_id/follow
func (h *TrackerHandler) FollowMarket(c *gin.Context) {
	marketID, ok := parseIDParam(c, h.logger, "market_id")
	if !ok {
		return
	}
	follow := c.Request.Method == http.MethodPost
	if err := h.trackerService.ToggleFollowMarket(c.Request.Context(), currentUser(c).ID, marketID, follow); err != nil {
		writeError(c, h.logger, "follow_market", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"market_id": marketID, "followed": follow})
}

type attentionRequest struct {
	Level *int `json:"level" binding:"required"`
}

// SetAttention PUT /api/markets/:market_id/attention
func (h *TrackerHandler) SetAttention(c *gin.Context) {
	marketID, ok := parseIDParam(c, h.logger, "market_id")
	if !ok {
		return
	}
	var req attentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, "set_attention", fmt.Errorf("%v: %w", err, service.ErrInvalidInput))
		return
	}
	if err := h.trackerService.SetAttentionLevel(c.Request.Context(), currentUser(c).ID, marketID, *req.Level); err != nil {
		writeError(c, h.logger, "set_attention", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"market_id": marketID, "attention_level": *req.Level})
}

type evaluationRequest struct {
	NoProbability *float64 `json:"no_probability" binding:"required"`
	// Threshold 百分比 0..100，缺省 10
	Threshold *int `json:"threshold"`
}

// SetEvaluation PUT /api/markets/:market_id/evaluation
func (h *TrackerHandler) SetEvaluation(c *gin.Context) {
	marketID, ok := parseIDParam(c, h.logger, "market_id")
	if !ok {
		return
	}
	var req evaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, "set_evaluation", fmt.Errorf("%v: %w", err, service.ErrInvalidInput))
		return
	}
	eval, err := h.trackerService.UpsertNoEvaluation(c.Request.Context(), currentUser(c).ID, marketID, *req.NoProbability, req.Threshold)
	if err != nil {
		writeError(c, h.logger, "set_evaluation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"market_id":      eval.MarketID,
		"no_probability": eval.NoProbability,
		"threshold":      eval.Threshold,
		"flagged":        eval.Flagged(),
	})
}
