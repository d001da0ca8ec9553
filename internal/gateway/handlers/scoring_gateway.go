package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"performa-system/internal/errs"
	"performa-system/internal/identity"
	"performa-system/internal/scoring"
)

type ScoringHTTPHandler struct {
	scores   *scoring.Service
	identity *identity.Resolver
}

func NewScoringHTTPHandler(scores *scoring.Service, resolver *identity.Resolver) *ScoringHTTPHandler {
	return &ScoringHTTPHandler{scores: scores, identity: resolver}
}

type AddScoreRequest struct {
	KpiID    int64    `json:"kpi_id" binding:"required"`
	Score    *float64 `json:"score" binding:"required"`
	Comments *string  `json:"comments,omitempty"`
}

func (h *ScoringHTTPHandler) AddScore(c *gin.Context) {
	actor, ok := resolveActor(c, h.identity)
	if !ok {
		return
	}

	var req AddScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request body: "+err.Error()))
		return
	}

	updated, err := h.scores.AddOrUpdateScore(c.Request.Context(), req.KpiID, req.Score, req.Comments, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("score recorded", updated))
}

func (h *ScoringHTTPHandler) KpiScore(c *gin.Context) {
	if _, ok := resolveActor(c, h.identity); !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("kpiId"), 10, 64)
	if err != nil {
		respondError(c, fmt.Errorf("%w: invalid kpi id", errs.ErrInvalidInput))
		return
	}
	view, err := h.scores.KpiScore(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("KPI score", view))
}

func (h *ScoringHTTPHandler) KraScores(c *gin.Context) {
	if _, ok := resolveActor(c, h.identity); !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("kraId"), 10, 64)
	if err != nil {
		respondError(c, fmt.Errorf("%w: invalid kra id", errs.ErrInvalidInput))
		return
	}
	views, err := h.scores.KraScores(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("KRA scores", views))
}

func (h *ScoringHTTPHandler) KraAggregate(c *gin.Context) {
	if _, ok := resolveActor(c, h.identity); !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("kraId"), 10, 64)
	if err != nil {
		respondError(c, fmt.Errorf("%w: invalid kra id", errs.ErrInvalidInput))
		return
	}
	agg, err := h.scores.KraAggregate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("KRA aggregate", agg))
}
