package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"performa-system/internal/auditlog"
	"performa-system/internal/errs"
	"performa-system/internal/identity"
	"performa-system/internal/kpi"
)

type KPIHTTPHandler struct {
	kpis     *kpi.Service
	logs     *auditlog.Service
	identity *identity.Resolver
}

func NewKPIHTTPHandler(kpis *kpi.Service, logs *auditlog.Service, resolver *identity.Resolver) *KPIHTTPHandler {
	return &KPIHTTPHandler{kpis: kpis, logs: logs, identity: resolver}
}

type CreateKPIRequest struct {
	Name          string   `json:"name" binding:"required"`
	Definition    string   `json:"def" binding:"required"`
	KraID         int64    `json:"kra_id" binding:"required"`
	DueDate       string   `json:"due_date" binding:"required"`
	ScoringMethod string   `json:"scoring_method" binding:"required"`
	Target        *float64 `json:"target,omitempty"`
}

// UpdateKPIRequest binds the locked fields too so a request trying to change
// them gets a 403 instead of a silent no-op.
type UpdateKPIRequest struct {
	Score    *float64 `json:"score,omitempty"`
	Comments *string  `json:"comments,omitempty"`

	Name          *string  `json:"name,omitempty"`
	Definition    *string  `json:"def,omitempty"`
	DueDate       *string  `json:"due_date,omitempty"`
	ScoringMethod *string  `json:"scoring_method,omitempty"`
	Target        *float64 `json:"target,omitempty"`
}

func (h *KPIHTTPHandler) Create(c *gin.Context) {
	actor, ok := resolveActor(c, h.identity)
	if !ok {
		return
	}

	var req CreateKPIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request body: "+err.Error()))
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		respondError(c, fmt.Errorf("%w: due_date must be YYYY-MM-DD", errs.ErrInvalidInput))
		return
	}

	created, err := h.kpis.Create(c.Request.Context(), kpi.CreateInput{
		Name:          req.Name,
		Definition:    req.Definition,
		KraID:         req.KraID,
		DueDate:       dueDate,
		ScoringMethod: req.ScoringMethod,
		Target:        req.Target,
	}, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("KPI created", created))
}

func (h *KPIHTTPHandler) Update(c *gin.Context) {
	actor, ok := resolveActor(c, h.identity)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, fmt.Errorf("%w: invalid kpi id", errs.ErrInvalidInput))
		return
	}

	var req UpdateKPIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request body: "+err.Error()))
		return
	}

	updated, err := h.kpis.Update(c.Request.Context(), id, kpi.UpdateInput{
		Score:         req.Score,
		Comments:      req.Comments,
		Name:          req.Name,
		Definition:    req.Definition,
		DueDate:       req.DueDate,
		ScoringMethod: req.ScoringMethod,
		Target:        req.Target,
	}, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("KPI updated", updated))
}

func (h *KPIHTTPHandler) Delete(c *gin.Context) {
	actor, ok := resolveActor(c, h.identity)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, fmt.Errorf("%w: invalid kpi id", errs.ErrInvalidInput))
		return
	}
	if err := h.kpis.Delete(c.Request.Context(), id, actor); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *KPIHTTPHandler) AvailableKras(c *gin.Context) {
	actor, ok := resolveActor(c, h.identity)
	if !ok {
		return
	}
	kras, err := h.kpis.ListAvailableKras(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("available KRAs", kras))
}

func (h *KPIHTTPHandler) MyKpis(c *gin.Context) {
	actor, ok := resolveActor(c, h.identity)
	if !ok {
		return
	}
	status := c.Query("status")
	if status == "All" {
		status = ""
	}
	kpis, err := h.kpis.ListByCreator(c.Request.Context(), actor, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("my KPIs", kpis))
}

func (h *KPIHTTPHandler) DepartmentKpis(c *gin.Context) {
	actor, ok := resolveActor(c, h.identity)
	if !ok {
		return
	}
	kpis, err := h.kpis.ListByDepartment(c.Request.Context(), c.Param("dept"), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("department KPIs", kpis))
}

func (h *KPIHTTPHandler) Logs(c *gin.Context) {
	actor, ok := resolveActor(c, h.identity)
	if !ok {
		return
	}
	entries, err := h.logs.Query(c.Request.Context(), auditlog.Filters{
		Dept:     c.Query("dept"),
		Manager:  c.Query("manager"),
		Employee: c.Query("employee"),
	}, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("audit log", entries))
}
