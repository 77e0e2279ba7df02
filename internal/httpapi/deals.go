package httpapi

import (
	"net/http"
	"strings"

	"emex-dashboard/internal/deals"

	"github.com/gin-gonic/gin"
)

type createDealRequest struct {
	Title      string         `json:"title" validate:"required,max=200"`
	LeadID     string         `json:"lead_id" validate:"max=64"`
	Stage      string         `json:"stage" validate:"omitempty,oneof=lead qualified proposal negotiation won lost"`
	Value      float64        `json:"value" validate:"min=0"`
	Properties map[string]any `json:"properties"`
}

type updateStageRequest struct {
	Stage string `json:"stage" validate:"required,oneof=lead qualified proposal negotiation won lost"`
}

// CreateDeal stores a deal. deal_created workflows run before the response.
func (h Handlers) CreateDeal(c *gin.Context) {
	if h.Deals == nil {
		notConfigured(c, "deals")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	var req createDealRequest
	if !bind(c, &req) {
		return
	}
	if req.LeadID != "" && h.Leads != nil {
		if _, err := h.Leads.Get(c.Request.Context(), tid, req.LeadID); err != nil {
			fail(c, err)
			return
		}
	}
	d, err := h.Deals.Create(c.Request.Context(), tid, deals.Deal{
		Title:      req.Title,
		LeadID:     req.LeadID,
		Stage:      deals.Stage(req.Stage),
		Value:      req.Value,
		Properties: req.Properties,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h Handlers) GetDeal(c *gin.Context) {
	if h.Deals == nil {
		notConfigured(c, "deals")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	d, err := h.Deals.Get(c.Request.Context(), tid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h Handlers) ListDeals(c *gin.Context) {
	if h.Deals == nil {
		notConfigured(c, "deals")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	list, err := h.Deals.List(c.Request.Context(), tid, deals.Stage(strings.ToLower(c.Query("stage"))))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deals": list})
}

func (h Handlers) UpdateDealStage(c *gin.Context) {
	if h.Deals == nil {
		notConfigured(c, "deals")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	var req updateStageRequest
	if !bind(c, &req) {
		return
	}
	d, err := h.Deals.UpdateStage(c.Request.Context(), tid, c.Param("id"), deals.Stage(req.Stage))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// PatchDeal merges arbitrary fields into the deal without firing workflows.
func (h Handlers) PatchDeal(c *gin.Context) {
	if h.Deals == nil {
		notConfigured(c, "deals")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	d, applied, err := h.Deals.Patch(c.Request.Context(), tid, c.Param("id"), patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deal": d, "applied": applied})
}
