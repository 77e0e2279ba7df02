package httpapi

import (
	"net/http"

	"emex-dashboard/internal/workflows"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
)

type workflowStepRequest struct {
	StepOrder  int                   `json:"step_order" validate:"min=0"`
	StepType   string                `json:"step_type" validate:"required,oneof=update_deal create_task send_email webhook wait"`
	StepConfig json.RawMessage       `json:"step_config"`
	Conditions []workflows.Condition `json:"conditions" validate:"omitempty,max=20"`
	IsActive   *bool                 `json:"is_active"`
}

type createWorkflowRequest struct {
	Name          string                `json:"name" validate:"required,max=200"`
	TriggerType   string                `json:"trigger_type" validate:"required,oneof=deal_created deal_stage_changed lead_created time_based"`
	TriggerConfig json.RawMessage       `json:"trigger_config"`
	IsActive      *bool                 `json:"is_active"`
	Steps         []workflowStepRequest `json:"steps" validate:"max=50,dive"`
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type triggerRequest struct {
	TriggerType string         `json:"trigger_type" validate:"required,oneof=deal_created deal_stage_changed lead_created time_based"`
	DealID      string         `json:"deal_id" validate:"max=64"`
	LeadID      string         `json:"lead_id" validate:"max=64"`
	Data        map[string]any `json:"data"`
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func (h Handlers) CreateWorkflow(c *gin.Context) {
	if h.Workflows == nil {
		notConfigured(c, "workflows")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	var req createWorkflowRequest
	if !bind(c, &req) {
		return
	}
	w := workflows.Workflow{
		Name:          req.Name,
		TriggerType:   req.TriggerType,
		TriggerConfig: req.TriggerConfig,
		IsActive:      boolOr(req.IsActive, true),
	}
	for _, s := range req.Steps {
		w.Steps = append(w.Steps, workflows.Step{
			StepOrder:  s.StepOrder,
			StepType:   workflows.StepType(s.StepType),
			StepConfig: s.StepConfig,
			Conditions: s.Conditions,
			IsActive:   boolOr(s.IsActive, true),
		})
	}
	created, err := h.Workflows.Create(c.Request.Context(), tid, w)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h Handlers) GetWorkflow(c *gin.Context) {
	if h.Workflows == nil {
		notConfigured(c, "workflows")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	w, err := h.Workflows.Get(c.Request.Context(), tid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h Handlers) ListWorkflows(c *gin.Context) {
	if h.Workflows == nil {
		notConfigured(c, "workflows")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	list, err := h.Workflows.List(c.Request.Context(), tid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": list})
}

func (h Handlers) SetWorkflowActive(c *gin.Context) {
	if h.Workflows == nil {
		notConfigured(c, "workflows")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	var req setActiveRequest
	if !bind(c, &req) {
		return
	}
	if err := h.Workflows.SetActive(c.Request.Context(), tid, c.Param("id"), *req.IsActive); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "is_active": *req.IsActive})
}

func (h Handlers) ListWorkflowExecutions(c *gin.Context) {
	if h.Workflows == nil {
		notConfigured(c, "workflows")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	execs, err := h.Workflows.ListExecutions(c.Request.Context(), tid, c.Param("id"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": execs})
}

// TriggerWorkflows runs every active workflow for the trigger type. The lead,
// when given, must belong to the caller's tenant.
func (h Handlers) TriggerWorkflows(c *gin.Context) {
	if h.Executor == nil {
		notConfigured(c, "workflow executor")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	var req triggerRequest
	if !bind(c, &req) {
		return
	}
	tc := workflows.TriggerContext{DealID: req.DealID, Data: req.Data}
	if req.LeadID != "" {
		if h.Leads == nil {
			notConfigured(c, "leads")
			return
		}
		l, err := h.Leads.Get(c.Request.Context(), tid, req.LeadID)
		if err != nil {
			fail(c, err)
			return
		}
		tc.Lead = &l
	}
	execs, err := h.Executor.Trigger(c.Request.Context(), tid, req.TriggerType, tc)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executed": workflows.ExecutedIDs(execs), "executions": execs})
}

// RunTimeBased fires due time-based workflows for the caller's tenant.
func (h Handlers) RunTimeBased(c *gin.Context) {
	if h.Executor == nil {
		notConfigured(c, "workflow executor")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	fired, err := h.Executor.RunTimeBased(c.Request.Context(), tid, h.now())
	if err != nil {
		fail(c, err)
		return
	}
	if fired == nil {
		fired = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"fired": fired})
}
