package httpapi

import (
	"net/http"

	"emex-dashboard/internal/sequences"

	"github.com/gin-gonic/gin"
)

type stepRequest struct {
	Subject   string `json:"subject" validate:"required,max=500"`
	Content   string `json:"content" validate:"required"`
	DelayDays int    `json:"delayDays" validate:"min=0,max=365"`
}

type createSequenceRequest struct {
	Name  string        `json:"name" validate:"required,max=200"`
	Steps []stepRequest `json:"steps" validate:"required,min=1,max=50,dive"`
}

type updateStepsRequest struct {
	Steps []stepRequest `json:"steps" validate:"required,min=1,max=50,dive"`
}

type enrollRequest struct {
	LeadIDs          []string `json:"lead_ids" validate:"required,min=1,max=1000,dive,required"`
	StartImmediately bool     `json:"start_immediately"`
}

func toSteps(in []stepRequest) []sequences.Step {
	out := make([]sequences.Step, 0, len(in))
	for _, s := range in {
		out = append(out, sequences.Step{Subject: s.Subject, Content: s.Content, DelayDays: s.DelayDays})
	}
	return out
}

func (h Handlers) CreateSequence(c *gin.Context) {
	if h.Sequences == nil {
		notConfigured(c, "sequences")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	var req createSequenceRequest
	if !bind(c, &req) {
		return
	}
	seq, err := h.Sequences.CreateSequence(c.Request.Context(), tid, req.Name, toSteps(req.Steps))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, seq)
}

func (h Handlers) GetSequence(c *gin.Context) {
	if h.Sequences == nil {
		notConfigured(c, "sequences")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	seq, err := h.Sequences.GetSequence(c.Request.Context(), tid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, seq)
}

func (h Handlers) ListSequences(c *gin.Context) {
	if h.Sequences == nil {
		notConfigured(c, "sequences")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	list, err := h.Sequences.ListSequences(c.Request.Context(), tid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sequences": list})
}

func (h Handlers) UpdateSequenceSteps(c *gin.Context) {
	if h.Sequences == nil {
		notConfigured(c, "sequences")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	var req updateStepsRequest
	if !bind(c, &req) {
		return
	}
	seq, err := h.Sequences.UpdateSteps(c.Request.Context(), tid, c.Param("id"), toSteps(req.Steps))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, seq)
}

func (h Handlers) Enroll(c *gin.Context) {
	if h.Sequences == nil {
		notConfigured(c, "sequences")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	var req enrollRequest
	if !bind(c, &req) {
		return
	}
	es, err := h.Sequences.Enroll(c.Request.Context(), tid, c.Param("id"), req.LeadIDs, req.StartImmediately)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"enrollments": es, "enrolled": len(es)})
}

// ListEnrollments supports ?status=active|completed|failed.
func (h Handlers) ListEnrollments(c *gin.Context) {
	if h.Sequences == nil {
		notConfigured(c, "sequences")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	status := sequences.EnrollmentStatus(c.Query("status"))
	switch status {
	case "", sequences.EnrollmentActive, sequences.EnrollmentCompleted, sequences.EnrollmentFailed:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}
	es, err := h.Sequences.ListEnrollments(c.Request.Context(), tid, c.Param("id"), status)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": es})
}

func (h Handlers) GetEnrollment(c *gin.Context) {
	if h.Sequences == nil {
		notConfigured(c, "sequences")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	e, err := h.Sequences.GetEnrollment(c.Request.Context(), tid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// RunSequences runs one sequence sweep for the caller's tenant.
func (h Handlers) RunSequences(c *gin.Context) {
	if h.Runner == nil {
		notConfigured(c, "sequence runner")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	results, err := h.Runner.RunDue(c.Request.Context(), tid, h.now(), h.batchSize())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": sequences.Summarize(results), "results": results})
}
