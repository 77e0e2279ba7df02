package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"emex-dashboard/internal/auth"
	"emex-dashboard/internal/leads"
	"emex-dashboard/internal/workflows"
	"emex-dashboard/pkg/logger"

	"github.com/gin-gonic/gin"
)

// maxImportBytes caps raw and multipart CSV uploads.
var maxImportBytes int64 = 10 << 20

type createLeadRequest struct {
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Email     string `json:"email" validate:"max=320"`
	Phone     string `json:"phone" validate:"max=40"`
	Company   string `json:"company" validate:"max=200"`
	JobTitle  string `json:"job_title" validate:"max=200"`
	Region    string `json:"region" validate:"omitempty,max=3"`
	Source    string `json:"source" validate:"max=100"`
}

// CreateLead scores and stores a lead, then fires lead_created workflows.
// Workflow failures never fail the request.
func (h Handlers) CreateLead(c *gin.Context) {
	if h.Leads == nil {
		notConfigured(c, "leads")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	var req createLeadRequest
	if !bind(c, &req) {
		return
	}
	l, err := h.Leads.Create(c.Request.Context(), tid, leads.Lead{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Company:   req.Company,
		JobTitle:  req.JobTitle,
		Region:    req.Region,
		Source:    req.Source,
	})
	if err != nil {
		fail(c, err)
		return
	}
	if h.Executor != nil {
		if _, err := h.Executor.Trigger(c.Request.Context(), tid, workflows.TriggerLeadCreated, workflows.TriggerContext{Lead: &l}); err != nil {
			logger.FromGin(c).Warn("lead_created workflows failed", "lead_id", l.ID, "err", err)
		}
	}
	c.JSON(http.StatusCreated, l)
}

func (h Handlers) GetLead(c *gin.Context) {
	if h.Leads == nil {
		notConfigured(c, "leads")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	l, err := h.Leads.Get(c.Request.Context(), tid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// ListLeads supports ?ready=true|false, ?min_score, ?limit and ?offset.
func (h Handlers) ListLeads(c *gin.Context) {
	if h.Leads == nil {
		notConfigured(c, "leads")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	var f leads.ListFilter
	if raw := c.Query("ready"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "ready must be a boolean"})
			return
		}
		f.OutreachReady = &b
	}
	if f.MinScore, ok = queryInt(c, "min_score", 0); !ok {
		return
	}
	if f.Limit, ok = queryInt(c, "limit", 50); !ok {
		return
	}
	if f.Offset, ok = queryInt(c, "offset", 0); !ok {
		return
	}
	list, err := h.Leads.List(c.Request.Context(), tid, f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": list, "count": len(list)})
}

func (h Handlers) UpdateLead(c *gin.Context) {
	if h.Leads == nil {
		notConfigured(c, "leads")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	var p leads.Patch
	if !bind(c, &p) {
		return
	}
	l, err := h.Leads.Update(c.Request.Context(), tid, c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h Handlers) RescoreLead(c *gin.Context) {
	if h.Leads == nil {
		notConfigured(c, "leads")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	l, err := h.Leads.Rescore(c.Request.Context(), tid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": l.ID, "score": l.Score, "is_outreach_ready": l.IsOutreachReady, "breakdown": leads.Breakdown(l)})
}

// ImportLeads accepts a multipart "file" field or a raw text/csv body.
func (h Handlers) ImportLeads(c *gin.Context) {
	if h.Leads == nil {
		notConfigured(c, "leads")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}

	var src io.Reader
	if fh, err := c.FormFile("file"); err == nil {
		if fh.Size > maxImportBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
			return
		}
		defer f.Close()
		src = f
	} else {
		src = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	}

	source := c.DefaultQuery("source", "csv_import")
	res, err := h.Leads.ImportCSV(c.Request.Context(), tid, src, source)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		fail(c, err)
		return
	}

	if h.Activity != nil {
		ctx := c.Request.Context()
		uid, _ := auth.UserID(ctx)
		role, _ := auth.Role(ctx)
		counts := map[string]any{
			"total":   res.TotalRows,
			"success": res.SuccessCount,
			"failure": res.FailureCount,
			"source":  source,
		}
		if err := h.Activity.LogLeadsImported(ctx, tid, uid, role, c.ClientIP(), counts); err != nil {
			logger.FromGin(c).Warn("activity log failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, res)
}
