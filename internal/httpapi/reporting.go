package httpapi

import (
	"net/http"
	"strings"

	"emex-dashboard/internal/audit"
	"emex-dashboard/internal/reporting"

	"github.com/gin-gonic/gin"
)

const defaultReportWindowDays = 30

// OutreachReport takes ?from and ?to as RFC3339 and defaults to the last 30 days.
func (h Handlers) OutreachReport(c *gin.Context) {
	if h.Reporting == nil {
		notConfigured(c, "reporting")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	now := h.now()
	to, ok := queryTime(c, "to", now)
	if !ok {
		return
	}
	from, ok := queryTime(c, "from", to.AddDate(0, 0, -defaultReportWindowDays))
	if !ok {
		return
	}
	sum, err := h.Reporting.OutreachSummary(c.Request.Context(), reporting.OutreachSummaryRequest{
		TenantID:   tid,
		Range:      reporting.TimeRange{From: from, To: to},
		SequenceID: c.Query("sequence_id"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) PipelineReport(c *gin.Context) {
	if h.Reporting == nil {
		notConfigured(c, "reporting")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	sum, err := h.Reporting.PipelineSummary(c.Request.Context(), reporting.PipelineSummaryRequest{TenantID: tid})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// ListActivity supports ?type, ?deal_id, ?lead_id and ?limit.
func (h Handlers) ListActivity(c *gin.Context) {
	if h.Activity == nil {
		notConfigured(c, "activity")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 100)
	if !ok {
		return
	}
	evs, err := h.Activity.List(c.Request.Context(), tid, audit.Filter{
		Type:   audit.EventType(strings.TrimSpace(c.Query("type"))),
		DealID: c.Query("deal_id"),
		LeadID: c.Query("lead_id"),
		Limit:  limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}
