package httpapi

import (
	"net/http"

	"emex-dashboard/internal/outreach"

	"github.com/gin-gonic/gin"
)

func (h Handlers) GetEmail(c *gin.Context) {
	if h.Emails == nil {
		notConfigured(c, "outreach")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	e, err := h.Emails.Get(c.Request.Context(), tid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// MarkReplied records an inbound reply. Late or repeated events are ignored.
func (h Handlers) MarkReplied(c *gin.Context) {
	if h.Emails == nil {
		notConfigured(c, "outreach")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	if err := h.Emails.MarkReplied(c.Request.Context(), tid, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": outreach.StatusReplied})
}

// MarkBounced answers 409 when the email already saw engagement.
func (h Handlers) MarkBounced(c *gin.Context) {
	if h.Emails == nil {
		notConfigured(c, "outreach")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	e, err := h.Emails.MarkBounced(c.Request.Context(), tid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// ProcessQueue delivers queued workflow emails for the caller's tenant.
func (h Handlers) ProcessQueue(c *gin.Context) {
	if h.Queue == nil {
		notConfigured(c, "outreach queue")
		return
	}
	tid, ok := tenantID(c)
	if !ok {
		return
	}
	results, err := h.Queue.ProcessQueued(c.Request.Context(), tid, h.now(), h.batchSize())
	if err != nil {
		fail(c, err)
		return
	}
	counts := map[outreach.QueueOutcome]int{}
	for _, r := range results {
		counts[r.Outcome]++
	}
	c.JSON(http.StatusOK, gin.H{"processed": len(results), "outcomes": counts, "results": results})
}
