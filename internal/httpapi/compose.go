package httpapi

import (
	"net/http"

	"emex-dashboard/internal/compose"

	"github.com/gin-gonic/gin"
)

// DraftEmail asks the LLM for a subject and body. The draft is returned, not stored.
func (h Handlers) DraftEmail(c *gin.Context) {
	if !h.Drafter.Enabled() {
		notConfigured(c, "compose")
		return
	}
	if _, ok := tenantID(c); !ok {
		return
	}
	var req compose.DraftRequest
	if !bind(c, &req) {
		return
	}
	d, err := h.Drafter.DraftEmail(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
