package outreach

import (
	"net/http"
	"net/url"
	"strings"

	"emex-dashboard/internal/metrics"
	"emex-dashboard/pkg/logger"

	"github.com/gin-gonic/gin"
)

// transparentGIF is a 1x1 transparent GIF.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackingHandler serves the public open-pixel and click-redirect endpoints.
// Both are unauthenticated; tenant scope comes from the signed URL.
type TrackingHandler struct {
	Service *Service
	Tracker *Tracker
	Metrics *metrics.Metrics
}

// Open always answers with the pixel so mail clients never show a broken image.
func (h TrackingHandler) Open(c *gin.Context) {
	log := logger.FromGin(c)
	tenantID := c.Param("tenant_id")
	emailID := strings.TrimSuffix(c.Param("email_id"), ".gif")

	valid := h.Tracker.VerifyOpen(tenantID, emailID, c.Query("s"))
	h.Metrics.Tracking("open", valid)
	if valid {
		if err := h.Service.RecordOpen(c.Request.Context(), tenantID, emailID); err != nil {
			log.Warn("record open failed", "email_id", emailID, "err", err)
		}
	}

	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
	c.Data(http.StatusOK, "image/gif", transparentGIF)
}

// Click records the click and redirects. Unsigned targets are refused.
func (h TrackingHandler) Click(c *gin.Context) {
	log := logger.FromGin(c)
	tenantID := c.Param("tenant_id")
	emailID := c.Param("email_id")
	target := c.Query("u")

	valid := target != "" && h.Tracker.VerifyClick(tenantID, emailID, target, c.Query("s"))
	h.Metrics.Tracking("click", valid)
	if !valid {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid tracking link"})
		return
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid tracking link"})
		return
	}

	if err := h.Service.RecordClick(c.Request.Context(), tenantID, emailID); err != nil {
		log.Warn("record click failed", "email_id", emailID, "err", err)
	}
	c.Redirect(http.StatusFound, target)
}
