package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"emex-dashboard/internal/audit"
	"emex-dashboard/internal/auth"
	"emex-dashboard/internal/compose"
	"emex-dashboard/internal/deals"
	"emex-dashboard/internal/leads"
	"emex-dashboard/internal/outreach"
	"emex-dashboard/internal/reporting"
	"emex-dashboard/internal/sequences"
	"emex-dashboard/internal/workflows"
	"emex-dashboard/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
// Every handler reads the tenant from the verified token, never from the request.
type Handlers struct {
	Leads     *leads.Service
	Sequences *sequences.Service
	Runner    *sequences.Runner
	Workflows *workflows.Service
	Executor  *workflows.Executor
	Deals     *deals.Service
	Emails    *outreach.Service
	Queue     *outreach.QueueProcessor
	Drafter   *compose.Drafter
	Reporting *reporting.Service
	Activity  *audit.Service

	// BatchSize caps the items one manual sweep request processes.
	BatchSize int
	Clock     func() time.Time
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (h Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

func (h Handlers) batchSize() int {
	if h.BatchSize <= 0 {
		return 100
	}
	return h.BatchSize
}

// Me echoes the caller identity from the token.
func (h Handlers) Me(c *gin.Context) {
	ctx := c.Request.Context()
	uid, _ := auth.UserID(ctx)
	tid, _ := auth.TenantID(ctx)
	role, _ := auth.Role(ctx)
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "tenant_id": tid, "role": role})
}

func tenantID(c *gin.Context) (string, bool) {
	tid, err := auth.TenantID(c.Request.Context())
	if err != nil || tid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return "", false
	}
	return tid, true
}

// bind decodes the JSON body into dst and runs struct validation.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		logger.FromGin(c).Debug("invalid json", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": validationMessages(err)})
		return false
	}
	return true
}

func validationMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{"invalid request"}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Namespace() + " failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out = append(out, msg)
	}
	return out
}

func notConfigured(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": what + " not configured"})
}

// fail maps domain errors onto HTTP statuses. Unknown errors become a bare 500.
func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "path", c.FullPath(), "err", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, leads.ErrNotFound),
		errors.Is(err, sequences.ErrNotFound),
		errors.Is(err, workflows.ErrNotFound),
		errors.Is(err, deals.ErrNotFound),
		errors.Is(err, outreach.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, leads.ErrInvalidArgument),
		errors.Is(err, sequences.ErrInvalidArgument),
		errors.Is(err, workflows.ErrInvalidArgument),
		errors.Is(err, deals.ErrInvalidArgument),
		errors.Is(err, outreach.ErrInvalidArgument),
		errors.Is(err, compose.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest),
		errors.Is(err, audit.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, outreach.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, compose.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, compose.ErrEmptyDraft):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func queryTime(c *gin.Context, key string, def time.Time) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC3339"})
		return time.Time{}, false
	}
	return t.UTC(), true
}
