package main

import (
	"context"
	"net/http"

	"emex-dashboard/internal/httpapi"
	"emex-dashboard/internal/outreach"
	"emex-dashboard/internal/rbac"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	Handlers httpapi.Handlers
	Tracking outreach.TrackingHandler
	AuthMW   gin.HandlerFunc
	LimitMW  gin.HandlerFunc
	Metrics  http.Handler
	Health   func(context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	// Tracking links are opened by mail clients, so they carry a signature instead of a token.
	r.GET(outreach.OpenPathPrefix+"/:tenant_id/:email_id", d.Tracking.Open)
	r.GET(outreach.ClickPathPrefix+"/:tenant_id/:email_id", d.Tracking.Click)

	h := d.Handlers

	v1 := r.Group("/v1")
	v1.Use(d.AuthMW)
	if d.LimitMW != nil {
		v1.Use(d.LimitMW)
	}
	v1.Use(rbac.RequireTenant())

	v1.GET("/me", h.Me)

	read := v1.Group("", rbac.RequireAnyRole(rbac.Readers...))
	{
		read.GET("/leads", h.ListLeads)
		read.GET("/leads/:id", h.GetLead)
		read.GET("/sequences", h.ListSequences)
		read.GET("/sequences/:id", h.GetSequence)
		read.GET("/sequences/:id/enrollments", h.ListEnrollments)
		read.GET("/enrollments/:id", h.GetEnrollment)
		read.GET("/workflows", h.ListWorkflows)
		read.GET("/workflows/:id", h.GetWorkflow)
		read.GET("/workflows/:id/executions", h.ListWorkflowExecutions)
		read.GET("/deals", h.ListDeals)
		read.GET("/deals/:id", h.GetDeal)
		read.GET("/outreach/emails/:id", h.GetEmail)
		read.GET("/reports/outreach", h.OutreachReport)
		read.GET("/reports/pipeline", h.PipelineReport)
		read.GET("/activity", h.ListActivity)
	}

	write := v1.Group("", rbac.RequireAnyRole(rbac.Editors...))
	{
		write.POST("/leads", h.CreateLead)
		write.POST("/leads/import", h.ImportLeads)
		write.PATCH("/leads/:id", h.UpdateLead)
		write.POST("/leads/:id/rescore", h.RescoreLead)

		write.POST("/sequences", h.CreateSequence)
		write.PUT("/sequences/:id/steps", h.UpdateSequenceSteps)
		write.POST("/sequences/:id/enroll", h.Enroll)

		write.POST("/workflows", h.CreateWorkflow)
		write.PUT("/workflows/:id/active", h.SetWorkflowActive)
		write.POST("/workflows/trigger", h.TriggerWorkflows)

		write.POST("/deals", h.CreateDeal)
		write.PUT("/deals/:id/stage", h.UpdateDealStage)
		write.PATCH("/deals/:id", h.PatchDeal)

		write.POST("/outreach/emails/:id/replied", h.MarkReplied)
		write.POST("/outreach/emails/:id/bounced", h.MarkBounced)

		write.POST("/compose/draft", h.DraftEmail)
	}

	// Cron endpoints. The scheduler role is hidden and only allowed here.
	cron := v1.Group("", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleScheduler))
	{
		cron.POST("/sequences/run", h.RunSequences)
		cron.POST("/workflows/time-based/run", h.RunTimeBased)
		cron.POST("/outreach/queue/process", h.ProcessQueue)
	}
}
