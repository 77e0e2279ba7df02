package workflows

import (
	"context"
	"errors"
	"time"

	"emex-dashboard/pkg/logger"

	"github.com/google/uuid"
)

// RunTimeBased fires each active time_based workflow of the tenant that has no
// execution within its delay_days window before now. Firing records a completed
// execution; steps are not run. Returns the fired workflow ids.
func (x *Executor) RunTimeBased(ctx context.Context, tenantID string, now time.Time) ([]string, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	now = now.UTC()
	log := logger.From(ctx).With("tenant_id", tenantID, "sweep", "time_based")

	wfs, err := x.repo.ListActiveByTrigger(ctx, tenantID, TriggerTimeBased)
	if err != nil {
		return nil, err
	}

	fired := make([]string, 0)
	for _, wf := range wfs {
		days, err := delayDays(wf.TriggerConfig)
		if err != nil {
			log.Warn("time-based workflow misconfigured", "workflow_id", wf.ID, "error", err)
			continue
		}
		windowStart := now.AddDate(0, 0, -days)

		last, err := x.repo.LatestExecution(ctx, tenantID, wf.ID)
		switch {
		case err == nil:
			if last.ExecutedAt.After(windowStart) {
				continue
			}
		case errors.Is(err, ErrNotFound):
		default:
			log.Error("latest execution lookup failed", "workflow_id", wf.ID, "error", err)
			continue
		}

		exec := Execution{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			WorkflowID:  wf.ID,
			TriggerType: TriggerTimeBased,
			Status:      ExecutionCompleted,
			ExecutedAt:  now,
		}
		if err := x.repo.InsertExecution(ctx, exec); err != nil {
			log.Error("time-based execution not recorded", "workflow_id", wf.ID, "error", err)
			continue
		}
		fired = append(fired, wf.ID)
	}

	x.deps.Metrics.TimeBased(len(fired))
	log.Info("time-based sweep finished", "candidates", len(wfs), "fired", len(fired))
	return fired, nil
}
