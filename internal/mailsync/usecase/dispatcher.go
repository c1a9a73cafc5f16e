package usecase

import (
	"context"
	"log/slog"

	syncdomain "mailflow-backend/internal/mailsync/domain"
	workflowdomain "mailflow-backend/internal/workflow/domain"
	"mailflow-backend/pkg/logger"
	"mailflow-backend/pkg/metrics"
)

// Dispatcher hands matched workflows to the orchestrator. Failures stay here.
type Dispatcher struct {
	orchestrator Orchestrator
	logger       *slog.Logger
}

func NewDispatcher(orchestrator Orchestrator, l *slog.Logger) *Dispatcher {
	return &Dispatcher{
		orchestrator: orchestrator,
		logger:       logger.Component(l, "dispatcher"),
	}
}

// Dispatch starts a run and reports whether the orchestrator accepted it.
func (d *Dispatcher) Dispatch(ctx context.Context, wf *workflowdomain.Workflow, trigger syncdomain.TriggerContext) bool {
	if err := d.orchestrator.Run(ctx, wf.ID, trigger); err != nil {
		d.logger.Error("workflow dispatch failed",
			"workflow_id", wf.ID,
			"message_id", trigger.MessageID,
			"error", err,
		)
		metrics.DispatchesTotal.WithLabelValues("failed").Inc()
		return false
	}

	d.logger.Info("workflow dispatched", "workflow_id", wf.ID, "workflow", wf.Name, "message_id", trigger.MessageID)
	metrics.DispatchesTotal.WithLabelValues("dispatched").Inc()
	return true
}
