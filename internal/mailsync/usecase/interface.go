package usecase

import (
	"context"

	syncdomain "mailflow-backend/internal/mailsync/domain"
)

// Orchestrator runs a workflow with the trigger payload of one message.
type Orchestrator interface {
	Run(ctx context.Context, workflowID string, trigger syncdomain.TriggerContext) error
}

// SyncRunner is what the queue workers and the CLI drive.
type SyncRunner interface {
	RunSync(ctx context.Context, accountID, cursorHint string) (SyncResult, error)
}
