package usecase

import (
	"context"
	"fmt"

	"mailflow-backend/internal/mailsync/repository"
)

// Guard enforces at most one dispatch per (message, workflow) pair.
type Guard struct {
	records repository.DispatchRecordRepository
}

func NewGuard(records repository.DispatchRecordRepository) *Guard {
	return &Guard{records: records}
}

// GuardAndRecord returns true when the pair has never been dispatched, and
// records it before returning. A crash after this call loses the dispatch
// rather than duplicating it.
func (g *Guard) GuardAndRecord(ctx context.Context, messageID, workflowID string) (bool, error) {
	exists, err := g.records.Exists(ctx, messageID, workflowID)
	if err != nil {
		return false, fmt.Errorf("failed to check dispatch record: %w", err)
	}
	if exists {
		return false, nil
	}

	// A concurrent pass may have inserted the pair since Exists
	created, err := g.records.Record(ctx, messageID, workflowID)
	if err != nil {
		return false, fmt.Errorf("failed to record dispatch: %w", err)
	}
	return created, nil
}
