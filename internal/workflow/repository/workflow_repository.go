package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	workflowdomain "mailflow-backend/internal/workflow/domain"
	"mailflow-backend/pkg/logger"
	"mailflow-backend/pkg/metrics"

	"gorm.io/gorm"
)

// WorkflowRepository is the read side of the workflow store.
type WorkflowRepository interface {
	// ListActiveWorkflows returns the owner's active workflows in insertion
	// order. Rows whose definition cannot be decoded are skipped.
	ListActiveWorkflows(ctx context.Context, ownerID string) ([]*workflowdomain.Workflow, error)
}

// workflowRow reads the definition as text so one bad row cannot fail the
// whole listing.
type workflowRow struct {
	ID          string
	UserID      string
	Name        string
	Description string
	Status      workflowdomain.Status
	Definition  *string `gorm:"column:ai_generated_definition"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type gormWorkflowRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewGormWorkflowRepository creates a new GORM-based WorkflowRepository
func NewGormWorkflowRepository(db *gorm.DB, l *slog.Logger) WorkflowRepository {
	return &gormWorkflowRepository{db: db, logger: logger.Component(l, "workflows")}
}

func (r *gormWorkflowRepository) ListActiveWorkflows(ctx context.Context, ownerID string) ([]*workflowdomain.Workflow, error) {
	var rows []workflowRow
	err := r.db.WithContext(ctx).
		Table(workflowdomain.Workflow{}.TableName()).
		Where("user_id = ? AND status = ?", ownerID, workflowdomain.StatusActive).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	workflows := make([]*workflowdomain.Workflow, 0, len(rows))
	for _, row := range rows {
		def, err := decodeDefinition(row.Definition)
		if err != nil {
			metrics.WorkflowsSkippedTotal.Inc()
			r.logger.Warn("skipping workflow with undecodable definition",
				"workflow_id", row.ID,
				"user_id", row.UserID,
				"error", err,
			)
			continue
		}
		workflows = append(workflows, &workflowdomain.Workflow{
			ID:          row.ID,
			UserID:      row.UserID,
			Name:        row.Name,
			Description: row.Description,
			Status:      row.Status,
			Definition:  def,
			CreatedAt:   row.CreatedAt,
			UpdatedAt:   row.UpdatedAt,
		})
	}
	return workflows, nil
}

func decodeDefinition(raw *string) (workflowdomain.Definition, error) {
	var def workflowdomain.Definition
	if raw == nil {
		return def, fmt.Errorf("workflow definition is null")
	}
	if err := def.UnmarshalJSON([]byte(*raw)); err != nil {
		return def, err
	}
	return def, nil
}
