package repository

import (
	"context"
	"errors"
	"time"

	syncdomain "mailflow-backend/internal/mailsync/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DispatchRecordRepository is the dedup store for (message, workflow) pairs.
type DispatchRecordRepository interface {
	Exists(ctx context.Context, messageID, workflowID string) (bool, error)
	// Record inserts the pair. It returns false without error when the pair
	// already exists.
	Record(ctx context.Context, messageID, workflowID string) (bool, error)
}

type dispatchRecordRepository struct {
	db *gorm.DB
}

// NewDispatchRecordRepository creates a new instance of dispatchRecordRepository
func NewDispatchRecordRepository(db *gorm.DB) DispatchRecordRepository {
	return &dispatchRecordRepository{
		db: db,
	}
}

func (r *dispatchRecordRepository) Exists(ctx context.Context, messageID, workflowID string) (bool, error) {
	var record syncdomain.DispatchRecord
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND workflow_id = ?", messageID, workflowID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *dispatchRecordRepository) Record(ctx context.Context, messageID, workflowID string) (bool, error) {
	record := syncdomain.DispatchRecord{
		ID:          uuid.New().String(),
		MessageID:   messageID,
		WorkflowID:  workflowID,
		ProcessedAt: time.Now().UTC(),
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return false, result.Error
	}

	// Zero rows means the unique pair already existed
	return result.RowsAffected == 1, nil
}
