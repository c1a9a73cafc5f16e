package domain

import "time"

// DispatchRecord marks a (message, workflow) pair as handed to the
// orchestrator. The pair is unique; rows are never updated or deleted.
type DispatchRecord struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	MessageID   string    `json:"message_id" gorm:"not null;uniqueIndex:uq_message_workflow_pair"`
	WorkflowID  string    `json:"workflow_id" gorm:"not null;uniqueIndex:uq_message_workflow_pair"`
	ProcessedAt time.Time `json:"processed_at"`
}

// TableName specifies the table name for GORM
func (DispatchRecord) TableName() string {
	return "processed_messages"
}
