package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusPaused   Status = "paused"
	StatusFailed   Status = "failed"
)

// Workflow is owned by the workflow-management service; the sync engine only
// reads it.
type Workflow struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	UserID      string     `json:"user_id" gorm:"index;not null"`
	Name        string     `json:"name" gorm:"not null"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status" gorm:"default:inactive"`
	Definition  Definition `json:"definition" gorm:"column:ai_generated_definition;type:text;not null"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Workflow) TableName() string {
	return "workflows"
}

func (w *Workflow) IsActive() bool {
	return w.Status == StatusActive
}

// Definition is the compiled trigger plus ordered actions, stored as JSON.
type Definition struct {
	Trigger Trigger
	Actions []Action
}

type definitionJSON struct {
	Trigger json.RawMessage   `json:"trigger"`
	Actions []json.RawMessage `json:"actions"`
}

func (d Definition) MarshalJSON() ([]byte, error) {
	trig, err := encodeTrigger(d.Trigger)
	if err != nil {
		return nil, err
	}
	out := definitionJSON{Trigger: trig, Actions: make([]json.RawMessage, 0, len(d.Actions))}
	for _, a := range d.Actions {
		enc, err := encodeAction(a)
		if err != nil {
			return nil, err
		}
		out.Actions = append(out.Actions, enc)
	}
	return json.Marshal(out)
}

func (d *Definition) UnmarshalJSON(data []byte) error {
	var raw definitionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode workflow definition: %w", err)
	}
	if len(raw.Trigger) == 0 || string(raw.Trigger) == "null" {
		return fmt.Errorf("%w: missing trigger", ErrUnknownTriggerType)
	}

	trig, err := decodeTrigger(raw.Trigger)
	if err != nil {
		return err
	}
	actions := make([]Action, 0, len(raw.Actions))
	for _, ra := range raw.Actions {
		a, err := decodeAction(ra)
		if err != nil {
			return err
		}
		actions = append(actions, a)
	}

	d.Trigger = trig
	d.Actions = actions
	return nil
}

// Value implements driver.Valuer
func (d Definition) Value() (driver.Value, error) {
	b, err := d.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (d *Definition) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	case nil:
		return fmt.Errorf("workflow definition is null")
	default:
		return fmt.Errorf("unsupported definition column type %T", value)
	}
	return d.UnmarshalJSON(bytes)
}
