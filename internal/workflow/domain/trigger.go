package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownTriggerType = errors.New("unknown trigger type")
	ErrUnknownActionType  = errors.New("unknown action type")
)

type TriggerType string

const (
	TriggerEmailReceived TriggerType = "email_received"
	TriggerNewSheetRow   TriggerType = "new_sheet_row"
	TriggerSchedule      TriggerType = "schedule"
)

// Trigger is the closed set of trigger kinds. Switch on the concrete type.
type Trigger interface {
	Type() TriggerType
	isTrigger()
}

// EmailReceivedTrigger fires for new inbox messages. Empty fields match
// everything.
type EmailReceivedTrigger struct {
	From            string `json:"from"`
	SubjectContains string `json:"subject_contains"`
}

type ScheduleTrigger struct {
	Cron        string `json:"cron"`
	Description string `json:"description,omitempty"`
}

type SheetRowTrigger struct {
	SpreadsheetID string `json:"spreadsheet_id"`
}

func (EmailReceivedTrigger) Type() TriggerType { return TriggerEmailReceived }
func (ScheduleTrigger) Type() TriggerType      { return TriggerSchedule }
func (SheetRowTrigger) Type() TriggerType      { return TriggerNewSheetRow }

func (EmailReceivedTrigger) isTrigger() {}
func (ScheduleTrigger) isTrigger()      {}
func (SheetRowTrigger) isTrigger()      {}

// rawVariant is the {type, config} envelope shared by triggers and actions.
type rawVariant struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

func decodeConfig(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func decodeTrigger(data []byte) (Trigger, error) {
	var raw rawVariant
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode trigger: %w", err)
	}

	var (
		t   Trigger
		err error
	)
	switch TriggerType(raw.Type) {
	case TriggerEmailReceived:
		var cfg EmailReceivedTrigger
		err = decodeConfig(raw.Config, &cfg)
		t = cfg
	case TriggerSchedule:
		var cfg ScheduleTrigger
		err = decodeConfig(raw.Config, &cfg)
		t = cfg
	case TriggerNewSheetRow:
		var cfg SheetRowTrigger
		err = decodeConfig(raw.Config, &cfg)
		t = cfg
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTriggerType, raw.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s trigger config: %w", raw.Type, err)
	}
	return t, nil
}

func encodeTrigger(t Trigger) ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	cfg, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rawVariant{Type: string(t.Type()), Config: cfg})
}
