package domain

import (
	"encoding/json"
	"fmt"
)

type ActionType string

const (
	ActionSendSlackMessage ActionType = "send_slack_message"
	ActionSendEmail        ActionType = "send_email"
	ActionReplyEmail       ActionType = "reply_email"
	ActionLabelEmail       ActionType = "label_email"
	ActionCreateDocument   ActionType = "create_document"
)

// Action is the closed set of action kinds. The sync engine never runs
// actions; it only decodes them so malformed definitions surface early.
type Action interface {
	Type() ActionType
	isAction()
}

type SlackMessageAction struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
}

type SendEmailAction struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type ReplyEmailAction struct {
	Body string `json:"body"`
}

type LabelEmailAction struct {
	LabelIDs []string `json:"label_ids"`
}

type CreateDocumentAction struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (SlackMessageAction) Type() ActionType   { return ActionSendSlackMessage }
func (SendEmailAction) Type() ActionType      { return ActionSendEmail }
func (ReplyEmailAction) Type() ActionType     { return ActionReplyEmail }
func (LabelEmailAction) Type() ActionType     { return ActionLabelEmail }
func (CreateDocumentAction) Type() ActionType { return ActionCreateDocument }

func (SlackMessageAction) isAction()   {}
func (SendEmailAction) isAction()      {}
func (ReplyEmailAction) isAction()     {}
func (LabelEmailAction) isAction()     {}
func (CreateDocumentAction) isAction() {}

func decodeAction(data []byte) (Action, error) {
	var raw rawVariant
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode action: %w", err)
	}

	var (
		a   Action
		err error
	)
	switch ActionType(raw.Type) {
	case ActionSendSlackMessage:
		var cfg SlackMessageAction
		err = decodeConfig(raw.Config, &cfg)
		a = cfg
	case ActionSendEmail:
		var cfg SendEmailAction
		err = decodeConfig(raw.Config, &cfg)
		a = cfg
	case ActionReplyEmail:
		var cfg ReplyEmailAction
		err = decodeConfig(raw.Config, &cfg)
		a = cfg
	case ActionLabelEmail:
		var cfg LabelEmailAction
		err = decodeConfig(raw.Config, &cfg)
		a = cfg
	case ActionCreateDocument:
		var cfg CreateDocumentAction
		err = decodeConfig(raw.Config, &cfg)
		a = cfg
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, raw.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s action config: %w", raw.Type, err)
	}
	return a, nil
}

func encodeAction(a Action) ([]byte, error) {
	cfg, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rawVariant{Type: string(a.Type()), Config: cfg})
}
