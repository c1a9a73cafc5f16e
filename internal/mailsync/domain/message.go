package domain

import "time"

// Gmail system labels the classifier cares about.
const (
	LabelInbox = "INBOX"
	LabelSpam  = "SPAM"
	LabelTrash = "TRASH"
	LabelSent  = "SENT"
)

// MessageMetadata is what the classifier extracts for a qualifying message.
type MessageMetadata struct {
	ID              string
	ThreadID        string
	LabelIDs        []string
	Subject         string
	From            string // raw From header, e.g. "Boss <boss@co.com>"
	FromAddress     string // parsed address, falls back to From
	Snippet         string
	HeaderMessageID string
	References      string
}

// TriggerContext is the payload handed to a dispatched workflow run.
type TriggerContext struct {
	MessageID       string `json:"message_id"`
	ThreadID        string `json:"thread_id"`
	Subject         string `json:"subject"`
	FromAddress     string `json:"from_address"`
	Snippet         string `json:"snippet"`
	HeaderMessageID string `json:"header_message_id"`
	References      string `json:"references"`
}

func NewTriggerContext(m MessageMetadata) TriggerContext {
	return TriggerContext{
		MessageID:       m.ID,
		ThreadID:        m.ThreadID,
		Subject:         m.Subject,
		FromAddress:     m.FromAddress,
		Snippet:         m.Snippet,
		HeaderMessageID: m.HeaderMessageID,
		References:      m.References,
	}
}

// WatchResult is returned by the provider when push notifications are armed.
type WatchResult struct {
	HistoryID  string
	Expiration time.Time
}
