package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Notification is the JSON Gmail publishes to Pub/Sub for a mailbox change.
type Notification struct {
	EmailAddress string    `json:"emailAddress"`
	HistoryID    HistoryID `json:"historyId"`
}

// HistoryID accepts both the numeric and the quoted form Gmail emits.
type HistoryID string

func (h *HistoryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*h = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*h = HistoryID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("historyId must be a number or string: %w", err)
	}
	*h = HistoryID(n.String())
	return nil
}

// ParseNotification decodes the notification payload. Missing fields are
// not an error; check Complete.
func ParseNotification(data []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	n.EmailAddress = strings.TrimSpace(n.EmailAddress)
	return n, nil
}

// Complete reports whether both the account and the cursor hint are present.
func (n Notification) Complete() bool {
	return n.EmailAddress != "" && n.HistoryID != "" && n.HistoryID != "0"
}
