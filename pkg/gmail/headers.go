package gmail

import (
	"strings"

	syncdomain "mailflow-backend/internal/mailsync/domain"

	gomail "github.com/emersion/go-message/mail"
	"google.golang.org/api/gmail/v1"
)

func convertMessageMetadata(msg *gmail.Message) *syncdomain.MessageMetadata {
	var headers []*gmail.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}

	from := getHeader(headers, "From")

	return &syncdomain.MessageMetadata{
		ID:              msg.Id,
		ThreadID:        msg.ThreadId,
		LabelIDs:        msg.LabelIds,
		Subject:         decodeSubject(getHeader(headers, "Subject")),
		From:            from,
		FromAddress:     parseAddress(from),
		Snippet:         msg.Snippet,
		HeaderMessageID: getHeader(headers, "Message-ID"),
		References:      getHeader(headers, "References"),
	}
}

// getHeader matches case-insensitively; Gmail sends both "Message-ID" and
// "Message-Id".
func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// decodeSubject resolves RFC 2047 encoded words, keeping the raw value when
// decoding fails.
func decodeSubject(raw string) string {
	if raw == "" {
		return ""
	}
	var h gomail.Header
	h.Set("Subject", raw)
	subject, err := h.Subject()
	if err != nil {
		return raw
	}
	return subject
}

// parseAddress extracts "boss@co.com" from "Boss <boss@co.com>". Unparseable
// values are returned trimmed.
func parseAddress(from string) string {
	if from == "" {
		return ""
	}
	var h gomail.Header
	h.Set("From", from)
	addrs, err := h.AddressList("From")
	if err != nil || len(addrs) == 0 {
		if i, j := strings.LastIndex(from, "<"), strings.LastIndex(from, ">"); i >= 0 && j > i {
			return strings.TrimSpace(from[i+1 : j])
		}
		return strings.TrimSpace(from)
	}
	return addrs[0].Address
}
