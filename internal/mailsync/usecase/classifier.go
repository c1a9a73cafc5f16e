package usecase

import (
	"context"
	"log/slog"
	"slices"

	syncdomain "mailflow-backend/internal/mailsync/domain"
	"mailflow-backend/pkg/logger"
	"mailflow-backend/pkg/metrics"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Classifier decides whether a message is an inbox arrival worth matching.
type Classifier struct {
	provider syncdomain.MailProvider
	logger   *slog.Logger
}

func NewClassifier(provider syncdomain.MailProvider, l *slog.Logger) *Classifier {
	return &Classifier{
		provider: provider,
		logger:   logger.Component(l, "classifier"),
	}
}

// Classify fetches the message metadata. It returns None for messages that
// were deleted in the meantime or that are not in the primary inbox.
func (c *Classifier) Classify(ctx context.Context, creds syncdomain.Credentials, messageID string) (fn.Option[syncdomain.MessageMetadata], error) {
	none := fn.None[syncdomain.MessageMetadata]()

	meta, err := c.provider.GetMessageMetadata(ctx, creds, messageID)
	if err != nil {
		if syncdomain.IsNotFound(err) {
			c.logger.Debug("message vanished before classification", "message_id", messageID)
			metrics.MessagesClassifiedTotal.WithLabelValues("not_found").Inc()
			return none, nil
		}
		recordProviderError("messages.get", err)
		metrics.MessagesClassifiedTotal.WithLabelValues("error").Inc()
		return none, err
	}

	if !IsInboxMessage(meta.LabelIDs) {
		metrics.MessagesClassifiedTotal.WithLabelValues("filtered").Inc()
		return none, nil
	}

	metrics.MessagesClassifiedTotal.WithLabelValues("qualified").Inc()
	return fn.Some(*meta), nil
}

// IsInboxMessage is true for INBOX messages not marked spam or trash.
func IsInboxMessage(labelIDs []string) bool {
	if !slices.Contains(labelIDs, syncdomain.LabelInbox) {
		return false
	}
	return !slices.Contains(labelIDs, syncdomain.LabelSpam) &&
		!slices.Contains(labelIDs, syncdomain.LabelTrash)
}
