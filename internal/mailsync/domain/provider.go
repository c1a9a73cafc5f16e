package domain

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// TokenUpdateFunc is called when the provider client refreshed the access
// token so the new pair can be persisted.
type TokenUpdateFunc func(token *oauth2.Token) error

// Credentials identify the mailbox to the provider.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	// Expiry of AccessToken; zero when unknown.
	Expiry    time.Time
	OnRefresh TokenUpdateFunc
}

// MailProvider is the slice of the Gmail API the sync engine depends on.
// Errors are *ProviderError.
type MailProvider interface {
	// Watch arms push notifications for the given labels on topicName.
	Watch(ctx context.Context, creds Credentials, topicName string, labelIDs []string) (*WatchResult, error)
	// ListHistory returns every message id recorded as added since
	// fromCursor. Ids may repeat.
	ListHistory(ctx context.Context, creds Credentials, fromCursor string) ([]string, error)
	// GetMessageMetadata fetches labels and headers of one message.
	GetMessageMetadata(ctx context.Context, creds Credentials, messageID string) (*MessageMetadata, error)
}
