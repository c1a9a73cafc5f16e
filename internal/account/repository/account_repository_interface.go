package repository

import (
	"context"
	"time"

	accountdomain "mailflow-backend/internal/account/domain"

	"golang.org/x/oauth2"
)

// AccountRepository persists connected accounts and their sync state.
// Finders return (nil, nil) when nothing matches.
type AccountRepository interface {
	Create(ctx context.Context, account *accountdomain.ConnectedAccount) error
	FindByID(ctx context.Context, id string) (*accountdomain.ConnectedAccount, error)
	FindByEmail(ctx context.Context, provider, email string) (*accountdomain.ConnectedAccount, error)
	FindByUserAndProvider(ctx context.Context, userID, provider string) (*accountdomain.ConnectedAccount, error)

	// AcquireLock claims the soft lock iff it is free or older than ttl, in
	// one conditional update. Returns false when another pass holds it.
	AcquireLock(ctx context.Context, id string, now time.Time, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, id string) error
	// UpdateCursor stores the new cursor and releases the lock together.
	UpdateCursor(ctx context.Context, id, cursor string) error

	SaveTokens(ctx context.Context, id string, token *oauth2.Token) error
	// UpdateWatch stores the watch expiry and, when cursor is non-empty, the
	// new baseline cursor.
	UpdateWatch(ctx context.Context, id, cursor string, expiresAt time.Time) error
	ListWatchesExpiringBefore(ctx context.Context, provider string, before time.Time) ([]*accountdomain.ConnectedAccount, error)
}
