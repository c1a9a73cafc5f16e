package domain

import "time"

const ProviderGoogle = "google"

// ConnectedAccount is one (user, mailbox provider) connection together with
// its sync state. Only the sync coordinator mutates Cursor and LockAcquiredAt.
type ConnectedAccount struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	UserID         string     `json:"user_id" gorm:"index;not null"`
	Provider       string     `json:"provider" gorm:"not null;uniqueIndex:idx_provider_email"`
	EmailAddress   string     `json:"email_address" gorm:"not null;uniqueIndex:idx_provider_email"`
	AccessToken    string     `json:"-" gorm:"type:text;not null"`
	RefreshToken   string     `json:"-" gorm:"type:text"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`

	// Cursor is the last Gmail history id a pass completed against.
	Cursor         *string    `json:"cursor,omitempty" gorm:"column:last_synced_history_id;type:text"`
	LockAcquiredAt *time.Time `json:"lock_acquired_at,omitempty"`
	WatchExpiresAt *time.Time `json:"watch_expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (ConnectedAccount) TableName() string {
	return "connected_accounts"
}

// HasCursor reports whether a baseline history id has been stored.
func (a *ConnectedAccount) HasCursor() bool {
	return a.Cursor != nil && *a.Cursor != ""
}

// CursorValue returns the stored cursor or "".
func (a *ConnectedAccount) CursorValue() string {
	if a.Cursor == nil {
		return ""
	}
	return *a.Cursor
}

// LockHeld reports whether a pass claimed the lock less than ttl ago.
func (a *ConnectedAccount) LockHeld(now time.Time, ttl time.Duration) bool {
	return a.LockAcquiredAt != nil && now.Sub(*a.LockAcquiredAt) < ttl
}
