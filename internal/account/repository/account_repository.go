package repository

import (
	"context"
	"errors"
	"time"

	accountdomain "mailflow-backend/internal/account/domain"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// accountRepository implements AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new instance of accountRepository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{
		db: db,
	}
}

func (r *accountRepository) Create(ctx context.Context, account *accountdomain.ConnectedAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountRepository) first(ctx context.Context, query string, args ...interface{}) (*accountdomain.ConnectedAccount, error) {
	var account accountdomain.ConnectedAccount
	err := r.db.WithContext(ctx).Where(query, args...).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByID(ctx context.Context, id string) (*accountdomain.ConnectedAccount, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *accountRepository) FindByEmail(ctx context.Context, provider, email string) (*accountdomain.ConnectedAccount, error) {
	return r.first(ctx, "provider = ? AND LOWER(email_address) = LOWER(?)", provider, email)
}

func (r *accountRepository) FindByUserAndProvider(ctx context.Context, userID, provider string) (*accountdomain.ConnectedAccount, error) {
	return r.first(ctx, "user_id = ? AND provider = ?", userID, provider)
}

func (r *accountRepository) AcquireLock(ctx context.Context, id string, now time.Time, ttl time.Duration) (bool, error) {
	now = now.UTC()
	result := r.db.WithContext(ctx).
		Model(&accountdomain.ConnectedAccount{}).
		Where("id = ? AND (lock_acquired_at IS NULL OR lock_acquired_at <= ?)", id, now.Add(-ttl)).
		Updates(map[string]interface{}{
			"lock_acquired_at": now,
			"updated_at":       now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *accountRepository) ReleaseLock(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&accountdomain.ConnectedAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"lock_acquired_at": nil,
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (r *accountRepository) UpdateCursor(ctx context.Context, id, cursor string) error {
	return r.db.WithContext(ctx).
		Model(&accountdomain.ConnectedAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_synced_history_id": cursor,
			"lock_acquired_at":       nil,
			"updated_at":             time.Now().UTC(),
		}).Error
}

func (r *accountRepository) SaveTokens(ctx context.Context, id string, token *oauth2.Token) error {
	updates := map[string]interface{}{
		"access_token": token.AccessToken,
		"updated_at":   time.Now().UTC(),
	}
	// Google only returns a refresh token on some refreshes
	if token.RefreshToken != "" {
		updates["refresh_token"] = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		updates["token_expires_at"] = token.Expiry.UTC()
	}
	return r.db.WithContext(ctx).
		Model(&accountdomain.ConnectedAccount{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *accountRepository) UpdateWatch(ctx context.Context, id, cursor string, expiresAt time.Time) error {
	updates := map[string]interface{}{
		"watch_expires_at": expiresAt.UTC(),
		"updated_at":       time.Now().UTC(),
	}
	if cursor != "" {
		updates["last_synced_history_id"] = cursor
	}
	return r.db.WithContext(ctx).
		Model(&accountdomain.ConnectedAccount{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *accountRepository) ListWatchesExpiringBefore(ctx context.Context, provider string, before time.Time) ([]*accountdomain.ConnectedAccount, error) {
	var accounts []*accountdomain.ConnectedAccount
	err := r.db.WithContext(ctx).
		Where("provider = ? AND (watch_expires_at IS NULL OR watch_expires_at < ?)", provider, before.UTC()).
		Order("created_at ASC").
		Find(&accounts).Error
	return accounts, err
}
