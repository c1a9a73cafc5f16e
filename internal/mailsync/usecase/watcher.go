package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	accountdomain "mailflow-backend/internal/account/domain"
	accountrepo "mailflow-backend/internal/account/repository"
	syncdomain "mailflow-backend/internal/mailsync/domain"
	"mailflow-backend/pkg/logger"
	"mailflow-backend/pkg/metrics"
)

const (
	DefaultWatchRenewInterval = time.Hour
	DefaultWatchRenewBefore   = 24 * time.Hour
)

// Watcher arms Gmail push notifications and keeps them from expiring.
type Watcher struct {
	accounts    accountrepo.AccountRepository
	provider    syncdomain.MailProvider
	topicName   string
	interval    time.Duration
	renewBefore time.Duration
	now         func() time.Time
	stopChan    chan struct{}
	stopOnce    sync.Once
	logger      *slog.Logger
}

// NewWatcher creates a watcher publishing to topicName
// ("projects/<project>/topics/<topic>").
func NewWatcher(
	accounts accountrepo.AccountRepository,
	provider syncdomain.MailProvider,
	topicName string,
	interval, renewBefore time.Duration,
	l *slog.Logger,
) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchRenewInterval
	}
	if renewBefore <= 0 {
		renewBefore = DefaultWatchRenewBefore
	}
	return &Watcher{
		accounts:    accounts,
		provider:    provider,
		topicName:   topicName,
		interval:    interval,
		renewBefore: renewBefore,
		now:         time.Now,
		stopChan:    make(chan struct{}),
		logger:      logger.Component(l, "watcher"),
	}
}

// ArmWatch (re)arms the watch for accountID and makes the returned history
// id the new cursor. Used when connecting a mailbox and after a stale cursor.
func (w *Watcher) ArmWatch(ctx context.Context, accountID string) (*syncdomain.WatchResult, error) {
	account, err := w.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", syncdomain.ErrAccountNotFound, accountID)
	}
	return w.arm(ctx, account, true)
}

// ArmWatchForUser arms the watch on the user's Google account.
func (w *Watcher) ArmWatchForUser(ctx context.Context, userID string) (*syncdomain.WatchResult, error) {
	account, err := w.accounts.FindByUserAndProvider(ctx, userID, accountdomain.ProviderGoogle)
	if err != nil {
		return nil, fmt.Errorf("failed to load account for user %s: %w", userID, err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: no google account for user %s", syncdomain.ErrAccountNotFound, userID)
	}
	return w.arm(ctx, account, true)
}

// RenewExpiring re-arms every watch expiring within the renew window. Stored
// cursors are kept so no history is skipped.
func (w *Watcher) RenewExpiring(ctx context.Context) (renewed int, err error) {
	deadline := w.now().Add(w.renewBefore)
	accounts, err := w.accounts.ListWatchesExpiringBefore(ctx, accountdomain.ProviderGoogle, deadline)
	if err != nil {
		return 0, fmt.Errorf("failed to list expiring watches: %w", err)
	}
	if len(accounts) == 0 {
		return 0, nil
	}

	w.logger.Info("renewing expiring watches", "count", len(accounts))
	for _, account := range accounts {
		// Accounts that never synced get their baseline from the watch
		if _, err := w.arm(ctx, account, !account.HasCursor()); err != nil {
			w.logger.Error("failed to renew watch", "account_id", account.ID, "error", err)
			continue
		}
		renewed++
	}
	return renewed, nil
}

// Rebaseline adapts ArmWatch to the coordinator's stale-cursor hook.
func (w *Watcher) Rebaseline(ctx context.Context, accountID string) error {
	_, err := w.ArmWatch(ctx, accountID)
	return err
}

func (w *Watcher) arm(ctx context.Context, account *accountdomain.ConnectedAccount, rebaseline bool) (*syncdomain.WatchResult, error) {
	creds := CredentialsFor(w.accounts, account, w.logger)

	res, err := w.provider.Watch(ctx, creds, w.topicName, []string{syncdomain.LabelInbox})
	if err != nil {
		metrics.WatchRenewalsTotal.WithLabelValues("failed").Inc()
		recordProviderError("users.watch", err)
		return nil, fmt.Errorf("failed to arm watch for %s: %w", account.EmailAddress, err)
	}

	cursor := ""
	if rebaseline {
		cursor = res.HistoryID
	}
	if err := w.accounts.UpdateWatch(ctx, account.ID, cursor, res.Expiration); err != nil {
		metrics.WatchRenewalsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to store watch state: %w", err)
	}

	metrics.WatchRenewalsTotal.WithLabelValues("success").Inc()
	w.logger.Info("watch armed",
		"account_id", account.ID,
		"email", account.EmailAddress,
		"history_id", res.HistoryID,
		"expires_at", res.Expiration,
		"rebaselined", rebaseline,
	)
	return res, nil
}

// Start begins the renewal loop
func (w *Watcher) Start() {
	w.logger.Info("starting watch renewal", "interval", w.interval, "renew_before", w.renewBefore)

	go func() {
		// Run immediately on start
		w.renewOnce()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.renewOnce()
			case <-w.stopChan:
				w.logger.Info("watch renewal stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the renewal loop. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

func (w *Watcher) renewOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	if _, err := w.RenewExpiring(ctx); err != nil {
		w.logger.Error("watch renewal failed", "error", err)
	}
}
