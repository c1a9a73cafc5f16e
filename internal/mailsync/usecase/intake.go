package usecase

import (
	"context"
	"fmt"
	"log/slog"

	accountdomain "mailflow-backend/internal/account/domain"
	accountrepo "mailflow-backend/internal/account/repository"
	syncdomain "mailflow-backend/internal/mailsync/domain"
	"mailflow-backend/pkg/logger"
	"mailflow-backend/pkg/metrics"
)

type IntakeOutcome string

const (
	IntakeEnqueued       IntakeOutcome = "enqueued"
	IntakeIgnored        IntakeOutcome = "ignored"
	IntakeUnknownAccount IntakeOutcome = "unknown_account"
)

// Enqueuer is satisfied by *SyncQueue.
type Enqueuer interface {
	TryEnqueue(job SyncJob) error
}

// Intake turns a decoded notification payload into a queued sync job. It is
// shared by the push webhook and the pull subscriber.
type Intake struct {
	accounts accountrepo.AccountRepository
	queue    Enqueuer
	logger   *slog.Logger
}

func NewIntake(accounts accountrepo.AccountRepository, queue Enqueuer, l *slog.Logger) *Intake {
	return &Intake{
		accounts: accounts,
		queue:    queue,
		logger:   logger.Component(l, "intake"),
	}
}

// Handle parses payload and enqueues a sync pass. Malformed JSON and a full
// queue are returned as errors so the sender redelivers; incomplete payloads
// and unknown mailboxes are absorbed.
func (i *Intake) Handle(ctx context.Context, payload []byte, source string) (IntakeOutcome, error) {
	n, err := syncdomain.ParseNotification(payload)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(source, "malformed").Inc()
		return "", err
	}

	if !n.Complete() {
		i.logger.Warn("notification ignored (missing keys)", "source", source, "email", n.EmailAddress, "history_id", n.HistoryID)
		metrics.NotificationsTotal.WithLabelValues(source, string(IntakeIgnored)).Inc()
		return IntakeIgnored, nil
	}

	account, err := i.accounts.FindByEmail(ctx, accountdomain.ProviderGoogle, n.EmailAddress)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(source, "error").Inc()
		return "", fmt.Errorf("failed to resolve account for %s: %w", n.EmailAddress, err)
	}
	if account == nil {
		i.logger.Warn("no connected account for notification", "source", source, "email", n.EmailAddress)
		metrics.NotificationsTotal.WithLabelValues(source, string(IntakeUnknownAccount)).Inc()
		return IntakeUnknownAccount, nil
	}

	job := SyncJob{
		AccountID:  account.ID,
		CursorHint: string(n.HistoryID),
		Source:     source,
	}
	if err := i.queue.TryEnqueue(job); err != nil {
		i.logger.Warn("could not enqueue sync job", "account_id", account.ID, "error", err)
		metrics.NotificationsTotal.WithLabelValues(source, "rejected").Inc()
		return "", err
	}

	i.logger.Debug("sync job enqueued", "source", source, "account_id", account.ID, "history_id", n.HistoryID)
	metrics.NotificationsTotal.WithLabelValues(source, string(IntakeEnqueued)).Inc()
	return IntakeEnqueued, nil
}
