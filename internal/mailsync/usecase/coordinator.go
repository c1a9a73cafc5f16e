package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"time"

	accountdomain "mailflow-backend/internal/account/domain"
	accountrepo "mailflow-backend/internal/account/repository"
	syncdomain "mailflow-backend/internal/mailsync/domain"
	workflowdomain "mailflow-backend/internal/workflow/domain"
	workflowrepo "mailflow-backend/internal/workflow/repository"
	"mailflow-backend/pkg/logger"
	"mailflow-backend/pkg/metrics"

	"golang.org/x/oauth2"
)

const (
	DefaultLockTTL     = 5 * time.Minute
	DefaultPassTimeout = 4 * time.Minute
)

type SyncStatus string

const (
	SyncCompleted         SyncStatus = "completed"
	SyncBaselined         SyncStatus = "baselined"
	SyncSkippedInProgress SyncStatus = "skipped_in_progress"
	SyncFailed            SyncStatus = "failed"
)

// SyncResult summarizes one pass.
type SyncResult struct {
	AccountID        string     `json:"account_id"`
	Status           SyncStatus `json:"status"`
	Cursor           string     `json:"cursor,omitempty"`
	Fetched          int        `json:"fetched"`
	Qualified        int        `json:"qualified"`
	Matched          int        `json:"matched"`
	Dispatched       int        `json:"dispatched"`
	Duplicates       int        `json:"duplicates"`
	DispatchFailures int        `json:"dispatch_failures"`
	MessageErrors    int        `json:"message_errors"`
}

// Err returns ErrSyncInProgress for a skipped pass.
func (r SyncResult) Err() error {
	if r.Status == SyncSkippedInProgress {
		return syncdomain.ErrSyncInProgress
	}
	return nil
}

// StaleCursorHandler re-baselines an account whose cursor the provider no
// longer accepts.
type StaleCursorHandler func(ctx context.Context, accountID string) error

type CoordinatorOption func(*Coordinator)

func WithLockTTL(ttl time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.lockTTL = ttl }
}

func WithPassTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.passTimeout = d }
}

func WithStaleCursorHandler(h StaleCursorHandler) CoordinatorOption {
	return func(c *Coordinator) { c.onStaleCursor = h }
}

func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator runs sync passes: lock, fetch, classify, match, guard,
// dispatch, advance cursor.
type Coordinator struct {
	accounts   accountrepo.AccountRepository
	workflows  workflowrepo.WorkflowRepository
	fetcher    *Fetcher
	classifier *Classifier
	guard      *Guard
	dispatcher *Dispatcher

	lockTTL       time.Duration
	passTimeout   time.Duration
	onStaleCursor StaleCursorHandler
	now           func() time.Time
	logger        *slog.Logger
}

func NewCoordinator(
	accounts accountrepo.AccountRepository,
	workflows workflowrepo.WorkflowRepository,
	fetcher *Fetcher,
	classifier *Classifier,
	guard *Guard,
	dispatcher *Dispatcher,
	l *slog.Logger,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		accounts:    accounts,
		workflows:   workflows,
		fetcher:     fetcher,
		classifier:  classifier,
		guard:       guard,
		dispatcher:  dispatcher,
		lockTTL:     DefaultLockTTL,
		passTimeout: DefaultPassTimeout,
		now:         time.Now,
		logger:      logger.Component(l, "sync"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetStaleCursorHandler replaces the hook run after a stale-cursor pass.
func (c *Coordinator) SetStaleCursorHandler(h StaleCursorHandler) {
	c.onStaleCursor = h
}

// RunSync performs one pass for accountID. The stored cursor is the resume
// point; cursorHint becomes the new cursor when the pass completes, unless it
// is older than the stored one.
func (c *Coordinator) RunSync(ctx context.Context, accountID, cursorHint string) (SyncResult, error) {
	result := SyncResult{AccountID: accountID}

	account, err := c.accounts.FindByID(ctx, accountID)
	if err != nil {
		return result, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	if account == nil {
		return result, fmt.Errorf("%w: %s", syncdomain.ErrAccountNotFound, accountID)
	}

	acquired, err := c.accounts.AcquireLock(ctx, accountID, c.now(), c.lockTTL)
	if err != nil {
		return result, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		c.logger.Info("sync already in progress, skipping", "account_id", accountID, "hint", cursorHint)
		metrics.SyncPassesTotal.WithLabelValues(string(SyncSkippedInProgress)).Inc()
		result.Status = SyncSkippedInProgress
		return result, nil
	}

	start := time.Now()
	defer func() {
		metrics.SyncPassDuration.Observe(time.Since(start).Seconds())
	}()

	// Lock bookkeeping must survive the pass deadline
	bookkeeping := context.WithoutCancel(ctx)

	// Another pass may have advanced the cursor before we got the lock.
	account, err = c.accounts.FindByID(ctx, accountID)
	if err != nil || account == nil {
		if relErr := c.accounts.ReleaseLock(bookkeeping, accountID); relErr != nil {
			c.logger.Error("failed to release sync lock", "account_id", accountID, "error", relErr)
		}
		result.Status = SyncFailed
		metrics.SyncPassesTotal.WithLabelValues(string(SyncFailed)).Inc()
		if err == nil {
			err = syncdomain.ErrAccountNotFound
		}
		return result, fmt.Errorf("failed to reload account %s: %w", accountID, err)
	}

	passCtx, cancel := context.WithTimeout(ctx, c.passTimeout)
	defer cancel()

	result, err = c.runPass(passCtx, account, cursorHint, result)
	if err != nil {
		result.Status = SyncFailed
		metrics.SyncPassesTotal.WithLabelValues(string(SyncFailed)).Inc()
		if relErr := c.accounts.ReleaseLock(bookkeeping, accountID); relErr != nil {
			c.logger.Error("failed to release sync lock", "account_id", accountID, "error", relErr)
		}
		if syncdomain.IsStaleCursor(err) {
			c.handleStaleCursor(bookkeeping, accountID)
		}
		return result, err
	}

	cursor := nextCursor(account.CursorValue(), cursorHint)
	if err := c.accounts.UpdateCursor(bookkeeping, accountID, cursor); err != nil {
		metrics.SyncPassesTotal.WithLabelValues(string(SyncFailed)).Inc()
		if relErr := c.accounts.ReleaseLock(bookkeeping, accountID); relErr != nil {
			c.logger.Error("failed to release sync lock", "account_id", accountID, "error", relErr)
		}
		result.Status = SyncFailed
		return result, fmt.Errorf("failed to advance cursor: %w", err)
	}
	result.Cursor = cursor
	metrics.SyncPassesTotal.WithLabelValues(string(result.Status)).Inc()

	c.logger.Info("sync pass finished",
		"account_id", accountID,
		"status", result.Status,
		"cursor", cursor,
		"hint", cursorHint,
		"fetched", result.Fetched,
		"qualified", result.Qualified,
		"matched", result.Matched,
		"dispatched", result.Dispatched,
		"duplicates", result.Duplicates,
		"dispatch_failures", result.DispatchFailures,
	)
	return result, nil
}

func (c *Coordinator) runPass(ctx context.Context, account *accountdomain.ConnectedAccount, cursorHint string, result SyncResult) (SyncResult, error) {
	if !account.HasCursor() {
		// Nothing to resume from yet; the hint becomes the baseline.
		c.logger.Info("no stored cursor, baselining", "account_id", account.ID, "hint", cursorHint)
		result.Status = SyncBaselined
		return result, nil
	}

	creds := c.credentialsFor(account)

	ids, err := c.fetcher.FetchAddedMessageIDs(ctx, creds, account.CursorValue())
	if err != nil {
		return result, fmt.Errorf("failed to fetch history for account %s: %w", account.ID, err)
	}
	result.Fetched = len(ids)
	result.Status = SyncCompleted
	if len(ids) == 0 {
		return result, nil
	}

	workflows, err := c.workflows.ListActiveWorkflows(ctx, account.UserID)
	if err != nil {
		return result, fmt.Errorf("failed to list workflows for user %s: %w", account.UserID, err)
	}

	// Sorted only to keep logs stable between passes.
	for _, messageID := range slices.Sorted(maps.Keys(ids)) {
		if err := interrupted(ctx); err != nil {
			return result, err
		}

		meta, err := c.classifier.Classify(ctx, creds, messageID)
		if err != nil {
			result.MessageErrors++
			c.logger.Warn("failed to classify message", "account_id", account.ID, "message_id", messageID, "error", err)
			continue
		}
		if meta.IsNone() {
			continue
		}
		result.Qualified++

		msg := meta.UnwrapOr(syncdomain.MessageMetadata{})
		c.evaluate(ctx, msg, workflows, &result)
	}

	// A deadline hit during the last message leaves work undone.
	if err := interrupted(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// interrupted reports an expired or cancelled pass as a transient error so
// the cursor stays put.
func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sync pass interrupted: %w", &syncdomain.ProviderError{
			Op: "sync.pass", Kind: syncdomain.KindTransient, Err: err,
		})
	}
	return nil
}

// nextCursor returns hint unless both are Gmail history ids and hint is
// older than stored. The cursor never moves backwards.
func nextCursor(stored, hint string) string {
	if stored == "" {
		return hint
	}
	s, errS := strconv.ParseUint(stored, 10, 64)
	h, errH := strconv.ParseUint(hint, 10, 64)
	if errS == nil && errH == nil && h < s {
		return stored
	}
	return hint
}

func (c *Coordinator) evaluate(ctx context.Context, msg syncdomain.MessageMetadata, workflows []*workflowdomain.Workflow, result *SyncResult) {
	matched := Match(msg, workflows)
	result.Matched += len(matched)
	if len(matched) == 0 {
		return
	}

	trigger := syncdomain.NewTriggerContext(msg)
	for _, wf := range matched {
		proceed, err := c.guard.GuardAndRecord(ctx, msg.ID, wf.ID)
		if err != nil {
			result.DispatchFailures++
			c.logger.Error("dispatch guard failed", "message_id", msg.ID, "workflow_id", wf.ID, "error", err)
			continue
		}
		if !proceed {
			result.Duplicates++
			metrics.DispatchesTotal.WithLabelValues("duplicate").Inc()
			c.logger.Debug("already dispatched", "message_id", msg.ID, "workflow_id", wf.ID)
			continue
		}

		if c.dispatcher.Dispatch(ctx, wf, trigger) {
			result.Dispatched++
		} else {
			result.DispatchFailures++
		}
	}
}

func (c *Coordinator) handleStaleCursor(ctx context.Context, accountID string) {
	if c.onStaleCursor == nil {
		c.logger.Warn("stale cursor and no re-baseline handler", "account_id", accountID)
		return
	}
	c.logger.Warn("stale cursor, re-arming watch", "account_id", accountID)
	if err := c.onStaleCursor(ctx, accountID); err != nil {
		c.logger.Error("failed to re-baseline account", "account_id", accountID, "error", err)
	}
}

// credentialsFor persists refreshed tokens back onto the account row.
func (c *Coordinator) credentialsFor(account *accountdomain.ConnectedAccount) syncdomain.Credentials {
	return CredentialsFor(c.accounts, account, c.logger)
}

// CredentialsFor builds provider credentials whose refresh hook stores the
// new token pair.
func CredentialsFor(accounts accountrepo.AccountRepository, account *accountdomain.ConnectedAccount, l *slog.Logger) syncdomain.Credentials {
	accountID := account.ID
	creds := syncdomain.Credentials{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		OnRefresh: func(token *oauth2.Token) error {
			if err := accounts.SaveTokens(context.Background(), accountID, token); err != nil {
				return fmt.Errorf("failed to save refreshed token: %w", err)
			}
			l.Debug("refreshed token persisted", "account_id", accountID)
			return nil
		},
	}
	if account.TokenExpiresAt != nil {
		creds.Expiry = *account.TokenExpiresAt
	}
	return creds
}
