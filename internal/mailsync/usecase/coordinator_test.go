package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	syncdomain "mailflow-backend/internal/mailsync/domain"
	workflowdomain "mailflow-backend/internal/workflow/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRunSyncDispatchesMatchingMessage(t *testing.T) {
	h := newHarness(t, "90", emailWorkflow("wf-boss", "boss@co.com", ""))
	msg := inboxMessage("m1", "The Boss <boss@co.com>", "Q3 Report")

	// history lists the same message under two events
	h.provider.On("ListHistory", "90").Return([]string{"m1", "m1"}, nil).Once()
	h.provider.On("GetMessageMetadata", "m1").Return(msg, nil).Once()
	h.orch.On("Run", "wf-boss", syncdomain.NewTriggerContext(*msg)).Return(nil).Once()

	res, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.NoError(t, err)

	assert.Equal(t, SyncCompleted, res.Status)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 1, res.Qualified)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 1, res.Dispatched)
	assert.EqualValues(t, 1, h.dispatchCount())

	acc := h.reload()
	assert.Equal(t, "100", acc.CursorValue())
	assert.Nil(t, acc.LockAcquiredAt)

	h.provider.AssertExpectations(t)
	h.orch.AssertExpectations(t)
}

func TestRunSyncSkipsWhileLockHeld(t *testing.T) {
	h := newHarness(t, "90", emailWorkflow("wf-boss", "boss@co.com", ""))

	claimed, err := h.accounts.AcquireLock(context.Background(), h.account.ID, h.now.Add(-2*time.Minute), DefaultLockTTL)
	require.NoError(t, err)
	require.True(t, claimed)

	res, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.NoError(t, err)
	assert.Equal(t, SyncSkippedInProgress, res.Status)
	assert.ErrorIs(t, res.Err(), syncdomain.ErrSyncInProgress)

	h.provider.AssertNotCalled(t, "ListHistory", mock.Anything)
	assert.EqualValues(t, 0, h.dispatchCount())

	acc := h.reload()
	assert.Equal(t, "90", acc.CursorValue())
	require.NotNil(t, acc.LockAcquiredAt)
}

func TestRunSyncAfterExpiredLockAbsorbsDuplicate(t *testing.T) {
	h := newHarness(t, "90", emailWorkflow("wf-boss", "boss@co.com", ""))
	ctx := context.Background()

	// A previous pass recorded the dispatch and then died holding the lock
	_, err := h.records.Record(ctx, "m1", "wf-boss")
	require.NoError(t, err)
	claimed, err := h.accounts.AcquireLock(ctx, h.account.ID, h.now.Add(-6*time.Minute), DefaultLockTTL)
	require.NoError(t, err)
	require.True(t, claimed)

	h.provider.On("ListHistory", "90").Return([]string{"m1"}, nil).Once()
	h.provider.On("GetMessageMetadata", "m1").Return(inboxMessage("m1", "boss@co.com", "Q3 Report"), nil).Once()

	res, err := h.coord.RunSync(ctx, h.account.ID, "100")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 0, res.Dispatched)
	assert.EqualValues(t, 1, h.dispatchCount())
	assert.Equal(t, "100", h.reload().CursorValue())

	h.orch.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	h.provider.AssertExpectations(t)
}

func TestRunSyncNeverMatchesSpam(t *testing.T) {
	h := newHarness(t, "90", emailWorkflow("wf-all", "", ""))

	h.provider.On("ListHistory", "90").Return([]string{"m-spam", "m-sent"}, nil).Once()
	h.provider.On("GetMessageMetadata", "m-spam").
		Return(inboxMessage("m-spam", "boss@co.com", "win", syncdomain.LabelInbox, syncdomain.LabelSpam), nil).Once()
	h.provider.On("GetMessageMetadata", "m-sent").
		Return(inboxMessage("m-sent", "me@co.com", "re: win", syncdomain.LabelSent), nil).Once()

	res, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 0, res.Qualified)
	assert.Equal(t, 0, res.Matched)
	assert.EqualValues(t, 0, h.dispatchCount())
	assert.Equal(t, "100", h.reload().CursorValue())

	h.orch.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestRunSyncDispatchesOnlyMatchingWorkflow(t *testing.T) {
	h := newHarness(t, "90",
		emailWorkflow("wf-from", "boss@co.com", ""),
		emailWorkflow("wf-subject", "", "invoice"),
	)
	msg := inboxMessage("m1", "Boss <boss@co.com>", "Q3 Report")

	h.provider.On("ListHistory", "90").Return([]string{"m1"}, nil).Once()
	h.provider.On("GetMessageMetadata", "m1").Return(msg, nil).Once()
	h.orch.On("Run", "wf-from", mock.Anything).Return(nil).Once()

	res, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 1, res.Dispatched)

	exists, err := h.records.Exists(context.Background(), "m1", "wf-subject")
	require.NoError(t, err)
	assert.False(t, exists)
	h.orch.AssertNumberOfCalls(t, "Run", 1)
}

func TestRunSyncTransientErrorKeepsCursor(t *testing.T) {
	h := newHarness(t, "90", emailWorkflow("wf-boss", "boss@co.com", ""))

	transient := &syncdomain.ProviderError{Op: "users.history.list", Kind: syncdomain.KindTransient, StatusCode: 503, Err: errors.New("backend error")}
	h.provider.On("ListHistory", "90").Return(nil, transient).Once()

	res, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.Error(t, err)
	assert.True(t, syncdomain.IsRetryable(err))
	assert.Equal(t, SyncFailed, res.Status)

	acc := h.reload()
	assert.Equal(t, "90", acc.CursorValue())
	assert.Nil(t, acc.LockAcquiredAt, "lock must be released so the next notification retries")

	// The retry resumes from the same cursor
	h.provider.On("ListHistory", "90").Return([]string{}, nil).Once()
	res, err = h.coord.RunSync(context.Background(), h.account.ID, "110")
	require.NoError(t, err)
	assert.Equal(t, SyncCompleted, res.Status)
	assert.Equal(t, "110", h.reload().CursorValue())
	h.provider.AssertExpectations(t)
}

func TestRunSyncStaleCursorRebaselines(t *testing.T) {
	h := newHarness(t, "5")

	var rebaselined []string
	h.coord.SetStaleCursorHandler(func(ctx context.Context, accountID string) error {
		rebaselined = append(rebaselined, accountID)
		return nil
	})

	stale := &syncdomain.ProviderError{Op: "users.history.list", Kind: syncdomain.KindStaleCursor, StatusCode: 404, Err: errors.New("not found")}
	h.provider.On("ListHistory", "5").Return(nil, stale).Once()

	_, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.Error(t, err)
	assert.True(t, syncdomain.IsStaleCursor(err))
	assert.False(t, syncdomain.IsRetryable(err))
	assert.Equal(t, []string{h.account.ID}, rebaselined)

	acc := h.reload()
	assert.Equal(t, "5", acc.CursorValue())
	assert.Nil(t, acc.LockAcquiredAt)
}

func TestRunSyncWithoutCursorBaselines(t *testing.T) {
	h := newHarness(t, "")

	res, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.NoError(t, err)
	assert.Equal(t, SyncBaselined, res.Status)
	assert.Equal(t, "100", h.reload().CursorValue())
	h.provider.AssertNotCalled(t, "ListHistory", mock.Anything)
}

func TestRunSyncIsolatesMessageAndDispatchFailures(t *testing.T) {
	h := newHarness(t, "90",
		emailWorkflow("wf-1", "", ""),
		emailWorkflow("wf-2", "", ""),
	)

	h.provider.On("ListHistory", "90").Return([]string{"m1", "m2", "m3", "m4"}, nil).Once()
	h.provider.On("GetMessageMetadata", "m1").Return(inboxMessage("m1", "a@co.com", "one"), nil).Once()
	h.provider.On("GetMessageMetadata", "m2").Return(nil, notFound("users.messages.get")).Once()
	h.provider.On("GetMessageMetadata", "m3").
		Return(nil, &syncdomain.ProviderError{Op: "users.messages.get", Kind: syncdomain.KindTransient, Err: errors.New("timeout")}).Once()
	h.provider.On("GetMessageMetadata", "m4").Return(inboxMessage("m4", "b@co.com", "four"), nil).Once()

	h.orch.On("Run", "wf-1", mock.MatchedBy(func(tc syncdomain.TriggerContext) bool { return tc.MessageID == "m1" })).
		Return(errors.New("orchestrator down")).Once()
	h.orch.On("Run", mock.Anything, mock.Anything).Return(nil)

	res, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, 2, res.Qualified)
	assert.Equal(t, 4, res.Matched)
	assert.Equal(t, 3, res.Dispatched)
	assert.Equal(t, 1, res.DispatchFailures)
	assert.Equal(t, 1, res.MessageErrors)

	// The failed dispatch stays recorded: at most once wins over retrying
	assert.EqualValues(t, 4, h.dispatchCount())
	assert.Equal(t, "100", h.reload().CursorValue())
}

func TestRunSyncIsIdempotentAcrossPasses(t *testing.T) {
	h := newHarness(t, "90", emailWorkflow("wf-boss", "BOSS@co.com", "report"))
	msg := inboxMessage("m1", "boss@co.com", "Q3 Report")

	h.provider.On("ListHistory", "90").Return([]string{"m1"}, nil).Once()
	h.provider.On("ListHistory", "100").Return([]string{"m1"}, nil).Once()
	h.provider.On("GetMessageMetadata", "m1").Return(msg, nil).Twice()
	h.orch.On("Run", "wf-boss", mock.Anything).Return(nil).Once()

	first, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.NoError(t, err)
	second, err := h.coord.RunSync(context.Background(), h.account.ID, "110")
	require.NoError(t, err)

	assert.Equal(t, 1, first.Dispatched)
	assert.Equal(t, 0, second.Dispatched)
	assert.Equal(t, 1, second.Duplicates)
	assert.EqualValues(t, 1, h.dispatchCount())
	h.orch.AssertNumberOfCalls(t, "Run", 1)
}

func TestRunSyncConcurrentPassesExcludeEachOther(t *testing.T) {
	h := newHarness(t, "90")

	entered := make(chan struct{})
	release := make(chan struct{})
	h.provider.On("ListHistory", "90").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return([]string{}, nil).Once()

	var wg sync.WaitGroup
	var first SyncResult
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = h.coord.RunSync(context.Background(), h.account.ID, "100")
	}()

	<-entered
	second, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.NoError(t, err)
	assert.Equal(t, SyncSkippedInProgress, second.Status)

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, SyncCompleted, first.Status)

	h.provider.AssertNumberOfCalls(t, "ListHistory", 1)
}

func TestRunSyncPassTimeoutReleasesLock(t *testing.T) {
	h := newHarness(t, "90", emailWorkflow("wf-1", "", ""))
	h.coord = NewCoordinator(h.accounts, h.coord.workflows, h.coord.fetcher, h.coord.classifier,
		h.coord.guard, h.coord.dispatcher, nil,
		WithClock(func() time.Time { return h.now }),
		WithPassTimeout(20*time.Millisecond),
	)

	h.provider.On("ListHistory", "90").Return([]string{"m1", "m2"}, nil).Once()
	h.provider.On("GetMessageMetadata", "m1").
		Run(func(mock.Arguments) { time.Sleep(50 * time.Millisecond) }).
		Return(inboxMessage("m1", "a@co.com", "slow"), nil).Once()
	h.orch.On("Run", mock.Anything, mock.Anything).Return(nil)

	_, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, syncdomain.IsRetryable(err))

	acc := h.reload()
	assert.Equal(t, "90", acc.CursorValue())
	assert.Nil(t, acc.LockAcquiredAt)
	h.provider.AssertNotCalled(t, "GetMessageMetadata", "m2")
}

func TestRunSyncDeadlineDuringLastMessageKeepsCursor(t *testing.T) {
	h := newHarness(t, "90", emailWorkflow("wf-1", "", ""))
	h.coord = NewCoordinator(h.accounts, h.coord.workflows, h.coord.fetcher, h.coord.classifier,
		h.coord.guard, h.coord.dispatcher, nil,
		WithClock(func() time.Time { return h.now }),
		WithPassTimeout(20*time.Millisecond),
	)

	h.provider.On("ListHistory", "90").Return([]string{"m1"}, nil).Once()
	h.provider.On("GetMessageMetadata", "m1").
		Run(func(mock.Arguments) { time.Sleep(50 * time.Millisecond) }).
		Return(inboxMessage("m1", "a@co.com", "slow"), nil).Once()
	h.orch.On("Run", mock.Anything, mock.Anything).Return(nil).Maybe()

	res, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, syncdomain.IsRetryable(err))
	assert.Equal(t, SyncFailed, res.Status)

	acc := h.reload()
	assert.Equal(t, "90", acc.CursorValue())
	assert.Nil(t, acc.LockAcquiredAt)
}

func TestRunSyncOlderHintNeverRollsBackCursor(t *testing.T) {
	h := newHarness(t, "120", emailWorkflow("wf-1", "", ""))

	h.provider.On("ListHistory", "120").Return([]string{}, nil).Once()

	res, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.NoError(t, err)
	assert.Equal(t, SyncCompleted, res.Status)
	assert.Equal(t, "120", res.Cursor)

	acc := h.reload()
	assert.Equal(t, "120", acc.CursorValue())
	assert.Nil(t, acc.LockAcquiredAt)
}

func TestNextCursor(t *testing.T) {
	tests := []struct {
		stored, hint, want string
	}{
		{"", "100", "100"},
		{"90", "100", "100"},
		{"100", "100", "100"},
		{"120", "100", "120"},
		{"99", "1000", "1000"},
		{"abc", "100", "100"},
		{"120", "opaque", "opaque"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextCursor(tt.stored, tt.hint), "stored=%q hint=%q", tt.stored, tt.hint)
	}
}

func TestRunSyncMatchesDespiteUndecodableWorkflow(t *testing.T) {
	h := newHarness(t, "90", emailWorkflow("wf-boss", "boss@co.com", ""))
	require.NoError(t, h.db.Exec(
		`INSERT INTO workflows (id, user_id, name, status, ai_generated_definition, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"wf-bad", "user-1", "bad", workflowdomain.StatusActive,
		`{"trigger":{"type":"email_received","config":{}},"actions":[{"type":"post_to_teams","config":{}}]}`,
		h.now, h.now,
	).Error)

	msg := inboxMessage("m1", "boss@co.com", "Q3 Report")
	h.provider.On("ListHistory", "90").Return([]string{"m1"}, nil).Once()
	h.provider.On("GetMessageMetadata", "m1").Return(msg, nil).Once()
	h.orch.On("Run", "wf-boss", syncdomain.NewTriggerContext(*msg)).Return(nil).Once()

	res, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dispatched)
	assert.Equal(t, "100", h.reload().CursorValue())
	h.orch.AssertExpectations(t)
}

func TestRunSyncUnknownAccount(t *testing.T) {
	h := newHarness(t, "90")

	_, err := h.coord.RunSync(context.Background(), "missing", "100")
	assert.ErrorIs(t, err, syncdomain.ErrAccountNotFound)
}

func TestMatchIgnoresNonEmailTriggers(t *testing.T) {
	h := newHarness(t, "90", workflowdomain.Workflow{
		ID:     "wf-cron",
		Name:   "cron",
		Status: workflowdomain.StatusActive,
		Definition: workflowdomain.Definition{
			Trigger: workflowdomain.ScheduleTrigger{Cron: "0 9 * * *"},
		},
	})

	h.provider.On("ListHistory", "90").Return([]string{"m1"}, nil).Once()
	h.provider.On("GetMessageMetadata", "m1").Return(inboxMessage("m1", "a@co.com", "hello"), nil).Once()

	res, err := h.coord.RunSync(context.Background(), h.account.ID, "100")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Qualified)
	assert.Equal(t, 0, res.Matched)
	h.orch.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}
