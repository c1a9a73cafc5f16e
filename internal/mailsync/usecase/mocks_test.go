package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	accountdomain "mailflow-backend/internal/account/domain"
	accountrepo "mailflow-backend/internal/account/repository"
	syncdomain "mailflow-backend/internal/mailsync/domain"
	"mailflow-backend/internal/mailsync/repository"
	"mailflow-backend/internal/testutil"
	workflowdomain "mailflow-backend/internal/workflow/domain"
	workflowrepo "mailflow-backend/internal/workflow/repository"
	"mailflow-backend/pkg/logger"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Watch(ctx context.Context, creds syncdomain.Credentials, topicName string, labelIDs []string) (*syncdomain.WatchResult, error) {
	args := m.Called(creds.AccessToken, topicName, labelIDs)
	res, _ := args.Get(0).(*syncdomain.WatchResult)
	return res, args.Error(1)
}

func (m *mockProvider) ListHistory(ctx context.Context, creds syncdomain.Credentials, fromCursor string) ([]string, error) {
	args := m.Called(fromCursor)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockProvider) GetMessageMetadata(ctx context.Context, creds syncdomain.Credentials, messageID string) (*syncdomain.MessageMetadata, error) {
	args := m.Called(messageID)
	meta, _ := args.Get(0).(*syncdomain.MessageMetadata)
	return meta, args.Error(1)
}

type mockOrchestrator struct {
	mock.Mock
}

func (m *mockOrchestrator) Run(ctx context.Context, workflowID string, trigger syncdomain.TriggerContext) error {
	return m.Called(workflowID, trigger).Error(0)
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []SyncJob
	err  error
}

func (q *recordingQueue) TryEnqueue(job SyncJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func notFound(op string) error {
	return &syncdomain.ProviderError{Op: op, Kind: syncdomain.KindNotFound, StatusCode: 404}
}

func inboxMessage(id, from, subject string, labels ...string) *syncdomain.MessageMetadata {
	if len(labels) == 0 {
		labels = []string{syncdomain.LabelInbox, "UNREAD"}
	}
	return &syncdomain.MessageMetadata{
		ID:          id,
		ThreadID:    "thread-" + id,
		LabelIDs:    labels,
		Subject:     subject,
		From:        from,
		FromAddress: addressOf(from),
		Snippet:     "snippet of " + id,
	}
}

func addressOf(from string) string {
	for i := len(from) - 1; i >= 0; i-- {
		if from[i] == '<' {
			return from[i+1 : len(from)-1]
		}
	}
	return from
}

// harness wires a coordinator over real SQLite stores and mocked remote
// collaborators.
type harness struct {
	t        *testing.T
	db       *gorm.DB
	accounts accountrepo.AccountRepository
	records  repository.DispatchRecordRepository
	provider *mockProvider
	orch     *mockOrchestrator
	coord    *Coordinator
	account  *accountdomain.ConnectedAccount
	now      time.Time
}

func newHarness(t *testing.T, cursor string, workflows ...workflowdomain.Workflow) *harness {
	t.Helper()

	db := testutil.NewTestDB(t,
		&accountdomain.ConnectedAccount{},
		&workflowdomain.Workflow{},
		&syncdomain.DispatchRecord{},
	)
	h := &harness{
		t:        t,
		db:       db,
		accounts: accountrepo.NewAccountRepository(db),
		records:  repository.NewDispatchRecordRepository(db),
		provider: &mockProvider{},
		orch:     &mockOrchestrator{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	h.account = &accountdomain.ConnectedAccount{
		UserID:       "user-1",
		Provider:     accountdomain.ProviderGoogle,
		EmailAddress: "me@co.com",
		AccessToken:  "access",
	}
	if cursor != "" {
		h.account.Cursor = &cursor
	}
	require.NoError(t, h.accounts.Create(context.Background(), h.account))

	for i := range workflows {
		if workflows[i].UserID == "" {
			workflows[i].UserID = "user-1"
		}
		if workflows[i].CreatedAt.IsZero() {
			workflows[i].CreatedAt = h.now.Add(time.Duration(i) * time.Second)
		}
		require.NoError(t, db.Create(&workflows[i]).Error)
	}

	l := logger.Discard()
	h.coord = NewCoordinator(
		h.accounts,
		workflowrepo.NewGormWorkflowRepository(db, l),
		NewFetcher(h.provider, l),
		NewClassifier(h.provider, l),
		NewGuard(h.records),
		NewDispatcher(h.orch, l),
		l,
		WithClock(func() time.Time { return h.now }),
	)
	return h
}

func (h *harness) reload() *accountdomain.ConnectedAccount {
	h.t.Helper()
	acc, err := h.accounts.FindByID(context.Background(), h.account.ID)
	require.NoError(h.t, err)
	require.NotNil(h.t, acc)
	return acc
}

func (h *harness) dispatchCount() int64 {
	h.t.Helper()
	var n int64
	require.NoError(h.t, h.db.Model(&syncdomain.DispatchRecord{}).Count(&n).Error)
	return n
}

func emailWorkflow(id, from, subject string) workflowdomain.Workflow {
	return workflowdomain.Workflow{
		ID:     id,
		Name:   id,
		Status: workflowdomain.StatusActive,
		Definition: workflowdomain.Definition{
			Trigger: workflowdomain.EmailReceivedTrigger{From: from, SubjectContains: subject},
			Actions: []workflowdomain.Action{workflowdomain.SlackMessageAction{Channel: "#ops", Message: "new mail"}},
		},
	}
}
