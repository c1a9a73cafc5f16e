package usecase

import (
	"context"
	"log/slog"
	"sync"

	syncdomain "mailflow-backend/internal/mailsync/domain"
	"mailflow-backend/pkg/logger"
	"mailflow-backend/pkg/metrics"
)

const (
	DefaultSyncWorkers   = 4
	DefaultSyncQueueSize = 256
)

// SyncJob represents one notification waiting for a sync pass
type SyncJob struct {
	AccountID  string
	CursorHint string
	Source     string
}

// SyncQueue runs sync passes off the request path on a fixed worker pool
type SyncQueue struct {
	runner      SyncRunner
	jobQueue    chan SyncJob
	workerWg    sync.WaitGroup
	workerCount int
	baseCtx     context.Context
	cancel      context.CancelFunc
	started     bool
	closed      bool
	mu          sync.RWMutex
	logger      *slog.Logger
}

// NewSyncQueue creates a new sync queue
func NewSyncQueue(runner SyncRunner, workerCount, queueSize int, l *slog.Logger) *SyncQueue {
	if workerCount <= 0 {
		workerCount = DefaultSyncWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultSyncQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SyncQueue{
		runner:      runner,
		jobQueue:    make(chan SyncJob, queueSize),
		workerCount: workerCount,
		baseCtx:     ctx,
		cancel:      cancel,
		logger:      logger.Component(l, "sync-queue"),
	}
}

// Start starts the sync workers
func (q *SyncQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started || q.closed {
		return
	}

	for i := 0; i < q.workerCount; i++ {
		q.workerWg.Add(1)
		go q.worker(i)
	}
	q.started = true
	q.logger.Info("started workers", "count", q.workerCount, "capacity", cap(q.jobQueue))
}

// Stop closes the queue and waits for queued jobs to drain. Passes still
// running when ctx expires are cancelled.
func (q *SyncQueue) Stop(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobQueue)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		q.logger.Warn("drain timed out, cancelling running passes")
		q.cancel()
		<-done
	}
	q.cancel()
	q.logger.Info("all workers stopped")
}

// TryEnqueue adds a job without blocking. It fails with ErrQueueFull when
// every slot is taken so the caller can push back on the sender.
func (q *SyncQueue) TryEnqueue(job SyncJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return syncdomain.ErrQueueClosed
	}

	select {
	case q.jobQueue <- job:
		metrics.SyncQueueDepth.Set(float64(len(q.jobQueue)))
		return nil
	default:
		return syncdomain.ErrQueueFull
	}
}

// Len is the number of jobs waiting for a worker.
func (q *SyncQueue) Len() int {
	return len(q.jobQueue)
}

func (q *SyncQueue) worker(id int) {
	defer q.workerWg.Done()

	for job := range q.jobQueue {
		metrics.SyncQueueDepth.Set(float64(len(q.jobQueue)))
		q.processJob(job)
	}

	q.logger.Debug("worker stopped", "worker", id)
}

func (q *SyncQueue) processJob(job SyncJob) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("sync pass panicked", "account_id", job.AccountID, "panic", r)
		}
	}()

	res, err := q.runner.RunSync(q.baseCtx, job.AccountID, job.CursorHint)
	if err != nil {
		q.logger.Error("sync pass failed",
			"account_id", job.AccountID,
			"hint", job.CursorHint,
			"source", job.Source,
			"retryable", syncdomain.IsRetryable(err),
			"error", err,
		)
		return
	}
	q.logger.Debug("sync job done", "account_id", job.AccountID, "status", res.Status)
}
