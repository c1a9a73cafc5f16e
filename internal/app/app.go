package app

import (
	"fmt"
	"log/slog"

	api "mailflow-backend/cmd/api"
	accountdomain "mailflow-backend/internal/account/domain"
	accountRepo "mailflow-backend/internal/account/repository"
	authUsecase "mailflow-backend/internal/auth/usecase"
	syncDelivery "mailflow-backend/internal/mailsync/delivery"
	syncdomain "mailflow-backend/internal/mailsync/domain"
	syncRepo "mailflow-backend/internal/mailsync/repository"
	syncUsecase "mailflow-backend/internal/mailsync/usecase"
	workflowRepo "mailflow-backend/internal/workflow/repository"
	"mailflow-backend/pkg/config"
	"mailflow-backend/pkg/gmail"
	"mailflow-backend/pkg/orchestrator"

	"gorm.io/gorm"
)

// App holds the wired service graph.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	DB          *gorm.DB
	Accounts    accountRepo.AccountRepository
	Coordinator *syncUsecase.Coordinator
	Watcher     *syncUsecase.Watcher
	Queue       *syncUsecase.SyncQueue
	Intake      *syncUsecase.Intake
	Auth        authUsecase.AuthUsecase
	Handler     *api.Handler
}

// Migrate creates the tables this service owns. Workflows belong to the
// workflow service and are only read.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&accountdomain.ConnectedAccount{}, &syncdomain.DispatchRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// New wires repositories, the sync engine and the HTTP layer. provider is
// the mailbox client; nil builds the Gmail client from cfg.
func New(cfg *config.Config, l *slog.Logger, db *gorm.DB, provider syncdomain.MailProvider, orch syncUsecase.Orchestrator) *App {
	// Initialize repositories (dependency injection)
	accounts := accountRepo.NewAccountRepository(db)
	workflows := workflowRepo.NewGormWorkflowRepository(db, l)
	records := syncRepo.NewDispatchRecordRepository(db)

	if provider == nil {
		provider = gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, l)
	}
	if orch == nil {
		orch = orchestrator.NewClient(cfg.OrchestratorURL, cfg.OrchestratorAPIKey, cfg.OrchestratorTimeout, l)
	}

	watcher := syncUsecase.NewWatcher(accounts, provider, cfg.TopicResourceName(), cfg.WatchRenewEvery, cfg.WatchRenewBefore, l)

	coordinator := syncUsecase.NewCoordinator(
		accounts,
		workflows,
		syncUsecase.NewFetcher(provider, l),
		syncUsecase.NewClassifier(provider, l),
		syncUsecase.NewGuard(records),
		syncUsecase.NewDispatcher(orch, l),
		l,
		syncUsecase.WithLockTTL(cfg.SyncLockTTL),
		syncUsecase.WithPassTimeout(cfg.SyncPassTimeout),
		syncUsecase.WithStaleCursorHandler(watcher.Rebaseline),
	)

	queue := syncUsecase.NewSyncQueue(coordinator, cfg.SyncWorkers, cfg.SyncQueueSize, l)
	intake := syncUsecase.NewIntake(accounts, queue, l)
	auth := authUsecase.NewAuthUsecase(cfg.JWTSecret)

	webhookHandler := syncDelivery.NewWebhookHandler(intake, watcher, l)
	handler := api.NewHandler(auth, webhookHandler, queue, l)

	return &App{
		Config:      cfg,
		Logger:      l,
		DB:          db,
		Accounts:    accounts,
		Coordinator: coordinator,
		Watcher:     watcher,
		Queue:       queue,
		Intake:      intake,
		Auth:        auth,
		Handler:     handler,
	}
}
