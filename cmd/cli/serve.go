package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailflow-backend/internal/notification"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, sync workers and watch renewal",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}

	a.Queue.Start()
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Queue.Stop(drainCtx)
	}()

	if cfg.PubSubEnabled() {
		a.Watcher.Start()
		defer a.Watcher.Stop()
	} else {
		log.Warn("pubsub not configured, watch renewal disabled")
	}

	// Pull delivery is optional; the push webhook works without it.
	if cfg.PubSubEnabled() && cfg.PubSubPullEnabled {
		subscriber, err := notification.NewService(ctx,
			cfg.GoogleProjectID,
			cfg.TopicShortName(),
			cfg.SubscriptionName(),
			cfg.GoogleCredentials,
			a.Intake,
			log,
		)
		if err != nil {
			log.Error("failed to create pubsub subscriber", "error", err)
		} else {
			defer subscriber.Close()
			go func() {
				if err := subscriber.Start(ctx); err != nil {
					log.Error("pubsub subscriber stopped", "error", err)
				}
			}()
		}
	}

	return a.Handler.Start(ctx, ":"+cfg.Port)
}
