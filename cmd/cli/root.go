package cli

import (
	"fmt"
	"log/slog"

	"mailflow-backend/internal/app"
	"mailflow-backend/pkg/config"
	"mailflow-backend/pkg/database"
	"mailflow-backend/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	// logLevel overrides LOG_LEVEL when set.
	logLevel string

	// logFormat overrides LOG_FORMAT when set.
	logFormat string

	cfg *config.Config
	log *slog.Logger
)

// rootCmd is the base command. Without a subcommand it serves the API.
var rootCmd = &cobra.Command{
	Use:   "mailflow",
	Short: "Mailbox sync and workflow trigger engine",
	Long: `mailflow watches connected Gmail mailboxes, turns change notifications
into sync passes and starts the matching email-triggered workflows.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}
		log = logger.New(cfg.LogLevel, cfg.LogFormat)
		slog.SetDefault(log)
		return nil
	},
	RunE: runServe,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (default: $LOG_LEVEL)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logFormat, "log-format", "",
		"Log format: text, json (default: $LOG_FORMAT)",
	)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(tokenCmd)
}

// openApp connects to the database and wires the service graph.
func openApp() (*app.App, error) {
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := app.Migrate(db); err != nil {
		return nil, err
	}
	return app.New(cfg, log, db, nil, nil), nil
}
