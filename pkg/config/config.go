package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	JWTSecret string `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`

	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Google OAuth client used to refresh mailbox credentials
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	// Cloud Pub/Sub
	GoogleProjectID          string `env:"GOOGLE_PROJECT_ID"`
	GooglePubSubTopic        string `env:"GOOGLE_PUBSUB_TOPIC"`
	GooglePubSubSubscription string `env:"GOOGLE_PUBSUB_SUBSCRIPTION"`
	GoogleCredentials        string `env:"GOOGLE_CREDENTIALS"`
	PubSubPullEnabled        bool   `env:"PUBSUB_PULL_ENABLED" envDefault:"false"`

	// Orchestrator
	OrchestratorURL     string        `env:"ORCHESTRATOR_URL" envDefault:"http://localhost:4200/api"`
	OrchestratorAPIKey  string        `env:"ORCHESTRATOR_API_KEY"`
	OrchestratorTimeout time.Duration `env:"ORCHESTRATOR_TIMEOUT" envDefault:"15s"`

	// Sync engine
	SyncLockTTL      time.Duration `env:"SYNC_LOCK_TTL" envDefault:"5m"`
	SyncPassTimeout  time.Duration `env:"SYNC_PASS_TIMEOUT" envDefault:"4m"`
	SyncWorkers      int           `env:"SYNC_WORKERS" envDefault:"4"`
	SyncQueueSize    int           `env:"SYNC_QUEUE_SIZE" envDefault:"256"`
	WatchRenewEvery  time.Duration `env:"WATCH_RENEW_INTERVAL" envDefault:"1h"`
	WatchRenewBefore time.Duration `env:"WATCH_RENEW_BEFORE" envDefault:"24h"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// PubSubEnabled reports whether enough is configured to talk to Cloud Pub/Sub.
func (c *Config) PubSubEnabled() bool {
	return c.GoogleProjectID != "" && c.GooglePubSubTopic != ""
}

// TopicShortName extracts the short topic name from a full resource name
// ("projects/p/topics/gmail-updates" -> "gmail-updates").
func (c *Config) TopicShortName() string {
	topicName := c.GooglePubSubTopic
	if parts := strings.Split(topicName, "/"); len(parts) > 1 {
		topicName = parts[len(parts)-1]
	}
	if topicName == "" {
		topicName = "gmail-updates"
	}
	return topicName
}

// TopicResourceName is the full topic name users.watch expects.
func (c *Config) TopicResourceName() string {
	if strings.HasPrefix(c.GooglePubSubTopic, "projects/") {
		return c.GooglePubSubTopic
	}
	return fmt.Sprintf("projects/%s/topics/%s", c.GoogleProjectID, c.TopicShortName())
}

// SubscriptionName defaults to "<topic>-sub".
func (c *Config) SubscriptionName() string {
	if c.GooglePubSubSubscription != "" {
		return c.GooglePubSubSubscription
	}
	return c.TopicShortName() + "-sub"
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.SyncPassTimeout >= cfg.SyncLockTTL {
		return nil, fmt.Errorf("SYNC_PASS_TIMEOUT (%s) must be shorter than SYNC_LOCK_TTL (%s)", cfg.SyncPassTimeout, cfg.SyncLockTTL)
	}
	if cfg.SyncWorkers <= 0 {
		return nil, fmt.Errorf("SYNC_WORKERS must be positive, got %d", cfg.SyncWorkers)
	}

	return cfg, nil
}
