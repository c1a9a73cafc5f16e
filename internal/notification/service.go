package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	syncdomain "mailflow-backend/internal/mailsync/domain"
	"mailflow-backend/internal/mailsync/usecase"
	"mailflow-backend/pkg/logger"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

const source = "pubsub"

// Handler is satisfied by *usecase.Intake.
type Handler interface {
	Handle(ctx context.Context, payload []byte, source string) (usecase.IntakeOutcome, error)
}

// Service pulls Gmail notifications from a Pub/Sub subscription. It is the
// alternative to the push webhook for deployments without a public endpoint.
type Service struct {
	pubsubClient *pubsub.Client
	intake       Handler
	topicName    string
	subName      string
	logger       *slog.Logger
}

func NewService(ctx context.Context, projectID, topicName, subName, credentialsFile string, intake Handler, l *slog.Logger) (*Service, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	return &Service{
		pubsubClient: client,
		intake:       intake,
		topicName:    topicName,
		subName:      subName,
		logger:       logger.Component(l, "pubsub"),
	}, nil
}

// Start makes sure the subscription exists and blocks receiving until ctx is
// cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting notification subscriber", "topic", s.topicName, "subscription", s.subName)

	sub, err := s.ensureSubscription(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("listening for messages", "subscription", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if s.process(ctx, msg.ID, msg.Data) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("error receiving messages: %w", err)
	}
	return nil
}

func (s *Service) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check subscription %s: %w", s.subName, err)
	}
	if exists {
		return sub, nil
	}

	topic := s.pubsubClient.Topic(s.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check topic %s: %w", s.topicName, err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist, cannot create subscription", s.topicName)
	}

	sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 20 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription %s: %w", s.subName, err)
	}
	s.logger.Info("created subscription", "subscription", s.subName)
	return sub, nil
}

// process hands the payload to the intake and reports whether to ack.
// Parse failures and a full queue are nacked for redelivery.
func (s *Service) process(ctx context.Context, messageID string, data []byte) bool {
	outcome, err := s.intake.Handle(ctx, data, source)
	switch {
	case err == nil:
		s.logger.Debug("notification handled", "pubsub_id", messageID, "outcome", outcome)
		return true
	case errors.Is(err, syncdomain.ErrMalformedNotification):
		s.logger.Error("failed to parse notification", "pubsub_id", messageID, "error", err)
		return false
	case errors.Is(err, syncdomain.ErrQueueFull), errors.Is(err, syncdomain.ErrQueueClosed):
		s.logger.Warn("sync queue unavailable, nacking", "pubsub_id", messageID, "error", err)
		return false
	default:
		s.logger.Error("failed to handle notification", "pubsub_id", messageID, "error", err)
		return false
	}
}

func (s *Service) Close() error {
	return s.pubsubClient.Close()
}
