package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	syncdomain "mailflow-backend/internal/mailsync/domain"
	"mailflow-backend/pkg/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const user = "me"

// Headers requested with format=metadata.
var metadataHeaders = []string{"Subject", "From", "Message-ID", "References"}

type Service struct {
	clientID     string
	clientSecret string
	endpoint     oauth2.Endpoint
	// extra client options, used to point the client at a fake server in tests
	opts   []option.ClientOption
	logger *slog.Logger

	// Token sources keyed by refresh token, so a refreshed access token is
	// reused until it expires.
	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

var _ syncdomain.MailProvider = (*Service)(nil)

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback syncdomain.TokenUpdateFunc
	logger   *slog.Logger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		// Block so the refreshed pair is stored before the API call goes out.
		if err := s.callback(t); err != nil {
			s.logger.Warn("failed to persist refreshed token", "error", err)
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string, l *slog.Logger, opts ...option.ClientOption) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		endpoint:     google.Endpoint,
		opts:         opts,
		logger:       logger.Component(l, "gmail"),
		sources:      make(map[string]oauth2.TokenSource),
	}
}

// GetGmailService creates Gmail service with the account's tokens
func (s *Service) GetGmailService(ctx context.Context, creds syncdomain.Credentials) (*gmail.Service, error) {
	client := oauth2.NewClient(ctx, s.tokenSource(ctx, creds))

	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, s.opts...)
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	return srv, nil
}

func (s *Service) tokenSource(ctx context.Context, creds syncdomain.Credentials) oauth2.TokenSource {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       creds.Expiry,
	}
	if creds.RefreshToken == "" {
		return oauth2.StaticTokenSource(token)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if src, ok := s.sources[creds.RefreshToken]; ok {
		return src
	}

	// Unknown expiry: refresh once up front
	if token.Expiry.IsZero() {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     s.endpoint,
	}

	// Cached sources outlive the call that created them
	src := oauth2.ReuseTokenSource(nil, &notifyTokenSource{
		src:      config.TokenSource(context.WithoutCancel(ctx), token),
		current:  token,
		callback: creds.OnRefresh,
		logger:   s.logger,
	})
	s.sources[creds.RefreshToken] = src
	return src
}

// Watch sets up push notifications for the user's mailbox and returns the
// history id the watch starts from.
func (s *Service) Watch(ctx context.Context, creds syncdomain.Credentials, topicName string, labelIDs []string) (*syncdomain.WatchResult, error) {
	srv, err := s.GetGmailService(ctx, creds)
	if err != nil {
		return nil, &syncdomain.ProviderError{Op: "users.watch", Kind: syncdomain.KindAuth, Err: err}
	}

	// Clear any previous watch to avoid "Only one user push notification client allowed"
	if err := srv.Users.Stop(user).Context(ctx).Do(); err != nil {
		s.logger.Debug("stopping previous watch failed", "error", err)
	}

	req := &gmail.WatchRequest{
		TopicName:         topicName,
		LabelIds:          labelIDs,
		LabelFilterAction: "include",
	}

	s.logger.Info("starting watch", "topic", topicName, "labels", labelIDs)
	resp, err := srv.Users.Watch(user, req).Context(ctx).Do()
	if err != nil {
		return nil, classifyError("users.watch", err, syncdomain.KindNotFound)
	}
	s.logger.Info("watch started", "history_id", resp.HistoryId, "expiration", resp.Expiration)

	return &syncdomain.WatchResult{
		HistoryID:  strconv.FormatUint(resp.HistoryId, 10),
		Expiration: time.UnixMilli(resp.Expiration).UTC(),
	}, nil
}

// ListHistory walks users.history.list from fromCursor and returns every
// message id under messagesAdded. A 404 means the cursor is too old.
func (s *Service) ListHistory(ctx context.Context, creds syncdomain.Credentials, fromCursor string) ([]string, error) {
	const op = "users.history.list"

	startID, err := strconv.ParseUint(strings.TrimSpace(fromCursor), 10, 64)
	if err != nil {
		return nil, &syncdomain.ProviderError{Op: op, Kind: syncdomain.KindStaleCursor, Err: fmt.Errorf("invalid history id %q: %w", fromCursor, err)}
	}

	srv, err := s.GetGmailService(ctx, creds)
	if err != nil {
		return nil, &syncdomain.ProviderError{Op: op, Kind: syncdomain.KindAuth, Err: err}
	}

	var ids []string
	err = srv.Users.History.List(user).
		StartHistoryId(startID).
		HistoryTypes("messageAdded").
		Pages(ctx, func(resp *gmail.ListHistoryResponse) error {
			for _, h := range resp.History {
				for _, added := range h.MessagesAdded {
					if added.Message != nil && added.Message.Id != "" {
						ids = append(ids, added.Message.Id)
					}
				}
			}
			return nil
		})
	if err != nil {
		return nil, classifyError(op, err, syncdomain.KindStaleCursor)
	}

	return ids, nil
}

// GetMessageMetadata fetches labels and the trigger-relevant headers.
func (s *Service) GetMessageMetadata(ctx context.Context, creds syncdomain.Credentials, messageID string) (*syncdomain.MessageMetadata, error) {
	const op = "users.messages.get"

	srv, err := s.GetGmailService(ctx, creds)
	if err != nil {
		return nil, &syncdomain.ProviderError{Op: op, Kind: syncdomain.KindAuth, Err: err}
	}

	msg, err := srv.Users.Messages.Get(user, messageID).
		Format("metadata").
		MetadataHeaders(metadataHeaders...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyError(op, err, syncdomain.KindNotFound)
	}

	return convertMessageMetadata(msg), nil
}
