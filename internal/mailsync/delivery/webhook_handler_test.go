package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authdelivery "mailflow-backend/internal/auth/delivery"
	authdomain "mailflow-backend/internal/auth/domain"
	authusecase "mailflow-backend/internal/auth/usecase"
	syncdomain "mailflow-backend/internal/mailsync/domain"
	"mailflow-backend/internal/mailsync/usecase"
	"mailflow-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIntake struct {
	outcome  usecase.IntakeOutcome
	err      error
	payloads []string
}

func (s *stubIntake) Handle(_ context.Context, payload []byte, source string) (usecase.IntakeOutcome, error) {
	s.payloads = append(s.payloads, string(payload))
	return s.outcome, s.err
}

type stubWatcher struct {
	res *syncdomain.WatchResult
	err error
	got string
}

func (s *stubWatcher) ArmWatchForUser(_ context.Context, userID string) (*syncdomain.WatchResult, error) {
	s.got = userID
	return s.res, s.err
}

func pushBody(t *testing.T, data string) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(PushEnvelope{
		Message:      PushMessage{Data: data, MessageID: "123"},
		Subscription: "projects/p/subscriptions/gmail-updates-sub",
	})
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func newRouter(h *WebhookHandler, auth authusecase.AuthUsecase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/webhooks/gmail", h.GmailPush)
	r.POST("/api/webhooks/listen-to-gmail", authdelivery.AuthMiddleware(auth), h.ListenToGmail)
	return r
}

func TestGmailPush(t *testing.T) {
	notification := `{"emailAddress":"me@co.com","historyId":100}`

	tests := []struct {
		name    string
		body    func(t *testing.T) *bytes.Reader
		outcome usecase.IntakeOutcome
		err     error
		status  int
		want    string
	}{
		{
			name:    "enqueued",
			body:    func(t *testing.T) *bytes.Reader { return pushBody(t, encode(notification)) },
			outcome: usecase.IntakeEnqueued,
			status:  http.StatusOK,
			want:    `{"status":"success","message":"Processing started in background"}`,
		},
		{
			name:    "missing keys",
			body:    func(t *testing.T) *bytes.Reader { return pushBody(t, encode(`{"emailAddress":"me@co.com"}`)) },
			outcome: usecase.IntakeIgnored,
			status:  http.StatusOK,
			want:    `{"status":"ok","message":"Notification ignored (missing keys)"}`,
		},
		{
			name:    "unknown account",
			body:    func(t *testing.T) *bytes.Reader { return pushBody(t, encode(notification)) },
			outcome: usecase.IntakeUnknownAccount,
			status:  http.StatusOK,
			want:    `{"status":"ok","message":"Notification ignored (unknown account)"}`,
		},
		{
			name:   "queue full",
			body:   func(t *testing.T) *bytes.Reader { return pushBody(t, encode(notification)) },
			err:    syncdomain.ErrQueueFull,
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "payload is not json",
			body:   func(t *testing.T) *bytes.Reader { return pushBody(t, encode("{")) },
			err:    syncdomain.ErrMalformedNotification,
			status: http.StatusInternalServerError,
		},
		{
			name:   "data is not base64",
			body:   func(t *testing.T) *bytes.Reader { return pushBody(t, "%%%") },
			status: http.StatusInternalServerError,
		},
		{
			name:   "no data",
			body:   func(t *testing.T) *bytes.Reader { return pushBody(t, "") },
			status: http.StatusInternalServerError,
		},
		{
			name:   "envelope is not json",
			body:   func(t *testing.T) *bytes.Reader { return bytes.NewReader([]byte("nope")) },
			status: http.StatusInternalServerError,
		},
		{
			name:   "store failure",
			body:   func(t *testing.T) *bytes.Reader { return pushBody(t, encode(notification)) },
			err:    errors.New("db down"),
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intake := &stubIntake{outcome: tt.outcome, err: tt.err}
			r := newRouter(NewWebhookHandler(intake, &stubWatcher{}, logger.Discard()), authusecase.NewAuthUsecase("s3cret"))

			req := httptest.NewRequest(http.MethodPost, "/api/webhooks/gmail", tt.body(t))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.want != "" {
				assert.JSONEq(t, tt.want, w.Body.String())
			}
		})
	}
}

func TestGmailPushForwardsDecodedPayload(t *testing.T) {
	intake := &stubIntake{outcome: usecase.IntakeEnqueued}
	r := newRouter(NewWebhookHandler(intake, &stubWatcher{}, logger.Discard()), authusecase.NewAuthUsecase("s3cret"))

	payload := `{"emailAddress":"me@co.com","historyId":"100"}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/gmail", pushBody(t, encode(payload)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{payload}, intake.payloads)
}

func TestListenToGmail(t *testing.T) {
	auth := authusecase.NewAuthUsecase("s3cret")
	token, err := auth.GenerateAccessToken(authdomain.Principal{UserID: "user-1"}, time.Hour)
	require.NoError(t, err)

	expires := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		watcher *stubWatcher
		status  int
	}{
		{"armed", &stubWatcher{res: &syncdomain.WatchResult{HistoryID: "500", Expiration: expires}}, http.StatusOK},
		{"no account", &stubWatcher{err: syncdomain.ErrAccountNotFound}, http.StatusNotFound},
		{"provider failure", &stubWatcher{err: errors.New("403")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(NewWebhookHandler(&stubIntake{}, tt.watcher, logger.Discard()), auth)

			req := httptest.NewRequest(http.MethodPost, "/api/webhooks/listen-to-gmail", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "user-1", tt.watcher.got)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"status":"watching","history_id":"500","expiration":"2026-03-08T00:00:00Z"}`, w.Body.String())
			}
		})
	}

	// unauthenticated callers never reach the watcher
	watcher := &stubWatcher{}
	r := newRouter(NewWebhookHandler(&stubIntake{}, watcher, logger.Discard()), auth)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/webhooks/listen-to-gmail", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, watcher.got)
}
