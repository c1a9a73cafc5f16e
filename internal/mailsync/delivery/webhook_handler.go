package delivery

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	authdelivery "mailflow-backend/internal/auth/delivery"
	syncdomain "mailflow-backend/internal/mailsync/domain"
	"mailflow-backend/internal/mailsync/usecase"
	"mailflow-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

const webhookSource = "webhook"

// PushEnvelope is the body Pub/Sub POSTs to a push endpoint.
type PushEnvelope struct {
	Message      PushMessage `json:"message"`
	Subscription string      `json:"subscription"`
}

type PushMessage struct {
	Data        string `json:"data"`
	MessageID   string `json:"messageId"`
	PublishTime string `json:"publishTime"`
}

type NotificationIntake interface {
	Handle(ctx context.Context, payload []byte, source string) (usecase.IntakeOutcome, error)
}

type WatchArmer interface {
	ArmWatchForUser(ctx context.Context, userID string) (*syncdomain.WatchResult, error)
}

type WebhookHandler struct {
	intake  NotificationIntake
	watcher WatchArmer
	logger  *slog.Logger
}

func NewWebhookHandler(intake NotificationIntake, watcher WatchArmer, l *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		intake:  intake,
		watcher: watcher,
		logger:  logger.Component(l, "webhook"),
	}
}

// GmailPush receives push notifications from Google Cloud Pub/Sub.
func (h *WebhookHandler) GmailPush(c *gin.Context) {
	var envelope PushEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		h.fail(c, http.StatusInternalServerError, "invalid push envelope", err)
		return
	}
	if envelope.Message.Data == "" {
		h.fail(c, http.StatusInternalServerError, "push envelope has no message data", nil)
		return
	}

	payload, err := decodeData(envelope.Message.Data)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "message data is not base64", err)
		return
	}

	outcome, err := h.intake.Handle(c.Request.Context(), payload, webhookSource)
	if err != nil {
		switch {
		case errors.Is(err, syncdomain.ErrQueueFull), errors.Is(err, syncdomain.ErrQueueClosed):
			// Pub/Sub backs off and redelivers
			h.fail(c, http.StatusServiceUnavailable, "sync queue unavailable", err)
		default:
			h.fail(c, http.StatusInternalServerError, "failed to process notification", err)
		}
		return
	}

	switch outcome {
	case usecase.IntakeIgnored:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Notification ignored (missing keys)"})
	case usecase.IntakeUnknownAccount:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Notification ignored (unknown account)"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Processing started in background"})
	}
}

// ListenToGmail arms the Gmail watch for the authenticated user's account.
func (h *WebhookHandler) ListenToGmail(c *gin.Context) {
	principal, ok := authdelivery.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	res, err := h.watcher.ArmWatchForUser(c.Request.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, syncdomain.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Google account connection not found for user."})
			return
		}
		h.logger.Error("failed to arm watch", "user_id", principal.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start watching mailbox"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "watching",
		"history_id": res.HistoryID,
		"expiration": res.Expiration,
	})
}

func (h *WebhookHandler) fail(c *gin.Context, status int, msg string, err error) {
	h.logger.Error(msg, "status", status, "error", err)
	c.JSON(status, gin.H{"error": msg})
}

func decodeData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if b, err := base64.StdEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(data)
}
