package api

import (
	"net/http"

	"mailflow-backend/internal/auth/delivery"
	authUsecase "mailflow-backend/internal/auth/usecase"
	syncDelivery "mailflow-backend/internal/mailsync/delivery"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, webhookHandler *syncDelivery.WebhookHandler, queue QueueStats) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "sync_queue": queue.Len()})
		})

		webhooks := api.Group("/webhooks")
		{
			// Pub/Sub push endpoint; authenticated by the push subscription itself
			webhooks.POST("/gmail", webhookHandler.GmailPush)
			webhooks.POST("/listen-to-gmail", delivery.AuthMiddleware(authUsecase), webhookHandler.ListenToGmail)
			webhooks.GET("/listen-to-gmail", delivery.AuthMiddleware(authUsecase), webhookHandler.ListenToGmail)
		}
	}
}
