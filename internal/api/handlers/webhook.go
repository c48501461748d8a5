package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"storebridge/internal/config"
	"storebridge/internal/logger"
	"storebridge/internal/sync"
)

// EventHandler is what the webhook boundary needs from the dispatcher.
type EventHandler interface {
	Handle(ctx context.Context, event sync.Event) error
}

type WebhookHandler struct {
	dispatcher EventHandler
	config     *config.Config
	logger     *logger.Logger
}

func NewWebhookHandler(dispatcher EventHandler, cfg *config.Config, logger *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		dispatcher: dispatcher,
		config:     cfg,
		logger:     logger,
	}
}

// Receive validates and acknowledges an ERP webhook, then processes it
// in the background. The ERP gets its 200 before any reconciliation
// work happens, so processing must never depend on the request
// lifecycle.
func (h *WebhookHandler) Receive(c *gin.Context) {
	if h.config.WebhookSecret != "" {
		provided := c.GetHeader("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(h.config.WebhookSecret)) != 1 {
			h.logger.Warn("unauthorized webhook attempt from %s", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
	}

	var event sync.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload: expected a JSON object"})
		return
	}
	if event.TriggerCode == "" || len(event.Object) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": `Invalid payload structure: "triggercode" and "object" are required`})
		return
	}

	log := h.logger.WithField("trigger", event.TriggerCode)
	go func() {
		if err := h.dispatcher.Handle(context.Background(), event); err != nil {
			// Already acknowledged; surfacing the failure is all that
			// is left to do.
			log.Error("webhook processing failed: %v", err)
		}
	}()

	log.Info("webhook acknowledged, processing in background")
	c.JSON(http.StatusOK, gin.H{"message": "Webhook received and processing initiated"})
}
