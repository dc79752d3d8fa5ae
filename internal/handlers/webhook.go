package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/refledger/internal/telegram"
	appErrors "github.com/charlesng35/refledger/pkg/errors"
	"github.com/charlesng35/refledger/pkg/logger"
	"github.com/charlesng35/refledger/pkg/response"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives Telegram updates pushed through setWebhook.
type WebhookHandler struct {
	updates telegram.UpdateHandler
	log     *zap.Logger
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(updates telegram.UpdateHandler) *WebhookHandler {
	return &WebhookHandler{updates: updates, log: logger.WithModule("webhook")}
}

// Receive decodes one update and hands it to the bot. A processing error answers 500
// so Telegram redelivers the update.
// POST /telegram/webhook
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("unable to read update"))
		return
	}

	update, err := telegram.DecodeUpdate(body)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid update payload"))
		return
	}

	if err := h.updates.HandleUpdate(requestContext(c), update); err != nil {
		h.log.Warn("update processing failed", zap.Int("update_id", update.UpdateID), zap.Error(err))
		response.Error(c, appErrors.Wrap(err, "update processing failed"))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"update_id": update.UpdateID})
}
