package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/refledger/internal/handlers"
	"github.com/charlesng35/refledger/internal/middleware"
)

func registerTelegramRoutes(r *gin.Engine, handler *handlers.WebhookHandler, secret string) {
	if r == nil || handler == nil {
		return
	}
	r.POST("/telegram/webhook", middleware.WebhookSecret(secret), handler.Receive)
}
