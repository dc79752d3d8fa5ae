package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/refledger/internal/auth"
	"github.com/charlesng35/refledger/internal/handlers"
	"github.com/charlesng35/refledger/internal/middleware"
)

func registerMonitoringRoutes(api *gin.RouterGroup, handler *handlers.MonitoringHandler) {
	if api == nil || handler == nil {
		return
	}

	group := api.Group("/monitoring")
	group.GET("/jobs", middleware.RequireScope(iauth.ScopeReferralsRead), handler.Jobs)
}
