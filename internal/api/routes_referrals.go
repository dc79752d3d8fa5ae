package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/refledger/internal/auth"
	"github.com/charlesng35/refledger/internal/handlers"
	"github.com/charlesng35/refledger/internal/middleware"
)

type referralHandlers struct {
	tokens      *handlers.TokenHandler
	transitions *handlers.TransitionHandler
	stats       *handlers.StatsHandler
}

func registerReferralRoutes(api *gin.RouterGroup, h referralHandlers, tokenLimiter gin.HandlerFunc) {
	read := middleware.RequireScope(iauth.ScopeReferralsRead)
	write := middleware.RequireScope(iauth.ScopeReferralsWrite)

	issue := []gin.HandlerFunc{write}
	if tokenLimiter != nil {
		issue = append(issue, tokenLimiter)
	}
	issue = append(issue, h.tokens.Issue)

	community := api.Group("/communities/:communityID")
	{
		community.POST("/tokens", issue...)
		community.GET("/tokens/:ownerID", read, h.tokens.Get)
		community.GET("/tokens/:ownerID/qr", read, h.tokens.QRCode)

		community.POST("/transitions", write, h.transitions.Ingest)

		community.GET("/owners/:ownerID/stats", read, h.stats.Owner)
		community.GET("/leaderboard", read, h.stats.Leaderboard)
		community.GET("/members/:subjectID/events", read, h.stats.Events)
	}
}
