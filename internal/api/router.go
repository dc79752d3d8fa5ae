package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/refledger/internal/app"
	iauth "github.com/charlesng35/refledger/internal/auth"
	"github.com/charlesng35/refledger/internal/handlers"
	"github.com/charlesng35/refledger/internal/middleware"
	"github.com/charlesng35/refledger/internal/monitoring"
	"github.com/charlesng35/refledger/internal/monitoring/checks"
	"github.com/charlesng35/refledger/internal/services"
	"github.com/charlesng35/refledger/internal/telegram"
)

// Services bundles the domain services exposed over HTTP.
type Services struct {
	Identity    *services.IdentityService
	Invitations *services.InvitationService
	Attribution *services.AttributionService
	Stats       *services.ReferralStatsService
	Journal     *services.JournalService
	// Updates receives webhook deliveries; nil leaves the webhook route unmounted.
	Updates telegram.UpdateHandler
	// Telegram joins the readiness checks when set.
	Telegram checks.BotIdentity
}

func (s Services) validate() error {
	switch {
	case s.Identity == nil:
		return fmt.Errorf("identity service must be provided")
	case s.Invitations == nil:
		return fmt.Errorf("invitation service must be provided")
	case s.Attribution == nil:
		return fmt.Errorf("attribution service must be provided")
	case s.Stats == nil:
		return fmt.Errorf("referral stats service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(cfg *app.Config, jwt *iauth.JWTService, svc Services, rateStore middleware.RateStore, mon *monitoring.Module) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if err := svc.validate(); err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, cfg, mon, svc.Telegram)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	if svc.Updates != nil {
		registerTelegramRoutes(r, handlers.NewWebhookHandler(svc.Updates), cfg.Telegram.WebhookSecret)
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	var tokenLimiter gin.HandlerFunc
	if rateStore != nil {
		tokenLimiter = middleware.RateLimit(rateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window)
	}

	var events handlers.EventLister
	if svc.Journal != nil {
		events = svc.Journal
	}

	registerReferralRoutes(api, referralHandlers{
		tokens:      handlers.NewTokenHandler(svc.Identity, svc.Invitations),
		transitions: handlers.NewTransitionHandler(svc.Attribution),
		stats:       handlers.NewStatsHandler(svc.Stats, events),
	}, tokenLimiter)

	if mon != nil {
		registerMonitoringRoutes(api, handlers.NewMonitoringHandler(mon.Jobs()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
