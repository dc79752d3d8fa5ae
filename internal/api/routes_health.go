package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/refledger/internal/app"
	"github.com/charlesng35/refledger/internal/monitoring"
	"github.com/charlesng35/refledger/internal/monitoring/checks"
)

var healthPaths = []string{"/health", "/health/live", "/health/ready"}

// registerHealthRoutes mounts the health endpoints at the root and under /api. A configured
// Telegram client joins the readiness checks.
func registerHealthRoutes(r *gin.Engine, cfg *app.Config, mon *monitoring.Module, bot checks.BotIdentity) {
	if cfg == nil {
		return
	}

	routers := []gin.IRouter{r, r.Group("/api")}

	if !cfg.Monitoring.Health.Enabled || mon == nil || mon.Health() == nil {
		for _, router := range routers {
			for _, path := range healthPaths {
				router.GET(path, disabledHealthHandler)
			}
		}
		return
	}

	manager := mon.Health()
	if bot != nil {
		manager.RegisterReadiness(checks.Telegram(bot, 0))
	}

	for _, router := range routers {
		router.GET("/health", func(c *gin.Context) {
			writeHealthReport(c, manager.EvaluateReadiness(c.Request.Context()), false)
		})
		router.GET("/health/live", func(c *gin.Context) {
			writeHealthReport(c, manager.EvaluateLiveness(c.Request.Context()), true)
		})
		router.GET("/health/ready", func(c *gin.Context) {
			writeHealthReport(c, manager.EvaluateReadiness(c.Request.Context()), true)
		})
	}
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}

// writeHealthReport answers 503 for a failed report. The summary form omits per-check results.
func writeHealthReport(c *gin.Context, report monitoring.HealthReport, detailed bool) {
	status := http.StatusOK
	if !report.Success {
		status = http.StatusServiceUnavailable
	}

	body := gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checked_at": time.Now().UTC(),
	}
	if detailed {
		body["checks"] = report.Checks
	}
	c.JSON(status, body)
}
