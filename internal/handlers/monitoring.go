package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/refledger/internal/monitoring"
	"github.com/charlesng35/refledger/pkg/response"
)

// MonitoringHandler exposes background job state.
type MonitoringHandler struct {
	jobs *monitoring.JobTracker
}

// NewMonitoringHandler constructs a MonitoringHandler.
func NewMonitoringHandler(jobs *monitoring.JobTracker) *MonitoringHandler {
	return &MonitoringHandler{jobs: jobs}
}

// Jobs reports the last run of every maintenance job.
// GET /api/monitoring/jobs
func (h *MonitoringHandler) Jobs(c *gin.Context) {
	jobs := h.jobs.Snapshot()
	if jobs == nil {
		jobs = []monitoring.JobSummary{}
	}
	response.Success(c, http.StatusOK, gin.H{
		"jobs":         jobs,
		"generated_at": time.Now().UTC(),
	})
}
