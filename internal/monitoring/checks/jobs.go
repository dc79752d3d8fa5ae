package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/refledger/internal/monitoring"
)

const defaultJobMaxAge = 6 * time.Hour

// Jobs verifies that tracked background jobs succeed and ran within maxAge.
func Jobs(tracker *monitoring.JobTracker, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultJobMaxAge
	}

	return monitoring.NewCheck("jobs", func(ctx context.Context) monitoring.CheckResult {
		start := time.Now()
		jobs := tracker.Snapshot()
		if len(jobs) == 0 {
			return monitoring.CheckResult{
				Status:   monitoring.StatusUp,
				Details:  "no background jobs registered",
				Duration: time.Since(start),
			}
		}

		status := monitoring.StatusUp
		var problems []string
		for _, job := range jobs {
			if job.TotalRuns == 0 {
				problems = append(problems, job.Job+": pending first run")
				continue
			}
			if job.ConsecutiveFailures > 0 {
				status = worstStatus(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+": "+job.LastError)
			}
			if start.Sub(job.LastRunAt) > maxAge {
				status = worstStatus(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+": stale run "+job.LastRunAt.Format(time.RFC3339))
			}
		}

		return monitoring.CheckResult{
			Status:   status,
			Details:  strings.Join(problems, "; "),
			Duration: time.Since(start),
		}
	})
}

func worstStatus(current, candidate monitoring.CheckStatus) monitoring.CheckStatus {
	if current == monitoring.StatusDown || candidate == monitoring.StatusDown {
		return monitoring.StatusDown
	}
	if current == monitoring.StatusDegraded || candidate == monitoring.StatusDegraded {
		return monitoring.StatusDegraded
	}
	return monitoring.StatusUp
}
