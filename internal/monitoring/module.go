package monitoring

import "sync/atomic"

// Module bundles the health checks and background job history of the process.
type Module struct {
	health *HealthManager
	jobs   *JobTracker
}

// NewModule constructs an empty monitoring module.
func NewModule() *Module {
	return &Module{
		health: NewHealthManager(),
		jobs:   NewJobTracker(),
	}
}

// Health exposes the health manager responsible for liveness and readiness checks.
func (m *Module) Health() *HealthManager {
	if m == nil {
		return nil
	}
	return m.health
}

// Jobs exposes the background job tracker.
func (m *Module) Jobs() *JobTracker {
	if m == nil {
		return nil
	}
	return m.jobs
}

var globalModule atomic.Pointer[Module]

// SetModule configures the process-wide monitoring module.
func SetModule(module *Module) {
	if module == nil {
		return
	}
	globalModule.Store(module)
}

// CurrentModule returns the process-wide monitoring module, or nil when unset.
func CurrentModule() *Module {
	return globalModule.Load()
}
