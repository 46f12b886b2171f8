package health

import (
	"time"

	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

// Report is the aggregated process health.
type Report struct {
	Status    types.HealthState       `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Modules   map[string]types.Health `json:"modules,omitempty"`
	Uptime    string                  `json:"uptime,omitempty"`
}

// Aggregate returns the worst status among all modules: any unhealthy
// module makes the process unhealthy, else any degraded module makes
// it degraded, else it is healthy. An empty input is healthy.
func Aggregate(moduleHealths map[string]types.Health) types.HealthState {
	status := types.Healthy
	for _, h := range moduleHealths {
		switch h.Status {
		case types.Unhealthy:
			return types.Unhealthy
		case types.Degraded:
			status = types.Degraded
		}
	}
	return status
}
