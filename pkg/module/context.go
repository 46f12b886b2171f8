package module

import (
	"github.com/rs/zerolog"

	"github.com/ArcaneAIAutomation/opspilot/pkg/approval"
	"github.com/ArcaneAIAutomation/opspilot/pkg/events"
	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
	"github.com/ArcaneAIAutomation/opspilot/pkg/storage"
)

// Context is the scoped handle a module receives at initialization.
// It is the only path from a module to core services: the store view
// is namespaced to the module, the logger carries its id, and the
// config map has already been validated against the manifest schema.
type Context struct {
	ModuleID  string
	Config    map[string]any
	Bus       *events.Bus
	Store     storage.Store
	Logger    zerolog.Logger
	Approvals *approval.Gate
	Scheduler *scheduler.Scheduler
}

// ConfigString returns the named setting as a string, or fallback.
func (c *Context) ConfigString(key, fallback string) string {
	if v, ok := c.Config[key].(string); ok {
		return v
	}
	return fallback
}

// ConfigInt returns the named setting as an int, or fallback. YAML
// decodes whole numbers as int; JSON-sourced maps carry float64.
func (c *Context) ConfigInt(key string, fallback int) int {
	switch v := c.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// ConfigBool returns the named setting as a bool, or fallback.
func (c *Context) ConfigBool(key string, fallback bool) bool {
	if v, ok := c.Config[key].(bool); ok {
		return v
	}
	return fallback
}

// ConfigFloat returns the named setting as a float64, or fallback.
func (c *Context) ConfigFloat(key string, fallback float64) float64 {
	switch v := c.Config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}
