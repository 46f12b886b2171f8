package module

import (
	"context"

	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

// Module is the contract every plugin implements. The kernel drives
// all lifecycle transitions and awaits each call before advancing;
// implementations must honor ctx cancellation in blocking operations.
type Module interface {
	// Manifest returns the module's immutable metadata.
	Manifest() types.Manifest

	// Initialize receives the module's scoped context. The module must
	// not touch core services before this call.
	Initialize(ctx context.Context, mc *Context) error

	// Start begins active work: subscriptions, scheduled jobs, polls.
	Start(ctx context.Context) error

	// Stop ceases active work and releases subscriptions.
	Stop(ctx context.Context) error

	// Destroy releases all retained handles unconditionally.
	Destroy(ctx context.Context) error

	// Health reports the module's own view of its condition.
	Health(ctx context.Context) types.Health
}

// Factory constructs a fresh module instance.
type Factory func() (Module, error)

// Config is one module's section of the runtime configuration.
type Config struct {
	Enabled  bool
	Settings map[string]any
}
