package module

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ArcaneAIAutomation/opspilot/pkg/approval"
	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
	"github.com/ArcaneAIAutomation/opspilot/pkg/events"
	"github.com/ArcaneAIAutomation/opspilot/pkg/log"
	"github.com/ArcaneAIAutomation/opspilot/pkg/metrics"
	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
	"github.com/ArcaneAIAutomation/opspilot/pkg/storage"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

// Kernel owns the module lifecycle table and is the only component
// allowed to transition module states.
type Kernel struct {
	store  storage.Store
	bus    *events.Bus
	gate   *approval.Gate
	sched  *scheduler.Scheduler
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]*moduleEntry
	order   []string // startup order over enabled modules, set by InitializeAll
}

type moduleEntry struct {
	module  Module
	state   types.ModuleState
	lastErr error
}

// NewKernel wires the kernel to the services it injects into modules.
func NewKernel(store storage.Store, bus *events.Bus, gate *approval.Gate, sched *scheduler.Scheduler, logger zerolog.Logger) *Kernel {
	return &Kernel{
		store:   store,
		bus:     bus,
		gate:    gate,
		sched:   sched,
		logger:  logger,
		entries: make(map[string]*moduleEntry),
	}
}

// Register records a module as registered. Duplicate ids are rejected.
func (k *Kernel) Register(m Module) error {
	manifest := m.Manifest()
	if err := manifest.Validate(); err != nil {
		return oerrors.Module(manifest.ID, err, "invalid manifest")
	}

	k.mu.Lock()
	if _, exists := k.entries[manifest.ID]; exists {
		k.mu.Unlock()
		return oerrors.Module(manifest.ID, nil, "module already registered")
	}
	k.entries[manifest.ID] = &moduleEntry{module: m, state: types.StateRegistered}
	k.mu.Unlock()

	metrics.ModuleStates.WithLabelValues(manifest.ID, string(types.StateRegistered)).Set(1)
	k.publishLifecycle(manifest.ID, types.StateRegistered, nil)
	k.logger.Info().Str("module", manifest.ID).Msg("module registered")
	return nil
}

// InitializeAll resolves dependency order over enabled modules and
// initializes each in turn. A module whose config section carries
// enabled: false stays registered and is excluded from the order.
// Initialization failure is fatal: the failing module transitions to
// error and the error propagates.
func (k *Kernel) InitializeAll(ctx context.Context, configs map[string]Config) error {
	k.mu.Lock()
	manifests := make([]types.Manifest, 0, len(k.entries))
	for id, entry := range k.entries {
		if cfg, present := configs[id]; present && !cfg.Enabled {
			k.logger.Info().Str("module", id).Msg("module disabled by config")
			continue
		}
		manifests = append(manifests, entry.module.Manifest())
	}
	k.mu.Unlock()

	order, err := Resolve(manifests)
	if err != nil {
		return err
	}

	k.mu.Lock()
	k.order = order
	k.mu.Unlock()

	for _, id := range order {
		if err := k.initialize(ctx, id, configs[id].Settings); err != nil {
			return err
		}
	}
	return nil
}

func (k *Kernel) initialize(ctx context.Context, id string, settings map[string]any) error {
	k.mu.Lock()
	entry := k.entries[id]
	k.mu.Unlock()

	k.setState(id, types.StateInitializing, nil)

	manifest := entry.module.Manifest()
	validated, err := applySchema(id, manifest.ConfigSchema, settings)
	if err != nil {
		k.setState(id, types.StateError, err)
		return err
	}

	mc := &Context{
		ModuleID:  id,
		Config:    validated,
		Bus:       k.bus,
		Store:     storage.NewNamespacedStore(k.store, id),
		Logger:    log.WithModule(id),
		Approvals: k.gate,
		Scheduler: k.sched,
	}
	if err := entry.module.Initialize(ctx, mc); err != nil {
		wrapped := oerrors.Module(id, err, "initialization failed")
		k.setState(id, types.StateError, wrapped)
		return wrapped
	}
	k.setState(id, types.StateInitialized, nil)
	return nil
}

// StartAll starts every initialized module in dependency order. A
// start failure aborts startup: the failing module transitions to
// error, already-running modules are stopped in reverse order, and
// the error propagates.
func (k *Kernel) StartAll(ctx context.Context) error {
	started := make([]string, 0, len(k.order))
	for _, id := range k.orderSnapshot() {
		k.mu.Lock()
		entry := k.entries[id]
		state := entry.state
		k.mu.Unlock()
		if state != types.StateInitialized {
			continue
		}

		k.setState(id, types.StateStarting, nil)
		if err := entry.module.Start(ctx); err != nil {
			wrapped := oerrors.Module(id, err, "start failed")
			k.setState(id, types.StateError, wrapped)
			k.stopModules(ctx, started)
			return wrapped
		}
		k.setState(id, types.StateRunning, nil)
		started = append(started, id)
	}
	return nil
}

// StopAll stops every running module in reverse dependency order.
// A failing stop is logged and the module is forced to stopped so
// shutdown always proceeds.
func (k *Kernel) StopAll(ctx context.Context) {
	order := k.orderSnapshot()
	running := make([]string, 0, len(order))
	for _, id := range order {
		if k.State(id) == types.StateRunning {
			running = append(running, id)
		}
	}
	k.stopModules(ctx, running)
}

// stopModules stops the given modules in reverse of the given order.
func (k *Kernel) stopModules(ctx context.Context, ids []string) {
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		k.mu.Lock()
		entry := k.entries[id]
		k.mu.Unlock()

		k.setState(id, types.StateStopping, nil)
		if err := entry.module.Stop(ctx); err != nil {
			k.logger.Error().Err(err).Str("module", id).Msg("stop failed, forcing stopped")
		}
		k.setState(id, types.StateStopped, nil)
	}
}

// DestroyAll destroys every stopped module in reverse dependency
// order, fault-tolerant like StopAll.
func (k *Kernel) DestroyAll(ctx context.Context) {
	order := k.orderSnapshot()
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		k.mu.Lock()
		entry := k.entries[id]
		state := entry.state
		k.mu.Unlock()
		if state != types.StateStopped {
			continue
		}

		if err := entry.module.Destroy(ctx); err != nil {
			k.logger.Error().Err(err).Str("module", id).Msg("destroy failed")
		}
		k.setState(id, types.StateDestroyed, nil)
	}
}

// State returns the module's current lifecycle state, or empty when
// the id is unknown.
func (k *Kernel) State(id string) types.ModuleState {
	k.mu.Lock()
	defer k.mu.Unlock()
	if entry, ok := k.entries[id]; ok {
		return entry.state
	}
	return ""
}

// LastError returns the module's most recent lifecycle error, if any.
func (k *Kernel) LastError(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if entry, ok := k.entries[id]; ok {
		return entry.lastErr
	}
	return nil
}

// Module returns the registered module handle.
func (k *Kernel) Module(id string) (Module, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry, ok := k.entries[id]
	if !ok {
		return nil, false
	}
	return entry.module, true
}

// IDs returns every registered module id in startup order, with
// modules outside the order (disabled or not yet initialized)
// appended after it.
func (k *Kernel) IDs() []string {
	k.mu.Lock()
	defer k.mu.Unlock()

	seen := make(map[string]bool, len(k.order))
	ids := make([]string, 0, len(k.entries))
	for _, id := range k.order {
		if _, ok := k.entries[id]; ok {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	rest := make([]string, 0)
	for id := range k.entries {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// Health returns a single module's self-reported health.
func (k *Kernel) Health(ctx context.Context, id string) (types.Health, error) {
	k.mu.Lock()
	entry, ok := k.entries[id]
	k.mu.Unlock()
	if !ok {
		return types.Health{}, oerrors.Module(id, nil, "unknown module")
	}
	return entry.module.Health(ctx), nil
}

// HealthAll reports health for every running module.
func (k *Kernel) HealthAll(ctx context.Context) map[string]types.Health {
	k.mu.Lock()
	running := make(map[string]Module)
	for id, entry := range k.entries {
		if entry.state == types.StateRunning {
			running[id] = entry.module
		}
	}
	k.mu.Unlock()

	out := make(map[string]types.Health, len(running))
	for id, m := range running {
		out[id] = m.Health(ctx)
	}
	return out
}

func (k *Kernel) orderSnapshot() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]string, len(k.order))
	copy(out, k.order)
	return out
}

// setState records a transition, updates the state gauge, and
// publishes module.lifecycle best-effort.
func (k *Kernel) setState(id string, state types.ModuleState, lastErr error) {
	k.mu.Lock()
	entry, ok := k.entries[id]
	if !ok {
		k.mu.Unlock()
		return
	}
	previous := entry.state
	entry.state = state
	if lastErr != nil {
		entry.lastErr = lastErr
	}
	k.mu.Unlock()

	metrics.ModuleStates.WithLabelValues(id, string(previous)).Set(0)
	metrics.ModuleStates.WithLabelValues(id, string(state)).Set(1)
	k.publishLifecycle(id, state, lastErr)
}

// publishLifecycle emits module.lifecycle; a delivery failure is
// logged, never raised.
func (k *Kernel) publishLifecycle(id string, state types.ModuleState, lastErr error) {
	payload := types.ModuleLifecycle{ModuleID: id, State: state}
	if lastErr != nil {
		payload.Error = lastErr.Error()
	}
	err := k.bus.Publish(events.Envelope{
		Type:    events.EventModuleLifecycle,
		Source:  "kernel",
		Payload: payload,
	})
	if err != nil {
		k.logger.Error().Err(err).Str("module", id).Str("state", string(state)).
			Msg("failed to publish lifecycle event")
	}
}
