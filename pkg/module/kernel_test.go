package module

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcaneAIAutomation/opspilot/pkg/approval"
	"github.com/ArcaneAIAutomation/opspilot/pkg/audit"
	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
	"github.com/ArcaneAIAutomation/opspilot/pkg/events"
	"github.com/ArcaneAIAutomation/opspilot/pkg/log"
	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
	"github.com/ArcaneAIAutomation/opspilot/pkg/storage"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, Output: io.Discard})
	m.Run()
}

func testEpoch() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

// fakeModule records lifecycle calls in a shared trace so tests can
// assert cross-module ordering.
type fakeModule struct {
	manifest types.Manifest
	trace    *[]string
	ctx      *Context

	initErr  error
	startErr error
	stopErr  error
	health   types.Health
}

func newFakeModule(trace *[]string, id string, deps ...string) *fakeModule {
	return &fakeModule{
		manifest: types.Manifest{ID: id, Version: "1.0.0", Category: types.CategoryConnector, Dependencies: deps},
		trace:    trace,
		health:   types.Health{Status: types.Healthy},
	}
}

func (m *fakeModule) record(op string) {
	*m.trace = append(*m.trace, m.manifest.ID+":"+op)
}

func (m *fakeModule) Manifest() types.Manifest { return m.manifest }

func (m *fakeModule) Initialize(_ context.Context, mc *Context) error {
	m.record("initialize")
	m.ctx = mc
	return m.initErr
}

func (m *fakeModule) Start(context.Context) error {
	m.record("start")
	return m.startErr
}

func (m *fakeModule) Stop(context.Context) error {
	m.record("stop")
	return m.stopErr
}

func (m *fakeModule) Destroy(context.Context) error {
	m.record("destroy")
	return nil
}

func (m *fakeModule) Health(context.Context) types.Health { return m.health }

func newTestKernel(t *testing.T) (*Kernel, *events.Bus) {
	t.Helper()
	store := storage.NewMemoryStore()
	bus := events.NewBus(zerolog.Nop())
	clock := scheduler.NewFakeClock(testEpoch())
	auditLog, err := audit.NewLog(store, clock)
	require.NoError(t, err)
	gate := approval.NewGate(store, auditLog, bus, clock, zerolog.Nop())
	sched := scheduler.NewScheduler(clock, zerolog.Nop())
	t.Cleanup(sched.Stop)
	return NewKernel(store, bus, gate, sched, zerolog.Nop()), bus
}

func TestKernelRejectsDuplicateID(t *testing.T) {
	k, _ := newTestKernel(t)
	var trace []string

	require.NoError(t, k.Register(newFakeModule(&trace, "connector.syslog")))
	err := k.Register(newFakeModule(&trace, "connector.syslog"))
	require.Error(t, err)
	assert.True(t, oerrors.IsKind(err, oerrors.KindModule))
}

func TestKernelLifecycleOrder(t *testing.T) {
	k, _ := newTestKernel(t)
	ctx := context.Background()
	var trace []string

	// A and C depend on B: startup must visit B first, shutdown last.
	a := newFakeModule(&trace, "a", "b")
	b := newFakeModule(&trace, "b")
	c := newFakeModule(&trace, "c", "b")
	require.NoError(t, k.Register(a))
	require.NoError(t, k.Register(b))
	require.NoError(t, k.Register(c))

	require.NoError(t, k.InitializeAll(ctx, nil))
	require.NoError(t, k.StartAll(ctx))
	assert.Equal(t, []string{
		"b:initialize", "a:initialize", "c:initialize",
		"b:start", "a:start", "c:start",
	}, trace)
	assert.Equal(t, types.StateRunning, k.State("a"))
	assert.Equal(t, types.StateRunning, k.State("b"))

	trace = trace[:0]
	k.StopAll(ctx)
	k.DestroyAll(ctx)
	assert.Equal(t, []string{
		"c:stop", "a:stop", "b:stop",
		"c:destroy", "a:destroy", "b:destroy",
	}, trace)
	assert.Equal(t, types.StateDestroyed, k.State("b"))
}

func TestKernelModuleContext(t *testing.T) {
	k, bus := newTestKernel(t)
	ctx := context.Background()
	var trace []string

	m := newFakeModule(&trace, "connector.syslog")
	require.NoError(t, k.Register(m))
	require.NoError(t, k.InitializeAll(ctx, map[string]Config{
		"connector.syslog": {Enabled: true, Settings: map[string]any{"path": "/var/log/syslog"}},
	}))

	require.NotNil(t, m.ctx)
	assert.Equal(t, "connector.syslog", m.ctx.ModuleID)
	assert.Equal(t, "/var/log/syslog", m.ctx.ConfigString("path", ""))
	assert.Same(t, bus, m.ctx.Bus)
	require.NotNil(t, m.ctx.Store)

	// The store view is namespaced: a write lands under the module's
	// prefix in the root store.
	require.NoError(t, m.ctx.Store.Set(ctx, "state", "k", []byte(`1`)))
	got, err := k.store.Get(ctx, "connector.syslog::state", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`1`), got)
}

func TestKernelDisabledModuleStaysRegistered(t *testing.T) {
	k, _ := newTestKernel(t)
	ctx := context.Background()
	var trace []string

	require.NoError(t, k.Register(newFakeModule(&trace, "connector.syslog")))
	require.NoError(t, k.Register(newFakeModule(&trace, "detector.threshold")))

	require.NoError(t, k.InitializeAll(ctx, map[string]Config{
		"connector.syslog": {Enabled: false},
	}))
	require.NoError(t, k.StartAll(ctx))

	assert.Equal(t, types.StateRegistered, k.State("connector.syslog"))
	assert.Equal(t, types.StateRunning, k.State("detector.threshold"))
	assert.Equal(t, []string{"detector.threshold:initialize", "detector.threshold:start"}, trace)
}

func TestKernelDisabledDependencyFailsResolution(t *testing.T) {
	k, _ := newTestKernel(t)
	ctx := context.Background()
	var trace []string

	require.NoError(t, k.Register(newFakeModule(&trace, "a", "b")))
	require.NoError(t, k.Register(newFakeModule(&trace, "b")))

	err := k.InitializeAll(ctx, map[string]Config{"b": {Enabled: false}})
	require.Error(t, err)
	assert.True(t, oerrors.IsKind(err, oerrors.KindDependency))
}

func TestKernelConfigSchemaValidation(t *testing.T) {
	k, _ := newTestKernel(t)
	ctx := context.Background()
	var trace []string

	m := newFakeModule(&trace, "detector.threshold")
	m.manifest.ConfigSchema = map[string]types.FieldSpec{
		"interval": {Type: "duration", Required: true},
	}
	require.NoError(t, k.Register(m))

	err := k.InitializeAll(ctx, map[string]Config{
		"detector.threshold": {Enabled: true, Settings: map[string]any{}},
	})
	require.Error(t, err)
	assert.True(t, oerrors.IsKind(err, oerrors.KindConfig))
	assert.Equal(t, types.StateError, k.State("detector.threshold"))
	assert.Empty(t, trace, "initialize must not run on invalid config")
}

func TestKernelInitializeFailureAborts(t *testing.T) {
	k, _ := newTestKernel(t)
	ctx := context.Background()
	var trace []string

	a := newFakeModule(&trace, "a")
	b := newFakeModule(&trace, "b")
	a.initErr = fmt.Errorf("bad state dir")
	require.NoError(t, k.Register(a))
	require.NoError(t, k.Register(b))

	err := k.InitializeAll(ctx, nil)
	require.Error(t, err)
	assert.True(t, oerrors.IsKind(err, oerrors.KindModule))
	assert.Equal(t, types.StateError, k.State("a"))
	// b comes after a lexicographically and must never initialize.
	assert.Equal(t, []string{"a:initialize"}, trace)
}

func TestKernelPartialStartRollsBack(t *testing.T) {
	k, _ := newTestKernel(t)
	ctx := context.Background()
	var trace []string

	a := newFakeModule(&trace, "a")
	b := newFakeModule(&trace, "b")
	c := newFakeModule(&trace, "c")
	b.startErr = fmt.Errorf("port in use")
	require.NoError(t, k.Register(a))
	require.NoError(t, k.Register(b))
	require.NoError(t, k.Register(c))

	require.NoError(t, k.InitializeAll(ctx, nil))
	err := k.StartAll(ctx)
	require.Error(t, err)

	// a started and was stopped again; c never started.
	assert.Equal(t, []string{
		"a:initialize", "b:initialize", "c:initialize",
		"a:start", "b:start", "a:stop",
	}, trace)
	assert.Equal(t, types.StateStopped, k.State("a"))
	assert.Equal(t, types.StateError, k.State("b"))
	assert.Equal(t, types.StateInitialized, k.State("c"))
}

func TestKernelStopFailureForcesStopped(t *testing.T) {
	k, _ := newTestKernel(t)
	ctx := context.Background()
	var trace []string

	a := newFakeModule(&trace, "a")
	b := newFakeModule(&trace, "b")
	a.stopErr = fmt.Errorf("wedged")
	require.NoError(t, k.Register(a))
	require.NoError(t, k.Register(b))
	require.NoError(t, k.InitializeAll(ctx, nil))
	require.NoError(t, k.StartAll(ctx))

	k.StopAll(ctx)
	assert.Equal(t, types.StateStopped, k.State("a"))
	assert.Equal(t, types.StateStopped, k.State("b"))
}

func TestKernelPublishesLifecycleEvents(t *testing.T) {
	k, bus := newTestKernel(t)
	ctx := context.Background()
	var trace []string

	var states []types.ModuleState
	bus.Subscribe(events.EventModuleLifecycle, func(e events.Envelope) error {
		p := e.Payload.(types.ModuleLifecycle)
		if p.ModuleID == "a" {
			states = append(states, p.State)
		}
		return nil
	})

	require.NoError(t, k.Register(newFakeModule(&trace, "a")))
	require.NoError(t, k.InitializeAll(ctx, nil))
	require.NoError(t, k.StartAll(ctx))
	k.StopAll(ctx)
	k.DestroyAll(ctx)

	assert.Equal(t, []types.ModuleState{
		types.StateRegistered,
		types.StateInitializing, types.StateInitialized,
		types.StateStarting, types.StateRunning,
		types.StateStopping, types.StateStopped,
		types.StateDestroyed,
	}, states)
}

func TestKernelHealth(t *testing.T) {
	k, _ := newTestKernel(t)
	ctx := context.Background()
	var trace []string

	a := newFakeModule(&trace, "a")
	b := newFakeModule(&trace, "b")
	b.health = types.Health{Status: types.Degraded, Message: "queue backing up"}
	require.NoError(t, k.Register(a))
	require.NoError(t, k.Register(b))
	require.NoError(t, k.InitializeAll(ctx, nil))
	require.NoError(t, k.StartAll(ctx))

	all := k.HealthAll(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, types.Degraded, all["b"].Status)

	h, err := k.Health(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, types.Healthy, h.Status)

	_, err = k.Health(ctx, "ghost")
	require.Error(t, err)
}
