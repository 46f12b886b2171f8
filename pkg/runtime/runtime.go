package runtime

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ArcaneAIAutomation/opspilot/pkg/api"
	"github.com/ArcaneAIAutomation/opspilot/pkg/approval"
	"github.com/ArcaneAIAutomation/opspilot/pkg/audit"
	"github.com/ArcaneAIAutomation/opspilot/pkg/config"
	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
	"github.com/ArcaneAIAutomation/opspilot/pkg/events"
	"github.com/ArcaneAIAutomation/opspilot/pkg/log"
	"github.com/ArcaneAIAutomation/opspilot/pkg/module"
	"github.com/ArcaneAIAutomation/opspilot/pkg/ratelimit"
	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
	"github.com/ArcaneAIAutomation/opspilot/pkg/security"
	"github.com/ArcaneAIAutomation/opspilot/pkg/storage"
)

// shutdownTimeout bounds how long draining the HTTP server may take.
const shutdownTimeout = 10 * time.Second

// Runtime holds every wired core service.
type Runtime struct {
	cfg      *config.Config
	store    storage.Store
	bus      *events.Bus
	auditLog *audit.Log
	sched    *scheduler.Scheduler
	gate     *approval.Gate
	kernel   *module.Kernel
	server   *api.Server
}

// New wires the process from a validated configuration. Construction
// order is fixed: log, store, audit, bus, scheduler, gate, kernel,
// HTTP gates.
func New(cfg *config.Config) (*Runtime, error) {
	if err := initLogging(cfg.Logging); err != nil {
		return nil, err
	}

	store, err := OpenStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.NewLog(store, scheduler.System)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := events.NewBus(log.WithComponent("events"))
	sched := scheduler.NewScheduler(scheduler.System, log.WithComponent("scheduler"))
	gate := approval.NewGate(store, auditLog, bus, scheduler.System, log.WithComponent("approval"))
	kernel := module.NewKernel(store, bus, gate, sched, log.WithComponent("kernel"))

	limiter := ratelimit.NewLimiter(cfg.Auth.MaxRequestsPerMinute, time.Minute, scheduler.System)
	sched.Every("api-ratelimit-cleanup", time.Minute, limiter.Cleanup)

	server := api.NewServer(api.Options{
		Port:    cfg.System.Port,
		Auth:    buildAuthenticator(cfg.Auth),
		Limiter: limiter,
		Kernel:  kernel,
		Clock:   scheduler.System,
		Logger:  log.WithComponent("api"),
	})

	return &Runtime{
		cfg:      cfg,
		store:    store,
		bus:      bus,
		auditLog: auditLog,
		sched:    sched,
		gate:     gate,
		kernel:   kernel,
		server:   server,
	}, nil
}

// Kernel exposes the module kernel for registration of built-ins.
func (r *Runtime) Kernel() *module.Kernel { return r.kernel }

// Gate exposes the approval gate.
func (r *Runtime) Gate() *approval.Gate { return r.gate }

// Audit exposes the audit log.
func (r *Runtime) Audit() *audit.Log { return r.auditLog }

// RegisterModules registers built-in factories plus plugins discovered
// under pluginsDir. Discovery errors are logged and do not abort.
func (r *Runtime) RegisterModules() error {
	for _, id := range module.RegisteredIDs() {
		factory, _ := module.LookupFactory(id)
		m, err := factory()
		if err != nil {
			return oerrors.Module(id, err, "factory failed")
		}
		if err := r.kernel.Register(m); err != nil {
			return err
		}
	}

	if r.cfg.PluginsDir == "" {
		return nil
	}
	plugins, errs := module.Discover(r.cfg.PluginsDir, log.WithComponent("discovery"))
	for _, err := range errs {
		log.Logger.Warn().Err(err).Msg("plugin discovery error")
	}
	for _, p := range plugins {
		if _, registered := r.kernel.Module(p.Manifest.ID); registered {
			continue
		}
		m, err := p.Factory()
		if err != nil {
			log.Logger.Warn().Err(err).Str("module", p.Manifest.ID).Msg("plugin factory failed")
			continue
		}
		if err := r.kernel.Register(m); err != nil {
			log.Logger.Warn().Err(err).Str("module", p.Manifest.ID).Msg("plugin registration failed")
		}
	}
	return nil
}

// Run starts every module and serves until ctx is canceled or a
// SIGINT/SIGTERM arrives, then shuts down in reverse order. A nil
// return means a clean signal-driven shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := r.kernel.InitializeAll(ctx, r.cfg.ModuleConfigs()); err != nil {
		r.close()
		return err
	}
	if err := r.kernel.StartAll(ctx); err != nil {
		r.kernel.DestroyAll(ctx)
		r.close()
		return err
	}
	log.Logger.Info().Str("environment", r.cfg.System.Environment).Msg("runtime started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(r.server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return r.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	r.kernel.StopAll(stopCtx)
	r.kernel.DestroyAll(stopCtx)
	r.close()

	if err != nil && ctx.Err() == nil {
		return err
	}
	log.Logger.Info().Msg("runtime stopped")
	return nil
}

// close releases the shared services in reverse construction order.
func (r *Runtime) close() {
	r.sched.Stop()
	r.bus.UnsubscribeAll()
	if err := r.store.Close(); err != nil {
		log.Errorf("failed to close store", err)
	}
}

func initLogging(cfg config.LoggingConfig) error {
	name := cfg.Output
	if name == "file" || (name != "stdout" && name != "stderr" && cfg.FilePath != "") {
		name = cfg.FilePath
	}
	out, err := log.OpenOutput(name)
	if err != nil {
		return oerrors.Configf("logging: %v", err)
	}
	log.Init(log.Config{Level: log.Level(cfg.Level), Format: cfg.Format, Output: out})
	return nil
}

// OpenStore selects the storage backend from the configured engine.
// The "database" engine name maps to the bolt backend.
func OpenStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Engine {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "file":
		return storage.NewFileStore(cfg.Options.Path)
	case "sqlite":
		return storage.NewSQLiteStore(cfg.Options.Path)
	case "database":
		return storage.NewBoltStore(cfg.Options.Path)
	default:
		return nil, oerrors.Configf("unknown storage engine %q", cfg.Engine)
	}
}

func buildAuthenticator(cfg config.AuthConfig) *security.Authenticator {
	var tokens *security.TokenVerifier
	if cfg.Secret != "" {
		tokens = security.NewTokenVerifier(cfg.Secret, cfg.Issuer, scheduler.System)
	}
	var keys *security.APIKeyVerifier
	if len(cfg.APIKeys) > 0 {
		keys = security.NewAPIKeyVerifier(cfg.APIKeys)
	}
	public := security.NewPublicPaths(cfg.PublicPaths)
	if tokens == nil && keys == nil {
		// No credentials configured: the whole surface is public.
		return nil
	}
	return security.NewAuthenticator(tokens, keys, public)
}
