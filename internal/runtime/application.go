// Package runtime assembles the platform core: it owns construction and
// lifecycle of the cache, registries, monitor, DI container, document store
// and team mapping service, and drives the inbound message pipeline that
// ties them together. Nothing here binds a network port; the chat transport
// and any HTTP surface are collaborators that embed this package.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/squadbot/platform_core/internal/cache"
	"github.com/squadbot/platform_core/internal/config"
	"github.com/squadbot/platform_core/internal/container"
	"github.com/squadbot/platform_core/internal/monitor"
	"github.com/squadbot/platform_core/internal/registry"
	"github.com/squadbot/platform_core/internal/store"
	"github.com/squadbot/platform_core/internal/teammap"
	"github.com/squadbot/platform_core/pkg/logger"
)

// connectTimeout bounds backend reachability checks during Start.
const connectTimeout = 5 * time.Second

// Application is the composition root. Construction wires everything from
// configuration; Start performs the fail-fast validation and I/O that may
// not run before serving traffic; Shutdown releases it all.
type Application struct {
	cfg *config.Config
	log *logger.Logger

	backend     cache.Backend
	redis       *cache.RedisBackend // nil unless the redis backend is selected
	tenantCache *cache.TenantCache
	sweeper     *cache.Sweeper

	tools    *registry.Registry
	commands *registry.Registry
	services *registry.Registry

	monitor   *monitor.Monitor
	container *container.Container
	store     store.DocumentStore
	teams     *teammap.Service

	pipeline *Pipeline
	started  bool
}

// NewApplication builds the full object graph from configuration without
// touching the network. A nil config uses defaults.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	a := &Application{
		cfg: cfg,
		log: log.Named("app"),
	}

	if err := a.buildCache(log); err != nil {
		return nil, fmt.Errorf("configure cache: %w", err)
	}

	a.monitor = monitor.New(monitor.WithPrometheus("squadbot"))
	a.tools = registry.New("tools", registry.KindTool, registry.WithLogger(log.Named("registry.tools")))
	a.commands = registry.New("commands", registry.KindCommand, registry.WithLogger(log.Named("registry.commands")))
	a.services = registry.New("services", registry.KindService, registry.WithLogger(log.Named("registry.services")))
	a.container = container.New(log.Named("container"))

	st, err := buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure store: %w", err)
	}
	a.store = st

	a.teams = teammap.NewService(teammap.Config{
		DefaultTeamID: cfg.Teams.DefaultTeamID,
		ChatMappings:  cfg.Teams.ChatMappings,
		MappingsJSON:  cfg.Teams.MappingsJSON,
	}, st, log.Named("teammap"))

	if err := a.bindCoreInstances(); err != nil {
		return nil, fmt.Errorf("bind core services: %w", err)
	}

	a.pipeline = newPipeline(a.teams, a.container, a.monitor, a.capabilities(), log.Named("pipeline"))
	return a, nil
}

func (a *Application) buildCache(log *logger.Logger) error {
	switch a.cfg.Cache.Backend {
	case "redis":
		rb := cache.NewRedisBackend(cache.RedisOptions{
			Addr:       a.cfg.Cache.Redis.Addr,
			Password:   a.cfg.Cache.Redis.Password,
			DB:         a.cfg.Cache.Redis.DB,
			DefaultTTL: a.cfg.Cache.DefaultTTL,
		})
		a.redis = rb
		a.backend = rb
	case "", "memory":
		a.backend = cache.NewMemoryBackend(cache.New(a.cfg.Cache.DefaultTTL))
	default:
		return fmt.Errorf("unknown cache backend %q", a.cfg.Cache.Backend)
	}

	a.tenantCache = cache.NewTenantCache(a.backend)
	a.sweeper = cache.NewSweeper(a.backend, a.cfg.Cache.SweepInterval, log.Named("cache.sweeper"))
	return nil
}

func buildStore(cfg *config.Config) (store.DocumentStore, error) {
	switch cfg.Store.Backend {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "supabase":
		return store.NewSupabaseStore(store.SupabaseOptions{
			URL:               cfg.Store.Supabase.URL,
			ServiceKey:        cfg.Store.Supabase.ServiceKey,
			RequestsPerSecond: cfg.Store.Supabase.RequestsPerSecond,
		})
	case "postgres":
		db, err := sql.Open("postgres", cfg.Store.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.Store.Postgres.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Store.Postgres.MaxOpenConns)
		}
		if cfg.Store.Postgres.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.Store.Postgres.MaxIdleConns)
		}
		if cfg.Store.Postgres.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.Store.Postgres.ConnMaxLifetime)
		}
		return store.NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// bindCoreInstances registers the objects the composition root built by hand,
// so business services can declare them as dependencies.
func (a *Application) bindCoreInstances() error {
	bindings := []struct {
		iface    string
		register func() error
	}{
		{"store.DocumentStore", func() error {
			return a.container.RegisterInstance(container.TypeOf[store.DocumentStore](), a.store)
		}},
		{"*cache.TenantCache", func() error {
			return a.container.RegisterInstance(container.TypeOf[*cache.TenantCache](), a.tenantCache)
		}},
		{"*teammap.Service", func() error {
			return a.container.RegisterInstance(container.TypeOf[*teammap.Service](), a.teams)
		}},
		{"*monitor.Monitor", func() error {
			return a.container.RegisterInstance(container.TypeOf[*monitor.Monitor](), a.monitor)
		}},
		{"*logger.Logger", func() error {
			return a.container.RegisterInstance(container.TypeOf[*logger.Logger](), a.log)
		}},
	}
	for _, b := range bindings {
		if err := b.register(); err != nil {
			return fmt.Errorf("%s: %w", b.iface, err)
		}
	}
	return nil
}

// Start runs discovery, bridges service specs into the container, validates
// every registration, loads persisted team mappings and starts the cache
// sweeper. Configuration problems abort startup; per-extension failures are
// isolated and logged by the registries.
func (a *Application) Start(ctx context.Context) error {
	if a.started {
		return fmt.Errorf("application already started")
	}

	if err := a.checkBackends(ctx); err != nil {
		return err
	}

	loaded := 0
	loaded += a.tools.LoadExtensions(registry.GroupTools)
	loaded += a.commands.LoadExtensions(registry.GroupCommands)
	loaded += a.services.LoadExtensions(registry.GroupServices)
	for _, r := range a.registries() {
		loaded += r.RunDiscoveryHooks()
	}
	if loaded > 0 {
		a.log.WithField("extensions", loaded).Info("discovery complete")
	}

	if err := a.bridgeServiceSpecs(); err != nil {
		return err
	}
	if err := a.validate(); err != nil {
		return err
	}

	if _, err := a.teams.LoadMappingsFromStore(ctx); err != nil {
		// Resolution still works through the config and default layers;
		// persisted mappings reload on next restart.
		a.log.WithError(err).Warn("could not load team mappings from store")
	}

	for _, r := range a.registries() {
		a.monitor.RecordItemCount(r.Name(), r.Count())
	}

	if err := a.sweeper.Start(); err != nil {
		return err
	}

	a.started = true
	a.log.WithFields(map[string]interface{}{
		"environment": a.cfg.App.Environment,
		"cache":       a.cfg.Cache.Backend,
		"store":       a.cfg.Store.Backend,
	}).Info("platform core started")
	return nil
}

// checkBackends verifies the configured remote backends are reachable so a
// bad deployment fails at startup, not on the first message.
func (a *Application) checkBackends(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if a.redis != nil {
		if err := a.redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis cache backend: %w", err)
		}
	}

	switch st := a.store.(type) {
	case *store.PostgresStore:
		if err := st.Ping(ctx); err != nil {
			return fmt.Errorf("postgres store: %w", err)
		}
		if err := st.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres store: %w", err)
		}
	case *store.SupabaseStore:
		if err := st.Ping(ctx); err != nil {
			return fmt.Errorf("supabase store: %w", err)
		}
	}
	return nil
}

// bridgeServiceSpecs installs every enabled service registration from the
// services registry into the DI container.
func (a *Application) bridgeServiceSpecs() error {
	for _, item := range a.services.EnabledItems() {
		spec, ok := registry.AsServiceSpec(item)
		if !ok {
			return fmt.Errorf("service item %q is not a service spec", item.Name)
		}
		if err := a.container.Register(spec.Registration()); err != nil {
			return fmt.Errorf("bridge service %q: %w", item.Name, err)
		}
	}
	return nil
}

// validate collects configuration problems across the container and every
// registry. Any finding aborts startup.
func (a *Application) validate() error {
	var problems []string
	for _, err := range a.container.Validate() {
		problems = append(problems, err.Error())
	}
	for _, r := range a.registries() {
		for _, msg := range r.Validate() {
			problems = append(problems, fmt.Sprintf("registry %s: %s", r.Name(), msg))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	for _, p := range problems {
		a.log.WithField("problem", p).Error("startup validation failed")
	}
	return fmt.Errorf("startup validation failed: %s", strings.Join(problems, "; "))
}

// Shutdown stops the sweeper, drops container and registry state and closes
// the store. The context bounds how long to wait for a running sweep to
// drain; resources are released either way. Safe to call on a never-started
// application.
func (a *Application) Shutdown(ctx context.Context) error {
	var err error
	if a.started {
		done := make(chan struct{})
		go func() {
			a.sweeper.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("cache sweeper did not drain: %w", ctx.Err())
		}
	}

	a.container.Cleanup()
	for _, r := range a.registries() {
		r.Cleanup()
	}

	if cerr := a.store.Close(); cerr != nil {
		a.log.WithError(cerr).Warn("error closing document store")
	}
	if a.redis != nil {
		if cerr := a.redis.Close(); cerr != nil {
			a.log.WithError(cerr).Warn("error closing redis cache backend")
		}
	}

	a.started = false
	a.log.Info("platform core stopped")
	return err
}

func (a *Application) registries() []*registry.Registry {
	return []*registry.Registry{a.tools, a.commands, a.services}
}

func (a *Application) capabilities() *Capabilities {
	return &Capabilities{
		tools:     a.tools,
		commands:  a.commands,
		container: a.container,
		monitor:   a.monitor,
	}
}

// Pipeline returns the inbound message pipeline.
func (a *Application) Pipeline() *Pipeline { return a.pipeline }

// Tools returns the tool registry, primarily for extension loaders.
func (a *Application) Tools() *registry.Registry { return a.tools }

// Commands returns the command registry.
func (a *Application) Commands() *registry.Registry { return a.commands }

// Services returns the service registry.
func (a *Application) Services() *registry.Registry { return a.services }

// Container returns the DI container.
func (a *Application) Container() *container.Container { return a.container }

// TenantCache returns the tenant-scoped cache facade.
func (a *Application) TenantCache() *cache.TenantCache { return a.tenantCache }

// Teams returns the team mapping service.
func (a *Application) Teams() *teammap.Service { return a.teams }

// Monitor returns the registry monitor.
func (a *Application) Monitor() *monitor.Monitor { return a.monitor }

// Store returns the document store.
func (a *Application) Store() store.DocumentStore { return a.store }

// Statistics aggregates diagnostics across every subsystem.
type Statistics struct {
	App         string                         `json:"app"`
	Environment string                         `json:"environment"`
	Cache       cache.Stats                    `json:"cache"`
	Registries  map[string]registry.Statistics `json:"registries"`
	Container   container.Stats                `json:"container"`
	Mappings    teammap.Stats                  `json:"mappings"`
	Performance monitor.Report                 `json:"performance"`
}

// Statistics snapshots the whole runtime for health and admin surfaces.
func (a *Application) Statistics(ctx context.Context) Statistics {
	cacheStats, err := a.backend.Stats(ctx)
	if err != nil {
		a.log.WithError(err).Warn("cache stats unavailable")
	}

	regs := make(map[string]registry.Statistics, 3)
	for _, r := range a.registries() {
		regs[r.Name()] = r.GetStatistics()
	}

	return Statistics{
		App:         a.cfg.App.Name,
		Environment: a.cfg.App.Environment,
		Cache:       cacheStats,
		Registries:  regs,
		Container:   a.container.Statistics(),
		Mappings:    a.teams.MappingStats(),
		Performance: a.monitor.PerformanceReport(),
	}
}
