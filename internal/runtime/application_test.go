package runtime

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/squadbot/platform_core/internal/cache"
	"github.com/squadbot/platform_core/internal/config"
	"github.com/squadbot/platform_core/internal/container"
	"github.com/squadbot/platform_core/internal/monitor"
	"github.com/squadbot/platform_core/internal/registry"
	"github.com/squadbot/platform_core/internal/store"
	"github.com/squadbot/platform_core/internal/teammap"
	"github.com/squadbot/platform_core/pkg/logger"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Cache.SweepInterval = time.Hour
	return cfg
}

type greeter interface {
	Greet() string
}

type stubGreeter struct{}

func (stubGreeter) Greet() string { return "hello" }

type scheduler interface {
	Announce() string
}

type stubScheduler struct {
	g greeter
}

func (s stubScheduler) Announce() string { return s.g.Greet() + ", practice at six" }

// ===== Construction =====

func TestNewApplicationDefaults(t *testing.T) {
	app, err := NewApplication(nil)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	if app.Pipeline() == nil || app.Container() == nil || app.Monitor() == nil ||
		app.TenantCache() == nil || app.Teams() == nil || app.Store() == nil {
		t.Fatal("all subsystems should be constructed")
	}
	if app.Tools().Name() != "tools" || app.Commands().Name() != "commands" || app.Services().Name() != "services" {
		t.Error("registries should carry their canonical names")
	}

	// The composition root pre-binds the core services.
	for _, iface := range []reflect.Type{
		container.TypeOf[store.DocumentStore](),
		container.TypeOf[*cache.TenantCache](),
		container.TypeOf[*teammap.Service](),
		container.TypeOf[*monitor.Monitor](),
		container.TypeOf[*logger.Logger](),
	} {
		if !app.Container().IsRegistered(iface) {
			t.Errorf("%s should be pre-bound", iface)
		}
	}
}

func TestNewApplicationRejectsUnknownCacheBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Backend = "memcached"
	if _, err := NewApplication(cfg); err == nil || !strings.Contains(err.Error(), "cache backend") {
		t.Errorf("expected cache backend error, got %v", err)
	}
}

func TestNewApplicationRejectsUnknownStoreBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = "dynamo"
	if _, err := NewApplication(cfg); err == nil || !strings.Contains(err.Error(), "store backend") {
		t.Errorf("expected store backend error, got %v", err)
	}
}

// ===== Lifecycle =====

func TestApplicationLifecycle(t *testing.T) {
	app, err := NewApplication(testConfig())
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := app.Start(ctx); err == nil {
		t.Error("second start must fail")
	}

	stats := app.Statistics(ctx)
	if stats.App != "squadbot" || stats.Environment != "development" {
		t.Errorf("unexpected identity: %+v", stats)
	}
	if len(stats.Registries) != 3 {
		t.Errorf("expected stats for three registries, got %v", stats.Registries)
	}
	if !stats.Performance.Enabled {
		t.Error("monitor should be enabled")
	}
	if stats.Container.Registrations < 5 {
		t.Errorf("core bindings missing from container stats: %+v", stats.Container)
	}

	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestApplicationShutdownWithoutStart(t *testing.T) {
	app, err := NewApplication(testConfig())
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown of a never-started application: %v", err)
	}
}

// ===== Service spec bridging =====

func TestApplicationBridgesServiceSpecs(t *testing.T) {
	app, err := NewApplication(testConfig())
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	must := func(err error) {
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	must(app.Services().Register(registry.ServiceSpec{
		Name:      "greeter",
		Interface: container.TypeOf[greeter](),
		Factory:   func() (interface{}, error) { return stubGreeter{}, nil },
	}))
	must(app.Services().Register(registry.ServiceSpec{
		Name:         "scheduler",
		Interface:    container.TypeOf[scheduler](),
		Constructor:  func(g greeter) scheduler { return stubScheduler{g: g} },
		Dependencies: []reflect.Type{container.TypeOf[greeter]()},
	}))

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer app.Shutdown(ctx)

	s, err := container.ResolveAs[scheduler](app.Container())
	if err != nil {
		t.Fatalf("resolve bridged service: %v", err)
	}
	if got := s.Announce(); got != "hello, practice at six" {
		t.Errorf("unexpected announcement %q", got)
	}
}

func TestApplicationValidationFailsFast(t *testing.T) {
	app, err := NewApplication(testConfig())
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	// The scheduler's greeter dependency is never registered.
	if err := app.Services().Register(registry.ServiceSpec{
		Name:         "scheduler",
		Interface:    container.TypeOf[scheduler](),
		Constructor:  func(g greeter) scheduler { return stubScheduler{g: g} },
		Dependencies: []reflect.Type{container.TypeOf[greeter]()},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	err = app.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("expected startup validation failure, got %v", err)
	}

	// A failed start leaves the application stopped.
	if err := app.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown after failed start: %v", err)
	}
}

// ===== Startup bookkeeping =====

func TestApplicationRecordsItemCounts(t *testing.T) {
	app, err := NewApplication(testConfig())
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if err := app.Commands().Register(registry.Command{
		Name:        "/ping",
		Description: "replies pong",
		Handler: func(ctx context.Context, inv *registry.Invocation) (string, error) {
			return "pong", nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer app.Shutdown(ctx)

	m, ok := app.Monitor().GetMetrics("commands")
	if !ok || m.TotalItems != 1 {
		t.Errorf("item count should be recorded at start: %+v", m)
	}
}

func TestApplicationLoadsPersistedMappings(t *testing.T) {
	app, err := NewApplication(testConfig())
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	ctx := context.Background()
	if _, err := app.Store().CreateDocument(ctx, teammap.Collection, store.Document{
		"conversation_id": "chat-7",
		"team_id":         "TEAMQ",
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer app.Shutdown(ctx)

	res, err := app.Teams().Resolve("chat-7")
	if err != nil || res.TeamID != "TEAMQ" {
		t.Errorf("persisted mapping should resolve after start: %+v %v", res, err)
	}
}

// ===== End to end =====

func TestApplicationEndToEndInbound(t *testing.T) {
	cfg := testConfig()
	cfg.Teams.DefaultTeamID = "TEAMA"
	cfg.Teams.MappingsJSON = `{"chat-42": "TEAMB"}`

	app, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if err := app.Commands().Register(registry.Command{
		Name:        "/whoami",
		Description: "reports the resolved team",
		Handler: func(ctx context.Context, inv *registry.Invocation) (string, error) {
			return inv.TeamID, nil
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer app.Shutdown(ctx)

	handler := func(ctx context.Context, caps *Capabilities) (string, error) {
		return caps.RunCommand(ctx, "/whoami", &registry.Invocation{ConversationID: "chat-42"})
	}

	reply := app.Pipeline().HandleInbound(ctx, "chat-42", handler)
	if !reply.Handled || reply.TeamID != "TEAMB" || reply.Text != "TEAMB" {
		t.Errorf("environment mapping should route chat-42 to TEAMB: %+v", reply)
	}

	reply = app.Pipeline().HandleInbound(ctx, "chat-unknown", handler)
	if reply.TeamID != "TEAMA" {
		t.Errorf("unmapped chats should fall back to the default team: %+v", reply)
	}

	if m, ok := app.Monitor().GetMetrics(PipelineRegistry); !ok || m.TotalRequests != 2 {
		t.Errorf("pipeline traffic should be monitored: %+v", m)
	}
}

// ===== Extension points =====

// DefaultExtensions is process-global, so this registration is visible to
// every application constructed after it. Keep this test self-contained:
// it asserts presence, never absence.
func TestApplicationLoadsExtensions(t *testing.T) {
	registry.RegisterExtension(registry.GroupTools, "weather-pack", func(r *registry.Registry) error {
		return r.Register(registry.Tool{
			Name:        "weather",
			Description: "reports match-day weather",
			Parameters:  map[string]string{"city": "string"},
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				return "sunny", nil
			},
		})
	})

	cfg := testConfig()
	cfg.Teams.DefaultTeamID = "TEAMA"
	app, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer app.Shutdown(ctx)

	if !app.Tools().IsRegistered("weather") {
		t.Error("extension tool should load during start")
	}

	reply := app.Pipeline().HandleInbound(ctx, "chat-1", func(ctx context.Context, caps *Capabilities) (string, error) {
		return caps.InvokeTool(ctx, "weather", map[string]interface{}{"city": "Oslo"})
	})
	if !reply.Handled || reply.Text != "sunny" {
		t.Errorf("extension tool should be invocable through the pipeline: %+v", reply)
	}
}
