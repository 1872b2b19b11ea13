package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/squadbot/platform_core/internal/container"
	"github.com/squadbot/platform_core/internal/monitor"
	"github.com/squadbot/platform_core/internal/registry"
	"github.com/squadbot/platform_core/internal/teammap"
	"github.com/squadbot/platform_core/pkg/logger"
)

// User-facing replies for pipeline-level failures. Internal detail goes to
// the log only; chat users never see registry or container errors.
const (
	replyUnknownTenant = "Sorry, I don't know which team this chat belongs to yet. Ask an admin to link it."
	replyTryAgain      = "Something went wrong on my side. Please try again."
)

// PipelineRegistry is the monitor label for pipeline-level timings.
const PipelineRegistry = "pipeline"

// Reply is what the transport adapter sends back to the chat.
type Reply struct {
	// Text is the message for the user. Always set, even on failure.
	Text string `json:"text"`

	// TeamID is the resolved tenant, empty when resolution failed.
	TeamID string `json:"team_id,omitempty"`

	// Handled reports whether the handler ran to completion.
	Handled bool `json:"handled"`
}

// Handler processes one inbound message with the tenant already resolved on
// ctx and the request-scoped capabilities in hand.
type Handler func(ctx context.Context, caps *Capabilities) (string, error)

// Pipeline drives one inbound chat message through tenant resolution, the
// container request scope and the handler. Messages are dispatched one at a
// time; the request scope is container-level, so concurrent transports need
// one pipeline (and container) per worker.
type Pipeline struct {
	mu        sync.Mutex
	teams     *teammap.Service
	container *container.Container
	monitor   *monitor.Monitor
	caps      *Capabilities
	log       *logger.Logger
}

func newPipeline(teams *teammap.Service, c *container.Container, mon *monitor.Monitor, caps *Capabilities, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewDefault("pipeline")
	}
	return &Pipeline{
		teams:     teams,
		container: c,
		monitor:   mon,
		caps:      caps,
		log:       log,
	}
}

// HandleInbound resolves the conversation's tenant, attaches it to ctx,
// opens a request scope and runs the handler inside it. Handler errors and
// panics are logged with full detail and mapped to a generic reply.
func (p *Pipeline) HandleInbound(ctx context.Context, conversationID string, handler Handler) Reply {
	res, err := p.teams.Resolve(conversationID)
	if err != nil {
		p.log.WithError(err).WithField("conversation_id", conversationID).
			Warn("inbound message from unmapped conversation")
		return Reply{Text: replyUnknownTenant}
	}
	ctx = withResolution(ctx, res)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.container.BeginRequestScope()
	defer p.container.EndRequestScope()

	start := time.Now()
	text, err := p.invoke(ctx, handler)
	latency := time.Since(start)
	p.monitor.RecordRequest(PipelineRegistry, "inbound", err == nil, latency)

	if err != nil {
		p.log.WithError(err).WithFields(map[string]interface{}{
			"conversation_id": conversationID,
			"team_id":         res.TeamID,
			"source":          res.Source,
			"latency":         latency.String(),
		}).Error("inbound handler failed")
		return Reply{Text: replyTryAgain, TeamID: res.TeamID}
	}

	return Reply{Text: text, TeamID: res.TeamID, Handled: true}
}

// invoke runs the handler with panic containment. A panicking handler must
// not take the process down or leak the open request scope.
func (p *Pipeline) invoke(ctx context.Context, handler Handler) (text string, err error) {
	if handler == nil {
		return "", fmt.Errorf("nil inbound handler")
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return handler(ctx, p.caps)
}

// Capabilities is the per-message view handlers get: tool and command
// dispatch plus the scoped container for service resolution.
type Capabilities struct {
	tools     *registry.Registry
	commands  *registry.Registry
	container *container.Container
	monitor   *monitor.Monitor
}

// InvokeTool looks up an enabled tool and runs its handler. The call is
// timed into the monitor under the tools registry whether it succeeds or
// not.
func (c *Capabilities) InvokeTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	item, ok := c.tools.Get(name)
	if !ok {
		return "", fmt.Errorf("tool %q: %w", name, registry.ErrItemNotFound)
	}
	if !item.Enabled {
		return "", fmt.Errorf("tool %q is disabled", name)
	}
	tool, ok := registry.AsTool(item)
	if !ok || tool.Handler == nil {
		return "", fmt.Errorf("tool %q has no handler", name)
	}

	start := time.Now()
	out, err := tool.Handler(ctx, args)
	c.monitor.RecordRequest(c.tools.Name(), item.Name, err == nil, time.Since(start))
	return out, err
}

// RunCommand looks up an enabled chat command and runs it. The invocation's
// team id is filled from ctx when the caller left it empty.
func (c *Capabilities) RunCommand(ctx context.Context, name string, inv *registry.Invocation) (string, error) {
	item, ok := c.commands.Get(name)
	if !ok {
		return "", fmt.Errorf("command %q: %w", name, registry.ErrItemNotFound)
	}
	if !item.Enabled {
		return "", fmt.Errorf("command %q is disabled", name)
	}
	cmd, ok := registry.AsCommand(item)
	if !ok || cmd.Handler == nil {
		return "", fmt.Errorf("command %q has no handler", name)
	}

	if inv == nil {
		inv = &registry.Invocation{}
	}
	if inv.TeamID == "" {
		if team, ok := TeamIDFromContext(ctx); ok {
			inv.TeamID = team
		}
	}

	start := time.Now()
	out, err := cmd.Handler(ctx, inv)
	c.monitor.RecordRequest(c.commands.Name(), item.Name, err == nil, time.Since(start))
	return out, err
}

// Container exposes the DI container for service resolution inside the
// request scope.
func (c *Capabilities) Container() *container.Container { return c.container }

// Tools lists the registered tool names.
func (c *Capabilities) Tools() []string { return c.tools.Names() }

// Commands lists the registered command names.
func (c *Capabilities) Commands() []string { return c.commands.Names() }
