// Package registry implements the named-item store behind the platform's
// pluggable capabilities. Tools, chat commands and service bindings form a
// closed variant set; each registry is one arena of items indexed by name,
// with alias support, discovery hooks, extension-point loading and metadata
// validation.
package registry

import (
	"context"
	"reflect"

	"github.com/squadbot/platform_core/internal/container"
)

// Kind tags a capability variant.
type Kind string

const (
	KindTool    Kind = "tool"
	KindCommand Kind = "command"
	KindService Kind = "service"
)

// Capability is the minimal surface every registrable variant exposes.
type Capability interface {
	// CapabilityName is the unique registry key.
	CapabilityName() string

	// CapabilityKind reports which variant this is.
	CapabilityKind() Kind
}

// ToolHandler executes a tool call and returns its textual result.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (string, error)

// Tool is a capability the LLM layer can invoke by name with loose
// arguments.
type Tool struct {
	Name        string
	Description string
	Handler     ToolHandler

	// Parameters documents the accepted argument names and their types for
	// discovery surfaces.
	Parameters map[string]string
}

func (t Tool) CapabilityName() string { return t.Name }
func (t Tool) CapabilityKind() Kind   { return KindTool }

// Invocation carries the chat context of one command execution.
type Invocation struct {
	ConversationID string
	TeamID         string
	Sender         string
	Args           []string
}

// CommandHandler executes a chat command and returns the reply text.
type CommandHandler func(ctx context.Context, inv *Invocation) (string, error)

// Command is a chat command. Names carry the leading slash, e.g. "/addplayer".
type Command struct {
	Name        string
	Description string
	Handler     CommandHandler

	// Permission names the role required to run the command; empty means
	// any member.
	Permission string
}

func (c Command) CapabilityName() string { return c.Name }
func (c Command) CapabilityKind() Kind   { return KindCommand }

// ServiceSpec binds an interface to a construction recipe. The runtime
// bridges registered specs into the DI container at startup.
type ServiceSpec struct {
	Name         string
	Interface    reflect.Type
	Constructor  interface{}
	Factory      func() (interface{}, error)
	Scope        container.Scope
	Dependencies []reflect.Type
}

func (s ServiceSpec) CapabilityName() string { return s.Name }
func (s ServiceSpec) CapabilityKind() Kind   { return KindService }

// Registration converts the ServiceSpec into a container registration.
func (s ServiceSpec) Registration() container.Registration {
	return container.Registration{
		Interface:    s.Interface,
		Constructor:  s.Constructor,
		Factory:      s.Factory,
		Scope:        s.Scope,
		Dependencies: s.Dependencies,
	}
}

// AsTool unwraps an item registered as a Tool, by value or pointer.
func AsTool(item Item) (Tool, bool) {
	switch v := item.Value.(type) {
	case Tool:
		return v, true
	case *Tool:
		return *v, true
	default:
		return Tool{}, false
	}
}

// AsCommand unwraps an item registered as a Command, by value or pointer.
func AsCommand(item Item) (Command, bool) {
	switch v := item.Value.(type) {
	case Command:
		return v, true
	case *Command:
		return *v, true
	default:
		return Command{}, false
	}
}

// AsServiceSpec unwraps an item registered as a ServiceSpec, by value or
// pointer.
func AsServiceSpec(item Item) (ServiceSpec, bool) {
	switch v := item.Value.(type) {
	case ServiceSpec:
		return v, true
	case *ServiceSpec:
		return *v, true
	default:
		return ServiceSpec{}, false
	}
}
