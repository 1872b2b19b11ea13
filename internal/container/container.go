// Package container implements the dependency injection container for the
// bot runtime. Registrations bind an interface type to a constructor or
// factory with an explicit dependency list; the container owns instance
// lifetimes across singleton, transient and request scopes. There is no
// struct-tag or annotation scanning: what a constructor needs is declared,
// which keeps resolution deterministic and lets Validate check the whole
// graph before the first message is served.
package container

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/squadbot/platform_core/pkg/logger"
)

// Scope selects how long a resolved instance lives.
type Scope string

const (
	// ScopeSingleton builds once per container lifetime.
	ScopeSingleton Scope = "singleton"
	// ScopeTransient builds on every resolve.
	ScopeTransient Scope = "transient"
	// ScopeRequest builds once per request scope.
	ScopeRequest Scope = "request"
)

// Registration binds an interface to a way of constructing it.
type Registration struct {
	// Interface is the binding key, normally obtained with TypeOf.
	Interface reflect.Type

	// Constructor is a func whose parameters match Dependencies in order
	// and whose first return value implements Interface. An optional
	// second return value must be an error.
	Constructor interface{}

	// Factory builds the instance without dependency wiring. When set it
	// takes precedence over Constructor.
	Factory func() (interface{}, error)

	// Scope defaults to ScopeSingleton.
	Scope Scope

	// Dependencies lists the interface types resolved and passed to
	// Constructor, in parameter order.
	Dependencies []reflect.Type
}

// registration is the stored form, with the mutex that serializes first
// construction of singleton and request instances.
type registration struct {
	Registration
	buildMu sync.Mutex
}

// Stats summarizes the container population.
type Stats struct {
	Registrations    int           `json:"registrations"`
	ByScope          map[Scope]int `json:"by_scope"`
	Singletons       int           `json:"singletons"`
	RequestActive    bool          `json:"request_active"`
	RequestInstances int           `json:"request_instances"`
}

// Container resolves interfaces to instances. All methods are safe for
// concurrent use.
type Container struct {
	mu            sync.RWMutex
	registrations map[reflect.Type]*registration
	singletons    map[reflect.Type]interface{}
	request       map[reflect.Type]interface{}
	requestActive bool
	log           *logger.Logger
}

// New creates an empty container.
func New(log *logger.Logger) *Container {
	if log == nil {
		log = logger.NewDefault("container")
	}
	return &Container{
		registrations: make(map[reflect.Type]*registration),
		singletons:    make(map[reflect.Type]interface{}),
		request:       make(map[reflect.Type]interface{}),
		log:           log,
	}
}

// Register adds a binding. Registering an interface twice is rejected;
// Replace is the explicit path for overwriting.
func (c *Container) Register(reg Registration) error {
	if err := normalize(&reg); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.registrations[reg.Interface]; exists {
		return fmt.Errorf("%s: %w", typeName(reg.Interface), ErrAlreadyRegistered)
	}
	c.registrations[reg.Interface] = &registration{Registration: reg}
	return nil
}

// Replace installs a binding, overwriting any existing one and dropping
// cached instances built from it.
func (c *Container) Replace(reg Registration) error {
	if err := normalize(&reg); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations[reg.Interface] = &registration{Registration: reg}
	delete(c.singletons, reg.Interface)
	delete(c.request, reg.Interface)
	return nil
}

// RegisterInstance binds an already-built singleton. The composition root
// uses this for objects it constructs by hand.
func (c *Container) RegisterInstance(iface reflect.Type, instance interface{}) error {
	if iface == nil {
		return NewConfigurationError(nil, "interface type is required")
	}
	if instance == nil {
		return NewConfigurationError(iface, "instance is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.registrations[iface]; exists {
		return fmt.Errorf("%s: %w", typeName(iface), ErrAlreadyRegistered)
	}
	c.registrations[iface] = &registration{Registration: Registration{Interface: iface, Scope: ScopeSingleton}}
	c.singletons[iface] = instance
	return nil
}

// IsRegistered reports whether the interface has a binding.
func (c *Container) IsRegistered(iface reflect.Type) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.registrations[iface]
	return ok
}

// Resolve returns an instance for the interface, building it and its
// declared dependencies as needed.
func (c *Container) Resolve(iface reflect.Type) (interface{}, error) {
	return c.resolve(iface, nil)
}

// MustResolve is Resolve that panics on failure. Composition-root use only.
func (c *Container) MustResolve(iface reflect.Type) interface{} {
	v, err := c.Resolve(iface)
	if err != nil {
		panic(fmt.Sprintf("container: %v", err))
	}
	return v
}

func (c *Container) resolve(iface reflect.Type, chain []reflect.Type) (interface{}, error) {
	for _, seen := range chain {
		if seen == iface {
			return nil, &DependencyError{
				Interface: iface,
				Err:       fmt.Errorf("dependency cycle through %s", typeName(iface)),
			}
		}
	}

	c.mu.RLock()
	reg, ok := c.registrations[iface]
	if !ok {
		c.mu.RUnlock()
		return nil, NewNotRegisteredError(iface)
	}
	switch reg.Scope {
	case ScopeSingleton:
		if inst, hit := c.singletons[iface]; hit {
			c.mu.RUnlock()
			return inst, nil
		}
	case ScopeRequest:
		if !c.requestActive {
			c.mu.RUnlock()
			return nil, fmt.Errorf("%s: %w", typeName(iface), ErrNoActiveScope)
		}
		if inst, hit := c.request[iface]; hit {
			c.mu.RUnlock()
			return inst, nil
		}
	}
	c.mu.RUnlock()

	switch reg.Scope {
	case ScopeTransient:
		return c.build(reg, chain)

	case ScopeSingleton:
		// Serialize first construction per registration so concurrent
		// resolvers cannot build two singletons.
		reg.buildMu.Lock()
		defer reg.buildMu.Unlock()

		c.mu.RLock()
		inst, hit := c.singletons[iface]
		c.mu.RUnlock()
		if hit {
			return inst, nil
		}

		inst, err := c.build(reg, chain)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.singletons[iface] = inst
		c.mu.Unlock()
		return inst, nil

	case ScopeRequest:
		reg.buildMu.Lock()
		defer reg.buildMu.Unlock()

		c.mu.RLock()
		inst, hit := c.request[iface]
		active := c.requestActive
		c.mu.RUnlock()
		if !active {
			return nil, fmt.Errorf("%s: %w", typeName(iface), ErrNoActiveScope)
		}
		if hit {
			return inst, nil
		}

		inst, err := c.build(reg, chain)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.requestActive {
			c.request[iface] = inst
		}
		c.mu.Unlock()
		return inst, nil

	default:
		return nil, NewConfigurationError(iface, fmt.Sprintf("unknown scope %q", reg.Scope))
	}
}

// build constructs one instance. Failures are logged with the full chain
// detail; no partially constructed object is ever cached.
func (c *Container) build(reg *registration, chain []reflect.Type) (interface{}, error) {
	if reg.Factory != nil {
		inst, err := reg.Factory()
		if err != nil {
			err = &DependencyError{Interface: reg.Interface, Err: fmt.Errorf("factory: %w", err)}
			c.log.WithError(err).Error("instance construction failed")
			return nil, err
		}
		return inst, nil
	}

	if reg.Constructor == nil {
		err := NewConfigurationError(reg.Interface, "no constructor or factory")
		c.log.WithError(err).Error("instance construction failed")
		return nil, err
	}

	ctor := reflect.ValueOf(reg.Constructor)
	args := make([]reflect.Value, len(reg.Dependencies))
	for i, dep := range reg.Dependencies {
		resolved, err := c.resolve(dep, append(chain, reg.Interface))
		if err != nil {
			err = &DependencyError{Interface: reg.Interface, Dependency: dep, Err: err}
			c.log.WithError(err).Error("instance construction failed")
			return nil, err
		}
		args[i] = reflect.ValueOf(resolved)
	}

	out := ctor.Call(args)
	if len(out) == 2 && !out[1].IsNil() {
		err := &DependencyError{Interface: reg.Interface, Err: out[1].Interface().(error)}
		c.log.WithError(err).Error("instance construction failed")
		return nil, err
	}
	return out[0].Interface(), nil
}

// BeginRequestScope opens a fresh request scope, dropping any instances
// from a previous scope.
func (c *Container) BeginRequestScope() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.request = make(map[reflect.Type]interface{})
	c.requestActive = true
}

// EndRequestScope closes the request scope and drops its instances.
func (c *Container) EndRequestScope() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.request = make(map[reflect.Type]interface{})
	c.requestActive = false
}

// Statistics reports the container population.
func (c *Container) Statistics() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		Registrations:    len(c.registrations),
		ByScope:          make(map[Scope]int),
		Singletons:       len(c.singletons),
		RequestActive:    c.requestActive,
		RequestInstances: len(c.request),
	}
	for _, reg := range c.registrations {
		stats.ByScope[reg.Scope]++
	}
	return stats
}

// Cleanup drops every cached instance. Registrations stay so the container
// can be reused; singletons rebuild on next resolve.
func (c *Container) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.singletons = make(map[reflect.Type]interface{})
	c.request = make(map[reflect.Type]interface{})
	c.requestActive = false
}

func normalize(reg *Registration) error {
	if reg.Interface == nil {
		return NewConfigurationError(nil, "interface type is required")
	}
	if reg.Scope == "" {
		reg.Scope = ScopeSingleton
	}
	switch reg.Scope {
	case ScopeSingleton, ScopeTransient, ScopeRequest:
	default:
		return NewConfigurationError(reg.Interface, fmt.Sprintf("unknown scope %q", reg.Scope))
	}
	return nil
}

// TypeOf returns the reflect.Type of T. The usual key for Register and
// Resolve calls.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// ResolveAs resolves T from the container with a typed result.
func ResolveAs[T any](c *Container) (T, error) {
	var zero T
	v, err := c.Resolve(TypeOf[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, NewConfigurationError(TypeOf[T](), fmt.Sprintf("instance type %T does not implement the interface", v))
	}
	return typed, nil
}
