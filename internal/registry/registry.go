package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/squadbot/platform_core/pkg/logger"
)

// DefaultVersion is stamped on items registered without an explicit version.
const DefaultVersion = "1.0.0"

// Item wraps a registered capability with its bookkeeping metadata.
type Item struct {
	Name         string
	Kind         Kind
	Value        Capability
	Version      string
	Enabled      bool
	Metadata     map[string]interface{}
	Tags         []string
	DependsOn    []string
	RegisteredAt time.Time
}

// ItemOption customizes the metadata of one registration.
type ItemOption func(*Item)

// WithVersion overrides the default item version.
func WithVersion(version string) ItemOption {
	return func(it *Item) { it.Version = version }
}

// WithMetadata attaches one metadata key to the item.
func WithMetadata(key string, value interface{}) ItemOption {
	return func(it *Item) {
		if it.Metadata == nil {
			it.Metadata = make(map[string]interface{})
		}
		it.Metadata[key] = value
	}
}

// WithTags appends free-form tags used by discovery surfaces.
func WithTags(tags ...string) ItemOption {
	return func(it *Item) { it.Tags = append(it.Tags, tags...) }
}

// WithDependsOn records names of items this one needs at runtime.
func WithDependsOn(names ...string) ItemOption {
	return func(it *Item) { it.DependsOn = append(it.DependsOn, names...) }
}

// Disabled registers the item switched off. It stays listed but resolvers
// skip it until SetEnabled turns it back on.
func Disabled() ItemOption {
	return func(it *Item) { it.Enabled = false }
}

// DiscoveryHook populates a registry during startup discovery. Hooks run in
// the order they were added; one failing hook never stops the rest.
type DiscoveryHook func(r *Registry) error

// Registry is a thread-safe arena of named capabilities. Each instance
// usually holds a single kind (the runtime composes one registry each for
// tools, commands and services), but a kindless registry accepts any
// variant.
type Registry struct {
	mu         sync.RWMutex
	name       string
	kind       Kind
	items      map[string]*Item
	aliases    map[string]string
	order      []string // registration order for deterministic iteration
	hooks      []DiscoveryHook
	extensions *ExtensionSet
	log        *logger.Logger
}

// Option customizes a registry at construction time.
type Option func(*Registry)

// WithLogger sets the logger used for discovery and validation reporting.
func WithLogger(log *logger.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithExtensions points the registry at a non-default extension set.
// Mainly useful in tests; production registries share DefaultExtensions.
func WithExtensions(set *ExtensionSet) Option {
	return func(r *Registry) { r.extensions = set }
}

// New creates an empty registry. kind may be empty to accept every
// capability variant.
func New(name string, kind Kind, opts ...Option) *Registry {
	r := &Registry{
		name:       name,
		kind:       kind,
		items:      make(map[string]*Item),
		aliases:    make(map[string]string),
		extensions: DefaultExtensions(),
		log:        logger.NewDefault("registry." + name),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the registry name.
func (r *Registry) Name() string { return r.name }

// Kind returns the capability kind this registry holds, or "" if mixed.
func (r *Registry) Kind() Kind { return r.kind }

// Register adds a capability under its own name. Names must be unique:
// registering a taken name fails with ErrDuplicateItem. Use Replace to
// overwrite.
func (r *Registry) Register(cap Capability, opts ...ItemOption) error {
	item, err := r.newItem(cap, opts)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.Name]; exists {
		return fmt.Errorf("%w: %q in registry %s", ErrDuplicateItem, item.Name, r.name)
	}
	if target, exists := r.aliases[item.Name]; exists {
		return fmt.Errorf("%w: %q is an alias for %q in registry %s", ErrDuplicateItem, item.Name, target, r.name)
	}

	r.items[item.Name] = item
	r.order = append(r.order, item.Name)
	return nil
}

// Replace registers a capability, overwriting any existing item with the
// same name. Registration order is preserved for overwritten names.
func (r *Registry) Replace(cap Capability, opts ...ItemOption) error {
	item, err := r.newItem(cap, opts)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.Name]; !exists {
		r.order = append(r.order, item.Name)
	}
	r.items[item.Name] = item
	return nil
}

func (r *Registry) newItem(cap Capability, opts []ItemOption) (*Item, error) {
	if cap == nil {
		return nil, fmt.Errorf("%w: nil capability", ErrInvalidCapability)
	}
	name := cap.CapabilityName()
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidCapability)
	}
	kind := cap.CapabilityKind()
	if r.kind != "" && kind != r.kind {
		return nil, fmt.Errorf("%w: %s %q cannot join %s registry %s", ErrKindMismatch, kind, name, r.kind, r.name)
	}

	item := &Item{
		Name:         name,
		Kind:         kind,
		Value:        cap,
		Version:      DefaultVersion,
		Enabled:      true,
		RegisteredAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(item)
	}
	return item, nil
}

// Get returns the item for name, following alias chains. The returned Item
// is a copy; mutate through registry methods only.
func (r *Registry) Get(name string) (Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical, ok := r.resolveLocked(name)
	if !ok {
		return Item{}, false
	}
	return *r.items[canonical], true
}

// MustGet returns the item for name or panics listing what is available.
// Intended for composition-root wiring where absence is a programming error.
func (r *Registry) MustGet(name string) Item {
	item, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("registry %s: item %q not registered. Available: %v", r.name, name, r.Names()))
	}
	return item
}

// resolveLocked follows aliases to a canonical item name. Callers hold at
// least a read lock. A visited set guards against alias cycles so lookup
// always terminates even on a registry that would fail Validate.
func (r *Registry) resolveLocked(name string) (string, bool) {
	visited := make(map[string]bool)
	for {
		if _, ok := r.items[name]; ok {
			return name, true
		}
		target, ok := r.aliases[name]
		if !ok || visited[name] {
			return "", false
		}
		visited[name] = true
		name = target
	}
}

// Alias makes alias resolve to target. The target does not need to exist
// yet; Validate reports aliases left dangling after discovery.
func (r *Registry) Alias(alias, target string) error {
	if alias == "" || target == "" {
		return fmt.Errorf("%w: empty alias or target", ErrInvalidCapability)
	}
	if alias == target {
		return fmt.Errorf("%w: alias %q points at itself", ErrInvalidCapability, alias)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[alias]; exists {
		return fmt.Errorf("%w: %q already names an item in registry %s", ErrDuplicateItem, alias, r.name)
	}
	r.aliases[alias] = target
	return nil
}

// SetEnabled flips the enabled flag on a registered item or alias target.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	canonical, ok := r.resolveLocked(name)
	if !ok {
		return fmt.Errorf("%w: %q in registry %s", ErrItemNotFound, name, r.name)
	}
	r.items[canonical].Enabled = enabled
	return nil
}

// Remove drops an item and any aliases pointing directly at it.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[name]; !ok {
		return fmt.Errorf("%w: %q in registry %s", ErrItemNotFound, name, r.name)
	}
	delete(r.items, name)
	for alias, target := range r.aliases {
		if target == name {
			delete(r.aliases, alias)
		}
	}
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Items returns copies of all items in registration order.
func (r *Registry) Items() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Item, 0, len(r.order))
	for _, name := range r.order {
		if item, ok := r.items[name]; ok {
			out = append(out, *item)
		}
	}
	return out
}

// EnabledItems returns copies of enabled items in registration order.
func (r *Registry) EnabledItems() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Item, 0, len(r.order))
	for _, name := range r.order {
		if item, ok := r.items[name]; ok && item.Enabled {
			out = append(out, *item)
		}
	}
	return out
}

// Names returns all registered item names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered items.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// IsRegistered checks whether name resolves to an item, aliases included.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.resolveLocked(name)
	return ok
}

// AddDiscoveryHook appends a hook to run during RunDiscoveryHooks.
func (r *Registry) AddDiscoveryHook(hook DiscoveryHook) {
	if hook == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// RunDiscoveryHooks executes all hooks in the order they were added and
// returns how many succeeded. A failing or panicking hook is logged and
// skipped; the remaining hooks still run.
func (r *Registry) RunDiscoveryHooks() int {
	r.mu.RLock()
	hooks := make([]DiscoveryHook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.RUnlock()

	succeeded := 0
	for i, hook := range hooks {
		source := fmt.Sprintf("hook[%d]", i)
		if err := r.runIsolated(source, func() error { return hook(r) }); err != nil {
			r.log.WithError(err).Warn("Discovery hook failed")
			continue
		}
		succeeded++
	}
	return succeeded
}

// LoadExtensions runs every extension loader registered under group and
// returns how many loaded cleanly. Failures are logged and isolated so one
// broken extension cannot block its siblings.
func (r *Registry) LoadExtensions(group string) int {
	points := r.extensions.points(group)

	loaded := 0
	for _, p := range points {
		if err := r.runIsolated(group+"/"+p.name, func() error { return p.load(r) }); err != nil {
			r.log.WithError(err).WithField("extension", p.name).Warn("Extension failed to load")
			continue
		}
		loaded++
	}
	return loaded
}

// runIsolated executes fn, converting both errors and panics into a
// DiscoveryError. The registry lock is not held here: hooks and loaders
// call back into Register.
func (r *Registry) runIsolated(source string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &DiscoveryError{Registry: r.name, Source: source, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	if runErr := fn(); runErr != nil {
		return &DiscoveryError{Registry: r.name, Source: source, Err: runErr}
	}
	return nil
}

// Validate sweeps the registry for consistency problems and returns one
// message per finding. An empty slice means the registry is sound. Checked:
// self-aliases, two-step alias cycles, aliases shadowing items, dangling
// alias targets and per-item metadata errors.
func (r *Registry) Validate() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var problems []string

	aliasNames := make([]string, 0, len(r.aliases))
	for alias := range r.aliases {
		aliasNames = append(aliasNames, alias)
	}
	sort.Strings(aliasNames)

	for _, alias := range aliasNames {
		target := r.aliases[alias]
		if alias == target {
			problems = append(problems, fmt.Sprintf("alias %q points at itself", alias))
			continue
		}
		if _, shadowed := r.items[alias]; shadowed {
			problems = append(problems, fmt.Sprintf("alias %q shadows a registered item", alias))
		}
		if back, ok := r.aliases[target]; ok && back == alias {
			// Report each 2-cycle once, from the lexically smaller side.
			if alias < target {
				problems = append(problems, fmt.Sprintf("alias cycle between %q and %q", alias, target))
			}
			continue
		}
		if _, ok := r.resolveLocked(target); !ok {
			problems = append(problems, fmt.Sprintf("alias %q targets unknown item %q", alias, target))
		}
	}

	for _, name := range r.order {
		item, ok := r.items[name]
		if !ok {
			continue
		}
		for _, issue := range ValidateItem(item) {
			if issue.Severity != SeverityError {
				continue
			}
			problems = append(problems, fmt.Sprintf("item %q: %s: %s", name, issue.Field, issue.Message))
		}
	}

	return problems
}

// Statistics summarizes the registry for health and admin surfaces.
type Statistics struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	Items   int    `json:"items"`
	Aliases int    `json:"aliases"`
	Enabled int    `json:"enabled"`
	Hooks   int    `json:"hooks"`
}

// GetStatistics returns current registry counters.
func (r *Registry) GetStatistics() Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	enabled := 0
	for _, item := range r.items {
		if item.Enabled {
			enabled++
		}
	}
	return Statistics{
		Name:    r.name,
		Kind:    r.kind,
		Items:   len(r.items),
		Aliases: len(r.aliases),
		Enabled: enabled,
		Hooks:   len(r.hooks),
	}
}

// Cleanup empties the registry: items, aliases and hooks all go.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = make(map[string]*Item)
	r.aliases = make(map[string]string)
	r.order = nil
	r.hooks = nil
}
