package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Extension group names used by the runtime.
const (
	GroupTools    = "tools"
	GroupCommands = "commands"
	GroupServices = "services"
)

// ExtensionLoader registers one extension's capabilities into a registry.
type ExtensionLoader func(r *Registry) error

type extensionPoint struct {
	name string
	load ExtensionLoader
}

// ExtensionSet holds named extension points grouped by registry kind.
// Extension packages register loaders from init(); the runtime replays a
// group into the matching registry during startup.
type ExtensionSet struct {
	mu     sync.RWMutex
	groups map[string][]extensionPoint
}

// NewExtensionSet creates an empty extension set.
func NewExtensionSet() *ExtensionSet {
	return &ExtensionSet{groups: make(map[string][]extensionPoint)}
}

// Register adds a loader under group. Called from extension package init()
// functions, so a duplicate name within a group panics.
func (s *ExtensionSet) Register(group, name string, load ExtensionLoader) {
	if group == "" || name == "" || load == nil {
		panic("registry: extension group, name and loader are all required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.groups[group] {
		if p.name == name {
			panic(fmt.Sprintf("registry: extension %q already registered in group %q", name, group))
		}
	}
	s.groups[group] = append(s.groups[group], extensionPoint{name: name, load: load})
}

// Names returns the extension names in group, in registration order.
func (s *ExtensionSet) Names(group string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.groups[group]
	names := make([]string, 0, len(points))
	for _, p := range points {
		names = append(names, p.name)
	}
	return names
}

// Groups returns all group names in sorted order.
func (s *ExtensionSet) Groups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]string, 0, len(s.groups))
	for group := range s.groups {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	return groups
}

// points returns a copy of the group's extension points in order.
func (s *ExtensionSet) points(group string) []extensionPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.groups[group]
	out := make([]extensionPoint, len(src))
	copy(out, src)
	return out
}

var defaultExtensions = NewExtensionSet()

// RegisterExtension adds a loader to the process-wide extension set.
// Extension packages call this from init().
func RegisterExtension(group, name string, load ExtensionLoader) {
	defaultExtensions.Register(group, name, load)
}

// DefaultExtensions returns the process-wide extension set.
func DefaultExtensions() *ExtensionSet {
	return defaultExtensions
}
