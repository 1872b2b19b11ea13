package container

import (
	"fmt"
	"reflect"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

// Validate checks every registration for problems that would only surface on
// first resolve. It is meant to run at startup, before any message is
// served: a non-empty result should abort the process.
//
// Checks per registration: a constructor or factory is present (pre-bound
// instances pass), the constructor is a func whose parameters match the
// declared dependency list, the results are (T) or (T, error) with T
// satisfying the interface, every declared dependency is itself registered,
// and the declared graph has no cycles.
func (c *Container) Validate() []error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	for iface, reg := range c.registrations {
		if reg.Factory != nil {
			continue
		}
		if reg.Constructor == nil {
			if _, bound := c.singletons[iface]; bound {
				continue
			}
			errs = append(errs, NewConfigurationError(iface, "no constructor or factory"))
			continue
		}
		errs = append(errs, c.checkConstructor(reg)...)
	}

	for iface := range c.registrations {
		if err := c.checkCycles(iface, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (c *Container) checkConstructor(reg *registration) []error {
	var errs []error

	t := reflect.TypeOf(reg.Constructor)
	if t.Kind() != reflect.Func {
		return []error{NewConfigurationError(reg.Interface, fmt.Sprintf("constructor is %s, want func", t.Kind()))}
	}

	if t.NumIn() != len(reg.Dependencies) {
		errs = append(errs, NewConfigurationError(reg.Interface,
			fmt.Sprintf("constructor takes %d parameters but %d dependencies are declared", t.NumIn(), len(reg.Dependencies))))
	} else {
		for i, dep := range reg.Dependencies {
			if dep == nil {
				errs = append(errs, NewConfigurationError(reg.Interface, fmt.Sprintf("dependency %d is nil", i)))
				continue
			}
			param := t.In(i)
			if dep != param && !dep.AssignableTo(param) {
				errs = append(errs, NewConfigurationError(reg.Interface,
					fmt.Sprintf("dependency %d is %s but constructor parameter %d is %s", i, dep, i, param)))
			}
			if _, ok := c.registrations[dep]; !ok {
				errs = append(errs, NewConfigurationError(reg.Interface,
					fmt.Sprintf("dependency %s is not registered", typeName(dep))))
			}
		}
	}

	switch t.NumOut() {
	case 1:
	case 2:
		if !t.Out(1).Implements(errType) {
			errs = append(errs, NewConfigurationError(reg.Interface,
				fmt.Sprintf("constructor second result is %s, want error", t.Out(1))))
		}
	default:
		errs = append(errs, NewConfigurationError(reg.Interface,
			fmt.Sprintf("constructor returns %d values, want 1 or 2", t.NumOut())))
	}
	if t.NumOut() >= 1 {
		out := t.Out(0)
		// Constructors returning any are checked at resolve time instead.
		anyResult := out.Kind() == reflect.Interface && out.NumMethod() == 0
		if !anyResult && !out.AssignableTo(reg.Interface) {
			errs = append(errs, NewConfigurationError(reg.Interface,
				fmt.Sprintf("constructor result %s is not assignable to %s", out, typeName(reg.Interface))))
		}
	}
	return errs
}

func (c *Container) checkCycles(iface reflect.Type, chain []reflect.Type) error {
	for _, seen := range chain {
		if seen == iface {
			return NewConfigurationError(iface, "dependency cycle in declared dependencies")
		}
	}
	reg, ok := c.registrations[iface]
	if !ok {
		return nil
	}
	for _, dep := range reg.Dependencies {
		if err := c.checkCycles(dep, append(chain, iface)); err != nil {
			return err
		}
	}
	return nil
}
