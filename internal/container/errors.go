package container

import (
	"errors"
	"fmt"
	"reflect"
)

// Standard container errors. Typed errors below wrap these so callers can
// branch with errors.Is without losing detail.
var (
	ErrNotRegistered       = errors.New("interface not registered")
	ErrAlreadyRegistered   = errors.New("interface already registered")
	ErrInvalidRegistration = errors.New("invalid registration")
	ErrNoActiveScope       = errors.New("no active request scope")
)

// NotRegisteredError reports a resolve against an unknown interface.
type NotRegisteredError struct {
	Interface reflect.Type
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("interface %s is not registered", typeName(e.Interface))
}

func (e *NotRegisteredError) Unwrap() error { return ErrNotRegistered }

// NewNotRegisteredError builds a NotRegisteredError for the given interface.
func NewNotRegisteredError(iface reflect.Type) *NotRegisteredError {
	return &NotRegisteredError{Interface: iface}
}

// IsNotRegistered reports whether err means the interface was never
// registered.
func IsNotRegistered(err error) bool {
	return errors.Is(err, ErrNotRegistered)
}

// ConfigurationError reports a registration that can never resolve. It is
// returned by Validate and should block startup.
type ConfigurationError struct {
	Interface reflect.Type
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("registration %s: %s", typeName(e.Interface), e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidRegistration }

// NewConfigurationError builds a ConfigurationError.
func NewConfigurationError(iface reflect.Type, reason string) *ConfigurationError {
	return &ConfigurationError{Interface: iface, Reason: reason}
}

// IsConfigurationError reports whether err is a registration problem.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidRegistration)
}

// DependencyError reports a failure while constructing an interface,
// carrying the dependency that failed. It unwraps to the underlying cause so
// errors.Is(err, ErrNotRegistered) still works through nesting.
type DependencyError struct {
	Interface  reflect.Type
	Dependency reflect.Type
	Err        error
}

func (e *DependencyError) Error() string {
	if e.Dependency != nil {
		return fmt.Sprintf("resolve %s: dependency %s: %v", typeName(e.Interface), typeName(e.Dependency), e.Err)
	}
	return fmt.Sprintf("resolve %s: %v", typeName(e.Interface), e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// IsDependencyError reports whether err carries a DependencyError.
func IsDependencyError(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
