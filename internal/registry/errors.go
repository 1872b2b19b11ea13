package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateItem is returned when Register sees a name that is
	// already taken. Use Replace to overwrite.
	ErrDuplicateItem = errors.New("item already registered")

	// ErrItemNotFound is returned by mutators targeting an unknown name.
	ErrItemNotFound = errors.New("item not found")

	// ErrKindMismatch is returned when a capability's kind does not match
	// the registry it is being registered into.
	ErrKindMismatch = errors.New("capability kind mismatch")

	// ErrInvalidCapability is returned when a capability fails metadata
	// validation at registration time.
	ErrInvalidCapability = errors.New("invalid capability")
)

// DiscoveryError wraps a failure from one discovery hook or extension
// loader. Failures are isolated: siblings still run.
type DiscoveryError struct {
	Registry string
	Source   string
	Err      error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery %s in registry %s failed: %v", e.Source, e.Registry, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// IsDuplicateItem reports whether err is a duplicate registration error.
func IsDuplicateItem(err error) bool { return errors.Is(err, ErrDuplicateItem) }

// IsItemNotFound reports whether err indicates a missing registry item.
func IsItemNotFound(err error) bool { return errors.Is(err, ErrItemNotFound) }
