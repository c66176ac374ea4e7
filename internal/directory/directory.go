// Package directory resolves logical service names to message-transport
// targets and provides the typed clients the orchestrator uses for
// synchronous cross-service lookups.
package directory

import (
	"errors"
	"fmt"
)

// Logical service names known to the platform.
const (
	ServiceUser         = "user"
	ServiceNotification = "notification"
	ServiceSearch       = "search"
)

// ErrUnknownService is returned when a logical service name has no
// configured transport target.
var ErrUnknownService = errors.New("unknown service")

// Directory resolves a logical service name to a transport target.
type Directory interface {
	Resolve(service string) (string, error)
}

// Static is a Directory backed by a fixed name-to-target map, typically
// loaded from configuration.
type Static map[string]string

var _ Directory = (Static)(nil)

// Resolve implements Directory.Resolve.
func (s Static) Resolve(service string) (string, error) {
	target, ok := s[service]
	if !ok || target == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	return target, nil
}

// DefaultTargets returns the conventional target names used when no explicit
// mapping is configured.
func DefaultTargets() Static {
	return Static{
		ServiceUser:         "user.rpc",
		ServiceNotification: "notification.rpc",
		ServiceSearch:       "search.rpc",
	}
}
