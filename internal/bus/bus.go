// Package bus defines the message transport the orchestrator talks to other
// services through. The contract is two primitives: a synchronous
// request/reply call with a deadline, and a fire-and-forget publish whose
// delivery outcome the caller never observes. The wire encoding behind a
// transport implementation is opaque to the rest of the application.
package bus

import (
	"context"
	"errors"
	"time"
)

// Transport-level errors.
var (
	// ErrTimedOut is returned by Request when the reply did not arrive within
	// the deadline. The target may well have processed the request; the
	// caller only knows it did not hear back in time.
	ErrTimedOut = errors.New("request timed out")

	// ErrTransport is returned when a request could not be delivered at all,
	// for example because no responder is registered for the target.
	ErrTransport = errors.New("transport failure")
)

// Transport is the two-primitive message contract.
//
// Publish dispatches payload to topic and returns without waiting for any
// subscriber to process it. A nil error means the message was handed to the
// transport, not that anything consumed it.
//
// Request sends payload to target and blocks for the reply, at most for
// timeout (and never past ctx). Failures are ErrTimedOut or ErrTransport;
// application-level outcomes travel inside the reply payload.
type Transport interface {
	Publish(ctx context.Context, topic string, payload any) error
	Request(ctx context.Context, target string, payload any, timeout time.Duration) ([]byte, error)
}
