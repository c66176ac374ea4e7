package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Responder handles one request target: it receives the request payload and
// returns the reply payload. Application-level failures belong inside the
// reply envelope; a returned error is treated as a transport fault.
type Responder func(ctx context.Context, payload []byte) ([]byte, error)

// Subscriber consumes messages published to a topic. Subscribers have no way
// to report failure to the publisher.
type Subscriber func(ctx context.Context, payload []byte)

// InProc is an in-process Transport implementation. It dispatches publishes
// synchronously to registered subscribers and runs request responders in a
// goroutine bounded by the request deadline. It exists for single-binary
// deployments and tests; a networked transport can replace it behind the
// Transport interface without touching the orchestrator.
type InProc struct {
	mu          sync.RWMutex
	responders  map[string]Responder
	subscribers map[string][]Subscriber
	logger      *slog.Logger
}

var _ Transport = (*InProc)(nil)

// NewInProc creates a new in-process transport.
func NewInProc(logger *slog.Logger) *InProc {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProc{
		responders:  make(map[string]Responder),
		subscribers: make(map[string][]Subscriber),
		logger:      logger.With("component", "inproc_bus"),
	}
}

// Respond registers the responder for a request target, replacing any
// previous one.
func (b *InProc) Respond(target string, r Responder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responders[target] = r
}

// Subscribe adds a subscriber for a topic.
func (b *InProc) Subscribe(topic string, s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], s)
	b.logger.Debug("subscriber registered",
		"topic", topic,
		"subscriber_count", len(b.subscribers[topic]))
}

// Publish implements Transport.Publish. A topic with no subscribers is not an
// error; the message is simply dropped, as it would be on a broker with no
// bound queue.
func (b *InProc) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode publish payload: %v", ErrTransport, err)
	}

	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers[topic]))
	copy(subs, b.subscribers[topic])
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("no subscribers for topic", "topic", topic)
		return nil
	}

	for _, sub := range subs {
		sub(ctx, data)
	}
	return nil
}

// Request implements Transport.Request.
func (b *InProc) Request(
	ctx context.Context,
	target string,
	payload any,
	timeout time.Duration,
) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request payload: %v", ErrTransport, err)
	}

	b.mu.RLock()
	responder, ok := b.responders[target]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no responder for target %q", ErrTransport, target)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		reply []byte
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		reply, err := responder(reqCtx, data)
		resultCh <- result{reply: reply, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("%w: responder for %q: %v", ErrTransport, target, res.err)
		}
		return res.reply, nil
	case <-reqCtx.Done():
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: target %q after %s", ErrTimedOut, target, timeout)
		}
		return nil, fmt.Errorf("%w: request to %q cancelled", ErrTransport, target)
	}
}
