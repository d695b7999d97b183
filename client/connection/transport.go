// Package connection owns the persistent push channel for one open project
// view: connect, authenticate, heartbeat, reconnect with backoff, and a
// one-time downgrade to a header-credential transport variant.
package connection

import (
	"context"

	"github.com/waldo1234567/task-management/domain"
)

// Frame is one inbound push message together with the topic it arrived on.
type Frame = domain.Frame

// Transport is a single attempt's worth of push channel. A transport is used
// for at most one Connect; the manager builds a fresh one per attempt.
type Transport interface {
	// Connect performs the handshake and subscribes to the given topics. It
	// blocks until the session is established or the attempt fails.
	Connect(ctx context.Context, token string, topics []string) error

	// Frames delivers inbound frames in arrival order. The channel is closed
	// when the transport shuts down.
	Frames() <-chan Frame

	// Publish sends a payload to an application topic. Best effort: there is
	// no acknowledgement beyond the transport-level error.
	Publish(ctx context.Context, topic string, body []byte) error

	// Heartbeat sends one outbound liveness signal.
	Heartbeat(ctx context.Context) error

	// Done is closed when the underlying channel closes for any reason.
	Done() <-chan struct{}

	// Err reports why the channel closed, nil on clean shutdown.
	Err() error

	Close() error
}

// Factory builds a fresh transport for one connection attempt. headerCreds
// selects the downgrade variant that carries credentials in connection
// headers instead of the primary negotiation path.
type Factory func(headerCreds bool) Transport

// CredentialProvider returns a fresh token for a connection attempt. Tokens
// are fetched per attempt, never cached, since they may expire between
// attempts.
type CredentialProvider func(ctx context.Context) (string, error)
