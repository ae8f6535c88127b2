package discovery

import (
	"context"
	"errors"
	"time"
)

// DefaultSessionTimeout is the default session timeout (§4.4: "default 30s").
const DefaultSessionTimeout = 30 * time.Second

// ErrSessionFailure is returned when a session cannot be established or
// has become permanently unusable.
var ErrSessionFailure = errors.New("discovery: session failure")

// SessionState is the state machine driving a Store's session lifecycle
// (§4.4's session table).
type SessionState int

const (
	StateInit SessionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateReconnecting:
		return "Reconnecting"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Store is the minimal, session-bound interface the RPC core requires
// from a tree-structured coordination store (§4.4). The core never
// speaks the store's own wire protocol directly; EtcdStore is the one
// concrete backend this module ships, but Provider Server and Caller
// Channel are built against this interface.
type Store interface {
	// Start opens a session, blocking until it reaches StateConnected or
	// fails with ErrSessionFailure.
	Start(ctx context.Context) error

	// Create makes a node at path. For (Persistent|PersistentSequential)
	// flags, creating an already-existing persistent node is treated as
	// an idempotent ensure-exists, not an error. For ephemeral flags, a
	// duplicate create is an error. Returns the node's actual path
	// (path itself, or path+sequence suffix for *Sequential flags).
	Create(ctx context.Context, path string, data []byte, flags NodeFlags) (string, error)

	// GetData returns a node's data. If watch is true, the returned
	// channel delivers exactly one NodeEvent the next time the node's
	// data changes or the node is deleted, then closes.
	GetData(ctx context.Context, path string, watch bool) ([]byte, <-chan NodeEvent, error)

	// SetData writes a node's data. version == -1 bypasses optimistic
	// concurrency checks.
	SetData(ctx context.Context, path string, data []byte, version int64) error

	// Delete removes a node.
	Delete(ctx context.Context, path string, version int64) error

	// Exists reports whether path exists, with the same optional-watch
	// behaviour as GetData.
	Exists(ctx context.Context, path string, watch bool) (bool, <-chan NodeEvent, error)

	// Children lists the immediate child names of path. It is the
	// operation a Caller Channel uses to enumerate the sequential
	// advertisement nodes under /service/method and deterministically
	// pick the lexicographically-first one (§9).
	Children(ctx context.Context, path string) ([]string, error)

	// Close closes the session. This cascades deletion of every
	// ephemeral node the session owns (§6.5).
	Close() error
}
