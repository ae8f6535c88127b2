package rpcchannel

import "errors"

// ErrDiscoveryMiss means the coordination store has no node for the
// requested method, or the node's data does not parse as "host:port" (§7).
var ErrDiscoveryMiss = errors.New("rpcchannel: discovery miss")

// ErrTransport wraps any TCP connect/read/write failure (§7).
var ErrTransport = errors.New("rpcchannel: transport error")

// ErrSerialization wraps a request/response (de)serialisation failure (§7).
var ErrSerialization = errors.New("rpcchannel: serialization error")
