// etcd_store.go provides the concrete coordination-store backend: etcd v3.
//
// etcd has no native PERSISTENT_SEQUENTIAL/EPHEMERAL_SEQUENTIAL node
// kind the way ZooKeeper does, so a sequential Create's suffix is the
// cluster revision returned by a throwaway marker Put made just before
// the real key is written — like a ZooKeeper sequence
// counter, it is monotonically increasing cluster-wide, which is the
// only property §6.3's tree layout actually depends on (see
// DESIGN.md's Open Question log).
//
// A session is an etcd lease kept alive by clientv3's own KeepAlive
// loop (this satisfies §5's "background task drives the session's I/O
// at >= 1 Hz"; etcd's default keepalive cadence is lease-TTL/3). When
// the keepalive channel closes — lease expired or revoked out from
// under us — the session transitions to Reconnecting, grants a fresh
// lease, and re-creates every ephemeral node this process owns.
// Persistent nodes are left untouched, since the store itself persists them.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// ErrEphemeralExists is returned by Create when an ephemeral node
// already exists at path (§4.4: "creating a duplicate ephemeral is an error").
var ErrEphemeralExists = fmt.Errorf("discovery: ephemeral node already exists")

type ownedNode struct {
	data  []byte
	flags NodeFlags
}

// EtcdStore implements Store on top of go.etcd.io/etcd/client/v3.
type EtcdStore struct {
	client  *clientv3.Client
	timeout int64 // session TTL in seconds, passed to clientv3.Grant
	logger  *zap.Logger

	mu      sync.Mutex
	state   SessionState
	leaseID clientv3.LeaseID
	owned   map[string]ownedNode // ephemeral nodes this session created, keyed by actual path
}

// NewEtcdStore dials the given etcd endpoints. The session is not
// opened until Start is called.
func NewEtcdStore(endpoints []string, logger *zap.Logger) (*EtcdStore, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, fmt.Errorf("discovery: dial etcd: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdStore{
		client:  c,
		timeout: int64(DefaultSessionTimeout.Seconds()),
		logger:  logger,
		state:   StateInit,
		owned:   make(map[string]ownedNode),
	}, nil
}

// Start opens the session: grants a lease, starts its keepalive loop,
// and blocks until the first keepalive response confirms the lease is live.
func (s *EtcdStore) Start(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateConnecting
	s.mu.Unlock()

	lease, err := s.client.Grant(ctx, s.timeout)
	if err != nil {
		s.logger.Error("discovery: session grant failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSessionFailure, err)
	}

	keepAliveCh, err := s.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		s.logger.Error("discovery: session keepalive start failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSessionFailure, err)
	}

	// Block for the first heartbeat to confirm the session reached Connected.
	resp, ok := <-keepAliveCh
	if !ok || resp == nil {
		return fmt.Errorf("%w: keepalive closed before first heartbeat", ErrSessionFailure)
	}

	s.mu.Lock()
	s.leaseID = lease.ID
	s.state = StateConnected
	s.mu.Unlock()

	go s.drainKeepAlive(ctx, keepAliveCh)
	return nil
}

// drainKeepAlive consumes keepalive responses for the life of the
// session and reconnects when the channel closes (lease expired).
func (s *EtcdStore) drainKeepAlive(ctx context.Context, ch <-chan *clientv3.LeaseKeepAliveResponse) {
	for range ch {
		// Responses themselves carry no payload we act on; their arrival
		// is the liveness signal.
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateReconnecting
	s.mu.Unlock()
	s.logger.Warn("discovery: session expired, reconnecting")

	if err := s.reconnect(ctx); err != nil {
		s.logger.Error("discovery: session reconnect failed", zap.Error(err))
		return
	}
}

// reconnect grants a new lease and restores every ephemeral node this
// process owned under the expired one.
func (s *EtcdStore) reconnect(ctx context.Context) error {
	lease, err := s.client.Grant(ctx, s.timeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionFailure, err)
	}
	keepAliveCh, err := s.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionFailure, err)
	}

	s.mu.Lock()
	s.leaseID = lease.ID
	owned := make(map[string]ownedNode, len(s.owned))
	for k, v := range s.owned {
		owned[k] = v
	}
	s.mu.Unlock()

	for path, node := range owned {
		if _, err := s.client.Put(ctx, path, string(node.data), clientv3.WithLease(lease.ID)); err != nil {
			s.logger.Error("discovery: failed to restore ephemeral node", zap.String("path", path), zap.Error(err))
		}
	}

	s.mu.Lock()
	s.state = StateConnected
	s.mu.Unlock()

	go s.drainKeepAlive(ctx, keepAliveCh)
	return nil
}

// Create implements Store.Create.
func (s *EtcdStore) Create(ctx context.Context, path string, data []byte, flags NodeFlags) (string, error) {
	if flags.sequential() {
		return s.createSequential(ctx, path, data, flags)
	}
	if flags.ephemeral() {
		return s.createEphemeral(ctx, path, data)
	}
	return path, s.ensurePersistent(ctx, path, data)
}

func (s *EtcdStore) ensurePersistent(ctx context.Context, path string, data []byte) error {
	resp, err := s.client.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("discovery: get %s: %w", path, err)
	}
	if len(resp.Kvs) > 0 {
		return nil // idempotent ensure-exists
	}
	_, err = s.client.Put(ctx, path, string(data))
	if err != nil {
		return fmt.Errorf("discovery: put %s: %w", path, err)
	}
	return nil
}

func (s *EtcdStore) createEphemeral(ctx context.Context, path string, data []byte) (string, error) {
	resp, err := s.client.Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("discovery: get %s: %w", path, err)
	}
	if len(resp.Kvs) > 0 {
		return "", fmt.Errorf("%w: %s", ErrEphemeralExists, path)
	}

	s.mu.Lock()
	leaseID := s.leaseID
	s.mu.Unlock()

	if _, err := s.client.Put(ctx, path, string(data), clientv3.WithLease(leaseID)); err != nil {
		return "", fmt.Errorf("discovery: put %s: %w", path, err)
	}

	s.mu.Lock()
	s.owned[path] = ownedNode{data: data, flags: Ephemeral}
	s.mu.Unlock()
	return path, nil
}

func (s *EtcdStore) createSequential(ctx context.Context, parent string, data []byte, flags NodeFlags) (string, error) {
	var putResp *clientv3.PutResponse
	var err error

	if flags.ephemeral() {
		s.mu.Lock()
		leaseID := s.leaseID
		s.mu.Unlock()
		// Put at a throwaway key first to mint a mod-revision, then move
		// the value to its final sequential path in one more write.
		putResp, err = s.client.Put(ctx, parent+"/", string(data), clientv3.WithLease(leaseID))
	} else {
		putResp, err = s.client.Put(ctx, parent+"/", string(data))
	}
	if err != nil {
		return "", fmt.Errorf("discovery: put %s: %w", parent, err)
	}

	seq := putResp.Header.Revision
	actualPath := fmt.Sprintf("%s/%010d", parent, seq)

	if flags.ephemeral() {
		s.mu.Lock()
		leaseID := s.leaseID
		s.mu.Unlock()
		if _, err := s.client.Put(ctx, actualPath, string(data), clientv3.WithLease(leaseID)); err != nil {
			return "", fmt.Errorf("discovery: put %s: %w", actualPath, err)
		}
		s.mu.Lock()
		s.owned[actualPath] = ownedNode{data: data, flags: flags}
		s.mu.Unlock()
	} else {
		if _, err := s.client.Put(ctx, actualPath, string(data)); err != nil {
			return "", fmt.Errorf("discovery: put %s: %w", actualPath, err)
		}
	}

	// The throwaway key at parent+"/" has served its purpose (minting a
	// unique revision); remove it so Children(parent) only sees real entries.
	if _, err := s.client.Delete(ctx, parent+"/"); err != nil {
		s.logger.Warn("discovery: failed to clean up sequence marker", zap.String("parent", parent), zap.Error(err))
	}

	return actualPath, nil
}

// GetData implements Store.GetData.
func (s *EtcdStore) GetData(ctx context.Context, path string, watch bool) ([]byte, <-chan NodeEvent, error) {
	resp, err := s.client.Get(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("discovery: get %s: %w", path, err)
	}
	var data []byte
	if len(resp.Kvs) > 0 {
		data = resp.Kvs[0].Value
	}

	var events <-chan NodeEvent
	if watch {
		events = s.watchOnce(ctx, path)
	}
	return data, events, nil
}

// SetData implements Store.SetData.
func (s *EtcdStore) SetData(ctx context.Context, path string, data []byte, version int64) error {
	if version == -1 {
		_, err := s.client.Put(ctx, path, string(data))
		if err != nil {
			return fmt.Errorf("discovery: put %s: %w", path, err)
		}
		return nil
	}
	txn := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(path), "=", version)).
		Then(clientv3.OpPut(path, string(data)))
	txResp, err := txn.Commit()
	if err != nil {
		return fmt.Errorf("discovery: cas put %s: %w", path, err)
	}
	if !txResp.Succeeded {
		return fmt.Errorf("discovery: version mismatch writing %s", path)
	}
	return nil
}

// Delete implements Store.Delete.
func (s *EtcdStore) Delete(ctx context.Context, path string, version int64) error {
	if version == -1 {
		_, err := s.client.Delete(ctx, path)
		if err != nil {
			return fmt.Errorf("discovery: delete %s: %w", path, err)
		}
		return nil
	}
	txn := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(path), "=", version)).
		Then(clientv3.OpDelete(path))
	txResp, err := txn.Commit()
	if err != nil {
		return fmt.Errorf("discovery: cas delete %s: %w", path, err)
	}
	if !txResp.Succeeded {
		return fmt.Errorf("discovery: version mismatch deleting %s", path)
	}
	return nil
}

// Exists implements Store.Exists.
func (s *EtcdStore) Exists(ctx context.Context, path string, watch bool) (bool, <-chan NodeEvent, error) {
	resp, err := s.client.Get(ctx, path, clientv3.WithCountOnly())
	if err != nil {
		return false, nil, fmt.Errorf("discovery: exists %s: %w", path, err)
	}
	var events <-chan NodeEvent
	if watch {
		events = s.watchOnce(ctx, path)
	}
	return resp.Count > 0, events, nil
}

// Children implements Store.Children.
func (s *EtcdStore) Children(ctx context.Context, path string) ([]string, error) {
	prefix := strings.TrimSuffix(path, "/") + "/"
	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("discovery: children %s: %w", path, err)
	}

	seen := make(map[string]struct{})
	var children []string
	for _, kv := range resp.Kvs {
		rest := strings.TrimPrefix(string(kv.Key), prefix)
		if rest == "" {
			continue
		}
		name := rest
		if idx := strings.Index(rest, "/"); idx >= 0 {
			name = rest[:idx]
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		children = append(children, name)
	}
	return children, nil
}

// watchOnce returns a channel that delivers the next change to path and
// then closes, adapting etcd's long-lived watch into the §9 redesign
// target of a one-shot message-passing notification.
func (s *EtcdStore) watchOnce(ctx context.Context, path string) <-chan NodeEvent {
	out := make(chan NodeEvent, 1)
	watchCh := s.client.Watch(ctx, path)
	go func() {
		defer close(out)
		for resp := range watchCh {
			for _, ev := range resp.Events {
				var event NodeEvent
				event.Path = path
				if ev.Type == clientv3.EventTypeDelete {
					event.Type = EventDeleted
				} else {
					event.Type = EventDataChanged
					event.Data = ev.Kv.Value
				}
				out <- event
				return
			}
		}
	}()
	return out
}

// Close closes the session. Revoking the lease immediately deletes
// every ephemeral node still attached to it, cascading the Provider
// Server's advertisements out of discovery (§6.5).
func (s *EtcdStore) Close() error {
	s.mu.Lock()
	s.state = StateClosed
	leaseID := s.leaseID
	s.mu.Unlock()

	if leaseID != 0 {
		if _, err := s.client.Revoke(context.Background(), leaseID); err != nil {
			s.logger.Warn("discovery: lease revoke failed", zap.Error(err))
		}
	}
	return s.client.Close()
}

// State returns the current session state, mainly for tests and diagnostics.
func (s *EtcdStore) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
