package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockStore is an in-memory Store used by tests that exercise Provider
// Server and Caller Channel without a real etcd cluster, grounded on
// the teacher's MockRegistry test double (client/client_test.go).
type MockStore struct {
	mu       sync.Mutex
	nodes    map[string][]byte
	ephem    map[string]bool
	watchers map[string][]chan NodeEvent
	closed   bool
}

// NewMockStore returns an empty MockStore, already in StateConnected.
func NewMockStore() *MockStore {
	return &MockStore{
		nodes:    make(map[string][]byte),
		ephem:    make(map[string]bool),
		watchers: make(map[string][]chan NodeEvent),
	}
}

func (m *MockStore) Start(ctx context.Context) error { return nil }

func (m *MockStore) Create(ctx context.Context, path string, data []byte, flags NodeFlags) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if flags.sequential() {
		seq := 0
		prefix := strings.TrimSuffix(path, "/") + "/"
		for existing := range m.nodes {
			if strings.HasPrefix(existing, prefix) {
				seq++
			}
		}
		actual := fmt.Sprintf("%s%010d", prefix, seq)
		m.nodes[actual] = data
		if flags.ephemeral() {
			m.ephem[actual] = true
		}
		m.notifyLocked(actual, EventDataChanged, data)
		return actual, nil
	}

	if flags.ephemeral() {
		if _, exists := m.nodes[path]; exists {
			return "", fmt.Errorf("%w: %s", ErrEphemeralExists, path)
		}
		m.nodes[path] = data
		m.ephem[path] = true
		m.notifyLocked(path, EventDataChanged, data)
		return path, nil
	}

	if _, exists := m.nodes[path]; !exists {
		m.nodes[path] = data
	}
	return path, nil
}

func (m *MockStore) GetData(ctx context.Context, path string, watch bool) ([]byte, <-chan NodeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := m.nodes[path]
	var ch <-chan NodeEvent
	if watch {
		ch = m.addWatcherLocked(path)
	}
	return data, ch, nil
}

func (m *MockStore) SetData(ctx context.Context, path string, data []byte, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[path] = data
	m.notifyLocked(path, EventDataChanged, data)
	return nil
}

func (m *MockStore) Delete(ctx context.Context, path string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, path)
	delete(m.ephem, path)
	m.notifyLocked(path, EventDeleted, nil)
	return nil
}

func (m *MockStore) Exists(ctx context.Context, path string, watch bool) (bool, <-chan NodeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.nodes[path]
	var ch <-chan NodeEvent
	if watch {
		ch = m.addWatcherLocked(path)
	}
	return ok, ch, nil
}

func (m *MockStore) Children(ctx context.Context, path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(path, "/") + "/"
	seen := make(map[string]struct{})
	var children []string
	for existing := range m.nodes {
		rest := strings.TrimPrefix(existing, prefix)
		if rest == existing {
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

// Close deletes every ephemeral node the mock session owns, mirroring
// EtcdStore.Close's lease-revoke cascade.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for path := range m.ephem {
		delete(m.nodes, path)
		m.notifyLocked(path, EventDeleted, nil)
	}
	m.ephem = make(map[string]bool)
	return nil
}

func (m *MockStore) addWatcherLocked(path string) <-chan NodeEvent {
	ch := make(chan NodeEvent, 1)
	m.watchers[path] = append(m.watchers[path], ch)
	return ch
}

func (m *MockStore) notifyLocked(path string, typ EventType, data []byte) {
	watchers := m.watchers[path]
	delete(m.watchers, path)
	for _, ch := range watchers {
		ch <- NodeEvent{Path: path, Type: typ, Data: data}
		close(ch)
	}
}
