// Package provider implements the Provider Server (§4.2): the TCP
// acceptor and dispatch engine that maps an incoming frame to a
// registered service method and returns its result.
//
// Request processing pipeline, grounded on the teacher's
// server/server.go accept-loop-plus-worker-pool shape, narrowed to the
// spec's one-request-per-connection contract (no multiplexing, no
// heartbeat — both are teacher features this spec's non-goals exclude):
//
//	Accept conn → hand off to a worker
//	  → read one frame (wire.Decode, buffering as bytes arrive)
//	  → Service Registry lookup → reflect.Call
//	  → write raw response bytes (no frame) → close
package provider

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mprpc/discovery"
	"mprpc/registry"
	"mprpc/rpcapp"
)

// DefaultWorkerCount is the size of the fixed dispatch worker pool
// (§4.2: "one accept thread plus a worker pool of four threads").
const DefaultWorkerCount = 4

// MinWorkerCount is the floor an implementation must respect even when
// the pool size is parameterised (§4.2).
const MinWorkerCount = 2

// Server is the Provider Server: it owns a Service Registry, a
// coordination-store client for publishing endpoints, and the TCP
// accept loop.
type Server struct {
	boot        *rpcapp.Bootstrap
	store       discovery.Store
	registry    *registry.ServiceMap
	workerCount int
	limiter     *rate.Limiter

	listener      net.Listener
	advertisePath []string // paths created during Run's registration step, for Shutdown cleanup
	wg            sync.WaitGroup
	shuttingDown  atomic.Bool
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithWorkerCount overrides the dispatch worker pool size, floored at MinWorkerCount.
func WithWorkerCount(n int) Option {
	return func(s *Server) {
		if n < MinWorkerCount {
			n = MinWorkerCount
		}
		s.workerCount = n
	}
}

// WithRateLimit installs a token-bucket rate limiter in front of
// dispatch (ambient cross-cutting concern, grounded on the teacher's
// middleware.RateLimitMiddleware; not a caller-side retry policy, so
// it is not excluded by §1's non-goals).
func WithRateLimit(ratePerSec float64, burst int) Option {
	return func(s *Server) {
		s.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
}

// NewServer builds a Provider Server over the given coordination Store,
// constructed from boot by construction rather than reached for
// through a singleton (§9's bootstrap redesign target).
func NewServer(boot *rpcapp.Bootstrap, store discovery.Store, opts ...Option) *Server {
	s := &Server{
		boot:        boot,
		store:       store,
		registry:    registry.NewServiceMap(),
		workerCount: DefaultWorkerCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NotifyService registers a service receiver. It must not be called
// concurrently with Run, and all services must be notified before Run
// is called (§4.2).
func (s *Server) NotifyService(rcvr any) error {
	return s.registry.Notify(rcvr)
}

// Run binds network:listenAddr, registers every notified service under
// advertiseAddr with the coordination store, then accepts connections
// until ctx is cancelled or Shutdown is called. Registration completes
// for every service before the accept loop starts, guaranteeing the
// §5 ordering invariant that a caller observing a registered node finds
// a provider that is already accepting.
func (s *Server) Run(ctx context.Context, network, listenAddr, advertiseAddr string) error {
	listener, err := net.Listen(network, listenAddr)
	if err != nil {
		s.boot.Logger.Error("provider: listen failed", zap.Error(err))
		return fmt.Errorf("provider: listen %s: %w", listenAddr, err)
	}
	s.listener = listener

	if err := s.registerServices(ctx, advertiseAddr); err != nil {
		listener.Close()
		s.boot.Logger.Error("provider: service registration failed", zap.Error(err))
		return err
	}

	jobs := make(chan net.Conn)
	var workers sync.WaitGroup
	workers.Add(s.workerCount)
	for i := 0; i < s.workerCount; i++ {
		go func() {
			defer workers.Done()
			for conn := range jobs {
				s.handleConn(ctx, conn)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		s.shuttingDown.Store(true)
		listener.Close()
	}()

	var acceptErr error
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.shuttingDown.Load() {
				acceptErr = nil
			} else {
				acceptErr = fmt.Errorf("provider: accept: %w", err)
			}
			break
		}
		jobs <- conn
	}
	close(jobs)
	workers.Wait()
	return acceptErr
}

// registerServices ensures /service and /service/method persistent
// nodes exist, then creates one ephemeral-sequential advertisement
// node per method carrying this provider's address (§6.3).
func (s *Server) registerServices(ctx context.Context, advertiseAddr string) error {
	for _, svc := range s.registry.Services() {
		svcPath := "/" + svc.Descriptor().Name()
		if _, err := s.store.Create(ctx, svcPath, nil, discovery.Persistent); err != nil {
			return fmt.Errorf("provider: register %s: %w", svcPath, err)
		}
		for _, md := range svc.Descriptor().Methods() {
			methodPath := svcPath + "/" + md.Name()
			if _, err := s.store.Create(ctx, methodPath, nil, discovery.Persistent); err != nil {
				return fmt.Errorf("provider: register %s: %w", methodPath, err)
			}
			actual, err := s.store.Create(ctx, methodPath, []byte(advertiseAddr), discovery.EphemeralSequential)
			if err != nil {
				return fmt.Errorf("provider: advertise %s: %w", methodPath, err)
			}
			s.advertisePath = append(s.advertisePath, actual)
			s.boot.Logger.Info("provider: advertised method",
				zap.String("path", actual), zap.String("addr", advertiseAddr))
		}
	}
	return nil
}

// Shutdown deregisters every advertisement, stops accepting new
// connections, and waits up to timeout for in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context, timeout time.Duration) error {
	for _, path := range s.advertisePath {
		if err := s.store.Delete(ctx, path, -1); err != nil {
			s.boot.Logger.Warn("provider: deregister failed", zap.String("path", path), zap.Error(err))
		}
	}

	s.shuttingDown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("provider: timeout waiting for in-flight requests")
	}
}

// newCorrelationID mints the ID stamped on every log line about one
// connection's dispatch failure (domain-stack addition grounded on
// google/uuid as used by phuhao00-pandaparty's gRPC services). The ID
// is generated on the provider side only and is never sent to the
// caller, so it does not match the ID in a caller's Controller.ErrorText.
func newCorrelationID() string {
	return uuid.NewString()
}
