// Package rpcchannel implements the Caller Channel (§4.3): the
// abstract "channel" operation generated stubs call to invoke a
// method of a remote service.
package rpcchannel

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mprpc/discovery"
	"mprpc/registry"
	"mprpc/rpcapp"
	"mprpc/rpccontroller"
	"mprpc/rpcmsg"
	"mprpc/wire"
)

// Channel resolves an endpoint via a coordination Store, frames a call
// via the wire codec, and performs the blocking TCP round trip.
// Grounded on the teacher's client/client.go Call flow, narrowed to
// the spec's single-shot (non-multiplexed, no load-balancer-beyond-
// pick-first) contract: §1 explicitly excludes load-balancing policy
// beyond "pick the first discovered endpoint" and caller-side retries.
type Channel struct {
	boot  *rpcapp.Bootstrap
	store discovery.Store
}

// NewChannel builds a Caller Channel over store, constructed from boot
// by construction (§9 bootstrap redesign target) rather than a singleton.
func NewChannel(boot *rpcapp.Bootstrap, store discovery.Store) *Channel {
	return &Channel{boot: boot, store: store}
}

// CallMethod implements the stub contract of §6.2: invoke the method
// described by md, reporting failure through ctrl rather than a Go
// error return — the channel never raises (§7). completion, if given,
// fires after resp is populated (or after ctrl is marked failed).
func (c *Channel) CallMethod(
	ctx context.Context,
	md *registry.MethodDescriptor,
	ctrl *rpccontroller.Controller,
	req rpcmsg.Message,
	resp rpcmsg.Message,
	completion ...func(),
) {
	ctrl.Reset()
	correlationID := uuid.NewString()
	defer func() {
		for _, cb := range completion {
			cb()
		}
	}()

	serviceName, methodName := md.ServiceName(), md.Name()

	addr, err := c.resolveEndpoint(ctx, serviceName, methodName)
	if err != nil {
		ctrl.SetFailed(fmt.Sprintf("[%s] %s: %s.%s not found: %v", correlationID, ErrDiscoveryMiss, serviceName, methodName, err))
		return
	}

	argBytes, err := req.SerializeToBytes()
	if err != nil {
		ctrl.SetFailed(fmt.Sprintf("[%s] %s: %s.%s: %v", correlationID, ErrSerialization, serviceName, methodName, err))
		return
	}

	frame, err := wire.Encode(serviceName, methodName, argBytes)
	if err != nil {
		ctrl.SetFailed(fmt.Sprintf("[%s] %s: %s.%s: %v", correlationID, ErrSerialization, serviceName, methodName, err))
		return
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.boot.Logger.Warn("rpcchannel: dial failed", zap.String("correlation_id", correlationID), zap.Error(err))
		ctrl.SetFailed(fmt.Sprintf("[%s] %s: %s.%s: dial %s: %v", correlationID, ErrTransport, serviceName, methodName, addr, err))
		return
	}
	defer conn.Close()

	if _, err := conn.Write(frame); err != nil {
		ctrl.SetFailed(fmt.Sprintf("[%s] %s: %s.%s: write request: %v", correlationID, ErrTransport, serviceName, methodName, err))
		return
	}

	respBytes, err := io.ReadAll(conn)
	if err != nil {
		ctrl.SetFailed(fmt.Sprintf("[%s] %s: %s.%s: read response: %v", correlationID, ErrTransport, serviceName, methodName, err))
		return
	}

	if err := resp.ParseFromBytes(respBytes); err != nil {
		ctrl.SetFailed(fmt.Sprintf("[%s] %s: %s.%s: parse response: %v", correlationID, ErrSerialization, serviceName, methodName, err))
		return
	}
}

// resolveEndpoint implements §4.3 step 2: read the data of
// /service/method, or — if sequential advertisement children exist —
// the lexicographically-first child's data (§9's deterministic
// selection-among-siblings default, in lieu of a load-balancer
// collaborator).
func (c *Channel) resolveEndpoint(ctx context.Context, serviceName, methodName string) (string, error) {
	path := "/" + serviceName + "/" + methodName

	children, err := c.store.Children(ctx, path)
	if err != nil {
		return "", err
	}

	var data []byte
	if len(children) > 0 {
		sort.Strings(children)
		childPath := strings.TrimSuffix(path, "/") + "/" + children[0]
		data, _, err = c.store.GetData(ctx, childPath, false)
		if err != nil {
			return "", err
		}
	} else {
		data, _, err = c.store.GetData(ctx, path, false)
		if err != nil {
			return "", err
		}
	}

	addr := string(data)
	if addr == "" || !strings.Contains(addr, ":") {
		return "", fmt.Errorf("node data %q is not in host:port form", addr)
	}
	return addr, nil
}
