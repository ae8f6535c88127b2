package provider

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"mprpc/discovery"
	"mprpc/examples/userservice"
	"mprpc/rpcapp"
	"mprpc/wire"
)

func newTestServer(t *testing.T, store discovery.Store) *Server {
	t.Helper()
	boot := &rpcapp.Bootstrap{Logger: zap.NewNop()}
	return NewServer(boot, store)
}

func TestServerRegistersBeforeAccepting(t *testing.T) {
	store := discovery.NewMockStore()
	svr := newTestServer(t, store)
	if err := svr.NotifyService(&userservice.UserService{}); err != nil {
		t.Fatalf("NotifyService failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- svr.Run(ctx, "tcp", "127.0.0.1:19801", "127.0.0.1:19801") }()

	waitForListener(t, "127.0.0.1:19801")

	children, err := store.Children(context.Background(), "/UserService/Login")
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("expect exactly one advertisement, got %d", len(children))
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestServerHappyPathAndBadCredentials(t *testing.T) {
	store := discovery.NewMockStore()
	svr := newTestServer(t, store)
	if err := svr.NotifyService(&userservice.UserService{}); err != nil {
		t.Fatalf("NotifyService failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svr.Run(ctx, "tcp", "127.0.0.1:19802", "127.0.0.1:19802")
	waitForListener(t, "127.0.0.1:19802")

	resp := loginOverWire(t, "127.0.0.1:19802", "alice", "pw")
	if !resp.Success {
		t.Fatalf("expect success login, got %+v", resp)
	}

	resp = loginOverWire(t, "127.0.0.1:19802", "alice", "wrong")
	if resp.Success {
		t.Fatalf("expect failed login, got %+v", resp)
	}
	if resp.ErrCode != -1 {
		t.Fatalf("expect errcode -1, got %d", resp.ErrCode)
	}
}

func TestServerUnknownServiceClosesWithoutResponse(t *testing.T) {
	store := discovery.NewMockStore()
	svr := newTestServer(t, store)
	if err := svr.NotifyService(&userservice.UserService{}); err != nil {
		t.Fatalf("NotifyService failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svr.Run(ctx, "tcp", "127.0.0.1:19803", "127.0.0.1:19803")
	waitForListener(t, "127.0.0.1:19803")

	conn, err := net.Dial("tcp", "127.0.0.1:19803")
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	frame, _ := wire.Encode("UnregisteredService", "Foo", []byte("{}"))
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	respBytes, _ := io.ReadAll(conn)
	if len(respBytes) != 0 {
		t.Fatalf("expect no response bytes for unknown service, got %d", len(respBytes))
	}
}

func TestServerMalformedHeaderLenClosesWithoutResponse(t *testing.T) {
	store := discovery.NewMockStore()
	svr := newTestServer(t, store)
	if err := svr.NotifyService(&userservice.UserService{}); err != nil {
		t.Fatalf("NotifyService failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svr.Run(ctx, "tcp", "127.0.0.1:19804", "127.0.0.1:19804")
	waitForListener(t, "127.0.0.1:19804")

	conn, err := net.Dial("tcp", "127.0.0.1:19804")
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, 0xFFFFFFFF)
	if _, err := conn.Write(buf); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	respBytes, _ := io.ReadAll(conn)
	if len(respBytes) != 0 {
		t.Fatalf("expect connection closed without any response bytes, got %d", len(respBytes))
	}
}

// waitForListener polls addr with real dials rather than peeking at
// Server's internals, so it doesn't need to synchronize with Run's
// goroutine over unexported state.
func waitForListener(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("server did not start listening on %s in time", addr)
}

func loginOverWire(t *testing.T, addr, name, pwd string) userservice.LoginResponse {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	req := userservice.LoginRequest{Name: name, Pwd: pwd}
	argBytes, _ := json.Marshal(&req)
	frame, err := wire.Encode("UserService", "Login", argBytes)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	respBytes, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}

	var resp userservice.LoginResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v\nraw: %s", err, bytes.TrimSpace(respBytes))
	}
	return resp
}
