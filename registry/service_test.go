package registry

import (
	"context"
	"encoding/json"
	"testing"
)

type addArgs struct {
	A, B int
}

func (a *addArgs) SerializeToBytes() ([]byte, error) { return json.Marshal(a) }
func (a *addArgs) ParseFromBytes(data []byte) error  { return json.Unmarshal(data, a) }

type addReply struct {
	Result int
}

func (r *addReply) SerializeToBytes() ([]byte, error) { return json.Marshal(r) }
func (r *addReply) ParseFromBytes(data []byte) error  { return json.Unmarshal(data, r) }

type Arith struct{}

func (a *Arith) Add(args *addArgs, reply *addReply) error {
	reply.Result = args.A + args.B
	return nil
}

// notAMessage deliberately doesn't implement rpcmsg.Message, so methods
// using it must be skipped during registration rather than registered
// and later panicking on a failed type assertion.
type notAMessage struct{ X int }

type Mixed struct{}

func (m *Mixed) Valid(args *addArgs, reply *addReply) error {
	reply.Result = args.A
	return nil
}

func (m *Mixed) Invalid(args *notAMessage, reply *addReply) error {
	return nil
}

func (m *Mixed) Helper() string { return "not RPC-compatible" }

func TestNewServiceScansCompatibleMethodsOnly(t *testing.T) {
	svc, err := NewService(&Mixed{})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if _, ok := svc.Method("Valid"); !ok {
		t.Fatal("expected Valid to be registered")
	}
	if _, ok := svc.Method("Invalid"); ok {
		t.Fatal("Invalid should have been skipped: argument does not implement rpcmsg.Message")
	}
	if _, ok := svc.Method("Helper"); ok {
		t.Fatal("Helper should have been skipped: wrong signature")
	}
}

func TestServiceCallRoundTrip(t *testing.T) {
	svc, err := NewService(&Arith{})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	md, ok := svc.Method("Add")
	if !ok {
		t.Fatal("expected Add method")
	}

	argBytes, _ := json.Marshal(&addArgs{A: 2, B: 3})
	respBytes, err := svc.Call(context.Background(), md, argBytes)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	var reply addReply
	if err := json.Unmarshal(respBytes, &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.Result != 5 {
		t.Fatalf("expect 5, got %d", reply.Result)
	}
}

func TestServiceMapDuplicateRegistration(t *testing.T) {
	m := NewServiceMap()
	if err := m.Notify(&Arith{}); err != nil {
		t.Fatalf("first Notify failed: %v", err)
	}
	err := m.Notify(&Arith{})
	if err == nil {
		t.Fatal("expected ErrDuplicateService on second Notify")
	}
	if _, ok := err.(*ErrDuplicateService); !ok {
		t.Fatalf("expect *ErrDuplicateService, got %T", err)
	}
}

func TestServiceMapLookupUnknown(t *testing.T) {
	m := NewServiceMap()
	m.Notify(&Arith{})

	if _, _, err := m.Lookup("DoesNotExist", "Add"); err == nil {
		t.Fatal("expected ErrUnknownService")
	}
	if _, _, err := m.Lookup("Arith", "DoesNotExist"); err == nil {
		t.Fatal("expected ErrUnknownMethod")
	}
	if _, _, err := m.Lookup("Arith", "Add"); err != nil {
		t.Fatalf("expected successful lookup, got %v", err)
	}
}
