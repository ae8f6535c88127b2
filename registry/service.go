package registry

import (
	"context"
	"fmt"
	"reflect"

	"mprpc/rpcmsg"
)

// errorType and messageType back the reflection checks NewService
// runs over each candidate method.
var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	messageType = reflect.TypeOf((*rpcmsg.Message)(nil)).Elem()
)

// Service wraps a registered receiver (e.g. &UserService{}) together
// with the reflection metadata needed to dispatch calls into it by
// name. This is the "Service Object" of §3's data model: the
// polymorphic handle exposing invoke(method-descriptor, request, response).
//
// Grounded on the teacher's server/service.go reflection scan, adapted
// so request/response types must satisfy rpcmsg.Message (§6.2) instead
// of being arbitrary JSON-able structs.
type Service struct {
	descriptor ServiceDescriptor
	rcvr       reflect.Value
	methods    map[string]*MethodDescriptor
}

// NewService builds a Service from a pointer to a struct. It scans the
// receiver's exported methods for the RPC-compatible signature
//
//	func (receiver) MethodName(req *ReqType, resp *RespType) error
//
// where *ReqType and *RespType both implement rpcmsg.Message. Methods
// that don't match are silently skipped, exactly as the teacher does,
// since a receiver may also carry ordinary helper methods.
func NewService(rcvr any) (*Service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("registry: rcvr must be a pointer, got %v", typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("registry: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}

	svc := &Service{
		rcvr:    reflect.ValueOf(rcvr),
		methods: make(map[string]*MethodDescriptor),
	}
	svc.descriptor.name = typ.Elem().Name()

	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if method.Type.NumIn() != 3 || method.Type.NumOut() != 1 {
			continue
		}
		if method.Type.Out(0) != errorType {
			continue
		}
		reqParam, respParam := method.Type.In(1), method.Type.In(2)
		if reqParam.Kind() != reflect.Ptr || respParam.Kind() != reflect.Ptr {
			continue
		}
		if !reqParam.Implements(messageType) || !respParam.Implements(messageType) {
			continue
		}

		md := &MethodDescriptor{
			name:         method.Name,
			serviceName:  svc.descriptor.name,
			requestType:  reqParam.Elem(),
			responseType: respParam.Elem(),
			method:       method,
		}
		svc.methods[method.Name] = md
		svc.descriptor.methods = append(svc.descriptor.methods, md)
	}

	if len(svc.methods) == 0 {
		return nil, fmt.Errorf("registry: %s exposes no RPC-compatible methods", svc.descriptor.name)
	}
	return svc, nil
}

// Descriptor returns the service's immutable metadata.
func (s *Service) Descriptor() ServiceDescriptor { return s.descriptor }

// Method looks up a method descriptor by name.
func (s *Service) Method(name string) (*MethodDescriptor, bool) {
	md, ok := s.methods[name]
	return md, ok
}

// Call deserialises argBytes into a fresh request of the method's
// request type, invokes the receiver's method, and serialises the
// response. A non-nil error here means the service implementation
// itself failed (as opposed to a business-level failure, which the
// service communicates inside its own response message — see §7).
func (s *Service) Call(ctx context.Context, md *MethodDescriptor, argBytes []byte) ([]byte, error) {
	argv := reflect.New(md.requestType)
	reqMsg, ok := argv.Interface().(rpcmsg.Message)
	if !ok {
		return nil, fmt.Errorf("registry: request type %s does not implement rpcmsg.Message", md.requestType)
	}
	if err := reqMsg.ParseFromBytes(argBytes); err != nil {
		return nil, fmt.Errorf("registry: parse request: %w", err)
	}

	replyv := reflect.New(md.responseType)

	results := md.method.Func.Call([]reflect.Value{s.rcvr, argv, replyv})
	if errVal := results[0]; !errVal.IsNil() {
		return nil, errVal.Interface().(error)
	}

	replyMsg, ok := replyv.Interface().(rpcmsg.Message)
	if !ok {
		return nil, fmt.Errorf("registry: response type %s does not implement rpcmsg.Message", md.responseType)
	}
	return replyMsg.SerializeToBytes()
}
