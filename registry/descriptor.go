// Package registry implements the provider-side Service Registry
// (§3, §4.2): the in-process map from a service name to its service
// object and method descriptors, built once at startup and read-only
// once the Provider Server starts accepting connections.
//
// This is distinct from package discovery, which is the external
// Coordination Store Client used for cross-process service discovery.
package registry

import "reflect"

// MethodDescriptor is the metadata for one RPC-callable method:
// its name and the prototypes (as reflect.Types) of its request and
// response messages.
type MethodDescriptor struct {
	name         string
	serviceName  string
	requestType  reflect.Type // the Message's underlying struct type, not its pointer
	responseType reflect.Type
	method       reflect.Method
}

// Name returns the method's name as it appears in "Service.Method" routing.
func (m *MethodDescriptor) Name() string { return m.name }

// ServiceName returns the name of the service this method belongs to,
// so a Caller Channel can extract both halves of "Service.Method" from
// a method descriptor alone (§4.3 step 1).
func (m *MethodDescriptor) ServiceName() string { return m.serviceName }

// RequestType returns the element type of the method's request parameter.
func (m *MethodDescriptor) RequestType() reflect.Type { return m.requestType }

// ResponseType returns the element type of the method's response parameter.
func (m *MethodDescriptor) ResponseType() reflect.Type { return m.responseType }

// ServiceDescriptor is the immutable metadata for one registered
// service: its name and the ordered set of its method descriptors.
type ServiceDescriptor struct {
	name    string
	methods []*MethodDescriptor
}

// Name returns the service's name, derived from its receiver struct's type name.
func (d ServiceDescriptor) Name() string { return d.name }

// Methods returns the service's methods, in the order they were discovered.
func (d ServiceDescriptor) Methods() []*MethodDescriptor { return d.methods }
