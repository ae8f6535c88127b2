package registry

import "fmt"

// ErrDuplicateService is returned by ServiceMap.Notify when a service
// name is already registered (§4.2: "Fails with DuplicateService if
// the name is already present").
type ErrDuplicateService struct{ Name string }

func (e *ErrDuplicateService) Error() string {
	return fmt.Sprintf("registry: duplicate service %q", e.Name)
}

// ErrUnknownService means dispatch found no registered service of that name.
type ErrUnknownService struct{ Name string }

func (e *ErrUnknownService) Error() string {
	return fmt.Sprintf("registry: unknown service %q", e.Name)
}

// ErrUnknownMethod means the service exists but has no such method.
type ErrUnknownMethod struct{ Service, Method string }

func (e *ErrUnknownMethod) Error() string {
	return fmt.Sprintf("registry: unknown method %q on service %q", e.Method, e.Service)
}

// ServiceMap is the provider-side Service Info map of §3: service-name
// to (service object, method-name to method-descriptor). It is built
// incrementally by Notify before the Provider Server starts accepting
// connections, then never mutated again — no synchronisation is needed
// because nothing writes to it once it is handed to concurrent readers.
type ServiceMap struct {
	services map[string]*Service
}

// NewServiceMap returns an empty ServiceMap.
func NewServiceMap() *ServiceMap {
	return &ServiceMap{services: make(map[string]*Service)}
}

// Notify registers rcvr's service, failing with ErrDuplicateService if
// its name is already present. Must not be called concurrently with
// Lookup (the spec's "never called concurrently with run").
func (m *ServiceMap) Notify(rcvr any) error {
	svc, err := NewService(rcvr)
	if err != nil {
		return err
	}
	name := svc.Descriptor().Name()
	if _, exists := m.services[name]; exists {
		return &ErrDuplicateService{Name: name}
	}
	m.services[name] = svc
	return nil
}

// Lookup resolves a service and method descriptor by name. Safe for
// concurrent use once the map is frozen (Provider Server's Run contract).
func (m *ServiceMap) Lookup(serviceName, methodName string) (*Service, *MethodDescriptor, error) {
	svc, ok := m.services[serviceName]
	if !ok {
		return nil, nil, &ErrUnknownService{Name: serviceName}
	}
	md, ok := svc.Method(methodName)
	if !ok {
		return nil, nil, &ErrUnknownMethod{Service: serviceName, Method: methodName}
	}
	return svc, md, nil
}

// Services returns every registered service, in no
// particular order — used by Provider Server to drive §6.3's
// registration step across every notified service.
func (m *ServiceMap) Services() []*Service {
	out := make([]*Service, 0, len(m.services))
	for _, svc := range m.services {
		out = append(out, svc)
	}
	return out
}
