package toolbroker

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ServerConnector is the transport capability the broker drives for each
// server. Implementations own dialing, protocol framing, timeouts, and
// cancellation; every method may block on external I/O. The broker never
// retries a failed call on its own.
type ServerConnector interface {
	Connect(ctx context.Context) error
	ListOperations(ctx context.Context) ([]OperationDescriptor, error)
	Invoke(ctx context.Context, operation string, args map[string]any) (*InvocationResult, error)
	Disconnect(ctx context.Context) error
}

// ServerDescriptor pairs a unique server name with the connector that talks
// to it. Descriptors are handed to NewBroker once and never change afterward.
type ServerDescriptor struct {
	Name      string
	Connector ServerConnector
}

// OperationDescriptor describes one invocable operation exposed by a server.
// InputSchema is carried opaquely; argument validation happens on the server
// at invocation time, not in the broker.
type OperationDescriptor struct {
	ServerName  string             `json:"server"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"inputSchema,omitempty"`
}

// Key returns the cross-server identifier of the operation.
func (o OperationDescriptor) Key() string {
	return o.ServerName + ":" + o.Name
}

// InvocationResult carries the raw payload returned by a server operation.
type InvocationResult struct {
	// Content is the decoded result payload. Its shape is owned by the
	// server that produced it.
	Content any `json:"content"`
	// IsError reports an operation-level failure signaled inside an
	// otherwise successful protocol exchange.
	IsError bool `json:"isError,omitempty"`
}

// registry holds the fixed server set in declaration order. It is immutable
// after construction, so lookups need no locking.
type registry struct {
	order  []string
	byName map[string]ServerDescriptor
}

func newRegistry(servers []ServerDescriptor) (*registry, error) {
	r := &registry{byName: make(map[string]ServerDescriptor, len(servers))}
	for _, desc := range servers {
		if desc.Name == "" {
			return nil, fmt.Errorf("toolbroker: server descriptor with empty name")
		}
		if desc.Connector == nil {
			return nil, fmt.Errorf("toolbroker: server %q has no connector", desc.Name)
		}
		if _, dup := r.byName[desc.Name]; dup {
			return nil, fmt.Errorf("toolbroker: duplicate server name %q", desc.Name)
		}
		r.byName[desc.Name] = desc
		r.order = append(r.order, desc.Name)
	}
	return r, nil
}

func (r *registry) lookup(name string) (ServerDescriptor, bool) {
	desc, ok := r.byName[name]
	return desc, ok
}

func (r *registry) names() []string {
	return append([]string(nil), r.order...)
}
