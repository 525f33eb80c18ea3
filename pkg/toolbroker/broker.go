package toolbroker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConnectionStatus represents the lifecycle of a managed connection.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

// Options configure a Broker instance.
type Options struct {
	// Logger receives structured diagnostics. Nil disables logging.
	Logger *zap.Logger
	// Metrics receives broker counters. Nil disables metrics.
	Metrics *Metrics
}

// Broker owns the connector registry, the per-server connection state
// machine, the active-server marker, and the aggregated operation catalog.
// It is safe for concurrent use from any number of goroutines.
type Broker struct {
	logger  *zap.Logger
	metrics *Metrics

	registry *registry
	catalog  *catalog

	mu     sync.Mutex
	states map[string]*serverState
	active string
}

type serverState struct {
	status  ConnectionStatus
	attempt *connectAttempt

	// lifecycle serializes the connector's Connect/Disconnect calls for
	// this server. It is never held while waiting on an attempt.
	lifecycle sync.Mutex
}

// connectAttempt is shared by every caller waiting on one in-flight connect,
// so N concurrent callers observe the outcome of a single connector dial.
type connectAttempt struct {
	done  chan struct{}
	count int
	err   error // *ConnectError: dial failed, state is Disconnected
	warn  error // *CatalogError: dial succeeded, listing failed
}

// NewBroker constructs a Broker over a fixed server set. Server names must be
// unique and every descriptor needs a connector; the set cannot change for
// the lifetime of the broker.
func NewBroker(servers []ServerDescriptor, opts *Options) (*Broker, error) {
	reg, err := newRegistry(servers)
	if err != nil {
		return nil, err
	}
	b := &Broker{
		logger:   zap.NewNop(),
		registry: reg,
		catalog:  newCatalog(reg.order),
		states:   make(map[string]*serverState, len(servers)),
	}
	if opts != nil {
		if opts.Logger != nil {
			b.logger = opts.Logger
		}
		b.metrics = opts.Metrics
	}
	for _, name := range reg.order {
		b.states[name] = &serverState{status: StatusDisconnected}
	}
	return b, nil
}

// ServerView is a point-in-time snapshot of one server's state.
type ServerView struct {
	Name         string
	Status       ConnectionStatus
	Active       bool
	CatalogKnown bool
	Operations   []OperationDescriptor
}

// Servers returns a snapshot of every configured server in declaration order.
// It performs no I/O.
func (b *Broker) Servers() []ServerView {
	b.mu.Lock()
	views := make([]ServerView, 0, len(b.registry.order))
	for _, name := range b.registry.order {
		views = append(views, ServerView{
			Name:   name,
			Status: b.states[name].status,
			Active: b.active == name,
		})
	}
	b.mu.Unlock()
	for i := range views {
		views[i].CatalogKnown = b.catalog.seenServer(views[i].Name)
		views[i].Operations = b.catalog.operationsFor(views[i].Name)
	}
	return views
}

// HasServer reports whether a server name is configured.
func (b *Broker) HasServer(name string) bool {
	_, ok := b.registry.lookup(name)
	return ok
}

// Status returns the connection status for a configured server.
func (b *Broker) Status(name string) (ConnectionStatus, bool) {
	if _, ok := b.registry.lookup(name); !ok {
		return StatusDisconnected, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[name].status, true
}

// ActiveServer returns the name of the server carrying the active marker.
func (b *Broker) ActiveServer() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active, b.active != ""
}

// Connect dials the named server if needed, refreshes its catalog slice, and
// marks it active, demoting any previously active server (which stays
// connected). A caller arriving while another connect for the same server is
// in flight joins that attempt instead of racing a duplicate dial.
//
// On success the operation count is returned. When the dial succeeded but the
// catalog listing failed, the count is zero and the error is a *CatalogError;
// the server is still connected and active in that case.
func (b *Broker) Connect(ctx context.Context, name string) (int, error) {
	att, err := b.settleConnect(ctx, name)
	if err != nil {
		return 0, err
	}
	if att.err != nil {
		return 0, att.err
	}
	b.mu.Lock()
	st := b.states[name]
	var demoted string
	if st.status == StatusConnected && b.active != name {
		demoted = b.active
		b.active = name
	}
	b.mu.Unlock()
	if demoted != "" {
		b.logger.Info("active server switched",
			zap.String("server", name), zap.String("previous", demoted))
	}
	return att.count, att.warn
}

// EnsureConnected connects the named server if it is disconnected and returns
// immediately when it is already connected. It never changes which server is
// active, which makes it the entry point for cross-server invocations.
func (b *Broker) EnsureConnected(ctx context.Context, name string) error {
	att, err := b.settleConnect(ctx, name)
	if err != nil {
		return err
	}
	return att.err
}

// settleConnect resolves the named server to a completed connect attempt,
// joining an in-flight attempt when one exists and dialing otherwise.
func (b *Broker) settleConnect(ctx context.Context, name string) (*connectAttempt, error) {
	desc, ok := b.registry.lookup(name)
	if !ok {
		return nil, &UnknownServerError{Server: name}
	}
	b.mu.Lock()
	st := b.states[name]
	if st.status == StatusConnected {
		count := b.catalog.countFor(name)
		b.mu.Unlock()
		return &connectAttempt{count: count}, nil
	}
	if att := st.attempt; att != nil {
		b.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, &ConnectError{Server: name, Cause: ctx.Err()}
		case <-att.done:
		}
		return att, nil
	}
	att := &connectAttempt{done: make(chan struct{})}
	st.attempt = att
	st.status = StatusConnecting
	b.mu.Unlock()

	st.lifecycle.Lock()
	if err := desc.Connector.Connect(ctx); err != nil {
		st.lifecycle.Unlock()
		b.mu.Lock()
		st.status = StatusDisconnected
		st.attempt = nil
		b.mu.Unlock()
		att.err = &ConnectError{Server: name, Cause: err}
		close(att.done)
		b.metrics.connectObserved(name, att.err)
		b.logger.Warn("connect failed", zap.String("server", name), zap.Error(err))
		return att, nil
	}
	ops, lerr := desc.Connector.ListOperations(ctx)
	if lerr != nil {
		// Degrade to an empty slice rather than keeping entries from a
		// previous connection; the server stays usable for direct
		// invocation with a known operation name.
		b.catalog.replace(name, nil)
		att.warn = &CatalogError{Server: name, Cause: lerr}
		b.logger.Warn("catalog refresh failed after connect",
			zap.String("server", name), zap.Error(lerr))
	} else {
		b.catalog.replace(name, ops)
		att.count = len(ops)
	}
	st.lifecycle.Unlock()

	b.mu.Lock()
	st.status = StatusConnected
	st.attempt = nil
	b.mu.Unlock()
	close(att.done)
	b.metrics.connectObserved(name, nil)
	b.logger.Info("server connected",
		zap.String("server", name), zap.Int("operations", att.count))
	return att, nil
}

// Disconnect tears down the named server's connection. Disconnecting a server
// that is already disconnected is a no-op success. When teardown fails the
// server is left connected so the caller can retry. The active marker is
// cleared if it pointed at this server; no other server is promoted.
func (b *Broker) Disconnect(ctx context.Context, name string) error {
	desc, ok := b.registry.lookup(name)
	if !ok {
		return &UnknownServerError{Server: name}
	}
	for {
		b.mu.Lock()
		st := b.states[name]
		if att := st.attempt; att != nil {
			b.mu.Unlock()
			select {
			case <-ctx.Done():
				return &DisconnectError{Server: name, Cause: ctx.Err()}
			case <-att.done:
			}
			continue
		}
		if st.status != StatusConnected {
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()

		st.lifecycle.Lock()
		b.mu.Lock()
		if st.attempt != nil || st.status != StatusConnected {
			b.mu.Unlock()
			st.lifecycle.Unlock()
			continue
		}
		b.mu.Unlock()

		err := desc.Connector.Disconnect(ctx)
		if err != nil {
			st.lifecycle.Unlock()
			derr := &DisconnectError{Server: name, Cause: err}
			b.metrics.disconnectObserved(name, derr)
			b.logger.Warn("disconnect failed", zap.String("server", name), zap.Error(err))
			return derr
		}
		b.mu.Lock()
		st.status = StatusDisconnected
		if b.active == name {
			b.active = ""
		}
		b.mu.Unlock()
		st.lifecycle.Unlock()
		b.metrics.disconnectObserved(name, nil)
		b.logger.Info("server disconnected", zap.String("server", name))
		return nil
	}
}

// Refresh re-queries a connected server's operation list and replaces its
// catalog slice wholesale. On failure the slice is emptied and a
// *CatalogError is returned; the connection stays up either way.
func (b *Broker) Refresh(ctx context.Context, name string) (int, error) {
	desc, ok := b.registry.lookup(name)
	if !ok {
		return 0, &UnknownServerError{Server: name}
	}
	b.mu.Lock()
	connected := b.states[name].status == StatusConnected
	b.mu.Unlock()
	if !connected {
		return 0, &CatalogError{Server: name, Cause: fmt.Errorf("server not connected")}
	}
	ops, err := desc.Connector.ListOperations(ctx)
	if err != nil {
		b.catalog.replace(name, nil)
		return 0, &CatalogError{Server: name, Cause: err}
	}
	b.catalog.replace(name, ops)
	return len(ops), nil
}

// Operations returns a snapshot of the full aggregated catalog, in server
// declaration order and per-server insertion order.
func (b *Broker) Operations() []OperationDescriptor {
	return b.catalog.allOperations()
}

// OperationsFor returns a snapshot of a single server's catalog slice.
func (b *Broker) OperationsFor(name string) ([]OperationDescriptor, error) {
	if _, ok := b.registry.lookup(name); !ok {
		return nil, &UnknownServerError{Server: name}
	}
	return b.catalog.operationsFor(name), nil
}

// Invocation carries the outcome of one operation call plus the correlation
// ID under which it was logged.
type Invocation struct {
	ID        string            `json:"id"`
	Server    string            `json:"server"`
	Operation string            `json:"operation"`
	Result    *InvocationResult `json:"result"`
}

// Invoke runs an operation on the named server, connecting on demand. It
// never changes which server is active, so calls against a non-active server
// do not disturb the default invocation path.
func (b *Broker) Invoke(ctx context.Context, server, operation string, args map[string]any) (*Invocation, error) {
	desc, ok := b.registry.lookup(server)
	if !ok {
		return nil, &UnknownServerError{Server: server}
	}
	if err := b.EnsureConnected(ctx, server); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	b.logger.Debug("invoking operation",
		zap.String("invocation_id", id),
		zap.String("server", server),
		zap.String("operation", operation))
	res, err := desc.Connector.Invoke(ctx, operation, args)
	b.metrics.invocationObserved(server, err)
	if err != nil {
		b.logger.Warn("invocation failed",
			zap.String("invocation_id", id),
			zap.String("server", server),
			zap.String("operation", operation),
			zap.Error(err))
		return nil, &InvocationError{Server: server, Operation: operation, Cause: err}
	}
	return &Invocation{ID: id, Server: server, Operation: operation, Result: res}, nil
}

// InvokeActive runs an operation on the currently active server, the default
// invocation path.
func (b *Broker) InvokeActive(ctx context.Context, operation string, args map[string]any) (*Invocation, error) {
	active, ok := b.ActiveServer()
	if !ok {
		return nil, &NoActiveServerError{}
	}
	return b.Invoke(ctx, active, operation, args)
}

// Close disconnects every connected server. Teardown failures are joined and
// returned after all servers have been attempted.
func (b *Broker) Close(ctx context.Context) error {
	var errs []error
	for _, name := range b.registry.names() {
		if err := b.Disconnect(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
