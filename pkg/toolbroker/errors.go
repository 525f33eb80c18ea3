package toolbroker

import "fmt"

// ConnectError reports a connector failure while dialing a server. The server
// is back in StatusDisconnected when this is returned.
type ConnectError struct {
	Server string
	Cause  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("toolbroker: connect %q: %v", e.Server, e.Cause)
}

func (e *ConnectError) Unwrap() error { return e.Cause }

// DisconnectError reports a connector failure during teardown. The server is
// left StatusConnected so the caller may retry.
type DisconnectError struct {
	Server string
	Cause  error
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("toolbroker: disconnect %q: %v", e.Server, e.Cause)
}

func (e *DisconnectError) Unwrap() error { return e.Cause }

// CatalogError reports an operation-listing failure after a successful
// connect, or a failed explicit refresh. The connection itself stays up; the
// server's catalog slice is emptied rather than left stale.
type CatalogError struct {
	Server string
	Cause  error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("toolbroker: list operations for %q: %v", e.Server, e.Cause)
}

func (e *CatalogError) Unwrap() error { return e.Cause }

// InvocationError reports a connector failure while invoking an operation.
// Connection state is unchanged.
type InvocationError struct {
	Server    string
	Operation string
	Cause     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("toolbroker: invoke %q on %q: %v", e.Operation, e.Server, e.Cause)
}

func (e *InvocationError) Unwrap() error { return e.Cause }

// NoActiveServerError is returned by default-path invocations when no server
// carries the active marker.
type NoActiveServerError struct{}

func (e *NoActiveServerError) Error() string {
	return "toolbroker: no active server"
}

// UnknownServerError is returned when an operation references a server name
// absent from the registry.
type UnknownServerError struct {
	Server string
}

func (e *UnknownServerError) Error() string {
	return fmt.Sprintf("toolbroker: unknown server %q", e.Server)
}
