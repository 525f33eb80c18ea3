// Package toolbroker multiplexes a fixed set of tool-providing servers behind
// one connection and capability broker. It tracks a connection state machine
// per server, keeps an aggregated catalog of every operation discovered
// across servers, ranks that catalog against free-text queries, and routes
// invocations either through the single active server or directly to any
// other server without disturbing the active one.
//
// # Core entry points
//
//   - Broker owns all mutable state: construct it with NewBroker over a set
//     of ServerDescriptor values, then drive it with Connect, Disconnect,
//     EnsureConnected, Invoke, InvokeActive, Search, and Close.
//   - ServerConnector is the transport capability the broker drives; an
//     implementation backed by the MCP go-sdk lives in pkg/mcpconn.
//   - Surface wraps a Broker in the six agent-facing management operations,
//     each returning a human-readable summary alongside the typed payload.
//
// Connects are lazy and deduplicated: concurrent callers for the same server
// join one in-flight dial and share its outcome. Catalog slices are replaced
// wholesale on every refresh and survive disconnects, so search keeps working
// against servers that are currently down; invoking one reconnects it on
// demand. All errors are typed (ConnectError, DisconnectError, CatalogError,
// InvocationError, NoActiveServerError, UnknownServerError) and wrap their
// cause.
package toolbroker
