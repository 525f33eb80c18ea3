package mcpconn

import (
	"context"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// BaseConfig captures settings shared by all transport types.
type BaseConfig struct {
	// Timeout bounds each connector call (connect, list, invoke,
	// disconnect). Zero means no connector-imposed bound.
	Timeout time.Duration
	// ClientName overrides the client name advertised during
	// initialization. When empty, the server name is used.
	ClientName string
	// ClientVersion is the semantic version reported to servers.
	// Defaults to "1.0.0".
	ClientVersion string
}

// ServerConfig is implemented by all transport-specific configurations.
type ServerConfig interface {
	base() *BaseConfig
}

// StdioConfig describes a server launched as a subprocess speaking MCP over
// stdio.
type StdioConfig struct {
	BaseConfig
	Command string
	Args    []string
	Env     map[string]string
}

func (c *StdioConfig) base() *BaseConfig { return &c.BaseConfig }

// AuthProvider dynamically supplies an Authorization header value (for
// example "Bearer <token>") for outbound HTTP requests.
type AuthProvider func(ctx context.Context) (string, error)

// HTTPConfig describes a server reachable over the streamable HTTP transport,
// with SSE as a fallback.
type HTTPConfig struct {
	BaseConfig
	Endpoint   string
	HTTPClient *http.Client
	// Headers are added to every outbound request.
	Headers http.Header
	// AuthProvider, when set, supplies the Authorization header per
	// request, overriding any static Authorization entry in Headers.
	AuthProvider AuthProvider
	// MaxRetries is passed through to the streamable transport.
	MaxRetries int
	// PreferSSE forces the SSE transport to be tried first. When nil, SSE
	// is preferred only for endpoints ending in "/sse".
	PreferSSE *bool
}

func (c *HTTPConfig) base() *BaseConfig { return &c.BaseConfig }

// TransportConfig wires an explicit go-sdk transport. It is the entry point
// for in-process servers and in-memory testing.
type TransportConfig struct {
	BaseConfig
	Transport mcp.Transport
}

func (c *TransportConfig) base() *BaseConfig { return &c.BaseConfig }
