package brokerserver

import (
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Options configure a Server instance.
type Options struct {
	// Implementation identifies the broker's MCP server implementation
	// metadata.
	Implementation *mcp.Implementation
	// Addr controls the listen address used by ListenAndServe. Defaults to
	// ":8700".
	Addr string
	// Path mounts the Streamable handler under a specific HTTP path.
	// Defaults to "/mcp".
	Path string
	// Streamable tweaks the Streamable HTTP handler behavior passed to
	// mcp.NewStreamableHTTPHandler.
	Streamable mcp.StreamableHTTPOptions
	// CORS, when set, wraps the HTTP handler with the given CORS policy.
	CORS *cors.Options
	// MetricsGatherer, when set, mounts a Prometheus scrape endpoint at
	// /metrics next to the Streamable handler.
	MetricsGatherer prometheus.Gatherer
	// Logger receives structured diagnostics.
	Logger *zap.Logger
	// ShutdownTimeout bounds the graceful shutdown triggered by context
	// cancellation in ListenAndServe.
	ShutdownTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Implementation == nil {
		opts.Implementation = &mcp.Implementation{
			Name:    "toolbroker",
			Title:   "Tool Broker",
			Version: "1.0.0",
		}
	} else {
		impl := *opts.Implementation
		opts.Implementation = &impl
	}
	if opts.Addr == "" {
		opts.Addr = ":8700"
	}
	if opts.Path == "" {
		opts.Path = "/mcp"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	return opts
}
