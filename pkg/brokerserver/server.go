// Package brokerserver exposes a broker's management surface as an MCP
// server. The six management tools run over stdio or a Streamable HTTP
// endpoint, so any MCP-capable agent can list, connect, search, and invoke
// the brokered servers.
package brokerserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/relaygear/toolbroker/pkg/toolbroker"
)

// Server fronts a toolbroker.Surface with an MCP server.
type Server struct {
	surface *toolbroker.Surface
	opts    Options
	logger  *zap.Logger

	server        *mcp.Server
	streamHandler *mcp.StreamableHTTPHandler
	httpHandler   http.Handler

	httpServerMu sync.Mutex
	httpServer   *http.Server
}

// New builds a Server and registers the management tools.
func New(surface *toolbroker.Surface, opts *Options) (*Server, error) {
	if surface == nil {
		return nil, fmt.Errorf("brokerserver: surface is required")
	}
	options := opts.withDefaults()
	s := &Server{
		surface: surface,
		opts:    options,
		logger:  options.Logger,
	}
	s.server = mcp.NewServer(options.Implementation, nil)
	registerTools(s.server, surface)
	s.streamHandler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &options.Streamable)
	s.httpHandler = s.mountHandler()
	return s, nil
}

// MCPServer exposes the underlying MCP server, mainly for in-memory clients.
func (s *Server) MCPServer() *mcp.Server { return s.server }

// Handler exposes the HTTP handler that serves the Streamable endpoint.
func (s *Server) Handler() http.Handler { return s.httpHandler }

// ServeStdio runs the MCP server over stdin/stdout until the context is
// cancelled or the peer disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("serving over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// ListenAndServe runs an HTTP server until the provided context is cancelled
// or the server stops.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServerMu.Lock()
	if s.httpServer != nil {
		srv := s.httpServer
		s.httpServerMu.Unlock()
		return fmt.Errorf("brokerserver: server already running on %s", srv.Addr)
	}
	srv := &http.Server{Addr: s.opts.Addr, Handler: s.Handler()}
	s.httpServer = srv
	s.httpServerMu.Unlock()
	defer func() {
		s.httpServerMu.Lock()
		if s.httpServer == srv {
			s.httpServer = nil
		}
		s.httpServerMu.Unlock()
	}()

	s.logger.Info("serving over http", zap.String("addr", s.opts.Addr), zap.String("path", s.opts.Path))
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the embedded HTTP server if it is running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpServerMu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.httpServerMu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

func (s *Server) mountHandler() http.Handler {
	path := s.opts.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	mux := http.NewServeMux()
	mux.Handle(path, s.streamHandler)
	if !strings.HasSuffix(path, "/") {
		mux.Handle(path+"/", s.streamHandler)
	}
	if s.opts.MetricsGatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.opts.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	if s.opts.CORS != nil {
		handler = cors.New(*s.opts.CORS).Handler(handler)
	}
	return handler
}
