// Package mcpconn implements toolbroker.ServerConnector on top of the
// official MCP Go SDK. It handles transport setup (stdio subprocess,
// streamable HTTP with SSE fallback, or a caller-supplied transport),
// session lifecycle, and the mapping between MCP tool metadata and broker
// operation descriptors.
package mcpconn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/relaygear/toolbroker/pkg/toolbroker"
)

// Connector maintains at most one MCP client session against a single server.
// It is safe for concurrent use; the broker additionally serializes Connect
// and Disconnect per server.
type Connector struct {
	name   string
	cfg    ServerConfig
	logger *zap.Logger

	mu      sync.Mutex
	session *mcp.ClientSession
}

// New builds a connector for the named server. A nil logger is replaced with
// a no-op logger. Configuration problems surface on Connect.
func New(name string, cfg ServerConfig, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{name: name, cfg: cfg, logger: logger.With(zap.String("server", name))}
}

// Descriptor packages the connector for broker registration.
func (c *Connector) Descriptor() toolbroker.ServerDescriptor {
	return toolbroker.ServerDescriptor{Name: c.name, Connector: c}
}

// Connect establishes the MCP session. It is a no-op when a session is
// already live.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if c.cfg == nil {
		return fmt.Errorf("mcpconn: missing configuration for %q", c.name)
	}
	session, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	go c.monitor(session)
	c.logger.Info("mcp session established", zap.String("session_id", session.ID()))
	return nil
}

// ListOperations fetches the server's tool list. Servers that do not
// implement tools/list yield an empty catalog rather than an error.
func (c *Connector) ListOperations(ctx context.Context) ([]toolbroker.OperationDescriptor, error) {
	session, err := c.current()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := session.ListTools(ctx, nil)
	if err != nil {
		if isMethodUnavailableError(err) {
			return nil, nil
		}
		return nil, err
	}
	ops := make([]toolbroker.OperationDescriptor, 0, len(res.Tools))
	for _, tool := range res.Tools {
		if tool == nil {
			continue
		}
		ops = append(ops, toolbroker.OperationDescriptor{
			ServerName:  c.name,
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: toSchema(tool.InputSchema),
		})
	}
	return ops, nil
}

// Invoke calls the named tool and flattens the MCP result. Structured content
// wins when the server provides it; otherwise text blocks are joined.
func (c *Connector) Invoke(ctx context.Context, operation string, args map[string]any) (*toolbroker.InvocationResult, error) {
	session, err := c.current()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: operation, Arguments: args})
	if err != nil {
		return nil, err
	}
	return &toolbroker.InvocationResult{
		Content: flattenResult(res),
		IsError: res.IsError,
	}, nil
}

// Disconnect closes the live session, bounded by ctx. The session reference
// is dropped only after a successful close so a failed teardown can be
// retried.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan struct{})
	var closeErr error
	go func() {
		closeErr = session.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}
	if closeErr != nil {
		return closeErr
	}
	c.mu.Lock()
	if c.session == session {
		c.session = nil
	}
	c.mu.Unlock()
	return nil
}

func (c *Connector) current() (*mcp.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, fmt.Errorf("mcpconn: %q is not connected", c.name)
	}
	return c.session, nil
}

func (c *Connector) monitor(session *mcp.ClientSession) {
	err := session.Wait()
	c.mu.Lock()
	if c.session == session {
		c.session = nil
	}
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("mcp session terminated", zap.Error(err))
	} else {
		c.logger.Debug("mcp session closed")
	}
}

func (c *Connector) dial(ctx context.Context) (*mcp.ClientSession, error) {
	base := c.cfg.base()
	impl := &mcp.Implementation{
		Name:    c.clientName(base),
		Version: c.clientVersion(base),
	}

	attempt := func(ctx context.Context, transport mcp.Transport) (*mcp.ClientSession, error) {
		client := mcp.NewClient(impl, nil)
		return client.Connect(ctx, transport, nil)
	}

	connectCtx := ctx
	if base.Timeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, base.Timeout)
		defer cancel()
	}

	switch cfg := c.cfg.(type) {
	case *StdioConfig:
		transport, err := buildStdioTransport(c.name, cfg)
		if err != nil {
			return nil, err
		}
		return attempt(connectCtx, transport)
	case *HTTPConfig:
		return c.dialHTTP(connectCtx, cfg, attempt)
	case *TransportConfig:
		if cfg.Transport == nil {
			return nil, fmt.Errorf("mcpconn: transport missing for %q", c.name)
		}
		return attempt(connectCtx, cfg.Transport)
	default:
		return nil, fmt.Errorf("mcpconn: unsupported config for %q", c.name)
	}
}

func (c *Connector) dialHTTP(
	ctx context.Context,
	cfg *HTTPConfig,
	attempt func(context.Context, mcp.Transport) (*mcp.ClientSession, error),
) (*mcp.ClientSession, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("mcpconn: endpoint missing for %q", c.name)
	}
	httpClient := decorateHTTPClient(cfg.HTTPClient, cfg.Headers, cfg.AuthProvider)

	streamableTransport := &mcp.StreamableClientTransport{
		Endpoint:   cfg.Endpoint,
		HTTPClient: httpClient,
		MaxRetries: cfg.MaxRetries,
	}
	sseTransport := &mcp.SSEClientTransport{Endpoint: cfg.Endpoint, HTTPClient: httpClient}

	var streamErr error
	if !shouldPreferSSE(cfg) {
		session, err := attempt(ctx, streamableTransport)
		if err == nil {
			return session, nil
		}
		streamErr = err
	}
	session, err := attempt(ctx, sseTransport)
	if err != nil {
		if streamErr != nil {
			return nil, fmt.Errorf("streamable error: %v; sse error: %w", streamErr, err)
		}
		return nil, err
	}
	return session, nil
}

func (c *Connector) clientName(base *BaseConfig) string {
	if base.ClientName != "" {
		return base.ClientName
	}
	return c.name
}

func (c *Connector) clientVersion(base *BaseConfig) string {
	if base.ClientVersion != "" {
		return base.ClientVersion
	}
	return "1.0.0"
}

func (c *Connector) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.cfg.base().Timeout
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func buildStdioTransport(name string, cfg *StdioConfig) (mcp.Transport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcpconn: command missing for %q", name)
	}
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}

func shouldPreferSSE(cfg *HTTPConfig) bool {
	if cfg.PreferSSE != nil {
		return *cfg.PreferSSE
	}
	return strings.HasSuffix(strings.TrimSpace(cfg.Endpoint), "/sse")
}

func decorateHTTPClient(base *http.Client, headers http.Header, provider AuthProvider) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	clone := *base
	clone.Transport = &headerDecorator{
		next:         defaultRoundTripper(base.Transport),
		headers:      cloneHeader(headers),
		authProvider: provider,
	}
	return &clone
}

type headerDecorator struct {
	next         http.RoundTripper
	headers      http.Header
	authProvider AuthProvider
}

func (d *headerDecorator) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for k, values := range d.headers {
		req.Header.Del(k)
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if d.authProvider != nil {
		token, err := d.authProvider(req.Context())
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", token)
		}
	}
	return d.next.RoundTrip(req)
}

func defaultRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next != nil {
		return next
	}
	return http.DefaultTransport
}

func cloneHeader(h http.Header) http.Header {
	if len(h) == 0 {
		return nil
	}
	clone := make(http.Header, len(h))
	for k, values := range h {
		clone[k] = append([]string(nil), values...)
	}
	return clone
}

func isMethodUnavailableError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "method not found") ||
		strings.Contains(lower, "not implemented") ||
		strings.Contains(lower, "unsupported") ||
		strings.Contains(lower, "does not support") ||
		strings.Contains(lower, "unimplemented")
}

// toSchema converts the SDK's untyped tool schema (a map[string]any on the
// client side, or anything that marshals to a JSON schema) into the typed
// form carried by OperationDescriptor. Values that already are
// *jsonschema.Schema pass through; anything unparseable yields nil.
func toSchema(v any) *jsonschema.Schema {
	if v == nil {
		return nil
	}
	if s, ok := v.(*jsonschema.Schema); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	return &s
}

func flattenResult(res *mcp.CallToolResult) any {
	if res == nil {
		return nil
	}
	if res.StructuredContent != nil {
		return res.StructuredContent
	}
	var parts []string
	for _, block := range res.Content {
		if text, ok := block.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	default:
		return strings.Join(parts, "\n")
	}
}
