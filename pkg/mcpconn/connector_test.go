package mcpconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygear/toolbroker/pkg/toolbroker"
)

type echoArgs struct {
	Text string `json:"text"`
}

// newTestServer builds an in-process MCP server with a small tool surface.
func newTestServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "test-server", Version: "1.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "echo",
		Description: "Echo back the provided text",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args echoArgs) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: args.Text}},
		}, nil, nil
	})
	mcp.AddTool(server, &mcp.Tool{
		Name:        "always_fails",
		Description: "Report an operation-level failure",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ echoArgs) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "boom"}},
		}, nil, nil
	})
	return server
}

// newConnectedPair wires a connector to an in-process server over in-memory
// transports. The connector is ready to Connect exactly once.
func newConnectedPair(t *testing.T, name string) *Connector {
	t.Helper()
	server := newTestServer()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(context.Background(), serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })
	return New(name, &TransportConfig{Transport: clientTransport}, nil)
}

func TestConnectorListOperations(t *testing.T) {
	conn := newConnectedPair(t, "files")
	ctx := context.Background()
	require.NoError(t, conn.Connect(ctx))
	defer func() { _ = conn.Disconnect(ctx) }()

	ops, err := conn.ListOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)

	byName := make(map[string]toolbroker.OperationDescriptor, len(ops))
	for _, op := range ops {
		assert.Equal(t, "files", op.ServerName)
		byName[op.Name] = op
	}
	echo, ok := byName["echo"]
	require.True(t, ok)
	assert.Equal(t, "Echo back the provided text", echo.Description)
	assert.NotNil(t, echo.InputSchema)
	_, ok = byName["always_fails"]
	assert.True(t, ok)
}

func TestConnectorInvoke(t *testing.T) {
	conn := newConnectedPair(t, "files")
	ctx := context.Background()
	require.NoError(t, conn.Connect(ctx))
	defer func() { _ = conn.Disconnect(ctx) }()

	res, err := conn.Invoke(ctx, "echo", map[string]any{"text": "hello there"})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	encoded, err := json.Marshal(res.Content)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), "hello there")
}

func TestConnectorInvokeReportsToolError(t *testing.T) {
	conn := newConnectedPair(t, "files")
	ctx := context.Background()
	require.NoError(t, conn.Connect(ctx))
	defer func() { _ = conn.Disconnect(ctx) }()

	res, err := conn.Invoke(ctx, "always_fails", map[string]any{"text": "x"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestConnectorRequiresSession(t *testing.T) {
	conn := New("files", &TransportConfig{}, nil)

	_, err := conn.ListOperations(context.Background())
	assert.ErrorContains(t, err, "not connected")

	_, err = conn.Invoke(context.Background(), "echo", nil)
	assert.ErrorContains(t, err, "not connected")
}

func TestConnectorConnectIsIdempotent(t *testing.T) {
	conn := newConnectedPair(t, "files")
	ctx := context.Background()
	require.NoError(t, conn.Connect(ctx))
	defer func() { _ = conn.Disconnect(ctx) }()

	// A second connect reuses the live session instead of redialing;
	// redialing would fail because in-memory transports are one-shot.
	require.NoError(t, conn.Connect(ctx))
}

func TestConnectorDisconnectIsIdempotent(t *testing.T) {
	conn := newConnectedPair(t, "files")
	ctx := context.Background()
	require.NoError(t, conn.Connect(ctx))
	require.NoError(t, conn.Disconnect(ctx))
	require.NoError(t, conn.Disconnect(ctx))

	_, err := conn.ListOperations(ctx)
	assert.ErrorContains(t, err, "not connected")
}

func TestConnectorMissingConfiguration(t *testing.T) {
	conn := New("files", nil, nil)
	err := conn.Connect(context.Background())
	assert.ErrorContains(t, err, "missing configuration")
}

func TestConnectorUnsetTransport(t *testing.T) {
	conn := New("files", &TransportConfig{}, nil)
	err := conn.Connect(context.Background())
	assert.ErrorContains(t, err, "transport missing")
}

func TestBrokerOverMCPSessions(t *testing.T) {
	conn := newConnectedPair(t, "files")
	broker, err := toolbroker.NewBroker([]toolbroker.ServerDescriptor{conn.Descriptor()}, nil)
	require.NoError(t, err)
	ctx := context.Background()
	defer func() { _ = broker.Close(ctx) }()

	count, err := broker.Connect(ctx, "files")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	active, ok := broker.ActiveServer()
	require.True(t, ok)
	assert.Equal(t, "files", active)

	results := broker.Search("echo text", 0, 0)
	require.NotEmpty(t, results)
	assert.Equal(t, "echo", results[0].Operation.Name)

	inv, err := broker.Invoke(ctx, "files", "echo", map[string]any{"text": "roundtrip"})
	require.NoError(t, err)
	assert.False(t, inv.Result.IsError)

	encoded, err := json.Marshal(inv.Result.Content)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), "roundtrip")
}

func TestHeaderDecorator(t *testing.T) {
	var gotAuth, gotExtra string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotExtra = r.Header.Get("X-Team")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	headers := http.Header{}
	headers.Set("X-Team", "platform")
	client := decorateHTTPClient(nil, headers, func(context.Context) (string, error) {
		return "Bearer token123", nil
	})

	resp, err := client.Get(upstream.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "Bearer token123", gotAuth)
	assert.Equal(t, "platform", gotExtra)
}

func TestShouldPreferSSE(t *testing.T) {
	assert.True(t, shouldPreferSSE(&HTTPConfig{Endpoint: "https://example.com/sse"}))
	assert.False(t, shouldPreferSSE(&HTTPConfig{Endpoint: "https://example.com/mcp"}))

	force := true
	assert.True(t, shouldPreferSSE(&HTTPConfig{Endpoint: "https://example.com/mcp", PreferSSE: &force}))
}
