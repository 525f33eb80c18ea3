package brokerserver

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/relaygear/toolbroker/pkg/toolbroker"
)

type listServersArgs struct{}

type connectArgs struct {
	Server string `json:"server" jsonschema:"Name of the configured server to connect to"`
}

type activeServerArgs struct{}

type disconnectArgs struct {
	Server string `json:"server,omitempty" jsonschema:"Name of the server to disconnect; empty disconnects the active server"`
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"Free-text description of the capability you are looking for"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of results to return; 0 returns all"`
}

type useToolArgs struct {
	Server    string         `json:"server" jsonschema:"Name of the server that provides the operation"`
	Operation string         `json:"operation" jsonschema:"Name of the operation to invoke"`
	Args      map[string]any `json:"args,omitempty" jsonschema:"Arguments passed through to the operation"`
}

func registerTools(server *mcp.Server, surface *toolbroker.Surface) {
	mcp.AddTool(server, &mcp.Tool{
		Name: "list_servers",
		Description: "List every configured server with its connection status and, " +
			"when known, the operations it provides. Performs no network calls.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ listServersArgs) (*mcp.CallToolResult, any, error) {
		listing := surface.ListServers()
		return payloadResult(listing.Summary, listing)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "connect_to_server",
		Description: "Connect to a configured server, refresh its operation catalog, " +
			"and make it the active server.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args connectArgs) (*mcp.CallToolResult, any, error) {
		out, err := surface.ConnectToServer(ctx, args.Server)
		if err != nil {
			return errorResult(err)
		}
		return payloadResult(out.Summary, out)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_active_server",
		Description: "Report which server is currently active, if any.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ activeServerArgs) (*mcp.CallToolResult, any, error) {
		report := surface.GetActiveServer()
		return payloadResult(report.Summary, report)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "disconnect_from_server",
		Description: "Disconnect from a server. With no server argument, disconnects " +
			"the active server. Its catalog stays searchable afterwards.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args disconnectArgs) (*mcp.CallToolResult, any, error) {
		out, err := surface.DisconnectFromServer(ctx, args.Server)
		if err != nil {
			return errorResult(err)
		}
		return payloadResult(out.Summary, out)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "search_tools",
		Description: "Search every known operation across all servers, connected or " +
			"not, ranked by relevance to a free-text query.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args searchArgs) (*mcp.CallToolResult, any, error) {
		out := surface.SearchTools(args.Query, args.Limit)
		return payloadResult(out.Summary, out)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "use_tool_from_server",
		Description: "Invoke an operation on a specific server, connecting on demand. " +
			"Does not change which server is active.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args useToolArgs) (*mcp.CallToolResult, any, error) {
		out, err := surface.UseToolFromServer(ctx, args.Server, args.Operation, args.Args)
		if err != nil {
			return errorResult(err)
		}
		return payloadResult(out.Summary, out)
	})
}

// payloadResult renders a tool response as a human-readable summary followed
// by the JSON payload behind it.
func payloadResult(summary string, payload any) (*mcp.CallToolResult, any, error) {
	content := []mcp.Content{&mcp.TextContent{Text: summary}}
	if payload != nil {
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return errorResult(err)
		}
		content = append(content, &mcp.TextContent{Text: string(data)})
	}
	return &mcp.CallToolResult{Content: content}, nil, nil
}

// errorResult reports broker failures as tool-level errors rather than
// protocol errors, so agents can read and react to them.
func errorResult(err error) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}, nil, nil
}
