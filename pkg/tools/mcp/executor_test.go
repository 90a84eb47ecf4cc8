package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openconduit/conduit/pkg/tools"
)

// setupTestServer creates an MCP server with the given tools and connects
// a client to it over in-memory transports.
func setupTestServer(t *testing.T, serverTools map[string]mcp.ToolHandler) *Client {
	t.Helper()

	server := mcp.NewServer(
		&mcp.Implementation{Name: "test-server", Version: "1.0.0"},
		nil,
	)

	for name, handler := range serverTools {
		server.AddTool(
			&mcp.Tool{
				Name:        name,
				Description: "Test tool: " + name,
				InputSchema: map[string]any{"type": "object"},
			},
			handler,
		)
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx := context.Background()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	client := &Client{cfg: ServerConfig{Name: "test-server"}}
	if err := client.ConnectWithTransport(ctx, clientTransport); err != nil {
		t.Fatalf("ConnectWithTransport failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func TestExecutorDiscoversTools(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"get_weather": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult("sunny"), nil
		},
		"get_time": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult("12:00"), nil
		},
	})

	executor := NewExecutor(map[string]*Client{"test-server": client})
	defer executor.Close()

	defs := executor.Tools()
	if len(defs) != 2 {
		t.Fatalf("got %d tools, want 2", len(defs))
	}
	names := map[string]bool{}
	for _, td := range defs {
		names[td.Name] = true
		if td.Type != "function" {
			t.Errorf("tool %q type = %q, want function", td.Name, td.Type)
		}
	}
	if !names["get_weather"] || !names["get_time"] {
		t.Errorf("tool names = %v", names)
	}

	if !executor.CanExecute("get_weather") {
		t.Error("CanExecute(get_weather) = false")
	}
	if executor.CanExecute("unknown") {
		t.Error("CanExecute(unknown) = true")
	}
}

func TestExecutorCallTool(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"greet": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, err
			}
			return textResult("Hello, " + args.Name + "!"), nil
		},
	})

	executor := NewExecutor(map[string]*Client{"test-server": client})
	defer executor.Close()

	result, err := executor.Execute(context.Background(), tools.Call{
		ID:        "call_123",
		Name:      "greet",
		Arguments: `{"name":"World"}`,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.CallID != "call_123" || result.Output != "Hello, World!" || result.IsError {
		t.Errorf("result = %+v", result)
	}
}

func TestExecutorMultiServerRouting(t *testing.T) {
	clientA := setupTestServer(t, map[string]mcp.ToolHandler{
		"tool_a": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult("from server A"), nil
		},
	})
	clientB := setupTestServer(t, map[string]mcp.ToolHandler{
		"tool_b": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult("from server B"), nil
		},
	})

	executor := NewExecutor(map[string]*Client{"server-a": clientA, "server-b": clientB})
	defer executor.Close()

	resultA, err := executor.Execute(context.Background(), tools.Call{ID: "ca", Name: "tool_a"})
	if err != nil {
		t.Fatalf("Execute(tool_a) error = %v", err)
	}
	if resultA.Output != "from server A" {
		t.Errorf("tool_a output = %q", resultA.Output)
	}

	resultB, err := executor.Execute(context.Background(), tools.Call{ID: "cb", Name: "tool_b"})
	if err != nil {
		t.Fatalf("Execute(tool_b) error = %v", err)
	}
	if resultB.Output != "from server B" {
		t.Errorf("tool_b output = %q", resultB.Output)
	}
}

func TestExecutorToolError(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"failing": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "something went wrong"}},
				IsError: true,
			}, nil
		},
	})

	executor := NewExecutor(map[string]*Client{"test-server": client})
	defer executor.Close()

	result, err := executor.Execute(context.Background(), tools.Call{ID: "ce", Name: "failing"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.IsError || result.Output != "something went wrong" {
		t.Errorf("result = %+v", result)
	}
}

func TestExecutorUnknownTool(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"known": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult("ok"), nil
		},
	})

	executor := NewExecutor(map[string]*Client{"test-server": client})
	defer executor.Close()

	result, err := executor.Execute(context.Background(), tools.Call{ID: "cu", Name: "nonexistent"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.IsError {
		t.Error("unknown tool should produce an error result")
	}
}
