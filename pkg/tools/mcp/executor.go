package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/tools"
)

// Executor routes tool calls to connected MCP servers. It implements
// tools.Executor so the registry treats MCP tools like any other.
type Executor struct {
	mu sync.RWMutex

	// clients maps server name to its client.
	clients map[string]*Client

	// toolToServer maps tool name to the server that provides it.
	toolToServer map[string]string

	discovered bool
}

var _ tools.Executor = (*Executor)(nil)

// NewExecutor creates an Executor over already-connected clients.
func NewExecutor(clients map[string]*Client) *Executor {
	return &Executor{
		clients:      clients,
		toolToServer: make(map[string]string),
	}
}

// Name identifies the executor.
func (e *Executor) Name() string { return "mcp" }

// Tools returns all tools discovered from connected servers. The first
// call triggers lazy discovery.
func (e *Executor) Tools() []api.ToolDefinition {
	e.ensureDiscovered()

	e.mu.RLock()
	defer e.mu.RUnlock()

	var all []api.ToolDefinition
	for _, client := range e.clients {
		client.mu.Lock()
		all = append(all, client.cachedTools...)
		client.mu.Unlock()
	}
	return all
}

// CanExecute reports whether any connected server provides the tool.
func (e *Executor) CanExecute(toolName string) bool {
	e.ensureDiscovered()

	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.toolToServer[toolName]
	return ok
}

// Execute routes the call to the owning server.
func (e *Executor) Execute(ctx context.Context, call tools.Call) (*tools.Result, error) {
	e.ensureDiscovered()

	e.mu.RLock()
	serverName, ok := e.toolToServer[call.Name]
	if !ok {
		e.mu.RUnlock()
		return &tools.Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("no MCP server provides tool %q", call.Name),
			IsError: true,
		}, nil
	}
	client := e.clients[serverName]
	e.mu.RUnlock()

	return client.CallTool(ctx, call)
}

// Close closes all server connections, returning the last error.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var lastErr error
	for name, client := range e.clients {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close MCP client", "server", name, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// ensureDiscovered runs tool discovery once. A server that fails
// discovery is skipped rather than failing the whole executor.
func (e *Executor) ensureDiscovered() {
	e.mu.RLock()
	if e.discovered {
		e.mu.RUnlock()
		return
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.discovered {
		return
	}

	ctx := context.Background()
	for name, client := range e.clients {
		toolDefs, err := client.DiscoverTools(ctx)
		if err != nil {
			slog.Error("failed to discover tools from MCP server",
				"server", name,
				"error", err,
			)
			continue
		}

		for _, td := range toolDefs {
			if _, exists := e.toolToServer[td.Name]; exists {
				slog.Warn("duplicate MCP tool name, using first server",
					"tool", td.Name,
					"server", name,
				)
				continue
			}
			e.toolToServer[td.Name] = name
		}

		slog.Info("discovered MCP tools", "server", name, "count", len(toolDefs))
	}

	e.discovered = true
}
