package tools

import (
	"context"

	"github.com/openconduit/conduit/pkg/api"
)

// Executor executes tool calls for the tools it owns. Implementations
// must be safe for concurrent use: the loop runs parallel tool calls from
// multiple goroutines.
type Executor interface {
	// Name identifies the executor in logs and metrics.
	Name() string

	// Tools returns the definitions of the tools this executor serves.
	Tools() []api.ToolDefinition

	// CanExecute reports whether this executor handles the named tool.
	CanExecute(toolName string) bool

	// Execute runs the tool and returns the result. Tool failures are
	// reported in Result.IsError, not as an error return; an error means
	// the executor itself failed.
	Execute(ctx context.Context, call Call) (*Result, error)

	// Close releases executor resources.
	Close() error
}

// Call is a model's request to invoke a tool.
type Call struct {
	// ID is the unique call identifier from the model.
	ID string

	// Name is the tool function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// Result is the output of a tool execution.
type Result struct {
	// CallID matches the originating Call.ID.
	CallID string

	// Output is the tool output text.
	Output string

	// IsError indicates that Output is an error message fed back to the
	// model rather than a successful result.
	IsError bool
}

// Message converts the result into the tool message appended to the
// conversation.
func (r Result) Message(toolName string) api.Message {
	return api.Message{
		Role:       api.RoleTool,
		Content:    r.Output,
		ToolCallID: r.CallID,
		Name:       toolName,
	}
}
