package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openconduit/conduit/pkg/api"
)

// HandlerFunc is the implementation of a single Go-native tool. It
// receives the raw JSON argument object and returns the output text. A
// returned error becomes an IsError result fed back to the model.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (string, error)

// Func exposes one Go function as a tool. It is the simplest Executor:
// embedding applications register these directly on the Registry.
type Func struct {
	name        string
	description string
	parameters  json.RawMessage
	handler     HandlerFunc
}

// NewFunc creates a tool from a Go function. parameters is a JSON Schema
// object describing the arguments; nil means the tool takes none.
func NewFunc(name, description string, parameters json.RawMessage, handler HandlerFunc) *Func {
	if parameters == nil {
		parameters = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return &Func{
		name:        name,
		description: description,
		parameters:  parameters,
		handler:     handler,
	}
}

// Name identifies the executor.
func (f *Func) Name() string { return f.name }

// Tools returns the single tool definition.
func (f *Func) Tools() []api.ToolDefinition {
	return []api.ToolDefinition{{
		Type:        "function",
		Name:        f.name,
		Description: f.description,
		Parameters:  f.parameters,
	}}
}

// CanExecute reports whether the call names this function.
func (f *Func) CanExecute(toolName string) bool { return toolName == f.name }

// Execute runs the function. Invalid JSON arguments and handler errors
// both become error results for the model, not transport failures.
func (f *Func) Execute(ctx context.Context, call Call) (*Result, error) {
	args := json.RawMessage(call.Arguments)
	if call.Arguments == "" {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		return &Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("invalid arguments JSON for tool %q", call.Name),
			IsError: true,
		}, nil
	}

	output, err := f.handler(ctx, args)
	if err != nil {
		return &Result{
			CallID:  call.ID,
			Output:  err.Error(),
			IsError: true,
		}, nil
	}
	return &Result{CallID: call.ID, Output: output}, nil
}

// Close is a no-op for function tools.
func (f *Func) Close() error { return nil }
