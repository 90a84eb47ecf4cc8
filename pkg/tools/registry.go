package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openconduit/conduit/pkg/api"
)

var (
	toolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_tool_executions_total",
			Help: "Total server-side tool executions",
		},
		[]string{"executor", "tool_name", "status"},
	)

	toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conduit_tool_duration_seconds",
			Help:    "Server-side tool execution duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"executor", "tool_name"},
	)
)

func init() {
	prometheus.MustRegister(toolExecutions, toolDuration)
}

// Registry aggregates Executors and routes tool calls to the one that
// owns each tool. Tool names resolve first-come, first-served.
type Registry struct {
	mu        sync.RWMutex
	executors []Executor
	byTool    map[string]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byTool: make(map[string]Executor)}
}

// Register adds an executor. On a tool name conflict the first registered
// executor wins and a warning is logged.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.executors = append(r.executors, e)
	for _, td := range e.Tools() {
		if existing, ok := r.byTool[td.Name]; ok {
			slog.Warn("tool name conflict, keeping first executor",
				"tool", td.Name,
				"winner", existing.Name(),
				"loser", e.Name(),
			)
			continue
		}
		r.byTool[td.Name] = e
	}

	slog.Info("registered tool executor", "executor", e.Name(), "tools", len(e.Tools()))
}

// CanExecute reports whether any registered executor handles the tool.
func (r *Registry) CanExecute(toolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byTool[toolName]
	return ok
}

// Execute routes the call, records metrics, and recovers executor panics
// into error results so a misbehaving tool cannot take down the request.
func (r *Registry) Execute(ctx context.Context, call Call) (result *Result, err error) {
	r.mu.RLock()
	e, ok := r.byTool[call.Name]
	r.mu.RUnlock()

	if !ok {
		return &Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("no executor handles tool %q", call.Name),
			IsError: true,
		}, nil
	}

	executorName := e.Name()
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool executor panicked",
				"executor", executorName,
				"tool", call.Name,
				"panic", rec,
			)
			result = &Result{
				CallID:  call.ID,
				Output:  fmt.Sprintf("internal error: tool %q panicked", call.Name),
				IsError: true,
			}
			err = nil

			toolExecutions.WithLabelValues(executorName, call.Name, "panic").Inc()
			toolDuration.WithLabelValues(executorName, call.Name).Observe(time.Since(start).Seconds())
		}
	}()

	result, err = e.Execute(ctx, call)

	status := "success"
	if err != nil {
		status = "error"
	} else if result != nil && result.IsError {
		status = "tool_error"
	}
	toolExecutions.WithLabelValues(executorName, call.Name, status).Inc()
	toolDuration.WithLabelValues(executorName, call.Name).Observe(time.Since(start).Seconds())

	return result, err
}

// Definitions returns the merged tool definitions from all executors.
func (r *Registry) Definitions() []api.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []api.ToolDefinition
	for _, e := range r.executors {
		all = append(all, e.Tools()...)
	}
	return all
}

// HasExecutors reports whether anything is registered.
func (r *Registry) HasExecutors() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors) > 0
}

// Close closes all executors, returning the last error encountered.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for _, e := range r.executors {
		if err := e.Close(); err != nil {
			slog.Warn("failed to close tool executor", "executor", e.Name(), "error", err)
			lastErr = err
		}
	}
	return lastErr
}
