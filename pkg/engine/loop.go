package engine

import (
	"context"
	"sync"
	"time"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/observability"
	"github.com/openconduit/conduit/pkg/provider"
	"github.com/openconduit/conduit/pkg/tools"
	"github.com/openconduit/conduit/pkg/transport"
)

// runLoop executes the bounded tool loop for non-streaming requests:
// call the provider, execute any tool calls it requests, feed the results
// back, and repeat until a final answer or a termination condition.
func (e *Engine) runLoop(ctx context.Context, req *api.ChatRequest, provReq *provider.Request, w transport.ResponseWriter) error {
	maxTurns := e.cfg.effectiveMaxTurns(req.MaxToolTurns)
	parallel := runsParallel(req)

	resp := newResponse(req)
	var usage api.Usage
	var history []api.Message

	for turn := 1; turn <= maxTurns; turn++ {
		if ctx.Err() != nil {
			return e.finishCancelled(ctx, req, resp, history, &usage, turn, w)
		}

		start := time.Now()
		provResp, err := e.provider.Complete(ctx, provReq)
		elapsed := time.Since(start).Seconds()

		if err != nil {
			observability.RecordProviderRequest(e.provider.Name(), req.Model, "error", elapsed)
			if ctx.Err() != nil {
				return e.finishCancelled(ctx, req, resp, history, &usage, turn, w)
			}
			return err
		}
		observability.RecordProviderRequest(e.provider.Name(), req.Model, "success", elapsed)
		observability.RecordProviderTokens(e.provider.Name(), req.Model, provResp.Usage.InputTokens, provResp.Usage.OutputTokens)

		usage.Add(provResp.Usage)
		msg := provResp.Message
		calls := toolCallsFrom(msg)

		// No tool calls, tool_choice "none", or nothing server-side to
		// run them: the turn is final.
		if len(calls) == 0 || toolChoiceNone(req) {
			observability.ToolLoopTurns.Observe(float64(turn))
			return e.finish(ctx, req, resp, msg, history, &usage, provResp.FinishReason, w)
		}
		if e.hasUnhandledCalls(calls) {
			observability.ToolLoopTurns.Observe(float64(turn))
			return e.finish(ctx, req, resp, msg, history, &usage, api.FinishToolCalls, w)
		}

		filtered := tools.FilterAllowed(calls, req.AllowedTools)
		results := e.executeTools(ctx, filtered.Allowed, parallel)
		results = append(results, filtered.Rejected...)

		// The assistant message carrying tool_calls must precede the tool
		// result messages in the history fed back to the model.
		history = append(history, msg)
		provReq.Messages = append(provReq.Messages, msg)
		for _, r := range results {
			toolMsg := r.Message(toolNameFor(calls, r.CallID))
			history = append(history, toolMsg)
			provReq.Messages = append(provReq.Messages, toolMsg)
		}
	}

	// Loop exhausted without a final answer. The last history entry
	// becomes the response message; it moves out of History so the
	// persisted exchange holds each message exactly once.
	observability.ToolLoopTurns.Observe(float64(maxTurns))
	last := api.Message{Role: api.RoleAssistant}
	if n := len(history); n > 0 {
		last = history[n-1]
		history = history[:n-1]
	}
	return e.finish(ctx, req, resp, last, history, &usage, api.FinishLength, w)
}

// finish completes the non-streaming response and persists the exchange.
func (e *Engine) finish(ctx context.Context, req *api.ChatRequest, resp *api.ChatResponse, msg api.Message, history []api.Message, usage *api.Usage, reason api.FinishReason, w transport.ResponseWriter) error {
	resp.Message = msg
	resp.History = history
	resp.FinishReason = reason
	resp.Usage = usage

	if shouldPersist(reason) {
		e.persistExchange(ctx, req, resp)
	}
	return w.WriteResponse(ctx, resp)
}

func (e *Engine) finishCancelled(ctx context.Context, req *api.ChatRequest, resp *api.ChatResponse, history []api.Message, usage *api.Usage, turn int, w transport.ResponseWriter) error {
	observability.ToolLoopTurns.Observe(float64(turn))
	resp.History = history
	resp.Message = api.Message{Role: api.RoleAssistant}
	resp.FinishReason = api.FinishCancelled
	resp.Usage = usage
	// The request context is cancelled; write with a fresh context.
	return w.WriteResponse(context.WithoutCancel(ctx), resp)
}

// hasUnhandledCalls reports whether any tool call lacks a server-side
// executor. One unhandled call hands the whole batch back to the client.
func (e *Engine) hasUnhandledCalls(calls []tools.Call) bool {
	for _, c := range calls {
		if e.registry == nil || !e.registry.CanExecute(c.Name) {
			return true
		}
	}
	return false
}

// executeTools runs the calls through the registry, in parallel or
// sequentially. Results keep the positional order of calls.
func (e *Engine) executeTools(ctx context.Context, calls []tools.Call, parallel bool) []tools.Result {
	if len(calls) == 0 {
		return nil
	}

	results := make([]tools.Result, len(calls))

	execOne := func(idx int, call tools.Call) {
		res, err := e.registry.Execute(ctx, call)
		if err != nil {
			results[idx] = tools.Result{
				CallID:  call.ID,
				Output:  err.Error(),
				IsError: true,
			}
			return
		}
		results[idx] = *res
	}

	if parallel && len(calls) > 1 {
		var wg sync.WaitGroup
		for i, call := range calls {
			wg.Add(1)
			go func(idx int, c tools.Call) {
				defer wg.Done()
				execOne(idx, c)
			}(i, call)
		}
		wg.Wait()
	} else {
		for i, call := range calls {
			if ctx.Err() != nil {
				results[i] = tools.Result{
					CallID:  call.ID,
					Output:  "request cancelled before tool execution",
					IsError: true,
				}
				continue
			}
			execOne(i, call)
		}
	}

	return results
}

func toolChoiceNone(req *api.ChatRequest) bool {
	return req.ToolChoice != nil && req.ToolChoice.Mode == "none"
}

// toolNameFor resolves the function name for a result's originating call.
func toolNameFor(calls []tools.Call, callID string) string {
	for _, c := range calls {
		if c.ID == callID {
			return c.Name
		}
	}
	return ""
}
