package engine

import (
	"context"
	"time"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/observability"
	"github.com/openconduit/conduit/pkg/provider"
	"github.com/openconduit/conduit/pkg/tools"
	"github.com/openconduit/conduit/pkg/transport"
)

// streamState carries per-stream bookkeeping across turns. Sequence
// numbers are monotonic for the whole chat, not per turn.
type streamState struct {
	seq int
}

func (s *streamState) nextSeq() int {
	s.seq++
	return s.seq
}

// runLoopStreaming executes the bounded tool loop for streaming requests.
// Delta events are forwarded as they arrive; tool execution happens
// between turns with tool.result events marking each result. Exactly one
// terminal event ends the stream.
func (e *Engine) runLoopStreaming(ctx context.Context, req *api.ChatRequest, provReq *provider.Request, w transport.ResponseWriter) error {
	maxTurns := e.cfg.effectiveMaxTurns(req.MaxToolTurns)
	parallel := runsParallel(req)
	includeUsage := req.StreamOptions != nil && req.StreamOptions.IncludeUsage

	resp := newResponse(req)
	state := &streamState{}

	if err := w.WriteEvent(ctx, api.StreamEvent{
		Type:           api.EventChatCreated,
		SequenceNumber: state.nextSeq(),
		Response:       snapshot(resp),
	}); err != nil {
		return err
	}

	var usage api.Usage
	var history []api.Message

	for turn := 1; turn <= maxTurns; turn++ {
		if ctx.Err() != nil {
			return e.streamTerminal(ctx, req, resp, api.EventChatCancelled, api.Message{Role: api.RoleAssistant}, history, &usage, api.FinishCancelled, includeUsage, turn, state, w)
		}

		start := time.Now()
		eventCh, err := e.provider.Stream(ctx, provReq)
		if err != nil {
			observability.RecordProviderRequest(e.provider.Name(), req.Model, "error", time.Since(start).Seconds())
			if ctx.Err() != nil {
				return e.streamTerminal(ctx, req, resp, api.EventChatCancelled, api.Message{Role: api.RoleAssistant}, history, &usage, api.FinishCancelled, includeUsage, turn, state, w)
			}
			return e.streamFailed(ctx, resp, err, turn, state, w)
		}

		provResp, err := e.consumeTurn(ctx, eventCh, state, turn, w)
		elapsed := time.Since(start).Seconds()
		if err != nil {
			observability.RecordProviderRequest(e.provider.Name(), req.Model, "error", elapsed)
			if ctx.Err() != nil {
				return e.streamTerminal(ctx, req, resp, api.EventChatCancelled, api.Message{Role: api.RoleAssistant}, history, &usage, api.FinishCancelled, includeUsage, turn, state, w)
			}
			return e.streamFailed(ctx, resp, err, turn, state, w)
		}
		observability.RecordProviderRequest(e.provider.Name(), req.Model, "success", elapsed)
		observability.RecordProviderTokens(e.provider.Name(), req.Model, provResp.Usage.InputTokens, provResp.Usage.OutputTokens)

		usage.Add(provResp.Usage)
		msg := provResp.Message

		if err := w.WriteEvent(ctx, api.StreamEvent{
			Type:           api.EventMessageDone,
			SequenceNumber: state.nextSeq(),
			Message:        &msg,
			Turn:           turn,
		}); err != nil {
			return err
		}

		calls := toolCallsFrom(msg)

		if len(calls) == 0 || toolChoiceNone(req) {
			observability.ToolLoopTurns.Observe(float64(turn))
			return e.streamTerminal(ctx, req, resp, api.EventChatCompleted, msg, history, &usage, provResp.FinishReason, includeUsage, turn, state, w)
		}
		if e.hasUnhandledCalls(calls) {
			observability.ToolLoopTurns.Observe(float64(turn))
			return e.streamTerminal(ctx, req, resp, api.EventChatCompleted, msg, history, &usage, api.FinishToolCalls, includeUsage, turn, state, w)
		}

		filtered := tools.FilterAllowed(calls, req.AllowedTools)
		results := e.executeTools(ctx, filtered.Allowed, parallel)
		results = append(results, filtered.Rejected...)

		history = append(history, msg)
		provReq.Messages = append(provReq.Messages, msg)
		for _, r := range results {
			name := toolNameFor(calls, r.CallID)
			toolMsg := r.Message(name)
			history = append(history, toolMsg)
			provReq.Messages = append(provReq.Messages, toolMsg)

			if err := w.WriteEvent(ctx, api.StreamEvent{
				Type:           api.EventToolResult,
				SequenceNumber: state.nextSeq(),
				CallID:         r.CallID,
				ToolName:       name,
				Message:        &toolMsg,
				Turn:           turn,
			}); err != nil {
				return err
			}
		}
	}

	// The last history entry becomes the response message; it moves out
	// of History so the persisted exchange holds each message exactly once.
	observability.ToolLoopTurns.Observe(float64(maxTurns))
	last := api.Message{Role: api.RoleAssistant}
	if n := len(history); n > 0 {
		last = history[n-1]
		history = history[:n-1]
	}
	return e.streamTerminal(ctx, req, resp, api.EventChatIncomplete, last, history, &usage, api.FinishLength, includeUsage, maxTurns, state, w)
}

// consumeTurn drains one provider stream, forwarding delta events and
// assembling the turn's message through an Accumulator.
func (e *Engine) consumeTurn(ctx context.Context, eventCh <-chan provider.Event, state *streamState, turn int, w transport.ResponseWriter) (*provider.Response, error) {
	acc := provider.NewAccumulator()
	messageStarted := false

	for ev := range eventCh {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if ev.Type == provider.EventError {
			return nil, ev.Err
		}

		acc.Add(ev)

		switch ev.Type {
		case provider.EventTextDelta:
			if !messageStarted {
				messageStarted = true
				if err := w.WriteEvent(ctx, api.StreamEvent{
					Type:           api.EventMessageStart,
					SequenceNumber: state.nextSeq(),
					Message:        &api.Message{Role: api.RoleAssistant},
					Turn:           turn,
				}); err != nil {
					return nil, err
				}
			}
			if err := w.WriteEvent(ctx, api.StreamEvent{
				Type:           api.EventMessageDelta,
				SequenceNumber: state.nextSeq(),
				Delta:          ev.Delta,
				Turn:           turn,
			}); err != nil {
				return nil, err
			}

		case provider.EventToolCallDelta:
			if err := w.WriteEvent(ctx, api.StreamEvent{
				Type:           api.EventToolCallDelta,
				SequenceNumber: state.nextSeq(),
				Delta:          ev.Delta,
				CallID:         ev.ToolCallID,
				ToolName:       ev.FunctionName,
				Turn:           turn,
			}); err != nil {
				return nil, err
			}

		case provider.EventToolCallDone:
			if err := w.WriteEvent(ctx, api.StreamEvent{
				Type:           api.EventToolCallDone,
				SequenceNumber: state.nextSeq(),
				CallID:         ev.ToolCallID,
				ToolName:       ev.FunctionName,
				ToolCall: &api.ToolCall{
					ID:   ev.ToolCallID,
					Type: "function",
					Function: api.FunctionCall{
						Name:      ev.FunctionName,
						Arguments: ev.Delta,
					},
				},
				Turn: turn,
			}); err != nil {
				return nil, err
			}
		}
	}

	if err := acc.Err(); err != nil {
		return nil, err
	}
	return acc.Response(), nil
}

// streamTerminal finishes the stream with the given terminal event and
// persists the exchange when appropriate.
func (e *Engine) streamTerminal(ctx context.Context, req *api.ChatRequest, resp *api.ChatResponse, eventType api.StreamEventType, msg api.Message, history []api.Message, usage *api.Usage, reason api.FinishReason, includeUsage bool, turn int, state *streamState, w transport.ResponseWriter) error {
	resp.Message = msg
	resp.History = history
	resp.FinishReason = reason
	if includeUsage {
		resp.Usage = usage
	}

	ctx = context.WithoutCancel(ctx)
	if shouldPersist(reason) {
		e.persistExchange(ctx, req, resp)
	}

	return w.WriteEvent(ctx, api.StreamEvent{
		Type:           eventType,
		SequenceNumber: state.nextSeq(),
		Response:       resp,
		Turn:           turn,
	})
}

// streamFailed emits the chat.failed terminal event for an error that
// occurred after streaming began.
func (e *Engine) streamFailed(ctx context.Context, resp *api.ChatResponse, err error, turn int, state *streamState, w transport.ResponseWriter) error {
	apiErr, ok := err.(*api.APIError)
	if !ok {
		apiErr = api.NewServerError(err.Error())
	}
	resp.Error = apiErr

	return w.WriteEvent(context.WithoutCancel(ctx), api.StreamEvent{
		Type:           api.EventChatFailed,
		SequenceNumber: state.nextSeq(),
		Response:       resp,
		Turn:           turn,
	})
}

// snapshot copies the response so later mutation does not race with a
// writer that serializes asynchronously.
func snapshot(resp *api.ChatResponse) *api.ChatResponse {
	c := *resp
	return &c
}
