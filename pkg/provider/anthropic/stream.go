package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
)

const maxSSELineSize = 1 << 20

// streamState carries per-stream accumulation across SSE events.
type streamState struct {
	id    string
	model string

	// Usage arrives split: input_tokens on message_start, output_tokens
	// on message_delta.
	inputTokens  int
	outputTokens int

	stopReason string

	// Open tool_use blocks by content block index.
	blocks map[int]*blockState

	// Tool call positions in emission order, assigned on block start.
	nextToolIndex int
}

type blockState struct {
	toolID    string
	toolName  string
	toolIndex int
	json      strings.Builder
}

// sendEvent delivers ev unless the context is cancelled first. A false
// return means the consumer is gone; the producer must stop rather than
// block on a full channel forever.
func sendEvent(ctx context.Context, ch chan<- provider.Event, ev provider.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// parseSSEStream reads Messages API SSE events from body and sends
// normalized provider events on ch. The channel is NOT closed here; the
// caller owns it.
//
// Anthropic frames every event with an "event:" name line followed by a
// "data:" payload that repeats the type, so only data lines are parsed.
// There is no [DONE] sentinel; message_stop ends the stream.
func parseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.Event) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxSSELineSize)

	state := &streamState{blocks: make(map[int]*blockState)}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			slog.Warn("skipping malformed anthropic SSE event", "error", err.Error())
			continue
		}

		if done := translateEvent(ctx, &ev, state, ch); done {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		sendEvent(ctx, ch, provider.Event{
			Type: provider.EventError,
			Err:  api.NewServerError("SSE stream read error: " + err.Error()),
		})
	}
}

// translateEvent folds one SSE event into the stream state and emits
// provider events. It returns true when the stream is finished, either
// because the backend ended it or because the consumer cancelled.
func translateEvent(ctx context.Context, ev *streamEvent, state *streamState, ch chan<- provider.Event) bool {
	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			state.id = ev.Message.ID
			state.model = ev.Message.Model
			if ev.Message.Usage != nil {
				state.inputTokens = ev.Message.Usage.InputTokens
			}
		}

	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
			bs := &blockState{
				toolID:    ev.ContentBlock.ID,
				toolName:  ev.ContentBlock.Name,
				toolIndex: state.nextToolIndex,
			}
			state.nextToolIndex++
			state.blocks[ev.Index] = bs
		}

	case "content_block_delta":
		if ev.Delta == nil {
			break
		}
		switch ev.Delta.Type {
		case "text_delta":
			if !sendEvent(ctx, ch, provider.Event{
				Type:  provider.EventTextDelta,
				Delta: ev.Delta.Text,
				ID:    state.id,
				Model: state.model,
			}) {
				return true
			}
		case "input_json_delta":
			bs, ok := state.blocks[ev.Index]
			if !ok {
				break
			}
			bs.json.WriteString(ev.Delta.PartialJSON)
			if !sendEvent(ctx, ch, provider.Event{
				Type:          provider.EventToolCallDelta,
				ToolCallIndex: bs.toolIndex,
				ToolCallID:    bs.toolID,
				FunctionName:  bs.toolName,
				Delta:         ev.Delta.PartialJSON,
				ID:            state.id,
				Model:         state.model,
			}) {
				return true
			}
		}

	case "content_block_stop":
		if bs, ok := state.blocks[ev.Index]; ok {
			args := bs.json.String()
			if args == "" {
				// A tool_use block with no input deltas means empty input.
				args = "{}"
			}
			if !sendEvent(ctx, ch, provider.Event{
				Type:          provider.EventToolCallDone,
				ToolCallIndex: bs.toolIndex,
				ToolCallID:    bs.toolID,
				FunctionName:  bs.toolName,
				Delta:         args,
				ID:            state.id,
				Model:         state.model,
			}) {
				return true
			}
			delete(state.blocks, ev.Index)
		}

	case "message_delta":
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			state.stopReason = ev.Delta.StopReason
		}
		if ev.Usage != nil {
			state.outputTokens = ev.Usage.OutputTokens
		}

	case "message_stop":
		sendEvent(ctx, ch, provider.Event{
			Type:         provider.EventDone,
			FinishReason: mapStopReason(state.stopReason),
			Usage: &api.Usage{
				InputTokens:  state.inputTokens,
				OutputTokens: state.outputTokens,
				TotalTokens:  state.inputTokens + state.outputTokens,
			},
			ID:    state.id,
			Model: state.model,
		})
		return true

	case "error":
		message := "anthropic stream error"
		if ev.Error != nil && ev.Error.Message != "" {
			message = ev.Error.Message
		}
		sendEvent(ctx, ch, provider.Event{
			Type: provider.EventError,
			Err:  api.NewModelError(message),
		})
		return true

	case "ping":
		// Keep-alive, nothing to do.
	}
	return false
}
