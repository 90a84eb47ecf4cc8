package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
)

// maxSSELineSize bounds a single SSE line. Tool call argument chunks can
// be large but a well-behaved backend never approaches this.
const maxSSELineSize = 1 << 20

// toolCallBuffer tracks incremental tool call argument assembly across
// chunks for a single tool call index.
type toolCallBuffer struct {
	id   string
	name string
	args strings.Builder
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

// parseSSEStream reads Chat Completions SSE chunks from body, translates
// each chunk to provider events, and sends them on ch. The channel is NOT
// closed here; the caller owns it.
//
// Expected framing:
//
//	data: {"id":"...","choices":[...]}\n
//	\n
//	data: [DONE]\n
//
// Malformed chunks are logged and skipped. Context cancellation stops
// reading and sending immediately.
func parseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.Event) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxSSELineSize)

	toolCalls := make(map[int]*toolCallBuffer)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()

		// Ignore blank lines, comments (": keep-alive") and any
		// non-data fields.
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		if payload == "[DONE]" {
			return
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed SSE chunk",
				"error", err.Error(),
				"data", truncate(payload, 200),
			)
			continue
		}

		if !translateChunk(ctx, &chunk, toolCalls, ch) {
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

// translateChunk converts one chunk into provider events. The toolCalls
// map carries argument assembly state across chunks. Returns false when
// the consumer cancelled and the stream should stop.
func translateChunk(ctx context.Context, chunk *chatChunk, toolCalls map[int]*toolCallBuffer, ch chan<- provider.Event) bool {
	ident := provider.Event{
		ID:      chunk.ID,
		Model:   chunk.Model,
		Created: chunk.Created,
	}

	if len(chunk.Choices) == 0 {
		// Usage-only final chunk, sent when stream_options.include_usage
		// is set.
		if chunk.Usage != nil {
			ev := ident
			ev.Type = provider.EventDone
			ev.Usage = &api.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
			return sendEvent(ctx, ch, ev)
		}
		return true
	}

	choice := chunk.Choices[0]
	delta := choice.Delta

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		if !flushToolCalls(ctx, ident, toolCalls, ch) {
			return false
		}

		ev := ident
		ev.Type = provider.EventDone
		ev.FinishReason = mapFinishReason(*choice.FinishReason)
		if chunk.Usage != nil {
			ev.Usage = &api.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
		}
		return sendEvent(ctx, ch, ev)
	}

	if len(delta.ToolCalls) > 0 {
		for _, tc := range delta.ToolCalls {
			buf, exists := toolCalls[tc.Index]
			if !exists {
				// First chunk for this index carries id and name.
				buf = &toolCallBuffer{id: tc.ID, name: tc.Function.Name}
				toolCalls[tc.Index] = buf
			}
			buf.args.WriteString(tc.Function.Arguments)

			ev := ident
			ev.Type = provider.EventToolCallDelta
			ev.ToolCallIndex = tc.Index
			ev.ToolCallID = buf.id
			ev.FunctionName = buf.name
			ev.Delta = tc.Function.Arguments
			if !sendEvent(ctx, ch, ev) {
				return false
			}
		}
		return true
	}

	if delta.Content != nil && *delta.Content != "" {
		ev := ident
		ev.Type = provider.EventTextDelta
		ev.Delta = *delta.Content
		return sendEvent(ctx, ch, ev)
	}

	// Role-only first chunk or an empty keep-alive delta. Nothing to emit.
	return true
}

// flushToolCalls emits EventToolCallDone for each buffered tool call in
// index order and clears the buffer. Returns false on cancellation.
func flushToolCalls(ctx context.Context, ident provider.Event, toolCalls map[int]*toolCallBuffer, ch chan<- provider.Event) bool {
	indexes := make([]int, 0, len(toolCalls))
	for idx := range toolCalls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		buf := toolCalls[idx]
		ev := ident
		ev.Type = provider.EventToolCallDone
		ev.ToolCallIndex = idx
		ev.ToolCallID = buf.id
		ev.FunctionName = buf.name
		ev.Delta = buf.args.String()
		if !sendEvent(ctx, ch, ev) {
			return false
		}
	}
	clear(toolCalls)
	return true
}

// truncate limits a string to maxLen characters for log output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
