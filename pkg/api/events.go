package api

// StreamEventType identifies the type of a gateway streaming event.
type StreamEventType string

// Delta events convey incremental content while a turn is generating.
const (
	EventMessageStart  StreamEventType = "message.start"
	EventMessageDelta  StreamEventType = "message.delta"
	EventToolCallDelta StreamEventType = "message.tool_call.delta"
	EventToolCallDone  StreamEventType = "message.tool_call.done"
	EventMessageDone   StreamEventType = "message.done"
	EventToolResult    StreamEventType = "tool.result"
)

// Lifecycle events track the chat completion as a whole. Exactly one
// terminal event (completed, incomplete, failed, or cancelled) ends a stream.
const (
	EventChatCreated    StreamEventType = "chat.created"
	EventChatCompleted  StreamEventType = "chat.completed"
	EventChatIncomplete StreamEventType = "chat.incomplete"
	EventChatFailed     StreamEventType = "chat.failed"
	EventChatCancelled  StreamEventType = "chat.cancelled"
)

// StreamEvent is a single server-sent event in a streaming chat response.
// Fields are populated according to Type: deltas carry Delta (and, for tool
// calls, the call identity), message.done carries the finished Message,
// terminal events carry the full Response.
type StreamEvent struct {
	Type           StreamEventType `json:"type"`
	SequenceNumber int             `json:"sequence_number"`
	Delta          string          `json:"delta,omitempty"`
	CallID         string          `json:"call_id,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolCall       *ToolCall       `json:"tool_call,omitempty"`
	Message        *Message        `json:"message,omitempty"`
	Response       *ChatResponse   `json:"response,omitempty"`
	Turn           int             `json:"turn,omitempty"`
}

// IsTerminal reports whether the event type ends a stream.
func (t StreamEventType) IsTerminal() bool {
	switch t {
	case EventChatCompleted, EventChatIncomplete, EventChatFailed, EventChatCancelled:
		return true
	}
	return false
}
