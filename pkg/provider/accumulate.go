package provider

import (
	"sort"
	"strings"

	"github.com/openconduit/conduit/pkg/api"
)

// Accumulator merges a stream of Events back into a complete Response.
// Text deltas are concatenated, tool call fragments are assembled per
// index, and completion identity (ID, model, created) is taken from the
// first event that carries it. The tool loop uses an Accumulator to
// observe tool calls on streamed turns without buffering the raw stream.
//
// An Accumulator is not safe for concurrent use; feed it from the single
// goroutine draining the event channel.
type Accumulator struct {
	id      string
	model   string
	created int64

	text   strings.Builder
	calls  map[int]*callState
	finish api.FinishReason
	usage  *api.Usage
	err    error
}

type callState struct {
	id   string
	name string
	args strings.Builder
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{calls: make(map[int]*callState)}
}

// Add folds one event into the accumulated state.
func (a *Accumulator) Add(ev Event) {
	if a.id == "" && ev.ID != "" {
		a.id = ev.ID
	}
	if a.model == "" && ev.Model != "" {
		a.model = ev.Model
	}
	if a.created == 0 && ev.Created != 0 {
		a.created = ev.Created
	}

	switch ev.Type {
	case EventTextDelta:
		a.text.WriteString(ev.Delta)

	case EventToolCallDelta:
		cs := a.call(ev.ToolCallIndex)
		if cs.id == "" {
			cs.id = ev.ToolCallID
		}
		if cs.name == "" {
			cs.name = ev.FunctionName
		}
		cs.args.WriteString(ev.Delta)

	case EventToolCallDone:
		// Done events carry the full argument string. Replace whatever
		// fragments were accumulated so both delta-only and done-only
		// backends produce the same result.
		cs := a.call(ev.ToolCallIndex)
		if cs.id == "" {
			cs.id = ev.ToolCallID
		}
		if cs.name == "" {
			cs.name = ev.FunctionName
		}
		if ev.Delta != "" {
			cs.args.Reset()
			cs.args.WriteString(ev.Delta)
		}

	case EventDone:
		if ev.FinishReason != "" {
			a.finish = ev.FinishReason
		}
		if ev.Usage != nil {
			if a.usage == nil {
				a.usage = &api.Usage{}
			}
			*a.usage = *ev.Usage
		}

	case EventError:
		if a.err == nil {
			a.err = ev.Err
		}
	}
}

func (a *Accumulator) call(index int) *callState {
	cs, ok := a.calls[index]
	if !ok {
		cs = &callState{}
		a.calls[index] = cs
	}
	return cs
}

// Err returns the stream error, if any event reported one.
func (a *Accumulator) Err() error {
	return a.err
}

// Response assembles the accumulated state into a normalized Response.
// Tool calls are ordered by their stream index. Calls that arrived
// without an ID get a generated one so tool results can reference them.
func (a *Accumulator) Response() *Response {
	msg := api.Message{
		Role:    api.RoleAssistant,
		Content: a.text.String(),
	}

	if len(a.calls) > 0 {
		indexes := make([]int, 0, len(a.calls))
		for idx := range a.calls {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)
		for _, idx := range indexes {
			cs := a.calls[idx]
			id := cs.id
			if id == "" {
				id = api.NewToolCallID()
			}
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
				ID:   id,
				Type: "function",
				Function: api.FunctionCall{
					Name:      cs.name,
					Arguments: cs.args.String(),
				},
			})
		}
	}

	finish := a.finish
	if finish == "" {
		if len(msg.ToolCalls) > 0 {
			finish = api.FinishToolCalls
		} else {
			finish = api.FinishStop
		}
	}

	resp := &Response{
		ID:           a.id,
		Model:        a.model,
		Created:      a.created,
		Message:      msg,
		FinishReason: finish,
	}
	if a.usage != nil {
		resp.Usage = *a.usage
	}
	return resp
}

// Drain consumes the whole event channel into an Accumulator and returns
// the assembled response. It returns the stream error if one occurred.
func Drain(events <-chan Event) (*Response, error) {
	acc := NewAccumulator()
	for ev := range events {
		acc.Add(ev)
	}
	if err := acc.Err(); err != nil {
		return nil, err
	}
	return acc.Response(), nil
}
