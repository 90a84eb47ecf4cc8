// Package anthropic adapts the Anthropic Messages API to the Provider
// interface. The Messages API differs from Chat Completions in three ways
// this package absorbs: authentication uses x-api-key plus a pinned
// anthropic-version header, assistant output is a list of typed content
// blocks rather than a message with a tool_calls array, and streaming uses
// named SSE events (message_start, content_block_delta, message_stop)
// instead of uniform chunks with a [DONE] sentinel.
package anthropic
