// Package openaicompat adapts any OpenAI-compatible Chat Completions
// backend (OpenAI, vLLM, LiteLLM, LM Studio, OpenRouter) to the Provider
// interface. Backends that serve Chat Completions but rewrite model names
// can hook ModelMapper instead of needing their own adapter.
package openaicompat
