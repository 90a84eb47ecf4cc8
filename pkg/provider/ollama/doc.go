// Package ollama adapts a local Ollama server to the Provider interface
// using its native API: /api/chat streams newline-delimited JSON instead
// of SSE, /api/tags lists installed models, and /api/embed serves
// embeddings.
package ollama
