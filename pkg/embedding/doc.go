// Package embedding defines the text embedding abstraction used by the
// gateway's /v1/embeddings endpoint and the vector store ingestion path.
// OpenAIEmbedder and OllamaEmbedder adapt the provider clients; Batcher
// fans large inputs out over a worker pool while preserving input order.
package embedding
