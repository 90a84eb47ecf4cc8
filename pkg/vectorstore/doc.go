// Package vectorstore provides similarity search over embedded documents.
// Four backends share one Store interface: an in-memory brute-force index,
// PostgreSQL with the pgvector extension, the Qdrant HTTP API, and an
// embedded BadgerDB index. Scores are cosine similarity, higher is closer.
package vectorstore
