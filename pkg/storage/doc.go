// Package storage provides utilities shared across conversation store
// implementations: sentinel errors and tenant context helpers.
//
// Store backends (memory, postgres) implement the
// transport.ConversationStore interface defined in pkg/transport. This
// package contains only shared types and helpers, not the interface
// itself.
package storage
