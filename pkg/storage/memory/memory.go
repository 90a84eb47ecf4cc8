// Package memory provides an in-memory implementation of
// transport.ConversationStore for testing and lightweight deployments.
// Conversations are lost when the process restarts. Optional LRU eviction
// limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/storage"
	"github.com/openconduit/conduit/pkg/transport"
)

// entry holds a stored conversation and its metadata.
type entry struct {
	conv      *api.Conversation
	tenantID  string
	deletedAt *time.Time
	lruElem   *list.Element
}

// Store is an in-memory ConversationStore with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

var _ transport.ConversationStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently used conversation is
// evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// AppendMessages adds messages to a conversation, creating it on first
// use. Appending to a soft-deleted conversation returns ErrNotFound.
func (s *Store) AppendMessages(ctx context.Context, id, model string, messages []api.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenantID := storage.GetTenant(ctx)
	now := time.Now()

	e, ok := s.entries[id]
	if ok {
		if e.deletedAt != nil {
			return storage.ErrNotFound
		}
		if tenantID != "" && e.tenantID != tenantID {
			return storage.ErrNotFound
		}
		e.conv.Messages = append(e.conv.Messages, messages...)
		e.conv.UpdatedAt = now.Unix()
		s.lruList.MoveToFront(e.lruElem)
		return nil
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(id)
	s.entries[id] = &entry{
		conv: &api.Conversation{
			ID:        id,
			Object:    "conversation",
			Model:     model,
			Messages:  append([]api.Message(nil), messages...),
			CreatedAt: now.Unix(),
			UpdatedAt: now.Unix(),
		},
		tenantID: tenantID,
		lruElem:  elem,
	}
	return nil
}

// GetConversation retrieves a conversation by ID. Scoped by tenant when a
// tenant is present in the context.
func (s *Store) GetConversation(ctx context.Context, id string) (*api.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || e.deletedAt != nil {
		return nil, storage.ErrNotFound
	}

	tenantID := storage.GetTenant(ctx)
	if tenantID != "" && e.tenantID != tenantID {
		return nil, storage.ErrNotFound
	}

	return e.conv, nil
}

// DeleteConversation soft-deletes a conversation.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.deletedAt != nil {
		return storage.ErrNotFound
	}

	tenantID := storage.GetTenant(ctx)
	if tenantID != "" && e.tenantID != tenantID {
		return storage.ErrNotFound
	}

	now := time.Now()
	e.deletedAt = &now
	return nil
}

// ListConversations returns a paginated list filtered by tenant and
// optionally by model, with cursor-based pagination.
func (s *Store) ListConversations(ctx context.Context, opts transport.ListOptions) (*transport.ConversationList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID := storage.GetTenant(ctx)

	var matches []*api.Conversation
	for _, e := range s.entries {
		if e.deletedAt != nil {
			continue
		}
		if tenantID != "" && e.tenantID != tenantID {
			continue
		}
		if opts.Model != "" && e.conv.Model != opts.Model {
			continue
		}
		matches = append(matches, e.conv)
	}

	// Sort by created_at. Default is desc (newest first). IDs break ties
	// so the cursor order is stable.
	asc := opts.Order == "asc"
	sort.Slice(matches, func(i, j int) bool {
		if asc {
			if matches[i].CreatedAt != matches[j].CreatedAt {
				return matches[i].CreatedAt < matches[j].CreatedAt
			}
			return matches[i].ID < matches[j].ID
		}
		if matches[i].CreatedAt != matches[j].CreatedAt {
			return matches[i].CreatedAt > matches[j].CreatedAt
		}
		return matches[i].ID > matches[j].ID
	})

	if opts.After != "" {
		idx := -1
		for i, c := range matches {
			if c.ID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
	} else if opts.Before != "" {
		idx := -1
		for i, c := range matches {
			if c.ID == opts.Before {
				idx = i
				break
			}
		}
		if idx > 0 {
			matches = matches[:idx]
		} else {
			matches = nil
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	hasMore := len(matches) > limit
	if hasMore {
		matches = matches[:limit]
	}

	result := &transport.ConversationList{
		Object:  "list",
		Data:    matches,
		HasMore: hasMore,
	}
	if len(matches) > 0 {
		result.FirstID = matches[0].ID
		result.LastID = matches[len(matches)-1].ID
	}
	if result.Data == nil {
		result.Data = []*api.Conversation{}
	}
	return result, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
