// Package postgres provides a PostgreSQL implementation of
// transport.ConversationStore. It uses pgx/v5 for connection pooling and
// stores message history as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/storage"
	"github.com/openconduit/conduit/pkg/transport"
)

// Store is a PostgreSQL-backed ConversationStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ transport.ConversationStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// AppendMessages adds messages to a conversation, creating it on first
// use. Appends to a soft-deleted or foreign-tenant conversation return
// storage.ErrNotFound.
func (s *Store) AppendMessages(ctx context.Context, id, model string, messages []api.Message) error {
	tenantID := storage.GetTenant(ctx)

	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Live row first: JSONB array concatenation appends in order.
	query := `
		UPDATE conversations
		SET messages = messages || $2::jsonb, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`
	args := []any{id, messagesJSON}
	if tenantID != "" {
		query += " AND tenant_id = $3"
		args = append(args, tenantID)
	}
	result, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("appending messages: %w", err)
	}

	if result.RowsAffected() == 0 {
		// No live row. Creating one fails on conflict when the ID exists
		// as deleted or under another tenant, which maps to not-found.
		result, err = tx.Exec(ctx, `
			INSERT INTO conversations (id, tenant_id, model, messages)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`, id, tenantID, model, messagesJSON)
		if err != nil {
			return fmt.Errorf("creating conversation: %w", err)
		}
		if result.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
	}

	return tx.Commit(ctx)
}

// GetConversation retrieves a conversation by ID, excluding soft-deleted
// rows. Scoped by tenant when a tenant is present in the context.
func (s *Store) GetConversation(ctx context.Context, id string) (*api.Conversation, error) {
	tenantID := storage.GetTenant(ctx)

	var (
		conv         api.Conversation
		messagesJSON []byte
		createdAt    time.Time
		updatedAt    time.Time
	)
	query := `
		SELECT id, model, messages, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND deleted_at IS NULL
	`
	args := []any{id}
	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}
	err := s.pool.QueryRow(ctx, query, args...).Scan(&conv.ID, &conv.Model, &messagesJSON, &createdAt, &updatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	if err := json.Unmarshal(messagesJSON, &conv.Messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}

	conv.Object = "conversation"
	conv.CreatedAt = createdAt.Unix()
	conv.UpdatedAt = updatedAt.Unix()
	return &conv, nil
}

// ListConversations returns a paginated list scoped by tenant and
// optionally filtered by model. Cursor pagination orders by
// (created_at, id) so same-second rows page deterministically.
func (s *Store) ListConversations(ctx context.Context, opts transport.ListOptions) (*transport.ConversationList, error) {
	tenantID := storage.GetTenant(ctx)

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	asc := opts.Order == "asc"

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, model, messages, created_at, updated_at
		FROM conversations
		WHERE deleted_at IS NULL
	`)
	var args []any
	if tenantID != "" {
		args = append(args, tenantID)
		fmt.Fprintf(&sb, " AND tenant_id = $%d", len(args))
	}

	if opts.Model != "" {
		args = append(args, opts.Model)
		fmt.Fprintf(&sb, " AND model = $%d", len(args))
	}

	cursorID := opts.After
	if cursorID == "" {
		cursorID = opts.Before
	}
	if cursorID != "" {
		// After moves in the sort direction, Before against it.
		op := "<"
		if asc == (opts.After != "") {
			op = ">"
		}
		args = append(args, cursorID)
		fmt.Fprintf(&sb, ` AND (created_at, id) %s (
			SELECT created_at, id FROM conversations WHERE id = $%d
		)`, op, len(args))
	}

	dir := "DESC"
	if asc {
		dir = "ASC"
	}
	// Fetch one extra row to detect has_more.
	args = append(args, limit+1)
	fmt.Fprintf(&sb, " ORDER BY created_at %s, id %s LIMIT $%d", dir, dir, len(args))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var matches []*api.Conversation
	for rows.Next() {
		var (
			conv         api.Conversation
			messagesJSON []byte
			createdAt    time.Time
			updatedAt    time.Time
		)
		if err := rows.Scan(&conv.ID, &conv.Model, &messagesJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		if err := json.Unmarshal(messagesJSON, &conv.Messages); err != nil {
			return nil, fmt.Errorf("unmarshaling messages: %w", err)
		}
		conv.Object = "conversation"
		conv.CreatedAt = createdAt.Unix()
		conv.UpdatedAt = updatedAt.Unix()
		matches = append(matches, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading conversations: %w", err)
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

// DeleteConversation soft-deletes a conversation by setting deleted_at.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tenantID := storage.GetTenant(ctx)

	query := `
		UPDATE conversations SET deleted_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`
	args := []any{id}
	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}
	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
