package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"opsagent.app/history/core/db"
	"opsagent.app/history/internal/model"
)

type conversationStore struct {
	db *db.DB
}

// NewConversationStore returns a Postgres-backed ConversationStore.
func NewConversationStore(database *db.DB) ConversationStore {
	return &conversationStore{db: database}
}

const listConversationsSQL = `
SELECT conversation_id, owner_display_name, title, model, created_at, last_modified
FROM conversations
WHERE owner_id = $1 AND last_modified >= $2
ORDER BY last_modified DESC`

func (s *conversationStore) List(ctx context.Context, ownerID string, window time.Duration) ([]model.ConversationSummary, error) {
	cutoff := time.Now().UTC().Add(-window)

	rows, err := s.db.Pool().Query(ctx, listConversationsSQL, ownerID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var summaries []model.ConversationSummary
	for rows.Next() {
		var sum model.ConversationSummary
		if err := rows.Scan(&sum.ID, &sum.OwnerName, &sum.Title, &sum.Model, &sum.CreatedAt, &sum.LastModified); err != nil {
			return nil, fmt.Errorf("scanning conversation summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading conversation summaries: %w", err)
	}
	return summaries, nil
}

const getConversationSQL = `
SELECT conversation_id, owner_id, owner_display_name, title, model, created_at, last_modified
FROM conversations
WHERE conversation_id = $1 AND owner_id = $2`

const getMessagesSQL = `
SELECT sequence_number, role, content, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY sequence_number ASC`

func (s *conversationStore) Get(ctx context.Context, conversationID, ownerID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.Pool().QueryRow(ctx, getConversationSQL, conversationID, ownerID).Scan(
		&conv.ID,
		&conv.OwnerID,
		&conv.OwnerName,
		&conv.Title,
		&conv.Model,
		&conv.CreatedAt,
		&conv.LastModified,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting conversation: %w", err)
	}

	rows, err := s.db.Pool().Query(ctx, getMessagesSQL, conversationID)
	if err != nil {
		return nil, fmt.Errorf("getting messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.Seq, &msg.Role, &msg.Content, &msg.Time); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}
	return &conv, nil
}

// The upsert only applies when the stored owner matches, so a save against
// someone else's conversation falls out as ErrNoRows. created_at is never
// overwritten and last_modified never moves backwards.
const upsertConversationSQL = `
INSERT INTO conversations (conversation_id, owner_id, owner_display_name, title, model, created_at, last_modified)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (conversation_id) DO UPDATE SET
    owner_display_name = EXCLUDED.owner_display_name,
    title              = EXCLUDED.title,
    model              = EXCLUDED.model,
    last_modified      = GREATEST(conversations.last_modified, EXCLUDED.last_modified)
WHERE conversations.owner_id = EXCLUDED.owner_id
RETURNING created_at, last_modified`

const deleteMessagesSQL = `DELETE FROM messages WHERE conversation_id = $1`

const insertMessageSQL = `
INSERT INTO messages (conversation_id, sequence_number, role, content, created_at)
VALUES ($1, $2, $3, $4, $5)`

func (s *conversationStore) Save(ctx context.Context, conv *model.Conversation) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, upsertConversationSQL,
			conv.ID,
			conv.OwnerID,
			conv.OwnerName,
			conv.Title,
			conv.Model,
			conv.CreatedAt,
			conv.LastModified,
		).Scan(&conv.CreatedAt, &conv.LastModified)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("upserting conversation: %w", err)
		}

		// Full rewrite: message volume per conversation is small, and
		// delete-then-reinsert inside the transaction keeps the
		// (conversation_id, sequence_number) run contiguous.
		if _, err := tx.Exec(ctx, deleteMessagesSQL, conv.ID); err != nil {
			return fmt.Errorf("clearing messages: %w", err)
		}

		if len(conv.Messages) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i := range conv.Messages {
			conv.Messages[i].Seq = i
			msg := conv.Messages[i]
			batch.Queue(insertMessageSQL, conv.ID, msg.Seq, msg.Role, msg.Content, msg.Time)
		}

		results := tx.SendBatch(ctx, batch)
		for range conv.Messages {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("inserting message: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("closing message batch: %w", err)
		}
		return nil
	})
}

const deleteConversationSQL = `
DELETE FROM conversations WHERE conversation_id = $1 AND owner_id = $2`

func (s *conversationStore) Delete(ctx context.Context, conversationID, ownerID string) error {
	// Messages cascade. Zero rows affected means absent or not owned; both
	// are fine, deletes are idempotent.
	if _, err := s.db.Pool().Exec(ctx, deleteConversationSQL, conversationID, ownerID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

const listActiveOwnersSQL = `
SELECT DISTINCT owner_id FROM conversations WHERE last_modified >= $1`

func (s *conversationStore) ListActiveOwners(ctx context.Context, window time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-window)

	rows, err := s.db.Pool().Query(ctx, listActiveOwnersSQL, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing active owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("scanning owner: %w", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading owners: %w", err)
	}
	return owners, nil
}
