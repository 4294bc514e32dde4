package store

import (
	"context"
	"errors"
	"time"

	"opsagent.app/history/internal/model"
)

// ErrNotFound is returned when a requested conversation does not exist or is
// not owned by the caller. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("not found")

// ConversationStore defines the contract for durable conversation storage.
// It is the source of truth; the cache layer is never authoritative.
type ConversationStore interface {
	// List returns summaries of the owner's conversations modified within the
	// window, most recently modified first.
	List(ctx context.Context, ownerID string, window time.Duration) ([]model.ConversationSummary, error)

	// Get returns the full conversation with messages in sequence order, or
	// ErrNotFound when absent or owned by someone else.
	Get(ctx context.Context, conversationID, ownerID string) (*model.Conversation, error)

	// Save upserts conversation metadata and replaces the message set in a
	// single transaction. Sequence numbers are assigned from list position.
	// CreatedAt and LastModified are written back into conv with the values
	// the store settled on. Returns ErrNotFound when the conversation exists
	// under a different owner.
	Save(ctx context.Context, conv *model.Conversation) error

	// Delete removes the conversation and its messages. Deleting a missing or
	// non-owned conversation is a no-op, not an error.
	Delete(ctx context.Context, conversationID, ownerID string) error

	// ListActiveOwners returns the distinct owners with conversations
	// modified within the window. Used by the cache reconciler.
	ListActiveOwners(ctx context.Context, window time.Duration) ([]string, error)
}
