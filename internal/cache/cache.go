package cache

import (
	"context"

	"opsagent.app/history/internal/model"
)

// HistoryCache is the best-effort accelerator in front of the durable store.
// Entries are TTL-bounded projections of Postgres rows: a miss never means the
// conversation does not exist, and no operation here is ever authoritative.
//
// Implementations report failures as errors for the orchestrator to log; they
// must never be surfaced to callers as operation failures.
type HistoryCache interface {
	// Available reports whether the cache backend is currently reachable.
	Available(ctx context.Context) bool

	// GetList returns the owner's cached summary list, most recently modified
	// first. The second return is false on a miss. Reading refreshes the TTL.
	GetList(ctx context.Context, ownerID string) ([]model.ConversationSummary, bool, error)

	// PutList replaces the owner's cached summary list.
	PutList(ctx context.Context, ownerID string, summaries []model.ConversationSummary) error

	// GetConversation returns the cached conversation only when a metadata
	// entry for it exists under ownerID, so mis-scoped keys can never leak
	// another owner's messages. False on a miss.
	GetConversation(ctx context.Context, conversationID, ownerID string) (*model.Conversation, bool, error)

	// PutMessages replaces the cached message sequence for a conversation.
	PutMessages(ctx context.Context, conversationID string, msgs []model.Message) error

	// UpsertSummary updates the single metadata entry for a conversation in
	// the owner's list. It never creates a partial list where none is cached,
	// and never produces duplicate entries for one conversation.
	UpsertSummary(ctx context.Context, ownerID string, sum model.ConversationSummary) error

	// AppendMessages appends msgs to the cached sequence when exactly
	// startSeq messages are cached. Returns false when the cached length
	// does not line up; the caller then falls back to a full rewrite.
	AppendMessages(ctx context.Context, conversationID string, msgs []model.Message, startSeq int) (bool, error)

	// MessageCount returns the number of cached messages (0 when absent).
	MessageCount(ctx context.Context, conversationID string) (int, error)

	// Invalidate removes both the metadata entry and the message sequence.
	Invalidate(ctx context.Context, ownerID, conversationID string) error
}
