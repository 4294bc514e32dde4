package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"opsagent.app/history/common/id"
	"opsagent.app/history/common/logger"
	"opsagent.app/history/internal/cache"
	"opsagent.app/history/internal/model"
	"opsagent.app/history/internal/store"
)

// Service is the single entry point for conversation history. It fronts the
// durable store with an optional write-through cache: reads are cache-aside,
// writes hit Postgres first and update the cache opportunistically. Cache
// failures degrade to slower-but-correct; they never fail an operation.
//
// Not-found and not-owned are indistinguishable by design: both come back as
// store.ErrNotFound.
type Service interface {
	// ListConversations returns the caller's conversations modified within
	// the retention window, most recently modified first.
	ListConversations(ctx context.Context, ident model.Identity) ([]model.ConversationSummary, error)

	// GetConversation returns the full conversation with messages in
	// sequence order.
	GetConversation(ctx context.Context, conversationID string, ident model.Identity) (*model.Conversation, error)

	// CreateConversation creates and persists a fresh empty conversation
	// with a server-assigned ID.
	CreateConversation(ctx context.Context, ident model.Identity, modelName string) (*model.Conversation, error)

	// SaveConversation validates and persists the conversation (metadata plus
	// the full message set), then updates the cache best-effort.
	SaveConversation(ctx context.Context, ident model.Identity, conv *model.Conversation) error

	// DeleteConversation removes the conversation everywhere. Idempotent.
	DeleteConversation(ctx context.Context, conversationID string, ident model.Identity) error
}

type Config struct {
	// WindowDays bounds listings to recently modified conversations.
	WindowDays int
}

type service struct {
	store  store.ConversationStore
	cache  cache.HistoryCache // nil when running without a cache
	window time.Duration
}

// NewService builds the orchestrator. hc may be nil to run in the
// Postgres-only mode; every operation then skips the cache entirely.
func NewService(cs store.ConversationStore, hc cache.HistoryCache, cfg Config) Service {
	days := cfg.WindowDays
	if days <= 0 {
		days = 7
	}
	return &service{
		store:  cs,
		cache:  hc,
		window: time.Duration(days) * 24 * time.Hour,
	}
}

// cacheUp reports whether the cache should be consulted for this request.
// A slow or down Redis fails open to "unavailable" here and the operation
// proceeds against Postgres alone.
func (s *service) cacheUp(ctx context.Context) bool {
	return s.cache != nil && s.cache.Available(ctx)
}

func (s *service) ListConversations(ctx context.Context, ident model.Identity) ([]model.ConversationSummary, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "history.orchestrator",
		OwnerID:   logger.Ptr(ident.OwnerID),
	})

	cacheUp := s.cacheUp(ctx)
	if cacheUp {
		summaries, ok, err := s.cache.GetList(ctx, ident.OwnerID)
		if err != nil {
			slog.WarnContext(ctx, "cache list read failed, falling back to store", "error", err)
		} else if ok {
			return summaries, nil
		}
	}

	summaries, err := s.store.List(ctx, ident.OwnerID, s.window)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	if cacheUp {
		if err := s.cache.PutList(ctx, ident.OwnerID, summaries); err != nil {
			slog.WarnContext(ctx, "cache list populate failed", "error", err)
		}
	}

	return summaries, nil
}

func (s *service) GetConversation(ctx context.Context, conversationID string, ident model.Identity) (*model.Conversation, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component:      "history.orchestrator",
		ConversationID: logger.Ptr(conversationID),
		OwnerID:        logger.Ptr(ident.OwnerID),
	})

	cacheUp := s.cacheUp(ctx)
	if cacheUp {
		conv, ok, err := s.cache.GetConversation(ctx, conversationID, ident.OwnerID)
		if err != nil {
			slog.WarnContext(ctx, "cache read failed, falling back to store", "error", err)
		} else if ok {
			return conv, nil
		}
	}

	conv, err := s.store.Get(ctx, conversationID, ident.OwnerID)
	if err != nil {
		// store.ErrNotFound passes through untouched: absent and not-owned
		// look identical to the caller.
		return nil, err
	}

	if cacheUp {
		if err := s.cache.PutMessages(ctx, conversationID, conv.Messages); err != nil {
			slog.WarnContext(ctx, "cache message populate failed", "error", err)
		}
	}

	return conv, nil
}

func (s *service) CreateConversation(ctx context.Context, ident model.Identity, modelName string) (*model.Conversation, error) {
	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:           id.NewString(),
		OwnerID:      ident.OwnerID,
		OwnerName:    ident.DisplayName,
		Title:        "New chat",
		Model:        modelName,
		CreatedAt:    now,
		LastModified: now,
	}
	if err := s.SaveConversation(ctx, ident, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *service) SaveConversation(ctx context.Context, ident model.Identity, conv *model.Conversation) error {
	if conv != nil {
		// The authenticated identity decides ownership; whatever the payload
		// carried is overwritten before validation.
		conv.OwnerID = ident.OwnerID
		if ident.DisplayName != "" {
			conv.OwnerName = ident.DisplayName
		}
	}
	if err := validateConversation(conv); err != nil {
		return err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component:      "history.orchestrator",
		ConversationID: logger.Ptr(conv.ID),
		OwnerID:        logger.Ptr(conv.OwnerID),
	})

	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.LastModified.IsZero() {
		conv.LastModified = now
	}
	for i := range conv.Messages {
		if conv.Messages[i].Time.IsZero() {
			conv.Messages[i].Time = now
		}
	}
	if conv.Title == "" {
		conv.Title = titleFor(conv)
	}

	// Postgres first: a store failure is fatal and no cache write happens.
	if err := s.store.Save(ctx, conv); err != nil {
		return err
	}

	if s.cacheUp(ctx) {
		s.writeThrough(ctx, conv)
	}

	return nil
}

// writeThrough pushes the just-saved conversation into the cache. Appends
// only the message delta when the transcript strictly grew from the cached
// length; everything else, equal-length rewrites included, falls back to a
// full rewrite, and any partial failure ends in invalidation rather than
// leaving an inconsistent entry behind until the TTL expires.
func (s *service) writeThrough(ctx context.Context, conv *model.Conversation) {
	cached, err := s.cache.MessageCount(ctx, conv.ID)
	if err != nil {
		slog.WarnContext(ctx, "cache introspection failed", "error", err)
		s.invalidate(ctx, conv.OwnerID, conv.ID)
		return
	}

	switch {
	case cached > 0 && cached < len(conv.Messages):
		ok, err := s.cache.AppendMessages(ctx, conv.ID, conv.Messages[cached:], cached)
		if err != nil {
			slog.WarnContext(ctx, "cache append failed", "error", err)
			s.invalidate(ctx, conv.OwnerID, conv.ID)
			return
		}
		if !ok {
			if err := s.cache.PutMessages(ctx, conv.ID, conv.Messages); err != nil {
				slog.WarnContext(ctx, "cache rewrite failed", "error", err)
				s.invalidate(ctx, conv.OwnerID, conv.ID)
				return
			}
		}
	default:
		// Nothing cached, a shrunken transcript, or an equal-length rewrite
		// whose content a length check cannot vouch for. Rewrite wholesale so
		// a read right after the save never serves the pre-save messages.
		if err := s.cache.PutMessages(ctx, conv.ID, conv.Messages); err != nil {
			slog.WarnContext(ctx, "cache rewrite failed", "error", err)
			s.invalidate(ctx, conv.OwnerID, conv.ID)
			return
		}
	}

	if err := s.cache.UpsertSummary(ctx, conv.OwnerID, conv.Summary()); err != nil {
		slog.WarnContext(ctx, "cache summary upsert failed", "error", err)
		s.invalidate(ctx, conv.OwnerID, conv.ID)
	}
}

func (s *service) DeleteConversation(ctx context.Context, conversationID string, ident model.Identity) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component:      "history.orchestrator",
		ConversationID: logger.Ptr(conversationID),
		OwnerID:        logger.Ptr(ident.OwnerID),
	})

	if err := s.store.Delete(ctx, conversationID, ident.OwnerID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	if s.cacheUp(ctx) {
		s.invalidate(ctx, ident.OwnerID, conversationID)
	}

	return nil
}

func (s *service) invalidate(ctx context.Context, ownerID, conversationID string) {
	if err := s.cache.Invalidate(ctx, ownerID, conversationID); err != nil {
		slog.WarnContext(ctx, "cache invalidation failed, entry expires with TTL", "error", err)
	}
}

func titleFor(conv *model.Conversation) string {
	for _, msg := range conv.Messages {
		if msg.Role == model.RoleUser {
			return model.TitleFromMessage(msg.Content)
		}
	}
	return "New chat"
}
