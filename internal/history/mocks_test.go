package history_test

import (
	"context"
	"sort"
	"time"

	"opsagent.app/history/internal/model"
	"opsagent.app/history/internal/store"
)

// memStore is an in-memory ConversationStore with the same observable
// semantics as the Postgres implementation: ownership-scoped reads, seq
// assignment from position, immutable created_at, monotonic last_modified.
type memStore struct {
	conversations map[string]*model.Conversation

	saveErr   error // injected failure for the next Save
	listErr   error
	saveCalls int
}

func newMemStore() *memStore {
	return &memStore{conversations: make(map[string]*model.Conversation)}
}

func (m *memStore) List(_ context.Context, ownerID string, window time.Duration) ([]model.ConversationSummary, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	cutoff := time.Now().UTC().Add(-window)
	var summaries []model.ConversationSummary
	for _, conv := range m.conversations {
		if conv.OwnerID != ownerID || conv.LastModified.Before(cutoff) {
			continue
		}
		summaries = append(summaries, conv.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastModified.After(summaries[j].LastModified)
	})
	return summaries, nil
}

func (m *memStore) Get(_ context.Context, conversationID, ownerID string) (*model.Conversation, error) {
	conv, ok := m.conversations[conversationID]
	if !ok || conv.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return copyConversation(conv), nil
}

func (m *memStore) Save(_ context.Context, conv *model.Conversation) error {
	m.saveCalls++
	if m.saveErr != nil {
		err := m.saveErr
		m.saveErr = nil
		return err
	}
	if existing, ok := m.conversations[conv.ID]; ok {
		if existing.OwnerID != conv.OwnerID {
			return store.ErrNotFound
		}
		conv.CreatedAt = existing.CreatedAt
		if conv.LastModified.Before(existing.LastModified) {
			conv.LastModified = existing.LastModified
		}
	}
	for i := range conv.Messages {
		conv.Messages[i].Seq = i
	}
	m.conversations[conv.ID] = copyConversation(conv)
	return nil
}

func (m *memStore) Delete(_ context.Context, conversationID, ownerID string) error {
	if conv, ok := m.conversations[conversationID]; ok && conv.OwnerID == ownerID {
		delete(m.conversations, conversationID)
	}
	return nil
}

func (m *memStore) ListActiveOwners(_ context.Context, window time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-window)
	seen := make(map[string]bool)
	var owners []string
	for _, conv := range m.conversations {
		if conv.LastModified.Before(cutoff) || seen[conv.OwnerID] {
			continue
		}
		seen[conv.OwnerID] = true
		owners = append(owners, conv.OwnerID)
	}
	return owners, nil
}

func copyConversation(conv *model.Conversation) *model.Conversation {
	dup := *conv
	dup.Messages = append([]model.Message(nil), conv.Messages...)
	return &dup
}

// memCache is an in-memory HistoryCache mirroring the Redis key semantics:
// a per-owner summary map and a per-conversation message list, with
// all-or-miss lists and ownership-verified conversation reads.
type memCache struct {
	available bool
	meta      map[string]map[string]model.ConversationSummary
	msgs      map[string][]model.Message

	getListCalls     int
	putMessagesCalls int
	appendCalls      int
	lastAppendStart  int

	countErr   error // injected failure for the next MessageCount
	upsertErr  error // injected failure for the next UpsertSummary
	appendErr  error
	putListErr error
}

func newMemCache() *memCache {
	return &memCache{
		available: true,
		meta:      make(map[string]map[string]model.ConversationSummary),
		msgs:      make(map[string][]model.Message),
	}
}

func (m *memCache) Available(context.Context) bool {
	return m.available
}

func (m *memCache) GetList(_ context.Context, ownerID string) ([]model.ConversationSummary, bool, error) {
	m.getListCalls++
	entries, ok := m.meta[ownerID]
	if !ok {
		return nil, false, nil
	}
	summaries := make([]model.ConversationSummary, 0, len(entries))
	for _, sum := range entries {
		summaries = append(summaries, sum)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastModified.After(summaries[j].LastModified)
	})
	return summaries, true, nil
}

func (m *memCache) PutList(_ context.Context, ownerID string, summaries []model.ConversationSummary) error {
	if m.putListErr != nil {
		err := m.putListErr
		m.putListErr = nil
		return err
	}
	if len(summaries) == 0 {
		delete(m.meta, ownerID)
		return nil
	}
	entries := make(map[string]model.ConversationSummary, len(summaries))
	for _, sum := range summaries {
		entries[sum.ID] = sum
	}
	m.meta[ownerID] = entries
	return nil
}

func (m *memCache) GetConversation(_ context.Context, conversationID, ownerID string) (*model.Conversation, bool, error) {
	entries, ok := m.meta[ownerID]
	if !ok {
		return nil, false, nil
	}
	sum, ok := entries[conversationID]
	if !ok {
		return nil, false, nil
	}
	msgs, ok := m.msgs[conversationID]
	if !ok || len(msgs) == 0 {
		return nil, false, nil
	}
	return &model.Conversation{
		ID:           conversationID,
		OwnerID:      ownerID,
		OwnerName:    sum.OwnerName,
		Title:        sum.Title,
		Model:        sum.Model,
		CreatedAt:    sum.CreatedAt,
		LastModified: sum.LastModified,
		Messages:     append([]model.Message(nil), msgs...),
	}, true, nil
}

func (m *memCache) PutMessages(_ context.Context, conversationID string, msgs []model.Message) error {
	m.putMessagesCalls++
	if len(msgs) == 0 {
		delete(m.msgs, conversationID)
		return nil
	}
	m.msgs[conversationID] = append([]model.Message(nil), msgs...)
	return nil
}

func (m *memCache) UpsertSummary(_ context.Context, ownerID string, sum model.ConversationSummary) error {
	if m.upsertErr != nil {
		err := m.upsertErr
		m.upsertErr = nil
		return err
	}
	entries, ok := m.meta[ownerID]
	if !ok {
		return nil
	}
	entries[sum.ID] = sum
	return nil
}

func (m *memCache) AppendMessages(_ context.Context, conversationID string, msgs []model.Message, startSeq int) (bool, error) {
	m.appendCalls++
	m.lastAppendStart = startSeq
	if m.appendErr != nil {
		err := m.appendErr
		m.appendErr = nil
		return false, err
	}
	if len(m.msgs[conversationID]) != startSeq {
		return false, nil
	}
	m.msgs[conversationID] = append(m.msgs[conversationID], msgs...)
	return true, nil
}

func (m *memCache) MessageCount(_ context.Context, conversationID string) (int, error) {
	if m.countErr != nil {
		err := m.countErr
		m.countErr = nil
		return 0, err
	}
	return len(m.msgs[conversationID]), nil
}

func (m *memCache) Invalidate(_ context.Context, ownerID, conversationID string) error {
	if entries, ok := m.meta[ownerID]; ok {
		delete(entries, conversationID)
	}
	delete(m.msgs, conversationID)
	return nil
}
