package handler_test

import (
	"context"

	"opsagent.app/history/internal/model"
)

// mockHistoryService implements history.Service with overridable functions.
type mockHistoryService struct {
	listFn   func(ctx context.Context, ident model.Identity) ([]model.ConversationSummary, error)
	getFn    func(ctx context.Context, conversationID string, ident model.Identity) (*model.Conversation, error)
	createFn func(ctx context.Context, ident model.Identity, modelName string) (*model.Conversation, error)
	saveFn   func(ctx context.Context, ident model.Identity, conv *model.Conversation) error
	deleteFn func(ctx context.Context, conversationID string, ident model.Identity) error
}

func (m *mockHistoryService) ListConversations(ctx context.Context, ident model.Identity) ([]model.ConversationSummary, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ident)
	}
	return nil, nil
}

func (m *mockHistoryService) GetConversation(ctx context.Context, conversationID string, ident model.Identity) (*model.Conversation, error) {
	if m.getFn != nil {
		return m.getFn(ctx, conversationID, ident)
	}
	return &model.Conversation{ID: conversationID, OwnerID: ident.OwnerID}, nil
}

func (m *mockHistoryService) CreateConversation(ctx context.Context, ident model.Identity, modelName string) (*model.Conversation, error) {
	if m.createFn != nil {
		return m.createFn(ctx, ident, modelName)
	}
	return &model.Conversation{ID: "generated-id", OwnerID: ident.OwnerID, Model: modelName, Title: "New chat"}, nil
}

func (m *mockHistoryService) SaveConversation(ctx context.Context, ident model.Identity, conv *model.Conversation) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, ident, conv)
	}
	return nil
}

func (m *mockHistoryService) DeleteConversation(ctx context.Context, conversationID string, ident model.Identity) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, conversationID, ident)
	}
	return nil
}
