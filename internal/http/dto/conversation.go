package dto

import (
	"time"

	"opsagent.app/history/internal/model"
)

type CreateConversationRequest struct {
	Model string `json:"model"`
}

type SaveConversationRequest struct {
	Title    string           `json:"title"`
	Model    string           `json:"model"`
	Messages []MessageRequest `json:"messages"`
}

type MessageRequest struct {
	Role    string     `json:"role" binding:"required"`
	Content string     `json:"content"`
	Time    *time.Time `json:"time,omitempty"`
}

// ToModel builds the conversation the orchestrator persists. Sequence
// numbers come from list position; the identity layer owns owner fields.
func (r SaveConversationRequest) ToModel(conversationID string) *model.Conversation {
	conv := &model.Conversation{
		ID:       conversationID,
		Title:    r.Title,
		Model:    r.Model,
		Messages: make([]model.Message, 0, len(r.Messages)),
	}
	for i, msg := range r.Messages {
		m := model.Message{
			Seq:     i,
			Role:    msg.Role,
			Content: msg.Content,
		}
		if msg.Time != nil {
			m.Time = *msg.Time
		}
		conv.Messages = append(conv.Messages, m)
	}
	return conv
}

type MessageResponse struct {
	Seq     int       `json:"seq"`
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

type ConversationResponse struct {
	ConversationID string            `json:"conversation_id"`
	Title          string            `json:"title"`
	Model          string            `json:"model"`
	CreatedAt      time.Time         `json:"created_at"`
	LastModified   time.Time         `json:"last_modified"`
	Messages       []MessageResponse `json:"messages"`
}

type ConversationSummaryResponse struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	Model          string    `json:"model"`
	CreatedAt      time.Time `json:"created_at"`
	LastModified   time.Time `json:"last_modified"`
}

func ToConversationResponse(conv *model.Conversation) ConversationResponse {
	resp := ConversationResponse{
		ConversationID: conv.ID,
		Title:          conv.Title,
		Model:          conv.Model,
		CreatedAt:      conv.CreatedAt,
		LastModified:   conv.LastModified,
		Messages:       make([]MessageResponse, 0, len(conv.Messages)),
	}
	for _, msg := range conv.Messages {
		resp.Messages = append(resp.Messages, MessageResponse{
			Seq:     msg.Seq,
			Role:    msg.Role,
			Content: msg.Content,
			Time:    msg.Time,
		})
	}
	return resp
}

func ToSummaryResponses(summaries []model.ConversationSummary) []ConversationSummaryResponse {
	out := make([]ConversationSummaryResponse, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, ConversationSummaryResponse{
			ConversationID: sum.ID,
			Title:          sum.Title,
			Model:          sum.Model,
			CreatedAt:      sum.CreatedAt,
			LastModified:   sum.LastModified,
		})
	}
	return out
}
