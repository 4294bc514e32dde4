package model

import (
	"strings"
	"time"
)

// Message roles. Anything else is rejected before a save touches storage.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ValidRole reports whether role is one of the accepted message roles.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant || role == RoleSystem
}

// Message is a single entry in a conversation transcript. Seq is the
// zero-based position in the conversation and defines the total order,
// independent of Time.
type Message struct {
	Seq     int       `json:"seq"`
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// Conversation is the full record including its transcript. ID, OwnerID and
// CreatedAt are immutable once the conversation exists.
type Conversation struct {
	ID           string    `json:"conversation_id"`
	OwnerID      string    `json:"owner_id"`
	OwnerName    string    `json:"owner_display_name,omitempty"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
	Messages     []Message `json:"messages"`
}

// Summary returns the metadata projection of the conversation, without
// message bodies.
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		OwnerName:    c.OwnerName,
		Title:        c.Title,
		Model:        c.Model,
		CreatedAt:    c.CreatedAt,
		LastModified: c.LastModified,
	}
}

// ConversationSummary is what conversation listings are made of. Message
// bodies are lazy-loaded separately.
type ConversationSummary struct {
	ID           string    `json:"conversation_id"`
	OwnerName    string    `json:"owner_display_name,omitempty"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// Identity is the pre-authenticated caller identity supplied per request.
// OwnerID is an opaque stable key (e.g. an identity-provider subject GUID);
// DisplayName is for audit/display only and never used for authorization.
type Identity struct {
	OwnerID     string
	DisplayName string
}

const maxTitleLen = 28

// TitleFromMessage derives a short single-line conversation title from the
// first user message, the way the chat UI names a fresh conversation.
func TitleFromMessage(msg string) string {
	trimmed := strings.Join(strings.Fields(msg), " ")
	if trimmed == "" {
		return "New chat"
	}
	runes := []rune(trimmed)
	if len(runes) > maxTitleLen+1 {
		return strings.TrimRight(string(runes[:maxTitleLen]), " ") + "…"
	}
	return trimmed
}
