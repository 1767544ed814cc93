package model

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Attachment is a binary payload (typically an image) attached to a
// message, stored base64-encoded.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Data     string `json:"data"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is a single message in a conversation. Sequence defines the
// display order within its conversation and is recomputed on every save.
type Message struct {
	ID             string       `json:"id,omitempty"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Role           Role         `json:"role"`
	Content        string       `json:"content"`
	ModelName      string       `json:"model_name,omitempty"`
	TokensUsed     int          `json:"tokens_used,omitempty"`
	GenerationTime float64      `json:"generation_time,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
	Error          string       `json:"error,omitempty"`
	IsError        bool         `json:"is_error,omitempty"`
	Sequence       int          `json:"sequence"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// Conversation is a chat session with its ordered message list.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ModelName    string    `json:"model_name,omitempty"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	TotalTokens  int       `json:"total_tokens"`
	TotalTime    float64   `json:"total_time"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Messages     []Message `json:"messages,omitempty"`
}

// AddMessage appends a message and rolls its metrics into the totals.
func (c *Conversation) AddMessage(m Message) {
	c.Messages = append(c.Messages, m)
	c.UpdatedAt = time.Now().UTC()
	c.TotalTokens += m.TokensUsed
	c.TotalTime += m.GenerationTime
}

// ConversationSummary is the listing row for a conversation.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}
