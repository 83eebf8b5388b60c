package models

import "time"

const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Message is one chat turn. Owner is empty for anonymous conversations.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"user,omitempty"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	Edited         bool      `json:"edited"`
}

// Conversation is derived from the messages sharing a conversation id.
type Conversation struct {
	ConversationID string    `json:"conversationId"`
	LastMessage    string    `json:"lastMessage"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type CreateMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Sender         string `json:"sender"`
	Text           string `json:"text"`
}

type UpdateMessageRequest struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Text           string `json:"text"`
}
