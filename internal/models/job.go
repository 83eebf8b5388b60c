package models

import "time"

// ReplyJob is queued when a client asks for an asynchronous AI reply.
type ReplyJob struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	Language       string    `json:"language"`
	CreatedAt      time.Time `json:"created_at"`
}

// WebSocket message types
const (
	EventMessageCreated      = "message_created"
	EventMessageUpdated      = "message_updated"
	EventMessageDeleted      = "message_deleted"
	EventConversationDeleted = "conversation_deleted"
	EventReplyReady          = "reply_ready"
	EventReplyFailed         = "reply_failed"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type ConversationEvent struct {
	ConversationID string   `json:"conversationId"`
	Message        *Message `json:"message,omitempty"`
	MessageID      string   `json:"messageId,omitempty"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
