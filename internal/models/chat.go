package models

// ChatTurn is a role-tagged entry of the history sent to the assistant.
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "ai"
	Content string `json:"content"`
}

// AskRequest stores a user message and asks the assistant for a reply.
type AskRequest struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	Language       string `json:"language,omitempty"`
	Async          bool   `json:"async,omitempty"`
}

// RegenerateRequest edits a user message and replaces the AI answer that followed it.
type RegenerateRequest struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Text           string `json:"text"`
	Language       string `json:"language,omitempty"`
}

type AskResponse struct {
	UserMessage *Message `json:"userMessage"`
	Reply       *Message `json:"reply,omitempty"`
	Fallback    bool     `json:"fallback"`
	Queued      bool     `json:"queued,omitempty"`
}

type RegenerateResponse struct {
	Message  *Message `json:"message"`
	Reply    *Message `json:"reply"`
	Fallback bool     `json:"fallback"`
}
