package repository

import (
	"context"
	"errors"
	"sort"

	"tradechat-backend/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// MessageStore persists chat messages. An empty owner scopes every call to
// messages that have no owner.
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, messageID, owner string) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID, owner string) ([]*models.Message, error)
	ListConversations(ctx context.Context, owner string) ([]*models.Conversation, error)
	UpdateText(ctx context.Context, conversationID, messageID, owner, text string) (*models.Message, error)
	Delete(ctx context.Context, messageID, owner string) error
	DeleteConversation(ctx context.Context, conversationID, owner string) (int64, error)
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// SortMessages orders messages by timestamp, then id.
func SortMessages(msgs []*models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// GroupConversations builds conversation summaries in process. The latest
// message of each group is its representative and groups are returned newest
// first. Groups with equal timestamps keep the order in which they were first
// seen.
func GroupConversations(msgs []*models.Message) []*models.Conversation {
	ordered := make([]*models.Message, len(msgs))
	copy(ordered, msgs)
	SortMessages(ordered)

	byID := make(map[string]*models.Conversation)
	var out []*models.Conversation
	for _, m := range ordered {
		conv, ok := byID[m.ConversationID]
		if !ok {
			conv = &models.Conversation{ConversationID: m.ConversationID}
			byID[m.ConversationID] = conv
			out = append(out, conv)
		}
		conv.LastMessage = m.Text
		conv.UpdatedAt = m.Timestamp
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}
