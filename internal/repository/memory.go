package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradechat-backend/internal/models"
)

// MemoryStore keeps messages and users in process. It backs tests and
// DATABASE_URL=memory:// runs.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []*models.Message
	users    map[string]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*models.User)}
}

// Messages returns the message side of the store.
func (s *MemoryStore) Messages() MessageStore { return memoryMessages{s} }

// Users returns the user side of the store.
func (s *MemoryStore) Users() UserStore { return memoryUsers{s} }

type memoryMessages struct{ s *MemoryStore }

func (m memoryMessages) Create(ctx context.Context, msg *models.Message) error {
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	msg.ID = id.String()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *msg
	m.s.messages = append(m.s.messages, &cp)
	return nil
}

func (m memoryMessages) GetByID(ctx context.Context, messageID, owner string) (*models.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, msg := range m.s.messages {
		if msg.ID == messageID && msg.UserID == owner {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memoryMessages) ListByConversation(ctx context.Context, conversationID, owner string) ([]*models.Message, error) {
	m.s.mu.RLock()
	var out []*models.Message
	for _, msg := range m.s.messages {
		if msg.ConversationID == conversationID && msg.UserID == owner {
			cp := *msg
			out = append(out, &cp)
		}
	}
	m.s.mu.RUnlock()

	SortMessages(out)
	return out, nil
}

func (m memoryMessages) ListConversations(ctx context.Context, owner string) ([]*models.Conversation, error) {
	m.s.mu.RLock()
	var owned []*models.Message
	for _, msg := range m.s.messages {
		if msg.UserID == owner {
			owned = append(owned, msg)
		}
	}
	convs := GroupConversations(owned)
	m.s.mu.RUnlock()
	return convs, nil
}

func (m memoryMessages) UpdateText(ctx context.Context, conversationID, messageID, owner, text string) (*models.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, msg := range m.s.messages {
		if msg.ID == messageID && msg.ConversationID == conversationID && msg.UserID == owner {
			msg.Text = text
			msg.Edited = true
			cp := *msg
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memoryMessages) Delete(ctx context.Context, messageID, owner string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for i, msg := range m.s.messages {
		if msg.ID == messageID && msg.UserID == owner {
			m.s.messages = append(m.s.messages[:i], m.s.messages[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m memoryMessages) DeleteConversation(ctx context.Context, conversationID, owner string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	kept := m.s.messages[:0]
	var deleted int64
	for _, msg := range m.s.messages {
		if msg.ConversationID == conversationID && msg.UserID == owner {
			deleted++
			continue
		}
		kept = append(kept, msg)
	}
	m.s.messages = kept
	return deleted, nil
}

type memoryUsers struct{ s *MemoryStore }

func (u memoryUsers) Create(ctx context.Context, user *models.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, existing := range u.s.users {
		if existing.Username == user.Username {
			return ErrDuplicate
		}
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	user.ID = id.String()
	user.CreatedAt = time.Now().UTC()
	cp := *user
	u.s.users[user.ID] = &cp
	return nil
}

func (u memoryUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	user, ok := u.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (u memoryUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	for _, user := range u.s.users {
		if user.Username == username {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (u memoryUsers) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}
