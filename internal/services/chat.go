package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradechat-backend/internal/models"
	"tradechat-backend/internal/repository"
)

type ChatOptions struct {
	// StrictValidation rejects messages with missing fields or an unknown sender.
	StrictValidation bool
	// AITimeout bounds a single assistant call.
	AITimeout time.Duration
}

type ChatService struct {
	messages  repository.MessageStore
	assistant Assistant
	publisher Publisher
	queue     ReplyQueue
	opts      ChatOptions
	locks     *keyedMutex
	log       *zap.Logger
}

// NewChatService wires the chat operations. publisher and queue may be nil:
// events are then dropped and asynchronous asks run inline.
func NewChatService(
	messages repository.MessageStore,
	assistant Assistant,
	publisher Publisher,
	queue ReplyQueue,
	opts ChatOptions,
	log *zap.Logger,
) *ChatService {
	if assistant == nil {
		assistant = disabledAssistant{}
	}
	if opts.AITimeout <= 0 {
		opts.AITimeout = 60 * time.Second
	}
	return &ChatService{
		messages:  messages,
		assistant: assistant,
		publisher: publisher,
		queue:     queue,
		opts:      opts,
		locks:     newKeyedMutex(),
		log:       log.With(zap.String("service", "chat")),
	}
}

func (s *ChatService) CreateMessage(ctx context.Context, owner string, req models.CreateMessageRequest) (*models.Message, error) {
	if s.opts.StrictValidation {
		fields := make(map[string]string)
		if strings.TrimSpace(req.ConversationID) == "" {
			fields["conversationId"] = "conversationId is required"
		}
		if strings.TrimSpace(req.Text) == "" {
			fields["text"] = "text is required"
		}
		switch req.Sender {
		case models.SenderUser, models.SenderAI:
		case "":
			fields["sender"] = "sender is required"
		default:
			fields["sender"] = "sender must be \"user\" or \"ai\""
		}
		if len(fields) > 0 {
			return nil, &ValidationError{Fields: fields}
		}
	}

	unlock := s.locks.Lock(conversationKey(owner, req.ConversationID))
	defer unlock()

	return s.insert(ctx, owner, req.ConversationID, req.Sender, req.Text, time.Time{})
}

func (s *ChatService) ListMessages(ctx context.Context, owner, conversationID string) ([]*models.Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, &ValidationError{Fields: map[string]string{"conversationId": "conversationId is required"}}
	}

	msgs, err := s.messages.ListByConversation(ctx, conversationID, owner)
	if err != nil {
		return nil, s.storeError("list messages", err)
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	return msgs, nil
}

// ListConversations returns one summary per conversation, newest first. The
// order of conversations sharing the same updatedAt depends on the backend.
func (s *ChatService) ListConversations(ctx context.Context, owner string) ([]*models.Conversation, error) {
	convs, err := s.messages.ListConversations(ctx, owner)
	if err != nil {
		return nil, s.storeError("list conversations", err)
	}
	if convs == nil {
		convs = []*models.Conversation{}
	}
	return convs, nil
}

// DeleteConversation removes every message of the conversation. Deleting an
// unknown conversation succeeds with a zero count.
func (s *ChatService) DeleteConversation(ctx context.Context, owner, conversationID string) (int64, error) {
	if strings.TrimSpace(conversationID) == "" {
		return 0, &ValidationError{Fields: map[string]string{"conversationId": "conversationId is required"}}
	}

	unlock := s.locks.Lock(conversationKey(owner, conversationID))
	defer unlock()

	n, err := s.messages.DeleteConversation(ctx, conversationID, owner)
	if err != nil {
		return 0, s.storeError("delete conversation", err)
	}

	s.publish(ctx, owner, models.EventConversationDeleted, &models.ConversationEvent{ConversationID: conversationID})
	return n, nil
}

func (s *ChatService) UpdateMessage(ctx context.Context, owner string, req models.UpdateMessageRequest) (*models.Message, error) {
	fields := make(map[string]string)
	if strings.TrimSpace(req.ConversationID) == "" {
		fields["conversationId"] = "conversationId is required"
	}
	if strings.TrimSpace(req.MessageID) == "" {
		fields["messageId"] = "messageId is required"
	}
	if strings.TrimSpace(req.Text) == "" {
		fields["text"] = "text is required"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	unlock := s.locks.Lock(conversationKey(owner, req.ConversationID))
	defer unlock()

	return s.updateText(ctx, owner, req.ConversationID, req.MessageID, req.Text)
}

func (s *ChatService) DeleteMessage(ctx context.Context, owner, messageID string) error {
	if strings.TrimSpace(messageID) == "" {
		return &ValidationError{Fields: map[string]string{"id": "message id is required"}}
	}

	msg, err := s.messages.GetByID(ctx, messageID, owner)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Message: "Message not found"}
		}
		return s.storeError("get message", err)
	}

	unlock := s.locks.Lock(conversationKey(owner, msg.ConversationID))
	defer unlock()

	return s.deleteMessage(ctx, owner, msg)
}

// Ask stores the user's question and answers it. An assistant failure is not
// an error: the response carries an unsaved placeholder reply instead.
func (s *ChatService) Ask(ctx context.Context, owner string, req models.AskRequest) (*models.AskResponse, error) {
	fields := make(map[string]string)
	if strings.TrimSpace(req.ConversationID) == "" {
		fields["conversationId"] = "conversationId is required"
	}
	if strings.TrimSpace(req.Text) == "" {
		fields["text"] = "text is required"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	unlock := s.locks.Lock(conversationKey(owner, req.ConversationID))
	defer unlock()

	history, err := s.messages.ListByConversation(ctx, req.ConversationID, owner)
	if err != nil {
		return nil, s.storeError("list messages", err)
	}

	userMsg, err := s.insert(ctx, owner, req.ConversationID, models.SenderUser, req.Text, time.Time{})
	if err != nil {
		return nil, err
	}

	if req.Async && s.queue != nil && owner != "" {
		job := &models.ReplyJob{
			ID:             uuid.NewString(),
			UserID:         owner,
			ConversationID: req.ConversationID,
			MessageID:      userMsg.ID,
			Language:       req.Language,
			CreatedAt:      time.Now().UTC(),
		}
		err := s.queue.Enqueue(ctx, job)
		if err == nil {
			return &models.AskResponse{UserMessage: userMsg, Queued: true}, nil
		}
		s.log.Warn("failed to enqueue reply, answering inline", zap.Error(err))
	}

	reply, fallback, err := s.answer(ctx, owner, req.ConversationID, toTurns(history), req.Text, req.Language, time.Time{})
	if err != nil {
		return nil, err
	}
	return &models.AskResponse{UserMessage: userMsg, Reply: reply, Fallback: fallback}, nil
}

// Regenerate edits a user message, drops the AI answer right after it and asks
// again with the history that preceded the edited message. The writes are
// independent; a failure midway leaves the earlier ones in place.
func (s *ChatService) Regenerate(ctx context.Context, owner string, req models.RegenerateRequest) (*models.RegenerateResponse, error) {
	fields := make(map[string]string)
	if strings.TrimSpace(req.ConversationID) == "" {
		fields["conversationId"] = "conversationId is required"
	}
	if strings.TrimSpace(req.MessageID) == "" {
		fields["messageId"] = "messageId is required"
	}
	if strings.TrimSpace(req.Text) == "" {
		fields["text"] = "text is required"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	unlock := s.locks.Lock(conversationKey(owner, req.ConversationID))
	defer unlock()

	msgs, err := s.messages.ListByConversation(ctx, req.ConversationID, owner)
	if err != nil {
		return nil, s.storeError("list messages", err)
	}

	idx := indexOf(msgs, req.MessageID)
	if idx < 0 {
		return nil, &NotFoundError{Message: "Message not found"}
	}
	if msgs[idx].Sender != models.SenderUser {
		return nil, &ValidationError{Fields: map[string]string{"messageId": "only user messages can be edited"}}
	}

	edited, err := s.updateText(ctx, owner, req.ConversationID, req.MessageID, req.Text)
	if err != nil {
		return nil, err
	}

	// The new answer takes the slot of the one it replaces, or sits right
	// after the edited message.
	slot := msgs[idx].Timestamp
	if idx+1 < len(msgs) && msgs[idx+1].Sender == models.SenderAI {
		if err := s.deleteMessage(ctx, owner, msgs[idx+1]); err != nil {
			var nf *NotFoundError
			if !errors.As(err, &nf) {
				return nil, err
			}
		}
		slot = msgs[idx+1].Timestamp
	}

	reply, fallback, err := s.answer(ctx, owner, req.ConversationID, toTurns(msgs[:idx]), req.Text, req.Language, slot)
	if err != nil {
		return nil, err
	}
	return &models.RegenerateResponse{Message: edited, Reply: reply, Fallback: fallback}, nil
}

// CompleteReply answers a queued question. Used by the reply workers.
func (s *ChatService) CompleteReply(ctx context.Context, job *models.ReplyJob) (*models.Message, error) {
	unlock := s.locks.Lock(conversationKey(job.UserID, job.ConversationID))
	defer unlock()

	msgs, err := s.messages.ListByConversation(ctx, job.ConversationID, job.UserID)
	if err != nil {
		return nil, s.storeError("list messages", err)
	}

	idx := indexOf(msgs, job.MessageID)
	if idx < 0 {
		return nil, &NotFoundError{Message: "Message not found"}
	}

	reply, fallback, err := s.answer(ctx, job.UserID, job.ConversationID, toTurns(msgs[:idx]), msgs[idx].Text, job.Language, msgs[idx].Timestamp)
	if err != nil {
		return nil, err
	}
	if fallback {
		s.publish(ctx, job.UserID, models.EventReplyFailed, &models.ConversationEvent{
			ConversationID: job.ConversationID,
			MessageID:      job.MessageID,
			Message:        reply,
		})
		return reply, nil
	}

	s.publish(ctx, job.UserID, models.EventReplyReady, &models.ConversationEvent{
		ConversationID: job.ConversationID,
		MessageID:      job.MessageID,
		Message:        reply,
	})
	return reply, nil
}

// answer calls the assistant and stores its reply. The bool reports whether
// the returned message is the unsaved placeholder. A non-zero at pins the
// reply's timestamp so it sorts next to its question.
func (s *ChatService) answer(ctx context.Context, owner, conversationID string, history []models.ChatTurn, prompt, language string, at time.Time) (*models.Message, bool, error) {
	aiCtx, cancel := context.WithTimeout(ctx, s.opts.AITimeout)
	text, err := s.assistant.Reply(aiCtx, history, prompt, language)
	cancel()

	if err != nil {
		var ext *ExternalServiceError
		if !errors.As(err, &ext) {
			ext = &ExternalServiceError{Provider: "assistant", Err: err}
		}
		s.log.Warn("assistant call failed, using fallback reply",
			zap.String("provider", ext.Provider),
			zap.Int("status", ext.StatusCode),
			zap.Error(ext.Err),
		)
		if at.IsZero() {
			at = time.Now().UTC()
		}
		return &models.Message{
			ConversationID: conversationID,
			UserID:         owner,
			Sender:         models.SenderAI,
			Text:           FallbackReply,
			Timestamp:      at,
		}, true, nil
	}

	reply, err := s.insert(ctx, owner, conversationID, models.SenderAI, text, at)
	if err != nil {
		return nil, false, err
	}
	return reply, false, nil
}

// insert stores a message. A zero at lets the store stamp it with the
// current time.
func (s *ChatService) insert(ctx context.Context, owner, conversationID, sender, text string, at time.Time) (*models.Message, error) {
	msg := &models.Message{
		ConversationID: conversationID,
		UserID:         owner,
		Sender:         sender,
		Text:           text,
		Timestamp:      at,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, s.storeError("create message", err)
	}

	s.publish(ctx, owner, models.EventMessageCreated, &models.ConversationEvent{ConversationID: conversationID, Message: msg})
	return msg, nil
}

func (s *ChatService) updateText(ctx context.Context, owner, conversationID, messageID, text string) (*models.Message, error) {
	msg, err := s.messages.UpdateText(ctx, conversationID, messageID, owner, text)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "Message not found"}
		}
		return nil, s.storeError("update message", err)
	}

	s.publish(ctx, owner, models.EventMessageUpdated, &models.ConversationEvent{ConversationID: conversationID, Message: msg})
	return msg, nil
}

func (s *ChatService) deleteMessage(ctx context.Context, owner string, msg *models.Message) error {
	if err := s.messages.Delete(ctx, msg.ID, owner); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Message: "Message not found"}
		}
		return s.storeError("delete message", err)
	}

	s.publish(ctx, owner, models.EventMessageDeleted, &models.ConversationEvent{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
	})
	return nil
}

func (s *ChatService) publish(ctx context.Context, owner, eventType string, payload *models.ConversationEvent) {
	if s.publisher == nil || owner == "" {
		return
	}
	s.publisher.Publish(ctx, owner, models.WSMessage{Type: eventType, Payload: payload})
}

func (s *ChatService) storeError(op string, err error) error {
	s.log.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return &StoreError{Err: err}
}

func toTurns(msgs []*models.Message) []models.ChatTurn {
	turns := make([]models.ChatTurn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, models.ChatTurn{Role: m.Sender, Content: m.Text})
	}
	return turns
}

func indexOf(msgs []*models.Message, id string) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func conversationKey(owner, conversationID string) string {
	return owner + "\x00" + conversationID
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
