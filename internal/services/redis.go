package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tradechat-backend/internal/models"
)

// ReplyQueueKey is the Redis list consumed by the reply workers.
const ReplyQueueKey = "queue:ai-replies"

// EventChannel is the pub/sub channel carrying a user's conversation events.
func EventChannel(userID string) string {
	return "conversation_updates:" + userID
}

// Publisher fans conversation events out to a user's open sockets.
type Publisher interface {
	Publish(ctx context.Context, userID string, msg models.WSMessage)
}

type ReplyQueue interface {
	Enqueue(ctx context.Context, job *models.ReplyJob) error
}

// TokenStore keeps refresh tokens.
type TokenStore interface {
	Save(ctx context.Context, token, userID string, ttl time.Duration) error
	Lookup(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

var ErrTokenNotFound = errors.New("token not found")

type RedisPublisher struct {
	redis *redis.Client
	log   *zap.Logger
}

func NewRedisPublisher(client *redis.Client, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{redis: client, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, userID string, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn("failed to encode event", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	if err := p.redis.Publish(ctx, EventChannel(userID), data).Err(); err != nil {
		p.log.Warn("failed to publish event", zap.String("type", msg.Type), zap.Error(err))
	}
}

type RedisReplyQueue struct {
	redis *redis.Client
}

func NewRedisReplyQueue(client *redis.Client) *RedisReplyQueue {
	return &RedisReplyQueue{redis: client}
}

func (q *RedisReplyQueue) Enqueue(ctx context.Context, job *models.ReplyJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode reply job: %w", err)
	}
	return q.redis.RPush(ctx, ReplyQueueKey, data).Err()
}

type RedisTokenStore struct {
	redis *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{redis: client}
}

func (s *RedisTokenStore) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	return s.redis.Set(ctx, "refresh:"+token, userID, ttl).Err()
}

func (s *RedisTokenStore) Lookup(ctx context.Context, token string) (string, error) {
	userID, err := s.redis.Get(ctx, "refresh:"+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	return userID, err
}

func (s *RedisTokenStore) Delete(ctx context.Context, token string) error {
	return s.redis.Del(ctx, "refresh:"+token).Err()
}
