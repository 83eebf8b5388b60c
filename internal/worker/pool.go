package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tradechat-backend/internal/models"
	"tradechat-backend/internal/services"
)

// ReplyProcessor answers a queued question.
type ReplyProcessor interface {
	CompleteReply(ctx context.Context, job *models.ReplyJob) (*models.Message, error)
}

// Pool drains the reply queue with a fixed number of goroutines.
type Pool struct {
	redis       *redis.Client
	processor   ReplyProcessor
	workerCount int
	jobTimeout  time.Duration
	log         *zap.Logger
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func NewPool(redisClient *redis.Client, processor ReplyProcessor, workerCount int, jobTimeout time.Duration, log *zap.Logger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		redis:       redisClient,
		processor:   processor,
		workerCount: workerCount,
		jobTimeout:  jobTimeout,
		log:         log.With(zap.String("component", "worker")),
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.log.Info("worker pool started", zap.Int("workers", p.workerCount))
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.log.With(zap.Int("worker", id))

	for {
		select {
		case <-p.stopChan:
			log.Info("worker shutting down")
			return
		default:
		}

		ctx := context.Background()

		// Short BLPOP timeout so Stop is noticed promptly
		result, err := p.redis.BLPop(ctx, 5*time.Second, services.ReplyQueueKey).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Warn("failed to pop reply job", zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		job, err := decodeJob(result[1])
		if err != nil {
			log.Warn("dropping malformed reply job", zap.Error(err))
			continue
		}

		// Try to acquire lock
		lockKey := fmt.Sprintf("reply_lock:%s", job.ID)
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue
		}

		p.handle(ctx, log, job)

		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) handle(ctx context.Context, log *zap.Logger, job *models.ReplyJob) {
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	log = log.With(zap.String("job_id", job.ID), zap.String("conversation_id", job.ConversationID))
	start := time.Now()

	reply, err := p.processor.CompleteReply(ctx, job)
	if err != nil {
		var nf *services.NotFoundError
		if errors.As(err, &nf) {
			log.Info("question was removed before it was answered")
			return
		}
		log.Error("reply job failed", zap.Error(err))
		return
	}

	log.Info("reply job completed",
		zap.Bool("stored", reply.ID != ""),
		zap.Duration("duration", time.Since(start)),
	)
}

func decodeJob(raw string) (*models.ReplyJob, error) {
	var job models.ReplyJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	if job.ID == "" || job.UserID == "" || job.ConversationID == "" || job.MessageID == "" {
		return nil, fmt.Errorf("job is missing required fields")
	}
	return &job, nil
}
