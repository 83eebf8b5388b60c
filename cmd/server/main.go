package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tradechat-backend/internal/config"
	"tradechat-backend/internal/database"
	"tradechat-backend/internal/handlers"
	"tradechat-backend/internal/middleware"
	"tradechat-backend/internal/repository"
	"tradechat-backend/internal/router"
	"tradechat-backend/internal/services"
	"tradechat-backend/internal/websocket"
	"tradechat-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting tradechat backend", zap.String("env", cfg.Env))

	ctx := context.Background()

	// ──── Step 2: Open the message store ────
	stores, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("store initialization failed", zap.Error(err))
	}
	defer stores.close()
	log.Info("store ready", zap.String("backend", stores.backend))

	// ──── Step 3: Redis (optional) ────
	var (
		redisClients *database.RedisClients
		publisher    services.Publisher
		replyQueue   services.ReplyQueue
		tokenStore   services.TokenStore
	)
	if cfg.RedisURL != "" {
		redisClients, err = database.NewRedisClients(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisClients.Close()

		publisher = services.NewRedisPublisher(redisClients.Queue, log)
		replyQueue = services.NewRedisReplyQueue(redisClients.Queue)
		tokenStore = services.NewRedisTokenStore(redisClients.Queue)
		log.Info("redis connected")
	} else {
		log.Info("REDIS_URL not set, realtime events, async replies and refresh tokens are disabled")
	}

	// ──── Step 4: Assistant ────
	assistant, closeAssistant, err := services.NewAssistant(ctx, services.AssistantConfig{
		Provider:       cfg.AIProvider,
		GeminiAPIKey:   cfg.GeminiAPIKey,
		GeminiModel:    cfg.GeminiModel,
		OpenAIAPIKey:   cfg.OpenAIAPIKey,
		OpenAIBaseURL:  cfg.OpenAIBaseURL,
		OpenAIModel:    cfg.OpenAIModel,
		ConcurrentReqs: cfg.AIConcurrentRequests,
	})
	if err != nil {
		log.Fatal("assistant initialization failed", zap.Error(err))
	}
	defer closeAssistant()
	if cfg.AIProvider == "" {
		log.Warn("AI_PROVIDER not set, ask and regenerate will return fallback replies")
	} else {
		log.Info("assistant ready", zap.String("provider", cfg.AIProvider))
	}

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret, cfg.JWTTTL)
	chatService := services.NewChatService(stores.messages, assistant, publisher, replyQueue, services.ChatOptions{
		StrictValidation: cfg.StrictValidation,
		AITimeout:        cfg.AITimeout,
	}, log)
	authService := services.NewAuthService(stores.users, jwtAuth, tokenStore, log)

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	chatHandler := handlers.NewChatHandler(chatService)
	conversationHandler := handlers.NewConversationHandler(chatService)

	// ──── Step 5: Worker pool + WebSocket hub ────
	var (
		workerPool *worker.Pool
		wsHub      *websocket.Hub
	)
	if redisClients != nil {
		workerPool = worker.NewPool(redisClients.Queue, chatService, cfg.WorkerCount, cfg.AITimeout+30*time.Second, log)
		workerPool.Start()

		wsHub = websocket.NewHub(redisClients.PubSub, jwtAuth, log)
		log.Info("websocket hub started")
	}

	// ──── Step 6: Start HTTP Server ────
	authLimiter := router.NewAuthLimiter()
	defer authLimiter.Stop()

	r := router.New(
		log,
		jwtAuth,
		authHandler,
		chatHandler,
		conversationHandler,
		wsHub,
		authLimiter,
		router.Options{FrontendURL: cfg.FrontendURL, AuthRequired: cfg.AuthRequired},
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		if workerPool != nil {
			workerPool.Stop()
		}
		if wsHub != nil {
			wsHub.Close()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Info("tradechat backend ready",
		zap.String("api", fmt.Sprintf("http://localhost:%s/api", cfg.Port)),
		zap.Bool("auth_required", cfg.AuthRequired),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type storeSet struct {
	backend  string
	messages repository.MessageStore
	users    repository.UserStore
	close    func()
}

// openStores picks the backend from the DATABASE_URL scheme.
func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storeSet, error) {
	switch {
	case strings.HasPrefix(cfg.DatabaseURL, "mongodb://"), strings.HasPrefix(cfg.DatabaseURL, "mongodb+srv://"):
		client, err := database.NewMongoClient(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.DatabaseName)
		if err := database.EnsureMongoIndexes(ctx, db); err != nil {
			client.Disconnect(ctx)
			return nil, err
		}
		return &storeSet{
			backend:  "mongodb",
			messages: repository.NewMongoMessageRepo(db),
			users:    repository.NewMongoUserRepo(db),
			close:    func() { client.Disconnect(context.Background()) },
		}, nil

	case strings.HasPrefix(cfg.DatabaseURL, "postgres://"), strings.HasPrefix(cfg.DatabaseURL, "postgresql://"):
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
			pool.Close()
			return nil, err
		}
		return &storeSet{
			backend:  "postgres",
			messages: repository.NewMessageRepo(pool),
			users:    repository.NewUserRepo(pool),
			close:    pool.Close,
		}, nil

	case strings.HasPrefix(cfg.DatabaseURL, "memory://"):
		mem := repository.NewMemoryStore()
		return &storeSet{
			backend:  "memory",
			messages: mem.Messages(),
			users:    mem.Users(),
			close:    func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", cfg.DatabaseURL)
	}
}
