package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"tradechat-backend/internal/handlers"
	"tradechat-backend/internal/middleware"
	"tradechat-backend/internal/repository"
	"tradechat-backend/internal/services"
)

func newTestRouter(t *testing.T, authRequired bool) http.Handler {
	t.Helper()

	store := repository.NewMemoryStore()
	jwtAuth := middleware.NewJWTAuth("test-secret", time.Hour)
	chatService := services.NewChatService(store.Messages(), nil, nil, nil, services.ChatOptions{StrictValidation: true}, zap.NewNop())
	authService := services.NewAuthService(store.Users(), jwtAuth, nil, zap.NewNop())

	limiter := middleware.NewRateLimiter(3, time.Minute)
	t.Cleanup(limiter.Stop)

	return New(
		zap.NewNop(),
		jwtAuth,
		handlers.NewAuthHandler(authService),
		handlers.NewChatHandler(chatService),
		handlers.NewConversationHandler(chatService),
		nil,
		limiter,
		Options{FrontendURL: "http://localhost:5173", AuthRequired: authRequired},
	)
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, false)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK || rr.Body.String() != `{"status":"ok"}` {
		t.Fatalf("unexpected health response %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatal("expected a request id header")
	}
}

func TestConversations_AnonymousAllowedByDefault(t *testing.T) {
	r := newTestRouter(t, false)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestConversations_AuthRequired(t *testing.T) {
	r := newTestRouter(t, true)

	for _, path := range []string{"/api/conversations", "/api/chats?conversationId=c1"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	r := newTestRouter(t, false)
	body, _ := json.Marshal(map[string]string{"username": "nobody", "password": "Secret123"})

	var last int
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		last = rr.Code
	}

	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", last)
	}
}
