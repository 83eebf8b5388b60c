package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tradechat-backend/internal/middleware"
	"tradechat-backend/internal/models"
	"tradechat-backend/internal/repository"
	"tradechat-backend/internal/services"
)

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return resp
}

func TestDeleteMessage_RouteContext(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := services.NewChatService(store.Messages(), nil, nil, nil, services.ChatOptions{}, zap.NewNop())
	h := NewChatHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/chats/missing", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "missing")
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.UserIDKey, "user-a")
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	h.Delete(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

// ─── Error mapping ───

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &services.ValidationError{Fields: map[string]string{"text": "required"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unauthorized", &services.UnauthorizedError{Message: "no"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"not found", &services.NotFoundError{Message: "gone"}, http.StatusNotFound, "NOT_FOUND"},
		{"conflict", &services.ConflictError{Message: "taken"}, http.StatusConflict, "CONFLICT"},
		{"rate limit", &services.RateLimitError{Message: "slow down"}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"store", &services.StoreError{Err: errors.New("connection refused")}, http.StatusInternalServerError, "STORE_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rr := httptest.NewRecorder()

			handleServiceError(rr, req, tc.err)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if code := errorBody(t, rr).Error.Code; code != tc.wantCode {
				t.Fatalf("expected %s, got %s", tc.wantCode, code)
			}
		})
	}
}

func TestHandleServiceError_StorePassthrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	handleServiceError(rr, req, &services.StoreError{Err: errors.New("server selection timeout")})

	if resp := errorBody(t, rr); resp.Error.Message != "server selection timeout" {
		t.Fatalf("expected underlying message, got %q", resp.Error.Message)
	}
}
