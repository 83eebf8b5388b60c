package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func protectedHandler(gotUser *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotUser = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body.Error.Code
}

func TestMiddleware_MissingHeader(t *testing.T) {
	auth := NewJWTAuth("secret", time.Hour)
	var user string

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	rr := httptest.NewRecorder()
	auth.Middleware(protectedHandler(&user)).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "UNAUTHORIZED" {
		t.Fatalf("unexpected error code %q", code)
	}
}

func TestMiddleware_InvalidToken(t *testing.T) {
	auth := NewJWTAuth("secret", time.Hour)
	other := NewJWTAuth("other-secret", time.Hour)
	token, err := other.GenerateAccessToken("u1", "trader")
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	var user string
	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	auth.Middleware(protectedHandler(&user)).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if user != "" {
		t.Fatalf("handler must not run for invalid token")
	}
}

func TestMiddleware_ExpiredToken(t *testing.T) {
	auth := NewJWTAuth("secret", -time.Minute)
	token, err := auth.GenerateAccessToken("u1", "trader")
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	var user string
	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	auth.Middleware(protectedHandler(&user)).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "TOKEN_EXPIRED" {
		t.Fatalf("expected TOKEN_EXPIRED, got %q", code)
	}
}

func TestMiddleware_ValidTokenInjectsUser(t *testing.T) {
	auth := NewJWTAuth("secret", time.Hour)
	token, err := auth.GenerateAccessToken("u1", "trader")
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	var user string
	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	auth.Middleware(protectedHandler(&user)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if user != "u1" {
		t.Fatalf("expected user u1 in context, got %q", user)
	}
}

func TestOptional_AnonymousPassesThrough(t *testing.T) {
	auth := NewJWTAuth("secret", time.Hour)
	user := "unset"

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	rr := httptest.NewRecorder()
	auth.Optional(protectedHandler(&user)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if user != "" {
		t.Fatalf("expected anonymous user, got %q", user)
	}
}

func TestOptional_RejectsMalformedHeader(t *testing.T) {
	auth := NewJWTAuth("secret", time.Hour)
	var user string

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Token abc")
	rr := httptest.NewRecorder()
	auth.Optional(protectedHandler(&user)).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}
