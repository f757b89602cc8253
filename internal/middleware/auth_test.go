package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"knowledgescout/internal/middleware"
)

type stubVerifier struct {
	identities map[string]middleware.Identity
}

func (s *stubVerifier) VerifyToken(token string) (middleware.Identity, error) {
	if identity, ok := s.identities[token]; ok {
		return identity, nil
	}
	return middleware.Identity{}, errors.New("bad token")
}

func newVerifier() *stubVerifier {
	return &stubVerifier{identities: map[string]middleware.Identity{
		"user-token":  {UserID: "u1", Role: "user"},
		"admin-token": {UserID: "a1", Role: "admin"},
	}}
}

func identityEcho(t *testing.T, captured *middleware.Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity, ok := middleware.IdentityFromContext(r.Context()); ok {
			*captured = identity
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth(t *testing.T) {
	t.Run("Valid Token Passes Identity", func(t *testing.T) {
		var captured middleware.Identity
		handler := middleware.RequireAuth(newVerifier())(identityEcho(t, &captured))

		req := httptest.NewRequest(http.MethodGet, "/docs", nil)
		req.Header.Set("Authorization", "Bearer user-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1", captured.UserID)
	})

	t.Run("Missing Header Rejected", func(t *testing.T) {
		handler := middleware.RequireAuth(newVerifier())(identityEcho(t, &middleware.Identity{}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("Invalid Token Rejected", func(t *testing.T) {
		handler := middleware.RequireAuth(newVerifier())(identityEcho(t, &middleware.Identity{}))

		req := httptest.NewRequest(http.MethodGet, "/docs", nil)
		req.Header.Set("Authorization", "Bearer forged")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestOptionalAuth(t *testing.T) {
	t.Run("Anonymous Passes Without Identity", func(t *testing.T) {
		var captured middleware.Identity
		handler := middleware.OptionalAuth(newVerifier())(identityEcho(t, &captured))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, captured.UserID)
	})

	t.Run("Token Attaches Identity", func(t *testing.T) {
		var captured middleware.Identity
		handler := middleware.OptionalAuth(newVerifier())(identityEcho(t, &captured))

		req := httptest.NewRequest(http.MethodGet, "/docs", nil)
		req.Header.Set("Authorization", "Bearer admin-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "a1", captured.UserID)
	})
}

func TestRequireAdmin(t *testing.T) {
	verifier := newVerifier()
	chain := func(next http.Handler) http.Handler {
		return middleware.RequireAuth(verifier)(middleware.RequireAdmin(next))
	}

	t.Run("Admin Allowed", func(t *testing.T) {
		handler := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}))

		req := httptest.NewRequest(http.MethodPost, "/index/rebuild", nil)
		req.Header.Set("Authorization", "Bearer admin-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("User Forbidden", func(t *testing.T) {
		handler := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodPost, "/index/rebuild", nil)
		req.Header.Set("Authorization", "Bearer user-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "FORBIDDEN")
	})
}

func TestRateLimiter(t *testing.T) {
	rl := middleware.NewRateLimiter(1, 2)
	defer rl.Stop()
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/ask", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1234"), "burst exhausted")
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1234"), "other clients unaffected")
}

func TestRateLimiter_StopEndsSweeper(t *testing.T) {
	before := runtime.NumGoroutine()

	rl := middleware.NewRateLimiter(1, 1)
	rl.Stop()
	rl.Stop() // idempotent

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 10*time.Millisecond, "sweeper goroutine should exit after Stop")
}
