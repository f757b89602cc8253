package auth_test

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"knowledgescout/features/auth"
	"knowledgescout/internal/middleware"
)

func newHandler(repo *MockRepo) *auth.Handler {
	return auth.NewHandler(auth.NewService(repo, "test-secret", time.Hour))
}

func TestHandler_Register(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Create", mock.Anything, mock.Anything).Return(nil)

		req := httptest.NewRequest(http.MethodPost, "/auth/register",
			strings.NewReader(`{"email": "A@B.com", "password": "hunter2secret"}`))
		rec := httptest.NewRecorder()
		newHandler(repo).Register(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"a@b.com"`, "email must be normalized")
		assert.NotContains(t, rec.Body.String(), "password_hash")
	})

	t.Run("Validation", func(t *testing.T) {
		cases := []struct {
			name string
			body string
		}{
			{"Bad Email", `{"email": "nope", "password": "hunter2secret"}`},
			{"Short Password", `{"email": "a@b.com", "password": "short"}`},
			{"Malformed JSON", `{"email":`},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(tc.body))
				rec := httptest.NewRecorder()
				newHandler(new(MockRepo)).Register(rec, req)
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			})
		}
	})
}

func TestHandler_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2secret"), bcrypt.MinCost)
	require.NoError(t, err)
	stored := &auth.User{ID: "user-1", Email: "a@b.com", PasswordHash: string(hash), Role: auth.RoleUser}

	t.Run("Returns Token", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("GetByEmail", mock.Anything, "a@b.com").Return(stored, nil)

		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email": "a@b.com", "password": "hunter2secret"}`))
		rec := httptest.NewRecorder()
		newHandler(repo).Login(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Token string    `json:"token"`
			User  auth.User `json:"user"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "user-1", resp.User.ID)
	})

	t.Run("Wrong Password Is 401", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("GetByEmail", mock.Anything, "a@b.com").Return(stored, nil)

		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email": "a@b.com", "password": "wrong-password"}`))
		rec := httptest.NewRecorder()
		newHandler(repo).Login(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("Unknown User Is Also 401", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("GetByEmail", mock.Anything, "ghost@b.com").Return(nil, sql.ErrNoRows)

		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email": "ghost@b.com", "password": "hunter2secret"}`))
		rec := httptest.NewRecorder()
		newHandler(repo).Login(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandler_Me(t *testing.T) {
	repo := new(MockRepo)
	repo.On("GetByID", mock.Anything, "user-1").
		Return(&auth.User{ID: "user-1", Email: "a@b.com", Role: auth.RoleUser}, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), middleware.Identity{UserID: "user-1", Role: "user"}))
	rec := httptest.NewRecorder()
	newHandler(repo).Me(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"a@b.com"`)
}
