package guard

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"blog_service/internal/lib/tokens"
	"blog_service/internal/models"
	"blog_service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	users map[string]models.User
}

func (f *fakeUsers) User(_ context.Context, email string) (models.User, error) {
	user, ok := f.users[email]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}
	return user, nil
}

func newTestGuard(t *testing.T) (*Guard, *tokens.Service, *fakeUsers) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokenService := tokens.New("test-secret", time.Hour)
	users := &fakeUsers{users: map[string]models.User{
		"alice@example.com": {Email: "alice@example.com", Role: models.RoleUser, IsActive: true},
		"root@example.com":  {Email: "root@example.com", Role: models.RoleAdmin, IsActive: true},
	}}

	return New(log, tokenService, users), tokenService, users
}

func identityProbe(captured *Identity, found *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		*captured = id
		*found = ok
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuard_Authenticate(t *testing.T) {
	g, tokenService, _ := newTestGuard(t)

	t.Run("no token passes through anonymous", func(t *testing.T) {
		var (
			captured Identity
			found    bool
		)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		g.Authenticate(identityProbe(&captured, &found)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, found)
	})

	t.Run("valid token resolves identity", func(t *testing.T) {
		raw, err := tokenService.Issue("alice@example.com", []string{models.RoleUser}, time.Hour)
		require.NoError(t, err)

		var (
			captured Identity
			found    bool
		)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		rec := httptest.NewRecorder()

		g.Authenticate(identityProbe(&captured, &found)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.True(t, found)
		assert.Equal(t, "alice@example.com", captured.Email)
		assert.Equal(t, models.RoleUser, captured.Role)
		assert.Equal(t, []string{models.RoleUser}, captured.Scopes)
	})

	t.Run("lowercase scheme is accepted", func(t *testing.T) {
		raw, err := tokenService.Issue("alice@example.com", []string{models.RoleUser}, time.Hour)
		require.NoError(t, err)

		var (
			captured Identity
			found    bool
		)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer "+raw)
		rec := httptest.NewRecorder()

		g.Authenticate(identityProbe(&captured, &found)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.True(t, found)
		assert.Equal(t, "alice@example.com", captured.Email)
	})

	t.Run("invalid token is denied", func(t *testing.T) {
		var (
			captured Identity
			found    bool
		)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rec := httptest.NewRecorder()

		g.Authenticate(identityProbe(&captured, &found)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, found)
	})

	t.Run("token for deleted account is denied", func(t *testing.T) {
		raw, err := tokenService.Issue("ghost@example.com", []string{models.RoleUser}, time.Hour)
		require.NoError(t, err)

		var (
			captured Identity
			found    bool
		)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		rec := httptest.NewRecorder()

		g.Authenticate(identityProbe(&captured, &found)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, found)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "unknown subject", body["error"])
	})
}

func TestGuard_RequireScopes(t *testing.T) {
	g, tokenService, _ := newTestGuard(t)

	serve := func(t *testing.T, required []string, header string) *httptest.ResponseRecorder {
		t.Helper()

		final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()

		g.Authenticate(g.RequireScopes(required...)(final)).ServeHTTP(rec, req)

		return rec
	}

	t.Run("anonymous is rejected", func(t *testing.T) {
		rec := serve(t, []string{models.RoleUser}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("user scope denied on admin endpoint", func(t *testing.T) {
		raw, err := tokenService.Issue("alice@example.com", []string{models.RoleUser}, time.Hour)
		require.NoError(t, err)

		rec := serve(t, []string{models.RoleAdmin}, "Bearer "+raw)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		var body struct {
			Error          string   `json:"error"`
			AcceptedScopes []string `json:"accepted_scopes"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "insufficient scope", body.Error)
		assert.Equal(t, []string{models.RoleAdmin}, body.AcceptedScopes)
	})

	t.Run("any matching scope is sufficient", func(t *testing.T) {
		raw, err := tokenService.Issue("root@example.com", []string{models.RoleAdmin, models.RoleUser}, time.Hour)
		require.NoError(t, err)

		rec := serve(t, []string{models.RoleAdmin}, "Bearer "+raw)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = serve(t, []string{models.RoleUser}, "Bearer "+raw)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("no required scopes means authenticated only", func(t *testing.T) {
		raw, err := tokenService.Issue("alice@example.com", []string{models.RoleUser}, time.Hour)
		require.NoError(t, err)

		rec := serve(t, nil, "Bearer "+raw)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCanModify(t *testing.T) {
	owner := Identity{Email: "alice@example.com", Role: models.RoleUser}
	other := Identity{Email: "bob@example.com", Role: models.RoleUser}
	admin := Identity{Email: "root@example.com", Role: models.RoleAdmin}

	assert.True(t, CanModify(owner, "alice@example.com"))
	assert.False(t, CanModify(other, "alice@example.com"))
	assert.True(t, CanModify(admin, "alice@example.com"))
}
