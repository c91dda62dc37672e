package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver map[string]Identity

func (m mapResolver) ResolveIdentity(_ context.Context, userID string) (Identity, error) {
	id, ok := m[userID]
	if !ok {
		return Identity{}, fmt.Errorf("%w: %s", ErrUnknownIdentity, userID)
	}
	return id, nil
}

func newTestRouter(tokens *TokenManager, users IdentityResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/", Authenticate(tokens, users))
	g.GET("/me", func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": id.UserID, "role": id.Role})
	})
	g.GET("/admin", RequireRole("admin", "Access denied"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	tokens := NewTokenManager("secret", "gallery", time.Hour)
	users := mapResolver{
		"admin-1":   {UserID: "admin-1", Role: "admin"},
		"student-1": {UserID: "student-1", Role: "student"},
	}
	r := newTestRouter(tokens, users)

	adminToken, err := tokens.Issue("admin-1", "admin")
	require.NoError(t, err)
	studentToken, err := tokens.Issue("student-1", "student")
	require.NoError(t, err)
	ghostToken, err := tokens.Issue("deleted-user", "admin")
	require.NoError(t, err)

	t.Run("missing header", func(t *testing.T) {
		w := do(r, "/me", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"message":"Please authenticate"}`, w.Body.String())
	})

	t.Run("bad token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "abc.def.ghi").Code)
	})

	t.Run("user no longer exists", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(r, "/me", ghostToken).Code)
	})

	t.Run("valid", func(t *testing.T) {
		w := do(r, "/me", studentToken)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":"student-1","role":"student"}`, w.Body.String())
	})

	t.Run("role required", func(t *testing.T) {
		w := do(r, "/admin", studentToken)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.JSONEq(t, `{"message":"Access denied"}`, w.Body.String())
		assert.Equal(t, http.StatusNoContent, do(r, "/admin", adminToken).Code)
	})
}

type failingResolver struct{ err error }

func (f failingResolver) ResolveIdentity(context.Context, string) (Identity, error) {
	return Identity{}, f.err
}

func TestAuthenticate_ResolverFailure(t *testing.T) {
	tokens := NewTokenManager("secret", "gallery", time.Hour)
	token, err := tokens.Issue("u-1", "admin")
	require.NoError(t, err)

	w := do(newTestRouter(tokens, failingResolver{err: errors.New("connection refused")}), "/me", token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message":"Server error"}`, w.Body.String())

	w = do(newTestRouter(tokens, failingResolver{err: fmt.Errorf("lookup: %w", ErrUnknownIdentity)}), "/me", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticate_RoleComesFromStore(t *testing.T) {
	tokens := NewTokenManager("secret", "gallery", time.Hour)
	// token says admin, the stored record was demoted
	users := mapResolver{"u-1": {UserID: "u-1", Role: "student"}}
	r := newTestRouter(tokens, users)

	token, err := tokens.Issue("u-1", "admin")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(r, "/admin", token).Code)
}
