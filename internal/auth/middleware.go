package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// Identity is the authenticated caller as currently stored, not as the
// token remembers it.
type Identity struct {
	UserID string
	Name   string
	Role   string
}

// ErrUnknownIdentity is returned by resolvers when a token's user does not
// exist.
var ErrUnknownIdentity = errors.New("unknown identity")

// IdentityResolver loads the live identity behind a token's user id.
// Resolvers wrap ErrUnknownIdentity when the user is gone.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, userID string) (Identity, error)
}

// Authenticate enforces bearer JWT tokens and resolves the caller. A bad
// token or a user that no longer exists answers 401; a resolver that
// cannot answer is a 500.
func Authenticate(tokens *TokenManager, users IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			unauthorized(c)
			return
		}
		claims, err := tokens.Parse(strings.TrimSpace(authz[len("bearer "):]))
		if err != nil {
			unauthorized(c)
			return
		}
		id, err := users.ResolveIdentity(c.Request.Context(), claims.UserID)
		if errors.Is(err, ErrUnknownIdentity) {
			unauthorized(c)
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireRole answers 403 with message unless the caller has role.
func RequireRole(role, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			unauthorized(c)
			return
		}
		if id.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": message})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Please authenticate"})
}
