package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/omnidesk/backend/internal/auth"
)

const authContextKey = "auth_context"

type TokenVerifier interface {
	Verify(token string) (auth.Context, error)
}

// Authenticate resolves the session token into an auth.Context. The token
// is read from the Authorization header, or from ?token= when allowQuery is
// set (browsers cannot set headers on EventSource).
func Authenticate(v TokenVerifier, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c.GetHeader("Authorization"))
		if token == "" && allowQuery {
			token = c.Query("token")
		}
		if token == "" {
			abortUnauthorized(c, "Missing credentials")
			return
		}
		ac, err := v.Verify(token)
		if err != nil || !ac.Valid() {
			abortUnauthorized(c, "Invalid credentials")
			return
		}
		c.Set(authContextKey, ac)
		c.Next()
	}
}

func AuthContext(c *gin.Context) (auth.Context, bool) {
	v, ok := c.Get(authContextKey)
	if !ok {
		return auth.Context{}, false
	}
	ac, ok := v.(auth.Context)
	return ac, ok
}

func bearer(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}
