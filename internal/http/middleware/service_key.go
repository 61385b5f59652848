package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const ServiceKeyHeader = "X-Service-Key"

// ServiceKey guards collaborator endpoints. An empty key leaves them open,
// which is only meant for local development.
func ServiceKey(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if required == "" {
			c.Next()
			return
		}
		key := c.GetHeader(ServiceKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(required)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Invalid service key",
				},
			})
			return
		}
		c.Next()
	}
}
