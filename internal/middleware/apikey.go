package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/duetcast/controller/pkg/response"
)

// HeaderAPIKey is the control-plane key header.
const HeaderAPIKey = "x-api-key"

// APIKey returns a middleware requiring a matching x-api-key header.
// An empty configured key disables the check (open control plane).
func APIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := c.GetHeader(HeaderAPIKey)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			response.Unauthorized(c, "invalid api key")
			c.Abort()
			return
		}
		c.Next()
	}
}
