package middleware

import (
	"net/http"

	"recipeapi/internal/services"

	"github.com/gin-gonic/gin"
)

// RateLimit throttles requests per client IP.
func RateLimit(limiter *services.IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
