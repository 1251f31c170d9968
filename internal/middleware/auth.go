package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"splitsteal-backend/internal/models"
	"splitsteal-backend/internal/services"
)

func AuthMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else {
			tokenString = c.Query("token")
			if tokenString == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				c.Abort()
				return
			}
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("account_id", string(claims.AccountID))
		c.Set("session_id", claims.SessionID)

		c.Next()
	}
}

// RateLimitMiddleware limits each account to limit requests per minute per route.
func RateLimitMiddleware(limiter services.RateLimiter, limit int, logger zerolog.Logger) gin.HandlerFunc {
	const window = time.Minute

	return func(c *gin.Context) {
		account := models.AccountID(c.GetString("account_id"))
		if account == "" || limit <= 0 {
			c.Next()
			return
		}

		action := c.FullPath()
		if action == "" {
			action = c.Request.URL.Path
		}

		allowed, err := limiter.CheckRateLimit(c.Request.Context(), account, action, limit, window)
		if err != nil {
			logger.Error().Err(err).Str("account_id", string(account)).Msg("rate limit check failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
			c.Abort()
			return
		}
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequestLogger logs one line per request through zerolog.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("account_id", c.GetString("account_id")).
			Msg("request")
	}
}
