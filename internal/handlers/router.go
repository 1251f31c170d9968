package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"splitsteal-backend/internal/middleware"
	"splitsteal-backend/internal/services"
)

type Router struct {
	Auth         *AuthHandler
	Games        *GameHandler
	Users        *UserHandler
	WebSocket    *WebSocketHandler
	JWT          *services.JWTService
	RateLimiter  services.RateLimiter
	RateLimit    int
	EnableFaucet bool
	Logger       zerolog.Logger
}

func (r *Router) Engine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(r.Logger))

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.POST("/auth/token", r.Auth.IssueToken)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(r.JWT))
	{
		protected.GET("/balance", r.Users.GetBalance)
		protected.GET("/transactions", r.Users.GetTransactions)
		if r.EnableFaucet {
			protected.POST("/faucet", r.Users.Faucet)
		}

		protected.GET("/commitment", r.Games.BuildCommitment)

		if r.WebSocket != nil {
			protected.GET("/ws", r.WebSocket.HandleWebSocket)
		}

		games := protected.Group("/games")
		{
			games.GET("", r.Games.ListRecent)
			games.GET("/latest", r.Games.GetLatest)
			games.GET("/latest-id", r.Games.GetLatestID)
			games.GET("/:id", r.Games.GetGame)

			limited := games.Group("")
			limited.Use(middleware.RateLimitMiddleware(r.RateLimiter, r.RateLimit, r.Logger))
			{
				limited.POST("", r.Games.CreateGame)
				limited.POST("/:id/commit", r.Games.SubmitCommitment)
				limited.POST("/:id/reveal", r.Games.RevealChoice)
				limited.POST("/:id/resolve", r.Games.ResolveExpired)
				limited.POST("/:id/payouts", r.Games.RetryPayouts)
			}
		}
	}

	return router
}
