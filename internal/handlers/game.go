package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"

	"splitsteal-backend/internal/commitment"
	"splitsteal-backend/internal/models"
	"splitsteal-backend/internal/services"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

type GameHandler struct {
	gameEngine *services.GameEngine
	registry   *services.Registry
	clock      quartz.Clock
}

func NewGameHandler(gameEngine *services.GameEngine, clock quartz.Clock) *GameHandler {
	return &GameHandler{
		gameEngine: gameEngine,
		registry:   gameEngine.Registry(),
		clock:      clock,
	}
}

func accountID(c *gin.Context) models.AccountID {
	return models.AccountID(c.GetString("account_id"))
}

func gameID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid game id"})
		return 0, false
	}
	return id, true
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidGame),
		errors.Is(err, services.ErrAmountTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, services.ErrSaltMismatch),
		errors.Is(err, services.ErrCommitmentForgery):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrAlreadySettled),
		errors.Is(err, services.ErrIncompleteCommitPhase),
		errors.Is(err, services.ErrNotExpired),
		errors.Is(err, services.ErrCommitPhaseClosed),
		errors.Is(err, services.ErrAlreadyRevealed),
		errors.Is(err, services.ErrExpired),
		errors.Is(err, services.ErrNotSettled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *GameHandler) respondError(c *gin.Context, message string, err error) {
	c.JSON(errorStatus(err), gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func (h *GameHandler) respondGame(c *gin.Context, status int, game *models.Game) {
	c.JSON(status, gin.H{
		"success": true,
		"game":    models.NewGameView(game, h.clock.Now()),
	})
}

func (h *GameHandler) CreateGame(c *gin.Context) {
	var req models.CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	game, err := h.gameEngine.CreateGame(c.Request.Context(), accountID(c), req.PlayerOne, req.PlayerTwo, req.Stake)
	if err != nil {
		h.respondError(c, "Failed to create game", err)
		return
	}

	h.respondGame(c, http.StatusCreated, game)
}

func (h *GameHandler) GetGame(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		return
	}

	game, err := h.registry.GetGame(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Game not found", err)
		return
	}

	h.respondGame(c, http.StatusOK, game)
}

func (h *GameHandler) GetLatest(c *gin.Context) {
	game, err := h.registry.GetLatest(c.Request.Context())
	if err != nil {
		h.respondError(c, "No games found", err)
		return
	}

	h.respondGame(c, http.StatusOK, game)
}

func (h *GameHandler) ListRecent(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultRecentLimit)))
	if err != nil || limit <= 0 || limit > maxRecentLimit {
		limit = defaultRecentLimit
	}

	games, err := h.registry.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, "Failed to list games", err)
		return
	}

	latestID, err := h.registry.LatestID(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list games", err)
		return
	}

	now := h.clock.Now()
	response := make([]models.RecentGame, 0, len(games))
	for _, game := range games {
		response = append(response, models.RecentGame{
			ID:   game.ID,
			Game: models.NewGameView(game, now),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"games":     response,
		"count":     len(response),
		"latest_id": latestID,
	})
}

// GetLatestID reports the last allocated game id; ids are dense from 1.
func (h *GameHandler) GetLatestID(c *gin.Context) {
	id, err := h.registry.LatestID(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to read latest game id", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"latest_id": id,
	})
}

func (h *GameHandler) SubmitCommitment(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		return
	}

	var req models.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	decision, err := commitment.ParseHash(req.DecisionHash)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid decision_hash", "details": err.Error()})
		return
	}
	salt, err := commitment.ParseHash(req.SaltHash)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid salt_hash", "details": err.Error()})
		return
	}

	game, err := h.gameEngine.SubmitCommitment(c.Request.Context(), id, accountID(c), decision, salt)
	if err != nil {
		h.respondError(c, "Failed to submit commitment", err)
		return
	}

	h.respondGame(c, http.StatusOK, game)
}

func (h *GameHandler) RevealChoice(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		return
	}

	var req models.RevealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	game, err := h.gameEngine.RevealChoice(c.Request.Context(), id, accountID(c), req.Salt)
	if err != nil {
		if game == nil {
			h.respondError(c, "Failed to reveal choice", err)
			return
		}
		// settled, but a payout did not go through
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Payout failed",
			"details": err.Error(),
			"game":    models.NewGameView(game, h.clock.Now()),
		})
		return
	}

	h.respondGame(c, http.StatusOK, game)
}

func (h *GameHandler) ResolveExpired(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		return
	}

	game, err := h.gameEngine.ResolveExpired(c.Request.Context(), id)
	if err != nil {
		if game == nil {
			h.respondError(c, "Failed to resolve game", err)
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Payout failed",
			"details": err.Error(),
			"game":    models.NewGameView(game, h.clock.Now()),
		})
		return
	}

	h.respondGame(c, http.StatusOK, game)
}

func (h *GameHandler) RetryPayouts(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		return
	}

	game, err := h.gameEngine.RetryPayouts(c.Request.Context(), id)
	if err != nil {
		if game == nil {
			h.respondError(c, "Failed to retry payouts", err)
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Payout failed",
			"details": err.Error(),
			"game":    models.NewGameView(game, h.clock.Now()),
		})
		return
	}

	h.respondGame(c, http.StatusOK, game)
}

// BuildCommitment computes commitment hashes for a choice so that thin
// clients do not need their own SHA-256. A fresh salt is generated when none
// is given.
func (h *GameHandler) BuildCommitment(c *gin.Context) {
	choice, err := commitment.ParseChoice(c.Query("choice"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid choice", "details": err.Error()})
		return
	}

	salt := c.Query("salt")
	if salt == "" {
		if salt, err = commitment.NewSalt(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate salt"})
			return
		}
	}

	pair, err := commitment.Build(choice, salt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid commitment", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"choice":        choice.String(),
		"salt":          salt,
		"decision_hash": pair.Decision,
		"salt_hash":     pair.Salt,
	})
}
