package handlers

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"splitsteal-backend/internal/models"
	"splitsteal-backend/internal/services"
)

type UserHandler struct {
	escrow services.Escrow
}

func NewUserHandler(escrow services.Escrow) *UserHandler {
	return &UserHandler{escrow: escrow}
}

func (h *UserHandler) GetBalance(c *gin.Context) {
	wallet, err := h.escrow.GetWallet(c.Request.Context(), accountID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get wallet",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": gin.H{
			"account_id": wallet.AccountID,
			"available":  wallet.Balance,
			"locked":     wallet.Locked,
			"total_won":  wallet.TotalWon,
		},
	})
}

func (h *UserHandler) GetTransactions(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	txs, err := h.escrow.GetTransactions(c.Request.Context(), accountID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get transactions",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"transactions": txs,
		"count":        len(txs),
	})
}

// Faucet credits the caller's wallet. Only routed outside production.
func (h *UserHandler) Faucet(c *gin.Context) {
	var req models.FaucetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if err := h.escrow.Credit(c.Request.Context(), accountID(c), req.Amount); err != nil {
		c.JSON(errorStatus(err), gin.H{
			"error":   "Failed to credit wallet",
			"details": err.Error(),
		})
		return
	}

	h.GetBalance(c)
}

type AuthHandler struct {
	jwtService *services.JWTService
	adminKey   string
}

func NewAuthHandler(jwtService *services.JWTService, adminKey string) *AuthHandler {
	return &AuthHandler{
		jwtService: jwtService,
		adminKey:   adminKey,
	}
}

// IssueToken mints a session token for an account. Account identity is
// established upstream, so the endpoint is guarded by the admin key.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	key := c.GetHeader("X-Admin-Key")
	if h.adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.adminKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin key"})
		return
	}

	var req models.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	token, session, err := h.jwtService.GenerateToken(req.AccountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
		"session": session,
	})
}
