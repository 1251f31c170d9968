package services

import "time"

const (
	KeyGame             = "game:%d"
	KeyGameNextID       = "game:next_id"
	KeyWalletPrefix     = "wallet:"
	KeyWallet           = KeyWalletPrefix + "%s"
	KeyEscrow           = "escrow:game:%d"
	KeyTransaction      = "transaction:%s"
	KeyUserTransactions = "account:%s:transactions"
	KeyRateLimit        = "ratelimit:%s:%s"

	TTLTransaction = 30 * 24 * time.Hour // 30 days

	MaxTransactionHistory = 100
)
