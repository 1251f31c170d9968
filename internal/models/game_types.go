package models

// MaxAmount bounds every stake, credit and balance. Escrow arithmetic in Redis
// scripts runs on doubles, which are exact only up to 2^53.
const MaxAmount uint64 = 1<<53 - 1

type CreateGameRequest struct {
	PlayerOne AccountID `json:"player_one" binding:"required"`
	PlayerTwo AccountID `json:"player_two" binding:"required"`
	Stake     uint64    `json:"stake" binding:"required,min=1,max=9007199254740991"`
}

type CommitRequest struct {
	DecisionHash string `json:"decision_hash" binding:"required,len=64,hexadecimal"`
	SaltHash     string `json:"salt_hash" binding:"required,len=64,hexadecimal"`
}

type RevealRequest struct {
	Salt string `json:"salt" binding:"required"`
}

type TokenRequest struct {
	AccountID AccountID `json:"account_id" binding:"required"`
}

type FaucetRequest struct {
	Amount uint64 `json:"amount" binding:"required,min=1,max=9007199254740991"`
}

type RecentGame struct {
	ID   uint64   `json:"id"`
	Game GameView `json:"game"`
}
