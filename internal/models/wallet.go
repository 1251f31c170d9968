package models

import "time"

type Wallet struct {
	AccountID AccountID `json:"account_id" redis:"account_id"`
	Balance   uint64    `json:"balance" redis:"balance"`
	Locked    uint64    `json:"locked" redis:"locked"`
	TotalWon  uint64    `json:"total_won" redis:"total_won"`
}

type TransactionType string

const (
	TransactionTypeDeposit TransactionType = "deposit"
	TransactionTypePayout  TransactionType = "payout"
	TransactionTypeCredit  TransactionType = "credit"
)

type Transaction struct {
	ID        string          `json:"id" redis:"id"`
	AccountID AccountID       `json:"account_id" redis:"account_id"`
	Type      TransactionType `json:"type" redis:"type"`
	Amount    uint64          `json:"amount" redis:"amount"`
	GameID    uint64          `json:"game_id,omitempty" redis:"game_id"`
	CreatedAt time.Time       `json:"created_at" redis:"created_at"`
}
