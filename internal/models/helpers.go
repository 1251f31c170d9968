package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func GenerateTransactionID() string {
	return fmt.Sprintf("tx_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

func GenerateSessionID() string {
	return uuid.New().String()
}

func (r *CreateGameRequest) Validate(creator AccountID) error {
	if r.Stake == 0 {
		return fmt.Errorf("stake must be positive")
	}
	if r.Stake > MaxAmount {
		return fmt.Errorf("stake exceeds %d", MaxAmount)
	}
	if r.PlayerOne == "" || r.PlayerTwo == "" {
		return fmt.Errorf("both players are required")
	}
	if r.PlayerOne == r.PlayerTwo {
		return fmt.Errorf("players must be distinct")
	}
	if creator == "" {
		return fmt.Errorf("creator is required")
	}
	return nil
}

// SplitPool divides a stake between two players; player one gets the floor half.
func SplitPool(stake uint64) (uint64, uint64) {
	first := stake / 2
	return first, stake - first
}
