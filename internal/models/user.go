package models

import "time"

type AccountSession struct {
	AccountID AccountID `json:"account_id"`
	SessionID string    `json:"session_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
