package services

import (
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/golang-jwt/jwt/v5"

	"splitsteal-backend/internal/config"
	"splitsteal-backend/internal/models"
)

type Claims struct {
	AccountID models.AccountID `json:"account_id"`
	SessionID string           `json:"session_id"`
	jwt.RegisteredClaims
}

type JWTService struct {
	secret []byte
	expiry time.Duration
	clock  quartz.Clock
}

func NewJWTService(cfg *config.Config, clock quartz.Clock) *JWTService {
	return &JWTService{
		secret: []byte(cfg.JWTSecret),
		expiry: cfg.JWTExpiry,
		clock:  clock,
	}
}

func (s *JWTService) GenerateToken(account models.AccountID) (string, *models.AccountSession, error) {
	now := s.clock.Now()
	session := &models.AccountSession{
		AccountID: account,
		SessionID: models.GenerateSessionID(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.expiry),
	}

	claims := Claims{
		AccountID: account,
		SessionID: session.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(account),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %v", err)
	}

	return signed, session, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.clock.Now() }),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid || claims.AccountID == "" {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
