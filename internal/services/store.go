package services

import (
	"context"
	"fmt"
	"sync"

	"splitsteal-backend/internal/models"
)

// GameStore is the persistent map of game records plus the id counter.
// Get and Remove return ErrNotFound for unknown ids.
type GameStore interface {
	NextID(ctx context.Context) (uint64, error)
	LatestID(ctx context.Context) (uint64, error)
	Get(ctx context.Context, id uint64) (*models.Game, error)
	Insert(ctx context.Context, game *models.Game) error
	Remove(ctx context.Context, id uint64) (*models.Game, error)
}

type MemoryStore struct {
	mu     sync.Mutex
	games  map[uint64]*models.Game
	lastID uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{games: make(map[uint64]*models.Game)}
}

func (s *MemoryStore) NextID(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	return s.lastID, nil
}

func (s *MemoryStore) LatestID(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id uint64) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, ok := s.games[id]
	if !ok {
		return nil, fmt.Errorf("game %d: %w", id, ErrNotFound)
	}
	return game.Clone(), nil
}

func (s *MemoryStore) Insert(ctx context.Context, game *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.games[game.ID] = game.Clone()
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, id uint64) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, ok := s.games[id]
	if !ok {
		return nil, fmt.Errorf("game %d: %w", id, ErrNotFound)
	}
	delete(s.games, id)
	return game, nil
}
