package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"splitsteal-backend/internal/models"
)

// Registry owns all game records. Every read-modify-write on one id runs
// under that id's lock; different ids proceed independently.
type Registry struct {
	store        GameStore
	escrow       Escrow
	clock        quartz.Clock
	revealWindow time.Duration
	logger       zerolog.Logger

	mu    sync.Mutex
	locks map[uint64]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

func NewRegistry(store GameStore, escrow Escrow, clock quartz.Clock, revealWindow time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		store:        store,
		escrow:       escrow,
		clock:        clock,
		revealWindow: revealWindow,
		logger:       logger.With().Str("component", "registry").Logger(),
		locks:        make(map[uint64]*idLock),
	}
}

func (r *Registry) lock(id uint64) func() {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &idLock{}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) CreateGame(ctx context.Context, creator, playerOne, playerTwo models.AccountID, stake uint64) (*models.Game, error) {
	req := models.CreateGameRequest{PlayerOne: playerOne, PlayerTwo: playerTwo, Stake: stake}
	if err := req.Validate(creator); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGame, err)
	}

	id, err := r.store.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate game id: %w", err)
	}

	unlock := r.lock(id)
	defer unlock()

	if err := r.escrow.Deposit(ctx, id, creator, stake); err != nil {
		return nil, fmt.Errorf("failed to deposit stake: %w", err)
	}

	now := r.clock.Now()
	game := &models.Game{
		ID:             id,
		Creator:        creator,
		StakeAmount:    stake,
		PlayerOne:      models.PlayerSlot{Participant: playerOne},
		PlayerTwo:      models.PlayerSlot{Participant: playerTwo},
		CreatedAt:      now,
		RevealDeadline: now.Add(r.revealWindow),
	}

	if err := r.store.Insert(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to save game %d: %w", id, err)
	}

	r.logger.Info().
		Uint64("game_id", id).
		Str("creator", string(creator)).
		Uint64("stake", stake).
		Time("reveal_deadline", game.RevealDeadline).
		Msg("game created")

	return game.Clone(), nil
}

func (r *Registry) GetGame(ctx context.Context, id uint64) (*models.Game, error) {
	unlock := r.lock(id)
	defer unlock()

	return r.store.Get(ctx, id)
}

// LatestID returns the most recently allocated game id, or 0 before the
// first game.
func (r *Registry) LatestID(ctx context.Context) (uint64, error) {
	id, err := r.store.LatestID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest id: %w", err)
	}
	return id, nil
}

func (r *Registry) GetLatest(ctx context.Context) (*models.Game, error) {
	recent, err := r.ListRecent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, fmt.Errorf("no games yet: %w", ErrNotFound)
	}
	return recent[0], nil
}

// ListRecent returns up to n games, newest first. Ids whose creation failed
// after allocation are skipped.
func (r *Registry) ListRecent(ctx context.Context, n int) ([]*models.Game, error) {
	latest, err := r.LatestID(ctx)
	if err != nil {
		return nil, err
	}

	var games []*models.Game
	for id := latest; id > 0 && len(games) < n; id-- {
		game, err := r.GetGame(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}

	return games, nil
}

// withGame removes the record, applies fn and reinserts it. When fn fails the
// untouched original is reinserted, so a rejected transition leaves no trace.
func (r *Registry) withGame(ctx context.Context, id uint64, fn func(game *models.Game) error) (*models.Game, error) {
	unlock := r.lock(id)
	defer unlock()

	game, err := r.store.Remove(ctx, id)
	if err != nil {
		return nil, err
	}
	original := game.Clone()

	if err := fn(game); err != nil {
		if restoreErr := r.store.Insert(ctx, original); restoreErr != nil {
			r.logger.Error().Err(restoreErr).Uint64("game_id", id).Msg("failed to restore game")
			return nil, fmt.Errorf("failed to restore game %d: %v: %w", id, restoreErr, err)
		}
		return nil, err
	}

	if err := r.store.Insert(ctx, game); err != nil {
		r.logger.Error().Err(err).Uint64("game_id", id).Msg("failed to save game")
		return nil, fmt.Errorf("failed to save game %d: %w", id, err)
	}

	return game.Clone(), nil
}
