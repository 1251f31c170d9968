package services

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"splitsteal-backend/internal/commitment"
	"splitsteal-backend/internal/models"
)

// GameEngine drives the commit-reveal protocol. Each operation is one
// transition on one record, serialized by the Registry.
type GameEngine struct {
	registry    *Registry
	escrow      Escrow
	clock       quartz.Clock
	logger      zerolog.Logger
	broadcaster Broadcaster
}

func NewGameEngine(registry *Registry, escrow Escrow, clock quartz.Clock, logger zerolog.Logger) *GameEngine {
	return &GameEngine{
		registry:    registry,
		escrow:      escrow,
		clock:       clock,
		logger:      logger.With().Str("component", "engine").Logger(),
		broadcaster: nopBroadcaster{},
	}
}

func (ge *GameEngine) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = nopBroadcaster{}
	}
	ge.broadcaster = b
}

func (ge *GameEngine) Registry() *Registry {
	return ge.registry
}

func (ge *GameEngine) CreateGame(ctx context.Context, creator, playerOne, playerTwo models.AccountID, stake uint64) (*models.Game, error) {
	game, err := ge.registry.CreateGame(ctx, creator, playerOne, playerTwo, stake)
	if err != nil {
		return nil, err
	}

	ge.broadcaster.BroadcastGameUpdate(game)
	return game, nil
}

func (ge *GameEngine) SubmitCommitment(ctx context.Context, gameID uint64, caller models.AccountID, decision, salt commitment.Hash) (*models.Game, error) {
	game, err := ge.registry.withGame(ctx, gameID, func(g *models.Game) error {
		if g.Settled {
			return ErrAlreadySettled
		}

		me, _ := g.Slots(caller)
		if me == nil {
			return ErrUnauthorized
		}

		if g.Expired(ge.clock.Now()) {
			return ErrExpired
		}

		// Once both players have committed, commitments are frozen.
		if g.Phase() != models.PhaseAwaitingCommits {
			return ErrCommitPhaseClosed
		}

		d, s := decision, salt
		me.DecisionCommitment = &d
		me.SaltCommitment = &s
		return nil
	})
	if err != nil {
		ge.reject(gameID, caller, "commit", err)
		return nil, err
	}

	ge.logger.Info().
		Uint64("game_id", gameID).
		Str("caller", string(caller)).
		Str("phase", string(game.Phase())).
		Msg("commitment submitted")

	ge.broadcaster.BroadcastGameUpdate(game)
	return game, nil
}

func (ge *GameEngine) RevealChoice(ctx context.Context, gameID uint64, caller models.AccountID, salt string) (*models.Game, error) {
	var (
		settledNow bool
		payErr     error
	)

	game, err := ge.registry.withGame(ctx, gameID, func(g *models.Game) error {
		if g.Settled {
			return ErrAlreadySettled
		}

		now := ge.clock.Now()
		if g.Expired(now) {
			return ErrExpired
		}

		if g.PlayerOne.DecisionCommitment == nil || g.PlayerTwo.DecisionCommitment == nil {
			return ErrIncompleteCommitPhase
		}

		me, other := g.Slots(caller)
		if me == nil {
			return ErrUnauthorized
		}

		if me.Revealed() {
			return ErrAlreadyRevealed
		}

		if me.SaltCommitment == nil || commitment.SaltCommitment(salt) != *me.SaltCommitment {
			return ErrSaltMismatch
		}

		choice, ok := commitment.Recover(*me.DecisionCommitment, salt)
		if !ok {
			return ErrCommitmentForgery
		}
		me.RevealedChoice = choice

		if other.Revealed() {
			settle(g, now, revealPayouts(g))
			settledNow = true
			payErr = ge.payout(ctx, g)
		}
		return nil
	})
	if err != nil {
		ge.reject(gameID, caller, "reveal", err)
		return nil, err
	}

	ge.logger.Info().
		Uint64("game_id", gameID).
		Str("caller", string(caller)).
		Bool("settled", settledNow).
		Msg("choice revealed")

	ge.broadcaster.BroadcastGameUpdate(game)
	return game, payErr
}

// ResolveExpired settles a game whose reveal deadline has passed, using
// whichever reveals happened in time. Anyone may call it.
func (ge *GameEngine) ResolveExpired(ctx context.Context, gameID uint64) (*models.Game, error) {
	var payErr error

	game, err := ge.registry.withGame(ctx, gameID, func(g *models.Game) error {
		if g.Settled {
			return ErrAlreadySettled
		}

		now := ge.clock.Now()
		if !g.Expired(now) {
			return ErrNotExpired
		}

		settle(g, now, expiredPayouts(g))
		payErr = ge.payout(ctx, g)
		return nil
	})
	if err != nil {
		ge.reject(gameID, "", "resolve", err)
		return nil, err
	}

	ge.logger.Info().
		Uint64("game_id", gameID).
		Msg("expired game resolved")

	ge.broadcaster.BroadcastGameUpdate(game)
	return game, payErr
}

// RetryPayouts reissues the payouts of a settled game that the escrow did
// not complete. A game with nothing left to pay is returned unchanged.
func (ge *GameEngine) RetryPayouts(ctx context.Context, gameID uint64) (*models.Game, error) {
	var payErr error

	game, err := ge.registry.withGame(ctx, gameID, func(g *models.Game) error {
		if !g.Settled {
			return ErrNotSettled
		}

		payErr = ge.payout(ctx, g)
		return nil
	})
	if err != nil {
		ge.reject(gameID, "", "retry_payouts", err)
		return nil, err
	}

	ge.logger.Info().
		Uint64("game_id", gameID).
		Int("unpaid", game.Unpaid()).
		Msg("payouts retried")

	ge.broadcaster.BroadcastGameUpdate(game)
	return game, payErr
}

// payout transfers every unpaid payout of game in order and marks each one
// paid as it succeeds. It runs under the game's lock, so the flags are saved
// together with the transition.
func (ge *GameEngine) payout(ctx context.Context, game *models.Game) error {
	for i := range game.Payouts {
		p := &game.Payouts[i]
		if p.Paid {
			continue
		}

		if err := ge.escrow.Transfer(ctx, game.ID, p.Recipient, p.Amount); err != nil {
			ge.logger.Error().
				Err(err).
				Uint64("game_id", game.ID).
				Str("recipient", string(p.Recipient)).
				Uint64("amount", p.Amount).
				Msg("payout failed")
			return fmt.Errorf("payout to %s failed: %w", p.Recipient, err)
		}
		p.Paid = true

		ge.logger.Info().
			Uint64("game_id", game.ID).
			Str("recipient", string(p.Recipient)).
			Uint64("amount", p.Amount).
			Str("reason", string(p.Reason)).
			Msg("payout sent")
	}
	return nil
}

func (ge *GameEngine) reject(gameID uint64, caller models.AccountID, op string, err error) {
	ge.logger.Debug().
		Err(err).
		Uint64("game_id", gameID).
		Str("caller", string(caller)).
		Str("op", op).
		Msg("transition rejected")
}

func settle(g *models.Game, now time.Time, payouts []models.Payout) {
	g.Settled = true
	g.SettledAt = now
	g.Payouts = nil
	for _, p := range payouts {
		if p.Amount > 0 {
			g.Payouts = append(g.Payouts, p)
		}
	}
}

func revealPayouts(g *models.Game) []models.Payout {
	a, b := g.PlayerOne.RevealedChoice, g.PlayerTwo.RevealedChoice

	switch {
	case a == commitment.Split && b == commitment.Split:
		one, two := models.SplitPool(g.StakeAmount)
		return []models.Payout{
			{Recipient: g.PlayerOne.Participant, Amount: one, Reason: models.PayoutSplit},
			{Recipient: g.PlayerTwo.Participant, Amount: two, Reason: models.PayoutSplit},
		}
	case a != b:
		stealer := g.PlayerOne.Participant
		if a == commitment.Split {
			stealer = g.PlayerTwo.Participant
		}
		return []models.Payout{{Recipient: stealer, Amount: g.StakeAmount, Reason: models.PayoutSteal}}
	default:
		return []models.Payout{{Recipient: g.Creator, Amount: g.StakeAmount, Reason: models.PayoutForfeit}}
	}
}

func expiredPayouts(g *models.Game) []models.Payout {
	a, b := g.PlayerOne.RevealedChoice, g.PlayerTwo.RevealedChoice

	switch {
	case a == b:
		return []models.Payout{{Recipient: g.Creator, Amount: g.StakeAmount, Reason: models.PayoutForfeit}}
	case a != commitment.Unrevealed:
		return []models.Payout{{Recipient: g.PlayerOne.Participant, Amount: g.StakeAmount, Reason: models.PayoutSoleReveal}}
	default:
		return []models.Payout{{Recipient: g.PlayerTwo.Participant, Amount: g.StakeAmount, Reason: models.PayoutSoleReveal}}
	}
}
