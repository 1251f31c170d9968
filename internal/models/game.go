package models

import (
	"time"

	"splitsteal-backend/internal/commitment"
)

// AccountID is an opaque identity; only equality is meaningful.
type AccountID string

type Phase string

const (
	PhaseAwaitingCommits Phase = "awaiting_commits"
	PhaseAwaitingReveals Phase = "awaiting_reveals"
	PhaseSettled         Phase = "settled"
)

type PlayerSlot struct {
	Participant        AccountID         `json:"participant"`
	DecisionCommitment *commitment.Hash  `json:"decision_commitment,omitempty"`
	SaltCommitment     *commitment.Hash  `json:"salt_commitment,omitempty"`
	RevealedChoice     commitment.Choice `json:"revealed_choice"`
}

func (p *PlayerSlot) Committed() bool {
	return p.DecisionCommitment != nil && p.SaltCommitment != nil
}

func (p *PlayerSlot) Revealed() bool {
	return p.RevealedChoice != commitment.Unrevealed
}

type PayoutReason string

const (
	PayoutSplit      PayoutReason = "split"
	PayoutSteal      PayoutReason = "steal"
	PayoutForfeit    PayoutReason = "forfeit"
	PayoutSoleReveal PayoutReason = "sole_reveal"
)

// Payout is one transfer owed when a game settles. Paid flips once the
// escrow has moved the funds.
type Payout struct {
	Recipient AccountID    `json:"recipient"`
	Amount    uint64       `json:"amount"`
	Reason    PayoutReason `json:"reason"`
	Paid      bool         `json:"paid"`
}

type Game struct {
	ID             uint64     `json:"id"`
	Creator        AccountID  `json:"creator"`
	StakeAmount    uint64     `json:"stake_amount"`
	PlayerOne      PlayerSlot `json:"player_one"`
	PlayerTwo      PlayerSlot `json:"player_two"`
	CreatedAt      time.Time  `json:"created_at"`
	RevealDeadline time.Time  `json:"reveal_deadline"`
	Settled        bool       `json:"settled"`
	SettledAt      time.Time  `json:"settled_at,omitempty"`
	Payouts        []Payout   `json:"payouts,omitempty"`
}

func (g *Game) Phase() Phase {
	switch {
	case g.Settled:
		return PhaseSettled
	case g.PlayerOne.Committed() && g.PlayerTwo.Committed():
		return PhaseAwaitingReveals
	default:
		return PhaseAwaitingCommits
	}
}

// Unpaid counts settlement payouts the escrow has not completed yet.
func (g *Game) Unpaid() int {
	n := 0
	for _, p := range g.Payouts {
		if !p.Paid {
			n++
		}
	}
	return n
}

func (g *Game) Expired(now time.Time) bool {
	return !now.Before(g.RevealDeadline)
}

// Slots returns the caller's slot and the opponent's slot, or nil if caller
// is not a participant.
func (g *Game) Slots(caller AccountID) (*PlayerSlot, *PlayerSlot) {
	switch caller {
	case g.PlayerOne.Participant:
		return &g.PlayerOne, &g.PlayerTwo
	case g.PlayerTwo.Participant:
		return &g.PlayerTwo, &g.PlayerOne
	}
	return nil, nil
}

func (g *Game) Clone() *Game {
	c := *g
	c.PlayerOne = g.PlayerOne.clone()
	c.PlayerTwo = g.PlayerTwo.clone()
	if g.Payouts != nil {
		c.Payouts = append([]Payout(nil), g.Payouts...)
	}
	return &c
}

func (p PlayerSlot) clone() PlayerSlot {
	if p.DecisionCommitment != nil {
		h := *p.DecisionCommitment
		p.DecisionCommitment = &h
	}
	if p.SaltCommitment != nil {
		h := *p.SaltCommitment
		p.SaltCommitment = &h
	}
	return p
}

type GameView struct {
	*Game
	Phase   Phase `json:"phase"`
	Expired bool  `json:"expired"`
}

func NewGameView(g *Game, now time.Time) GameView {
	return GameView{Game: g, Phase: g.Phase(), Expired: g.Expired(now)}
}
