package services

import "errors"

var (
	ErrNotFound              = errors.New("game not found")
	ErrUnauthorized          = errors.New("caller is not a participant")
	ErrAlreadySettled        = errors.New("game already settled")
	ErrIncompleteCommitPhase = errors.New("both players must commit before revealing")
	ErrSaltMismatch          = errors.New("salt does not match salt commitment")
	ErrCommitmentForgery     = errors.New("decision commitment matches no valid choice")
	ErrNotExpired            = errors.New("reveal deadline has not passed")

	ErrCommitPhaseClosed = errors.New("commit phase is closed")
	ErrAlreadyRevealed   = errors.New("choice already revealed")
	ErrExpired           = errors.New("reveal deadline has passed")
	ErrInvalidGame       = errors.New("invalid game parameters")
	ErrNotSettled        = errors.New("game is not settled")

	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrEscrowShortfall   = errors.New("escrow custody is smaller than transfer")
	ErrAmountTooLarge    = errors.New("amount exceeds supported maximum")
)
