package services_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"splitsteal-backend/internal/commitment"
	"splitsteal-backend/internal/models"
	"splitsteal-backend/internal/services"
)

const (
	creator   models.AccountID = "alice"
	playerOne models.AccountID = "bob"
	playerTwo models.AccountID = "dunny"
	stranger  models.AccountID = "mallory"

	testSalt     = "1234"
	revealWindow = 10 * time.Minute
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.Disabled)
}

type testEnv struct {
	clock    *quartz.Mock
	store    *services.MemoryStore
	escrow   *services.MemoryEscrow
	registry *services.Registry
	engine   *services.GameEngine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := quartz.NewMock(t)
	store := services.NewMemoryStore()
	escrow := services.NewMemoryEscrow(clock)
	registry := services.NewRegistry(store, escrow, clock, revealWindow, testLogger())
	engine := services.NewGameEngine(registry, escrow, clock, testLogger())

	require.NoError(t, escrow.Credit(context.Background(), creator, 1_000_000))

	return &testEnv{
		clock:    clock,
		store:    store,
		escrow:   escrow,
		registry: registry,
		engine:   engine,
	}
}

func (e *testEnv) createGame(t *testing.T, stake uint64) *models.Game {
	t.Helper()

	game, err := e.engine.CreateGame(context.Background(), creator, playerOne, playerTwo, stake)
	require.NoError(t, err)
	return game
}

func (e *testEnv) commit(t *testing.T, gameID uint64, player models.AccountID, choice commitment.Choice, salt string) {
	t.Helper()

	pair, err := commitment.Build(choice, salt)
	require.NoError(t, err)

	_, err = e.engine.SubmitCommitment(context.Background(), gameID, player, pair.Decision, pair.Salt)
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, account models.AccountID) uint64 {
	t.Helper()

	w, err := e.escrow.GetWallet(context.Background(), account)
	require.NoError(t, err)
	return w.Balance
}
