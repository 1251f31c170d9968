package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitsteal-backend/internal/commitment"
	"splitsteal-backend/internal/config"
	"splitsteal-backend/internal/handlers"
	"splitsteal-backend/internal/models"
	"splitsteal-backend/internal/services"
)

const (
	adminKey     = "admin-secret"
	revealWindow = 10 * time.Minute
)

type testServer struct {
	t      *testing.T
	router http.Handler
	clock  *quartz.Mock
	escrow *services.MemoryEscrow
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()

	logger := zerolog.New(io.Discard).Level(zerolog.Disabled)
	clock := quartz.NewMock(t)
	escrow := services.NewMemoryEscrow(clock)
	registry := services.NewRegistry(services.NewMemoryStore(), escrow, clock, revealWindow, logger)
	engine := services.NewGameEngine(registry, escrow, clock, logger)
	ws := handlers.NewWebSocketHandler(clock, logger)
	t.Cleanup(ws.Stop)
	engine.SetBroadcaster(ws)

	jwtService := services.NewJWTService(&config.Config{JWTSecret: "test", JWTExpiry: time.Hour}, clock)

	router := (&handlers.Router{
		Auth:         handlers.NewAuthHandler(jwtService, adminKey),
		Games:        handlers.NewGameHandler(engine, clock),
		Users:        handlers.NewUserHandler(escrow),
		WebSocket:    ws,
		JWT:          jwtService,
		RateLimiter:  services.NewMemoryRateLimiter(clock),
		RateLimit:    rateLimit,
		EnableFaucet: true,
		Logger:       logger,
	}).Engine()

	return &testServer{t: t, router: router, clock: clock, escrow: escrow}
}

func (s *testServer) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func (s *testServer) token(account string) string {
	s.t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewBufferString(fmt.Sprintf(`{"account_id":%q}`, account)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", adminKey)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func commitBody(choice commitment.Choice, salt string) gin.H {
	pair, _ := commitment.Build(choice, salt)
	return gin.H{"decision_hash": pair.Decision.String(), "salt_hash": pair.Salt.String()}
}

func gameField(resp map[string]interface{}, key string) interface{} {
	return resp["game"].(map[string]interface{})[key]
}

func TestFullGameOverHTTP(t *testing.T) {
	s := newTestServer(t, 0)
	alice, bob, dunny := s.token("alice"), s.token("bob"), s.token("dunny")

	code, _ := s.do(http.MethodPost, "/api/faucet", alice, gin.H{"amount": 1000})
	require.Equal(t, http.StatusOK, code)

	code, resp := s.do(http.MethodPost, "/api/games", alice, gin.H{"player_one": "bob", "player_two": "dunny", "stake": 501})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, float64(1), gameField(resp, "id"))
	assert.Equal(t, string(models.PhaseAwaitingCommits), gameField(resp, "phase"))

	code, _ = s.do(http.MethodPost, "/api/games/1/reveal", bob, gin.H{"salt": "1234"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(http.MethodPost, "/api/games/1/commit", alice, commitBody(commitment.Split, "1234"))
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodPost, "/api/games/1/commit", bob, commitBody(commitment.Split, "1234"))
	require.Equal(t, http.StatusOK, code)
	code, resp = s.do(http.MethodPost, "/api/games/1/commit", dunny, commitBody(commitment.Split, "abcd"))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(models.PhaseAwaitingReveals), gameField(resp, "phase"))

	code, _ = s.do(http.MethodPost, "/api/games/1/reveal", dunny, gin.H{"salt": "1234"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = s.do(http.MethodPost, "/api/games/1/resolve", dunny, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(http.MethodPost, "/api/games/1/reveal", bob, gin.H{"salt": "1234"})
	require.Equal(t, http.StatusOK, code)
	code, resp = s.do(http.MethodPost, "/api/games/1/reveal", dunny, gin.H{"salt": "abcd"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, gameField(resp, "settled"))
	assert.Equal(t, string(models.PhaseSettled), gameField(resp, "phase"))

	code, resp = s.do(http.MethodGet, "/api/balance", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(250), resp["balance"].(map[string]interface{})["available"])

	code, resp = s.do(http.MethodGet, "/api/balance", dunny, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(251), resp["balance"].(map[string]interface{})["available"])

	code, resp = s.do(http.MethodGet, "/api/games/latest", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), gameField(resp, "id"))

	code, resp = s.do(http.MethodGet, "/api/games?limit=5", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp["count"])
	assert.Equal(t, float64(1), resp["latest_id"])

	code, resp = s.do(http.MethodGet, "/api/games/latest-id", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp["latest_id"])

	code, resp = s.do(http.MethodPost, "/api/games/1/payouts", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(251), gameField(resp, "payouts").([]interface{})[1].(map[string]interface{})["amount"])

	code, resp = s.do(http.MethodGet, "/api/transactions", dunny, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp["count"])
}

func TestResolveExpiredOverHTTP(t *testing.T) {
	s := newTestServer(t, 0)
	alice, bob := s.token("alice"), s.token("bob")
	require.NoError(t, s.escrow.Credit(context.Background(), "alice", 100))

	code, _ := s.do(http.MethodPost, "/api/games", alice, gin.H{"player_one": "bob", "player_two": "dunny", "stake": 100})
	require.Equal(t, http.StatusCreated, code)

	code, _ = s.do(http.MethodPost, "/api/games/1/commit", bob, commitBody(commitment.Steal, "s"))
	require.Equal(t, http.StatusOK, code)

	s.clock.Advance(revealWindow)

	code, resp := s.do(http.MethodPost, "/api/games/1/resolve", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, gameField(resp, "expired"))

	w, err := s.escrow.GetWallet(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), w.Balance)
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t, 0)
	alice := s.token("alice")

	code, _ := s.do(http.MethodGet, "/api/games/1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodGet, "/api/games/abc", alice, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodGet, "/api/games/7", alice, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(http.MethodGet, "/api/games/latest", alice, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(http.MethodPost, "/api/games", alice, gin.H{"player_one": "bob", "player_two": "dunny", "stake": 100})
	assert.Equal(t, http.StatusPaymentRequired, code)

	code, _ = s.do(http.MethodPost, "/api/games", alice, gin.H{"player_one": "bob", "player_two": "bob", "stake": 100})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/api/games/1/commit", alice, gin.H{"decision_hash": "xyz", "salt_hash": "abc"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/api/faucet", alice, gin.H{"amount": models.MaxAmount + 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/api/faucet", alice, gin.H{"amount": models.MaxAmount})
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodPost, "/api/faucet", alice, gin.H{"amount": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/api/games", alice, gin.H{"player_one": "bob", "player_two": "dunny", "stake": models.MaxAmount + 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := s.do(http.MethodGet, "/api/games/latest-id", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp["latest_id"])

	code, _ = s.do(http.MethodPost, "/api/games/1/payouts", alice, nil)
	assert.Equal(t, http.StatusNotFound, code)

	req := httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewBufferString(`{"account_id":"eve"}`))
	req.Header.Set("X-Admin-Key", "wrong")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBuildCommitment(t *testing.T) {
	s := newTestServer(t, 0)
	bob := s.token("bob")

	code, resp := s.do(http.MethodGet, "/api/commitment?choice=split&salt=1234", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "c36562c53838cb8ed23e9de694b67c8f42ebd246ce5073a43a8eac6535122504", resp["decision_hash"])
	assert.Equal(t, "03ac674216f3e15c761ee1a5e255f067953623c8b388b4459e13f978d7c846f4", resp["salt_hash"])

	code, resp = s.do(http.MethodGet, "/api/commitment?choice=steal", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp["salt"], 32)

	code, _ = s.do(http.MethodGet, "/api/commitment?choice=maybe", bob, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, 2)
	bob := s.token("bob")

	for i := 0; i < 2; i++ {
		code, _ := s.do(http.MethodPost, "/api/games/1/resolve", bob, nil)
		assert.Equal(t, http.StatusNotFound, code)
	}

	code, _ := s.do(http.MethodPost, "/api/games/1/resolve", bob, nil)
	assert.Equal(t, http.StatusTooManyRequests, code)

	code, _ = s.do(http.MethodGet, "/api/games/1", bob, nil)
	assert.Equal(t, http.StatusNotFound, code, "reads are not rate limited")
}
