package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/redis/go-redis/v9"

	"splitsteal-backend/internal/config"
	"splitsteal-backend/internal/models"
)

// RedisService backs the game store, the escrow ledger and rate limiting
// with one Redis database.
type RedisService struct {
	client *redis.Client
	clock  quartz.Clock
}

func NewRedisService(ctx context.Context, cfg *config.Config, clock quartz.Clock) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return NewRedisServiceFromClient(client, clock), nil
}

func NewRedisServiceFromClient(client *redis.Client, clock quartz.Clock) *RedisService {
	return &RedisService{
		client: client,
		clock:  clock,
	}
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) NextID(ctx context.Context) (uint64, error) {
	id, err := s.client.Incr(ctx, KeyGameNextID).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment game id: %v", err)
	}
	return uint64(id), nil
}

func (s *RedisService) LatestID(ctx context.Context) (uint64, error) {
	data, err := s.client.Get(ctx, KeyGameNextID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get latest game id: %v", err)
	}

	id, err := strconv.ParseUint(data, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt game counter %q: %v", data, err)
	}
	return id, nil
}

func (s *RedisService) Get(ctx context.Context, id uint64) (*models.Game, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(KeyGame, id)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("game %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game %d: %v", id, err)
	}
	return decodeGame(data)
}

func (s *RedisService) Insert(ctx context.Context, game *models.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal game: %v", err)
	}

	if err := s.client.Set(ctx, fmt.Sprintf(KeyGame, game.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save game %d: %v", game.ID, err)
	}
	return nil
}

func (s *RedisService) Remove(ctx context.Context, id uint64) (*models.Game, error) {
	data, err := s.client.GetDel(ctx, fmt.Sprintf(KeyGame, id)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("game %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to remove game %d: %v", id, err)
	}
	return decodeGame(data)
}

func decodeGame(data string) (*models.Game, error) {
	var game models.Game
	if err := json.Unmarshal([]byte(data), &game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %v", err)
	}
	return &game, nil
}

// Amounts reach the scripts as decimal strings and are applied with HINCRBY,
// so arithmetic stays in Redis integers. Lua only compares the results with 0
// or models.MaxAmount, both exact as doubles.
var depositScript = redis.NewScript(`
	local wallet = KEYS[1]
	local escrow = KEYS[2]

	if redis.call("EXISTS", escrow) == 1 then
		return redis.error_reply("game already funded")
	end

	local left = redis.call("HINCRBY", wallet, "balance", "-" .. ARGV[1])
	if left < 0 then
		redis.call("HINCRBY", wallet, "balance", ARGV[1])
		return redis.error_reply("insufficient balance")
	end

	redis.call("HINCRBY", wallet, "locked", ARGV[1])
	redis.call("HSET", escrow, "depositor", ARGV[2], "amount", ARGV[1])

	return "OK"
`)

func (s *RedisService) Deposit(ctx context.Context, gameID uint64, from models.AccountID, amount uint64) error {
	if amount > models.MaxAmount {
		return fmt.Errorf("deposit %d: %w", amount, ErrAmountTooLarge)
	}

	keys := []string{fmt.Sprintf(KeyWallet, from), fmt.Sprintf(KeyEscrow, gameID)}
	err := depositScript.Run(ctx, s.client, keys, strconv.FormatUint(amount, 10), string(from)).Err()
	if err != nil {
		if strings.Contains(err.Error(), "insufficient balance") {
			return fmt.Errorf("deposit %d from %s: %w", amount, from, ErrInsufficientFunds)
		}
		return fmt.Errorf("failed to deposit stake: %v", err)
	}

	return s.saveTransaction(ctx, from, models.TransactionTypeDeposit, amount, gameID)
}

var transferScript = redis.NewScript(`
	local escrow = KEYS[1]
	local recipient = KEYS[2]
	local depositor = KEYS[3]

	if redis.call("HGET", escrow, "depositor") ~= ARGV[2] then
		return redis.error_reply("escrow shortfall")
	end

	local held = redis.call("HINCRBY", escrow, "amount", "-" .. ARGV[1])
	if held < 0 then
		redis.call("HINCRBY", escrow, "amount", ARGV[1])
		return redis.error_reply("escrow shortfall")
	end

	local locked = redis.call("HINCRBY", depositor, "locked", "-" .. ARGV[1])
	if locked < 0 then
		redis.call("HSET", depositor, "locked", "0")
	end

	redis.call("HINCRBY", recipient, "balance", ARGV[1])
	redis.call("HINCRBY", recipient, "total_won", ARGV[1])

	return "OK"
`)

func (s *RedisService) Transfer(ctx context.Context, gameID uint64, to models.AccountID, amount uint64) error {
	if amount > models.MaxAmount {
		return fmt.Errorf("transfer %d: %w", amount, ErrAmountTooLarge)
	}

	escrowKey := fmt.Sprintf(KeyEscrow, gameID)
	depositor, err := s.client.HGet(ctx, escrowKey, "depositor").Result()
	if err == redis.Nil {
		return fmt.Errorf("transfer %d for game %d: %w", amount, gameID, ErrEscrowShortfall)
	}
	if err != nil {
		return fmt.Errorf("failed to read escrow %d: %v", gameID, err)
	}

	keys := []string{escrowKey, fmt.Sprintf(KeyWallet, to), fmt.Sprintf(KeyWallet, depositor)}
	err = transferScript.Run(ctx, s.client, keys, strconv.FormatUint(amount, 10), depositor).Err()
	if err != nil {
		if strings.Contains(err.Error(), "escrow shortfall") {
			return fmt.Errorf("transfer %d for game %d: %w", amount, gameID, ErrEscrowShortfall)
		}
		return fmt.Errorf("failed to transfer payout: %v", err)
	}

	return s.saveTransaction(ctx, to, models.TransactionTypePayout, amount, gameID)
}

var creditScript = redis.NewScript(`
	local balance = redis.call("HINCRBY", KEYS[1], "balance", ARGV[1])
	if balance > tonumber(ARGV[2]) then
		redis.call("HINCRBY", KEYS[1], "balance", "-" .. ARGV[1])
		return redis.error_reply("amount too large")
	end

	return "OK"
`)

func (s *RedisService) Credit(ctx context.Context, account models.AccountID, amount uint64) error {
	if amount > models.MaxAmount {
		return fmt.Errorf("credit %d: %w", amount, ErrAmountTooLarge)
	}

	keys := []string{fmt.Sprintf(KeyWallet, account)}
	err := creditScript.Run(ctx, s.client, keys, strconv.FormatUint(amount, 10), strconv.FormatUint(models.MaxAmount, 10)).Err()
	if err != nil {
		if strings.Contains(err.Error(), "amount too large") {
			return fmt.Errorf("credit %d to %s: %w", amount, account, ErrAmountTooLarge)
		}
		return fmt.Errorf("failed to credit wallet: %v", err)
	}

	return s.saveTransaction(ctx, account, models.TransactionTypeCredit, amount, 0)
}

func (s *RedisService) GetWallet(ctx context.Context, account models.AccountID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := s.client.HGetAll(ctx, fmt.Sprintf(KeyWallet, account)).Scan(&wallet); err != nil {
		return nil, fmt.Errorf("failed to get wallet: %v", err)
	}
	wallet.AccountID = account

	return &wallet, nil
}

// EscrowHeld reports the amount still in custody for gameID.
func (s *RedisService) EscrowHeld(ctx context.Context, gameID uint64) (uint64, error) {
	held, err := s.client.HGet(ctx, fmt.Sprintf(KeyEscrow, gameID), "amount").Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	return held, err
}

func (s *RedisService) saveTransaction(ctx context.Context, account models.AccountID, txType models.TransactionType, amount, gameID uint64) error {
	tx := &models.Transaction{
		ID:        models.GenerateTransactionID(),
		AccountID: account,
		Type:      txType,
		Amount:    amount,
		GameID:    gameID,
		CreatedAt: s.clock.Now(),
	}

	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %v", err)
	}

	if err := s.client.Set(ctx, fmt.Sprintf(KeyTransaction, tx.ID), data, TTLTransaction).Err(); err != nil {
		return fmt.Errorf("failed to save transaction: %v", err)
	}

	userTxKey := fmt.Sprintf(KeyUserTransactions, account)
	if err := s.client.ZAdd(ctx, userTxKey, redis.Z{
		Score:  float64(tx.CreatedAt.UnixMilli()),
		Member: tx.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to account transactions: %v", err)
	}

	s.client.ZRemRangeByRank(ctx, userTxKey, 0, -(MaxTransactionHistory + 1))

	return nil
}

func (s *RedisService) GetTransactions(ctx context.Context, account models.AccountID, limit int64) ([]*models.Transaction, error) {
	if limit <= 0 || limit > MaxTransactionHistory {
		limit = 50
	}

	txIDs, err := s.client.ZRevRange(ctx, fmt.Sprintf(KeyUserTransactions, account), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction IDs: %v", err)
	}
	if len(txIDs) == 0 {
		return []*models.Transaction{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(txIDs))
	for i, txID := range txIDs {
		cmds[i] = pipe.Get(ctx, fmt.Sprintf(KeyTransaction, txID))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline execution failed: %v", err)
	}

	transactions := make([]*models.Transaction, 0, len(cmds))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			continue
		}

		var tx models.Transaction
		if err := json.Unmarshal([]byte(data), &tx); err != nil {
			continue
		}
		transactions = append(transactions, &tx)
	}

	return transactions, nil
}

func (s *RedisService) CheckRateLimit(ctx context.Context, account models.AccountID, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, account, action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %v", err)
	}

	if count == 1 {
		s.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}
