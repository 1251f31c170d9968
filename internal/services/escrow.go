package services

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/quartz"

	"splitsteal-backend/internal/models"
)

// Escrow holds game stakes and pays them out. Deposit moves stake from the
// depositor's wallet into custody for gameID; Transfer pays out of that custody.
// Amounts above models.MaxAmount fail with ErrAmountTooLarge.
type Escrow interface {
	Deposit(ctx context.Context, gameID uint64, from models.AccountID, amount uint64) error
	Transfer(ctx context.Context, gameID uint64, to models.AccountID, amount uint64) error
	Credit(ctx context.Context, account models.AccountID, amount uint64) error
	GetWallet(ctx context.Context, account models.AccountID) (*models.Wallet, error)
	GetTransactions(ctx context.Context, account models.AccountID, limit int64) ([]*models.Transaction, error)
}

type custodyRecord struct {
	depositor models.AccountID
	amount    uint64
}

type MemoryEscrow struct {
	mu      sync.Mutex
	clock   quartz.Clock
	wallets map[models.AccountID]*models.Wallet
	custody map[uint64]*custodyRecord
	txs     map[models.AccountID][]*models.Transaction
}

func NewMemoryEscrow(clock quartz.Clock) *MemoryEscrow {
	return &MemoryEscrow{
		clock:   clock,
		wallets: make(map[models.AccountID]*models.Wallet),
		custody: make(map[uint64]*custodyRecord),
		txs:     make(map[models.AccountID][]*models.Transaction),
	}
}

func (e *MemoryEscrow) wallet(account models.AccountID) *models.Wallet {
	w, ok := e.wallets[account]
	if !ok {
		w = &models.Wallet{AccountID: account}
		e.wallets[account] = w
	}
	return w
}

func (e *MemoryEscrow) record(account models.AccountID, txType models.TransactionType, amount, gameID uint64) {
	e.txs[account] = append(e.txs[account], &models.Transaction{
		ID:        models.GenerateTransactionID(),
		AccountID: account,
		Type:      txType,
		Amount:    amount,
		GameID:    gameID,
		CreatedAt: e.clock.Now(),
	})
}

func (e *MemoryEscrow) Deposit(ctx context.Context, gameID uint64, from models.AccountID, amount uint64) error {
	if amount > models.MaxAmount {
		return fmt.Errorf("deposit %d: %w", amount, ErrAmountTooLarge)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.custody[gameID]; exists {
		return fmt.Errorf("game %d already funded", gameID)
	}

	w := e.wallet(from)
	if w.Balance < amount {
		return fmt.Errorf("deposit %d from %s: %w", amount, from, ErrInsufficientFunds)
	}

	w.Balance -= amount
	w.Locked += amount
	e.custody[gameID] = &custodyRecord{depositor: from, amount: amount}
	e.record(from, models.TransactionTypeDeposit, amount, gameID)

	return nil
}

func (e *MemoryEscrow) Transfer(ctx context.Context, gameID uint64, to models.AccountID, amount uint64) error {
	if amount > models.MaxAmount {
		return fmt.Errorf("transfer %d: %w", amount, ErrAmountTooLarge)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.custody[gameID]
	if !ok || c.amount < amount {
		return fmt.Errorf("transfer %d for game %d: %w", amount, gameID, ErrEscrowShortfall)
	}

	w := e.wallet(to)
	if w.Balance > math.MaxUint64-amount || w.TotalWon > math.MaxUint64-amount {
		return fmt.Errorf("transfer %d to %s: %w", amount, to, ErrAmountTooLarge)
	}

	c.amount -= amount
	depositor := e.wallet(c.depositor)
	if depositor.Locked >= amount {
		depositor.Locked -= amount
	} else {
		depositor.Locked = 0
	}

	w.Balance += amount
	w.TotalWon += amount
	e.record(to, models.TransactionTypePayout, amount, gameID)

	return nil
}

func (e *MemoryEscrow) Credit(ctx context.Context, account models.AccountID, amount uint64) error {
	if amount > models.MaxAmount {
		return fmt.Errorf("credit %d: %w", amount, ErrAmountTooLarge)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	w := e.wallet(account)
	if w.Balance > models.MaxAmount-amount {
		return fmt.Errorf("credit %d to %s: %w", amount, account, ErrAmountTooLarge)
	}

	w.Balance += amount
	e.record(account, models.TransactionTypeCredit, amount, 0)
	return nil
}

func (e *MemoryEscrow) GetWallet(ctx context.Context, account models.AccountID) (*models.Wallet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w := *e.wallet(account)
	return &w, nil
}

// Custody reports the amount still held for gameID.
func (e *MemoryEscrow) Custody(gameID uint64) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.custody[gameID]; ok {
		return c.amount
	}
	return 0
}

func (e *MemoryEscrow) GetTransactions(ctx context.Context, account models.AccountID, limit int64) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	all := e.txs[account]
	txs := make([]*models.Transaction, 0, len(all))
	for i := len(all) - 1; i >= 0 && int64(len(txs)) < limit; i-- {
		txs = append(txs, all[i])
	}
	return txs, nil
}
