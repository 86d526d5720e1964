package coins

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asce0110/aimagica-sub002/internal/config"
	"github.com/asce0110/aimagica-sub002/internal/models"
)

// MemoryLedger implements Ledger in process memory. It exists for tests and
// local development; it honors the same contract as PostgresLedger, with a
// per-user mutex standing in for the row lock.
type MemoryLedger struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	balances     map[string]*models.CoinBalance
	transactions map[string][]models.CoinTransaction // oldest first
	references   map[string]map[string]string        // user -> reference -> transaction id

	cfg *config.LedgerConfig
}

func NewMemoryLedger(cfg *config.LedgerConfig) *MemoryLedger {
	if cfg == nil {
		cfg = config.LoadLedgerConfig()
	}
	return &MemoryLedger{
		locks:        make(map[string]*sync.Mutex),
		balances:     make(map[string]*models.CoinBalance),
		transactions: make(map[string][]models.CoinTransaction),
		references:   make(map[string]map[string]string),
		cfg:          cfg,
	}
}

// userLock returns the mutex serializing mutations for one user. Different
// users never contend.
func (l *MemoryLedger) userLock(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}
	return lock
}

func (l *MemoryLedger) ApplyDelta(ctx context.Context, userID, kind string, amount int64, reason string, referenceID *string) (*models.CoinTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	balance := l.ensureBalance(userID)

	if referenceID != nil {
		if txnID, ok := l.references[userID][*referenceID]; ok {
			for i := range l.transactions[userID] {
				if l.transactions[userID][i].ID == txnID {
					existing := l.transactions[userID][i]
					return &existing, nil
				}
			}
		}
	}

	newBalance := balance.Amount
	if kind == models.KindCredit {
		newBalance += amount
	} else {
		if amount > balance.Amount {
			return nil, ErrInsufficientFunds
		}
		newBalance -= amount
	}

	txn := models.CoinTransaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Kind:         kind,
		Amount:       amount,
		Reason:       reason,
		ReferenceID:  referenceID,
		BalanceAfter: newBalance,
		CreatedAt:    time.Now().UTC(),
	}

	l.transactions[userID] = append(l.transactions[userID], txn)
	if referenceID != nil {
		if l.references[userID] == nil {
			l.references[userID] = make(map[string]string)
		}
		l.references[userID][*referenceID] = txn.ID
	}

	balance.Amount = newBalance
	balance.Version++
	balance.UpdatedAt = txn.CreatedAt

	result := txn
	return &result, nil
}

func (l *MemoryLedger) GetBalance(ctx context.Context, userID string) (*models.CoinBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	balance := *l.ensureBalance(userID)
	return &balance, nil
}

func (l *MemoryLedger) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]models.CoinTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = l.cfg.DefaultPageSize
	}
	if limit > l.cfg.MaxPageSize {
		limit = l.cfg.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	history := l.transactions[userID]
	result := []models.CoinTransaction{}
	// Stored oldest first; walk backwards for newest-first pages.
	for i := len(history) - 1 - offset; i >= 0 && len(result) < limit; i-- {
		result = append(result, history[i])
	}

	return result, nil
}

// ensureBalance must be called with the user's lock held.
func (l *MemoryLedger) ensureBalance(userID string) *models.CoinBalance {
	if balance, ok := l.balances[userID]; ok {
		return balance
	}
	balance := &models.CoinBalance{
		UserID:    userID,
		Amount:    0,
		Version:   0,
		UpdatedAt: time.Now().UTC(),
	}
	l.balances[userID] = balance
	return balance
}
