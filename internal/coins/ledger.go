package coins

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/asce0110/aimagica-sub002/internal/config"
	"github.com/asce0110/aimagica-sub002/internal/models"
)

// Ledger is the only component allowed to mutate balance and transaction
// state. All operations are scoped to a single user.
type Ledger interface {
	ApplyDelta(ctx context.Context, userID, kind string, amount int64, reason string, referenceID *string) (*models.CoinTransaction, error)
	GetBalance(ctx context.Context, userID string) (*models.CoinBalance, error)
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]models.CoinTransaction, error)
}

var errOptimisticLock = errors.New("optimistic lock failed")

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresLedger struct {
	db  *sql.DB
	cfg *config.LedgerConfig
}

func NewPostgresLedger(db *sql.DB, cfg *config.LedgerConfig) *PostgresLedger {
	if cfg == nil {
		cfg = config.LoadLedgerConfig()
	}
	return &PostgresLedger{db: db, cfg: cfg}
}

// ApplyDelta atomically validates and applies one credit or debit: it locks
// the user's balance row, appends the transaction record and writes the new
// balance in a single database transaction. A credit whose reference_id was
// already applied for this user is a no-op that returns the existing
// transaction. Transient conflicts are retried up to the configured bound.
func (l *PostgresLedger) ApplyDelta(ctx context.Context, userID, kind string, amount int64, reason string, referenceID *string) (*models.CoinTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if kind != models.KindCredit && kind != models.KindDebit {
		return nil, fmt.Errorf("unknown transaction kind %q", kind)
	}

	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * l.cfg.RetryBackoff):
			}
			log.Printf("[LEDGER] Retrying %s for user %s (attempt %d): %v", kind, userID, attempt+1, lastErr)
		}

		txn, err := l.applyDeltaOnce(ctx, userID, kind, amount, reason, referenceID)
		if err == nil {
			return txn, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("ledger update for user %s did not commit: %w", userID, lastErr)
}

func (l *PostgresLedger) applyDeltaOnce(ctx context.Context, userID, kind string, amount int64, reason string, referenceID *string) (*models.CoinTransaction, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	if err := l.ensureBalanceTx(ctx, tx, userID); err != nil {
		return nil, err
	}

	balance, err := l.lockBalance(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	// Idempotent replay: the row lock serializes this check with any
	// concurrent apply for the same user, and the partial unique index on
	// (user_id, reference_id) backs it against everything else.
	if referenceID != nil {
		existing, err := l.findByReference(ctx, tx, userID, *referenceID)
		if err == nil {
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to check reference %s: %w", *referenceID, err)
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

	txn := &models.CoinTransaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Kind:         kind,
		Amount:       amount,
		Reason:       reason,
		ReferenceID:  referenceID,
		BalanceAfter: newBalance,
		CreatedAt:    time.Now().UTC(),
	}

	if err := l.insertTransaction(ctx, tx, txn); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// A racing apply won the reference. Abandon this attempt and
			// return what it wrote.
			tx.Rollback()
			if referenceID != nil {
				return l.findByReference(ctx, l.db, userID, *referenceID)
			}
		}
		return nil, err
	}

	if err := l.updateBalance(ctx, tx, userID, newBalance, balance.Version); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ledger transaction: %w", err)
	}

	return txn, nil
}

// GetBalance returns the user's balance, creating a zero record on first
// access. The insert-if-absent keeps two concurrent first reads from racing
// to create two rows.
func (l *PostgresLedger) GetBalance(ctx context.Context, userID string) (*models.CoinBalance, error) {
	if _, err := l.db.ExecContext(ctx, `
		INSERT INTO coin_balances (user_id, amount, version, updated_at)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to initialize balance for user %s: %w", userID, err)
	}

	var balance models.CoinBalance
	err := l.db.QueryRowContext(ctx, `
		SELECT user_id, amount, version, updated_at
		FROM coin_balances
		WHERE user_id = $1`, userID).
		Scan(&balance.UserID, &balance.Amount, &balance.Version, &balance.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance for user %s: %w", userID, err)
	}

	return &balance, nil
}

// ListTransactions returns the user's transaction history newest first,
// ordered by created_at with id as tiebreak so pages are deterministic.
func (l *PostgresLedger) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]models.CoinTransaction, error) {
	if limit <= 0 {
		limit = l.cfg.DefaultPageSize
	}
	if limit > l.cfg.MaxPageSize {
		limit = l.cfg.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, user_id, kind, amount, reason, reference_id, balance_after, created_at
		FROM coin_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for user %s: %w", userID, err)
	}
	defer rows.Close()

	transactions := []models.CoinTransaction{}
	for rows.Next() {
		var txn models.CoinTransaction
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Kind, &txn.Amount, &txn.Reason,
			&txn.ReferenceID, &txn.BalanceAfter, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}

	return transactions, rows.Err()
}

func (l *PostgresLedger) ensureBalanceTx(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO coin_balances (user_id, amount, version, updated_at)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to initialize balance for user %s: %w", userID, err)
	}
	return nil
}

func (l *PostgresLedger) lockBalance(ctx context.Context, tx *sql.Tx, userID string) (*models.CoinBalance, error) {
	var balance models.CoinBalance
	err := tx.QueryRowContext(ctx, `
		SELECT user_id, amount, version, updated_at
		FROM coin_balances
		WHERE user_id = $1
		FOR UPDATE`, userID).
		Scan(&balance.UserID, &balance.Amount, &balance.Version, &balance.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance for user %s: %w", userID, err)
	}
	return &balance, nil
}

func (l *PostgresLedger) findByReference(ctx context.Context, q rowQueryer, userID, referenceID string) (*models.CoinTransaction, error) {
	var txn models.CoinTransaction
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, kind, amount, reason, reference_id, balance_after, created_at
		FROM coin_transactions
		WHERE user_id = $1 AND reference_id = $2`, userID, referenceID).
		Scan(&txn.ID, &txn.UserID, &txn.Kind, &txn.Amount, &txn.Reason,
			&txn.ReferenceID, &txn.BalanceAfter, &txn.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (l *PostgresLedger) insertTransaction(ctx context.Context, tx *sql.Tx, txn *models.CoinTransaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO coin_transactions (id, user_id, kind, amount, reason, reference_id, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		txn.ID, txn.UserID, txn.Kind, txn.Amount, txn.Reason, txn.ReferenceID, txn.BalanceAfter, txn.CreatedAt)
	return err
}

func (l *PostgresLedger) updateBalance(ctx context.Context, tx *sql.Tx, userID string, newBalance int64, version int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE coin_balances
		SET amount = $1, version = version + 1, updated_at = $2
		WHERE user_id = $3 AND version = $4`,
		newBalance, time.Now().UTC(), userID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w for user %s", errOptimisticLock, userID)
	}

	return nil
}

// isRetryable reports whether the error is a transient conflict worth another
// attempt: an optimistic version miss, or Postgres serialization, deadlock and
// lock-timeout conditions.
func isRetryable(err error) bool {
	if errors.Is(err, errOptimisticLock) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}
