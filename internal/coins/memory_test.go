package coins

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asce0110/aimagica-sub002/internal/models"
)

func TestMemoryLedger_ConcurrentExhaustion(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(testLedgerConfig())

	_, err := ledger.ApplyDelta(ctx, "user1", models.KindCredit, 100, models.ReasonPurchase, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = ledger.ApplyDelta(ctx, "user1", models.KindDebit, 60, models.ReasonImageGeneration, nil)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	rejected := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientFunds)
			rejected++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	balance, err := ledger.GetBalance(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance.Amount)
}

func TestMemoryLedger_ConcurrentInitialization(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(testLedgerConfig())

	var wg sync.WaitGroup
	balances := make([]*models.CoinBalance, 8)
	for i := range balances {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			balances[i], _ = ledger.GetBalance(ctx, "newuser")
		}(i)
	}
	wg.Wait()

	for _, balance := range balances {
		require.NotNil(t, balance)
		assert.Equal(t, int64(0), balance.Amount)
	}

	transactions, err := ledger.ListTransactions(ctx, "newuser", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, transactions, "initialization must not write a transaction")
}

func TestMemoryLedger_BalanceNeverNegative(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(testLedgerConfig())

	_, err := ledger.ApplyDelta(ctx, "user1", models.KindCredit, 35, models.ReasonPurchase, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ledger.ApplyDelta(ctx, "user1", models.KindDebit, 10, models.ReasonImageGeneration, nil)
		}()
	}
	wg.Wait()

	balance, err := ledger.GetBalance(ctx, "user1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, balance.Amount, int64(0))
	assert.Equal(t, int64(5), balance.Amount, "only three of the twenty debits can fit in 35")
}

func TestMemoryLedger_Reconciliation(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(testLedgerConfig())

	ref1 := "pay_1"
	ops := []struct {
		kind   string
		amount int64
		reason string
		ref    *string
	}{
		{models.KindCredit, 100, models.ReasonPurchase, &ref1},
		{models.KindDebit, 30, models.ReasonImageGeneration, nil},
		{models.KindCredit, 50, models.ReasonPurchase, nil},
		{models.KindDebit, 45, models.ReasonImageGeneration, nil},
	}
	for _, op := range ops {
		_, err := ledger.ApplyDelta(ctx, "user1", op.kind, op.amount, op.reason, op.ref)
		require.NoError(t, err)
	}

	balance, err := ledger.GetBalance(ctx, "user1")
	require.NoError(t, err)

	transactions, err := ledger.ListTransactions(ctx, "user1", 100, 0)
	require.NoError(t, err)
	require.Len(t, transactions, len(ops))

	var sum int64
	for _, txn := range transactions {
		if txn.Kind == models.KindCredit {
			sum += txn.Amount
		} else {
			sum -= txn.Amount
		}
	}
	assert.Equal(t, balance.Amount, sum, "balance must equal credits minus debits")
	assert.Equal(t, balance.Amount, transactions[0].BalanceAfter, "balance must equal newest balance_after")
}

func TestMemoryLedger_IdempotentCredit(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(testLedgerConfig())
	ref := "pay_1"

	first, err := ledger.ApplyDelta(ctx, "user1", models.KindCredit, 100, models.ReasonPurchase, &ref)
	require.NoError(t, err)

	replay, err := ledger.ApplyDelta(ctx, "user1", models.KindCredit, 100, models.ReasonPurchase, &ref)
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)

	balance, err := ledger.GetBalance(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance.Amount)

	transactions, err := ledger.ListTransactions(ctx, "user1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, transactions, 1)
}

func TestMemoryLedger_Pagination(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(testLedgerConfig())

	for i := int64(1); i <= 5; i++ {
		_, err := ledger.ApplyDelta(ctx, "user1", models.KindCredit, i, models.ReasonPurchase, nil)
		require.NoError(t, err)
	}

	page1, err := ledger.ListTransactions(ctx, "user1", 2, 0)
	require.NoError(t, err)
	page2, err := ledger.ListTransactions(ctx, "user1", 2, 2)
	require.NoError(t, err)
	tail, err := ledger.ListTransactions(ctx, "user1", 10, 4)
	require.NoError(t, err)

	require.Len(t, page1, 2)
	require.Len(t, page2, 2)
	require.Len(t, tail, 1)

	// Newest first: amounts were credited 1..5 in order.
	assert.Equal(t, int64(5), page1[0].Amount)
	assert.Equal(t, int64(4), page1[1].Amount)
	assert.Equal(t, int64(3), page2[0].Amount)
	assert.Equal(t, int64(2), page2[1].Amount)
	assert.Equal(t, int64(1), tail[0].Amount)

	empty, err := ledger.ListTransactions(ctx, "user1", 10, 50)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
