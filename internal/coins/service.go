package coins

import (
	"context"
	"fmt"
	"log"

	"github.com/asce0110/aimagica-sub002/internal/models"
)

// Service is the boundary the request layer talks to. It owns no state of its
// own: every mutation goes through the Ledger, every package read through the
// Catalog.
type Service struct {
	ledger  Ledger
	catalog Catalog
}

func NewService(ledger Ledger, catalog Catalog) *Service {
	return &Service{ledger: ledger, catalog: catalog}
}

// GetUserBalance returns the user's spendable balance, creating a zero
// balance on first access.
func (s *Service) GetUserBalance(ctx context.Context, userID string) (*models.CoinBalance, error) {
	return s.ledger.GetBalance(ctx, userID)
}

// ListTransactions returns a page of the user's transaction history, newest
// first.
func (s *Service) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]models.CoinTransaction, error) {
	return s.ledger.ListTransactions(ctx, userID, limit, offset)
}

// ListPackages returns the purchasable coin packages currently on offer.
func (s *Service) ListPackages(ctx context.Context) ([]models.CoinPackage, error) {
	return s.catalog.ListActivePackages(ctx)
}

// ApplyPurchase credits the package's coins once an external payment flow has
// confirmed the purchase. The payment reference is the idempotency key:
// replaying the same confirmation credits the user exactly once and returns
// the transaction written the first time.
func (s *Service) ApplyPurchase(ctx context.Context, userID, packageID, paymentReferenceID string) (*models.CoinTransaction, error) {
	if paymentReferenceID == "" {
		return nil, fmt.Errorf("payment reference id is required")
	}

	pkg, err := s.catalog.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if !pkg.IsActive {
		return nil, ErrPackageInactive
	}

	txn, err := s.ledger.ApplyDelta(ctx, userID, models.KindCredit, pkg.CoinAmount, models.ReasonPurchase, &paymentReferenceID)
	if err != nil {
		return nil, err
	}

	log.Printf("[COINS] Purchase applied for user %s: package %s, reference %s, balance %d",
		userID, packageID, paymentReferenceID, txn.BalanceAfter)
	return txn, nil
}

// AuthorizeSpend atomically checks and deducts coins for a consuming action.
// Spends carry no reference id: repeated calls are independent spends, the
// caller is expected to call this at most once per action.
func (s *Service) AuthorizeSpend(ctx context.Context, userID string, amount int64, reason string) (*models.CoinTransaction, error) {
	return s.ledger.ApplyDelta(ctx, userID, models.KindDebit, amount, reason, nil)
}

// RefundSpend compensates a debit whose paid action failed. The original
// debit's id is the credit's reference, so a retried failure path refunds at
// most once.
func (s *Service) RefundSpend(ctx context.Context, userID string, debit *models.CoinTransaction) (*models.CoinTransaction, error) {
	txn, err := s.ledger.ApplyDelta(ctx, userID, models.KindCredit, debit.Amount, models.ReasonRefund, &debit.ID)
	if err != nil {
		return nil, err
	}

	log.Printf("[COINS] Refunded %d coins to user %s for debit %s", debit.Amount, userID, debit.ID)
	return txn, nil
}
