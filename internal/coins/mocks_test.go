package coins

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/asce0110/aimagica-sub002/internal/models"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) ApplyDelta(ctx context.Context, userID, kind string, amount int64, reason string, referenceID *string) (*models.CoinTransaction, error) {
	args := m.Called(ctx, userID, kind, amount, reason, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CoinTransaction), args.Error(1)
}

func (m *MockLedger) GetBalance(ctx context.Context, userID string) (*models.CoinBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CoinBalance), args.Error(1)
}

func (m *MockLedger) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]models.CoinTransaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CoinTransaction), args.Error(1)
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) ListActivePackages(ctx context.Context) ([]models.CoinPackage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CoinPackage), args.Error(1)
}

func (m *MockCatalog) GetPackage(ctx context.Context, id string) (*models.CoinPackage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CoinPackage), args.Error(1)
}
