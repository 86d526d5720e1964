package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asce0110/aimagica-sub002/internal/coins"
	"github.com/asce0110/aimagica-sub002/internal/config"
	"github.com/asce0110/aimagica-sub002/internal/models"
)

type stubCatalog struct {
	packages map[string]*models.CoinPackage
}

func (s *stubCatalog) ListActivePackages(ctx context.Context) ([]models.CoinPackage, error) {
	result := []models.CoinPackage{}
	for _, pkg := range s.packages {
		if pkg.IsActive {
			result = append(result, *pkg)
		}
	}
	return result, nil
}

func (s *stubCatalog) GetPackage(ctx context.Context, id string) (*models.CoinPackage, error) {
	if pkg, ok := s.packages[id]; ok {
		return pkg, nil
	}
	return nil, coins.ErrPackageNotFound
}

func newTestHandler() (*CoinHandler, *coins.MemoryLedger) {
	ledger := coins.NewMemoryLedger(&config.LedgerConfig{
		MaxRetries:      2,
		RetryBackoff:    time.Millisecond,
		DefaultPageSize: 20,
		MaxPageSize:     100,
	})
	catalog := &stubCatalog{packages: map[string]*models.CoinPackage{
		"pkg_small": {ID: "pkg_small", Name: "Starter", CoinAmount: 100, Price: 499, Currency: "USD", IsActive: true},
		"pkg_old":   {ID: "pkg_old", Name: "Legacy", CoinAmount: 500, Price: 999, Currency: "USD", IsActive: false},
	}}
	return NewCoinHandler(coins.NewService(ledger, catalog)), ledger
}

func authenticated(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), "userID", userID))
}

func TestCoinHandler_GetBalance(t *testing.T) {
	handler, _ := newTestHandler()

	t.Run("initializes to zero for new user", func(t *testing.T) {
		r := authenticated(httptest.NewRequest("GET", "/coins/balance", nil), "user1")
		w := httptest.NewRecorder()

		handler.GetBalance(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, float64(0), response["amount"])
	})

	t.Run("unauthorized without user", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/coins/balance", nil)
		w := httptest.NewRecorder()

		handler.GetBalance(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestCoinHandler_ApplyPurchase(t *testing.T) {
	handler, _ := newTestHandler()

	purchase := func(body string) *httptest.ResponseRecorder {
		r := authenticated(httptest.NewRequest("POST", "/coins/purchase", bytes.NewBufferString(body)), "user1")
		w := httptest.NewRecorder()
		handler.ApplyPurchase(w, r)
		return w
	}

	t.Run("successful purchase", func(t *testing.T) {
		w := purchase(`{"packageId":"pkg_small","paymentReferenceId":"pay_1"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Success     bool                   `json:"success"`
			Transaction models.CoinTransaction `json:"transaction"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.True(t, response.Success)
		assert.Equal(t, int64(100), response.Transaction.BalanceAfter)
	})

	t.Run("replayed confirmation credits once", func(t *testing.T) {
		w := purchase(`{"packageId":"pkg_small","paymentReferenceId":"pay_1"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Transaction models.CoinTransaction `json:"transaction"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, int64(100), response.Transaction.BalanceAfter)

		r := authenticated(httptest.NewRequest("GET", "/coins/balance", nil), "user1")
		balanceRec := httptest.NewRecorder()
		handler.GetBalance(balanceRec, r)
		var balance map[string]any
		require.NoError(t, json.Unmarshal(balanceRec.Body.Bytes(), &balance))
		assert.Equal(t, float64(100), balance["amount"])
	})

	t.Run("unknown package", func(t *testing.T) {
		w := purchase(`{"packageId":"missing","paymentReferenceId":"pay_2"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("inactive package", func(t *testing.T) {
		w := purchase(`{"packageId":"pkg_old","paymentReferenceId":"pay_3"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing payment reference", func(t *testing.T) {
		w := purchase(`{"packageId":"pkg_small"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		w := purchase(`not json`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCoinHandler_AuthorizeSpend(t *testing.T) {
	handler, ledger := newTestHandler()

	_, err := ledger.ApplyDelta(context.Background(), "user1", models.KindCredit, 50, models.ReasonPurchase, nil)
	require.NoError(t, err)

	spend := func(body string) *httptest.ResponseRecorder {
		r := authenticated(httptest.NewRequest("POST", "/coins/spend", bytes.NewBufferString(body)), "user1")
		w := httptest.NewRecorder()
		handler.AuthorizeSpend(w, r)
		return w
	}

	t.Run("successful spend", func(t *testing.T) {
		w := spend(`{"amount":30,"reason":"image_generation"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Transaction models.CoinTransaction `json:"transaction"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, int64(20), response.Transaction.BalanceAfter)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		w := spend(`{"amount":60,"reason":"image_generation"}`)
		assert.Equal(t, http.StatusPaymentRequired, w.Code)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		w := spend(`{"amount":0,"reason":"image_generation"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing reason", func(t *testing.T) {
		w := spend(`{"amount":10}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCoinHandler_ListTransactions(t *testing.T) {
	handler, ledger := newTestHandler()
	ctx := context.Background()

	_, err := ledger.ApplyDelta(ctx, "user1", models.KindCredit, 100, models.ReasonPurchase, nil)
	require.NoError(t, err)
	_, err = ledger.ApplyDelta(ctx, "user1", models.KindDebit, 30, models.ReasonImageGeneration, nil)
	require.NoError(t, err)

	t.Run("newest first", func(t *testing.T) {
		r := authenticated(httptest.NewRequest("GET", "/coins/transactions", nil), "user1")
		w := httptest.NewRecorder()

		handler.ListTransactions(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Transactions []models.CoinTransaction `json:"transactions"`
			Count        int                      `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Equal(t, 2, response.Count)
		assert.Equal(t, models.KindDebit, response.Transactions[0].Kind)
		assert.Equal(t, models.KindCredit, response.Transactions[1].Kind)
	})

	t.Run("invalid limit", func(t *testing.T) {
		r := authenticated(httptest.NewRequest("GET", "/coins/transactions?limit=abc", nil), "user1")
		w := httptest.NewRecorder()

		handler.ListTransactions(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("negative offset", func(t *testing.T) {
		r := authenticated(httptest.NewRequest("GET", "/coins/transactions?offset=-1", nil), "user1")
		w := httptest.NewRecorder()

		handler.ListTransactions(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCoinHandler_ListPackages(t *testing.T) {
	handler, _ := newTestHandler()

	r := httptest.NewRequest("GET", "/coins/packages", nil)
	w := httptest.NewRecorder()

	handler.ListPackages(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Packages []models.CoinPackage `json:"packages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Packages, 1, "inactive packages are not listed")
	assert.Equal(t, "pkg_small", response.Packages[0].ID)
}
