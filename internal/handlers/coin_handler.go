package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/asce0110/aimagica-sub002/internal/coins"
)

type CoinHandler struct {
	service   *coins.Service
	validator *ValidationHelper
}

func NewCoinHandler(service *coins.Service) *CoinHandler {
	return &CoinHandler{
		service:   service,
		validator: NewValidationHelper(),
	}
}

// GetBalance returns the user's current coin balance
// @Summary Get coin balance
// @Description Get the authenticated user's magic coin balance, initialized to zero on first access
// @Tags coins
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{amount=int64,updated_at=string}
// @Failure 401 {object} handlers.ErrorResponse
// @Failure 500 {object} handlers.ErrorResponse
// @Router /coins/balance [get]
func (h *CoinHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := h.service.GetUserBalance(r.Context(), userID)
	if err != nil {
		writeCoinError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"amount":     balance.Amount,
		"updated_at": balance.UpdatedAt,
	})
}

// ListTransactions returns the user's coin transaction history
// @Summary List coin transactions
// @Description Get a page of the user's coin transactions, newest first
// @Tags coins
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Page offset"
// @Success 200 {object} object{transactions=[]models.CoinTransaction,count=int}
// @Failure 400 {object} handlers.ErrorResponse
// @Failure 401 {object} handlers.ErrorResponse
// @Router /coins/transactions [get]
func (h *CoinHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 0
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		val, err := strconv.Atoi(limitStr)
		if err != nil || val < 0 {
			SendErrorResponse(w, "Invalid limit parameter", http.StatusBadRequest, nil)
			return
		}
		limit = val
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		val, err := strconv.Atoi(offsetStr)
		if err != nil || val < 0 {
			SendErrorResponse(w, "Invalid offset parameter", http.StatusBadRequest, nil)
			return
		}
		offset = val
	}

	transactions, err := h.service.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		writeCoinError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// ListPackages returns the purchasable coin packages
// @Summary List coin packages
// @Description Get the active coin packages available for purchase
// @Tags coins
// @Produce json
// @Success 200 {object} object{packages=[]models.CoinPackage}
// @Failure 500 {object} handlers.ErrorResponse
// @Router /coins/packages [get]
func (h *CoinHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.service.ListPackages(r.Context())
	if err != nil {
		writeCoinError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"packages": packages,
	})
}

// ApplyPurchase credits a confirmed coin package purchase
// @Summary Apply a confirmed purchase
// @Description Credit the coins of a package once the payment flow confirmed it; idempotent by payment reference
// @Tags coins
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{packageId=string,paymentReferenceId=string} true "Confirmed purchase"
// @Success 200 {object} models.CoinTransaction
// @Failure 400 {object} handlers.ErrorResponse
// @Failure 404 {object} handlers.ErrorResponse
// @Router /coins/purchase [post]
func (h *CoinHandler) ApplyPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		PackageID          string `json:"packageId" validate:"required"`
		PaymentReferenceID string `json:"paymentReferenceId" validate:"required,max=128"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	txn, err := h.service.ApplyPurchase(r.Context(), userID, req.PackageID, req.PaymentReferenceID)
	if err != nil {
		writeCoinError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"transaction": txn,
	})
}

// AuthorizeSpend deducts coins for a consuming action
// @Summary Spend coins
// @Description Atomically check and deduct coins for a coin-consuming action
// @Tags coins
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64,reason=string} true "Spend request"
// @Success 200 {object} models.CoinTransaction
// @Failure 400 {object} handlers.ErrorResponse
// @Failure 402 {object} handlers.ErrorResponse
// @Router /coins/spend [post]
func (h *CoinHandler) AuthorizeSpend(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount int64  `json:"amount" validate:"required,gt=0"`
		Reason string `json:"reason" validate:"required,max=64"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	txn, err := h.service.AuthorizeSpend(r.Context(), userID, req.Amount, req.Reason)
	if err != nil {
		writeCoinError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"transaction": txn,
	})
}

func writeCoinError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coins.ErrInsufficientFunds):
		SendErrorResponse(w, "Not enough magic coins", http.StatusPaymentRequired, nil)
	case errors.Is(err, coins.ErrInvalidAmount):
		SendErrorResponse(w, "Amount must be a positive integer", http.StatusBadRequest, nil)
	case errors.Is(err, coins.ErrPackageNotFound):
		SendErrorResponse(w, "Coin package not found", http.StatusNotFound, nil)
	case errors.Is(err, coins.ErrPackageInactive):
		SendErrorResponse(w, "Coin package is no longer available", http.StatusBadRequest, nil)
	default:
		SendErrorResponse(w, "Failed to process request", http.StatusInternalServerError, nil)
	}
}
