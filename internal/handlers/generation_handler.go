package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/asce0110/aimagica-sub002/internal/coins"
	"github.com/asce0110/aimagica-sub002/internal/generation"
)

type GenerationHandler struct {
	service   *generation.Service
	validator *ValidationHelper
}

func NewGenerationHandler(service *generation.Service) *GenerationHandler {
	return &GenerationHandler{
		service:   service,
		validator: NewValidationHelper(),
	}
}

// Generate runs a paid image generation
// @Summary Generate an image
// @Description Deduct the generation cost and invoke the image worker; the debit is refunded if generation fails
// @Tags generation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{prompt=string} true "Generation request"
// @Success 200 {object} generation.Result
// @Failure 400 {object} handlers.ErrorResponse
// @Failure 402 {object} handlers.ErrorResponse
// @Failure 502 {object} handlers.ErrorResponse
// @Router /generate [post]
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Prompt string `json:"prompt" validate:"required,max=2000"`
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

	result, err := h.service.Generate(r.Context(), userID, req.Prompt)
	if err != nil {
		if errors.Is(err, coins.ErrInsufficientFunds) {
			SendErrorResponse(w, "Not enough magic coins", http.StatusPaymentRequired, nil)
			return
		}
		SendErrorResponse(w, "Image generation failed", http.StatusBadGateway, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"result":  result,
	})
}
