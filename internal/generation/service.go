package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/asce0110/aimagica-sub002/internal/config"
	"github.com/asce0110/aimagica-sub002/internal/models"
)

// CoinSpender is the slice of the coin service the generation proxy needs.
type CoinSpender interface {
	AuthorizeSpend(ctx context.Context, userID string, amount int64, reason string) (*models.CoinTransaction, error)
	RefundSpend(ctx context.Context, userID string, debit *models.CoinTransaction) (*models.CoinTransaction, error)
}

type Result struct {
	ImageURL      string `json:"image_url"`
	TransactionID string `json:"transaction_id"`
	BalanceAfter  int64  `json:"balance_after"`
}

// Service fronts the external image worker. It debits the generation cost
// before invoking the worker and issues the compensating refund if the worker
// fails, so a user is never charged for an image that was not produced.
type Service struct {
	coins  CoinSpender
	client *http.Client
	cfg    *config.GenerationConfig
}

func NewService(coins CoinSpender, cfg *config.GenerationConfig) *Service {
	if cfg == nil {
		cfg = config.LoadGenerationConfig()
	}
	return &Service{
		coins:  coins,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:    cfg,
	}
}

func (s *Service) Generate(ctx context.Context, userID, prompt string) (*Result, error) {
	debit, err := s.coins.AuthorizeSpend(ctx, userID, s.cfg.CoinCost, models.ReasonImageGeneration)
	if err != nil {
		return nil, err
	}

	imageURL, err := s.invokeWorker(ctx, userID, prompt)
	if err != nil {
		s.refund(userID, debit)
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	return &Result{
		ImageURL:      imageURL,
		TransactionID: debit.ID,
		BalanceAfter:  debit.BalanceAfter,
	}, nil
}

// refund runs on a detached context: the original request may already be
// cancelled, and the coins must go back regardless. The debit id keys the
// refund, so a repeat of this path credits at most once.
func (s *Service) refund(userID string, debit *models.CoinTransaction) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.coins.RefundSpend(ctx, userID, debit); err != nil {
		log.Printf("[GENERATION] Refund of debit %s for user %s failed: %v", debit.ID, userID, err)
	}
}

func (s *Service) invokeWorker(ctx context.Context, userID, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"user_id": userID,
		"prompt":  prompt,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WorkerURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("worker request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("worker returned status %d", resp.StatusCode)
	}

	var workerResp struct {
		ImageURL string `json:"image_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&workerResp); err != nil {
		return "", fmt.Errorf("failed to decode worker response: %w", err)
	}
	if workerResp.ImageURL == "" {
		return "", fmt.Errorf("worker returned no image")
	}

	return workerResp.ImageURL, nil
}
