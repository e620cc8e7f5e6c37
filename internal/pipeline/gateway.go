package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shohag/orderpipe/internal/config"
	"github.com/shohag/orderpipe/internal/models"
)

type ChargeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Gateway charges the finalized order total. A returned error is a transport
// problem and is retryable; a decline comes back as Success=false.
type Gateway interface {
	Charge(ctx context.Context, order *models.Order) (*ChargeResult, error)
}

type HTTPGateway struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPGateway(cfg config.PaymentConfig) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGateway{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// chargeKey is the idempotency key sent with every charge for an order. It
// is derived from the order id, so a re-run after a lost response carries
// the same key and the gateway can dedupe instead of capturing twice.
func chargeKey(order *models.Order) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("charge:"+order.ID)).String()
}

func (g *HTTPGateway) Charge(ctx context.Context, order *models.Order) (*ChargeResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"order_id":        order.ID,
		"order_number":    order.Number,
		"amount_cents":    order.TotalCents,
		"currency":        "BRL",
		"idempotency_key": chargeKey(order),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+"/charge", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("charge request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(raw))
	}

	var result ChargeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("invalid gateway response: %w", err)
	}
	return &result, nil
}
