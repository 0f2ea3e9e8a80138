package crypto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/voyatra/hybridpay/internal/provider/domain"
)

// HTTPOnRamp talks to the on-ramp's partner REST API. Mobile builds embed
// the widget directly; server deployments drive sessions through this
// client.
type HTTPOnRamp struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewHTTPOnRamp(baseURL, apiKey string, timeout time.Duration) *HTTPOnRamp {
	return &HTTPOnRamp{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

func (c *HTTPOnRamp) LaunchWidget(ctx context.Context, req WidgetRequest) (string, error) {
	body := map[string]any{
		"partner_order_id": req.PartnerOrderID,
		"crypto_amount":    req.Amount.String(),
		"crypto_currency":  req.Currency,
		"network":          req.Network,
		"wallet_address":   req.WalletAddress,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", &buf)
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("on-ramp status %d", resp.StatusCode)
	}

	var res struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return res.OrderID, nil
}

func (c *HTTPOnRamp) OrderStatus(ctx context.Context, orderID string) (*domain.Settlement, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/orders/"+orderID, nil)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	httpReq.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("on-ramp status %d", resp.StatusCode)
	}

	var res struct {
		OrderID         string `json:"order_id"`
		TransactionHash string `json:"transaction_hash"`
		Status          string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &domain.Settlement{
		OrderID:         res.OrderID,
		TransactionHash: res.TransactionHash,
		Status:          mapOrderStatus(res.Status),
	}, nil
}

func mapOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "completed", "successful":
		return domain.OrderStatusCompleted
	case "failed", "cancelled", "expired":
		return domain.OrderStatusFailed
	default:
		return domain.OrderStatusPending
	}
}
