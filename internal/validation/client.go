// Package validation calls the backend validation service. The backend is
// authoritative: a provider-observed success never grants a tier on its own.
package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/voyatra/hybridpay/internal/catalog"
	"github.com/voyatra/hybridpay/internal/config"
	providerdomain "github.com/voyatra/hybridpay/internal/provider/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Result is the backend's verdict on a receipt or transaction.
type Result struct {
	Valid     bool         `json:"valid"`
	Tier      catalog.Tier `json:"tier"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

type Client struct {
	httpClient *retryablehttp.Client
	baseURL    string
	log        *zap.Logger
}

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

// Module provides the backend validation client.
var Module = fx.Provide(New)

func New(p Params) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = p.Cfg.BackendRetryMax
	rc.HTTPClient.Timeout = p.Cfg.BackendTimeout
	rc.Logger = nil

	return &Client{
		httpClient: rc,
		baseURL:    strings.TrimRight(p.Cfg.BackendBaseURL, "/"),
		log:        p.Log.Named("validation.client"),
	}
}

// ValidateTraditionalReceipt submits a billing receipt for verification.
func (c *Client) ValidateTraditionalReceipt(ctx context.Context, receipt string, tier catalog.Tier) (*Result, error) {
	body := map[string]string{
		"receipt": receipt,
		"tier":    tier.String(),
	}
	return c.validate(ctx, "/v1/validate/receipt", body)
}

// ValidateCryptoTransaction submits a settled order for verification.
func (c *Client) ValidateCryptoTransaction(ctx context.Context, orderID, transactionHash string) (*Result, error) {
	body := map[string]string{
		"order_id":         orderID,
		"transaction_hash": transactionHash,
	}
	return c.validate(ctx, "/v1/validate/transaction", body)
}

// WalletEntitlements returns the tier the backend has validated for a
// wallet, or Basic if none.
func (c *Client) WalletEntitlements(ctx context.Context, walletAddress string) (catalog.Tier, error) {
	endpoint := c.baseURL + "/v1/entitlements?wallet=" + url.QueryEscape(walletAddress)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return catalog.TierBasic, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return catalog.TierBasic, fmt.Errorf("%w: %v", providerdomain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return catalog.TierBasic, fmt.Errorf("%w: backend status %d", providerdomain.ErrProviderUnavailable, resp.StatusCode)
	}

	var res struct {
		Tier catalog.Tier `json:"tier"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return catalog.TierBasic, fmt.Errorf("%w: decode response: %v", providerdomain.ErrProviderUnavailable, err)
	}
	if !res.Tier.Valid() {
		return catalog.TierBasic, nil
	}
	return res.Tier, nil
}

func (c *Client) validate(ctx context.Context, path string, body map[string]string) (*Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providerdomain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The backend understood the request and refused it.
		return nil, fmt.Errorf("%w: backend status %d", providerdomain.ErrValidationRejected, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: backend status %d", providerdomain.ErrProviderUnavailable, resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", providerdomain.ErrProviderUnavailable, err)
	}
	if !res.Valid {
		return nil, providerdomain.ErrValidationRejected
	}
	return &res, nil
}
