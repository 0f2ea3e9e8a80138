package traditional

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPAuthority talks to the billing authority's REST surface. It implements
// BillingAuthority for server deployments; mobile builds swap in the vendor
// SDK binding instead.
type HTTPAuthority struct {
	httpClient *http.Client
	baseURL    string
}

func NewHTTPAuthority(baseURL string, timeout time.Duration) *HTTPAuthority {
	return &HTTPAuthority{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

func (c *HTTPAuthority) Configure(ctx context.Context, userID string) error {
	body := map[string]string{"user_id": userID}
	return c.post(ctx, "/v1/configure", body, nil)
}

func (c *HTTPAuthority) ListOfferings(ctx context.Context) ([]AuthorityOffering, error) {
	var res struct {
		Offerings []AuthorityOffering `json:"offerings"`
	}
	if err := c.get(ctx, "/v1/offerings", &res); err != nil {
		return nil, err
	}
	return res.Offerings, nil
}

func (c *HTTPAuthority) Purchase(ctx context.Context, offeringID string) (*AuthorityReceipt, error) {
	body := map[string]string{"offering_id": offeringID}
	var res AuthorityReceipt
	if err := c.post(ctx, "/v1/purchase", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPAuthority) CustomerState(ctx context.Context) ([]string, error) {
	var res struct {
		ActiveEntitlements []string `json:"active_entitlements"`
	}
	if err := c.get(ctx, "/v1/customer", &res); err != nil {
		return nil, err
	}
	return res.ActiveEntitlements, nil
}

func (c *HTTPAuthority) Restore(ctx context.Context) ([]string, error) {
	var res struct {
		ActiveEntitlements []string `json:"active_entitlements"`
	}
	if err := c.post(ctx, "/v1/restore", nil, &res); err != nil {
		return nil, err
	}
	return res.ActiveEntitlements, nil
}

func (c *HTTPAuthority) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	return c.do(req, out)
}

func (c *HTTPAuthority) post(ctx context.Context, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPAuthority) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("billing authority status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
