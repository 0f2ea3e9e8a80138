package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyatra/hybridpay/internal/catalog"
	"github.com/voyatra/hybridpay/internal/clock"
	"github.com/voyatra/hybridpay/internal/config"
	entitlementdomain "github.com/voyatra/hybridpay/internal/entitlement/domain"
	"github.com/voyatra/hybridpay/internal/eventbus"
	"github.com/voyatra/hybridpay/internal/manager"
	"github.com/voyatra/hybridpay/internal/observability/metrics"
	"github.com/voyatra/hybridpay/internal/orchestrator"
	"github.com/voyatra/hybridpay/internal/provider/adapters"
	providerdomain "github.com/voyatra/hybridpay/internal/provider/domain"
	"github.com/voyatra/hybridpay/internal/validation"
	"go.uber.org/zap"
)

type memStore struct {
	snapshots map[string]entitlementdomain.Entitlements
}

func (s *memStore) Load(ctx context.Context, userID string) (*entitlementdomain.Entitlements, error) {
	e, ok := s.snapshots[userID]
	if !ok {
		return nil, entitlementdomain.ErrSnapshotNotFound
	}
	clone := e.Clone()
	return &clone, nil
}

func (s *memStore) Save(ctx context.Context, userID string, e entitlementdomain.Entitlements) error {
	s.snapshots[userID] = e.Clone()
	return nil
}

type staticProvider struct {
	method  entitlementdomain.PaymentMethod
	tier    catalog.Tier
	outcome *providerdomain.PurchaseOutcome
}

func (p *staticProvider) Method() entitlementdomain.PaymentMethod { return p.method }
func (p *staticProvider) Initialize(ctx context.Context) error    { return nil }
func (p *staticProvider) GetOfferings(ctx context.Context) ([]providerdomain.Offering, error) {
	return nil, nil
}
func (p *staticProvider) Purchase(ctx context.Context, req providerdomain.PurchaseRequest) (*providerdomain.PurchaseOutcome, error) {
	if p.outcome == nil {
		return nil, providerdomain.ErrProviderUnavailable
	}
	return p.outcome, nil
}
func (p *staticProvider) CheckStatus(ctx context.Context) (catalog.Tier, error) {
	return p.tier, nil
}
func (p *staticProvider) Restore(ctx context.Context) (bool, error) { return false, nil }

// settlingStaticProvider accepts settlement reports without a waiting attempt.
type settlingStaticProvider struct {
	staticProvider
}

func (p *settlingStaticProvider) AwaitSettlement(ctx context.Context, orderID string, window time.Duration) (*providerdomain.Settlement, error) {
	return nil, providerdomain.ErrUnknownOrder
}

func (p *settlingStaticProvider) ReportSettlement(s providerdomain.Settlement) bool { return false }

type acceptAllBackend struct{}

func (acceptAllBackend) ValidateTraditionalReceipt(ctx context.Context, receipt string, tier catalog.Tier) (*validation.Result, error) {
	return &validation.Result{Valid: true, Tier: tier}, nil
}

func (acceptAllBackend) ValidateCryptoTransaction(ctx context.Context, orderID, transactionHash string) (*validation.Result, error) {
	return &validation.Result{Valid: true, Tier: catalog.TierPremium}, nil
}

func newTestServer(t *testing.T, providers ...providerdomain.Provider) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zap.NewNop()
	bus := eventbus.New(log)
	m, err := metrics.New(metrics.NewRegistry())
	require.NoError(t, err)

	cfg := config.Config{
		ProviderTimeout:  time.Second,
		SettlementWindow: time.Minute,
		UserID:           "user_1",
	}
	registry := adapters.NewRegistry(providers...)
	orch := orchestrator.New(orchestrator.Params{
		Log:      log,
		Bus:      bus,
		Registry: registry,
		Backend:  acceptAllBackend{},
		Metrics:  m,
		Cfg:      cfg,
	})
	mgr := manager.New(manager.Params{
		Log:      log,
		Store:    &memStore{snapshots: map[string]entitlementdomain.Entitlements{}},
		Registry: registry,
		Bus:      bus,
		Clock:    clock.NewSystemClock(),
		Orch:     orch,
		Metrics:  m,
		Cfg:      cfg,
	})
	require.NoError(t, mgr.Initialize(context.Background(), cfg.UserID))

	engine := NewEngine()
	NewServer(Params{
		Engine:   engine,
		Cfg:      cfg,
		Log:      log,
		Manager:  mgr,
		Registry: prometheus.NewRegistry(),
	})
	return engine
}

func doJSON(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	engine := newTestServer(t,
		&staticProvider{method: entitlementdomain.PaymentMethodTraditional, tier: catalog.TierBasic},
		&staticProvider{method: entitlementdomain.PaymentMethodCrypto, tier: catalog.TierBasic},
	)

	w := doJSON(engine, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetEntitlements(t *testing.T) {
	engine := newTestServer(t,
		&staticProvider{method: entitlementdomain.PaymentMethodTraditional, tier: catalog.TierPremium},
		&staticProvider{method: entitlementdomain.PaymentMethodCrypto, tier: catalog.TierBasic},
	)

	w := doJSON(engine, http.MethodGet, "/v1/entitlements", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Entitlements entitlementdomain.Entitlements `json:"entitlements"`
		Stale        bool                           `json:"stale"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, catalog.TierPremium, resp.Entitlements.Tier)
	assert.False(t, resp.Stale)
}

func TestGetFeature(t *testing.T) {
	engine := newTestServer(t,
		&staticProvider{method: entitlementdomain.PaymentMethodTraditional, tier: catalog.TierVIP},
		&staticProvider{method: entitlementdomain.PaymentMethodCrypto, tier: catalog.TierBasic},
	)

	w := doJSON(engine, http.MethodGet, "/v1/features/concierge", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Feature string `json:"feature"`
		Granted bool   `json:"granted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "concierge", resp.Feature)
	assert.True(t, resp.Granted)

	w = doJSON(engine, http.MethodGet, "/v1/features/teleportation", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Granted)
}

func TestPostPurchase(t *testing.T) {
	engine := newTestServer(t,
		&staticProvider{
			method: entitlementdomain.PaymentMethodTraditional,
			tier:   catalog.TierBasic,
			outcome: &providerdomain.PurchaseOutcome{
				Method:  entitlementdomain.PaymentMethodTraditional,
				Tier:    catalog.TierPremium,
				Receipt: "rcpt_1",
			},
		},
		&staticProvider{method: entitlementdomain.PaymentMethodCrypto, tier: catalog.TierBasic},
	)

	w := doJSON(engine, http.MethodPost, "/v1/purchases", `{"method":"traditional","tier":"premium","duration":"monthly"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tier          catalog.Tier `json:"tier"`
		TransactionID string       `json:"transaction_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, catalog.TierPremium, resp.Tier)
	assert.Equal(t, "rcpt_1", resp.TransactionID)

	w = doJSON(engine, http.MethodGet, "/v1/entitlements", "")
	var after struct {
		Entitlements entitlementdomain.Entitlements `json:"entitlements"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &after))
	assert.Equal(t, catalog.TierPremium, after.Entitlements.Tier)
}

func TestPostPurchase_BadRequests(t *testing.T) {
	engine := newTestServer(t,
		&staticProvider{method: entitlementdomain.PaymentMethodTraditional, tier: catalog.TierBasic},
		&staticProvider{method: entitlementdomain.PaymentMethodCrypto, tier: catalog.TierBasic},
	)

	cases := []struct {
		name string
		body string
	}{
		{name: "not json", body: "{"},
		{name: "missing fields", body: `{}`},
		{name: "unknown method", body: `{"method":"barter","tier":"premium"}`},
		{name: "unknown tier", body: `{"method":"traditional","tier":"platinum"}`},
		{name: "unknown duration", body: `{"method":"traditional","tier":"premium","duration":"weekly"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(engine, http.MethodPost, "/v1/purchases", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestPostPurchase_ProviderUnavailable(t *testing.T) {
	engine := newTestServer(t,
		&staticProvider{method: entitlementdomain.PaymentMethodTraditional, tier: catalog.TierBasic},
		&staticProvider{method: entitlementdomain.PaymentMethodCrypto, tier: catalog.TierBasic},
	)

	w := doJSON(engine, http.MethodPost, "/v1/purchases", `{"method":"traditional","tier":"premium"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestOnRampWebhook(t *testing.T) {
	engine := newTestServer(t,
		&staticProvider{method: entitlementdomain.PaymentMethodTraditional, tier: catalog.TierBasic},
		&settlingStaticProvider{staticProvider: staticProvider{method: entitlementdomain.PaymentMethodCrypto, tier: catalog.TierBasic}},
	)

	// Unknown orders are acknowledged so the sender stops retrying.
	w := doJSON(engine, http.MethodPost, "/webhooks/onramp", `{"order_id":"ord_1","transaction_hash":"0xdead","status":"completed"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(engine, http.MethodPost, "/webhooks/onramp", `{"status":"completed"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
