// Package crypto adapts the on-ramp authority to the common provider
// contract. A purchase returns once the widget session is launched; actual
// settlement arrives asynchronously, either pushed through
// ReportSettlement (webhook) or pulled by polling the authority.
package crypto

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/voyatra/hybridpay/internal/catalog"
	"github.com/voyatra/hybridpay/internal/clock"
	entitlementdomain "github.com/voyatra/hybridpay/internal/entitlement/domain"
	"github.com/voyatra/hybridpay/internal/provider/domain"
	"go.uber.org/zap"
)

// WidgetRequest configures one on-ramp widget session.
type WidgetRequest struct {
	PartnerOrderID string
	Amount         decimal.Decimal
	Currency       string
	Network        string
	WalletAddress  string
}

// OnRamp is the consumed surface of the crypto on-ramp authority.
type OnRamp interface {
	LaunchWidget(ctx context.Context, req WidgetRequest) (orderID string, err error)
	OrderStatus(ctx context.Context, orderID string) (*domain.Settlement, error)
}

// WalletBackend answers which tier the backend has already validated for a
// wallet. The backend, not the chain, is the authority here.
type WalletBackend interface {
	WalletEntitlements(ctx context.Context, walletAddress string) (catalog.Tier, error)
}

// Config carries the network defaults for widget sessions.
type Config struct {
	WalletAddress string
	Network       string
	Currency      string
	PollInterval  time.Duration
}

type Adapter struct {
	onramp  OnRamp
	backend WalletBackend
	clock   clock.Clock
	genID   *snowflake.Node
	cfg     Config
	log     *zap.Logger

	mu          sync.Mutex
	initialized bool
	orders      map[string]*domain.PurchaseOrder
	waiters     map[string]chan domain.Settlement
}

func New(onramp OnRamp, backend WalletBackend, clk clock.Clock, genID *snowflake.Node, cfg Config, log *zap.Logger) *Adapter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Adapter{
		onramp:  onramp,
		backend: backend,
		clock:   clk,
		genID:   genID,
		cfg:     cfg,
		log:     log.Named("provider.crypto"),
		orders:  make(map[string]*domain.PurchaseOrder),
		waiters: make(map[string]chan domain.Settlement),
	}
}

func (a *Adapter) Method() entitlementdomain.PaymentMethod {
	return entitlementdomain.PaymentMethodCrypto
}

// Initialize is idempotent; the on-ramp needs no session setup, so this only
// flips the guard.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized = true
	return nil
}

// GetOfferings lists the crypto price points straight from the catalog; the
// on-ramp sells arbitrary amounts, the tiers are ours.
func (a *Adapter) GetOfferings(ctx context.Context) ([]domain.Offering, error) {
	if err := a.ensureInitialized(); err != nil {
		return nil, err
	}

	var offerings []domain.Offering
	for _, tier := range catalog.Tiers() {
		plan, _ := catalog.PlanFor(tier)
		for _, duration := range []catalog.Duration{catalog.DurationMonthly, catalog.DurationYearly} {
			price := plan.Crypto[duration]
			offerings = append(offerings, domain.Offering{
				ID:       fmt.Sprintf("crypto_%s_%s", tier, duration),
				Tier:     tier,
				Duration: duration,
				Price:    price.Amount,
				Currency: price.Currency,
			})
		}
	}
	return offerings, nil
}

// Purchase launches the widget session and returns a pending order.
// Settlement is reported separately; the caller awaits it.
func (a *Adapter) Purchase(ctx context.Context, req domain.PurchaseRequest) (*domain.PurchaseOutcome, error) {
	if err := a.ensureInitialized(); err != nil {
		return nil, err
	}

	plan, ok := catalog.PlanFor(req.Tier)
	if !ok {
		return nil, domain.ErrOfferingNotFound
	}
	price, ok := plan.Crypto[req.Duration]
	if !ok {
		return nil, domain.ErrOfferingNotFound
	}

	wallet := req.WalletAddress
	if wallet == "" {
		wallet = a.cfg.WalletAddress
	}
	currency := price.Currency
	if currency == "" {
		currency = a.cfg.Currency
	}

	orderID, err := a.onramp.LaunchWidget(ctx, WidgetRequest{
		PartnerOrderID: a.genID.Generate().String(),
		Amount:         price.Amount,
		Currency:       currency,
		Network:        a.cfg.Network,
		WalletAddress:  wallet,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: launch widget: %v", domain.ErrProviderUnavailable, err)
	}

	order := &domain.PurchaseOrder{
		OrderID:        orderID,
		Tier:           req.Tier,
		Duration:       req.Duration,
		CryptoAmount:   price.Amount,
		CryptoCurrency: currency,
		WalletAddress:  wallet,
		Status:         domain.OrderStatusPending,
		CreatedAt:      a.clock.Now(),
	}

	a.mu.Lock()
	a.orders[orderID] = order
	a.mu.Unlock()

	a.log.Info("widget session launched",
		zap.String("order_id", orderID),
		zap.String("tier", req.Tier.String()),
		zap.String("currency", currency))

	return &domain.PurchaseOutcome{
		Method: entitlementdomain.PaymentMethodCrypto,
		Tier:   req.Tier,
		Order:  order,
	}, nil
}

// AwaitSettlement blocks until the order settles, the window elapses or the
// context is cancelled. Settlement can arrive pushed (ReportSettlement) or
// pulled from the authority's status endpoint.
func (a *Adapter) AwaitSettlement(ctx context.Context, orderID string, window time.Duration) (*domain.Settlement, error) {
	a.mu.Lock()
	if _, ok := a.orders[orderID]; !ok {
		a.mu.Unlock()
		return nil, domain.ErrUnknownOrder
	}
	ch := make(chan domain.Settlement, 1)
	a.waiters[orderID] = ch
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.waiters, orderID)
		delete(a.orders, orderID)
		a.mu.Unlock()
	}()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	deadline := a.clock.After(window)

	for {
		select {
		case s := <-ch:
			return a.finish(orderID, s)
		case <-ticker.C:
			s, err := a.onramp.OrderStatus(ctx, orderID)
			if err != nil {
				// Transient; the webhook or a later poll can still settle.
				a.log.Debug("order status poll failed", zap.String("order_id", orderID), zap.Error(err))
				continue
			}
			if s.Status == domain.OrderStatusPending {
				continue
			}
			return a.finish(orderID, *s)
		case <-deadline:
			a.log.Warn("settlement window elapsed", zap.String("order_id", orderID))
			return nil, domain.ErrSettlementTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ReportSettlement delivers an externally observed settlement to a waiting
// attempt. Reports whether anything was waiting on the order.
func (a *Adapter) ReportSettlement(s domain.Settlement) bool {
	a.mu.Lock()
	ch, ok := a.waiters[s.OrderID]
	a.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- s:
	default:
	}
	return true
}

// CheckStatus asks the backend which tier it has validated for the wallet.
func (a *Adapter) CheckStatus(ctx context.Context) (catalog.Tier, error) {
	if err := a.ensureInitialized(); err != nil {
		return catalog.TierBasic, err
	}

	tier, err := a.backend.WalletEntitlements(ctx, a.cfg.WalletAddress)
	if err != nil {
		return catalog.TierBasic, fmt.Errorf("%w: wallet entitlements: %v", domain.ErrProviderUnavailable, err)
	}
	return tier, nil
}

// Restore re-queries the backend for previously validated transactions tied
// to the wallet.
func (a *Adapter) Restore(ctx context.Context) (bool, error) {
	if err := a.ensureInitialized(); err != nil {
		return false, err
	}

	tier, err := a.backend.WalletEntitlements(ctx, a.cfg.WalletAddress)
	if err != nil {
		return false, fmt.Errorf("%w: restore: %v", domain.ErrProviderUnavailable, err)
	}
	return tier != catalog.TierBasic, nil
}

func (a *Adapter) finish(orderID string, s domain.Settlement) (*domain.Settlement, error) {
	if s.Status == domain.OrderStatusFailed {
		return nil, fmt.Errorf("%w: order %s failed on-chain", domain.ErrProviderUnavailable, orderID)
	}
	a.log.Info("order settled",
		zap.String("order_id", orderID),
		zap.String("tx_hash", s.TransactionHash))
	return &s, nil
}

func (a *Adapter) ensureInitialized() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return domain.ErrNotInitialized
	}
	return nil
}
