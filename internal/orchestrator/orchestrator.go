// Package orchestrator drives one purchase attempt to completion: provider
// purchase, settlement wait for crypto, backend validation, commit. It owns
// the attempt locks and the idempotency record of already-applied
// transactions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/voyatra/hybridpay/internal/catalog"
	"github.com/voyatra/hybridpay/internal/config"
	entitlementdomain "github.com/voyatra/hybridpay/internal/entitlement/domain"
	"github.com/voyatra/hybridpay/internal/eventbus"
	"github.com/voyatra/hybridpay/internal/observability/metrics"
	"github.com/voyatra/hybridpay/internal/provider/adapters"
	providerdomain "github.com/voyatra/hybridpay/internal/provider/domain"
	"github.com/voyatra/hybridpay/internal/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Backend is the slice of the validation client the orchestrator needs.
type Backend interface {
	ValidateTraditionalReceipt(ctx context.Context, receipt string, tier catalog.Tier) (*validation.Result, error)
	ValidateCryptoTransaction(ctx context.Context, orderID, transactionHash string) (*validation.Result, error)
}

// Request describes one purchase attempt.
type Request struct {
	UserID        string
	Method        entitlementdomain.PaymentMethod
	Tier          catalog.Tier
	Duration      catalog.Duration
	OfferingID    string
	WalletAddress string
}

// Completion is handed to the commit callback once validation passed.
type Completion struct {
	Method        entitlementdomain.PaymentMethod
	Tier          catalog.Tier
	TransactionID string
	ExpiresAt     *time.Time
}

// CommitFunc folds a validated purchase into the canonical snapshot. It runs
// while the attempt lock is still held.
type CommitFunc func(ctx context.Context, c Completion) error

// Result is returned to the caller of a successful attempt. Duplicate is
// set when the transaction had already been applied and this attempt
// committed nothing.
type Result struct {
	Tier          catalog.Tier
	Method        entitlementdomain.PaymentMethod
	TransactionID string
	Duplicate     bool
}

type attemptKey struct {
	userID string
	tier   catalog.Tier
}

type Orchestrator struct {
	log      *zap.Logger
	bus      *eventbus.Bus
	registry *adapters.Registry
	backend  Backend
	metrics  *metrics.Metrics

	settlementWindow time.Duration

	mu       sync.Mutex
	attempts map[attemptKey]struct{}
	applied  map[string]struct{}
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Bus      *eventbus.Bus
	Registry *adapters.Registry
	Backend  Backend
	Metrics  *metrics.Metrics
	Cfg      config.Config
}

// Module provides the orchestrator.
var Module = fx.Module("purchase.orchestrator",
	fx.Provide(func(c *validation.Client) Backend { return c }),
	fx.Provide(New),
)

func New(p Params) *Orchestrator {
	return &Orchestrator{
		log:              p.Log.Named("purchase.orchestrator"),
		bus:              p.Bus,
		registry:         p.Registry,
		backend:          p.Backend,
		metrics:          p.Metrics,
		settlementWindow: p.Cfg.SettlementWindow,
		attempts:         make(map[attemptKey]struct{}),
		applied:          make(map[string]struct{}),
	}
}

// Purchase runs one attempt end to end. A concurrent attempt for the same
// (user, tier) is rejected with ErrAlreadyInProgress before any provider
// call is made.
func (o *Orchestrator) Purchase(ctx context.Context, req Request, commit CommitFunc) (*Result, error) {
	key := attemptKey{userID: req.UserID, tier: req.Tier}
	if !o.acquire(key) {
		return nil, providerdomain.ErrAlreadyInProgress
	}
	defer o.release(key)

	o.bus.Publish(eventbus.KindPurchaseStarted, eventbus.PurchaseStarted{
		Method: req.Method,
		Tier:   req.Tier,
	})

	result, err := o.run(ctx, req, commit)
	if err != nil {
		o.metrics.Purchases.WithLabelValues(string(req.Method), "failed").Inc()
		o.bus.Publish(eventbus.KindPurchaseFailed, eventbus.PurchaseFailed{
			Method: req.Method,
			Tier:   req.Tier,
			Reason: failureReason(err),
		})
		return nil, err
	}

	if result.Duplicate {
		return result, nil
	}

	o.metrics.Purchases.WithLabelValues(string(req.Method), "completed").Inc()
	o.bus.Publish(eventbus.KindPurchaseCompleted, eventbus.PurchaseCompleted{
		Method:        result.Method,
		Tier:          result.Tier,
		TransactionID: result.TransactionID,
	})
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, commit CommitFunc) (*Result, error) {
	provider, err := o.registry.Get(req.Method)
	if err != nil {
		return nil, err
	}

	outcome, err := provider.Purchase(ctx, providerdomain.PurchaseRequest{
		OfferingID:    req.OfferingID,
		Tier:          req.Tier,
		Duration:      req.Duration,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		return nil, err
	}

	var verdict *validation.Result
	var transactionID string

	switch {
	case outcome.Order != nil:
		awaiter, ok := provider.(providerdomain.SettlementAwaiter)
		if !ok {
			return nil, fmt.Errorf("provider %s returned an order but cannot await settlement", req.Method)
		}
		settlement, err := awaiter.AwaitSettlement(ctx, outcome.Order.OrderID, o.settlementWindow)
		if err != nil {
			if errors.Is(err, providerdomain.ErrSettlementTimeout) {
				o.metrics.SettlementTimeouts.Inc()
			}
			return nil, err
		}

		transactionID = settlement.TransactionHash
		verdict, err = o.backend.ValidateCryptoTransaction(ctx, settlement.OrderID, settlement.TransactionHash)
		if err != nil {
			return nil, err
		}

	default:
		transactionID = outcome.Receipt
		verdict, err = o.backend.ValidateTraditionalReceipt(ctx, outcome.Receipt, req.Tier)
		if err != nil {
			return nil, err
		}
	}

	completion := Completion{
		Method:        req.Method,
		Tier:          verdict.Tier,
		TransactionID: transactionID,
		ExpiresAt:     verdict.ExpiresAt,
	}

	if !o.markApplied(transactionID) {
		// Duplicate confirmation; the first application already committed.
		o.log.Info("skipping already-applied transaction", zap.String("transaction_id", transactionID))
		return &Result{Tier: completion.Tier, Method: completion.Method, TransactionID: transactionID, Duplicate: true}, nil
	}

	if err := commit(ctx, completion); err != nil {
		return nil, err
	}

	return &Result{Tier: completion.Tier, Method: completion.Method, TransactionID: transactionID}, nil
}

// HandleSettlement ingests an externally delivered settlement signal
// (webhook push). Duplicate deliveries for an already-applied order are
// no-ops.
func (o *Orchestrator) HandleSettlement(s providerdomain.Settlement) error {
	o.mu.Lock()
	_, dup := o.applied[s.TransactionHash]
	o.mu.Unlock()
	if dup {
		o.log.Info("duplicate settlement delivery ignored", zap.String("order_id", s.OrderID))
		return nil
	}

	provider, err := o.registry.Get(entitlementdomain.PaymentMethodCrypto)
	if err != nil {
		return err
	}
	awaiter, ok := provider.(providerdomain.SettlementAwaiter)
	if !ok {
		return providerdomain.ErrProviderNotFound
	}

	if !awaiter.ReportSettlement(s) {
		// No attempt is waiting; late or replayed delivery.
		o.log.Debug("settlement for unknown order", zap.String("order_id", s.OrderID))
	}
	return nil
}

func (o *Orchestrator) acquire(key attemptKey) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.attempts[key]; busy {
		return false
	}
	o.attempts[key] = struct{}{}
	return true
}

func (o *Orchestrator) release(key attemptKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.attempts, key)
}

// markApplied records the transaction id; reports false when it was already
// recorded.
func (o *Orchestrator) markApplied(transactionID string) bool {
	if transactionID == "" {
		return true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, dup := o.applied[transactionID]; dup {
		return false
	}
	o.applied[transactionID] = struct{}{}
	return true
}

// failureReason maps an attempt error to a string suitable for direct
// display.
func failureReason(err error) string {
	switch {
	case errors.Is(err, providerdomain.ErrSettlementTimeout):
		return "payment not confirmed in time; if funds left your account, contact support"
	case errors.Is(err, providerdomain.ErrValidationRejected):
		return "purchase could not be verified"
	case errors.Is(err, providerdomain.ErrProviderUnavailable):
		return "payment service unavailable; try again later"
	case errors.Is(err, providerdomain.ErrOfferingNotFound):
		return "selected plan is not available"
	default:
		return "purchase failed"
	}
}
