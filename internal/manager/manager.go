// Package manager is the reconciliation façade. It owns the canonical
// entitlement snapshot: it alone resolves, persists and broadcasts it, and
// every reader gets an immutable copy.
package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/voyatra/hybridpay/internal/catalog"
	"github.com/voyatra/hybridpay/internal/clock"
	"github.com/voyatra/hybridpay/internal/config"
	entitlementdomain "github.com/voyatra/hybridpay/internal/entitlement/domain"
	"github.com/voyatra/hybridpay/internal/entitlement/resolver"
	"github.com/voyatra/hybridpay/internal/eventbus"
	"github.com/voyatra/hybridpay/internal/observability/metrics"
	"github.com/voyatra/hybridpay/internal/orchestrator"
	"github.com/voyatra/hybridpay/internal/provider/adapters"
	providerdomain "github.com/voyatra/hybridpay/internal/provider/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Manager struct {
	log      *zap.Logger
	store    entitlementdomain.Store
	registry *adapters.Registry
	bus      *eventbus.Bus
	clock    clock.Clock
	orch     *orchestrator.Orchestrator
	metrics  *metrics.Metrics

	providerTimeout time.Duration

	// writeMu serializes resolve -> save -> broadcast so a subscriber never
	// observes a broadcast ahead of its persistence attempt.
	writeMu sync.Mutex

	mu      sync.RWMutex
	userID  string
	current entitlementdomain.Entitlements
	stale   bool
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Store    entitlementdomain.Store
	Registry *adapters.Registry
	Bus      *eventbus.Bus
	Clock    clock.Clock
	Orch     *orchestrator.Orchestrator
	Metrics  *metrics.Metrics
	Cfg      config.Config
}

// Module provides the reconciliation manager.
var Module = fx.Module("reconciliation.manager",
	fx.Provide(New),
)

func New(p Params) *Manager {
	return &Manager{
		log:             p.Log.Named("reconciliation.manager"),
		store:           p.Store,
		registry:        p.Registry,
		bus:             p.Bus,
		clock:           p.Clock,
		orch:            p.Orch,
		metrics:         p.Metrics,
		providerTimeout: p.Cfg.ProviderTimeout,
		current: entitlementdomain.Entitlements{
			Tier:     catalog.TierBasic,
			Features: catalog.Features(catalog.TierBasic),
		},
		stale: true,
	}
}

// Initialize loads the cached snapshot for fast first paint, then reconciles
// against both live providers.
func (m *Manager) Initialize(ctx context.Context, userID string) error {
	m.mu.Lock()
	m.userID = userID
	m.mu.Unlock()

	cached, err := m.store.Load(ctx, userID)
	switch {
	case err == nil:
		m.mu.Lock()
		m.current = cached.Clone()
		m.stale = true
		m.mu.Unlock()
		m.log.Info("loaded cached snapshot",
			zap.String("user_id", userID),
			zap.String("tier", cached.Tier.String()))
	case errors.Is(err, entitlementdomain.ErrSnapshotNotFound):
		m.log.Info("no cached snapshot; first run", zap.String("user_id", userID))
	default:
		// Store trouble never blocks startup; the live refresh supersedes it.
		m.log.Warn("cached snapshot unavailable", zap.Error(err))
	}

	return m.Refresh(ctx)
}

// Refresh queries both providers, resolves, persists and broadcasts. Across
// concurrent calls the last resolution to complete wins.
func (m *Manager) Refresh(ctx context.Context) error {
	var traditionalTier, cryptoTier catalog.Tier
	var traditionalLive, cryptoLive bool

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		traditionalTier, traditionalLive = m.liveTier(ctx, entitlementdomain.PaymentMethodTraditional)
	}()
	go func() {
		defer wg.Done()
		cryptoTier, cryptoLive = m.liveTier(ctx, entitlementdomain.PaymentMethodCrypto)
	}()
	wg.Wait()

	resolved := resolver.Resolve(traditionalTier, cryptoTier, m.clock.Now())
	m.publish(ctx, resolved)

	outcome := "ok"
	if !traditionalLive || !cryptoLive {
		outcome = "degraded"
	}
	m.metrics.Refreshes.WithLabelValues(outcome).Inc()
	return nil
}

// liveTier asks one provider for its current tier under a bounded timeout.
// On failure the last cached value for that method is used instead, so a
// slow or unreachable provider never silently downgrades the user. The
// second return reports whether the answer came from the live authority.
func (m *Manager) liveTier(parent context.Context, method entitlementdomain.PaymentMethod) (catalog.Tier, bool) {
	provider, err := m.registry.Get(method)
	if err != nil {
		return m.cachedTierFor(method), false
	}

	ctx, cancel := context.WithTimeout(parent, m.providerTimeout)
	defer cancel()

	if err := provider.Initialize(ctx); err != nil {
		m.log.Warn("provider initialize failed; falling back to cache",
			zap.String("method", string(method)), zap.Error(err))
		return m.cachedTierFor(method), false
	}

	tier, err := provider.CheckStatus(ctx)
	if err != nil {
		m.log.Warn("provider status check failed; falling back to cache",
			zap.String("method", string(method)), zap.Error(err))
		return m.cachedTierFor(method), false
	}
	return tier, true
}

func (m *Manager) cachedTierFor(method entitlementdomain.PaymentMethod) catalog.Tier {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.TierFor(method)
}

// GetCurrent returns a copy of the canonical snapshot without blocking.
func (m *Manager) GetCurrent() entitlementdomain.Entitlements {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// Stale reports whether the snapshot still predates the first successful
// live reconciliation.
func (m *Manager) Stale() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stale
}

// HasFeature reports whether the active entitlements grant the named
// feature. Inactive snapshots grant nothing.
func (m *Manager) HasFeature(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.current.IsActive {
		return false
	}
	v, ok := m.current.Features[name]
	return ok && v.Granted()
}

// Purchase drives one purchase attempt through the orchestrator and folds
// the validated result into the canonical snapshot.
func (m *Manager) Purchase(ctx context.Context, method entitlementdomain.PaymentMethod, tier catalog.Tier, duration catalog.Duration) (*orchestrator.Result, error) {
	m.mu.RLock()
	userID := m.userID
	m.mu.RUnlock()

	req := orchestrator.Request{
		UserID:   userID,
		Method:   method,
		Tier:     tier,
		Duration: duration,
	}
	return m.orch.Purchase(ctx, req, m.commitPurchase)
}

// commitPurchase folds the validated tier into the purchasing side and keeps
// the other side's last known value.
func (m *Manager) commitPurchase(ctx context.Context, c orchestrator.Completion) error {
	var traditionalTier, cryptoTier catalog.Tier
	switch c.Method {
	case entitlementdomain.PaymentMethodCrypto:
		cryptoTier = c.Tier
		traditionalTier = m.cachedTierFor(entitlementdomain.PaymentMethodTraditional)
	default:
		traditionalTier = c.Tier
		cryptoTier = m.cachedTierFor(entitlementdomain.PaymentMethodCrypto)
	}

	resolved := resolver.Resolve(traditionalTier, cryptoTier, m.clock.Now())
	if resolved.Tier == c.Tier && resolved.PaymentMethod == c.Method {
		// The expiry belongs to the purchase that now backs the snapshot.
		resolved.ExpiresAt = c.ExpiresAt
	}
	m.publish(ctx, resolved)
	return nil
}

// RestorePurchases re-synchronizes both providers with their authorities and
// refreshes. It reports whether any provider confirmed an active purchase.
func (m *Manager) RestorePurchases(ctx context.Context) (bool, error) {
	restored := false
	for _, provider := range m.registry.All() {
		ctxT, cancel := context.WithTimeout(ctx, m.providerTimeout)
		ok, err := provider.Restore(ctxT)
		cancel()
		if err != nil {
			// Unreachable authority falls back to cache on the refresh below.
			m.log.Warn("restore failed",
				zap.String("method", string(provider.Method())), zap.Error(err))
			continue
		}
		restored = restored || ok
	}

	if err := m.Refresh(ctx); err != nil {
		return restored, err
	}
	return restored, nil
}

// Subscribe registers a handler on the event bus.
func (m *Manager) Subscribe(kind eventbus.Kind, h eventbus.Handler) eventbus.Subscription {
	return m.bus.Subscribe(kind, h)
}

// Unsubscribe removes a handler.
func (m *Manager) Unsubscribe(sub eventbus.Subscription) {
	m.bus.Unsubscribe(sub)
}

// HandleSettlement forwards an externally delivered settlement signal to the
// orchestrator.
func (m *Manager) HandleSettlement(s providerdomain.Settlement) error {
	return m.orch.HandleSettlement(s)
}

// publish persists then broadcasts the new canonical snapshot. A save
// failure is logged and tolerated: the in-memory snapshot stays
// authoritative for the session and the next save retries.
func (m *Manager) publish(ctx context.Context, e entitlementdomain.Entitlements) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	userID := m.userID
	m.mu.RUnlock()

	if err := m.store.Save(ctx, userID, e); err != nil {
		m.log.Error("snapshot save failed; keeping in-memory state", zap.Error(err))
	}

	m.mu.Lock()
	m.current = e.Clone()
	m.stale = false
	m.mu.Unlock()

	m.bus.Publish(eventbus.KindEntitlementsUpdated, eventbus.EntitlementsUpdated{Entitlements: e.Clone()})
}
